package filter

import "errors"

var (
	// ErrNegativeThreshold is returned when the drag threshold is below zero
	ErrNegativeThreshold = errors.New("drag threshold must not be negative")

	// ErrInvalidThreshold is returned when the drag threshold is NaN or infinite
	ErrInvalidThreshold = errors.New("drag threshold must be a finite number")
)
