package input

import "errors"

var (
	// ErrUnsupportedPlatform is returned when event devices cannot be read on this OS
	ErrUnsupportedPlatform = errors.New("input: event devices not supported on this platform")

	// ErrAlreadyRunning is returned by Start on a running source
	ErrAlreadyRunning = errors.New("input: source already running")
)
