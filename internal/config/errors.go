package config

import "errors"

var (
	// ErrUnsupportedFormat is returned for config files that are neither JSON nor YAML
	ErrUnsupportedFormat = errors.New("unsupported config format")

	// ErrInvalidValue is returned when a setting is out of range
	ErrInvalidValue = errors.New("invalid config value")
)
