//go:build !linux

package input

import "pendrag/internal/report"

// Reader is a stub on platforms without Linux event devices
type Reader struct {
	path string
}

// NewReader creates a stub reader
func NewReader(path string, grab bool) *Reader {
	return &Reader{path: path}
}

// Start always fails on this platform
func (r *Reader) Start() error {
	return ErrUnsupportedPlatform
}

// Stop is a no-op
func (r *Reader) Stop() error {
	return nil
}

// Ranges returns zero ranges
func (r *Reader) Ranges() Ranges {
	return Ranges{}
}

// Events returns nil
func (r *Reader) Events() <-chan report.Event {
	return nil
}
