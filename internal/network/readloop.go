package network

import (
	"log"
	"time"
)

// readErrorBackoff is the pause after a failed socket read
const readErrorBackoff = 50 * time.Millisecond

// readErrors throttles a read loop while its socket keeps failing. Only the
// first error of a run is logged.
type readErrors struct {
	component string
	streak    int
}

// failed records err and pauses before the next read. It returns false
// once done is closed.
func (r *readErrors) failed(err error, done <-chan struct{}) bool {
	select {
	case <-done:
		return false
	default:
	}
	r.streak++
	if r.streak == 1 {
		log.Printf("%s: Read error: %v", r.component, err)
	}
	select {
	case <-done:
		return false
	case <-time.After(readErrorBackoff):
		return true
	}
}

// ok ends a run of errors
func (r *readErrors) ok() {
	if r.streak > 1 {
		log.Printf("%s: Reads recovered after %d errors", r.component, r.streak)
	}
	r.streak = 0
}
