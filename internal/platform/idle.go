// Package platform provides the OS query for time elapsed since the last
// global input event.
package platform

import (
	"errors"
	"time"
)

// ErrIdleUnsupported indicates idle time cannot be read on this system.
var ErrIdleUnsupported = errors.New("idle detection unsupported")

// IdleTimeSource returns the duration since the last user input.
type IdleTimeSource interface {
	IdleDuration() (time.Duration, error)
}

// NewIdleTimeSource returns the best idle time source for this platform.
// The returned value may implement io.Closer.
func NewIdleTimeSource() IdleTimeSource {
	return newIdleTimeSource()
}

// IdleTimeFunc adapts a function to IdleTimeSource.
type IdleTimeFunc func() (time.Duration, error)

// IdleDuration calls f.
func (f IdleTimeFunc) IdleDuration() (time.Duration, error) {
	return f()
}
