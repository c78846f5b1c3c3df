//go:build !linux && !windows

package platform

import "time"

type unsupportedIdleSource struct{}

func newIdleTimeSource() IdleTimeSource {
	return unsupportedIdleSource{}
}

func (unsupportedIdleSource) IdleDuration() (time.Duration, error) {
	return 0, ErrIdleUnsupported
}
