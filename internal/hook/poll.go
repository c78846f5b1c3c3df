package hook

import (
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/activityd/internal/platform"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is how often a PollInstaller samples the idle time source.
const DefaultPollInterval = 250 * time.Millisecond

// PollInstaller emulates global input hooks by sampling an idle time source.
// A drop in idle time means input arrived since the previous sample; every
// installed hook is then invoked once. It cannot tell keyboard from mouse
// input, so both kinds fire on any input.
type PollInstaller struct {
	source   platform.IdleTimeSource
	interval time.Duration
	logger   zerolog.Logger

	mu     sync.Mutex
	next   Handle
	active map[Handle]*poller
}

type poller struct {
	kind Kind
	stop chan struct{}
}

// NewPollInstaller creates a hook installer backed by source.
func NewPollInstaller(source platform.IdleTimeSource, interval time.Duration, logger zerolog.Logger) *PollInstaller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollInstaller{
		source:   source,
		interval: interval,
		logger:   logger.With().Str("component", "hook-poller").Logger(),
		active:   make(map[Handle]*poller),
	}
}

// Install starts watching for input and returns the hook handle.
func (p *PollInstaller) Install(kind Kind, cb Callback) (Handle, error) {
	if cb == nil {
		return 0, ErrNilCallback
	}

	baseline, err := p.source.IdleDuration()
	if err != nil {
		return 0, fmt.Errorf("install %s hook: %w", kind, err)
	}

	p.mu.Lock()
	p.next++
	h := p.next
	pl := &poller{kind: kind, stop: make(chan struct{})}
	p.active[h] = pl
	p.mu.Unlock()

	go p.watch(pl, cb, baseline)

	p.logger.Debug().
		Str("kind", kind.String()).
		Uint64("handle", uint64(h)).
		Msg("Hook installed")

	return h, nil
}

// Uninstall stops the hook. It does not wait for a callback that is already
// running, so one in-flight event may still be delivered.
func (p *PollInstaller) Uninstall(h Handle) error {
	p.mu.Lock()
	pl, ok := p.active[h]
	if ok {
		delete(p.active, h)
		close(pl.stop)
	}
	p.mu.Unlock()

	if !ok {
		return fmt.Errorf("uninstall %d: %w", h, ErrUnknownHandle)
	}

	p.logger.Debug().
		Str("kind", pl.kind.String()).
		Uint64("handle", uint64(h)).
		Msg("Hook uninstalled")

	return nil
}

// CallNext is a no-op; there is no chain behind a polled hook.
func (p *PollInstaller) CallNext(h Handle, code int, wParam, lParam uintptr) uintptr {
	return 0
}

// Installed returns the number of hooks currently installed.
func (p *PollInstaller) Installed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

func (p *PollInstaller) watch(pl *poller, cb Callback, last time.Duration) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pl.stop:
			return
		case <-ticker.C:
		}

		current, err := p.source.IdleDuration()
		if err != nil {
			p.logger.Debug().Err(err).Str("kind", pl.kind.String()).Msg("Idle time sample failed")
			continue
		}

		if current < last {
			select {
			case <-pl.stop:
				return
			default:
			}
			cb(0, uintptr(pl.kind), 0)
		}
		last = current
	}
}
