// Package idle decides whether the user is idle by polling the OS idle time
// and, once idle, watching global input hooks for the first sign of activity.
package idle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goodtune/activityd/internal/dispatch"
	"github.com/goodtune/activityd/internal/hook"
	"github.com/goodtune/activityd/internal/metrics"
	"github.com/goodtune/activityd/internal/platform"
	"github.com/goodtune/activityd/internal/settings"
	"github.com/rs/zerolog"
)

const (
	// DefaultInitialDelay is the wait before the first idle check and after
	// every return from idle.
	DefaultInitialDelay = 60 * time.Second

	// DefaultPeriod is the interval between idle checks while active.
	DefaultPeriod = time.Second
)

// Config holds detector timing.
type Config struct {
	InitialDelay time.Duration
	Period       time.Duration
}

// Deps are the collaborators a Detector needs.
type Deps struct {
	Source    platform.IdleTimeSource
	Threshold settings.ThresholdProvider
	Installer hook.Installer
	// Poster runs every transition. IdleEntered and IdleLeft reach
	// subscribers in transition order only when it is a dispatch.Loop;
	// the default dispatch.Inline suits single-goroutine callers and tests.
	Poster    dispatch.Poster
	Logger    zerolog.Logger
}

type hookSlot struct {
	kind   hook.Kind
	handle atomic.Uintptr
}

// Detector runs the Active/Idle state machine. The timer can only move it
// from Active to Idle; input hooks can only move it from Idle to Active.
// Hooks are installed only while Idle.
type Detector struct {
	config    Config
	source    platform.IdleTimeSource
	threshold settings.ThresholdProvider
	installer hook.Installer
	poster    dispatch.Poster
	logger    zerolog.Logger

	timer   *pollTimer
	hooks   []*hookSlot
	entered *signal
	left    *signal

	resetPending atomic.Bool

	mu        sync.Mutex
	idle      bool
	closed    bool
	lastError string
}

// New creates a detector and schedules its first idle check.
// Close must be called to release the timer and any installed hooks.
func New(config Config, deps Deps) (*Detector, error) {
	if deps.Source == nil {
		return nil, errors.New("idle: idle time source is required")
	}
	if deps.Threshold == nil {
		return nil, errors.New("idle: threshold provider is required")
	}
	if deps.Installer == nil {
		return nil, errors.New("idle: hook installer is required")
	}
	if deps.Poster == nil {
		deps.Poster = dispatch.Inline{}
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = DefaultInitialDelay
	}
	if config.Period <= 0 {
		config.Period = DefaultPeriod
	}

	logger := deps.Logger.With().Str("component", "idle-detector").Logger()

	d := &Detector{
		config:    config,
		source:    deps.Source,
		threshold: deps.Threshold,
		installer: deps.Installer,
		poster:    deps.Poster,
		logger:    logger,
		hooks: []*hookSlot{
			{kind: hook.Keyboard},
			{kind: hook.Mouse},
		},
		entered: newSignal("idle_entered", logger),
		left:    newSignal("idle_left", logger),
	}

	d.timer = newPollTimer(func() { d.poster.Post(d.CheckIdleState) })
	d.timer.Activate(config.InitialDelay, config.Period)

	d.logger.Debug().
		Dur("initial_delay", config.InitialDelay).
		Dur("period", config.Period).
		Msg("Idle polling scheduled")

	return d, nil
}

// OnIdleEntered subscribes fn to the Active to Idle transition.
// The returned function unsubscribes.
func (d *Detector) OnIdleEntered(fn func()) func() {
	return d.entered.subscribe(fn)
}

// OnIdleLeft subscribes fn to the Idle to Active transition.
// The returned function unsubscribes.
func (d *Detector) OnIdleLeft(fn func()) func() {
	return d.left.subscribe(fn)
}

// Idle reports whether the detector is in the Idle state.
func (d *Detector) Idle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.idle
}

// HooksInstalled reports whether both input hooks are installed.
func (d *Detector) HooksInstalled() bool {
	for _, slot := range d.hooks {
		if slot.handle.Load() == 0 {
			return false
		}
	}
	return true
}

// Polling reports whether the idle check timer is scheduled.
func (d *Detector) Polling() bool {
	return d.timer.Active()
}

// CheckIdleState compares the OS idle time with the configured threshold and
// enters Idle when it is reached. It is normally run by the timer through the
// detector's Poster.
func (d *Detector) CheckIdleState() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	if d.idle {
		// Only reachable when a hook failed to install on entry.
		if d.installHooksLocked() {
			d.timer.Suspend()
		}
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()

	idleFor, err := d.source.IdleDuration()
	if err != nil {
		d.checkFailed("idle_time", err)
		return
	}

	threshold, err := d.threshold.IdleThreshold()
	if err != nil {
		d.checkFailed("settings", err)
		return
	}

	if idleFor < threshold {
		return
	}

	d.mu.Lock()
	if d.closed || d.idle {
		d.mu.Unlock()
		return
	}
	d.idle = true
	d.lastError = ""
	if d.installHooksLocked() {
		d.timer.Suspend()
	}
	d.mu.Unlock()

	metrics.IdleTransitions.WithLabelValues("entered").Inc()
	d.logger.Info().
		Dur("idle_for", idleFor).
		Dur("threshold", threshold).
		Msg("User idle")

	d.entered.emit()
}

// Reset returns the detector to Active. It does nothing unless Idle.
func (d *Detector) Reset() {
	d.mu.Lock()
	if d.closed || !d.idle {
		d.mu.Unlock()
		return
	}
	d.idle = false
	if err := d.removeHooksLocked(); err != nil {
		d.logger.Warn().Err(err).Msg("Failed to remove input hooks")
	}
	d.timer.Activate(d.config.InitialDelay, d.config.Period)
	d.mu.Unlock()

	metrics.IdleTransitions.WithLabelValues("left").Inc()
	d.logger.Info().Msg("User active")

	d.left.emit()
}

// Close stops the timer, drops all subscribers and removes installed hooks.
// It is safe to call more than once.
func (d *Detector) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.timer.Close()
	err := d.removeHooksLocked()
	d.mu.Unlock()

	d.entered.clear()
	d.left.clear()

	d.logger.Debug().Msg("Idle detector closed")

	return err
}

// installHooksLocked installs every missing hook and reports whether all
// hooks are now installed. Must be called with d.mu held.
func (d *Detector) installHooksLocked() bool {
	complete := true
	for _, slot := range d.hooks {
		if slot.handle.Load() != 0 {
			continue
		}

		h, err := d.installer.Install(slot.kind, d.hookCallback(slot))
		if err != nil {
			complete = false
			metrics.HookInstallFailures.WithLabelValues(slot.kind.String()).Inc()
			d.logger.Warn().
				Err(err).
				Str("kind", slot.kind.String()).
				Msg("Failed to install input hook, will retry on next check")
			continue
		}
		slot.handle.Store(uintptr(h))
	}
	return complete
}

// removeHooksLocked uninstalls every installed hook exactly once.
// Must be called with d.mu held.
func (d *Detector) removeHooksLocked() error {
	var errs []error
	for _, slot := range d.hooks {
		h := hook.Handle(slot.handle.Swap(0))
		if h == 0 {
			continue
		}
		if err := d.installer.Uninstall(h); err != nil {
			errs = append(errs, fmt.Errorf("uninstall %s hook: %w", slot.kind, err))
		}
	}
	return errors.Join(errs...)
}

// hookCallback requests a Reset and always forwards the event down the chain
// using the hook's own handle, read before Reset can clear it.
func (d *Detector) hookCallback(slot *hookSlot) hook.Callback {
	return func(code int, wParam, lParam uintptr) uintptr {
		h := hook.Handle(slot.handle.Load())
		d.requestReset()
		return d.installer.CallNext(h, code, wParam, lParam)
	}
}

// requestReset queues at most one Reset at a time and never blocks. When the
// poster refuses the work the event is dropped; the next input retries.
func (d *Detector) requestReset() {
	if !d.resetPending.CompareAndSwap(false, true) {
		return
	}

	run := func() {
		d.resetPending.Store(false)
		d.Reset()
	}
	if !dispatch.TryPost(d.poster, run) {
		d.resetPending.Store(false)
		d.logger.Debug().Msg("Dispatch queue full, dropping input event")
	}
}

func (d *Detector) checkFailed(source string, err error) {
	metrics.IdleCheckErrors.WithLabelValues(source).Inc()

	d.mu.Lock()
	repeated := d.lastError == err.Error()
	d.lastError = err.Error()
	d.mu.Unlock()

	event := d.logger.Warn()
	if repeated {
		event = d.logger.Debug()
	}
	event.Err(err).Str("source", source).Msg("Idle check skipped")
}
