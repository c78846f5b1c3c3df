package idle

import (
	"sync"
	"time"
)

// pollTimer fires after an initial delay and then once per period until it
// is suspended or closed. Ticks from a superseded activation are discarded.
type pollTimer struct {
	fire func()

	mu     sync.Mutex
	timer  *time.Timer
	period time.Duration
	gen    uint64
	closed bool
}

func newPollTimer(fire func()) *pollTimer {
	return &pollTimer{fire: fire}
}

// Activate (re)starts the timer.
func (t *pollTimer) Activate(delay, period time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return
	}
	t.stopLocked()
	t.period = period
	gen := t.gen
	t.timer = time.AfterFunc(delay, func() { t.tick(gen) })
}

// Suspend stops firing until the next Activate.
func (t *pollTimer) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Close stops the timer permanently.
func (t *pollTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.stopLocked()
}

// Active reports whether the timer is scheduled to fire.
func (t *pollTimer) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timer != nil
}

func (t *pollTimer) stopLocked() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *pollTimer) tick(gen uint64) {
	t.mu.Lock()
	if t.closed || gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.timer = time.AfterFunc(t.period, func() { t.tick(gen) })
	t.mu.Unlock()

	t.fire()
}
