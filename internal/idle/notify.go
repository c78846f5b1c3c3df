package idle

import (
	"fmt"
	"sync"

	"github.com/goodtune/activityd/internal/metrics"
	"github.com/rs/zerolog"
)

type subscriber struct {
	id int
	fn func()
}

// signal is a zero-argument notification with any number of subscribers.
type signal struct {
	name   string
	logger zerolog.Logger

	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

func newSignal(name string, logger zerolog.Logger) *signal {
	return &signal{name: name, logger: logger}
}

func (s *signal) subscribe(fn func()) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *signal) remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func (s *signal) clear() {
	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

func (s *signal) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// emit calls every subscriber in subscription order. A panicking subscriber
// is logged and skipped.
func (s *signal) emit() {
	s.mu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		s.call(sub)
	}
}

func (s *signal) call(sub subscriber) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberPanics.WithLabelValues(s.name).Inc()
			s.logger.Error().
				Str("event", s.name).
				Int("subscriber", sub.id).
				Str("panic", fmt.Sprint(r)).
				Msg("Idle subscriber panicked")
		}
	}()
	sub.fn()
}
