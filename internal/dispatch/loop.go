// Package dispatch provides the serialized execution context that funnels
// idle state transitions coming from timer and hook goroutines.
package dispatch

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultBuffer is the number of work items a Loop queues before Post blocks.
const DefaultBuffer = 64

// Poster marshals a unit of work onto a designated execution context.
type Poster interface {
	Post(fn func())
}

// TryPoster queues work without blocking and reports whether it was accepted.
type TryPoster interface {
	TryPost(fn func()) bool
}

// TryPost hands fn to p without blocking when p supports it. Posters that
// cannot refuse work fall back to Post.
func TryPost(p Poster, fn func()) bool {
	if tp, ok := p.(TryPoster); ok {
		return tp.TryPost(fn)
	}
	p.Post(fn)
	return true
}

// Inline runs posted work on the caller's goroutine. It does not serialize
// work posted from different goroutines, so callers posting concurrently
// observe no ordering between them. Use a Loop for that.
type Inline struct{}

// Post executes fn immediately.
func (Inline) Post(fn func()) {
	fn()
}

// TryPost executes fn immediately and always accepts it.
func (Inline) TryPost(fn func()) bool {
	fn()
	return true
}

// Loop executes posted work one item at a time on a single goroutine.
type Loop struct {
	work   chan func()
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
	logger zerolog.Logger
}

// NewLoop starts a serial loop. Stop must be called to release its goroutine.
func NewLoop(buffer int, logger zerolog.Logger) *Loop {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	l := &Loop{
		work:   make(chan func(), buffer),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger.With().Str("component", "dispatch").Logger(),
	}

	go l.run()

	return l
}

// Post queues fn for execution. Work posted after Stop is dropped.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}

	select {
	case <-l.stopCh:
		l.logger.Debug().Msg("Loop stopped, dropping posted work")
		return
	default:
	}

	select {
	case l.work <- fn:
	case <-l.stopCh:
		l.logger.Debug().Msg("Loop stopped, dropping posted work")
	}
}

// TryPost queues fn unless the buffer is full or the loop has stopped.
func (l *Loop) TryPost(fn func()) bool {
	if fn == nil {
		return false
	}

	select {
	case <-l.stopCh:
		return false
	default:
	}

	select {
	case l.work <- fn:
		return true
	default:
		return false
	}
}

// Stop runs the work already queued and waits for the loop goroutine to exit.
// It must not be called from work running on the loop.
func (l *Loop) Stop() {
	l.once.Do(func() {
		close(l.stopCh)
	})
	<-l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case fn := <-l.work:
			l.execute(fn)
		case <-l.stopCh:
			for {
				select {
				case fn := <-l.work:
					l.execute(fn)
				default:
					return
				}
			}
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().
				Str("panic", fmt.Sprint(r)).
				Msg("Posted work panicked")
		}
	}()

	fn()
}
