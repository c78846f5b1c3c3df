// Package tracking drives the usage journal from login, idle and lock
// events on behalf of a single user.
package tracking

import (
	"context"
	"errors"
	"sync"

	"github.com/goodtune/activityd/internal/usage"
	"github.com/rs/zerolog"
)

// IdleNotifier raises zero-argument idle transitions. The returned
// functions unsubscribe.
type IdleNotifier interface {
	OnIdleEntered(fn func()) func()
	OnIdleLeft(fn func()) func()
}

type identity struct {
	mu        sync.RWMutex
	userID    int64
	sessionID string
}

func (i *identity) UserID() int64 {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.userID
}

func (i *identity) SessionID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sessionID
}

func (i *identity) set(userID int64, sessionID string) {
	i.mu.Lock()
	i.userID = userID
	i.sessionID = sessionID
	i.mu.Unlock()
}

// Service owns the journal for one login session and supplies the user and
// session that its records belong to.
type Service struct {
	journal  *usage.Journal
	identity *identity
	logger   zerolog.Logger

	mu           sync.Mutex
	suspended    []usage.Category
	unsubscribes []func()
	shutdown     bool
}

// NewService creates a service writing to repo.
func NewService(repo usage.Repository, logger zerolog.Logger, opts ...usage.Option) *Service {
	id := &identity{}
	opts = append([]usage.Option{usage.WithLogger(logger)}, opts...)

	return &Service{
		journal:  usage.NewJournal(repo, id, opts...),
		identity: id,
		logger:   logger.With().Str("component", "tracking").Logger(),
	}
}

// UserID implements usage.Identity.
func (s *Service) UserID() int64 {
	return s.identity.UserID()
}

// SessionID implements usage.Identity. It is the current login record's ID.
func (s *Service) SessionID() string {
	return s.identity.SessionID()
}

// Journal exposes the underlying journal for inspection.
func (s *Service) Journal() *usage.Journal {
	return s.journal
}

// Login opens the login session for userID.
func (s *Service) Login(ctx context.Context, userID int64) (*usage.Record, error) {
	record, err := s.journal.LoginUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.identity.set(userID, record.ID)
	return record, nil
}

// Start opens a span for category.
func (s *Service) Start(category usage.Category) (*usage.Record, error) {
	return s.journal.NewUsage(category)
}

// Stop closes the span for category, if open. A category suspended while
// idle is forgotten so it is not reopened when the user returns.
func (s *Service) Stop(ctx context.Context, category usage.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forgetSuspendedLocked(category)
	return s.journal.UsageEnded(ctx, category)
}

// Locked opens a Locked span.
func (s *Service) Locked(ctx context.Context) error {
	if _, err := s.journal.NewUsage(usage.CategoryLocked); err != nil && !errors.Is(err, usage.ErrAlreadyTracked) {
		return err
	}
	s.logger.Info().Msg("Session locked")
	return nil
}

// Unlocked closes the Locked span.
func (s *Service) Unlocked(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.forgetSuspendedLocked(usage.CategoryLocked)
	if err := s.journal.UsageEnded(ctx, usage.CategoryLocked); err != nil {
		return err
	}
	s.logger.Info().Msg("Session unlocked")
	return nil
}

// Attach suspends tracked usage while notifier reports the user idle.
func (s *Service) Attach(notifier IdleNotifier) {
	entered := notifier.OnIdleEntered(func() { s.idleEntered(context.Background()) })
	left := notifier.OnIdleLeft(func() { s.idleLeft(context.Background()) })

	s.mu.Lock()
	s.unsubscribes = append(s.unsubscribes, entered, left)
	s.mu.Unlock()
}

// Shutdown detaches from idle notifications and closes every open span and
// the login session. Once it succeeds further calls do nothing.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil
	}

	for _, unsubscribe := range s.unsubscribes {
		unsubscribe()
	}
	s.unsubscribes = nil
	s.suspended = nil

	if err := s.journal.EndAllUsages(ctx); err != nil {
		return err
	}

	s.shutdown = true
	s.identity.set(0, "")
	s.logger.Info().Msg("Tracking stopped")
	return nil
}

func (s *Service) idleEntered(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}

	for _, category := range s.journal.OpenCategories() {
		if category == usage.CategoryIdle {
			continue
		}
		if err := s.journal.UsageEnded(ctx, category); err != nil {
			s.logger.Error().Err(err).Str("category", category.String()).Msg("Failed to suspend usage")
			continue
		}
		s.suspended = append(s.suspended, category)
	}

	if _, err := s.journal.NewUsage(usage.CategoryIdle); err != nil && !errors.Is(err, usage.ErrAlreadyTracked) {
		s.logger.Error().Err(err).Msg("Failed to open idle span")
	}

	s.logger.Debug().Int("suspended", len(s.suspended)).Msg("Usage suspended while idle")
}

func (s *Service) idleLeft(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}

	if err := s.journal.UsageEnded(ctx, usage.CategoryIdle); err != nil {
		s.logger.Error().Err(err).Msg("Failed to close idle span")
	}

	for _, category := range s.suspended {
		if _, err := s.journal.NewUsage(category); err != nil && !errors.Is(err, usage.ErrAlreadyTracked) {
			s.logger.Error().Err(err).Str("category", category.String()).Msg("Failed to resume usage")
		}
	}

	s.logger.Debug().Int("resumed", len(s.suspended)).Msg("Usage resumed")
	s.suspended = nil
}

// forgetSuspendedLocked must be called with s.mu held.
func (s *Service) forgetSuspendedLocked(category usage.Category) {
	kept := s.suspended[:0]
	for _, c := range s.suspended {
		if c != category {
			kept = append(kept, c)
		}
	}
	s.suspended = kept
}
