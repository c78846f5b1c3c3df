package usage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/goodtune/activityd/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrAlreadyTracked is returned when opening a category that is already open.
	ErrAlreadyTracked = errors.New("usage: category already tracked")

	// ErrAlreadyLoggedIn is returned when logging in twice without EndAllUsages.
	ErrAlreadyLoggedIn = errors.New("usage: login session already open")

	// ErrInvalidCategory is returned for unknown categories, or for the login
	// category where only LoginUser may create it.
	ErrInvalidCategory = errors.New("usage: invalid category")
)

// Repository durably stores usage records.
type Repository interface {
	SaveNew(ctx context.Context, record *Record) error
	SaveModified(ctx context.Context, record *Record) error
}

// Identity supplies the user and tracking session that new records belong to.
type Identity interface {
	UserID() int64
	SessionID() string
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(j *Journal) {
		j.clock = clock
	}
}

// WithLogger sets the journal logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(j *Journal) {
		j.logger = logger
	}
}

// Journal keeps the open usage record for each category and the current
// login session. Every close performs exactly one repository write.
type Journal struct {
	repo     Repository
	identity Identity
	clock    Clock
	logger   zerolog.Logger

	mu    sync.Mutex
	open  map[Category]*Record
	login *Record
}

// NewJournal creates an empty journal.
func NewJournal(repo Repository, identity Identity, opts ...Option) *Journal {
	j := &Journal{
		repo:     repo,
		identity: identity,
		clock:    SystemClock{},
		logger:   zerolog.Nop(),
		open:     make(map[Category]*Record),
	}
	for _, opt := range opts {
		opt(j)
	}
	j.logger = j.logger.With().Str("component", "usage-journal").Logger()
	return j
}

// LoginUser creates and persists the login record for userID. The record's
// end is set to its start now and overwritten by EndAllUsages.
func (j *Journal) LoginUser(ctx context.Context, userID int64) (*Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.login != nil {
		return nil, fmt.Errorf("login user %d: %w", userID, ErrAlreadyLoggedIn)
	}

	now := j.clock.Now()
	end := now
	record := &Record{
		ID:       uuid.NewString(),
		UserID:   userID,
		Category: CategoryLogin,
		Start:    now,
		End:      &end,
		Current:  true,
	}

	if err := j.repo.SaveNew(ctx, record.Clone()); err != nil {
		return nil, fmt.Errorf("save login record: %w", err)
	}

	j.login = record

	j.logger.Info().
		Int64("user_id", userID).
		Str("login_id", record.ID).
		Msg("User logged in")

	return record.Clone(), nil
}

// NewUsage opens a record for category. The record is persisted when closed.
func (j *Journal) NewUsage(category Category) (*Record, error) {
	if !category.Valid() || category == CategoryLogin {
		return nil, fmt.Errorf("open %s: %w", category, ErrInvalidCategory)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if _, exists := j.open[category]; exists {
		return nil, fmt.Errorf("open %s: %w", category, ErrAlreadyTracked)
	}

	record := &Record{
		ID:       uuid.NewString(),
		UserID:   j.identity.UserID(),
		Category: category,
		Start:    j.clock.Now(),
		Current:  true,
		LoginID:  j.identity.SessionID(),
	}
	j.open[category] = record
	metrics.UsageOpen.Set(float64(len(j.open)))

	j.logger.Debug().
		Str("category", category.String()).
		Str("usage_id", record.ID).
		Msg("Usage opened")

	return record.Clone(), nil
}

// UsageEnded closes and persists the open record for category, if any.
func (j *Journal) UsageEnded(ctx context.Context, category Category) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	record, exists := j.open[category]
	if !exists {
		return nil
	}

	_, err := j.closeLocked(ctx, record)
	return err
}

// EndAllUsages closes every open record and then the login session.
// It stops at the first repository failure and returns it.
func (j *Journal) EndAllUsages(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var latest time.Time
	for _, category := range j.openCategoriesLocked() {
		end, err := j.closeLocked(ctx, j.open[category])
		if err != nil {
			return err
		}
		if end.After(latest) {
			latest = end
		}
	}

	if j.login == nil {
		return nil
	}

	end := j.clock.Now()
	if end.Before(latest) {
		end = latest
	}
	if end.Before(j.login.Start) {
		end = j.login.Start
	}

	closed := j.login.Clone()
	closed.Current = false
	closed.End = &end

	if err := j.repo.SaveModified(ctx, closed); err != nil {
		return fmt.Errorf("save login record: %w", err)
	}

	j.login = nil
	metrics.UsageClosed.WithLabelValues(CategoryLogin.String()).Inc()

	j.logger.Info().
		Int64("user_id", closed.UserID).
		Str("login_id", closed.ID).
		Dur("duration", end.Sub(closed.Start)).
		Msg("Login session closed")

	return nil
}

// Open returns a copy of the open record for category.
func (j *Journal) Open(category Category) (*Record, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	record, ok := j.open[category]
	if !ok {
		return nil, false
	}
	return record.Clone(), true
}

// OpenCategories returns the categories with an open record, in order.
func (j *Journal) OpenCategories() []Category {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.openCategoriesLocked()
}

// Login returns a copy of the current login record.
func (j *Journal) Login() (*Record, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.login == nil {
		return nil, false
	}
	return j.login.Clone(), true
}

func (j *Journal) openCategoriesLocked() []Category {
	categories := make([]Category, 0, len(j.open))
	for category := range j.open {
		categories = append(categories, category)
	}
	sort.Slice(categories, func(a, b int) bool { return categories[a] < categories[b] })
	return categories
}

// closeLocked must be called with j.mu held.
func (j *Journal) closeLocked(ctx context.Context, record *Record) (time.Time, error) {
	end := j.clock.Now()
	if end.Before(record.Start) {
		end = record.Start
	}

	record.End = &end
	record.Current = false
	delete(j.open, record.Category)
	metrics.UsageOpen.Set(float64(len(j.open)))

	if err := j.repo.SaveNew(ctx, record.Clone()); err != nil {
		return end, fmt.Errorf("save %s usage: %w", record.Category, err)
	}

	metrics.UsageClosed.WithLabelValues(record.Category.String()).Inc()

	j.logger.Debug().
		Str("category", record.Category.String()).
		Str("usage_id", record.ID).
		Dur("duration", end.Sub(record.Start)).
		Msg("Usage closed")

	return end, nil
}
