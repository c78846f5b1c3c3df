package usage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRetentionDays is how long closed records are kept.
const DefaultRetentionDays = 90

// Pruner deletes closed records that ended before cutoff.
type Pruner interface {
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionScheduler prunes old closed records once a day.
type RetentionScheduler struct {
	pruner        Pruner
	pruneTime     time.Time // Time of day to prune (only hour and minute are used)
	retentionDays int
	clock         Clock
	logger        zerolog.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewRetentionScheduler parses pruneTime as HH:MM.
func NewRetentionScheduler(pruner Pruner, pruneTime string, retentionDays int, logger zerolog.Logger) (*RetentionScheduler, error) {
	if pruner == nil {
		return nil, errors.New("usage: pruner is required")
	}

	parsedTime, err := time.Parse("15:04", pruneTime)
	if err != nil {
		return nil, err
	}

	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	return &RetentionScheduler{
		pruner:        pruner,
		pruneTime:     parsedTime,
		retentionDays: retentionDays,
		clock:         SystemClock{},
		logger:        logger.With().Str("component", "retention-scheduler").Logger(),
		stopChan:      make(chan struct{}),
		done:          make(chan struct{}),
	}, nil
}

// Start begins the scheduler loop.
func (rs *RetentionScheduler) Start() {
	go rs.run()
	rs.logger.Info().
		Str("prune_time", rs.pruneTime.Format("15:04")).
		Int("retention_days", rs.retentionDays).
		Msg("Usage retention scheduler started")
}

// Stop stops the scheduler and waits for an in-flight prune to finish.
func (rs *RetentionScheduler) Stop() {
	rs.stopOnce.Do(func() {
		close(rs.stopChan)
		<-rs.done
		rs.logger.Info().Msg("Usage retention scheduler stopped")
	})
}

func (rs *RetentionScheduler) run() {
	defer close(rs.done)

	for {
		nextPrune := rs.nextPrune()
		waitDuration := nextPrune.Sub(rs.clock.Now())

		rs.logger.Debug().
			Time("next_prune", nextPrune).
			Dur("wait_duration", waitDuration).
			Msg("Scheduled next retention prune")

		timer := time.NewTimer(waitDuration)
		select {
		case <-timer.C:
			rs.Prune(context.Background())
		case <-rs.stopChan:
			timer.Stop()
			return
		}
	}
}

// nextPrune returns the next occurrence of the prune time of day.
func (rs *RetentionScheduler) nextPrune() time.Time {
	now := rs.clock.Now()

	today := time.Date(
		now.Year(), now.Month(), now.Day(),
		rs.pruneTime.Hour(), rs.pruneTime.Minute(), 0, 0,
		now.Location(),
	)

	if now.After(today) {
		return today.AddDate(0, 0, 1)
	}

	return today
}

// Prune deletes closed records older than the retention period.
func (rs *RetentionScheduler) Prune(ctx context.Context) (int, error) {
	cutoff := rs.clock.Now().AddDate(0, 0, -rs.retentionDays)

	deleted, err := rs.pruner.DeleteClosedBefore(ctx, cutoff)
	if err != nil {
		rs.logger.Error().Err(err).Msg("Failed to prune old usage records")
		return 0, err
	}

	rs.logger.Info().
		Int("records_deleted", deleted).
		Time("cutoff", cutoff).
		Msg("Old usage records pruned")

	return deleted, nil
}
