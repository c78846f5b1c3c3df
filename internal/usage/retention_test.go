package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type fakePruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *fakePruner) DeleteClosedBefore(_ context.Context, cutoff time.Time) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	p.cutoffs = append(p.cutoffs, cutoff)
	return 3, nil
}

func TestNewRetentionSchedulerValidation(t *testing.T) {
	if _, err := NewRetentionScheduler(nil, "03:00", 30, zerolog.Nop()); err == nil {
		t.Error("Expected error for nil pruner")
	}
	if _, err := NewRetentionScheduler(&fakePruner{}, "3am", 30, zerolog.Nop()); err == nil {
		t.Error("Expected error for invalid time of day")
	}

	rs, err := NewRetentionScheduler(&fakePruner{}, "03:00", 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionScheduler failed: %v", err)
	}
	if rs.retentionDays != DefaultRetentionDays {
		t.Errorf("Expected default retention %d, got %d", DefaultRetentionDays, rs.retentionDays)
	}
}

func TestRetentionNextPrune(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "before prune time",
			now:  time.Date(2026, 3, 14, 1, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 14, 3, 30, 0, 0, time.UTC),
		},
		{
			name: "after prune time",
			now:  time.Date(2026, 3, 14, 4, 0, 0, 0, time.UTC),
			want: time.Date(2026, 3, 15, 3, 30, 0, 0, time.UTC),
		},
		{
			name: "month boundary",
			now:  time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC),
			want: time.Date(2026, 4, 1, 3, 30, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs, err := NewRetentionScheduler(&fakePruner{}, "03:30", 30, zerolog.Nop())
			if err != nil {
				t.Fatalf("NewRetentionScheduler failed: %v", err)
			}
			rs.clock = NewManualClock(tt.now)

			if got := rs.nextPrune(); !got.Equal(tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRetentionPrune(t *testing.T) {
	pruner := &fakePruner{}
	rs, err := NewRetentionScheduler(pruner, "03:00", 30, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionScheduler failed: %v", err)
	}
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	rs.clock = NewManualClock(now)

	deleted, err := rs.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("Expected 3 deleted, got %d", deleted)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if len(pruner.cutoffs) != 1 || !pruner.cutoffs[0].Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, pruner.cutoffs)
	}

	pruner.err = errors.New("locked")
	if _, err := rs.Prune(context.Background()); err == nil {
		t.Error("Expected prune error")
	}
}

func TestRetentionStartStop(t *testing.T) {
	rs, err := NewRetentionScheduler(&fakePruner{}, "03:00", 30, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRetentionScheduler failed: %v", err)
	}

	rs.Start()
	rs.Stop()
	rs.Stop()
}
