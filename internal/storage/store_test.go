package storage

import (
	"testing"
	"time"

	"github.com/goodtune/activityd/internal/usage"
)

func TestUsageFilterMatch(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	record := &usage.Record{ID: "a", UserID: 7, Category: usage.CategoryFocus, Start: base}
	before := base.Add(-time.Hour)
	after := base.Add(time.Hour)

	tests := []struct {
		name   string
		filter UsageFilter
		want   bool
	}{
		{"empty", UsageFilter{}, true},
		{"user match", UsageFilter{UserID: 7}, true},
		{"user mismatch", UsageFilter{UserID: 8}, false},
		{"category match", UsageFilter{Category: usage.CategoryFocus}, true},
		{"category mismatch", UsageFilter{Category: usage.CategoryIdle}, false},
		{"inside window", UsageFilter{StartTime: &before, EndTime: &after}, true},
		{"starts after window", UsageFilter{EndTime: &base}, false},
		{"starts before window", UsageFilter{StartTime: &after}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(record); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	records := []usage.Record{
		{ID: "old", Start: base},
		{ID: "new", Start: base.Add(2 * time.Hour)},
		{ID: "mid", Start: base.Add(time.Hour)},
	}

	got := Page(append([]usage.Record(nil), records...), UsageFilter{})
	if got[0].ID != "new" || got[1].ID != "mid" || got[2].ID != "old" {
		t.Errorf("Expected newest first, got %v %v %v", got[0].ID, got[1].ID, got[2].ID)
	}

	got = Page(append([]usage.Record(nil), records...), UsageFilter{Offset: 1, Limit: 1})
	if len(got) != 1 || got[0].ID != "mid" {
		t.Errorf("Expected [mid], got %+v", got)
	}

	got = Page(append([]usage.Record(nil), records...), UsageFilter{Offset: 5})
	if len(got) != 0 {
		t.Errorf("Expected empty page, got %d", len(got))
	}
}
