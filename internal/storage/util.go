package storage

import (
	"os"
	"sort"

	"github.com/goodtune/activityd/internal/usage"
)

// EnsureDir ensures a directory exists with default permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// Page sorts records newest first and applies the filter's offset and limit.
func Page(records []usage.Record, filter UsageFilter) []usage.Record {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Start.After(records[j].Start)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(records) {
			return []usage.Record{}
		}
		records = records[filter.Offset:]
	}
	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records
}
