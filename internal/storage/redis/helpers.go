package redis

import (
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
)

const (
	recordPrefix    = "activityd:record:"
	userIndexPrefix = "activityd:usage:user:"
	allIndexKey     = "activityd:usage:all"
	closedKey       = "activityd:usage:closed"
)

func recordKey(id string) string {
	return recordPrefix + id
}

func userIndexKey(userID int64) string {
	return userIndexPrefix + strconv.FormatInt(userID, 10)
}

// score converts a time to a sorted set score in milliseconds.
func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// parseRecord converts a Redis hash to a usage record
func parseRecord(data map[string]string) (*usage.Record, error) {
	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	userID, err := strconv.ParseInt(data["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user_id: %w", err)
	}

	category, err := usage.ParseCategory(data["category"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse category: %w", err)
	}

	start, err := time.Parse(time.RFC3339Nano, data["start"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse start: %w", err)
	}

	record := &usage.Record{
		ID:       data["id"],
		UserID:   userID,
		Category: category,
		Start:    start,
		Current:  data["current"] == "1",
		LoginID:  data["login_id"],
	}

	if raw := data["end"]; raw != "" {
		end, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse end: %w", err)
		}
		record.End = &end
	}

	return record, nil
}
