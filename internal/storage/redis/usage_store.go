package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
	"github.com/redis/go-redis/v9"
)

type usageStore struct {
	client *redis.Client
	save   *redis.Script
	prune  *redis.Script
}

func newUsageStore(client *redis.Client) *usageStore {
	return &usageStore{
		client: client,
		save:   redis.NewScript(saveRecordScript),
		prune:  redis.NewScript(pruneClosedScript),
	}
}

// SaveNew stores a record that must not exist yet
func (s *usageStore) SaveNew(ctx context.Context, record *usage.Record) error {
	return s.write(ctx, record, "new")
}

// SaveModified overwrites an existing record
func (s *usageStore) SaveModified(ctx context.Context, record *usage.Record) error {
	return s.write(ctx, record, "modified")
}

func (s *usageStore) write(ctx context.Context, record *usage.Record, mode string) error {
	category, err := record.Category.MarshalText()
	if err != nil {
		return err
	}

	current := "0"
	if record.Current {
		current = "1"
	}

	end, endScore := "", ""
	if record.End != nil {
		end = record.End.Format(time.RFC3339Nano)
		endScore = score(*record.End)
	}

	keys := []string{recordKey(record.ID), allIndexKey, userIndexKey(record.UserID), closedKey}
	args := []interface{}{
		record.ID,
		record.UserID,
		string(category),
		record.Start.Format(time.RFC3339Nano),
		end,
		current,
		record.LoginID,
		score(record.Start),
		endScore,
		mode,
	}

	result, err := s.save.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return fmt.Errorf("save usage record %s: %w", record.ID, err)
	}

	switch result {
	case "CONFLICT":
		return fmt.Errorf("usage record %s: %w", record.ID, storage.ErrConflict)
	case "NOTFOUND":
		return fmt.Errorf("usage record %s: %w", record.ID, storage.ErrNotFound)
	}
	return nil
}

// Get retrieves a record by ID
func (s *usageStore) Get(ctx context.Context, id string) (*usage.Record, error) {
	data, err := s.client.HGetAll(ctx, recordKey(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseRecord(data)
}

// List returns records matching filter, newest first
func (s *usageStore) List(ctx context.Context, filter storage.UsageFilter) ([]usage.Record, error) {
	index := allIndexKey
	if filter.UserID != 0 {
		index = userIndexKey(filter.UserID)
	}

	rangeBy := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if filter.StartTime != nil {
		rangeBy.Min = score(*filter.StartTime)
	}
	if filter.EndTime != nil {
		rangeBy.Max = "(" + score(*filter.EndTime)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, index, rangeBy).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []usage.Record{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))

	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, recordKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	records := make([]usage.Record, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			continue
		}

		record, err := parseRecord(data)
		if err != nil || !filter.Match(record) {
			continue
		}
		records = append(records, *record)
	}

	return storage.Page(records, filter), nil
}

// DeleteClosedBefore removes closed records that ended before cutoff
func (s *usageStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	keys := []string{closedKey, allIndexKey}
	args := []interface{}{score(cutoff), recordPrefix, userIndexPrefix}

	deleted, err := s.prune.Run(ctx, s.client, keys, args...).Int()
	if err != nil {
		return 0, fmt.Errorf("prune usage records: %w", err)
	}
	return deleted, nil
}
