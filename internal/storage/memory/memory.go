// Package memory keeps usage records in a bounded in-process LRU cache.
// The least recently written record is evicted once the cache is full.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultSize is the record capacity used when size is not positive.
const DefaultSize = 10000

// Store implements storage.Store in memory.
type Store struct {
	usageStore *usageStore
}

// Open creates a store holding at most size records.
func Open(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}

	cache, err := lru.New[string, *usage.Record](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create record cache: %w", err)
	}

	return &Store{usageStore: &usageStore{records: cache}}, nil
}

// Close drops every record.
func (s *Store) Close() error {
	s.usageStore.records.Purge()
	return nil
}

// Usage returns the UsageStore implementation.
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

type usageStore struct {
	mu      sync.Mutex
	records *lru.Cache[string, *usage.Record]
}

func (s *usageStore) SaveNew(_ context.Context, record *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records.Contains(record.ID) {
		return fmt.Errorf("usage record %s: %w", record.ID, storage.ErrConflict)
	}
	s.records.Add(record.ID, record.Clone())
	return nil
}

func (s *usageStore) SaveModified(_ context.Context, record *usage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.records.Contains(record.ID) {
		return fmt.Errorf("usage record %s: %w", record.ID, storage.ErrNotFound)
	}
	s.records.Add(record.ID, record.Clone())
	return nil
}

func (s *usageStore) Get(_ context.Context, id string) (*usage.Record, error) {
	record, ok := s.records.Peek(id)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return record.Clone(), nil
}

func (s *usageStore) List(_ context.Context, filter storage.UsageFilter) ([]usage.Record, error) {
	records := []usage.Record{}
	for _, id := range s.records.Keys() {
		record, ok := s.records.Peek(id)
		if !ok || !filter.Match(record) {
			continue
		}
		records = append(records, *record.Clone())
	}
	return storage.Page(records, filter), nil
}

func (s *usageStore) DeleteClosedBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range s.records.Keys() {
		record, ok := s.records.Peek(id)
		if !ok || record.Current || record.End == nil || !record.End.Before(cutoff) {
			continue
		}
		if s.records.Remove(id) {
			deleted++
		}
	}
	return deleted, nil
}
