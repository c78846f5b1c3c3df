package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goodtune/activityd/internal/config"
	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	// miniredis.Addr() returns "host:port", so Port stays zero
	cfg := config.RedisConfig{
		Host:         mr.Addr(),
		Port:         0,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 1,
		DialTimeout:  "5s",
		ReadTimeout:  "3s",
		WriteTimeout: "3s",
	}

	store, err := Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open Redis store: %v", err)
	}

	return store, mr
}

func closedRecord(id string, userID int64, category usage.Category, start time.Time, length time.Duration) *usage.Record {
	end := start.Add(length)
	return &usage.Record{
		ID:       id,
		UserID:   userID,
		Category: category,
		Start:    start,
		End:      &end,
		LoginID:  "login-1",
	}
}

func TestUsageStore_SaveNewAndGet(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	record := closedRecord("rec-1", 7, usage.CategoryFocus, start, 90*time.Second)

	if err := store.Usage().SaveNew(ctx, record); err != nil {
		t.Fatalf("SaveNew failed: %v", err)
	}

	retrieved, err := store.Usage().Get(ctx, "rec-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if retrieved.UserID != 7 {
		t.Errorf("Expected UserID 7, got %d", retrieved.UserID)
	}
	if retrieved.Category != usage.CategoryFocus {
		t.Errorf("Expected focus, got %s", retrieved.Category)
	}
	if !retrieved.Start.Equal(start) {
		t.Errorf("Expected start %v, got %v", start, retrieved.Start)
	}
	if retrieved.End == nil || !retrieved.End.Equal(*record.End) {
		t.Errorf("Expected end %v, got %v", record.End, retrieved.End)
	}
	if retrieved.Current {
		t.Error("Expected Current to be false")
	}
	if retrieved.LoginID != "login-1" {
		t.Errorf("Expected login-1, got %q", retrieved.LoginID)
	}
}

func TestUsageStore_SaveNewConflict(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	record := closedRecord("rec-1", 7, usage.CategoryIdle, time.Now(), time.Minute)

	if err := store.Usage().SaveNew(ctx, record); err != nil {
		t.Fatalf("SaveNew failed: %v", err)
	}
	if err := store.Usage().SaveNew(ctx, record); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("Expected ErrConflict, got %v", err)
	}
}

func TestUsageStore_SaveModified(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	login := &usage.Record{
		ID:       "login-1",
		UserID:   7,
		Category: usage.CategoryLogin,
		Start:    start,
		End:      &start,
		Current:  true,
	}

	if err := store.Usage().SaveModified(ctx, login); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound before SaveNew, got %v", err)
	}

	if err := store.Usage().SaveNew(ctx, login); err != nil {
		t.Fatalf("SaveNew failed: %v", err)
	}

	// Current records are never pruning candidates
	if closed, _ := mr.ZMembers(closedKey); len(closed) != 0 {
		t.Errorf("Expected no closed members, got %v", closed)
	}

	end := start.Add(time.Hour)
	login.End = &end
	login.Current = false
	if err := store.Usage().SaveModified(ctx, login); err != nil {
		t.Fatalf("SaveModified failed: %v", err)
	}

	retrieved, err := store.Usage().Get(ctx, "login-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if retrieved.Current {
		t.Error("Expected login to be closed")
	}
	if !retrieved.End.Equal(end) {
		t.Errorf("Expected end %v, got %v", end, retrieved.End)
	}

	closed, err := mr.ZMembers(closedKey)
	if err != nil || len(closed) != 1 || closed[0] != "login-1" {
		t.Errorf("Expected login in closed index, got %v (%v)", closed, err)
	}
}

func TestUsageStore_GetMissing(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	if _, err := store.Usage().Get(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestUsageStore_List(t *testing.T) {
	store, _ := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	records := []*usage.Record{
		closedRecord("a", 7, usage.CategoryFocus, base, time.Minute),
		closedRecord("b", 7, usage.CategoryIdle, base.Add(time.Hour), time.Minute),
		closedRecord("c", 7, usage.CategoryFocus, base.Add(2*time.Hour), time.Minute),
		closedRecord("d", 8, usage.CategoryFocus, base.Add(3*time.Hour), time.Minute),
	}
	for _, r := range records {
		if err := store.Usage().SaveNew(ctx, r); err != nil {
			t.Fatalf("SaveNew %s failed: %v", r.ID, err)
		}
	}

	all, err := store.Usage().List(ctx, storage.UsageFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 4 || all[0].ID != "d" {
		t.Fatalf("Expected 4 records newest first, got %+v", all)
	}

	user7, err := store.Usage().List(ctx, storage.UsageFilter{UserID: 7, Category: usage.CategoryFocus})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(user7) != 2 || user7[0].ID != "c" || user7[1].ID != "a" {
		t.Errorf("Expected [c a], got %+v", user7)
	}

	from := base.Add(30 * time.Minute)
	until := base.Add(150 * time.Minute)
	window, err := store.Usage().List(ctx, storage.UsageFilter{StartTime: &from, EndTime: &until})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(window) != 2 || window[0].ID != "c" || window[1].ID != "b" {
		t.Errorf("Expected [c b], got %+v", window)
	}

	paged, err := store.Usage().List(ctx, storage.UsageFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(paged) != 1 || paged[0].ID != "c" {
		t.Errorf("Expected [c], got %+v", paged)
	}
}

func TestUsageStore_DeleteClosedBefore(t *testing.T) {
	store, mr := setupTestStore(t)
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	old := closedRecord("old", 7, usage.CategoryFocus, base, time.Hour)
	recent := closedRecord("recent", 7, usage.CategoryFocus, base.AddDate(0, 2, 0), time.Hour)
	open := &usage.Record{ID: "login", UserID: 7, Category: usage.CategoryLogin, Start: base, End: &base, Current: true}

	for _, r := range []*usage.Record{old, recent, open} {
		if err := store.Usage().SaveNew(ctx, r); err != nil {
			t.Fatalf("SaveNew %s failed: %v", r.ID, err)
		}
	}

	deleted, err := store.Usage().DeleteClosedBefore(ctx, base.AddDate(0, 1, 0))
	if err != nil {
		t.Fatalf("DeleteClosedBefore failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Expected 1 deleted, got %d", deleted)
	}

	if _, err := store.Usage().Get(ctx, "old"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected old record gone, got %v", err)
	}
	if mr.Exists(recordKey("old")) {
		t.Error("Expected old record key deleted")
	}
	if _, err := store.Usage().Get(ctx, "login"); err != nil {
		t.Errorf("Expected open login kept, got %v", err)
	}

	members, err := mr.ZMembers(userIndexKey(7))
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	for _, m := range members {
		if m == "old" {
			t.Error("Expected old record removed from user index")
		}
	}
}

func TestOpenInvalidTimeout(t *testing.T) {
	_, err := Open(config.RedisConfig{Host: "localhost", DialTimeout: "soon", ReadTimeout: "1s", WriteTimeout: "1s"})
	if err == nil {
		t.Fatal("Expected error for invalid dial timeout")
	}
}

func TestClientOptions(t *testing.T) {
	opts, err := clientOptions(config.RedisConfig{Host: "cache", Port: 6380, DB: 2, ReadTimeout: "2s"})
	if err != nil {
		t.Fatalf("clientOptions failed: %v", err)
	}
	if opts.Addr != "cache:6380" || opts.DB != 2 {
		t.Errorf("Unexpected address or db: %s %d", opts.Addr, opts.DB)
	}
	if opts.ReadTimeout != 2*time.Second || opts.DialTimeout != 0 {
		t.Errorf("Unexpected timeouts: read %v dial %v", opts.ReadTimeout, opts.DialTimeout)
	}

	opts, err = clientOptions(config.RedisConfig{Host: "cache:7000"})
	if err != nil {
		t.Fatalf("clientOptions failed: %v", err)
	}
	if opts.Addr != "cache:7000" {
		t.Errorf("Expected host with port kept as-is, got %s", opts.Addr)
	}
}
