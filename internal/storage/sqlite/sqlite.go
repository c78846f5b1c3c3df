// Package sqlite stores usage records in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/goodtune/activityd/internal/database"
	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
)

// Store implements storage.Store on SQLite.
type Store struct {
	db         *database.DB
	usageStore *usageStore
}

// Open creates the database directory if needed and opens path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := storage.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	db, err := database.New(path)
	if err != nil {
		return nil, err
	}

	return &Store{
		db:         db,
		usageStore: &usageStore{db: db},
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Usage returns the UsageStore implementation.
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

type usageStore struct {
	db *database.DB
}

const recordColumns = "id, user_id, category, start_at, end_at, current, login_id"

func (s *usageStore) SaveNew(ctx context.Context, record *usage.Record) error {
	args, err := recordArgs(record)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO usage_records ("+recordColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		args...)
	if err != nil {
		return fmt.Errorf("insert usage record %s: %w", record.ID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("usage record %s: %w", record.ID, storage.ErrConflict)
	}
	return nil
}

func (s *usageStore) SaveModified(ctx context.Context, record *usage.Record) error {
	args, err := recordArgs(record)
	if err != nil {
		return err
	}

	// id moves to the WHERE clause
	args = append(args[1:], record.ID)

	result, err := s.db.ExecContext(ctx, `
		UPDATE usage_records
		SET user_id = ?, category = ?, start_at = ?, end_at = ?, current = ?, login_id = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("update usage record %s: %w", record.ID, err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("usage record %s: %w", record.ID, storage.ErrNotFound)
	}
	return nil
}

func (s *usageStore) Get(ctx context.Context, id string) (*usage.Record, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM usage_records WHERE id = ?", id)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return record, err
}

func (s *usageStore) List(ctx context.Context, filter storage.UsageFilter) ([]usage.Record, error) {
	var (
		where []string
		args  []interface{}
	)

	if filter.UserID != 0 {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Category != 0 {
		category, err := filter.Category.MarshalText()
		if err != nil {
			return nil, err
		}
		where = append(where, "category = ?")
		args = append(args, string(category))
	}
	if filter.StartTime != nil {
		where = append(where, "start_at >= ?")
		args = append(args, filter.StartTime.UnixNano())
	}
	if filter.EndTime != nil {
		where = append(where, "start_at < ?")
		args = append(args, filter.EndTime.UnixNano())
	}

	query := "SELECT " + recordColumns + " FROM usage_records"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_at DESC"

	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query usage records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []usage.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}

	return records, rows.Err()
}

func (s *usageStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM usage_records
		WHERE current = 0 AND end_at IS NOT NULL AND end_at < ?
	`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune usage records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

func recordArgs(record *usage.Record) ([]interface{}, error) {
	category, err := record.Category.MarshalText()
	if err != nil {
		return nil, err
	}

	var end sql.NullInt64
	if record.End != nil {
		end = sql.NullInt64{Int64: record.End.UnixNano(), Valid: true}
	}

	current := 0
	if record.Current {
		current = 1
	}

	return []interface{}{
		record.ID,
		record.UserID,
		string(category),
		record.Start.UnixNano(),
		end,
		current,
		record.LoginID,
	}, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*usage.Record, error) {
	var (
		record   usage.Record
		category string
		start    int64
		end      sql.NullInt64
		current  int
	)

	if err := row.Scan(&record.ID, &record.UserID, &category, &start, &end, &current, &record.LoginID); err != nil {
		return nil, err
	}

	parsed, err := usage.ParseCategory(category)
	if err != nil {
		return nil, fmt.Errorf("usage record %s: %w", record.ID, err)
	}

	record.Category = parsed
	record.Start = time.Unix(0, start).UTC()
	record.Current = current == 1
	if end.Valid {
		t := time.Unix(0, end.Int64).UTC()
		record.End = &t
	}

	return &record, nil
}
