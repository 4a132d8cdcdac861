package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite via modernc.org/sqlite (pure Go).
type SQLiteStore struct {
	db *sql.DB
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the journal at dbPath. Use ":memory:"
// for testing.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: ping database: %w", err)
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS exchanges (
			id            TEXT PRIMARY KEY,
			method        TEXT NOT NULL,
			url           TEXT NOT NULL,
			status        INTEGER NOT NULL,
			exchange_json TEXT NOT NULL,
			created_at    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_created_at ON exchanges(created_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal: create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Save persists ex. An empty ID is filled with a new UUID and a zero
// CreatedAt with the current time. Saving an existing ID replaces it.
func (s *SQLiteStore) Save(ctx context.Context, ex *Exchange) error {
	if ex.ID == "" {
		ex.ID = uuid.New().String()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("journal: marshal exchange: %w", err)
	}

	query := `
		INSERT INTO exchanges (id, method, url, status, exchange_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			method        = excluded.method,
			url           = excluded.url,
			status        = excluded.status,
			exchange_json = excluded.exchange_json
	`
	_, err = s.db.ExecContext(ctx, query,
		ex.ID,
		ex.Method,
		ex.URL,
		ex.Status,
		string(data),
		ex.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("journal: save exchange: %w", err)
	}
	return nil
}

// LoadByID returns the exchange with the given ID, or (nil, nil) when it
// does not exist.
func (s *SQLiteStore) LoadByID(ctx context.Context, id string) (*Exchange, error) {
	row := s.db.QueryRowContext(ctx, `SELECT exchange_json FROM exchanges WHERE id = ?`, id)

	var data string
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("journal: scan row: %w", err)
	}

	var ex Exchange
	if err := json.Unmarshal([]byte(data), &ex); err != nil {
		return nil, fmt.Errorf("journal: unmarshal exchange: %w", err)
	}
	return &ex, nil
}

// List returns summaries, newest first. limit <= 0 returns every exchange.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]*Summary, error) {
	query := `SELECT id, method, url, status, created_at FROM exchanges ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: list exchanges: %w", err)
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var (
			sum       Summary
			createdAt string
		)
		if err := rows.Scan(&sum.ID, &sum.Method, &sum.URL, &sum.Status, &createdAt); err != nil {
			return nil, fmt.Errorf("journal: scan summary row: %w", err)
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("journal: parse created_at %q: %w", createdAt, err)
		}
		sum.CreatedAt = t
		summaries = append(summaries, &sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterate rows: %w", err)
	}
	return summaries, nil
}

// Delete removes an exchange by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE id = ?`, id); err != nil {
		return fmt.Errorf("journal: delete exchange: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Cleanup removes exchanges recorded more than maxAge ago and returns how
// many were deleted.
func (s *SQLiteStore) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-maxAge).Format(timeLayout)

	result, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: cleanup exchanges: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: rows affected: %w", err)
	}
	return deleted, nil
}
