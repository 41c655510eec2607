package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/memberdesk/internal/model"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// An in-memory database is per-connection; pin the pool to one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetWatermark reads the persisted watermark for a feed.
func (s *SQLiteStore) GetWatermark(
	ctx context.Context,
	kind model.FeedKind,
) (int64, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT last_seen FROM watermarks WHERE feed = ?", string(kind),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("getting watermark %s: %w", kind, err)
	}
	return id, nil
}

// SetWatermark inserts or replaces the watermark for a feed.
func (s *SQLiteStore) SetWatermark(
	ctx context.Context,
	kind model.FeedKind,
	id int64,
) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO watermarks (feed, last_seen, updated_at)
		VALUES (?, ?, ?)`,
		string(kind), id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("setting watermark %s: %w", kind, err)
	}
	return nil
}

// DeleteWatermark removes the watermark row for a feed.
func (s *SQLiteStore) DeleteWatermark(ctx context.Context, kind model.FeedKind) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM watermarks WHERE feed = ?", string(kind))
	if err != nil {
		return fmt.Errorf("deleting watermark %s: %w", kind, err)
	}
	return nil
}

// watermarkRow maps a row of the watermarks table.
type watermarkRow struct {
	Feed     string `db:"feed"`
	LastSeen int64  `db:"last_seen"`
}

// ListWatermarks returns all persisted watermarks.
func (s *SQLiteStore) ListWatermarks(ctx context.Context) (map[model.FeedKind]int64, error) {
	var rows []watermarkRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT feed, last_seen FROM watermarks ORDER BY feed"); err != nil {
		return nil, fmt.Errorf("listing watermarks: %w", err)
	}

	out := make(map[model.FeedKind]int64, len(rows))
	for _, r := range rows {
		out[model.FeedKind(r.Feed)] = r.LastSeen
	}
	return out, nil
}
