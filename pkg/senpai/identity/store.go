// Package identity persists one profile per platform user and keeps the
// display attributes in sync on every contact. The store is the only shared
// mutable resource of the response pipeline; all access goes through
// database/sql's pooled connections, one statement sequence per call.
package identity

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on every startup (idempotent via IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS members (
    id           INTEGER PRIMARY KEY,
    name         TEXT NOT NULL,
    display_name TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    updated_at   TEXT NOT NULL
);
`

// timeLayout is how timestamps are stored (RFC 3339, UTC).
const timeLayout = time.RFC3339

// Profile is a persisted member record.
type Profile struct {
	ID          int64
	Name        string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store provides get-or-create access to member profiles.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the member database at the given path and
// prepares the schema. Enables WAL mode for concurrent read performance.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		path = "./data/senpai.db"
	}
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, logger: logger.With("component", "identity")}, nil
}

// NewStore wraps an already-open database (used by packages that share the
// same file, e.g. the memory store) and prepares the schema.
func NewStore(db *sql.DB, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, logger: logger.With("component", "identity")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for co-located stores.
func (s *Store) DB() *sql.DB { return s.db }

// GetOrCreate looks up a profile by id, creating it on first contact and
// re-syncing name/display_name when they drift. Returns the profile and
// whether it was newly created.
//
// First contact uses INSERT OR IGNORE, so two concurrent first contacts for
// the same id cannot produce duplicate rows: exactly one insert wins and
// the loser falls through to the update path.
func (s *Store) GetOrCreate(ctx context.Context, id int64, name, displayName string) (*Profile, bool, error) {
	if id <= 0 {
		return nil, false, fmt.Errorf("identity: invalid member id %d", id)
	}
	if displayName == "" {
		displayName = name
	}

	now := time.Now().UTC()
	nowStr := now.Format(timeLayout)

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO members (id, name, display_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, name, displayName, nowStr, nowStr)
	if err != nil {
		return nil, false, fmt.Errorf("identity: inserting member %d: %w", id, err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		s.logger.Info("member created", "id", id, "name", name)
		return &Profile{
			ID:          id,
			Name:        name,
			DisplayName: displayName,
			CreatedAt:   now,
			UpdatedAt:   now,
		}, true, nil
	}

	// Row already existed: fetch it and re-sync names if they drifted.
	profile, err := s.get(ctx, id)
	if err != nil {
		return nil, false, err
	}

	if profile.Name != name || profile.DisplayName != displayName {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE members SET name = ?, display_name = ?, updated_at = ? WHERE id = ?`,
			name, displayName, nowStr, id); err != nil {
			return nil, false, fmt.Errorf("identity: updating member %d: %w", id, err)
		}
		profile.Name = name
		profile.DisplayName = displayName
		profile.UpdatedAt = now
		s.logger.Debug("member attributes re-synced", "id", id, "name", name)
	}

	return profile, false, nil
}

// Get returns the profile for id, or sql.ErrNoRows wrapped if absent.
func (s *Store) Get(ctx context.Context, id int64) (*Profile, error) {
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id int64) (*Profile, error) {
	var (
		p                  Profile
		createdS, updatedS string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, created_at, updated_at FROM members WHERE id = ?`,
		id).Scan(&p.ID, &p.Name, &p.DisplayName, &createdS, &updatedS)
	if err != nil {
		return nil, fmt.Errorf("identity: fetching member %d: %w", id, err)
	}

	p.CreatedAt, _ = time.Parse(timeLayout, createdS)
	p.UpdatedAt, _ = time.Parse(timeLayout, updatedS)
	return &p, nil
}

// Count returns the number of stored profiles.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("identity: counting members: %w", err)
	}
	return n, nil
}
