package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver.
)

// schema is the DDL executed on startup (idempotent via IF NOT EXISTS).
const schema = `
CREATE TABLE IF NOT EXISTS memories (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id    INTEGER NOT NULL,
    content    TEXT NOT NULL,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memories_user ON memories(user_id);
`

// SQLiteStore is a keyword-matching memory store. Matching is naive
// case-insensitive substring search over the query's whitespace-separated
// terms; good enough until an embedding-based retriever replaces it.
type SQLiteStore struct {
	db     *sql.DB
	max    int
	logger *slog.Logger
}

// NewSQLiteStore prepares the memory schema on an open database handle.
// The handle is shared with the identity store; the caller owns its
// lifecycle.
func NewSQLiteStore(db *sql.DB, maxResults int, logger *slog.Logger) (*SQLiteStore, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("memory: create schema: %w", err)
	}
	return &SQLiteStore{
		db:     db,
		max:    maxResults,
		logger: logger.With("component", "memory"),
	}, nil
}

// Remember persists a new memory snippet for the user.
func (s *SQLiteStore) Remember(ctx context.Context, userID int64, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return fmt.Errorf("memory: empty content")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memories (user_id, content, created_at) VALUES (?, ?, ?)`,
		userID, content, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("memory: saving memory for user %d: %w", userID, err)
	}

	s.logger.Info("memory saved", "user_id", userID)
	return nil
}

// Retrieve returns the user's memories whose content matches any query
// term, newest first, capped at the configured maximum. Falls back to the
// user's most recent memories when the query has no usable terms.
func (s *SQLiteStore) Retrieve(ctx context.Context, userID int64, queryText string) ([]string, error) {
	terms := queryTerms(queryText)

	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM memories WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("memory: querying memories for user %d: %w", userID, err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("memory: scanning memory row: %w", err)
		}
		if len(terms) == 0 || matchesAny(content, terms) {
			results = append(results, content)
			if len(results) >= s.max {
				break
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: iterating memories: %w", err)
	}

	return results, nil
}

// List returns all memories of a user, newest first.
func (s *SQLiteStore) List(ctx context.Context, userID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT content FROM memories WHERE user_id = ? ORDER BY id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("memory: listing memories for user %d: %w", userID, err)
	}
	defer rows.Close()

	var results []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("memory: scanning memory row: %w", err)
		}
		results = append(results, content)
	}
	return results, rows.Err()
}

// queryTerms splits a query into lowercase search terms, dropping
// single-character noise.
func queryTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(f)) > 1 {
			terms = append(terms, f)
		}
	}
	return terms
}

func matchesAny(content string, terms []string) bool {
	lower := strings.ToLower(content)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

var _ Retriever = (*SQLiteStore)(nil)
