// Package memory provides long-term memory retrieval for the response
// pipeline. Retrieval is best-effort by contract: the pipeline absorbs
// retriever failures and degrades to an empty memory list, so an
// implementation never needs to be reliable, only bounded.
//
// Two implementations ship today: a static stub for testing and demos, and
// a sqlite-backed keyword store. A future variant can swap in embedding
// similarity search behind the same interface.
package memory

import "context"

// DefaultMaxResults caps how many memories a retriever returns per query.
const DefaultMaxResults = 5

// Retriever surfaces long-term memory snippets relevant to a query.
type Retriever interface {
	// Retrieve returns up to an implementation-defined number of memory
	// snippets relevant to queryText for the given user, most relevant
	// first. An empty slice means no matches; that is not an error.
	Retrieve(ctx context.Context, userID int64, queryText string) ([]string, error)
}

// Static is a canned-memory retriever used for demos and tests.
type Static struct {
	entries []string
	max     int
}

// NewStatic creates a static retriever over the given entries. A nil or
// empty slice yields a retriever that always returns nothing.
func NewStatic(entries []string, maxResults int) *Static {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	return &Static{entries: entries, max: maxResults}
}

// Retrieve returns the canned entries regardless of user or query, capped.
func (s *Static) Retrieve(_ context.Context, _ int64, _ string) ([]string, error) {
	n := len(s.entries)
	if n > s.max {
		n = s.max
	}
	out := make([]string, n)
	copy(out, s.entries[:n])
	return out, nil
}

var _ Retriever = (*Static)(nil)
