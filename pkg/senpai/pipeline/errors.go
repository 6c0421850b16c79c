// Package pipeline turns an inbound chat message into a persona prompt and
// a model completion into reply text. The stages run strictly in sequence:
// identity/history/memory assembly, template rendering, completion. Memory
// retrieval failures degrade to an empty memory list; every other stage
// failure propagates to the caller as a typed error, unretried.
package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel errors for completion outcomes.
var (
	// ErrEmptyCompletion means the backend answered successfully but
	// returned no usable text. Distinct from a hard backend failure so
	// callers can degrade differently.
	ErrEmptyCompletion = errors.New("completion backend returned no usable text")

	// ErrRateLimited marks a backend rejection due to quota/rate limits.
	// Always delivered wrapped in a BackendError.
	ErrRateLimited = errors.New("completion backend rate limited")
)

// BackendError wraps any completion backend failure (transport, auth,
// quota, timeout). The native SDK error never crosses this boundary
// unwrapped.
type BackendError struct {
	Cause error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("completion backend failure: %v", e.Cause)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// TemplateError reports a prompt template referencing a placeholder the
// renderer does not supply.
type TemplateError struct {
	Placeholder string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt template references unsupplied placeholder {%s}", e.Placeholder)
}
