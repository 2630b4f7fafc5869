// ===============================
// internal/models/errors.go - Shared Error Taxonomy
// ===============================

package models

import (
	"errors"
	"fmt"
	"time"
)

// Recoverable errors re-prompt the operator/user; fatal errors terminate the
// current operation with a single reason message.
var (
	ErrNotFound          = errors.New("not_found")
	ErrIncompleteRange   = errors.New("incomplete_range")
	ErrMissingProvenance = errors.New("missing_provenance")
	ErrChannelMismatch   = errors.New("channel_mismatch")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrUnreachable       = errors.New("unreachable")
)

// RateLimitedError is transient: the delivery engine waits out RetryAfter and
// retries the same message. It is never surfaced to users as a failure.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate_limited: retry after %s", e.RetryAfter)
}

// IsRecoverable reports whether an error should produce a corrective prompt
// instead of aborting the session.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrIncompleteRange) ||
		errors.Is(err, ErrMissingProvenance) ||
		errors.Is(err, ErrChannelMismatch)
}
