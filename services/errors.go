// services/errors.go
package services

import (
	"errors"
	"fmt"
	"time"
)

// Error taxonomy for the event pipeline. Validation and quota errors are
// expected and surfaced to the caller; transient storage errors are retried
// by the caller with the same idempotency key; invariant violations abort the
// mutation and must never be swallowed.

// ErrNotFound is returned by lookups for missing records. Idempotency-key
// collisions are not errors; Append reports them via AppendResult.Duplicate
// with the original record.
var ErrNotFound = errors.New("record not found")

// ValidationError rejects a malformed event or request synchronously
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// QuotaExceededError is a rate-limiter denial. RetryAfter tells the caller
// when one unit of capacity will have refilled; zero means blocked
// indefinitely by an administrator.
type QuotaExceededError struct {
	ActorID    string
	Action     string
	RetryAfter time.Duration
	Blocked    bool
}

func (e *QuotaExceededError) Error() string {
	if e.Blocked {
		return fmt.Sprintf("actor %s is blocked for action %s", e.ActorID, e.Action)
	}
	return fmt.Sprintf("quota exceeded for actor %s action %s, retry after %s", e.ActorID, e.Action, e.RetryAfter)
}

// TransientStorageError wraps an I/O failure that is safe to retry with the
// same idempotency key
type TransientStorageError struct {
	Op  string
	Err error
}

func (e *TransientStorageError) Error() string {
	return fmt.Sprintf("transient storage failure during %s: %v", e.Op, e.Err)
}

func (e *TransientStorageError) Unwrap() error { return e.Err }

// InvariantViolationError indicates a deeper bug (negative counter, campaign
// progressing past completed). Fatal to the operation, logged loudly, never
// silently corrected.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated (%s): %s", e.Invariant, e.Detail)
}
