package eventstore

import (
	"errors"
	"fmt"
)

// ErrKind taxonomizes the failure modes the core can surface. Kinds are
// sentinel values so callers can branch with errors.Is rather than string
// matching, mirroring the teacher's domain.AppError{Code, Message, Meta}
// shape but expressed as the standard library's error-wrapping idiom.
type ErrKind string

// Error makes ErrKind usable as a comparison target for errors.Is, so
// callers can write errors.Is(err, eventstore.ErrConflict) directly.
func (k ErrKind) Error() string { return string(k) }

const (
	// ErrIo is a driver-level failure (store, cache, bus). Recoverable by
	// retry at the caller layer.
	ErrIo ErrKind = "io"
	// ErrConflict is an append of a duplicate event id. Fatal for the
	// writer, benign for idempotent replay.
	ErrConflict ErrKind = "conflict"
	// ErrMalformedEnvelope is a decode failure: missing required payload
	// fields, or neither the canonical nor legacy discriminator present.
	ErrMalformedEnvelope ErrKind = "malformed_envelope"
	// ErrUnknownVariant is a decode failure: the (namespace, type) pair has
	// no registered variant.
	ErrUnknownVariant ErrKind = "unknown_variant"
	// ErrDuplicateIDs is a unifier invariant breach: the same event id was
	// read twice across domain sources in a single run.
	ErrDuplicateIDs ErrKind = "duplicate_ids"
	// ErrConfig is a missing or malformed configuration. Fatal at startup.
	ErrConfig ErrKind = "config"
)

// StoreError carries structured context about a failed operation: which
// operation, which key (event id, cache key, topic...), and the kind and
// underlying cause.
type StoreError struct {
	Kind ErrKind
	Op   string
	Key  string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("eventstore: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("eventstore: %s %q: %s: %v", e.Op, e.Key, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrConflict) work directly against a *StoreError,
// by treating the ErrKind sentinels as comparison targets.
func (e *StoreError) Is(target error) bool {
	if k, ok := target.(ErrKind); ok {
		return e.Kind == k
	}
	return false
}

func newErr(kind ErrKind, op, key string, cause error) error {
	return &StoreError{Kind: kind, Op: op, Key: key, Err: cause}
}

// KindOf extracts the ErrKind from err, if any StoreError is present
// anywhere in its chain.
func KindOf(err error) (ErrKind, bool) {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}
