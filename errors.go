// Package gasdb is a MongoDB-style document database engine over a pluggable
// blob-store backend. Clients open a Database, obtain named Collections, and
// perform CRUD with the filter grammar implemented by package query and the
// update grammar implemented by package update.
package gasdb

import (
	"errors"
	"fmt"
)

// Kind classifies the errors this module raises. Callers are expected to
// match on the sentinel values below with errors.Is, not on concrete types.
type Kind string

const (
	KindInvalidArgument    Kind = "InvalidArgument"
	KindInvalidQuery       Kind = "InvalidQuery"
	KindInvalidUpdate      Kind = "InvalidUpdate"
	KindInvalidDocument    Kind = "InvalidDocument"
	KindDuplicateKey       Kind = "DuplicateKey"
	KindNotFound           Kind = "NotFound"
	KindImmutableField     Kind = "ImmutableField"
	KindLockTimeout        Kind = "LockTimeout"
	KindConflict           Kind = "Conflict"
	KindBackendUnavailable Kind = "BackendUnavailable"
	KindInternalError      Kind = "InternalError"
)

// Sentinel errors, one per Kind, for errors.Is matching. Detail-carrying
// wrapper errors below all report Is(target) true against their own
// sentinel, mirroring the teacher's VersionError/ErrVersionMismatch pairing.
var (
	ErrInvalidArgument    = errors.New("gasdb: invalid argument")
	ErrInvalidQuery       = errors.New("gasdb: invalid query")
	ErrInvalidUpdate      = errors.New("gasdb: invalid update")
	ErrInvalidDocument    = errors.New("gasdb: invalid document")
	ErrDuplicateKey       = errors.New("gasdb: duplicate key")
	ErrNotFound           = errors.New("gasdb: not found")
	ErrImmutableField     = errors.New("gasdb: immutable field")
	ErrLockTimeout        = errors.New("gasdb: lock acquisition timed out")
	ErrConflict           = errors.New("gasdb: modification token conflict")
	ErrBackendUnavailable = errors.New("gasdb: backend unavailable")
	ErrInternalError      = errors.New("gasdb: internal error")
)

func sentinelFor(k Kind) error {
	switch k {
	case KindInvalidArgument:
		return ErrInvalidArgument
	case KindInvalidQuery:
		return ErrInvalidQuery
	case KindInvalidUpdate:
		return ErrInvalidUpdate
	case KindInvalidDocument:
		return ErrInvalidDocument
	case KindDuplicateKey:
		return ErrDuplicateKey
	case KindNotFound:
		return ErrNotFound
	case KindImmutableField:
		return ErrImmutableField
	case KindLockTimeout:
		return ErrLockTimeout
	case KindConflict:
		return ErrConflict
	case KindBackendUnavailable:
		return ErrBackendUnavailable
	default:
		return ErrInternalError
	}
}

// Error is the general-purpose error value returned by gasdb's public
// surface. It carries a Kind plus a human-readable message and, where
// relevant, the underlying cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("gasdb: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("gasdb: %s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == sentinelFor(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// newError builds an *Error of the given kind.
func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func wrapError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ConflictError reports a MasterIndex modification-token mismatch during
// publish, so the caller can see both the token it expected and the one
// actually stored, plus (if available) the JSON merge patch describing what
// the losing writer had attempted — generalising the teacher's VersionError,
// which carries CurrentVersion/StoredVersion for the same purpose.
type ConflictError struct {
	Collection     string
	Expected       string
	Actual         string
	AttemptedPatch []byte
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("gasdb: conflict on collection %q: expected token %q, stored token %q",
		e.Collection, e.Expected, e.Actual)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}
