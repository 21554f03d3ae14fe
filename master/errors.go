package master

import "errors"

// ErrConflict is returned by UpdateCollectionMetadata when the caller's
// expected token does not match the token currently stored for the
// collection.
var ErrConflict = errors.New("master: modification token conflict")

// ErrLockHeld is returned by AcquireCollectionLock when a non-expired lock
// entry exists for the collection under a different operation ID.
var ErrLockHeld = errors.New("master: collection lock is held by another operation")

// ErrNotRegistered is returned when an operation targets a collection name
// the index has no record of.
var ErrNotRegistered = errors.New("master: collection is not registered")

// ConflictError carries both sides of a modification-token mismatch so the
// caller can decide how to proceed (retry, overwrite, or surface it).
type ConflictError struct {
	Collection string
	Expected   string
	Actual     string
}

func (e *ConflictError) Error() string {
	return "master: conflict on collection " + e.Collection + ": expected token " + e.Expected + ", stored token " + e.Actual
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
