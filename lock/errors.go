package lock

import "errors"

// ErrTimeout is returned by ProcessLock.Acquire when the requested context or
// timeout elapses before the lock becomes available. AcquireCollectionLock
// does not wait: a lock held by another operation fails at once with
// master.ErrLockHeld.
var ErrTimeout = errors.New("lock: acquire timed out")
