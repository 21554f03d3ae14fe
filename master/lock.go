package master

import (
	"context"
	"fmt"
	"time"
)

// AcquireCollectionLock records a cooperative lock entry for name, owned by
// operationID, valid for timeout. Acquisition fails with ErrLockHeld if a
// non-expired entry exists under a different operation ID; re-acquiring
// with the same operation ID (lock renewal) always succeeds.
func (idx *Index) AcquireCollectionLock(ctx context.Context, name, operationID string, timeout time.Duration) error {
	return idx.withIndex(ctx, func(doc *indexDocument) error {
		now := time.Now()
		if entry, exists := doc.Locks[name]; exists {
			if entry.ExpiresAt.After(now) && entry.OperationID != operationID {
				return fmt.Errorf("master: lock %s: %w", name, ErrLockHeld)
			}
		}
		doc.Locks[name] = LockEntry{
			OperationID: operationID,
			AcquiredAt:  now,
			ExpiresAt:   now.Add(timeout),
		}
		return nil
	})
}

// ReleaseCollectionLock removes the lock entry for name if, and only if,
// it is currently held by operationID. Releasing a lock held by someone
// else (or not held at all) is a silent no-op.
func (idx *Index) ReleaseCollectionLock(ctx context.Context, name, operationID string) error {
	return idx.withIndex(ctx, func(doc *indexDocument) error {
		if entry, exists := doc.Locks[name]; exists && entry.OperationID == operationID {
			delete(doc.Locks, name)
		}
		return nil
	})
}

// IsCollectionLocked reports whether name currently has a non-expired lock
// entry.
func (idx *Index) IsCollectionLocked(ctx context.Context, name string) (bool, error) {
	doc, err := idx.load(ctx)
	if err != nil {
		return false, err
	}
	entry, exists := doc.Locks[name]
	if !exists {
		return false, nil
	}
	return entry.ExpiresAt.After(time.Now()), nil
}

// CleanupExpiredCollectionLocks drops every lock entry whose expiry has
// passed and reports how many were removed.
func (idx *Index) CleanupExpiredCollectionLocks(ctx context.Context) (int, error) {
	removed := 0
	err := idx.withIndex(ctx, func(doc *indexDocument) error {
		now := time.Now()
		for name, entry := range doc.Locks {
			if !entry.ExpiresAt.After(now) {
				delete(doc.Locks, name)
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}
