// Package store declares the two driver interfaces gasdb is built on top
// of: a handle-keyed blob store for collection bodies, and a small
// property store for the master index and collection locks. Neither
// interface assumes any particular backend — store/memstore, store/badgerstore,
// and store/redisstore below are three interchangeable implementations.
package store

import (
	"context"
	"errors"
)

// ErrNotExist is returned by BlobStoreDriver.ReadFile and
// PropertyStoreDriver.Get when the requested handle or key has no value.
var ErrNotExist = errors.New("store: does not exist")

// ErrAlreadyExists is returned by BlobStoreDriver.CreateFile when the handle
// is already occupied.
var ErrAlreadyExists = errors.New("store: already exists")

// BlobStoreDriver persists the serialized body of a collection. A handle is
// an opaque string chosen by the caller (gasdb uses "collection:" followed by
// the collection name);
// the driver is not expected to interpret it beyond using it as a key.
type BlobStoreDriver interface {
	// ReadFile returns the current contents addressed by handle, or
	// ErrNotExist if no such blob has been written.
	ReadFile(ctx context.Context, handle string) ([]byte, error)

	// WriteFile overwrites (or creates) the blob addressed by handle.
	WriteFile(ctx context.Context, handle string, data []byte) error

	// CreateFile writes a new blob, failing with ErrAlreadyExists if handle
	// is already occupied. Used for the initial creation of a collection so
	// two concurrent CreateCollection calls cannot silently clobber one
	// another.
	CreateFile(ctx context.Context, handle string, data []byte) error

	// DeleteFile removes the blob addressed by handle. Deleting a handle
	// that does not exist is not an error.
	DeleteFile(ctx context.Context, handle string) error
}

// LockHandle is an opaque lock token type. No method of the driver
// interfaces below returns or accepts one: WithExclusiveLock acquires and
// releases its lock internally.
type LockHandle interface{}

// PropertyStoreDriver persists small, frequently-contended values: the
// master index blob and collection-level application lock records. Get/Set
// operate on whole values; WithExclusiveLock provides the cooperative
// mutual exclusion the master index and collection locks need around their
// read-modify-write cycles.
type PropertyStoreDriver interface {
	// Get returns the value stored at key, or ErrNotExist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set overwrites (or creates) the value stored at key.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// WithExclusiveLock runs fn while holding an exclusive, cooperative lock
	// scoped to key, releasing the lock whether fn returns an error or not.
	// Implementations are free to use whatever mutual-exclusion primitive
	// their backend offers (an in-process mutex for memstore, a Redis
	// SET NX lock for redisstore); the only contract is that two concurrent
	// WithExclusiveLock calls for the same key never run fn concurrently.
	WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
