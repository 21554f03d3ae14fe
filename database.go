package gasdb

import (
	"context"
	"errors"
	"sync"

	"gasdb/cache"
	"gasdb/core"
	"gasdb/fileservice"
	"gasdb/lock"
	"gasdb/master"
	"gasdb/objectutil"
	"gasdb/query"
	"gasdb/store"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Database is the top-level entry point: it owns the process-wide lock, the
// file service cache-fronting the blob-store driver, and the master index,
// and hands out Collections that share all three.
type Database struct {
	opts        *Options
	fileService *fileservice.Service
	masterIndex *master.Index
	lock        *lock.Service

	mu          sync.Mutex
	collections map[string]*Collection
}

// Open builds a Database from opts. BlobStore and PropertyStore are
// required; every other field falls back to DefaultOptions.
func Open(ctx context.Context, opts Options) (*Database, error) {
	if opts.BlobStore == nil {
		return nil, newError(KindInvalidArgument, "Options.BlobStore is required")
	}
	if opts.PropertyStore == nil {
		return nil, newError(KindInvalidArgument, "Options.PropertyStore is required")
	}

	defaults := DefaultOptions()
	if opts.MasterIndexKey == "" {
		opts.MasterIndexKey = defaults.MasterIndexKey
	}
	if opts.DefaultEditOptions == nil {
		opts.DefaultEditOptions = defaults.DefaultEditOptions
	}
	lockTimeout, clamped := normalizeLockTimeout(opts.LockTimeout)
	if clamped {
		core.Warn("lock timeout below minimum, clamping", zap.Duration("requested", opts.LockTimeout))
	}
	opts.LockTimeout = lockTimeout
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaults.CacheTTL
	}
	query.SetLimits(opts.QueryMaxDepth, opts.QueryMaxSubfilters)

	masterIndex := master.NewIndex(opts.PropertyStore, opts.MasterIndexKey)
	processLock := lock.NewProcessLock(opts.LockTimeout)
	lockService := lock.NewService(processLock, masterIndex, opts.LockTimeout)

	blobCache := opts.BlobCache
	if blobCache == nil {
		blobCache = cache.NewMemoryCache[*fileservice.BlobEntry](nil)
	}
	fsOpts := fileservice.DefaultOptions()
	fsOpts.CacheTTL = opts.CacheTTL
	fileService := fileservice.New(opts.BlobStore, blobCache, fsOpts)

	db := &Database{
		opts:        &opts,
		fileService: fileService,
		masterIndex: masterIndex,
		lock:        lockService,
		collections: make(map[string]*Collection),
	}
	return db, nil
}

func validateCollectionName(name string) error {
	if name == "" {
		return newError(KindInvalidArgument, "collection name must not be empty")
	}
	return nil
}

// Collection returns the named collection, creating an unloaded, in-memory
// handle for it if this is the first time this Database instance has seen
// the name. No backend I/O happens until the returned Collection's first
// operation.
func (db *Database) Collection(name string) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if c, ok := db.collections[name]; ok {
		return c, nil
	}
	c := newCollection(db, name, nil)
	db.collections[name] = c
	return c, nil
}

// CreateCollection returns the named collection, eagerly creating and
// registering its blob (an empty document set) if it does not already
// exist, rather than waiting for the first operation to do so lazily.
func (db *Database) CreateCollection(ctx context.Context, name string, opts ...CollectionOption) (*Collection, error) {
	if err := validateCollectionName(name); err != nil {
		return nil, err
	}

	db.mu.Lock()
	existing, ok := db.collections[name]
	if ok {
		db.mu.Unlock()
		return existing, nil
	}
	collOpts := &CollectionOptions{}
	for _, opt := range opts {
		opt(collOpts)
	}
	c := newCollection(db, name, collOpts)
	db.collections[name] = c
	db.mu.Unlock()

	err := c.withLock(ctx, func(ctx context.Context) error {
		if err := c.ensureLoaded(ctx); err != nil {
			return err
		}
		if c.dirty {
			return nil
		}

		blob := bson.M{
			"documents": documentsToBSON(c.documents),
			"metadata":  c.metadata.toBSON(),
		}
		if err := db.fileService.Create(ctx, c.handle, blob); err != nil {
			if !errors.Is(err, fileservice.ErrAlreadyExists) {
				return wrapError(KindBackendUnavailable, err, "create collection %q", name)
			}
		}

		metaJSON, err := objectutil.MarshalCanonical(c.metadata)
		if err != nil {
			return wrapError(KindInternalError, err, "encode metadata for collection %q", name)
		}
		return db.masterIndex.AddCollection(ctx, name, metaJSON)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCollections returns the names of every collection registered in the
// master index, including ones created by other Database instances sharing
// the same backend.
func (db *Database) ListCollections(ctx context.Context) ([]string, error) {
	names, err := db.masterIndex.ListCollections(ctx)
	if err != nil {
		return nil, wrapError(KindBackendUnavailable, err, "list collections")
	}
	return names, nil
}

// DropCollection deletes a collection's blob and removes it from both this
// Database's local cache of handles and the master index.
func (db *Database) DropCollection(ctx context.Context, name string) error {
	if err := validateCollectionName(name); err != nil {
		return err
	}

	handle := collectionHandle(name)

	release, err := db.lock.Process.Acquire(ctx)
	if err != nil {
		return wrapError(KindLockTimeout, err, "acquire process lock to drop collection %q", name)
	}
	defer release()

	operationID := uuid.NewString()
	if err := db.lock.AcquireCollectionLock(ctx, name, operationID); err != nil {
		return wrapError(KindLockTimeout, err, "acquire collection lock to drop collection %q", name)
	}
	defer func() {
		_ = db.lock.ReleaseCollectionLock(ctx, name, operationID)
	}()

	if err := db.fileService.Delete(ctx, handle); err != nil {
		return wrapError(KindBackendUnavailable, err, "delete collection %q", name)
	}
	if err := db.masterIndex.RemoveCollection(ctx, name); err != nil {
		return wrapError(KindBackendUnavailable, err, "deregister collection %q", name)
	}

	db.mu.Lock()
	delete(db.collections, name)
	db.mu.Unlock()
	return nil
}

// store is re-exported so callers constructing Options don't need to import
// gasdb/store themselves for the interface types.
type BlobStoreDriver = store.BlobStoreDriver
type PropertyStoreDriver = store.PropertyStoreDriver
