// Package badgerstore implements store.BlobStoreDriver and
// store.PropertyStoreDriver on top of BadgerDB, giving gasdb a persistent,
// single-machine backend without any external service to run. Blobs and
// properties share one database under distinct key prefixes; exclusive
// locks are a per-key in-process mutex — BadgerDB is an embedded
// store with no server-side lock primitive to cooperate with across
// processes.
package badgerstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"gasdb/store"
)

const (
	blobPrefix = "blob:"
	propPrefix = "prop:"
)

// Store implements store.BlobStoreDriver and store.PropertyStoreDriver over
// a single BadgerDB instance.
type Store struct {
	db *badger.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if necessary) a BadgerDB database at dbPath.
func Open(dbPath string) (*Store, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open %s: %w", dbPath, err)
	}

	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ReadFile(ctx context.Context, handle string) ([]byte, error) {
	return s.get(blobPrefix + handle)
}

func (s *Store) WriteFile(ctx context.Context, handle string, data []byte) error {
	return s.set(blobPrefix+handle, data)
}

func (s *Store) CreateFile(ctx context.Context, handle string, data []byte) error {
	key := []byte(blobPrefix + handle)
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return store.ErrAlreadyExists
		} else if err != badger.ErrKeyNotFound {
			return fmt.Errorf("badgerstore: create %s: %w", handle, err)
		}
		return txn.Set(key, data)
	})
}

func (s *Store) DeleteFile(ctx context.Context, handle string) error {
	return s.delete(blobPrefix + handle)
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(propPrefix + key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	return s.set(propPrefix+key, value)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.delete(propPrefix + key)
}

func (s *Store) WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

func (s *Store) lockFor(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *Store) get(key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, store.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("badgerstore: get %s: %w", key, err)
	}
	return out, nil
}

func (s *Store) set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badgerstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("badgerstore: delete %s: %w", key, err)
	}
	return nil
}
