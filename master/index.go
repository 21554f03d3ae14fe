// Package master implements the single-blob registry gasdb keeps in the
// property store: the set of known collections, their metadata, and the
// cooperative per-collection application locks. Every read-modify-write
// against the index blob runs inside the property store's own exclusive
// lock, so the index stays consistent even when multiple gasdb processes
// share one backend.
package master

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gasdb/store"
)

// LockEntry records the holder of a cooperative per-collection lock.
type LockEntry struct {
	OperationID string    `json:"operationId"`
	AcquiredAt  time.Time `json:"acquiredAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// indexDocument is the exact shape persisted under the master index key.
// Collection metadata is kept as raw JSON so this package never needs to
// know the concrete metadata struct gasdb's root package defines.
type indexDocument struct {
	Collections map[string]json.RawMessage `json:"collections"`
	Locks       map[string]LockEntry       `json:"locks"`
	Version     int                        `json:"version"`
}

func newIndexDocument() *indexDocument {
	return &indexDocument{
		Collections: make(map[string]json.RawMessage),
		Locks:       make(map[string]LockEntry),
	}
}

// Index is the master registry of collections and their locks, persisted
// through a store.PropertyStoreDriver under a single well-known key.
type Index struct {
	props store.PropertyStoreDriver
	key   string
}

// NewIndex builds an Index persisted under key via props.
func NewIndex(props store.PropertyStoreDriver, key string) *Index {
	return &Index{props: props, key: key}
}

// GenerateModificationToken returns a fresh opaque token identifying one
// version of a collection's contents.
func GenerateModificationToken() string {
	return newToken()
}

func (idx *Index) load(ctx context.Context) (*indexDocument, error) {
	raw, err := idx.props.Get(ctx, idx.key)
	if err == store.ErrNotExist {
		return newIndexDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("master: load index: %w", err)
	}
	doc := newIndexDocument()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, fmt.Errorf("master: decode index: %w", err)
		}
	}
	if doc.Collections == nil {
		doc.Collections = make(map[string]json.RawMessage)
	}
	if doc.Locks == nil {
		doc.Locks = make(map[string]LockEntry)
	}
	return doc, nil
}

func (idx *Index) save(ctx context.Context, doc *indexDocument) error {
	doc.Version++
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("master: encode index: %w", err)
	}
	if err := idx.props.Set(ctx, idx.key, data); err != nil {
		return fmt.Errorf("master: save index: %w", err)
	}
	return nil
}

// withIndex runs fn against the loaded index document under the property
// store's exclusive lock, persisting whatever fn leaves behind unless fn
// returns an error.
func (idx *Index) withIndex(ctx context.Context, fn func(doc *indexDocument) error) error {
	return idx.props.WithExclusiveLock(ctx, idx.key, func(ctx context.Context) error {
		doc, err := idx.load(ctx)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return idx.save(ctx, doc)
	})
}

// AddCollection registers metadata for name. If the collection is already
// registered the call is a no-op: collection creation is idempotent.
func (idx *Index) AddCollection(ctx context.Context, name string, metadata []byte) error {
	return idx.withIndex(ctx, func(doc *indexDocument) error {
		if _, exists := doc.Collections[name]; exists {
			return nil
		}
		doc.Collections[name] = append(json.RawMessage(nil), metadata...)
		return nil
	})
}

// RemoveCollection drops name (and any lock entry held for it) from the
// index.
func (idx *Index) RemoveCollection(ctx context.Context, name string) error {
	return idx.withIndex(ctx, func(doc *indexDocument) error {
		delete(doc.Collections, name)
		delete(doc.Locks, name)
		return nil
	})
}

// GetCollection returns the raw metadata registered for name.
func (idx *Index) GetCollection(ctx context.Context, name string) (metadata []byte, found bool, err error) {
	doc, err := idx.load(ctx)
	if err != nil {
		return nil, false, err
	}
	raw, ok := doc.Collections[name]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

// ListCollections returns the names of every registered collection.
func (idx *Index) ListCollections(ctx context.Context) ([]string, error) {
	doc, err := idx.load(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(doc.Collections))
	for name := range doc.Collections {
		names = append(names, name)
	}
	return names, nil
}

// UpdateCollectionMetadata replaces the metadata registered for name,
// enforcing optimistic concurrency: the caller must supply the token it
// last observed for the collection. A mismatch yields a *ConflictError
// wrapping ErrConflict.
func (idx *Index) UpdateCollectionMetadata(ctx context.Context, name string, expectedToken string, metadata []byte) error {
	return idx.withIndex(ctx, func(doc *indexDocument) error {
		existing, ok := doc.Collections[name]
		if !ok {
			return fmt.Errorf("master: update %s: %w", name, ErrNotRegistered)
		}
		actual := extractToken(existing)
		if expectedToken != "" && actual != expectedToken {
			return &ConflictError{Collection: name, Expected: expectedToken, Actual: actual}
		}
		doc.Collections[name] = append(json.RawMessage(nil), metadata...)
		return nil
	})
}

// HasConflict reports whether the token currently stored for name differs
// from expectedToken.
func (idx *Index) HasConflict(ctx context.Context, name, expectedToken string) (bool, error) {
	doc, err := idx.load(ctx)
	if err != nil {
		return false, err
	}
	existing, ok := doc.Collections[name]
	if !ok {
		return false, fmt.Errorf("master: has conflict %s: %w", name, ErrNotRegistered)
	}
	return extractToken(existing) != expectedToken, nil
}

// ResolveConflict maps a requested conflict-resolution strategy onto one of
// the two strategies the index actually implements: "overwrite" replaces
// the stored metadata unconditionally, anything else aborts. "merge" is not
// a real three-way merge here — without a common ancestor document there is
// nothing to merge structurally, so it degrades to "abort" and the caller
// retries against the fresh state.
func ResolveConflict(strategy string) string {
	switch strategy {
	case "overwrite":
		return "overwrite"
	default:
		return "abort"
	}
}

// ForceUpdateCollectionMetadata replaces metadata for name unconditionally,
// used by the "overwrite" conflict resolution strategy.
func (idx *Index) ForceUpdateCollectionMetadata(ctx context.Context, name string, metadata []byte) error {
	return idx.withIndex(ctx, func(doc *indexDocument) error {
		if _, ok := doc.Collections[name]; !ok {
			return fmt.Errorf("master: force update %s: %w", name, ErrNotRegistered)
		}
		doc.Collections[name] = append(json.RawMessage(nil), metadata...)
		return nil
	})
}

type tokenCarrier struct {
	ModificationToken string `json:"modificationToken"`
}

func extractToken(raw json.RawMessage) string {
	var carrier tokenCarrier
	_ = json.Unmarshal(raw, &carrier)
	return carrier.ModificationToken
}
