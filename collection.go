package gasdb

import (
	"context"
	"errors"
	"sync"
	"time"

	"gasdb/fileservice"
	"gasdb/master"
	"gasdb/objectutil"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// InsertOneResult is returned by Collection.InsertOne.
type InsertOneResult struct {
	InsertedID   string
	Acknowledged bool
}

// UpdateResult is returned by Collection.UpdateOne, UpdateMany, and
// ReplaceOne.
type UpdateResult struct {
	MatchedCount  int
	ModifiedCount int
	Acknowledged  bool
}

// DeleteResult is returned by Collection.DeleteOne and DeleteMany.
type DeleteResult struct {
	DeletedCount int
	Acknowledged bool
}

// Stats is a diagnostic snapshot of a Collection's current in-memory state.
type Stats struct {
	DocumentCount int
	Dirty         bool
	Loaded        bool
	Token         string
}

// Collection is gasdb's public MongoDB-style CRUD surface over one named
// collection. A Collection owns its in-memory documents map exclusively for
// the duration of each public call; the map and its loaded/dirty flags are
// explicit state on the struct, never a hidden global.
type Collection struct {
	db     *Database
	name   string
	handle string

	mu        sync.Mutex
	loaded    bool
	dirty     bool
	documents map[string]bson.M
	metadata  CollectionMetadata
	lastErr   error

	editOpts *EditOptions
}

func newCollection(db *Database, name string, opts *CollectionOptions) *Collection {
	editOpts := db.opts.DefaultEditOptions
	if opts != nil && opts.DefaultEditOptions != nil {
		editOpts = opts.DefaultEditOptions
	}
	return &Collection{
		db:       db,
		name:     name,
		handle:   collectionHandle(name),
		editOpts: editOpts,
	}
}

func collectionHandle(name string) string {
	return "collection:" + name
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// LastError returns the most recent error this collection's public methods
// observed, or nil. It is a diagnostic accessor only; callers should inspect
// the error returned directly by the method they called.
func (c *Collection) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Stats reports the collection's current in-memory state for diagnostics.
func (c *Collection) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		DocumentCount: len(c.documents),
		Dirty:         c.dirty,
		Loaded:        c.loaded,
		Token:         c.metadata.ModificationToken,
	}
}

func (c *Collection) setLastErr(err error) error {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	return err
}

// withLock runs fn while holding, in order: this collection's own mutex (so
// two goroutines calling the same *Collection concurrently never
// interleave), the database's single process-wide lock (which additionally
// serializes this collection against every other collection sharing the
// Database), and the collection's cooperative application lock recorded in
// the master index. The first two are the in-process safety net; the third
// is the one that actually serializes this collection's mutations against
// other gasdb instances sharing the same backend, per spec.md §4.7/§5. The
// modification-token CAS in commit is a safety net on top of it, not a
// substitute for it.
func (c *Collection) withLock(ctx context.Context, fn func(ctx context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	release, err := c.db.lock.Process.Acquire(ctx)
	if err != nil {
		return wrapError(KindLockTimeout, err, "acquire process lock for collection %q", c.name)
	}
	defer release()

	operationID := uuid.NewString()
	if err := c.db.lock.AcquireCollectionLock(ctx, c.name, operationID); err != nil {
		return wrapError(KindLockTimeout, err, "acquire collection lock for collection %q", c.name)
	}
	defer func() {
		_ = c.db.lock.ReleaseCollectionLock(ctx, c.name, operationID)
	}()

	return fn(ctx)
}

// ensureLoaded loads the collection's blob on first access. A missing blob
// (brand-new collection) starts empty rather than failing.
func (c *Collection) ensureLoaded(ctx context.Context) error {
	if c.loaded {
		return nil
	}

	content, err := c.db.fileService.Read(ctx, c.handle)
	if errors.Is(err, fileservice.ErrNotExist) {
		c.documents = make(map[string]bson.M)
		c.metadata = newCollectionMetadata(c.name, c.handle)
		c.loaded = true
		return nil
	}
	if err != nil {
		return wrapError(KindBackendUnavailable, err, "load collection %q", c.name)
	}

	docsRaw, _ := objectutil.AsMap(content["documents"])
	documents := make(map[string]bson.M, len(docsRaw))
	for id, raw := range docsRaw {
		doc, ok := objectutil.AsMap(raw)
		if !ok {
			continue
		}
		documents[id] = bson.M(doc)
	}

	meta, err := metadataFromBSON(content["metadata"])
	if err != nil {
		return wrapError(KindInternalError, err, "decode metadata for collection %q", c.name)
	}
	if meta.Name == "" {
		meta = newCollectionMetadata(c.name, c.handle)
		meta.DocumentCount = len(documents)
	}

	c.documents = documents
	c.metadata = meta
	c.loaded = true
	return nil
}

// reload forces the next ensureLoaded call to re-read the blob from the
// backend, used after a conflicting publish so the retry loop recomputes
// its mutation against the winning writer's state.
func (c *Collection) reload() {
	c.loaded = false
	c.documents = nil
}

// commit publishes working as the collection's new document set. The master
// index's token CAS is the single source of truth for which writer won a
// race, so it runs before the blob is written: a losing writer's blob write
// must never reach the backend at all, let alone clobber the winner's. On a
// token conflict the collection's state is reloaded from the backend (the
// losing writer's working copy is discarded) and a *ConflictError is
// returned so the caller's retry loop recomputes its mutation against fresh
// state, without the backend ever having observed the losing attempt.
//
// A CAS that succeeds commits gasdb to the new token before the blob behind
// it exists; if the blob write then fails, the index and the backend would
// otherwise disagree about which token's documents are actually on disk, and
// this collection's own next attempt would compute prevToken from the token
// it just failed to persist, self-conflicting against the index forever. So
// a failed write is compensated: the index entry is rolled back (to the
// previous metadata for an already-registered collection, or deregistered
// entirely for a collection this call just registered for the first time)
// before the error is returned, and the collection is marked for reload so
// its next attempt re-reads the backend's actual state rather than trusting
// stale in-memory metadata.
func (c *Collection) commit(ctx context.Context, working map[string]bson.M) error {
	prevToken := c.metadata.ModificationToken
	prevMeta := c.metadata
	freshRegistration := prevToken == ""

	newMeta := c.metadata
	newMeta.LastUpdated = time.Now()
	newMeta.DocumentCount = len(working)
	newMeta.ModificationToken = newModificationToken()

	metaJSON, err := objectutil.MarshalCanonical(newMeta)
	if err != nil {
		return wrapError(KindInternalError, err, "encode metadata for collection %q", c.name)
	}

	if err := c.db.masterIndex.UpdateCollectionMetadata(ctx, c.name, prevToken, metaJSON); err != nil {
		var conflict *master.ConflictError
		if errors.As(err, &conflict) {
			c.reload()
			return &ConflictError{
				Collection: c.name,
				Expected:   conflict.Expected,
				Actual:     conflict.Actual,
			}
		}
		if errors.Is(err, master.ErrNotRegistered) {
			if regErr := c.db.masterIndex.AddCollection(ctx, c.name, metaJSON); regErr != nil {
				return wrapError(KindBackendUnavailable, regErr, "register collection %q", c.name)
			}
		} else {
			return wrapError(KindBackendUnavailable, err, "publish metadata for collection %q", c.name)
		}
	}

	blob := bson.M{
		"documents": documentsToBSON(working),
		"metadata":  newMeta.toBSON(),
	}

	c.db.fileService.MarkDirty(ctx, c.handle)
	if err := c.db.fileService.Write(ctx, c.handle, blob); err != nil {
		c.compensatePublishedMetadata(ctx, freshRegistration, prevMeta, newMeta.ModificationToken)
		c.reload()
		return wrapError(KindBackendUnavailable, err, "write collection %q", c.name)
	}

	c.documents = working
	c.metadata = newMeta
	c.dirty = false
	return nil
}

// compensatePublishedMetadata undoes a master-index publish that is no
// longer backed by a written blob, restoring the index to a state consistent
// with what is actually on disk. Both branches are best-effort: if another
// writer has already moved the token past publishedToken, that writer's
// state is now authoritative and this collection's reload picks it up
// instead, so a failure here is not itself escalated to the caller.
func (c *Collection) compensatePublishedMetadata(ctx context.Context, freshRegistration bool, prevMeta CollectionMetadata, publishedToken string) {
	if freshRegistration {
		_ = c.db.masterIndex.RemoveCollection(ctx, c.name)
		return
	}
	prevMetaJSON, err := objectutil.MarshalCanonical(prevMeta)
	if err != nil {
		return
	}
	_ = c.db.masterIndex.UpdateCollectionMetadata(ctx, c.name, publishedToken, prevMetaJSON)
}

func documentsToBSON(docs map[string]bson.M) bson.M {
	out := make(bson.M, len(docs))
	for id, d := range docs {
		out[id] = d
	}
	return out
}

// cloneDocumentMap makes a shallow copy of the collection's document map: a
// new map whose entries point at the same document values. DocumentOperations
// never mutates a bson.M document in place (insert/replace/update all
// allocate a fresh document on write), so a shallow copy is sufficient to
// give each call its own working set that is only swapped into the
// collection on full success, per the atomicity-per-call contract in §7.
func (c *Collection) cloneDocumentMap() map[string]bson.M {
	out := make(map[string]bson.M, len(c.documents))
	for id, d := range c.documents {
		out[id] = d
	}
	return out
}

// idFastPath reports whether filter is exactly {_id: "<string>"}, the one
// shape Collection resolves by direct map lookup instead of compiling and
// running it through the query engine.
func idFastPath(filter bson.M) (id string, ok bool) {
	if len(filter) != 1 {
		return "", false
	}
	v, present := filter["_id"]
	if !present {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func validateFilter(filter bson.M) error {
	if filter == nil {
		return newError(KindInvalidArgument, "filter must not be nil")
	}
	return nil
}

func validateDocument(doc bson.M) error {
	if doc == nil {
		return newError(KindInvalidArgument, "document must not be nil")
	}
	return nil
}

func validateUpdate(upd bson.M) error {
	if len(upd) == 0 {
		return newError(KindInvalidArgument, "update expression must not be empty")
	}
	return nil
}

// InsertOne inserts doc, assigning a UUID-shaped _id if doc does not already
// have one.
func (c *Collection) InsertOne(ctx context.Context, doc bson.M) (*InsertOneResult, error) {
	if err := validateDocument(doc); err != nil {
		return nil, c.setLastErr(err)
	}

	var result *InsertOneResult
	err := withRetryBackoff(ctx, c.editOpts, func() error {
		return c.withLock(ctx, func(ctx context.Context) error {
			if err := c.ensureLoaded(ctx); err != nil {
				return err
			}

			working := c.cloneDocumentMap()
			inserted, id, err := insertDocument(working, doc)
			if err != nil {
				return err
			}

			if err := c.commit(ctx, working); err != nil {
				return err
			}

			result = &InsertOneResult{InsertedID: id, Acknowledged: true}
			_ = inserted
			return nil
		})
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// Find returns every document matching filter.
func (c *Collection) Find(ctx context.Context, filter bson.M) ([]bson.M, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}

	var result []bson.M
	err := c.withLock(ctx, func(ctx context.Context) error {
		if err := c.ensureLoaded(ctx); err != nil {
			return err
		}
		if fastID, ok := idFastPath(filter); ok {
			if doc, found := findByID(c.documents, fastID); found {
				result = []bson.M{doc}
			} else {
				result = []bson.M{}
			}
			return nil
		}
		docs, err := findAllByFilter(c.documents, filter)
		if err != nil {
			return err
		}
		result = docs
		return nil
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// FindOne returns the first document matching filter, or (nil, nil) if none
// matches.
func (c *Collection) FindOne(ctx context.Context, filter bson.M) (bson.M, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}

	var result bson.M
	err := c.withLock(ctx, func(ctx context.Context) error {
		if err := c.ensureLoaded(ctx); err != nil {
			return err
		}
		if fastID, ok := idFastPath(filter); ok {
			doc, _ := findByID(c.documents, fastID)
			result = doc
			return nil
		}
		doc, found, err := findByFilter(c.documents, filter)
		if err != nil {
			return err
		}
		if found {
			result = doc
		}
		return nil
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// CountDocuments reports how many documents match filter.
func (c *Collection) CountDocuments(ctx context.Context, filter bson.M) (int64, error) {
	if err := validateFilter(filter); err != nil {
		return 0, c.setLastErr(err)
	}

	var result int
	err := c.withLock(ctx, func(ctx context.Context) error {
		if err := c.ensureLoaded(ctx); err != nil {
			return err
		}
		if fastID, ok := idFastPath(filter); ok {
			if _, found := c.documents[fastID]; found {
				result = 1
			}
			return nil
		}
		n, err := countByFilter(c.documents, filter)
		if err != nil {
			return err
		}
		result = n
		return nil
	})
	if err != nil {
		return 0, c.setLastErr(err)
	}
	return int64(result), nil
}

// UpdateOne applies upd to the first document matching filter.
func (c *Collection) UpdateOne(ctx context.Context, filter, upd bson.M, opts ...EditOption) (*UpdateResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}
	if err := validateUpdate(upd); err != nil {
		return nil, c.setLastErr(err)
	}

	editOpts := c.resolveEditOptions(opts...)
	var result *UpdateResult
	err := withRetryBackoff(ctx, editOpts, func() error {
		return c.withLock(ctx, func(ctx context.Context) error {
			if err := c.ensureLoaded(ctx); err != nil {
				return err
			}

			id, _, found, err := resolveOneInDocs(c.documents, filter)
			if err != nil {
				return err
			}
			if !found {
				result = &UpdateResult{Acknowledged: true}
				return nil
			}

			working := c.cloneDocumentMap()
			res, err := updateByIDWithOperators(working, id, upd)
			if err != nil {
				return err
			}
			if res.Modified == 0 {
				result = &UpdateResult{MatchedCount: 1, ModifiedCount: 0, Acknowledged: true}
				return nil
			}

			if err := c.commit(ctx, working); err != nil {
				return err
			}
			result = &UpdateResult{MatchedCount: 1, ModifiedCount: 1, Acknowledged: true}
			return nil
		})
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// UpdateMany applies upd to every document matching filter.
func (c *Collection) UpdateMany(ctx context.Context, filter, upd bson.M, opts ...EditOption) (*UpdateResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}
	if err := validateUpdate(upd); err != nil {
		return nil, c.setLastErr(err)
	}

	editOpts := c.resolveEditOptions(opts...)
	var result *UpdateResult
	err := withRetryBackoff(ctx, editOpts, func() error {
		return c.withLock(ctx, func(ctx context.Context) error {
			if err := c.ensureLoaded(ctx); err != nil {
				return err
			}

			ids, err := matchingIDs(c.documents, filter)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				result = &UpdateResult{Acknowledged: true}
				return nil
			}

			working := c.cloneDocumentMap()
			matched, modified := 0, 0
			for _, id := range ids {
				res, err := updateByIDWithOperators(working, id, upd)
				if err != nil {
					return err
				}
				matched += res.Matched
				modified += res.Modified
			}

			if modified == 0 {
				result = &UpdateResult{MatchedCount: matched, ModifiedCount: 0, Acknowledged: true}
				return nil
			}

			if err := c.commit(ctx, working); err != nil {
				return err
			}
			result = &UpdateResult{MatchedCount: matched, ModifiedCount: modified, Acknowledged: true}
			return nil
		})
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// ReplaceOne replaces the first document matching filter with replacement,
// preserving the matched document's _id.
func (c *Collection) ReplaceOne(ctx context.Context, filter, replacement bson.M, opts ...EditOption) (*UpdateResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}
	if err := validateDocument(replacement); err != nil {
		return nil, c.setLastErr(err)
	}

	editOpts := c.resolveEditOptions(opts...)
	var result *UpdateResult
	err := withRetryBackoff(ctx, editOpts, func() error {
		return c.withLock(ctx, func(ctx context.Context) error {
			if err := c.ensureLoaded(ctx); err != nil {
				return err
			}

			id, matched, found, err := resolveOneInDocs(c.documents, filter)
			if err != nil {
				return err
			}
			if !found {
				result = &UpdateResult{Acknowledged: true}
				return nil
			}

			working := c.cloneDocumentMap()
			newDoc, err := replaceByID(working, id, replacement)
			if err != nil {
				return err
			}

			if objectutil.DeepEqual(matched, newDoc) {
				result = &UpdateResult{MatchedCount: 1, ModifiedCount: 0, Acknowledged: true}
				return nil
			}

			if err := c.commit(ctx, working); err != nil {
				return err
			}
			result = &UpdateResult{MatchedCount: 1, ModifiedCount: 1, Acknowledged: true}
			return nil
		})
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// DeleteOne removes the first document matching filter.
func (c *Collection) DeleteOne(ctx context.Context, filter bson.M) (*DeleteResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}

	var result *DeleteResult
	err := withRetryBackoff(ctx, c.editOpts, func() error {
		return c.withLock(ctx, func(ctx context.Context) error {
			if err := c.ensureLoaded(ctx); err != nil {
				return err
			}

			id, _, found, err := resolveOneInDocs(c.documents, filter)
			if err != nil {
				return err
			}
			if !found {
				result = &DeleteResult{Acknowledged: true}
				return nil
			}

			working := c.cloneDocumentMap()
			deleteByID(working, id)

			if err := c.commit(ctx, working); err != nil {
				return err
			}
			result = &DeleteResult{DeletedCount: 1, Acknowledged: true}
			return nil
		})
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

// DeleteMany removes every document matching filter.
func (c *Collection) DeleteMany(ctx context.Context, filter bson.M) (*DeleteResult, error) {
	if err := validateFilter(filter); err != nil {
		return nil, c.setLastErr(err)
	}

	var result *DeleteResult
	err := withRetryBackoff(ctx, c.editOpts, func() error {
		return c.withLock(ctx, func(ctx context.Context) error {
			if err := c.ensureLoaded(ctx); err != nil {
				return err
			}

			working := c.cloneDocumentMap()
			n, err := deleteByFilter(working, filter)
			if err != nil {
				return err
			}
			if n == 0 {
				result = &DeleteResult{Acknowledged: true}
				return nil
			}

			if err := c.commit(ctx, working); err != nil {
				return err
			}
			result = &DeleteResult{DeletedCount: n, Acknowledged: true}
			return nil
		})
	})
	if err != nil {
		return nil, c.setLastErr(err)
	}
	return result, nil
}

func (c *Collection) resolveEditOptions(opts ...EditOption) *EditOptions {
	if len(opts) == 0 {
		return c.editOpts
	}
	base := *c.editOpts
	for _, opt := range opts {
		opt(&base)
	}
	return &base
}

// resolveOneInDocs resolves filter to the first matching document for the
// mutating methods, applying the _id fast path consistently with
// Find/FindOne.
func resolveOneInDocs(docs map[string]bson.M, filter bson.M) (id string, doc bson.M, found bool, err error) {
	if fastID, ok := idFastPath(filter); ok {
		d, found := docs[fastID]
		if !found {
			return "", nil, false, nil
		}
		return fastID, d, true, nil
	}

	matches, err := findAllByFilter(docs, filter)
	if err != nil {
		return "", nil, false, err
	}
	if len(matches) == 0 {
		return "", nil, false, nil
	}
	first := matches[0]
	id, _ = first["_id"].(string)
	return id, first, true, nil
}

func matchingIDs(docs map[string]bson.M, filter bson.M) ([]string, error) {
	if fastID, ok := idFastPath(filter); ok {
		if _, found := docs[fastID]; found {
			return []string{fastID}, nil
		}
		return nil, nil
	}
	matches, err := findAllByFilter(docs, filter)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if id, ok := m["_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
