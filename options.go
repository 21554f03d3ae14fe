package gasdb

import (
	"time"

	"gasdb/cache"
	"gasdb/fileservice"
)

// Options configures a Database: the drivers it runs on top of, the process
// lock timeout, and the defaults every Collection inherits unless overridden
// by a CollectionOption.
//
//	db, err := gasdb.Open(ctx, gasdb.Options{
//	    BlobStore:     myBlobDriver,
//	    PropertyStore: myPropertyDriver,
//	    LockTimeout:   10 * time.Second,
//	})
type Options struct {
	// BlobStore persists collection document bodies. Required.
	BlobStore BlobStoreDriver

	// PropertyStore persists the master index and per-collection application
	// locks. Required.
	PropertyStore PropertyStoreDriver

	// MasterIndexKey is the PropertyStoreDriver key under which the master
	// index is stored.
	MasterIndexKey string

	// LockTimeout bounds how long an operation waits to acquire the
	// process-wide exclusive lock or a collection's application lock before
	// failing with ErrLockTimeout. Clamped to [1s, …]; values below 1s are
	// raised to 1s with a logged warning, matching the teacher's clamping of
	// OperationTimeout.
	LockTimeout time.Duration

	// CacheTTL is the time-to-live for cached collection blobs.
	CacheTTL time.Duration

	// QueryMaxDepth and QueryMaxSubfilters override the query engine's
	// recursion and fan-out bounds (query.MaxFilterDepth/MaxSubfilters).
	// Zero leaves the package default in place.
	QueryMaxDepth      int
	QueryMaxSubfilters int

	// BlobCache backs fileservice's per-handle entries. Left nil, Open
	// builds an in-memory cache.NewMemoryCache; callers running gasdb across
	// multiple processes can instead supply a cache.NewBadgerCache (local,
	// persistent) or a Redis-backed cache.Cache so the blob cache survives
	// process restarts or is shared between instances the way the master
	// index already is.
	BlobCache cache.Cache[*fileservice.BlobEntry]

	// DefaultEditOptions are applied to every mutating Collection call
	// (InsertOne, UpdateOne, UpdateMany, ReplaceOne, DeleteOne, DeleteMany)
	// that does not supply its own EditOption overrides.
	DefaultEditOptions *EditOptions
}

const (
	minLockTimeout     = time.Second
	defaultLockTimeout = 30 * time.Second
)

// DefaultOptions returns the default Options, with every driver left nil —
// callers must supply BlobStore and PropertyStore before calling Open.
//
// Defaults:
//   - 30-second lock timeout
//   - 24-hour cache TTL
//   - "GASDB_MASTER_INDEX" as the master index key
//   - unlimited conflict retries, 10ms initial backoff, 100ms max backoff
func DefaultOptions() *Options {
	return &Options{
		MasterIndexKey:     "GASDB_MASTER_INDEX",
		LockTimeout:        defaultLockTimeout,
		CacheTTL:           24 * time.Hour,
		DefaultEditOptions: NewEditOptions(),
	}
}

// normalizeLockTimeout clamps a requested lock timeout to the allowed
// minimum, returning the clamped value and whether clamping occurred.
func normalizeLockTimeout(requested time.Duration) (time.Duration, bool) {
	if requested <= 0 {
		return defaultLockTimeout, false
	}
	if requested < minLockTimeout {
		return minLockTimeout, true
	}
	return requested, false
}

// EditOptions controls the conflict-retry loop around each mutating
// Collection call that commits through a modification token (InsertOne,
// UpdateOne, UpdateMany, ReplaceOne, DeleteOne, DeleteMany). A retry re-runs
// the whole call, not a single document.
type EditOptions struct {
	// MaxRetries is the maximum number of retry attempts after a token
	// conflict. 0 means unlimited retries, bounded only by Timeout.
	MaxRetries int

	// RetryDelay is the initial backoff between retries; it doubles on each
	// attempt up to MaxRetryDelay.
	RetryDelay time.Duration

	// MaxRetryDelay bounds the backoff delay regardless of attempt count.
	MaxRetryDelay time.Duration

	// RetryJitter applies a random factor in [0, RetryJitter] to each
	// backoff delay, avoiding synchronized retries across callers.
	RetryJitter float64

	// Timeout bounds the retry loop: once it elapses, no further attempt is
	// started and the last conflict is returned. An attempt already running
	// is not interrupted. 0 means no timeout beyond the caller's context.
	Timeout time.Duration
}

// EditOption mutates an EditOptions; see With* constructors below.
type EditOption func(*EditOptions)

// WithMaxRetries overrides the maximum number of conflict-retry attempts.
func WithMaxRetries(maxRetries int) EditOption {
	return func(opts *EditOptions) { opts.MaxRetries = maxRetries }
}

// WithRetryDelay overrides the initial retry backoff.
func WithRetryDelay(delay time.Duration) EditOption {
	return func(opts *EditOptions) { opts.RetryDelay = delay }
}

// WithMaxRetryDelay overrides the maximum retry backoff.
func WithMaxRetryDelay(maxDelay time.Duration) EditOption {
	return func(opts *EditOptions) { opts.MaxRetryDelay = maxDelay }
}

// WithRetryJitter overrides the retry jitter factor (0.0-1.0).
func WithRetryJitter(jitter float64) EditOption {
	return func(opts *EditOptions) { opts.RetryJitter = jitter }
}

// WithTimeout overrides the overall retry-loop timeout.
func WithTimeout(timeout time.Duration) EditOption {
	return func(opts *EditOptions) { opts.Timeout = timeout }
}

// NewEditOptions builds an EditOptions from defaults plus the given overrides.
//
// Defaults: unlimited retries, 10ms initial backoff, 100ms max backoff, 0.1
// jitter, 10-second timeout.
func NewEditOptions(opts ...EditOption) *EditOptions {
	options := &EditOptions{
		MaxRetries:    0,
		RetryDelay:    10 * time.Millisecond,
		MaxRetryDelay: 100 * time.Millisecond,
		RetryJitter:   0.1,
		Timeout:       10 * time.Second,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// CollectionOptions configures an individual Collection, overriding the
// Database's defaults for that collection only.
type CollectionOptions struct {
	CacheTTL           time.Duration
	DefaultEditOptions *EditOptions
}

// CollectionOption mutates a CollectionOptions; see With* constructors below.
type CollectionOption func(*CollectionOptions)

// WithCollectionCacheTTL records a cache TTL on CollectionOptions. The
// collection does not apply it: its blob is cached with the Database's
// CacheTTL.
func WithCollectionCacheTTL(ttl time.Duration) CollectionOption {
	return func(opts *CollectionOptions) { opts.CacheTTL = ttl }
}

// WithCollectionDefaultEditOptions overrides the default EditOptions applied
// to update calls against one collection.
func WithCollectionDefaultEditOptions(defaults *EditOptions) CollectionOption {
	return func(opts *CollectionOptions) { opts.DefaultEditOptions = defaults }
}
