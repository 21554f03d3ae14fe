// Package fileservice is the cache-fronted read/write path gasdb uses for
// every collection blob. It sits between Collection and a
// store.BlobStoreDriver, coalescing redundant reads, suppressing writes
// that would not change the stored bytes, and failing fast through a
// circuit breaker when the backend is unhealthy.
package fileservice

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gasdb/cache"
	"gasdb/core"
	"gasdb/objectutil"
	"gasdb/store"
	"go.mongodb.org/mongo-driver/bson"
)

// BlobEntry is the unit fileservice caches: a parsed blob plus the
// bookkeeping needed to decide whether a read can be served from cache and
// whether a write actually needs to reach the backend.
type BlobEntry struct {
	Content  bson.M
	LoadedAt time.Time
	Dirty    bool
}

// Options configures a Service.
type Options struct {
	// CoalesceWindow is how long a cached read is served without touching
	// the backend again.
	CoalesceWindow time.Duration
	// CacheTTL is how long an entry survives in the cache absent activity.
	CacheTTL time.Duration
	// FailureThreshold and CooldownPeriod configure the circuit breaker.
	FailureThreshold int
	CooldownPeriod   time.Duration
}

// DefaultOptions returns gasdb's default fileservice tuning.
func DefaultOptions() *Options {
	return &Options{
		CoalesceWindow:   50 * time.Millisecond,
		CacheTTL:         24 * time.Hour,
		FailureThreshold: 5,
		CooldownPeriod:   30 * time.Second,
	}
}

// Service is the cache-fronted blob read/write path.
type Service struct {
	driver  store.BlobStoreDriver
	cache   cache.Cache[*BlobEntry]
	breaker *CircuitBreaker
	opts    *Options
	access  *cache.AccessTracker
}

// New builds a Service backed by driver, using blobCache as its entry cache.
func New(driver store.BlobStoreDriver, blobCache cache.Cache[*BlobEntry], opts *Options) *Service {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Service{
		driver:  driver,
		cache:   blobCache,
		breaker: NewCircuitBreaker(opts.FailureThreshold, opts.CooldownPeriod),
		opts:    opts,
		access:  cache.NewAccessTracker(32, 0.9),
	}
}

// HotHandles reports the collection handles this Service has served reads
// and writes for most often and most recently, for diagnostics or for a
// future eviction policy that wants to protect hot entries from CacheTTL
// expiry ahead of cold ones.
func (s *Service) HotHandles() []string {
	return s.access.GetHotItems()
}

// Read returns the parsed content at handle, served from cache when a
// coalescing-window-fresh entry exists, otherwise fetched from the backend.
func (s *Service) Read(ctx context.Context, handle string) (bson.M, error) {
	s.access.RecordAccess(handle)
	if entry, err := s.cache.Get(ctx, handle); err == nil {
		if !entry.Dirty && time.Since(entry.LoadedAt) < s.opts.CoalesceWindow {
			return objectutil.DeepClone(entry.Content).(bson.M), nil
		}
	}

	if !s.breaker.Allow() {
		return nil, ErrBackendUnavailable
	}

	data, err := s.driver.ReadFile(ctx, handle)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			s.breaker.RecordSuccess()
			return nil, ErrNotExist
		}
		s.breaker.RecordFailure()
		core.Warn("fileservice read failed", zap.String("handle", handle), zap.Error(err))
		return nil, ErrBackendUnavailable
	}
	s.breaker.RecordSuccess()

	var content bson.M
	if err := objectutil.UnmarshalCanonical(data, &content); err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, handle, &BlobEntry{Content: content, LoadedAt: time.Now()}, s.opts.CacheTTL)
	return objectutil.DeepClone(content).(bson.M), nil
}

// Write persists content at handle. If the cache already holds an
// identical, non-dirty copy the backend write is skipped entirely.
func (s *Service) Write(ctx context.Context, handle string, content bson.M) error {
	s.access.RecordAccess(handle)
	if entry, err := s.cache.Get(ctx, handle); err == nil {
		if !entry.Dirty && objectutil.DeepEqual(entry.Content, content) {
			return nil
		}
	}

	if !s.breaker.Allow() {
		return ErrBackendUnavailable
	}

	data, err := objectutil.MarshalCanonical(content)
	if err != nil {
		return err
	}
	if err := s.driver.WriteFile(ctx, handle, data); err != nil {
		s.breaker.RecordFailure()
		core.Warn("fileservice write failed", zap.String("handle", handle), zap.Error(err))
		return ErrBackendUnavailable
	}
	s.breaker.RecordSuccess()

	clone, _ := objectutil.DeepClone(content).(bson.M)
	_ = s.cache.Set(ctx, handle, &BlobEntry{Content: clone, LoadedAt: time.Now()}, s.opts.CacheTTL)
	return nil
}

// Create persists a brand-new blob at handle, failing with ErrAlreadyExists
// if one is already present.
func (s *Service) Create(ctx context.Context, handle string, content bson.M) error {
	if !s.breaker.Allow() {
		return ErrBackendUnavailable
	}

	data, err := objectutil.MarshalCanonical(content)
	if err != nil {
		return err
	}
	if err := s.driver.CreateFile(ctx, handle, data); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			s.breaker.RecordSuccess()
			return ErrAlreadyExists
		}
		s.breaker.RecordFailure()
		core.Warn("fileservice create failed", zap.String("handle", handle), zap.Error(err))
		return ErrBackendUnavailable
	}
	s.breaker.RecordSuccess()

	clone, _ := objectutil.DeepClone(content).(bson.M)
	_ = s.cache.Set(ctx, handle, &BlobEntry{Content: clone, LoadedAt: time.Now()}, s.opts.CacheTTL)
	return nil
}

// MarkDirty flags the cached entry for handle, if any, as dirty: the next
// Read bypasses the coalescing window and the next Write is never
// suppressed as a no-op. Collection calls this immediately before writing
// a recomputed blob so a concurrent reader never observes a half-updated
// cache entry as fresh.
func (s *Service) MarkDirty(ctx context.Context, handle string) {
	entry, err := s.cache.Get(ctx, handle)
	if err != nil {
		return
	}
	entry.Dirty = true
	_ = s.cache.Set(ctx, handle, entry, s.opts.CacheTTL)
}

// Invalidate drops handle from the cache without touching the backend.
func (s *Service) Invalidate(ctx context.Context, handle string) error {
	return s.cache.Delete(ctx, handle)
}

// Delete removes handle from both the backend and the cache.
func (s *Service) Delete(ctx context.Context, handle string) error {
	if !s.breaker.Allow() {
		return ErrBackendUnavailable
	}
	if err := s.driver.DeleteFile(ctx, handle); err != nil {
		s.breaker.RecordFailure()
		return ErrBackendUnavailable
	}
	s.breaker.RecordSuccess()
	_ = s.cache.Delete(ctx, handle)
	return nil
}
