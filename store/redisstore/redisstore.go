// Package redisstore implements store.PropertyStoreDriver on Redis, so the
// master index and collection application locks can be shared across
// processes — the one property store backend that actually lets multiple
// gasdb instances cooperate on the same collections. It also implements
// store.BlobStoreDriver, storing collection bodies as plain Redis strings,
// for the common case of colocating both stores on one Redis instance.
package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gasdb/store"
)

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Store implements store.BlobStoreDriver and store.PropertyStoreDriver over
// a Redis client, mirroring the connection setup and key-prefixing the
// teacher's RedisCache uses.
type Store struct {
	client      *redis.Client
	prefix      string
	lockTimeout time.Duration
	pollDelay   time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix overrides the default "gasdb:" key prefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLockTimeout overrides the duration an acquired lock is held before it
// expires automatically (a safety net against a crashed holder).
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// New creates a Store connected to redisAddr.
func New(ctx context.Context, redisAddr string, opts ...Option) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: redisAddr})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: connect to %s: %w", redisAddr, err)
	}

	s := &Store{
		client:      client,
		prefix:      "gasdb:",
		lockTimeout: 30 * time.Second,
		pollDelay:   25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) blobKey(handle string) string { return s.prefix + "blob:" + handle }
func (s *Store) propKey(key string) string    { return s.prefix + "prop:" + key }
func (s *Store) lockKey(key string) string    { return s.prefix + "lock:" + key }

func (s *Store) ReadFile(ctx context.Context, handle string) ([]byte, error) {
	return s.get(ctx, s.blobKey(handle))
}

func (s *Store) WriteFile(ctx context.Context, handle string, data []byte) error {
	if err := s.client.Set(ctx, s.blobKey(handle), data, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: write %s: %w", handle, err)
	}
	return nil
}

func (s *Store) CreateFile(ctx context.Context, handle string, data []byte) error {
	ok, err := s.client.SetNX(ctx, s.blobKey(handle), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redisstore: create %s: %w", handle, err)
	}
	if !ok {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, handle string) error {
	if err := s.client.Del(ctx, s.blobKey(handle)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", handle, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	return s.get(ctx, s.propKey(key))
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, s.propKey(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redisstore: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.propKey(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, store.ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get %s: %w", key, err)
	}
	return data, nil
}

// WithExclusiveLock acquires a Redis SET-NX lock scoped to key, polling
// until it succeeds or ctx is done, then runs fn and releases the lock with
// a compare-and-delete Lua script so a caller can never release a lock it
// does not hold (the classic single-instance Redlock safety property).
func (s *Store) WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()
	lockKey := s.lockKey(key)

	for {
		ok, err := s.client.SetNX(ctx, lockKey, token, s.lockTimeout).Result()
		if err != nil {
			return fmt.Errorf("redisstore: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("redisstore: acquire lock %s: %w", key, ctx.Err())
		case <-time.After(s.pollDelay):
		}
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Eval(releaseCtx, releaseScript, []string{lockKey}, token)
	}()

	return fn(ctx)
}
