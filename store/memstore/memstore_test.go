package memstore

import (
	"context"
	"sync"
	"testing"

	"gasdb/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.ReadFile(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotExist)

	require.NoError(t, s.WriteFile(ctx, "collection.json", []byte("hello")))
	data, err := s.ReadFile(ctx, "collection.json")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCreateFileRejectsDuplicate(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.CreateFile(ctx, "x", []byte("1")))
	err := s.CreateFile(ctx, "x", []byte("2"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestPropertyStoreRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(v))

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrNotExist)
}

func TestWithExclusiveLockSerializesConcurrentCallers(t *testing.T) {
	s := New()
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.WithExclusiveLock(ctx, "shared", func(ctx context.Context) error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}
