package badgerstore

import (
	"context"
	"testing"

	"gasdb/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStoreBlobRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.ReadFile(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotExist)

	require.NoError(t, s.WriteFile(ctx, "users", []byte(`{"documents":{}}`)))
	data, err := s.ReadFile(ctx, "users")
	require.NoError(t, err)
	assert.Equal(t, `{"documents":{}}`, string(data))
}

func TestBadgerStoreCreateFileRejectsDuplicate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateFile(ctx, "x", []byte("1")))
	err := s.CreateFile(ctx, "x", []byte("2"))
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestBadgerStorePropertyAndLock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "GASDB_MASTER_INDEX", []byte("{}")))
	v, err := s.Get(ctx, "GASDB_MASTER_INDEX")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(v))

	ran := false
	err = s.WithExclusiveLock(ctx, "users", func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}
