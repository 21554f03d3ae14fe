package master

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"gasdb/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metadataFor(token string) []byte {
	data, _ := json.Marshal(map[string]string{"modificationToken": token})
	return data
}

func TestAddAndGetCollection(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")

	require.NoError(t, idx.AddCollection(ctx, "tasks", metadataFor("tok-1")))

	raw, found, err := idx.GetCollection(ctx, "tasks")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "tok-1", extractToken(raw))

	_, found, err = idx.GetCollection(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAddCollectionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")

	require.NoError(t, idx.AddCollection(ctx, "tasks", metadataFor("tok-1")))
	require.NoError(t, idx.AddCollection(ctx, "tasks", metadataFor("tok-2")))

	raw, _, err := idx.GetCollection(ctx, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", extractToken(raw))
}

func TestUpdateCollectionMetadataDetectsConflict(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")
	require.NoError(t, idx.AddCollection(ctx, "tasks", metadataFor("tok-1")))

	err := idx.UpdateCollectionMetadata(ctx, "tasks", "tok-1", metadataFor("tok-2"))
	require.NoError(t, err)

	err = idx.UpdateCollectionMetadata(ctx, "tasks", "tok-1", metadataFor("tok-3"))
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "tasks", conflict.Collection)
	assert.Equal(t, "tok-1", conflict.Expected)
	assert.Equal(t, "tok-2", conflict.Actual)
}

func TestResolveConflictStrategies(t *testing.T) {
	assert.Equal(t, "overwrite", ResolveConflict("overwrite"))
	assert.Equal(t, "abort", ResolveConflict("abort"))
	assert.Equal(t, "abort", ResolveConflict("merge"))
}

func TestRemoveCollectionDropsLockToo(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")
	require.NoError(t, idx.AddCollection(ctx, "tasks", metadataFor("tok-1")))
	require.NoError(t, idx.AcquireCollectionLock(ctx, "tasks", "op-1", time.Minute))

	require.NoError(t, idx.RemoveCollection(ctx, "tasks"))

	locked, err := idx.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestAcquireCollectionLockRejectsOtherHolder(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")

	require.NoError(t, idx.AcquireCollectionLock(ctx, "tasks", "op-1", time.Minute))
	err := idx.AcquireCollectionLock(ctx, "tasks", "op-2", time.Minute)
	assert.ErrorIs(t, err, ErrLockHeld)

	locked, err := idx.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.True(t, locked)
}

func TestAcquireCollectionLockAllowsRenewalBySameHolder(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")

	require.NoError(t, idx.AcquireCollectionLock(ctx, "tasks", "op-1", time.Minute))
	require.NoError(t, idx.AcquireCollectionLock(ctx, "tasks", "op-1", time.Minute))
}

func TestReleaseCollectionLockIgnoresWrongHolder(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")
	require.NoError(t, idx.AcquireCollectionLock(ctx, "tasks", "op-1", time.Minute))

	require.NoError(t, idx.ReleaseCollectionLock(ctx, "tasks", "op-2"))
	locked, err := idx.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.True(t, locked)

	require.NoError(t, idx.ReleaseCollectionLock(ctx, "tasks", "op-1"))
	locked, err = idx.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestCleanupExpiredCollectionLocks(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")
	require.NoError(t, idx.AcquireCollectionLock(ctx, "tasks", "op-1", -time.Second))

	removed, err := idx.CleanupExpiredCollectionLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	locked, err := idx.IsCollectionLocked(ctx, "tasks")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestListCollections(t *testing.T) {
	ctx := context.Background()
	idx := NewIndex(memstore.New(), "GASDB_MASTER_INDEX")
	require.NoError(t, idx.AddCollection(ctx, "tasks", metadataFor("tok-1")))
	require.NoError(t, idx.AddCollection(ctx, "users", metadataFor("tok-1")))

	names, err := idx.ListCollections(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"tasks", "users"}, names)
}

func TestGenerateModificationTokenIsUnique(t *testing.T) {
	a := GenerateModificationToken()
	b := GenerateModificationToken()
	assert.NotEqual(t, a, b)
}
