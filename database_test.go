package gasdb

import (
	"context"
	"testing"

	"gasdb/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestCreateCollectionRegistersInMasterIndex(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	_, err := db.CreateCollection(ctx, "tasks")
	require.NoError(t, err)

	names, err := db.ListCollections(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "tasks")
}

func TestDropCollectionRemovesBlobAndRegistration(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)

	tasks, err := db.CreateCollection(ctx, "tasks")
	require.NoError(t, err)
	_, err = tasks.InsertOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)

	require.NoError(t, db.DropCollection(ctx, "tasks"))

	names, err := db.ListCollections(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "tasks")
}

// TestCrossInstanceConflictReconcilesWithoutLosingEitherWrite models spec
// scenario 6: two Database instances share a backend; B writes while A still
// holds a stale modification token. A's publish collides with B's in the
// master index, producing a *ConflictError (proven directly against
// master.Index in master/index_test.go); Collection's retry loop reloads and
// reapplies A's mutation on top of B's, so neither write is silently lost.
func TestCrossInstanceConflictReconcilesWithoutLosingEitherWrite(t *testing.T) {
	ctx := context.Background()
	blobStore := memstore.New()
	propStore := memstore.New()

	dbA, err := Open(ctx, Options{BlobStore: blobStore, PropertyStore: propStore})
	require.NoError(t, err)
	collA, err := dbA.Collection("accounts")
	require.NoError(t, err)
	_, err = collA.InsertOne(ctx, bson.M{"_id": "a", "balance": 100})
	require.NoError(t, err)

	dbB, err := Open(ctx, Options{BlobStore: blobStore, PropertyStore: propStore})
	require.NoError(t, err)
	collB, err := dbB.Collection("accounts")
	require.NoError(t, err)

	// Instance A reads the document before B writes, so its local token goes
	// stale the moment B publishes.
	_, err = collA.FindOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)

	_, err = collB.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$inc": bson.M{"balance": 50}})
	require.NoError(t, err)

	// A's publish collides with B's write; the retry loop reloads fresh
	// state and reapplies A's $inc on top of it rather than returning a
	// conflict to the caller or clobbering B's update.
	_, err = collA.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$inc": bson.M{"balance": 1}})
	require.NoError(t, err)

	// Read back through a third, cache-free instance rather than collB:
	// collB's own file-service cache may still hold the pre-A snapshot
	// within its coalescing window, which is an intra-instance cache
	// staleness concern orthogonal to what this test checks.
	dbC, err := Open(ctx, Options{BlobStore: blobStore, PropertyStore: propStore})
	require.NoError(t, err)
	collC, err := dbC.Collection("accounts")
	require.NoError(t, err)
	doc, err := collC.FindOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)
	assert.InDelta(t, 151.0, doc["balance"], 0.0001)
}

func TestListCollectionsEmptyByDefault(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	names, err := db.ListCollections(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
