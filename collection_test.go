package gasdb

import (
	"context"
	"testing"

	"gasdb/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	opts := Options{BlobStore: memstore.New(), PropertyStore: memstore.New()}
	db, err := Open(context.Background(), opts)
	require.NoError(t, err)
	return db
}

func newTestCollection(t *testing.T, db *Database, name string) *Collection {
	t.Helper()
	c, err := db.Collection(name)
	require.NoError(t, err)
	return c
}

func TestInsertOneAssignsIDAndPersists(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	res, err := people.InsertOne(ctx, bson.M{"name": "Anna"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.InsertedID)
	assert.True(t, res.Acknowledged)

	doc, err := people.FindOne(ctx, bson.M{"_id": res.InsertedID})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Anna", doc["name"])
}

func TestDuplicateInsertFails(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	_, err := people.InsertOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)

	_, err = people.InsertOne(ctx, bson.M{"_id": "a"})
	require.ErrorIs(t, err, ErrDuplicateKey)

	n, err := people.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestFindWithDottedPathImplicitEquality(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	_, err := people.InsertOne(ctx, bson.M{"_id": "a", "name": bson.M{"first": "Anna"}})
	require.NoError(t, err)
	_, err = people.InsertOne(ctx, bson.M{"_id": "b", "name": bson.M{"first": "Ben"}})
	require.NoError(t, err)

	docs, err := people.Find(ctx, bson.M{"name.first": "Anna"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0]["_id"])
}

func TestLogicalAndOverAgeAndActive(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	ages := []int{29, 0, 45, 38, 50, 65}
	active := []bool{true, false, true, true, false, true}
	for i, age := range ages {
		_, err := people.InsertOne(ctx, bson.M{"age": age, "isActive": active[i]})
		require.NoError(t, err)
	}

	docs, err := people.Find(ctx, bson.M{"$and": bson.A{
		bson.M{"age": bson.M{"$gt": 25}},
		bson.M{"isActive": true},
	}})
	require.NoError(t, err)
	got := make([]int, 0, len(docs))
	for _, d := range docs {
		got = append(got, int(d["age"].(int)))
	}
	assert.ElementsMatch(t, []int{29, 45, 38, 65}, got)
}

func TestUpdateOneIsImmutableFromCallerPerspective(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	nums := newTestCollection(t, db, "nums")

	_, err := nums.InsertOne(ctx, bson.M{"_id": "x", "n": 10})
	require.NoError(t, err)

	res, err := nums.UpdateOne(ctx, bson.M{"_id": "x"}, bson.M{"$inc": bson.M{"n": 5}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.MatchedCount)
	assert.Equal(t, 1, res.ModifiedCount)

	doc, err := nums.FindOne(ctx, bson.M{"_id": "x"})
	require.NoError(t, err)
	assert.InDelta(t, 15.0, doc["n"], 0.0001)
}

func TestArrayOperators(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	items := newTestCollection(t, db, "items")

	_, err := items.InsertOne(ctx, bson.M{"_id": "a", "tags": bson.A{"red", "blue"}})
	require.NoError(t, err)

	res, err := items.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$addToSet": bson.M{"tags": "red"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ModifiedCount)

	_, err = items.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$addToSet": bson.M{"tags": bson.M{"$each": bson.A{"red", "green"}}}})
	require.NoError(t, err)

	doc, err := items.FindOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)
	assert.ElementsMatch(t, bson.A{"red", "blue", "green"}, doc["tags"])

	_, err = items.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$pull": bson.M{"tags": "red"}})
	require.NoError(t, err)

	doc, err = items.FindOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)
	assert.ElementsMatch(t, bson.A{"blue", "green"}, doc["tags"])
}

func TestDeleteManyDecrementsCountByExactlyK(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	for i := 0; i < 5; i++ {
		_, err := people.InsertOne(ctx, bson.M{"kind": "x"})
		require.NoError(t, err)
	}
	_, err := people.InsertOne(ctx, bson.M{"kind": "y"})
	require.NoError(t, err)

	res, err := people.DeleteMany(ctx, bson.M{"kind": "x"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.DeletedCount)

	n, err := people.CountDocuments(ctx, bson.M{"kind": "x"})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	total, err := people.CountDocuments(ctx, bson.M{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestImmutableIDUpdateRejected(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	_, err := people.InsertOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)

	_, err = people.UpdateOne(ctx, bson.M{"_id": "a"}, bson.M{"$set": bson.M{"_id": "b"}})
	require.ErrorIs(t, err, ErrImmutableField)
}

func TestReplaceOnePreservesID(t *testing.T) {
	ctx := context.Background()
	db := newTestDatabase(t)
	people := newTestCollection(t, db, "people")

	_, err := people.InsertOne(ctx, bson.M{"_id": "a", "name": "Anna"})
	require.NoError(t, err)

	res, err := people.ReplaceOne(ctx, bson.M{"_id": "a"}, bson.M{"name": "Annabelle"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ModifiedCount)

	doc, err := people.FindOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", doc["_id"])
	assert.Equal(t, "Annabelle", doc["name"])
}

func TestCollectionSurvivesAcrossReopenOfSameBackend(t *testing.T) {
	ctx := context.Background()
	blobStore := memstore.New()
	propStore := memstore.New()

	db1, err := Open(ctx, Options{BlobStore: blobStore, PropertyStore: propStore})
	require.NoError(t, err)
	people1, err := db1.Collection("people")
	require.NoError(t, err)
	_, err = people1.InsertOne(ctx, bson.M{"_id": "a", "name": "Anna"})
	require.NoError(t, err)

	db2, err := Open(ctx, Options{BlobStore: blobStore, PropertyStore: propStore})
	require.NoError(t, err)
	people2, err := db2.Collection("people")
	require.NoError(t, err)

	doc, err := people2.FindOne(ctx, bson.M{"_id": "a"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, "Anna", doc["name"])
}
