package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestGetDottedPath(t *testing.T) {
	doc := bson.M{"name": bson.M{"first": "Anna"}}
	v, found, err := Get(doc, "name.first")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Anna", v)
}

func TestGetMissingIsDistinctFromNull(t *testing.T) {
	doc := bson.M{"a": nil}
	v, found, err := Get(doc, "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, v)

	_, found, err = Get(doc, "b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetArrayIndex(t *testing.T) {
	doc := bson.M{"items": bson.A{"x", "y"}}
	v, found, err := Get(doc, "items.1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "y", v)

	_, found, err = Get(doc, "items.5")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetNumericSegmentAsObjectKey(t *testing.T) {
	doc := bson.M{"a": bson.M{"0": "zero"}}
	v, found, err := Get(doc, "a.0")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "zero", v)
}

func TestSetCreatesIntermediateObjects(t *testing.T) {
	doc := bson.M{}
	require.NoError(t, Set(doc, "a.b.c", 1))
	assert.Equal(t, 1, doc["a"].(bson.M)["b"].(bson.M)["c"])
}

func TestSetArrayIndexOutOfRangeFails(t *testing.T) {
	doc := bson.M{"items": bson.A{"x", "y"}}
	err := Set(doc, "items.5", "z")
	assert.ErrorIs(t, err, ErrArrayIndexOutOfRange)
}

func TestSetArrayIndexInRangeSucceeds(t *testing.T) {
	doc := bson.M{"items": bson.A{"x", "y"}}
	require.NoError(t, Set(doc, "items.1", "z"))
	assert.Equal(t, "z", doc["items"].(bson.A)[1])
}

func TestSetThroughScalarFails(t *testing.T) {
	doc := bson.M{"a": 5}
	err := Set(doc, "a.b", 1)
	assert.ErrorIs(t, err, ErrTypeConflict)
}

func TestUnsetRemovesKey(t *testing.T) {
	doc := bson.M{"a": bson.M{"b": 1}}
	require.NoError(t, Unset(doc, "a.b"))
	_, present := doc["a"].(bson.M)["b"]
	assert.False(t, present)
}

func TestUnsetMissingIsNoOp(t *testing.T) {
	doc := bson.M{"a": 1}
	require.NoError(t, Unset(doc, "x.y"))
	assert.Equal(t, bson.M{"a": 1}, doc)
}

func TestUnsetArrayIndexNullsWithoutShifting(t *testing.T) {
	doc := bson.M{"items": bson.A{"x", "y", "z"}}
	require.NoError(t, Unset(doc, "items.1"))
	assert.Equal(t, bson.A{"x", nil, "z"}, doc["items"])
}

func TestParseRejectsEmptySegments(t *testing.T) {
	_, err := Parse("a..b")
	assert.ErrorIs(t, err, ErrEmptyPath)
	_, err = Parse("")
	assert.ErrorIs(t, err, ErrEmptyPath)
}
