package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestSetAndUnset(t *testing.T) {
	doc := bson.M{"_id": "x", "name": "alice", "nested": bson.M{"a": 1}}
	res, err := Apply(doc, bson.M{
		"$set":   bson.M{"name": "bob", "nested.b": 2},
		"$unset": bson.M{"nested.a": ""},
	})
	require.NoError(t, err)
	assert.True(t, res.HasChanges)
	assert.Equal(t, "bob", res.Document["name"])
	assert.Equal(t, bson.M{"b": 2}, res.Document["nested"])
	assert.Equal(t, "alice", doc["name"], "original document must be untouched")
}

func TestImmutableUpdateScenario(t *testing.T) {
	doc := bson.M{"_id": "x", "n": 10}
	res, err := Apply(doc, bson.M{"$inc": bson.M{"n": 5}})
	require.NoError(t, err)
	assert.Equal(t, 15.0, res.Document["n"])
	assert.Equal(t, 10, doc["n"], "original document must remain unchanged")
	assert.Equal(t, "x", res.Document["_id"])
}

func TestIncCreatesFieldWhenAbsent(t *testing.T) {
	doc := bson.M{"_id": "x"}
	res, err := Apply(doc, bson.M{"$inc": bson.M{"count": 3}})
	require.NoError(t, err)
	assert.Equal(t, 3.0, res.Document["count"])
}

func TestMul(t *testing.T) {
	doc := bson.M{"_id": "x", "price": 10}
	res, err := Apply(doc, bson.M{"$mul": bson.M{"price": 1.5}})
	require.NoError(t, err)
	assert.Equal(t, 15.0, res.Document["price"])
}

func TestMinMax(t *testing.T) {
	doc := bson.M{"_id": "x", "lo": 5, "hi": 5}
	res, err := Apply(doc, bson.M{
		"$min": bson.M{"lo": 3},
		"$max": bson.M{"hi": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Document["lo"])
	assert.Equal(t, 5, res.Document["hi"])
}

func TestPushAppendsAndEach(t *testing.T) {
	doc := bson.M{"_id": "x", "tags": bson.A{"a"}}
	res, err := Apply(doc, bson.M{"$push": bson.M{"tags": bson.M{"$each": bson.A{"b", "c"}}}})
	require.NoError(t, err)
	assert.Equal(t, bson.A{"a", "b", "c"}, res.Document["tags"])
}

func TestAddToSetIsNoOpOnExistingValue(t *testing.T) {
	doc := bson.M{"_id": "x", "tags": bson.A{"a", "b"}}
	res, err := Apply(doc, bson.M{"$addToSet": bson.M{"tags": "a"}})
	require.NoError(t, err)
	assert.Equal(t, bson.A{"a", "b"}, res.Document["tags"])
	assert.False(t, res.HasChanges)
}

func TestAddToSetWithEachAddsOnlyNewValues(t *testing.T) {
	doc := bson.M{"_id": "x", "tags": bson.A{"a"}}
	res, err := Apply(doc, bson.M{"$addToSet": bson.M{"tags": bson.M{"$each": bson.A{"a", "b", "c"}}}})
	require.NoError(t, err)
	assert.Equal(t, bson.A{"a", "b", "c"}, res.Document["tags"])
}

func TestPullByLiteralValue(t *testing.T) {
	doc := bson.M{"_id": "x", "tags": bson.A{"a", "b", "a", "c"}}
	res, err := Apply(doc, bson.M{"$pull": bson.M{"tags": "a"}})
	require.NoError(t, err)
	assert.Equal(t, bson.A{"b", "c"}, res.Document["tags"])
}

func TestPullByOperatorArgument(t *testing.T) {
	doc := bson.M{"_id": "x", "scores": bson.A{1, 5, 10, 15}}
	res, err := Apply(doc, bson.M{"$pull": bson.M{"scores": bson.M{"$gte": 10}}})
	require.NoError(t, err)
	assert.Equal(t, bson.A{1, 5}, res.Document["scores"])
}

func TestPullByFilterObjectOnArrayOfDocuments(t *testing.T) {
	doc := bson.M{"_id": "x", "comments": bson.A{
		bson.M{"author": "sam", "resolved": true},
		bson.M{"author": "lee", "resolved": false},
	}}
	res, err := Apply(doc, bson.M{"$pull": bson.M{"comments": bson.M{"resolved": true}}})
	require.NoError(t, err)
	out := res.Document["comments"].(bson.A)
	require.Len(t, out, 1)
	assert.Equal(t, "lee", out[0].(bson.M)["author"])
}

func TestIdImmutableRejectsSetOnId(t *testing.T) {
	doc := bson.M{"_id": "x", "n": 1}
	_, err := Apply(doc, bson.M{"$set": bson.M{"_id": "y"}})
	assert.ErrorIs(t, err, ErrImmutableField)
}

func TestEmptyUpdateRejected(t *testing.T) {
	_, err := Apply(bson.M{"_id": "x"}, bson.M{})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestPlainFieldAssignmentRejected(t *testing.T) {
	_, err := Apply(bson.M{"_id": "x"}, bson.M{"name": "bob"})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestMixedOperatorsAndPlainFieldsRejected(t *testing.T) {
	_, err := Apply(bson.M{"_id": "x"}, bson.M{"$set": bson.M{"a": 1}, "name": "bob"})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestUnknownOperatorRejected(t *testing.T) {
	_, err := Apply(bson.M{"_id": "x"}, bson.M{"$bogus": bson.M{"a": 1}})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestArrayIndexOutOfRangeRejected(t *testing.T) {
	doc := bson.M{"_id": "x", "items": bson.A{"a", "b"}}
	_, err := Apply(doc, bson.M{"$set": bson.M{"items.5": "z"}})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
	assert.Equal(t, bson.A{"a", "b"}, doc["items"], "original document must remain unchanged on failure")
}

func TestIncOnNonNumericFieldRejected(t *testing.T) {
	doc := bson.M{"_id": "x", "name": "alice"}
	_, err := Apply(doc, bson.M{"$inc": bson.M{"name": 1}})
	assert.ErrorIs(t, err, ErrInvalidUpdate)
}

func TestNoOpUpdateReportsNoChanges(t *testing.T) {
	doc := bson.M{"_id": "x", "n": 5}
	res, err := Apply(doc, bson.M{"$set": bson.M{"n": 5}})
	require.NoError(t, err)
	assert.False(t, res.HasChanges)
	assert.Nil(t, res.Patch)
}

func TestChangeProducesMergePatch(t *testing.T) {
	doc := bson.M{"_id": "x", "n": 5}
	res, err := Apply(doc, bson.M{"$set": bson.M{"n": 6}})
	require.NoError(t, err)
	assert.True(t, res.HasChanges)
	assert.NotEmpty(t, res.Patch)
}
