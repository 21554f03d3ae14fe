package gasdb

import (
	"errors"

	"gasdb/objectutil"
	"gasdb/query"
	"gasdb/update"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// documentOperations implements the in-memory document primitives spec.md
// §4.4 describes, working against a plain map[string]bson.M rather than
// owning any state itself: Collection owns the map and the lazy-load/dirty
// bookkeeping around it, and calls into these functions between an
// acquire-lock and a persist.

// insertDocument validates doc, assigns a UUID-shaped _id when absent, and
// inserts it into docs. docs is mutated in place; doc is never mutated.
func insertDocument(docs map[string]bson.M, doc bson.M) (inserted bson.M, id string, err error) {
	if objectutil.HasOperatorKeys(doc) {
		return nil, "", newError(KindInvalidDocument, "document contains an operator-shaped key")
	}
	if err := objectutil.Validate(doc); err != nil {
		return nil, "", wrapError(KindInvalidDocument, err, "document contains a non-finite number")
	}

	clone, _ := objectutil.DeepClone(doc).(bson.M)
	if clone == nil {
		clone = bson.M{}
	}

	rawID, present := clone["_id"]
	var id2 string
	switch {
	case !present || rawID == nil:
		id2 = uuid.NewString()
		clone["_id"] = id2
	default:
		s, ok := rawID.(string)
		if !ok || s == "" {
			return nil, "", newError(KindInvalidDocument, "_id must be a non-empty string")
		}
		id2 = s
	}

	if _, exists := docs[id2]; exists {
		return nil, "", newError(KindDuplicateKey, "document with _id %q already exists", id2)
	}

	docs[id2] = clone
	return clone, id2, nil
}

// findByID returns a deep clone of the document stored under id.
func findByID(docs map[string]bson.M, id string) (bson.M, bool) {
	doc, ok := docs[id]
	if !ok {
		return nil, false
	}
	return objectutil.DeepClone(doc).(bson.M), true
}

// findAll returns a deep clone of every document, in no particular order.
func findAll(docs map[string]bson.M) []bson.M {
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		out = append(out, objectutil.DeepClone(d).(bson.M))
	}
	return out
}

// asSlice is the shared flattening step findByFilter/findAllByFilter/
// countByFilter need before handing documents to the query engine.
func asSlice(docs map[string]bson.M) []bson.M {
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		out = append(out, d)
	}
	return out
}

// findByFilter returns the first document (by map iteration order, which is
// unspecified) matching filter.
func findByFilter(docs map[string]bson.M, filter bson.M) (bson.M, bool, error) {
	doc, found, err := query.FindFirst(asSlice(docs), filter)
	if err != nil {
		return nil, false, translateQueryErr(err)
	}
	if !found {
		return nil, false, nil
	}
	return objectutil.DeepClone(doc).(bson.M), true, nil
}

// findAllByFilter returns every document matching filter.
func findAllByFilter(docs map[string]bson.M, filter bson.M) ([]bson.M, error) {
	matches, err := query.FindAll(asSlice(docs), filter)
	if err != nil {
		return nil, translateQueryErr(err)
	}
	out := make([]bson.M, len(matches))
	for i, d := range matches {
		out[i] = objectutil.DeepClone(d).(bson.M)
	}
	return out, nil
}

// countByFilter reports how many documents match filter.
func countByFilter(docs map[string]bson.M, filter bson.M) (int, error) {
	n, err := query.Count(asSlice(docs), filter)
	if err != nil {
		return 0, translateQueryErr(err)
	}
	return n, nil
}

// replaceByID replaces the document stored under id with replacement,
// rejecting operator-shaped keys and an _id mismatch. replacement's _id, if
// present, must equal id.
func replaceByID(docs map[string]bson.M, id string, replacement bson.M) (bson.M, error) {
	if objectutil.HasOperatorKeys(replacement) {
		return nil, newError(KindInvalidDocument, "replacement document contains an operator-shaped key")
	}
	if err := objectutil.Validate(replacement); err != nil {
		return nil, wrapError(KindInvalidDocument, err, "replacement document contains a non-finite number")
	}

	clone, _ := objectutil.DeepClone(replacement).(bson.M)
	if clone == nil {
		clone = bson.M{}
	}

	if rawID, present := clone["_id"]; present && rawID != nil {
		s, ok := rawID.(string)
		if !ok || s != id {
			return nil, newError(KindImmutableField, "replacement _id must equal the target document's _id")
		}
	}
	clone["_id"] = id

	docs[id] = clone
	return clone, nil
}

// updateResult is the outcome of updateByIDWithOperators.
type updateResult struct {
	Matched  int
	Modified int
	Document bson.M
}

// updateByIDWithOperators applies upd to the document stored under id via
// the update engine, replacing it in docs if, and only if, the result
// differs from the stored document.
func updateByIDWithOperators(docs map[string]bson.M, id string, upd bson.M) (updateResult, error) {
	doc, found := docs[id]
	if !found {
		return updateResult{}, nil
	}

	res, err := update.Apply(doc, upd)
	if err != nil {
		return updateResult{}, translateUpdateErr(err)
	}

	if res.HasChanges {
		docs[id] = res.Document
	}

	modified := 0
	if res.HasChanges {
		modified = 1
	}
	return updateResult{Matched: 1, Modified: modified, Document: res.Document}, nil
}

// deleteByID removes the document stored under id, reporting whether one was
// present.
func deleteByID(docs map[string]bson.M, id string) bool {
	if _, found := docs[id]; !found {
		return false
	}
	delete(docs, id)
	return true
}

// deleteByFilter removes every document matching filter, returning the
// number removed.
func deleteByFilter(docs map[string]bson.M, filter bson.M) (int, error) {
	matches, err := query.FindAll(asSlice(docs), filter)
	if err != nil {
		return 0, translateQueryErr(err)
	}
	for _, d := range matches {
		id, _ := d["_id"].(string)
		delete(docs, id)
	}
	return len(matches), nil
}

func translateQueryErr(err error) error {
	var invalid *query.InvalidQueryError
	if errors.As(err, &invalid) {
		return wrapError(KindInvalidQuery, err, "%s", invalid.Reason)
	}
	return wrapError(KindInvalidQuery, err, "invalid filter")
}

func translateUpdateErr(err error) error {
	var immutable *update.ImmutableFieldError
	if errors.As(err, &immutable) {
		return wrapError(KindImmutableField, err, "update targets immutable field %q", immutable.Path)
	}
	var invalid *update.InvalidUpdateError
	if errors.As(err, &invalid) {
		return wrapError(KindInvalidUpdate, err, "%s", invalid.Reason)
	}
	return wrapError(KindInvalidUpdate, err, "invalid update")
}
