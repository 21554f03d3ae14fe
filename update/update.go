// Package update implements gasdb's update grammar: applying MongoDB-style
// mutation expressions ($set, $inc, $push, …) to a document immutably. Apply
// never mutates its input; it computes on a deep copy and only returns that
// copy once every operator in the expression has succeeded.
package update

import (
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch"
	"gasdb/fieldpath"
	"gasdb/objectutil"
	"gasdb/query"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrInvalidUpdate is the sentinel every malformed-update error wraps.
var ErrInvalidUpdate = errors.New("update: invalid update expression")

// ErrImmutableField is returned when an update would change or remove the
// document's _id.
var ErrImmutableField = errors.New("update: _id is immutable")

// InvalidUpdateError carries detail about a malformed update expression or a
// type mismatch encountered while applying one.
type InvalidUpdateError struct {
	Reason string
}

func (e *InvalidUpdateError) Error() string   { return fmt.Sprintf("update: %s", e.Reason) }
func (e *InvalidUpdateError) Is(t error) bool { return t == ErrInvalidUpdate }

func invalidf(format string, args ...interface{}) error {
	return &InvalidUpdateError{Reason: fmt.Sprintf(format, args...)}
}

// ImmutableFieldError is returned when an update targets "_id".
type ImmutableFieldError struct{ Path string }

func (e *ImmutableFieldError) Error() string   { return fmt.Sprintf("update: %q is immutable", e.Path) }
func (e *ImmutableFieldError) Is(t error) bool { return t == ErrImmutableField }

// Result is the outcome of a successful Apply: the new document, whether it
// differs from the original, and an RFC 7396 JSON merge patch describing the
// change (nil when HasChanges is false).
type Result struct {
	Document   bson.M
	HasChanges bool
	Patch      []byte
}

// operatorOrder lists operators in the fixed order Apply evaluates them, so
// that "$inc" before "$mul" (say) behaves predictably when both target the
// same path. Apply always uses this order; the order in which operators
// appear in the update expression is not followed, since bson.M (a Go map)
// does not keep it.
var operatorOrder = []string{"$set", "$unset", "$inc", "$mul", "$min", "$max", "$push", "$pull", "$addToSet"}

// Apply computes the result of applying update to doc. doc is never mutated.
func Apply(doc bson.M, upd bson.M) (*Result, error) {
	if len(upd) == 0 {
		return nil, invalidf("update expression must not be empty")
	}

	hasOperator, hasPlain := false, false
	for k := range upd {
		if objectutil.IsOperatorKey(k) {
			hasOperator = true
		} else {
			hasPlain = true
		}
	}
	if hasPlain {
		if hasOperator {
			return nil, invalidf("update expression mixes operators with plain fields")
		}
		return nil, invalidf("update expression must use operators, not plain field assignment")
	}

	working, ok := objectutil.DeepClone(doc).(bson.M)
	if !ok {
		working = bson.M{}
	}

	originalID := doc["_id"]

	for _, op := range operatorOrder {
		args, present := upd[op]
		if !present {
			continue
		}
		argObject, ok := objectutil.AsMap(args)
		if !ok {
			return nil, invalidf("%s requires an object of {path: argument} pairs", op)
		}
		if err := applyOperator(working, op, argObject); err != nil {
			return nil, err
		}
	}

	for op := range upd {
		if !containsString(operatorOrder, op) {
			return nil, invalidf("unknown update operator %q", op)
		}
	}

	if !objectutil.DeepEqual(working["_id"], originalID) {
		return nil, &ImmutableFieldError{Path: "_id"}
	}

	if objectutil.HasOperatorKeys(working) {
		return nil, invalidf("update result must not contain operator-shaped keys")
	}
	if err := objectutil.Validate(working); err != nil {
		return nil, invalidf("update result contains a non-finite number: %v", err)
	}

	hasChanges := !objectutil.DeepEqual(doc, working)
	result := &Result{Document: working, HasChanges: hasChanges}

	if hasChanges {
		patch, err := computePatch(doc, working)
		if err == nil {
			result.Patch = patch
		}
	}

	return result, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func computePatch(before, after bson.M) ([]byte, error) {
	beforeJSON, err := objectutil.MarshalCanonical(before)
	if err != nil {
		return nil, err
	}
	afterJSON, err := objectutil.MarshalCanonical(after)
	if err != nil {
		return nil, err
	}
	patch, err := jsonpatch.CreateMergePatch(beforeJSON, afterJSON)
	if err != nil {
		return nil, err
	}
	return patch, nil
}

func applyOperator(doc bson.M, op string, args map[string]interface{}) error {
	switch op {
	case "$set":
		return applySet(doc, args)
	case "$unset":
		return applyUnset(doc, args)
	case "$inc":
		return applyArith(doc, args, func(cur, arg float64) float64 { return cur + arg })
	case "$mul":
		return applyArith(doc, args, func(cur, arg float64) float64 { return cur * arg })
	case "$min":
		return applyMinMax(doc, args, true)
	case "$max":
		return applyMinMax(doc, args, false)
	case "$push":
		return applyPush(doc, args)
	case "$pull":
		return applyPull(doc, args)
	case "$addToSet":
		return applyAddToSet(doc, args)
	default:
		return invalidf("unknown update operator %q", op)
	}
}

func applySet(doc bson.M, args map[string]interface{}) error {
	for path, value := range args {
		if err := fieldpath.Set(doc, path, objectutil.DeepClone(value)); err != nil {
			return translateFieldPathErr(path, err)
		}
	}
	return nil
}

func applyUnset(doc bson.M, args map[string]interface{}) error {
	for path := range args {
		if err := fieldpath.Unset(doc, path); err != nil {
			return translateFieldPathErr(path, err)
		}
	}
	return nil
}

func applyArith(doc bson.M, args map[string]interface{}, combine func(cur, arg float64) float64) error {
	for path, rawArg := range args {
		arg, ok := asFloat(rawArg)
		if !ok {
			return invalidf("argument for numeric operator at %q must be a number", path)
		}

		cur, found, err := fieldpath.Get(doc, path)
		if err != nil {
			return translateFieldPathErr(path, err)
		}

		var curVal float64
		if found && cur != nil {
			v, ok := asFloat(cur)
			if !ok {
				return invalidf("field %q is not numeric", path)
			}
			curVal = v
		}

		if err := fieldpath.Set(doc, path, combine(curVal, arg)); err != nil {
			return translateFieldPathErr(path, err)
		}
	}
	return nil
}

func applyMinMax(doc bson.M, args map[string]interface{}, wantMin bool) error {
	for path, arg := range args {
		cur, found, err := fieldpath.Get(doc, path)
		if err != nil {
			return translateFieldPathErr(path, err)
		}

		if !found {
			if err := fieldpath.Set(doc, path, objectutil.DeepClone(arg)); err != nil {
				return translateFieldPathErr(path, err)
			}
			continue
		}

		cmp, ok := compareForMinMax(arg, cur)
		if !ok {
			return invalidf("field %q is not comparable with the argument", path)
		}

		replace := (wantMin && cmp < 0) || (!wantMin && cmp > 0)
		if replace {
			if err := fieldpath.Set(doc, path, objectutil.DeepClone(arg)); err != nil {
				return translateFieldPathErr(path, err)
			}
		}
	}
	return nil
}

func applyPush(doc bson.M, args map[string]interface{}) error {
	for path, rawArg := range args {
		toAppend, err := eachValues(rawArg)
		if err != nil {
			return err
		}

		cur, found, gerr := fieldpath.Get(doc, path)
		if gerr != nil {
			return translateFieldPathErr(path, gerr)
		}

		var arr []interface{}
		if found && cur != nil {
			a, ok := objectutil.AsSlice(cur)
			if !ok {
				return invalidf("field %q is not an array", path)
			}
			arr = append(arr, a...)
		}
		for _, v := range toAppend {
			arr = append(arr, objectutil.DeepClone(v))
		}

		if err := fieldpath.Set(doc, path, bson.A(arr)); err != nil {
			return translateFieldPathErr(path, err)
		}
	}
	return nil
}

func applyAddToSet(doc bson.M, args map[string]interface{}) error {
	for path, rawArg := range args {
		toAdd, err := eachValues(rawArg)
		if err != nil {
			return err
		}

		cur, found, gerr := fieldpath.Get(doc, path)
		if gerr != nil {
			return translateFieldPathErr(path, gerr)
		}

		var arr []interface{}
		if found && cur != nil {
			a, ok := objectutil.AsSlice(cur)
			if !ok {
				return invalidf("field %q is not an array", path)
			}
			arr = append(arr, a...)
		}

		for _, v := range toAdd {
			if !containsDeepEqual(arr, v) {
				arr = append(arr, objectutil.DeepClone(v))
			}
		}

		if err := fieldpath.Set(doc, path, bson.A(arr)); err != nil {
			return translateFieldPathErr(path, err)
		}
	}
	return nil
}

func applyPull(doc bson.M, args map[string]interface{}) error {
	for path, rawArg := range args {
		cur, found, gerr := fieldpath.Get(doc, path)
		if gerr != nil {
			return translateFieldPathErr(path, gerr)
		}
		if !found || cur == nil {
			continue
		}
		arr, ok := objectutil.AsSlice(cur)
		if !ok {
			return invalidf("field %q is not an array", path)
		}

		matches, err := buildPullMatcher(rawArg)
		if err != nil {
			return err
		}

		out := make([]interface{}, 0, len(arr))
		for _, elem := range arr {
			if !matches(elem) {
				out = append(out, elem)
			}
		}

		if err := fieldpath.Set(doc, path, bson.A(out)); err != nil {
			return translateFieldPathErr(path, err)
		}
	}
	return nil
}

// buildPullMatcher interprets a $pull argument three ways: a bare literal
// removes array elements deep-equal to it; an object made entirely of
// operator keys ({$gt: 5}) is evaluated against each element's own value; any
// other object is a filter evaluated against elements that are themselves
// documents, reusing the query engine so $pull accepts the same predicate
// grammar as a find filter.
func buildPullMatcher(rawArg interface{}) (func(elem interface{}) bool, error) {
	m, ok := objectutil.AsMap(rawArg)
	if !ok {
		return func(elem interface{}) bool { return objectutil.DeepEqual(elem, rawArg) }, nil
	}

	if isOperatorObject(m) {
		compiled, err := query.Compile(bson.M{"v": bson.M(m)})
		if err != nil {
			return nil, invalidf("$pull operator argument is not a valid filter: %v", err)
		}
		return func(elem interface{}) bool {
			return compiled.Matches(bson.M{"v": elem})
		}, nil
	}

	compiled, err := query.Compile(bson.M(m))
	if err != nil {
		return nil, invalidf("$pull filter argument is not a valid filter: %v", err)
	}
	return func(elem interface{}) bool {
		em, ok := objectutil.AsMap(elem)
		if !ok {
			return false
		}
		return compiled.Matches(bson.M(em))
	}, nil
}

func isOperatorObject(m map[string]interface{}) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if !objectutil.IsOperatorKey(k) {
			return false
		}
	}
	return true
}

func translateFieldPathErr(path string, err error) error {
	switch {
	case errors.Is(err, fieldpath.ErrArrayIndexOutOfRange):
		return invalidf("path %q addresses an array index out of range", path)
	case errors.Is(err, fieldpath.ErrTypeConflict):
		return invalidf("path %q passes through a non-traversable value", path)
	case errors.Is(err, fieldpath.ErrEmptyPath):
		return invalidf("path %q is empty or malformed", path)
	default:
		return invalidf("path %q: %v", path, err)
	}
}

func eachValues(rawArg interface{}) ([]interface{}, error) {
	if m, ok := objectutil.AsMap(rawArg); ok {
		if each, present := m["$each"]; present {
			arr, ok := objectutil.AsSlice(each)
			if !ok {
				return nil, invalidf("$each requires an array argument")
			}
			return arr, nil
		}
	}
	return []interface{}{rawArg}, nil
}

func containsDeepEqual(arr []interface{}, v interface{}) bool {
	for _, elem := range arr {
		if objectutil.DeepEqual(elem, v) {
			return true
		}
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// compareForMinMax reports arg compared to cur (negative if arg < cur) when
// both are of a comparable kind; ok is false otherwise.
func compareForMinMax(arg, cur interface{}) (cmp int, ok bool) {
	if af, aok := asFloat(arg); aok {
		if cf, cok := asFloat(cur); cok {
			switch {
			case af < cf:
				return -1, true
			case af > cf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}
	if as, aok := arg.(string); aok {
		if cs, cok := cur.(string); cok {
			switch {
			case as < cs:
				return -1, true
			case as > cs:
				return 1, true
			default:
				return 0, true
			}
		}
	}
	return 0, false
}
