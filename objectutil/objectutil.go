// Package objectutil provides the deep-copy, deep-equality, and canonical
// serialisation primitives shared by every layer of gasdb: the query engine,
// the update engine, document storage, and the master index all compare and
// clone values through this package so that a single definition of "equal"
// and "clone" holds across the whole module.
//
// Documents are represented as bson.M (a thin map[string]interface{} with
// BSON struct tags in mind) rather than plain encoding/json maps, because the
// canonical codec below leans on go.mongodb.org/mongo-driver/bson's relaxed
// Extended JSON to get tagged-date round-tripping for free: a time.Time field
// serialises as {"$date": "..."} and decodes back into a time.Time, which is
// exactly the "discriminated-tag codec" the design notes call for without a
// hand-rolled class registry.
package objectutil

import (
	"math"
	"reflect"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"github.com/jinzhu/copier"
)

// AsMap returns v as a map[string]interface{} view, accepting both bson.M and
// plain map[string]interface{} (bson.Unmarshal produces the former, hand
// built test fixtures often produce the latter).
func AsMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return m, true
	default:
		return nil, false
	}
}

// AsSlice returns v as a []interface{} view, accepting both bson.A and plain
// []interface{}.
func AsSlice(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case bson.A:
		return []interface{}(a), true
	case []interface{}:
		return a, true
	default:
		return nil, false
	}
}

// IsOperatorKey reports whether key is reserved operator syntax ("$..."),
// forbidden as a stored document key at any depth.
func IsOperatorKey(key string) bool {
	return len(key) > 0 && key[0] == '$'
}

// HasOperatorKeys reports whether doc contains an operator-shaped key at any
// depth, in an object or inside arrays of objects.
func HasOperatorKeys(v interface{}) bool {
	switch t := v.(type) {
	case bson.M, map[string]interface{}:
		m, _ := AsMap(t)
		for k, val := range m {
			if IsOperatorKey(k) {
				return true
			}
			if HasOperatorKeys(val) {
				return true
			}
		}
		return false
	default:
		if arr, ok := AsSlice(v); ok {
			for _, elem := range arr {
				if HasOperatorKeys(elem) {
					return true
				}
			}
		}
		return false
	}
}

// Validate rejects documents containing NaN or ±Infinity anywhere in their
// value tree; these are not permitted on insert per the storage format.
func Validate(v interface{}) error {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return errNonFiniteNumber
		}
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return errNonFiniteNumber
		}
	default:
		if m, ok := AsMap(v); ok {
			for _, val := range m {
				if err := Validate(val); err != nil {
					return err
				}
			}
			return nil
		}
		if arr, ok := AsSlice(v); ok {
			for _, elem := range arr {
				if err := Validate(elem); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// DeepClone returns a structurally independent copy of v. Maps, slices, and
// nested documents are copied recursively; time.Time values are copied by
// value (they are already immutable instants); everything else is returned
// as-is since it is a Go value type.
func DeepClone(v interface{}) interface{} {
	switch t := v.(type) {
	case bson.M:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = DeepClone(val)
		}
		return out
	case map[string]interface{}:
		out := make(bson.M, len(t))
		for k, val := range t {
			out[k] = DeepClone(val)
		}
		return out
	case bson.A:
		out := make(bson.A, len(t))
		for i, val := range t {
			out[i] = DeepClone(val)
		}
		return out
	case []interface{}:
		out := make(bson.A, len(t))
		for i, val := range t {
			out[i] = DeepClone(val)
		}
		return out
	case time.Time:
		return t
	default:
		return t
	}
}

// CloneStruct deep-copies a non-document Go struct (CollectionMetadata and
// similar records). It uses jinzhu/copier, which the teacher package already
// depends on for copying cached documents; hand-written recursive cloning
// stays reserved for bson.M/bson.A document trees (above), since copier does
// not handle heterogeneous interface{} maps well.
func CloneStruct[T any](src T) (T, error) {
	var dst T
	if err := copier.CopyWithOption(&dst, src, copier.Option{DeepCopy: true}); err != nil {
		return dst, err
	}
	return dst, nil
}

// DeepEqual reports whether a and b are structurally equal: object key order
// is ignored, array element order matters, NaN is never equal to anything
// (including itself), and dates compare by instant.
func DeepEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			if math.IsNaN(af) || math.IsNaN(bf) {
				return false
			}
			return af == bf
		}
		return false
	}

	switch at := a.(type) {
	case time.Time:
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	case bool:
		bb, ok := b.(bool)
		return ok && at == bb
	case string:
		bs, ok := b.(string)
		return ok && at == bs
	case nil:
		return b == nil
	}

	if am, ok := AsMap(a); ok {
		bm, ok := AsMap(b)
		if !ok || len(am) != len(bm) {
			return false
		}
		keys := make([]string, 0, len(am))
		for k := range am {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			bv, present := bm[k]
			if !present || !DeepEqual(am[k], bv) {
				return false
			}
		}
		return true
	}

	if aa, ok := AsSlice(a); ok {
		ba, ok := AsSlice(b)
		if !ok || len(aa) != len(ba) {
			return false
		}
		for i := range aa {
			if !DeepEqual(aa[i], ba[i]) {
				return false
			}
		}
		return true
	}

	return a == b
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

// MarshalCanonical encodes v (typically a collection blob: {documents, metadata})
// as relaxed Extended JSON, so dates survive as tagged {"$date": "..."} scalars
// while every other value stays plain JSON.
func MarshalCanonical(v interface{}) ([]byte, error) {
	return bson.MarshalExtJSON(v, false, false)
}

// UnmarshalCanonical decodes data produced by MarshalCanonical back into val.
// Tagged dates decode into time.Time wherever the destination is untyped
// (bson.M values, array elements).
func UnmarshalCanonical(data []byte, val interface{}) error {
	reg := bson.NewRegistry()
	reg.RegisterTypeMapEntry(bson.TypeDateTime, reflect.TypeOf(time.Time{}))
	return bson.UnmarshalExtJSONWithRegistry(reg, data, false, val)
}
