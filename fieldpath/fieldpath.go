// Package fieldpath parses and traverses the dotted paths used throughout
// gasdb's filter and update expressions ("a.b.0.c"). A numeric segment is
// resolved as an array index when the value it addresses is an array, and as
// an ordinary object key otherwise — the parent's shape decides, never the
// segment's own look.
package fieldpath

import (
	"errors"
	"strconv"
	"strings"

	"gasdb/objectutil"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrEmptyPath is returned when a path is empty or contains an empty segment
// (leading, trailing, or doubled dot).
var ErrEmptyPath = errors.New("fieldpath: path must be a non-empty dotted path with no empty segments")

// ErrArrayIndexOutOfRange is returned by Set when a segment addresses an
// array index beyond the array's current bounds. Writers never pad arrays.
var ErrArrayIndexOutOfRange = errors.New("fieldpath: array index out of range")

// ErrTypeConflict is returned by Set when an intermediate segment of the path
// already holds a scalar or array value, so an object cannot be created there.
var ErrTypeConflict = errors.New("fieldpath: path segment is not traversable")

// Parse splits a dotted path into its ordered segments.
func Parse(path string) ([]string, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	segments := strings.Split(path, ".")
	for _, s := range segments {
		if s == "" {
			return nil, ErrEmptyPath
		}
	}
	return segments, nil
}

// Get resolves path against doc. found is false when any intermediate
// segment is absent or unreachable; it is distinct from an explicit nil
// value, which is found=true, value=nil.
func Get(doc bson.M, path string) (value interface{}, found bool, err error) {
	segments, err := Parse(path)
	if err != nil {
		return nil, false, err
	}
	v, ok := getSegments(doc, segments)
	return v, ok, nil
}

func getSegments(current interface{}, segments []string) (interface{}, bool) {
	if len(segments) == 0 {
		return current, true
	}
	seg := segments[0]
	rest := segments[1:]

	if m, ok := objectutil.AsMap(current); ok {
		val, present := m[seg]
		if !present {
			return nil, false
		}
		return getSegments(val, rest)
	}

	if arr, ok := objectutil.AsSlice(current); ok {
		idx, convErr := strconv.Atoi(seg)
		if convErr != nil || idx < 0 || idx >= len(arr) {
			return nil, false
		}
		return getSegments(arr[idx], rest)
	}

	return nil, false
}

// Set assigns value at path, creating intermediate objects (never arrays) as
// needed. Writing through an array index beyond its current length fails
// with ErrArrayIndexOutOfRange; writers never pad arrays. Writing through a
// segment that already holds a non-traversable scalar or array fails with
// ErrTypeConflict.
func Set(doc bson.M, path string, value interface{}) error {
	segments, err := Parse(path)
	if err != nil {
		return err
	}
	return setInto(doc, segments, value)
}

// setInto dispatches a write into an already-resolved container value, which
// may be a nested object or an array reached by a numeric segment further up
// the path.
func setInto(container interface{}, segments []string, value interface{}) error {
	seg := segments[0]
	rest := segments[1:]

	if m, ok := objectutil.AsMap(container); ok {
		if len(rest) == 0 {
			m[seg] = value
			return nil
		}
		next, present := m[seg]
		if !present || next == nil {
			fresh := bson.M{}
			m[seg] = fresh
			return setInto(fresh, rest, value)
		}
		return setInto(next, rest, value)
	}

	if arr, ok := objectutil.AsSlice(container); ok {
		idx, convErr := strconv.Atoi(seg)
		if convErr != nil {
			return ErrTypeConflict
		}
		if idx < 0 || idx >= len(arr) {
			return ErrArrayIndexOutOfRange
		}
		if len(rest) == 0 {
			arr[idx] = value
			return nil
		}
		next := arr[idx]
		if next == nil {
			fresh := bson.M{}
			arr[idx] = fresh
			return setInto(fresh, rest, value)
		}
		return setInto(next, rest, value)
	}

	return ErrTypeConflict
}

// Unset removes the value at path, leaving the document untouched if the
// path is already absent. An array element addressed by index is set to nil
// rather than removed, since removal would shift subsequent indices.
func Unset(doc bson.M, path string) error {
	segments, err := Parse(path)
	if err != nil {
		return err
	}
	return unsetSegments(doc, segments)
}

func unsetSegments(container bson.M, segments []string) error {
	seg := segments[0]
	rest := segments[1:]

	if len(rest) == 0 {
		delete(container, seg)
		return nil
	}

	next, present := container[seg]
	if !present || next == nil {
		return nil
	}
	return unsetInto(next, rest)
}

func unsetInto(container interface{}, segments []string) error {
	seg := segments[0]
	rest := segments[1:]

	if m, ok := objectutil.AsMap(container); ok {
		if len(rest) == 0 {
			delete(m, seg)
			return nil
		}
		next, present := m[seg]
		if !present || next == nil {
			return nil
		}
		return unsetInto(next, rest)
	}

	if arr, ok := objectutil.AsSlice(container); ok {
		idx, convErr := strconv.Atoi(seg)
		if convErr != nil || idx < 0 || idx >= len(arr) {
			return nil
		}
		if len(rest) == 0 {
			arr[idx] = nil
			return nil
		}
		next := arr[idx]
		if next == nil {
			return nil
		}
		return unsetInto(next, rest)
	}

	return nil
}
