// Package query implements gasdb's filter grammar: compiling and evaluating
// MongoDB-style filter expressions ($eq, $gt, $and, …) against documents.
//
// A filter is an ordinary bson.M. Top-level keys starting with "$" are
// logical operators ($and, $or); every other top-level key is a dotted field
// path whose value is either a literal (implicit equality) or a
// field-operator object ({$gt: 5, $lte: 10, …}).
package query

import (
	"errors"
	"fmt"

	"gasdb/fieldpath"
	"gasdb/objectutil"
	"go.mongodb.org/mongo-driver/bson"
)

// ErrInvalidQuery is the sentinel every malformed-filter error wraps.
var ErrInvalidQuery = errors.New("query: invalid filter")

// MaxFilterDepth bounds nested $and/$or recursion; filters nesting deeper
// than this fail with ErrInvalidQuery rather than exhausting the stack.
// Overridable via SetLimits.
var MaxFilterDepth = 32

// MaxSubfilters bounds the total number of field-predicate and logical-clause
// nodes a single compiled filter may contain. Overridable via SetLimits.
var MaxSubfilters = 2000

// SetLimits overrides MaxFilterDepth and MaxSubfilters; a non-positive value
// leaves the corresponding limit unchanged. Database.Open calls this once at
// startup from Options so a deployment can raise or lower the bound without
// a package-level default working for every caller.
func SetLimits(maxDepth, maxSubfilters int) {
	if maxDepth > 0 {
		MaxFilterDepth = maxDepth
	}
	if maxSubfilters > 0 {
		MaxSubfilters = maxSubfilters
	}
}

// InvalidQueryError carries detail about why a filter failed to compile.
type InvalidQueryError struct {
	Reason string
}

func (e *InvalidQueryError) Error() string   { return fmt.Sprintf("query: invalid filter: %s", e.Reason) }
func (e *InvalidQueryError) Is(t error) bool { return t == ErrInvalidQuery }

func invalidf(format string, args ...interface{}) error {
	return &InvalidQueryError{Reason: fmt.Sprintf(format, args...)}
}

// predicate evaluates a resolved (value, found) pair produced by path
// traversal and reports whether it satisfies a field operator.
type predicate func(value interface{}, found bool) bool

// node is a compiled filter clause.
type node interface {
	matches(doc bson.M) bool
}

// CompiledFilter is a filter that has already been validated against the
// grammar; Matches never fails once compiled.
type CompiledFilter struct {
	root node
}

// Matches evaluates the compiled filter against doc.
func (c *CompiledFilter) Matches(doc bson.M) bool {
	if c.root == nil {
		return true
	}
	return c.root.matches(doc)
}

// Compile validates and compiles filter into a reusable CompiledFilter.
func Compile(filter bson.M) (*CompiledFilter, error) {
	budget := MaxSubfilters
	n, err := compileFilterObject(filter, 0, &budget)
	if err != nil {
		return nil, err
	}
	return &CompiledFilter{root: n}, nil
}

// Matches is a convenience one-shot form of Compile + CompiledFilter.Matches.
func Matches(doc bson.M, filter bson.M) (bool, error) {
	c, err := Compile(filter)
	if err != nil {
		return false, err
	}
	return c.Matches(doc), nil
}

// FindFirst returns the first document in docs satisfying filter.
func FindFirst(docs []bson.M, filter bson.M) (bson.M, bool, error) {
	c, err := Compile(filter)
	if err != nil {
		return nil, false, err
	}
	for _, d := range docs {
		if c.Matches(d) {
			return d, true, nil
		}
	}
	return nil, false, nil
}

// FindAll returns every document in docs satisfying filter.
func FindAll(docs []bson.M, filter bson.M) ([]bson.M, error) {
	c, err := Compile(filter)
	if err != nil {
		return nil, err
	}
	out := make([]bson.M, 0, len(docs))
	for _, d := range docs {
		if c.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// Count reports how many documents in docs satisfy filter.
func Count(docs []bson.M, filter bson.M) (int, error) {
	c, err := Compile(filter)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, d := range docs {
		if c.Matches(d) {
			n++
		}
	}
	return n, nil
}

func consumeBudget(budget *int) error {
	*budget--
	if *budget < 0 {
		return invalidf("filter contains too many clauses (limit %d)", MaxSubfilters)
	}
	return nil
}

// compileFilterObject compiles a top-level (or $and/$or member) filter
// object: an implicit AND of logical operators and field predicates.
func compileFilterObject(filter bson.M, depth int, budget *int) (node, error) {
	if depth > MaxFilterDepth {
		return nil, invalidf("filter nesting exceeds depth limit %d", MaxFilterDepth)
	}
	if err := consumeBudget(budget); err != nil {
		return nil, err
	}

	var clauses []node
	for key, value := range filter {
		var (
			n   node
			err error
		)
		if objectutil.IsOperatorKey(key) {
			n, err = compileLogical(key, value, depth, budget)
		} else {
			n, err = compileFieldPredicate(key, value, budget)
		}
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, n)
	}

	return &andNode{clauses: clauses}, nil
}

func compileLogical(key string, value interface{}, depth int, budget *int) (node, error) {
	arr, ok := objectutil.AsSlice(value)
	if !ok {
		return nil, invalidf("%s requires a non-empty array", key)
	}
	if len(arr) == 0 {
		return nil, invalidf("%s requires a non-empty array", key)
	}

	children := make([]node, 0, len(arr))
	for _, sub := range arr {
		m, ok := objectutil.AsMap(sub)
		if !ok {
			return nil, invalidf("%s elements must be filter objects", key)
		}
		n, err := compileFilterObject(m, depth+1, budget)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}

	switch key {
	case "$and":
		return &andNode{clauses: children}, nil
	case "$or":
		return &orNode{clauses: children}, nil
	default:
		return nil, invalidf("unknown logical operator %q", key)
	}
}

func compileFieldPredicate(path string, value interface{}, budget *int) (node, error) {
	if err := consumeBudget(budget); err != nil {
		return nil, err
	}

	segments, err := fieldpath.Parse(path)
	if err != nil {
		return nil, invalidf("invalid field path %q: %v", path, err)
	}

	opObject, isOpObject := asOperatorObject(value)
	if !isOpObject {
		// Implicit equality.
		literal := value
		return &pathNode{
			segments: segments,
			pred: func(v interface{}, found bool) bool {
				return found && objectutil.DeepEqual(v, literal)
			},
		}, nil
	}

	preds := make([]predicate, 0, len(opObject))
	for op, arg := range opObject {
		p, err := compileFieldOperator(op, arg)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}

	return &pathNode{
		segments: segments,
		pred: func(v interface{}, found bool) bool {
			for _, p := range preds {
				if !p(v, found) {
					return false
				}
			}
			return true
		},
	}, nil
}

// asOperatorObject reports whether value is a field-operator object — a map
// whose keys all start with "$". A plain object literal (no "$" keys) is
// treated as an ordinary literal for implicit equality instead.
func asOperatorObject(value interface{}) (map[string]interface{}, bool) {
	m, ok := objectutil.AsMap(value)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !objectutil.IsOperatorKey(k) {
			return nil, false
		}
	}
	return m, true
}

func compileFieldOperator(op string, arg interface{}) (predicate, error) {
	switch op {
	case "$eq":
		return func(v interface{}, found bool) bool { return found && objectutil.DeepEqual(v, arg) }, nil
	case "$ne":
		return func(v interface{}, found bool) bool { return !(found && objectutil.DeepEqual(v, arg)) }, nil
	case "$gt":
		return func(v interface{}, found bool) bool {
			cmp, ok := compareOrdered(v, arg)
			return found && ok && cmp > 0
		}, nil
	case "$gte":
		return func(v interface{}, found bool) bool {
			cmp, ok := compareOrdered(v, arg)
			return found && ok && cmp >= 0
		}, nil
	case "$lt":
		return func(v interface{}, found bool) bool {
			cmp, ok := compareOrdered(v, arg)
			return found && ok && cmp < 0
		}, nil
	case "$lte":
		return func(v interface{}, found bool) bool {
			cmp, ok := compareOrdered(v, arg)
			return found && ok && cmp <= 0
		}, nil
	case "$in":
		arr, ok := objectutil.AsSlice(arg)
		if !ok {
			return nil, invalidf("$in requires an array argument")
		}
		return func(v interface{}, found bool) bool { return found && containsDeepEqual(arr, v) }, nil
	case "$nin":
		arr, ok := objectutil.AsSlice(arg)
		if !ok {
			return nil, invalidf("$nin requires an array argument")
		}
		return func(v interface{}, found bool) bool { return !(found && containsDeepEqual(arr, v)) }, nil
	case "$exists":
		want, ok := arg.(bool)
		if !ok {
			return nil, invalidf("$exists requires a boolean argument")
		}
		return func(_ interface{}, found bool) bool { return found == want }, nil
	default:
		return nil, invalidf("unknown operator %q", op)
	}
}

func containsDeepEqual(arr []interface{}, v interface{}) bool {
	for _, elem := range arr {
		if objectutil.DeepEqual(elem, v) {
			return true
		}
	}
	return false
}

// andNode matches when every clause matches; an empty andNode (the {} filter)
// always matches.
type andNode struct{ clauses []node }

func (n *andNode) matches(doc bson.M) bool {
	for _, c := range n.clauses {
		if !c.matches(doc) {
			return false
		}
	}
	return true
}

// orNode matches when any clause matches.
type orNode struct{ clauses []node }

func (n *orNode) matches(doc bson.M) bool {
	for _, c := range n.clauses {
		if c.matches(doc) {
			return true
		}
	}
	return false
}

// pathNode evaluates a field predicate against a dotted path, applying
// existential semantics whenever the path traverses an array.
type pathNode struct {
	segments []string
	pred     predicate
}

func (n *pathNode) matches(doc bson.M) bool {
	return matchesPath(doc, true, n.segments, n.pred)
}

// matchesPath descends segments into current, applying pred once resolution
// reaches the end of the path. Whenever the path runs through an array and a
// remaining segment is not numeric, every element of the array is tried in
// turn (existential semantics); a numeric segment selects that index, and an
// out-of-range index counts as missing. At the terminal position, if the
// whole value does not satisfy pred and it is itself an array, each element
// is tried as a fallback. A missing intermediate segment collapses straight
// to pred(nil, false), since there is nothing further to traverse.
func matchesPath(current interface{}, present bool, segments []string, pred predicate) bool {
	if !present {
		return pred(nil, false)
	}

	if len(segments) == 0 {
		if pred(current, true) {
			return true
		}
		if arr, ok := objectutil.AsSlice(current); ok {
			for _, elem := range arr {
				if pred(elem, true) {
					return true
				}
			}
		}
		return false
	}

	if current == nil {
		return pred(nil, false)
	}

	seg := segments[0]
	rest := segments[1:]

	if m, ok := objectutil.AsMap(current); ok {
		val, ok := m[seg]
		return matchesPath(val, ok, rest, pred)
	}

	if arr, ok := objectutil.AsSlice(current); ok {
		return matchesArraySegment(arr, seg, rest, pred)
	}

	return pred(nil, false)
}

func matchesArraySegment(arr []interface{}, seg string, rest []string, pred predicate) bool {
	if idx, err := parseIndex(seg); err == nil {
		if idx < 0 || idx >= len(arr) {
			return pred(nil, false)
		}
		return matchesPath(arr[idx], true, rest, pred)
	}

	full := append([]string{seg}, rest...)
	for _, elem := range arr {
		if matchesPath(elem, true, full, pred) {
			return true
		}
	}
	return false
}

func parseIndex(seg string) (int, error) {
	n := 0
	if seg == "" {
		return 0, invalidf("empty path segment")
	}
	for _, r := range seg {
		if r < '0' || r > '9' {
			return 0, invalidf("not numeric")
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}
