package query

import (
	"strings"
	"time"
)

// compareOrdered compares a and b for $gt/$gte/$lt/$lte. ok is false when a
// and b are not of comparable types (e.g. string vs number), in which case
// the comparison never matches regardless of operator — callers must check
// ok before interpreting cmp.
//
// Per spec: numbers compare numerically, strings lexicographically, dates by
// instant, and booleans order false < true.
func compareOrdered(a, b interface{}) (cmp int, ok bool) {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			switch {
			case af < bf:
				return -1, true
			case af > bf:
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs), true
		}
		return 0, false
	}

	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1, true
			case at.After(bt):
				return 1, true
			default:
				return 0, true
			}
		}
		return 0, false
	}

	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return boolRank(ab) - boolRank(bb), true
		}
		return 0, false
	}

	return 0, false
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asNumber(v interface{}) (float64, bool) {
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
