package store

// Matches reports whether doc satisfies every filter. Backends that receive
// change notifications for a whole collection use it to re-derive filtered
// result sets client-side.
func Matches(doc Document, filters []Filter) bool {
	for _, f := range filters {
		if !matchOne(doc, f) {
			return false
		}
	}
	return true
}

func matchOne(doc Document, f Filter) bool {
	val, ok := doc[f.Field]
	if !ok {
		return false
	}
	switch f.Op {
	case OpEqual:
		return scalarEqual(val, f.Value)
	case OpContains:
		arr, ok := asSlice(val)
		if !ok {
			return false
		}
		for _, elem := range arr {
			if scalarEqual(elem, f.Value) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func asSlice(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		out := make([]any, len(arr))
		for i, s := range arr {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// scalarEqual compares scalar document values, tolerating the int/float64
// asymmetry between written Go values and decoded JSON/CBOR numbers.
func scalarEqual(a, b any) bool {
	if a == b {
		return true
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	return aok && bok && af == bf
}

func asFloat(v any) (float64, bool) {
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
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
