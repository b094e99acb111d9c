// Package value defines the tree shape the engine operates on and the
// structural invariant ("normalization") that holds after every query.
//
// A Value is one of: string, []any (sequence), map[string]any (mapping),
// or nil (empty). This mirrors the shape ojg decodes JSON into, so the
// engine can load, mutate and re-encode a tree without a marshaling
// layer in between.
package value

// IsEmpty reports whether v is the engine's notion of "absent": nil, an
// empty string, an empty sequence, or an empty mapping. Any other value,
// including the string "0" or an empty-looking number, is not empty.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}

// Normalize removes empty-valued children from data and collapses any
// single-element sequence child to its lone element. It recurses into
// mapping children only; sequence elements are never descended into.
//
// When a child's removal could make its own parent newly empty,
// Normalize re-runs at that level so that a chain of now-empty
// ancestors collapses in one call at the root.
//
// It returns true if any child of data was removed, so a caller one
// level up knows to recheck itself.
func Normalize(data map[string]any) bool {
	childRemoved := false

	for child, leaf := range data {
		if IsEmpty(leaf) {
			delete(data, child)
			childRemoved = true
			continue
		}

		switch t := leaf.(type) {
		case []any:
			if len(t) == 1 {
				data[child] = t[0]
			}
		case map[string]any:
			if Normalize(t) {
				return Normalize(data)
			}
		}
	}

	return childRemoved
}

// IsReference reports whether s is a symlink/reference token: a
// non-empty string whose first byte is '!'.
func IsReference(s string) bool {
	return len(s) > 0 && s[0] == '!'
}

// StripReference removes a leading '!' from s, if present.
func StripReference(s string) string {
	if IsReference(s) {
		return s[1:]
	}
	return s
}
