package engine

import (
	"reflect"
	"sort"
	"strings"

	"github.com/shelfdb/shelf/internal/protocol"
	"github.com/shelfdb/shelf/internal/value"
)

// maxDereferenceDepth bounds reference-chain following: a cycle of
// symlinks fails closed instead of recursing without limit.
const maxDereferenceDepth = 32

// action is the recursive interpreter: it walks keys left to right
// against base, descending into mappings, recognizing operator tokens,
// and following '!'-prefixed reference indexing. Values are the raw
// string | []any | map[string]any | nil shape ojg decodes into.
func (e *Engine) action(ctx *Context, base any, keys []string) error {
	var lastBase any // nil until the first index step; stays nil only for a bare leading operator

	for i, key := range keys {
		var left string
		if i > 0 {
			left = keys[i-1]
		}
		right := keys[i+1:]

		if protocol.Operators[key] {
			switch key {
			case protocol.OpAssign:
				return e.assign(ctx, lastBase, left, right)

			case protocol.OpAppend:
				return e.append(ctx, lastBase, left, right)

			case protocol.OpRemove:
				return e.remove(ctx, lastBase, left, right)

			case protocol.OpSearch:
				if len(keys) <= i+1 {
					return usageErrorf("@ requires a value to search for")
				}
				return e.search(ctx, e.data, keys[i+1], keys[:i])

			case protocol.OpKeysShort, protocol.OpKeysLong:
				return e.keys(ctx, base, left)

			case protocol.OpEditShort, protocol.OpEditLong:
				ctx.Output = []string{marshalPretty(base)}
				return nil

			case protocol.OpSetShort, protocol.OpSetLong:
				if len(right) == 0 {
					return usageErrorf("--set requires a JSON argument")
				}
				return e.set(ctx, lastBase, left, right[0])

			case protocol.OpDelShort, protocol.OpDelLong:
				return e.del(ctx, lastBase, left)

			case protocol.OpPopShort, protocol.OpPopLong:
				return e.pop(ctx, lastBase, left)
			}
		}

		// indexing: descend one level, tracking the level above so the
		// operators above can mutate the right container.
		lastBase = base

		keyIsReference := value.IsReference(key)
		indexKey := value.StripReference(key)

		baseIsReference := false
		if s, ok := base.(string); ok && value.IsReference(s) {
			baseIsReference = true
			base = value.StripReference(s)
		}

		if baseIsReference {
			return e.dereference(ctx, base, keys[i:])
		}

		mapping, ok := base.(map[string]any)
		if !ok {
			return usageErrorf(
				"cannot index through non-mapping. %s -> %s -> ?, %s :: %T",
				left, indexKey, left, base)
		}

		child, exists := mapping[indexKey]
		if !exists {
			if ctx.Strict {
				return strictMissf(indexKey)
			}
			child = map[string]any{}
			mapping[indexKey] = child
		}
		base = child

		if keyIsReference {
			return e.dereference(ctx, base, right)
		}
	}

	ctxPath := ""
	if len(keys) > 0 {
		ctxPath = strings.Join(keys[:len(keys)-1], " = ")
	}
	return e.display(ctx, base, ctxPath)
}

// dereference follows a reference's target(s), always restarting
// indexing from the tree root with the dereferenced path(s) prepended
// to args.
func (e *Engine) dereference(ctx *Context, base any, args []string) error {
	ctx.Dereferenced = true
	ctx.derefDepth++
	defer func() { ctx.derefDepth-- }()
	if ctx.derefDepth > maxDereferenceDepth {
		return usageErrorf("reference chain exceeds depth limit")
	}

	switch b := base.(type) {
	case string:
		return e.dereferenceOne(ctx, b, args)

	case []any:
		for _, elem := range b {
			s, ok := elem.(string)
			if !ok {
				return usageErrorf("cannot dereference a non-string element")
			}
			if err := e.dereferenceOne(ctx, s, args); err != nil {
				return err
			}
		}
		return nil

	default:
		return usageErrorf("cannot dereference this value")
	}
}

func (e *Engine) dereferenceOne(ctx *Context, ref string, args []string) error {
	var target []string
	if _, ok := e.data[ref]; ok {
		target = []string{ref}
	} else {
		target = strings.Split(ref, " ")
	}

	combined := make([]string, 0, len(target)+len(args))
	combined = append(combined, target...)
	combined = append(combined, args...)
	return e.action(ctx, e.data, combined)
}

// display renders value for output, transparently following a
// top-level symlink string and, inside a sequence, any symlinked
// element. An empty value emits nothing.
func (e *Engine) display(ctx *Context, v any, context string) error {
	if value.IsEmpty(v) {
		return nil
	}

	prefix := ""
	if context != "" && ctx.AddContext {
		prefix = context + " = "
	}

	switch t := v.(type) {
	case string:
		if value.IsReference(t) {
			return e.dereference(ctx, value.StripReference(t), nil)
		}
		ctx.emit(prefix + t)

	case []any:
		for _, elem := range t {
			if value.IsEmpty(elem) {
				continue
			}
			if s, ok := elem.(string); ok && value.IsReference(s) {
				if err := e.dereference(ctx, value.StripReference(s), nil); err != nil {
					return err
				}
				continue
			}
			ctx.emit(prefix + renderScalar(elem))
		}

	default:
		ctx.emit(prefix + marshalLine(v))
	}

	return nil
}

// search recursively walks base looking for a leaf equal to needle,
// emitting "<joined path> = <value>" for every hit, regardless of the
// --context flag. Only mapping and sequence values are descended into;
// scalars other than strings never match.
func (e *Engine) search(ctx *Context, base any, needle string, context []string) error {
	switch t := base.(type) {
	case []any:
		for _, elem := range t {
			if s, ok := elem.(string); ok && s == needle {
				if len(context) == 0 {
					continue
				}
				ctx.emit(strings.Join(context, " ") + " = " + needle)
			}
		}

	case map[string]any:
		for k, v := range t {
			if s, ok := v.(string); ok && s == needle {
				path := append(append([]string{}, context...), k)
				ctx.emit(strings.Join(path, " ") + " = " + needle)
				continue
			}
			switch v.(type) {
			case map[string]any, []any:
				nested := append(append([]string{}, context...), k)
				if err := e.search(ctx, v, needle, nested); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Engine) assign(ctx *Context, baseAny any, left string, right []string) error {
	base, ok := baseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot assign: %q is not a mapping", left)
	}

	var newVal any
	if len(right) == 1 {
		newVal = right[0]
	} else {
		newVal = toAnySlice(right)
	}

	if existing, exists := base[left]; exists && reflect.DeepEqual(existing, newVal) {
		return nil
	}

	base[left] = newVal
	ctx.WriteNeeded = true
	return nil
}

func (e *Engine) append(ctx *Context, baseAny any, left string, right []string) error {
	base, ok := baseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot append: %q is not a mapping", left)
	}

	existing := base[left]

	if value.IsEmpty(existing) {
		if len(right) == 1 {
			base[left] = right[0]
		} else {
			base[left] = toAnySlice(right)
		}
		ctx.WriteNeeded = true
		return nil
	}

	switch t := existing.(type) {
	case string:
		base[left] = append([]any{t}, toAnySlice(right)...)
	case []any:
		base[left] = append(append([]any{}, t...), toAnySlice(right)...)
	default:
		return usageErrorf("cannot append to a dictionary")
	}

	ctx.WriteNeeded = true
	return nil
}

func (e *Engine) remove(ctx *Context, baseAny any, left string, right []string) error {
	base, ok := baseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot remove: %q is not a mapping", left)
	}

	existing, exists := base[left]
	if !exists {
		return usageErrorf("%s not found", left)
	}

	switch t := existing.(type) {
	case []any:
		seq := append([]any{}, t...)
		for _, item := range right {
			idx := indexOfAny(seq, item)
			if idx < 0 {
				return usageErrorf("%v not in %s", right, left)
			}
			seq = append(seq[:idx], seq[idx+1:]...)
		}
		switch len(seq) {
		case 0:
			base[left] = []any{}
		case 1:
			base[left] = seq[0]
		default:
			base[left] = seq
		}

	case map[string]any:
		for _, k := range right {
			if _, ok := t[k]; !ok {
				return usageErrorf("%s not found in %s", k, left)
			}
			delete(t, k)
		}

	case string:
		if len(right) != 1 || right[0] != t {
			return usageErrorf("%s does not equal %v", left, right)
		}
		delete(base, left)

	default:
		return usageErrorf("cannot subtract from %q", left)
	}

	ctx.WriteNeeded = true
	return nil
}

func (e *Engine) keys(ctx *Context, baseAny any, left string) error {
	base, ok := baseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot retrieve keys on non-mapping: %q :: %T", left, baseAny)
	}

	sortedKeys := make([]string, 0, len(base))
	for k := range base {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	for _, k := range sortedKeys {
		if err := e.display(ctx, k, ""); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) set(ctx *Context, lastBaseAny any, left string, jsonArg string) error {
	parsed, err := parseJSON(jsonArg)
	if err != nil {
		return usageErrorf("malformed json")
	}

	if lastBaseAny == nil {
		mapping, ok := parsed.(map[string]any)
		if !ok {
			return usageErrorf("top-level --set must replace the tree with a mapping")
		}
		if reflect.DeepEqual(e.data, mapping) {
			return nil
		}
		e.data = mapping
		ctx.WriteNeeded = true
		return nil
	}

	base, ok := lastBaseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot set: %q is not a mapping", left)
	}

	if existing, exists := base[left]; exists && reflect.DeepEqual(existing, parsed) {
		return nil
	}
	base[left] = parsed
	ctx.WriteNeeded = true
	return nil
}

func (e *Engine) del(ctx *Context, lastBaseAny any, left string) error {
	base, ok := lastBaseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot delete: %q is not a mapping", left)
	}
	if _, exists := base[left]; !exists {
		return usageErrorf("%s not found", left)
	}
	delete(base, left)
	ctx.WriteNeeded = true
	return nil
}

func (e *Engine) pop(ctx *Context, lastBaseAny any, left string) error {
	base, ok := lastBaseAny.(map[string]any)
	if !ok {
		return usageErrorf("cannot pop: %q is not a mapping", left)
	}

	existing, exists := base[left]
	if !exists {
		return usageErrorf("%s not found", left)
	}

	if seq, ok := existing.([]any); ok {
		if len(seq) == 0 {
			return usageErrorf("%s is empty", left)
		}
		last := seq[len(seq)-1]
		base[left] = seq[:len(seq)-1]
		ctx.WriteNeeded = true
		return e.display(ctx, last, "")
	}

	if err := e.display(ctx, existing, ""); err != nil {
		return err
	}
	delete(base, left)
	ctx.WriteNeeded = true
	return nil
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func indexOfAny(seq []any, item string) int {
	for i, v := range seq {
		if s, ok := v.(string); ok && s == item {
			return i
		}
	}
	return -1
}

