package engine

import (
	"fmt"
	"strings"

	"github.com/ohler55/ojg/oj"
)

// render joins output lines the way the wire protocol expects: lines
// separated by "\n" with a trailing "\n", or a single "\n" when there
// is no output at all.
func render(lines []string) string {
	if len(lines) == 0 {
		return "\n"
	}
	return strings.Join(lines, "\n") + "\n"
}

// marshalPretty renders v as indented, sorted-key JSON for --edit.
func marshalPretty(v any) string {
	return oj.JSON(v, &oj.Options{Sort: true, Indent: 4})
}

// marshalLine renders v as compact, sorted-key JSON for a single output
// line (a mapping or sequence element reached without --edit).
func marshalLine(v any) string {
	return oj.JSON(v, &oj.Options{Sort: true})
}

// marshalCompact renders v as compact JSON for on-disk persistence.
func marshalCompact(v any) ([]byte, error) {
	b, err := oj.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tree: %w", err)
	}
	return b, nil
}

// parseJSON parses a JSON document supplied as a --set argument.
func parseJSON(s string) (any, error) {
	v, err := oj.ParseString(s)
	if err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return v, nil
}

// renderScalar stringifies a non-string leaf (bool, float64, nil) for
// inline display the way the argument vector's textual protocol needs.
func renderScalar(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return marshalLine(v)
}
