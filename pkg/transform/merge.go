package transform

import (
	"regexp"

	"github.com/getmoxy/moxy/internal/matching"
)

// Merge deep-merges a rule-set value into content and returns the
// result. Maps merge key-wise, lists append, scalars overwrite. A
// string value naming a JSON file loads the file first. A map merged
// into a list applies the where-clause in where.go. Merged-in values
// are deep-copied so the rule set is never aliased by live content.
//
// Two single-key escape hatches work at any depth:
//
//	{"replace_with": V}       replace the subtree wholesale with V
//	{"replace_in": [P, S]}    regex-substitute P -> S in the subtree's
//	                          string form
func Merge(value, content any, opts Options) (any, error) {
	if s, ok := value.(string); ok && IsJSONFileRef(s) {
		loaded, err := opts.loadJSONFileRef(s)
		if err != nil {
			return nil, err
		}
		value = loaded
	}

	switch m := value.(type) {
	case map[string]any:
		if len(m) == 1 {
			if v, ok := m["replace_with"]; ok {
				return replaceWith(v, opts)
			}
			if v, ok := m["replace_in"]; ok {
				return replaceIn(v, content, opts), nil
			}
		}
		switch c := content.(type) {
		case map[string]any:
			for key, mv := range m {
				merged, err := Merge(mv, c[key], opts)
				if err != nil {
					return nil, err
				}
				c[key] = merged
			}
			return c, nil
		case []any:
			if _, ok := m["where"]; ok {
				return applyWhere(m, c, opts)
			}
			return deepCopy(m), nil
		default:
			// Type mismatch: the merged value wins.
			return deepCopy(m), nil
		}
	case []any:
		switch c := content.(type) {
		case []any:
			return append(c, deepCopy(m).([]any)...), nil
		case nil:
			return deepCopy(m), nil
		default:
			return append([]any{content}, deepCopy(m).([]any)...), nil
		}
	default:
		return value, nil
	}
}

// replaceWith resolves the replacement value of a replace_with escape
// hatch, loading it when it references a JSON file.
func replaceWith(v any, opts Options) (any, error) {
	if s, ok := v.(string); ok && IsJSONFileRef(s) {
		return opts.loadJSONFileRef(s)
	}
	return deepCopy(v), nil
}

// replaceIn applies a [pattern, substitution] regex pair to the string
// form of a subtree. A malformed pair leaves the subtree unchanged.
func replaceIn(v, content any, opts Options) any {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		opts.logger().Warn("ignoring malformed replace_in, want [pattern, substitution]", "value", v)
		return content
	}
	pattern, pok := pair[0].(string)
	sub, sok := pair[1].(string)
	if !pok || !sok {
		opts.logger().Warn("ignoring malformed replace_in, want [pattern, substitution]", "value", v)
		return content
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		opts.logger().Warn("ignoring replace_in with invalid pattern", "pattern", pattern, "error", err)
		return content
	}
	return re.ReplaceAllString(matching.StringForm(content), sub)
}
