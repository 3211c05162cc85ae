// Package transform implements the content-transformation pipeline
// applied by modify actions: an ordered list of steps that delete,
// replace, compute, and merge pieces of a transaction body.
package transform

import (
	"regexp"
	"strings"

	"github.com/getmoxy/moxy/internal/matching"
)

// Apply runs a modify value against content and returns the result. The
// value is a single step or a list of steps applied in order; content
// threads through the pipeline, so a step sees its predecessor's
// output. The only error is an unreadable referenced file, which aborts
// the pipeline.
//
// A map step applies its operations in a fixed order regardless of key
// order: delete, replace, replace_expr, merge. A bare string or
// [pattern, substitution] step is a regex substitution over the string
// form of content.
func Apply(steps, content any, opts Options) (any, error) {
	for _, step := range normalizeSteps(steps) {
		switch s := step.(type) {
		case map[string]any:
			if v, ok := s["delete"]; ok && matching.Truthy(v) {
				if obj, parsed := asObject(content); parsed {
					content = Delete(v, obj)
				}
			}
			if v, ok := s["replace"]; ok && matching.Truthy(v) {
				replaced, err := applyReplace(v, content, opts)
				if err != nil {
					return nil, err
				}
				content = replaced
			}
			if v, ok := s["replace_expr"]; ok && matching.Truthy(v) {
				content = replaceExpr(v, content, opts)
			}
			if v, ok := s["merge"]; ok && matching.Truthy(v) {
				merged, err := Merge(v, objectOr(content), opts)
				if err != nil {
					return nil, err
				}
				content = merged
			}
		default:
			content = applySubstitution(s, content, opts)
		}
	}
	return content, nil
}

func normalizeSteps(steps any) []any {
	if list, ok := steps.([]any); ok {
		return list
	}
	return []any{steps}
}

// applyReplace applies a replace operation. A file-reference string
// replaces content with the file (parsed when it is a JSON file), a
// delimiter string or [pattern, substitution] pair is a regex
// substitution, any other string replaces content wholesale, and a map
// overwrites content's top-level keys.
func applyReplace(value, content any, opts Options) (any, error) {
	switch v := value.(type) {
	case string:
		if IsJSONFileRef(v) {
			return opts.loadJSONFileRef(v)
		}
		if IsFileRef(v) {
			data, err := opts.ReadFile(v)
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}
		if out, ok := substitute(v, content, opts); ok {
			return out, nil
		}
		return v, nil
	case []any:
		return applySubstitution(v, content, opts), nil
	case map[string]any:
		obj, ok := objectOr(content).(map[string]any)
		if !ok {
			return deepCopy(v), nil
		}
		for key, val := range v {
			obj[key] = deepCopy(val)
		}
		return obj, nil
	}
	return content, nil
}

// applySubstitution applies a bare substitution step: either a
// delimiter string ("/pattern/substitution", any leading delimiter
// character) or a [pattern, substitution] pair. Malformed steps are
// logged and skipped.
func applySubstitution(step, content any, opts Options) any {
	switch v := step.(type) {
	case string:
		if out, ok := substitute(v, content, opts); ok {
			return out
		}
		opts.logger().Warn("ignoring malformed substitution", "step", v)
		return content
	case []any:
		if len(v) != 2 {
			opts.logger().Warn("ignoring malformed substitution, want [pattern, substitution]", "step", v)
			return content
		}
		pattern, pok := v[0].(string)
		sub, sok := v[1].(string)
		if !pok || !sok {
			opts.logger().Warn("ignoring malformed substitution, want [pattern, substitution]", "step", v)
			return content
		}
		return regexSub(pattern, sub, content, opts)
	}
	opts.logger().Warn("ignoring malformed substitution", "step", step)
	return content
}

// substitute parses a delimiter-form substitution and applies it. The
// first character is the delimiter; exactly two fields must follow.
func substitute(s string, content any, opts Options) (any, bool) {
	if len(s) < 2 {
		return nil, false
	}
	fields := strings.Split(s[1:], s[:1])
	if len(fields) != 2 {
		return nil, false
	}
	return regexSub(fields[0], fields[1], content, opts), true
}

func regexSub(pattern, sub string, content any, opts Options) any {
	re, err := regexp.Compile(pattern)
	if err != nil {
		opts.logger().Warn("ignoring substitution with invalid pattern", "pattern", pattern, "error", err)
		return content
	}
	return re.ReplaceAllString(matching.StringForm(content), sub)
}
