package engine

import (
	"encoding/json"
	"net/http"

	"github.com/getmoxy/moxy/internal/matching"
	"github.com/getmoxy/moxy/pkg/rules"
)

// matches evaluates every match clause on a resolved node; all present
// clauses must hold. Host and scheme fall back to the document-level
// defaults when the node has no clause of its own.
func (e *Engine) matches(phase string, node map[string]any, tx *Transaction, rs *rules.RuleSet, identity string) bool {
	host := node[rules.ClauseHost]
	if host == nil {
		host = rs.Defaults.Host
	}
	if host != nil && !matching.Host(host, tx.Host) {
		return false
	}

	scheme := node[rules.ClauseScheme]
	if scheme == nil {
		scheme = rs.Defaults.Scheme
	}
	if present(scheme) && !matching.Value(scheme, tx.Scheme) {
		return false
	}

	if p := node[rules.ClauseMethod]; present(p) && !matching.Value(p, tx.Method) {
		return false
	}
	if p := node[rules.ClausePath]; present(p) && !matching.Value(p, tx.Path) {
		return false
	}

	if qm, ok := node[rules.ClauseQuery].(map[string]any); ok {
		values := tx.QueryValues()
		for key, pattern := range qm {
			vs, ok := values[key]
			if !ok {
				return false
			}
			matched := false
			for _, v := range vs {
				if matching.Value(pattern, v) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
		}
	}

	if p := node[rules.ClauseHeaders]; present(p) {
		headers := tx.RequestHeaders
		if phase == rules.PhaseResponse {
			headers = tx.MergedHeaders()
		}
		text := func() string { return headerText(headers) }
		obj := func() any { return headerObject(headers) }
		if !matching.Content(canonicalHeaderPattern(p), text, obj) {
			return false
		}
	}

	if p := node[rules.ClauseContent]; present(p) {
		body := tx.RequestBody
		if phase == rules.PhaseResponse {
			body = tx.ResponseBody
		}
		text := func() string { return string(body) }
		obj := func() any {
			var v any
			if err := json.Unmarshal(body, &v); err != nil {
				return nil
			}
			return v
		}
		if !matching.Content(p, text, obj) {
			return false
		}
	}

	if jm, ok := node[rules.ClauseJSONPath].(map[string]any); ok {
		body := tx.RequestBody
		if phase == rules.PhaseResponse {
			body = tx.ResponseBody
		}
		var data any
		if err := json.Unmarshal(body, &data); err != nil {
			return false
		}
		if !matching.JSONPath(jm, data) {
			return false
		}
	}

	if p := node[rules.ClauseStatus]; present(p) {
		if !tx.HasResponse() || !matching.Value(p, tx.Status) {
			return false
		}
	}
	if p, ok := node[rules.ClauseError].(bool); ok {
		if !tx.HasResponse() || p != tx.IsError() {
			return false
		}
	}

	if p := node[rules.ClauseRequire]; present(p) {
		if !e.requireHolds(p, node, identity) {
			return false
		}
	}

	return true
}

// requireHolds checks state-variable preconditions. A map checks each
// named variable against its pattern; a scalar pattern checks the
// node's own variable. A variable that was never set compares as "".
func (e *Engine) requireHolds(pattern any, node map[string]any, identity string) bool {
	if m, ok := pattern.(map[string]any); ok {
		for name, p := range m {
			if !matching.Value(p, e.state.VarOr(name, "")) {
				return false
			}
		}
		return true
	}
	name := identity
	if s, ok := node[rules.KeyVariable].(string); ok && s != "" {
		name = s
	}
	return matching.Value(pattern, e.state.VarOr(name, ""))
}

// present distinguishes a meaningful clause from an absent or blank
// one, so "scheme": "" does not force a match failure.
func present(p any) bool {
	return p != nil && p != ""
}

func headerObject(h http.Header) any {
	obj := make(map[string]any, len(h))
	for k, vs := range h {
		if len(vs) > 0 {
			obj[k] = vs[0]
		}
	}
	return obj
}

func headerText(h http.Header) string {
	data, _ := json.Marshal(headerObject(h))
	return string(data)
}

// canonicalHeaderPattern rewrites a header pattern's top-level keys to
// canonical MIME form so "content-type" matches "Content-Type".
func canonicalHeaderPattern(p any) any {
	switch v := p.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[http.CanonicalHeaderKey(k)] = val
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = canonicalHeaderPattern(item)
		}
		return out
	}
	return p
}
