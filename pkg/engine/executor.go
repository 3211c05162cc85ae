package engine

import (
	"net/http"
	"strings"

	"github.com/getmoxy/moxy/internal/matching"
	"github.com/getmoxy/moxy/pkg/rules"
	"github.com/getmoxy/moxy/pkg/transform"
)

// execute carries out a matched node's actions in a fixed order
// regardless of key order: set, pass, log, terminate, then the phase's
// content action. pass short-circuits, discarding any respond, modify
// or replace on the same node along with log and terminate. In the
// request phase respond wins over modify; in the response phase replace
// runs first and modify then rewrites the replaced body.
func (e *Engine) execute(phase string, node map[string]any, tx *Transaction, rs *rules.RuleSet, identity string) Decision {
	if v, ok := node[rules.ActionSet]; ok && matching.Truthy(v) {
		e.applySet(v, node, identity)
	}

	if matching.Truthy(node[rules.ActionPass]) {
		return passDecision(phase)
	}

	if v, ok := node[rules.ActionLog]; ok && matching.Truthy(v) {
		e.logAction(phase, v, tx)
	}

	decision := passDecision(phase)
	if matching.Truthy(node[rules.ActionTerminate]) {
		decision.Terminate = true
	}

	opts := transform.Options{BaseDir: rs.BaseDir, Log: e.log}

	if phase == rules.PhaseRequest {
		if v, ok := node[rules.ActionRespond]; ok && matching.Truthy(v) {
			resp, err := e.makeResponse(v, http.StatusOK, nil, nil, rs, opts)
			if err != nil {
				resp = e.errorResponse(err)
			}
			decision.Kind = SynthesizeResponse
			decision.Response = resp
			return decision
		}
		if v, ok := node[rules.ActionModify]; ok && matching.Truthy(v) {
			if err := e.modifyRequest(v, tx, opts); err != nil {
				decision.Kind = SynthesizeResponse
				decision.Response = e.errorResponse(err)
				return decision
			}
			decision.Kind = ForwardModifiedRequest
		}
		return decision
	}

	if v, ok := node[rules.ActionReplace]; ok && matching.Truthy(v) {
		spec := v
		if m, ok := v.(map[string]any); ok {
			if inner, ok := m["response"]; ok && matching.Truthy(inner) {
				spec = inner
			}
		}
		resp, err := e.makeResponse(spec, tx.Status, tx.ResponseBody, tx.ResponseHeaders, rs, opts)
		if err != nil {
			decision.Kind = ReplaceResponse
			decision.Response = e.errorResponse(err)
			return decision
		}
		decision.Kind = ReplaceResponse
		decision.Response = resp
	}

	if v, ok := node[rules.ActionModify]; ok && matching.Truthy(v) {
		body := tx.ResponseBody
		if decision.Response != nil {
			body = decision.Response.Body
		}
		out, err := transform.Apply(v, string(body), opts)
		if err != nil {
			decision.Kind = ReplaceResponse
			decision.Response = e.errorResponse(err)
			return decision
		}
		newBody := []byte(matching.StringForm(out))
		if decision.Response != nil {
			decision.Response.Body = newBody
		} else {
			tx.ResponseBody = newBody
			decision.Kind = ModifyResponse
		}
	}

	return decision
}

// applySet writes state variables. A map sets each named variable;
// a scalar sets the node's own variable. Values are stored in string
// form.
func (e *Engine) applySet(v any, node map[string]any, identity string) {
	if m, ok := v.(map[string]any); ok {
		for name, val := range m {
			e.state.SetVar(name, matching.StringForm(val))
		}
		return
	}
	name := identity
	if s, ok := node[rules.KeyVariable].(string); ok && s != "" {
		name = s
	}
	e.state.SetVar(name, matching.StringForm(v))
}

func (e *Engine) logAction(phase string, v any, tx *Transaction) {
	msg := "matched"
	if s, ok := v.(string); ok && s != "" {
		msg = s
	}
	if phase == rules.PhaseResponse {
		e.log.Info(msg, "phase", phase, "method", tx.Method, "path", tx.Path, "status", tx.Status)
		return
	}
	e.log.Info(msg, "phase", phase, "method", tx.Method, "path", tx.Path)
}

// makeResponse builds a response from a respond or replace value. The
// defaults carry the original response through fields the value leaves
// out. Content-Type precedence: explicit "type", then the original
// header, then the type inferred from the content value; a charset is
// appended unless the type already has parameters or is an image type.
func (e *Engine) makeResponse(spec any, defStatus int, defBody []byte, defHeaders http.Header, rs *rules.RuleSet, opts transform.Options) (*Response, error) {
	m, ok := spec.(map[string]any)
	if !ok {
		m = map[string]any{"content": spec}
	}

	var body []byte
	inferred := ""
	if content, ok := m["content"]; ok && content != nil {
		encoded, ctype, err := transform.EncodeContent(content, opts)
		if err != nil {
			return nil, err
		}
		body, inferred = encoded, ctype
	} else {
		body = defBody
		inferred = "application/json"
		if strings.HasPrefix(string(body), "<") {
			inferred = "text/html"
		}
	}

	ctype := inferred
	if h := defHeaders.Get("Content-Type"); h != "" {
		ctype = h
	}
	if t, ok := m["type"].(string); ok && t != "" {
		ctype = t
	}

	charset := rs.Defaults.Charset
	if c, ok := m["charset"].(string); ok {
		charset = c
	}
	if charset == "" {
		charset = "utf-8"
	}
	if !strings.Contains(ctype, ";") && !strings.Contains(ctype, "image") {
		ctype += "; charset=" + charset
	}

	headers := make(http.Header, len(defHeaders)+2)
	for k, v := range defHeaders {
		headers[k] = v
	}
	headers.Set("Content-Type", ctype)
	if hm, ok := m["headers"].(map[string]any); ok {
		for k, v := range hm {
			headers.Set(k, matching.StringForm(v))
		}
	}

	status := defStatus
	if sv, ok := m["status"]; ok {
		if f, ok := matching.ToFloat64(sv); ok {
			status = int(f)
		}
	}

	return &Response{Status: status, Headers: headers, Body: body}, nil
}

// errorResponse synthesizes the diagnostic sent when a referenced file
// cannot be read or a transform fails hard.
func (e *Engine) errorResponse(err error) *Response {
	e.log.Error("handler action failed", "error", err)
	headers := http.Header{}
	headers.Set("Content-Type", "text/plain; charset=utf-8")
	return &Response{
		Status:  http.StatusInternalServerError,
		Headers: headers,
		Body:    []byte("moxy: " + err.Error()),
	}
}

// modifyRequest rewrites the outgoing request in place.
func (e *Engine) modifyRequest(v any, tx *Transaction, opts transform.Options) error {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	if s, ok := m["scheme"].(string); ok && s != "" {
		tx.Scheme = s
	}
	if s, ok := m["host"].(string); ok && s != "" {
		tx.Host = s
	}
	if s, ok := m["method"].(string); ok && s != "" {
		tx.Method = s
	}
	if s, ok := m["path"].(string); ok && s != "" {
		tx.Path = s
	}

	if qv, ok := m["query"]; ok && matching.Truthy(qv) {
		if err := e.modifyQuery(qv, tx, opts); err != nil {
			return err
		}
	}

	if hm, ok := m["headers"].(map[string]any); ok {
		if tx.RequestHeaders == nil {
			tx.RequestHeaders = http.Header{}
		}
		for k, val := range hm {
			tx.RequestHeaders.Set(k, matching.StringForm(val))
		}
	}

	if cv, ok := m["content"]; ok && cv != nil {
		out, err := transform.Apply(cv, string(tx.RequestBody), opts)
		if err != nil {
			return err
		}
		tx.RequestBody = []byte(matching.StringForm(out))
	}

	return nil
}

// modifyQuery rewrites the query string. A map sets parameters
// directly; any other value runs the transform pipeline over the
// query's object form.
func (e *Engine) modifyQuery(qv any, tx *Transaction, opts transform.Options) error {
	values := tx.QueryValues()

	if qm, ok := qv.(map[string]any); ok {
		for k, val := range qm {
			values.Set(k, matching.StringForm(val))
		}
		tx.SetQuery(values)
		return nil
	}

	obj := make(map[string]any, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			obj[k] = vs[0]
		}
	}
	out, err := transform.Apply(qv, obj, opts)
	if err != nil {
		return err
	}
	if om, ok := out.(map[string]any); ok {
		rebuilt := make(map[string][]string, len(om))
		for k, val := range om {
			rebuilt[k] = []string{matching.StringForm(val)}
		}
		tx.SetQuery(rebuilt)
	}
	return nil
}
