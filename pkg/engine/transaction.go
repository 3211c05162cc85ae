package engine

import (
	"net/http"
	"net/url"
	"strings"
)

// Transaction is the engine's view of one HTTP exchange. The request
// fields are always set; the response fields are populated before the
// response phase runs. Path carries the full request path including any
// query string.
type Transaction struct {
	ID     string
	Scheme string
	Host   string
	Method string
	Path   string

	RequestHeaders http.Header
	RequestBody    []byte

	Status          int
	ResponseHeaders http.Header
	ResponseBody    []byte
}

// HasResponse reports whether the transaction carries a response.
func (t *Transaction) HasResponse() bool {
	return t.Status != 0
}

// IsError reports whether the response status indicates an error.
func (t *Transaction) IsError() bool {
	return t.Status >= 400
}

// StrippedPath returns the path with query string and fragment removed.
func (t *Transaction) StrippedPath() string {
	p := t.Path
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	return p
}

// QueryValues parses the query-string portion of the path. A malformed
// query yields whatever pairs parsed.
func (t *Transaction) QueryValues() url.Values {
	i := strings.IndexByte(t.Path, '?')
	if i < 0 {
		return url.Values{}
	}
	q := t.Path[i+1:]
	if j := strings.IndexByte(q, '#'); j >= 0 {
		q = q[:j]
	}
	values, _ := url.ParseQuery(q)
	return values
}

// SetQuery rebuilds the path's query string from values.
func (t *Transaction) SetQuery(values url.Values) {
	p := t.StrippedPath()
	if encoded := values.Encode(); encoded != "" {
		p += "?" + encoded
	}
	t.Path = p
}

// MergedHeaders returns the request headers overlaid with the response
// headers, the view header conditions match against in the response
// phase.
func (t *Transaction) MergedHeaders() http.Header {
	merged := make(http.Header, len(t.RequestHeaders)+len(t.ResponseHeaders))
	for k, v := range t.RequestHeaders {
		merged[k] = v
	}
	for k, v := range t.ResponseHeaders {
		merged[k] = v
	}
	return merged
}

// Response is a complete response produced or rewritten by the engine.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// DecisionKind says what the interception layer should do with the
// transaction.
type DecisionKind int

const (
	// ForwardUnmodified forwards the request upstream untouched.
	ForwardUnmodified DecisionKind = iota

	// ForwardModifiedRequest forwards the request after the engine
	// mutated it in place.
	ForwardModifiedRequest

	// SynthesizeResponse answers the request locally with
	// Decision.Response; nothing is forwarded upstream.
	SynthesizeResponse

	// ForwardResponseUnmodified relays the upstream response untouched.
	ForwardResponseUnmodified

	// ReplaceResponse discards the upstream response and delivers
	// Decision.Response instead.
	ReplaceResponse

	// ModifyResponse relays the upstream response after the engine
	// rewrote its body in place.
	ModifyResponse
)

// Decision is the engine's verdict for one phase of a transaction.
type Decision struct {
	Kind     DecisionKind
	Response *Response

	// Terminate asks the interception layer to begin orderly shutdown
	// once this transaction has been answered.
	Terminate bool
}
