// Package intercept serves HTTP traffic through the rule engine: every
// transaction runs the request phase before forwarding and the response
// phase before the reply reaches the client.
package intercept

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/getmoxy/moxy/pkg/engine"
	"github.com/getmoxy/moxy/pkg/logging"
)

// DefaultMaxBodySize caps how much of a request or response body is
// buffered for matching and transformation (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// Options configures an Interceptor.
type Options struct {
	// Upstream pins all traffic to one origin. When nil the intercept
	// layer acts as a forward proxy, targeting each request's own host.
	Upstream *url.URL

	// Client performs upstream requests. Defaults to a client with a
	// 30 second timeout that does not follow redirects, so redirects
	// pass through to the real client.
	Client *http.Client

	// MaxBodySize overrides DefaultMaxBodySize.
	MaxBodySize int64

	// OnTerminate runs once when a matched handler carries the
	// terminate action, after its transaction is answered. The serve
	// command wires it to graceful server shutdown.
	OnTerminate func()

	Logger *slog.Logger
}

// Interceptor is an http.Handler that runs transactions through the
// engine and carries out its decisions.
type Interceptor struct {
	engine      *engine.Engine
	upstream    *url.URL
	client      *http.Client
	maxBody     int64
	onTerminate func()
	termOnce    sync.Once
	log         *slog.Logger
}

// New creates an Interceptor over an engine.
func New(eng *engine.Engine, opts Options) *Interceptor {
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	maxBody := opts.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Interceptor{
		engine:      eng,
		upstream:    opts.Upstream,
		client:      client,
		maxBody:     maxBody,
		onTerminate: opts.OnTerminate,
		log:         log,
	}
}

// ServeHTTP runs one transaction through both engine phases.
func (ic *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tx, err := ic.newTransaction(r)
	if err != nil {
		ic.log.Warn("reading request body failed", "error", err)
		http.Error(w, "error reading request", http.StatusBadGateway)
		return
	}

	d := ic.engine.HandleRequest(tx)
	if d.Terminate {
		defer ic.terminate(tx)
	}
	switch d.Kind {
	case engine.SynthesizeResponse:
		ic.writeResponse(w, d.Response)
		ic.log.Debug("synthesized response",
			"id", tx.ID, "method", tx.Method, "path", tx.Path, "status", d.Response.Status)
		return
	case engine.ForwardModifiedRequest:
		ic.log.Debug("forwarding modified request",
			"id", tx.ID, "method", tx.Method, "path", tx.Path)
	}

	resp, truncated, err := ic.forward(r, tx)
	if err != nil {
		ic.log.Warn("upstream request failed", "id", tx.ID, "error", err)
		http.Error(w, "error forwarding request: "+err.Error(), http.StatusBadGateway)
		return
	}

	d = ic.engine.HandleResponse(tx)
	if d.Terminate {
		defer ic.terminate(tx)
	}
	switch d.Kind {
	case engine.ReplaceResponse:
		ic.writeResponse(w, d.Response)
		ic.log.Debug("replaced response",
			"id", tx.ID, "path", tx.Path, "status", d.Response.Status)
	default:
		// Forwarded as-is or with the body the engine rewrote on tx.
		// The upstream Content-Length no longer holds for a rewritten
		// or truncated body.
		copyHeaders(w.Header(), resp.Header)
		if d.Kind == engine.ModifyResponse || truncated {
			w.Header().Del("Content-Length")
		}
		w.WriteHeader(tx.Status)
		_, _ = w.Write(tx.ResponseBody)
	}
}

// newTransaction buffers the request into the engine's view of it.
func (ic *Interceptor) newTransaction(r *http.Request) (*engine.Transaction, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(io.LimitReader(r.Body, ic.maxBody))
		if err != nil {
			return nil, err
		}
		_ = r.Body.Close()
	}

	scheme := r.URL.Scheme
	host := r.URL.Host
	if ic.upstream != nil {
		scheme = ic.upstream.Scheme
		host = ic.upstream.Host
	}
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	if host == "" {
		host = r.Host
	}

	return &engine.Transaction{
		ID:             uuid.NewString(),
		Scheme:         scheme,
		Host:           host,
		Method:         r.Method,
		Path:           r.URL.RequestURI(),
		RequestHeaders: r.Header.Clone(),
		RequestBody:    body,
	}, nil
}

// forward sends the (possibly rewritten) transaction upstream and
// records the response on it. The second return reports whether the
// response body was cut off at the buffering cap.
func (ic *Interceptor) forward(r *http.Request, tx *engine.Transaction) (*http.Response, bool, error) {
	target := tx.Scheme + "://" + tx.Host + tx.Path
	out, err := http.NewRequestWithContext(r.Context(), tx.Method, target, bytes.NewReader(tx.RequestBody))
	if err != nil {
		return nil, false, err
	}
	copyHeaders(out.Header, tx.RequestHeaders)
	removeHopByHopHeaders(out.Header)
	out.Header.Set("X-Forwarded-For", r.RemoteAddr)
	out.Header.Set("X-Forwarded-Host", r.Host)

	resp, err := ic.client.Do(out)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = resp.Body.Close() }()

	// Read one byte past the cap so truncation is detectable.
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, ic.maxBody+1))
	if err != nil {
		return nil, false, err
	}
	truncated := int64(len(respBody)) > ic.maxBody
	if truncated {
		respBody = respBody[:ic.maxBody]
	}

	tx.Status = resp.StatusCode
	tx.ResponseHeaders = resp.Header.Clone()
	tx.ResponseBody = respBody
	return resp, truncated, nil
}

// terminate requests shutdown once the triggering transaction has been
// answered.
func (ic *Interceptor) terminate(tx *engine.Transaction) {
	ic.termOnce.Do(func() {
		ic.log.Info("terminate requested", "id", tx.ID, "method", tx.Method, "path", tx.Path)
		if ic.onTerminate != nil {
			ic.onTerminate()
		}
	})
}

func (ic *Interceptor) writeResponse(w http.ResponseWriter, resp *engine.Response) {
	copyHeaders(w.Header(), resp.Headers)
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(resp.Body)
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		for _, value := range values {
			dst.Add(key, value)
		}
	}
}

// removeHopByHopHeaders strips headers that must not be forwarded.
func removeHopByHopHeaders(h http.Header) {
	for _, header := range []string{
		"Connection",
		"Keep-Alive",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Proxy-Connection",
		"TE",
		"Trailers",
		"Transfer-Encoding",
		"Upgrade",
	} {
		h.Del(header)
	}
}
