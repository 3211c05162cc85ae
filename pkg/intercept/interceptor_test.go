package intercept

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmoxy/moxy/pkg/engine"
	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/rules"
	"github.com/getmoxy/moxy/pkg/state"
)

func newInterceptor(t *testing.T, config string, upstream *url.URL) *Interceptor {
	t.Helper()
	rs, err := rules.Parse([]byte(config))
	require.NoError(t, err)
	eng := engine.New(rs, state.NewStore(), logging.Nop())
	return New(eng, Options{Upstream: upstream, Logger: logging.Nop()})
}

func TestSynthesizedResponseSkipsUpstream(t *testing.T) {
	upstreamHits := 0
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHits++
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	ic := newInterceptor(t, `{"request": {"/mocked": {"respond": {"status": 201, "content": {"ok": true}}}}}`, originURL)

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/mocked", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
	assert.Zero(t, upstreamHits)
}

func TestForwardsUnmatchedTraffic(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "yes")
		_, _ = w.Write([]byte("from origin"))
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	ic := newInterceptor(t, `{"request": {"/mocked": {"respond": "x"}}}`, originURL)

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/other", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from origin", rec.Body.String())
	assert.Equal(t, "yes", rec.Header().Get("X-Origin"))
}

func TestModifiedRequestReachesUpstream(t *testing.T) {
	var gotPath, gotHeader string
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeader = r.Header.Get("X-Injected")
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	ic := newInterceptor(t, `{"request": {"/old": {"modify": {
		"path": "/new",
		"headers": {"X-Injected": "1"}
	}}}}`, originURL)

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/old", nil))

	assert.Equal(t, "/new", gotPath)
	assert.Equal(t, "1", gotHeader)
}

func TestResponseBodyRewritten(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"plan": "free"}`))
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	ic := newInterceptor(t, `{"response": {"/account": {"modify": {"merge": {"plan": "premium"}}}}}`, originURL)

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/account", nil))

	assert.JSONEq(t, `{"plan": "premium"}`, rec.Body.String())
}

func TestReplacedResponse(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("real"))
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	ic := newInterceptor(t, `{"response": {"/down": {"replace": {"status": 503, "content": "maintenance"}}}}`, originURL)

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/down", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "maintenance", rec.Body.String())
}

func TestTruncatedUpstreamBodyDropsContentLength(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer origin.Close()
	originURL, _ := url.Parse(origin.URL)

	rs, err := rules.Parse([]byte(`{"request": {}}`))
	require.NoError(t, err)
	eng := engine.New(rs, state.NewStore(), logging.Nop())
	ic := New(eng, Options{Upstream: originURL, MaxBodySize: 8, Logger: logging.Nop()})

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/big", nil))

	// The body was cut at the cap, so the upstream length header must
	// not be relayed.
	assert.Equal(t, "01234567", rec.Body.String())
	assert.Empty(t, rec.Header().Get("Content-Length"))
}

func TestTerminateAnswersThenRequestsShutdown(t *testing.T) {
	originURL, _ := url.Parse("http://unreachable.invalid")
	rs, err := rules.Parse([]byte(`{"request": {"/kill": {"terminate": true, "respond": "bye"}}}`))
	require.NoError(t, err)
	eng := engine.New(rs, state.NewStore(), logging.Nop())

	terminated := 0
	ic := New(eng, Options{
		Upstream:    originURL,
		OnTerminate: func() { terminated++ },
		Logger:      logging.Nop(),
	})

	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, httptest.NewRequest("GET", "/kill", nil))

	// The terminating transaction is still answered.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bye", rec.Body.String())
	assert.Equal(t, 1, terminated)

	// Shutdown is requested at most once.
	ic.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/kill", nil))
	assert.Equal(t, 1, terminated)
}

func TestRequestBodyAvailableToConditions(t *testing.T) {
	originURL, _ := url.Parse("http://unreachable.invalid")
	ic := newInterceptor(t, `{"request": {"/api": {
		"content": {"action": "ping"},
		"respond": {"content": {"action": "pong"}}
	}}}`, originURL)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api", strings.NewReader(`{"action": "ping"}`))
	ic.ServeHTTP(rec, req)

	assert.JSONEq(t, `{"action": "pong"}`, rec.Body.String())
}
