package matching

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestValue(t *testing.T) {
	tests := []struct {
		name    string
		pattern any
		value   any
		want    bool
	}{
		{"string equal", "GET", "GET", true},
		{"string unequal", "GET", "POST", false},
		{"number vs string form", "200", 200, true},
		{"number vs float form", "200", float64(200), true},
		{"numbers numeric", float64(200), 200, true},
		{"numbers unequal", float64(200), 201, false},
		{"bool equal", true, true, true},
		{"bool vs string", true, "true", false},
		{"regex substring unanchored", "~users", "/api/users/1", true},
		{"regex anchored start", "~^/api", "/api/users", true},
		{"regex anchored start no match", "~^/api", "/v2/api", false},
		{"regex anchored end", "~\\.json$", "/data.json", true},
		{"empty regex matches anything", "~", "whatever", true},
		{"regex literal equality fallback", "~foo[", "~foo[", true},
		{"malformed regex never matches", "~foo[", "foo", false},
		{"list any-of", []any{"GET", "POST"}, "POST", true},
		{"list none", []any{"GET", "POST"}, "PUT", false},
		{"nested list regex", []any{"~^a", "~^b"}, "beta", true},
		{"nil pattern vs nil", nil, nil, true},
		{"nil pattern vs value", nil, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Value(tt.pattern, tt.value))
		})
	}
}

func TestHost(t *testing.T) {
	tests := []struct {
		name    string
		pattern any
		host    string
		want    bool
	}{
		{"exact", "example.com", "example.com", true},
		{"exact mismatch", "example.com", "api.example.com", false},
		{"suffix dot matches subdomain", ".example.com", "api.example.com", true},
		{"suffix dot matches apex", ".example.com", "example.com", true},
		{"suffix dot respects boundary", ".example.com", "badexample.com", false},
		{"prefix dot", "api.", "api.example.com", true},
		{"prefix dot mismatch", "api.", "www.example.com", false},
		{"regex", "~example", "api.example.com", true},
		{"nil matches all", nil, "anything", true},
		{"list", []any{"a.com", ".b.com"}, "x.b.com", true},
		{"lookup table true", map[string]any{"a.com": true}, "a.com", true},
		{"lookup table absent", map[string]any{"a.com": true}, "b.com", false},
		{"lookup table false", map[string]any{"a.com": false}, "a.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Host(tt.pattern, tt.host))
		})
	}
}

func TestSubset(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		value   string
		want    bool
	}{
		{"flat subset", `{"a":1}`, `{"a":1,"b":2}`, true},
		{"missing key", `{"c":1}`, `{"a":1}`, false},
		{"wrong value", `{"a":2}`, `{"a":1}`, false},
		{"nested subset", `{"a":{"b":"x"}}`, `{"a":{"b":"x","c":"y"}}`, true},
		{"empty object matches anything", `{}`, `"scalar"`, true},
		{"empty object as key-present", `{"a":{}}`, `{"a":42}`, true},
		{"empty object absent key", `{"a":{}}`, `{"b":42}`, false},
		{"array element match non-aligned", `[{"id":2}]`, `[{"id":1},{"id":2}]`, true},
		{"array all pattern elements", `[{"id":1},{"id":3}]`, `[{"id":1},{"id":2}]`, false},
		{"array vs scalar", `[1]`, `1`, false},
		{"string form of number", `{"a":"1"}`, `{"a":1}`, true},
		{"regex in subset", `{"name":"~^bo"}`, `{"name":"bob"}`, true},
		{"bare tilde matches any", `{"a":"~"}`, `{"a":{"deep":true}}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Subset(mustJSON(t, tt.pattern), mustJSON(t, tt.value))
			assert.Equal(t, tt.want, got)
		})
	}
}

// Subset must not depend on map iteration order: run a multi-key pattern
// repeatedly and expect a stable result.
func TestSubsetOrderIndependent(t *testing.T) {
	pattern := mustJSON(t, `{"a":1,"b":2,"c":3,"d":4,"e":5}`)
	value := mustJSON(t, `{"e":5,"d":4,"c":3,"b":2,"a":1,"extra":true}`)
	for i := 0; i < 50; i++ {
		assert.True(t, Subset(pattern, value))
	}
}

func TestContent(t *testing.T) {
	body := `{"status":"ok","items":[{"id":1}]}`
	text := func() string { return body }
	obj := func() any { return mustJSON(t, body) }

	tests := []struct {
		name    string
		pattern any
		want    bool
	}{
		{"substring", `"status":"ok"`, true},
		{"substring absent", "nope", false},
		{"regex", "~items.*id", true},
		{"object subset", mustJSON(t, `{"status":"ok"}`), true},
		{"object subset fail", mustJSON(t, `{"status":"bad"}`), false},
		{"array of patterns all must match", mustJSON(t, `["ok", {"items":[{"id":1}]}]`), true},
		{"array one fails", mustJSON(t, `["ok", "missing"]`), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Content(tt.pattern, text, obj))
		})
	}
}

func TestTruthy(t *testing.T) {
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("x"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(map[string]any{"a": 1}))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(map[string]any{}))
	assert.False(t, Truthy([]any{}))
}

func TestValidatePatterns(t *testing.T) {
	assert.NoError(t, ValidatePatterns(mustJSON(t, `{"a":"~^ok$","b":["~x",1]}`)))
	assert.Error(t, ValidatePatterns(mustJSON(t, `{"a":"~(["}`)))
	assert.Error(t, ValidatePatterns(mustJSON(t, `["fine","~(["]`)))
}

func TestJSONPath(t *testing.T) {
	data := mustJSON(t, `{"user":{"name":"bob","age":30},"items":[{"id":1},{"id":2}]}`)

	tests := []struct {
		name string
		cond map[string]any
		want bool
	}{
		{"simple equality", map[string]any{"$.user.name": "bob"}, true},
		{"numeric equality", map[string]any{"$.user.age": 30}, true},
		{"wildcard any match", map[string]any{"$.items[*].id": 2}, true},
		{"no match", map[string]any{"$.user.name": "alice"}, false},
		{"exists true", map[string]any{"$.user.age": map[string]any{"exists": true}}, true},
		{"exists false", map[string]any{"$.user.email": map[string]any{"exists": false}}, true},
		{"exists false but present", map[string]any{"$.user.name": map[string]any{"exists": false}}, false},
		{"regex on result", map[string]any{"$.user.name": "~^bo"}, true},
		{"invalid path", map[string]any{"$[": "x"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, JSONPath(tt.cond, data))
		})
	}
}
