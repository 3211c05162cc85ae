package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClassifiesPathKeys(t *testing.T) {
	rs, err := Parse([]byte(`{
		"request": {
			"/exact": {"respond": "hi"},
			"~^/api/": {"respond": "api"},
			"*": {"host": "example.com"},
			"~/v2/": {"respond": "v2"},
			"~": {"pass": true}
		},
		"response": {
			"/r": {"modify": {"merge": {"a": 1}}}
		}
	}`))
	require.NoError(t, err)

	assert.Contains(t, rs.Request.Exact, "/exact")
	require.NotNil(t, rs.Request.Base)

	// Regex and catch-all keys keep declaration order.
	require.Len(t, rs.Request.Patterns, 3)
	assert.Equal(t, "~^/api/", rs.Request.Patterns[0].Key)
	assert.Equal(t, "~/v2/", rs.Request.Patterns[1].Key)
	assert.True(t, rs.Request.Patterns[2].CatchAll)

	assert.Contains(t, rs.Response.Exact, "/r")
	assert.Empty(t, rs.Warnings)
}

func TestParseListSpec(t *testing.T) {
	rs, err := Parse([]byte(`{
		"request": {
			"/set": [
				{"query": {"flag": "1"}, "set": {"myflag": "1"}, "respond": "<h1>Flag set</h1>"},
				{"respond": {"status": 400}}
			]
		}
	}`))
	require.NoError(t, err)

	spec := rs.Request.Exact["/set"]
	require.NotNil(t, spec)
	assert.True(t, spec.IsList)
	require.Len(t, spec.Nodes, 2)
	assert.Equal(t, map[string]any{"flag": "1"}, spec.Nodes[0].Clauses["query"])
}

func TestParseDefaults(t *testing.T) {
	rs, err := Parse([]byte(`{
		"host": ".example.com",
		"scheme": ["https", "http"],
		"charset": "iso-8859-1",
		"request": {}
	}`))
	require.NoError(t, err)

	assert.Equal(t, ".example.com", rs.Defaults.Host)
	assert.Equal(t, []any{"https", "http"}, rs.Defaults.Scheme)
	assert.Equal(t, "iso-8859-1", rs.Defaults.Charset)
}

func TestParseMalformedPathRegex(t *testing.T) {
	rs, err := Parse([]byte(`{
		"request": {
			"~(unclosed": {"respond": "x"},
			"~^/ok": {"respond": "y"}
		}
	}`))
	require.NoError(t, err)

	patterns := rs.Request.Patterns
	require.Len(t, patterns, 2)
	assert.Error(t, patterns[0].Err)
	assert.Nil(t, patterns[0].Regex)
	assert.NoError(t, patterns[1].Err)
	assert.NotEmpty(t, rs.Warnings)
}

func TestParseMalformedClausePatternDisablesNode(t *testing.T) {
	rs, err := Parse([]byte(`{
		"request": {
			"/a": {"path": "~([", "respond": "x"}
		}
	}`))
	require.NoError(t, err)

	node := rs.Request.Exact["/a"].Nodes[0]
	assert.Error(t, node.Err)
	assert.NotEmpty(t, rs.Warnings)
}

func TestParseInvalidJSONPathDisablesNode(t *testing.T) {
	rs, err := Parse([]byte(`{
		"request": {
			"/a": {"jsonpath": {"$[": 1}, "respond": "x"}
		}
	}`))
	require.NoError(t, err)
	assert.Error(t, rs.Request.Exact["/a"].Nodes[0].Err)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`{`))
	assert.Error(t, err)

	_, err = Parse([]byte(`[]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"request": []}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"request": {"/a": "nope"}}`))
	assert.Error(t, err)
}

func TestParseUnknownTopLevelKeyWarns(t *testing.T) {
	rs, err := Parse([]byte(`{"request": {}, "bogus": 1}`))
	require.NoError(t, err)
	assert.NotEmpty(t, rs.Warnings)
}
