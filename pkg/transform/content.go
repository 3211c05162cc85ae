package transform

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/getmoxy/moxy/internal/matching"
	"github.com/getmoxy/moxy/pkg/logging"
)

// Options carries the environment a transform pipeline runs in.
type Options struct {
	// BaseDir is the directory referenced local files resolve against.
	BaseDir string

	// Log receives diagnostics for ignored substitutions and similar
	// non-fatal problems. Defaults to a no-op logger.
	Log *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logging.Nop()
}

// ReadFile reads a referenced local file relative to the base directory.
func (o Options) ReadFile(name string) ([]byte, error) {
	p := name
	if !filepath.IsAbs(p) {
		p = filepath.Join(o.BaseDir, name)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("referenced file %q: %w", name, err)
	}
	return data, nil
}

// contentTypes maps recognized file extensions to content types.
var contentTypes = map[string]string{
	".json": "application/json",
	".js":   "application/javascript",
	".html": "text/html",
	".xml":  "text/xml",
	".txt":  "text/plain",
	".md":   "text/plain",
}

// IsFileRef reports whether a config string is classified as a local
// file reference: a short token without whitespace or JSON/markup
// punctuation ending in a recognized extension. Classification happens
// once per value; a classified reference that cannot be read is an
// error, never literal text.
func IsFileRef(s string) bool {
	if s == "" || len(s) > 255 {
		return false
	}
	if strings.ContainsAny(s, " \t\n\r{}<>\"") {
		return false
	}
	_, ok := contentTypes[strings.ToLower(filepath.Ext(s))]
	return ok
}

// IsJSONFileRef reports whether s references a file parsed as JSON when
// used as a merge or replace value.
func IsJSONFileRef(s string) bool {
	if !IsFileRef(s) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(s))
	return ext == ".json" || ext == ".js"
}

// loadJSONFileRef loads a JSON file reference, falling back to the raw
// text when the file does not contain valid JSON (a .js fixture, say).
func (o Options) loadJSONFileRef(name string) (any, error) {
	data, err := o.ReadFile(name)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data), nil
	}
	return v, nil
}

// AsString returns content in string form, marshaling objects to JSON.
func AsString(content any) string {
	return matching.StringForm(content)
}

// asObject returns content in object form when it is, or parses into,
// a JSON value.
func asObject(content any) (any, bool) {
	switch c := content.(type) {
	case nil:
		return nil, false
	case string:
		var v any
		if err := json.Unmarshal([]byte(c), &v); err != nil {
			return nil, false
		}
		return v, true
	case []byte:
		var v any
		if err := json.Unmarshal(c, &v); err != nil {
			return nil, false
		}
		return v, true
	default:
		return content, true
	}
}

// objectOr returns the object form of content, or an empty object when
// content does not parse as JSON.
func objectOr(content any) any {
	if v, ok := asObject(content); ok {
		return v
	}
	return map[string]any{}
}

// deepCopy copies a decoded JSON tree so that rule-set values adopted
// into transaction content are never aliased and later mutated.
func deepCopy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = deepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCopy(item)
		}
		return out
	default:
		return v
	}
}

// EncodeContent encodes a content value into response body bytes with a
// guessed content type. A file-reference string loads the file and
// infers the type from its extension; other strings are raw bodies
// (HTML when they start with "<", JSON otherwise); everything else is
// marshaled as JSON.
func EncodeContent(content any, opts Options) ([]byte, string, error) {
	switch c := content.(type) {
	case nil:
		return nil, "application/json", nil
	case string:
		if IsFileRef(c) {
			data, err := opts.ReadFile(c)
			if err != nil {
				return nil, "", err
			}
			return data, contentTypes[strings.ToLower(filepath.Ext(c))], nil
		}
		if strings.HasPrefix(c, "<") {
			return []byte(c), "text/html", nil
		}
		return []byte(c), "application/json", nil
	case []byte:
		if strings.HasPrefix(string(c), "<") {
			return c, "text/html", nil
		}
		return c, "application/json", nil
	default:
		data, err := json.Marshal(content)
		if err != nil {
			return nil, "", fmt.Errorf("encoding content: %w", err)
		}
		return data, "application/json", nil
	}
}
