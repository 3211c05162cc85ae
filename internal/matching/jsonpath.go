package matching

import (
	"fmt"

	"github.com/ohler55/ojg/jp"
)

// JSONPath evaluates JSONPath conditions against a decoded JSON value.
// Every condition must hold. The expected value may be an ordinary
// pattern (compared with Value against each result, any result
// matching suffices) or an existence check of the form
// {"exists": true|false}.
func JSONPath(conditions map[string]any, data any) bool {
	for path, expected := range conditions {
		if !jsonPathOne(path, expected, data) {
			return false
		}
	}
	return true
}

func jsonPathOne(path string, expected any, data any) bool {
	expr, err := jp.ParseString(path)
	if err != nil {
		return false
	}

	results := expr.Get(data)

	if exists, ok := existenceCheck(expected); ok {
		return exists == (len(results) > 0)
	}

	for _, result := range results {
		if Value(expected, result) {
			return true
		}
	}
	return false
}

// existenceCheck extracts the boolean from an {"exists": bool} pattern.
func existenceCheck(expected any) (bool, bool) {
	m, ok := expected.(map[string]any)
	if !ok || len(m) != 1 {
		return false, false
	}
	b, ok := m["exists"].(bool)
	return b, ok
}

// ValidateJSONPath validates a JSONPath expression at load time.
func ValidateJSONPath(path string) error {
	if _, err := jp.ParseString(path); err != nil {
		return fmt.Errorf("invalid JSONPath expression %q: %w", path, err)
	}
	return nil
}
