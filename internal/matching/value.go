package matching

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// StringForm converts a decoded JSON value to its string form for
// pattern matching. Numbers render without trailing zeros so that the
// integer 200 and the float 200.0 both read "200".
func StringForm(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case []byte:
		return string(val)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ToFloat64 attempts to convert a value to float64 for numeric
// comparison across the int/float decodings different parsers produce.
func ToFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}

// Truthy reports whether a decoded JSON value counts as true in a rule
// position such as `pass`, `terminate` or a scalar delete value.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case map[string]any:
		return len(val) > 0
	case []any:
		return len(val) > 0
	default:
		if f, ok := ToFloat64(v); ok {
			return f != 0
		}
		return true
	}
}

// LooseEqual compares two scalar values with numeric coercion: numbers
// compare numerically, otherwise values compare by deep equality.
func LooseEqual(a, b any) bool {
	if af, ok := ToFloat64(a); ok {
		if bf, ok := ToFloat64(b); ok {
			return af == bf
		}
	}
	return reflect.DeepEqual(a, b)
}

// Value reports whether value matches pattern.
//
// The pattern may be a scalar (literal or regex-marked string), an object
// (recursive subset match), or a list of any of these, matching if any
// alternative matches.
func Value(pattern, value any) bool {
	switch p := pattern.(type) {
	case nil:
		return value == nil
	case []any:
		for _, alt := range p {
			if Value(alt, value) {
				return true
			}
		}
		return false
	case map[string]any:
		return Subset(p, value)
	case string:
		if IsRegexPattern(p) {
			// A value equal to the full marked pattern matches literally.
			if s, ok := value.(string); ok && s == p {
				return true
			}
			return regexSearch(p[1:], StringForm(value))
		}
		return StringForm(value) == p
	case bool:
		b, ok := value.(bool)
		return ok && b == p
	default:
		return LooseEqual(pattern, value)
	}
}

// Host reports whether host matches the pattern.
//
// String patterns support affix forms: a leading dot means suffix match
// on domain boundaries (".example.com" matches "example.com" and
// "api.example.com" but never "badexample.com"); a trailing dot means
// label prefix match ("api." matches "api.example.com"); the regex
// marker works as everywhere else; anything else is an exact match.
// A map pattern is a lookup table from host to a truthy flag, and a list
// matches if any element does. A nil pattern matches every host.
func Host(pattern any, host string) bool {
	switch p := pattern.(type) {
	case nil:
		return true
	case string:
		switch {
		case strings.HasPrefix(p, "."):
			return host == p[1:] || strings.HasSuffix(host, p)
		case strings.HasSuffix(p, "."):
			return strings.HasPrefix(host, p)
		case IsRegexPattern(p):
			return regexSearch(p[1:], host)
		default:
			return host == p
		}
	case map[string]any:
		return Truthy(p[host])
	case []any:
		for _, alt := range p {
			if Host(alt, host) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Subset reports whether pattern is a subset of value: every key in an
// object pattern must be present in value with a matching value, every
// element of an array pattern must match at least one value element
// (not index-aligned), extra content in value is ignored. The empty
// object pattern matches any value ("key present, any value").
func Subset(pattern, value any) bool {
	switch p := pattern.(type) {
	case map[string]any:
		if len(p) == 0 {
			return true
		}
		vm, ok := value.(map[string]any)
		if !ok {
			return false
		}
		for key, pv := range p {
			vv, present := vm[key]
			if !present || !Subset(pv, vv) {
				return false
			}
		}
		return true
	case []any:
		va, ok := value.([]any)
		if !ok {
			return false
		}
		for _, pe := range p {
			found := false
			for _, ve := range va {
				if Subset(pe, ve) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
		return true
	case string:
		if p == RegexMarker {
			return true
		}
		if IsRegexPattern(p) {
			return regexSearch(p[1:], StringForm(value))
		}
		return StringForm(value) == p
	case nil:
		return value == nil
	case bool:
		b, ok := value.(bool)
		return ok && b == p
	default:
		return LooseEqual(pattern, value)
	}
}

// Content reports whether content matches the pattern. String patterns
// are substring searches (or regex searches when marked) against the
// text form; object patterns are subset matches against the object
// form; a list must match in full. The text and object forms are
// produced lazily since only one is usually needed.
func Content(pattern any, text func() string, obj func() any) bool {
	switch p := pattern.(type) {
	case []any:
		for _, item := range p {
			if !Content(item, text, obj) {
				return false
			}
		}
		return true
	case string:
		if IsRegexPattern(p) {
			return regexSearch(p[1:], text())
		}
		return strings.Contains(text(), p)
	case map[string]any:
		return Subset(p, obj())
	default:
		return false
	}
}
