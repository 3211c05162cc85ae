package matching

import (
	"regexp"
	"strings"
	"sync"
)

// RegexMarker prefixes a string pattern to mark it as a regular expression.
const RegexMarker = "~"

var reCache = struct {
	sync.RWMutex
	m map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

// Compiled returns the compiled regular expression for pattern, caching
// compilations for reuse across transactions.
func Compiled(pattern string) (*regexp.Regexp, error) {
	reCache.RLock()
	re := reCache.m[pattern]
	reCache.RUnlock()
	if re != nil {
		return re, nil
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}

	reCache.Lock()
	reCache.m[pattern] = re
	reCache.Unlock()
	return re, nil
}

// IsRegexPattern reports whether s carries the regex marker prefix.
func IsRegexPattern(s string) bool {
	return strings.HasPrefix(s, RegexMarker)
}

// regexSearch reports whether the pattern (marker already stripped) is
// found anywhere in s. An empty pattern matches anything. A pattern that
// fails to compile matches nothing.
func regexSearch(pattern, s string) bool {
	if pattern == "" {
		return true
	}
	re, err := Compiled(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// ValidatePatterns walks a decoded JSON value and compiles every
// regex-marked string in it, returning the first compilation error.
// Used at load time so malformed patterns surface as configuration
// errors instead of silently never matching.
func ValidatePatterns(v any) error {
	switch val := v.(type) {
	case string:
		if IsRegexPattern(val) && len(val) > 1 {
			if _, err := Compiled(val[1:]); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range val {
			if err := ValidatePatterns(item); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, item := range val {
			if err := ValidatePatterns(item); err != nil {
				return err
			}
		}
	}
	return nil
}
