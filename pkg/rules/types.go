// Package rules loads and models the mock configuration document: a JSON
// object with per-phase path keys mapping to handler specs. Documents are
// parsed into an immutable RuleSet that the engine swaps atomically on
// reload.
package rules

import "regexp"

// Phase names within the configuration document.
const (
	PhaseRequest  = "request"
	PhaseResponse = "response"
)

// Special path keys.
const (
	KeyWildcard = "*" // base layer merged under every handler of the phase
	KeyCatchAll = "~" // catch-all, tried only when no exact key matched
)

// Match clause keys on a handler node.
const (
	ClauseScheme   = "scheme"
	ClauseHost     = "host"
	ClauseMethod   = "method"
	ClausePath     = "path"
	ClauseQuery    = "query"
	ClauseHeaders  = "headers"
	ClauseContent  = "content"
	ClauseJSONPath = "jsonpath"
	ClauseStatus   = "status"
	ClauseError    = "error"
	ClauseRequire  = "require"
)

// Action clause keys on a handler node.
const (
	ActionSet       = "set"
	ActionPass      = "pass"
	ActionLog       = "log"
	ActionTerminate = "terminate"
	ActionRespond   = "respond"
	ActionModify    = "modify"
	ActionReplace   = "replace"
)

// Stateful wrapper keys on a handler node.
const (
	WrapperOnce   = "once"
	WrapperCount  = "count"
	WrapperCycle  = "cycle"
	WrapperRandom = "random"
	WrapperState  = "state"
)

// Identity override keys.
const (
	KeyID       = "id"
	KeyCycleID  = "cycle-id"
	KeyVariable = "variable"
)

// Node is one handler definition: a mapping of match clauses, action
// clauses and stateful wrapper keys. A node with a load-time pattern
// error never matches.
type Node struct {
	Clauses map[string]any
	Err     error
}

// Spec is the handler spec bound to a path key: either a single node or
// an ordered list of nodes where the first full match wins.
type Spec struct {
	Nodes  []*Node
	IsList bool
}

// PatternKey is a regex or catch-all path key, kept in declaration order.
// Regex is nil for the catch-all key. A key whose pattern failed to
// compile carries Err and never matches.
type PatternKey struct {
	Key      string
	Regex    *regexp.Regexp
	Spec     *Spec
	Err      error
	CatchAll bool
}

// Phase holds the handler specs for one interception stage.
type Phase struct {
	Exact    map[string]*Spec
	Patterns []PatternKey
	Base     *Spec
}

// Defaults are top-level document values that act as fallback match
// clauses (host, scheme) and response encoding defaults (charset).
type Defaults struct {
	Host    any
	Scheme  any
	Charset string
}

// RuleSet is one loaded configuration document. It is immutable after
// parsing; reloads build a fresh RuleSet and swap it in whole.
type RuleSet struct {
	Request  Phase
	Response Phase
	Defaults Defaults

	// BaseDir is the directory referenced local files resolve against.
	BaseDir string

	// Warnings collects non-fatal load problems (malformed patterns)
	// for the caller to log.
	Warnings []string
}

// PhaseFor returns the phase definition for the given phase name.
func (rs *RuleSet) PhaseFor(phase string) *Phase {
	if phase == PhaseResponse {
		return &rs.Response
	}
	return &rs.Request
}
