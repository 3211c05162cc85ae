package engine

import (
	"strconv"

	"github.com/getmoxy/moxy/internal/matching"
	"github.com/getmoxy/moxy/pkg/rules"
)

// resolveStateful resolves a node's stateful wrappers into a concrete
// handler. Wrappers resolve before any condition is looked at, each one
// advancing its state, popping its key and overlaying the chosen branch
// on the node; resolution repeats until no wrapper remains, so branches
// may nest further wrappers. A false second return means the node
// yields no handler for this request (a spent once, a state variable
// with no branch) and the next node in the list gets its turn.
func (e *Engine) resolveStateful(identity string, node map[string]any) (map[string]any, bool) {
	cfg := make(map[string]any, len(node))
	for k, v := range node {
		cfg[k] = v
	}

	for {
		if v, ok := cfg[rules.WrapperOnce]; ok {
			delete(cfg, rules.WrapperOnce)
			if !matching.Truthy(v) {
				continue
			}
			if !e.state.ConsumeOnce(e.stateID(cfg, identity)) {
				return nil, false
			}
			// "once": true gates without adding clauses.
			if bm, ok := v.(map[string]any); ok {
				overlayBranch(cfg, bm)
			}
			continue
		}

		if v, ok := cfg[rules.WrapperCount]; ok {
			delete(cfg, rules.WrapperCount)
			cm, ok := v.(map[string]any)
			if !ok || len(cm) == 0 {
				continue
			}
			id := e.stateID(cfg, identity)
			if s, ok := cm[rules.KeyID].(string); ok {
				id = s
			}
			overlayBranch(cfg, countBranch(cm, e.state.NextCount(id)))
			continue
		}

		if v, ok := cfg[rules.WrapperCycle]; ok {
			delete(cfg, rules.WrapperCycle)
			id := e.cycleID(cfg, identity)
			list, isList := v.([]any)
			if len(list) == 0 {
				// An empty cycle rewinds the sequence.
				if isList || isEmptyMap(v) {
					e.state.ResetCycle(id)
				}
				continue
			}
			elem := list[e.state.AdvanceCycle(id)%len(list)]
			overlayBranch(cfg, elem)
			continue
		}

		if v, ok := cfg[rules.WrapperRandom]; ok {
			delete(cfg, rules.WrapperRandom)
			list, _ := v.([]any)
			if len(list) == 0 {
				continue
			}
			overlayBranch(cfg, list[e.randIntN(len(list))])
			continue
		}

		if v, ok := cfg[rules.WrapperState]; ok {
			delete(cfg, rules.WrapperState)
			sm, ok := v.(map[string]any)
			if !ok || len(sm) == 0 {
				continue
			}
			branch, ok := e.stateBranch(cfg, sm, identity)
			if !ok {
				return nil, false
			}
			overlayBranch(cfg, branch)
			continue
		}

		return cfg, true
	}
}

// stateID is the identity a handler's state is keyed by: an explicit
// "id" or the query-stripped request path.
func (e *Engine) stateID(cfg map[string]any, identity string) string {
	if s, ok := cfg[rules.KeyID].(string); ok && s != "" {
		return s
	}
	return identity
}

// cycleID prefers a dedicated "cycle-id" so a cycle can advance
// independently of the node's other state.
func (e *Engine) cycleID(cfg map[string]any, identity string) string {
	if s, ok := cfg[rules.KeyCycleID].(string); ok && s != "" {
		return s
	}
	return e.stateID(cfg, identity)
}

// countBranch layers a count wrapper's branches for hit number n, least
// specific first: "*", then "~" (only when no literal entry for n
// exists), then "even"/"odd", then the literal number. Branch values
// take the same scalar respond shorthand as cycle and random elements.
func countBranch(cm map[string]any, n int) map[string]any {
	branch := map[string]any{}
	if b, ok := cm[rules.KeyWildcard]; ok {
		overlayBranch(branch, b)
	}
	literal, hasLiteral := cm[strconv.Itoa(n)]
	if !hasLiteral {
		if b, ok := cm[rules.KeyCatchAll]; ok {
			overlayBranch(branch, b)
		}
	}
	parity := "odd"
	if n%2 == 0 {
		parity = "even"
	}
	if b, ok := cm[parity]; ok {
		overlayBranch(branch, b)
	}
	if hasLiteral {
		overlayBranch(branch, literal)
	}
	return branch
}

// stateBranch picks a state wrapper's branch by the variable's current
// value: the exact value key, "~" for a set value without its own key,
// or "undefined" when the variable was never set. The "*" branch
// underlays whichever branch is chosen; no branch means no handler.
func (e *Engine) stateBranch(cfg, sm map[string]any, identity string) (map[string]any, bool) {
	variable := identity
	if s, ok := sm[rules.KeyVariable].(string); ok && s != "" {
		variable = s
	} else if s, ok := cfg[rules.KeyVariable].(string); ok && s != "" {
		variable = s
	}

	value, set := e.state.GetVar(variable)
	var chosen any
	found := false
	if !set {
		chosen, found = sm["undefined"]
	} else if b, ok := sm[value]; ok {
		chosen, found = b, true
	} else {
		chosen, found = sm[rules.KeyCatchAll]
	}
	if !found {
		return nil, false
	}

	branch := map[string]any{}
	if b, ok := sm[rules.KeyWildcard].(map[string]any); ok {
		overlayBranch(branch, b)
	}
	overlayBranch(branch, chosen)
	return branch, true
}

// overlayBranch merges a resolved wrapper branch over the node. A
// non-map branch is shorthand for a respond action with that content.
func overlayBranch(cfg map[string]any, branch any) {
	bm, ok := branch.(map[string]any)
	if !ok {
		cfg[rules.ActionRespond] = branch
		return
	}
	for k, v := range bm {
		cfg[k] = v
	}
}

func isEmptyMap(v any) bool {
	m, ok := v.(map[string]any)
	return ok && len(m) == 0
}
