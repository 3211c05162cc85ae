// Package engine evaluates rule sets against HTTP transactions and
// decides whether to pass, synthesize, or rewrite them.
package engine

import (
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/getmoxy/moxy/pkg/logging"
	"github.com/getmoxy/moxy/pkg/rules"
	"github.com/getmoxy/moxy/pkg/state"
)

// Engine matches transactions against a rule set. The rule set is held
// behind an atomic pointer so a reload swaps it without blocking
// in-flight evaluations.
type Engine struct {
	rules atomic.Pointer[rules.RuleSet]
	state *state.Store
	log   *slog.Logger

	// randIntN picks random-wrapper branches; replaced in tests.
	randIntN func(int) int
}

// New creates an engine over an initial rule set.
func New(rs *rules.RuleSet, st *state.Store, log *slog.Logger) *Engine {
	if st == nil {
		st = state.NewStore()
	}
	if log == nil {
		log = logging.Nop()
	}
	e := &Engine{state: st, log: log, randIntN: rand.Intn}
	e.rules.Store(rs)
	return e
}

// Swap installs a new rule set and clears all handler state, so
// counters, cycles, and variables start fresh against the new rules.
func (e *Engine) Swap(rs *rules.RuleSet) {
	e.rules.Store(rs)
	e.state.Reset()
}

// RuleSet returns the currently installed rule set.
func (e *Engine) RuleSet() *rules.RuleSet {
	return e.rules.Load()
}

// State returns the engine's handler-state store.
func (e *Engine) State() *state.Store {
	return e.state
}

// HandleRequest evaluates the request phase of a transaction.
func (e *Engine) HandleRequest(tx *Transaction) Decision {
	return e.handle(rules.PhaseRequest, tx)
}

// HandleResponse evaluates the response phase of a transaction.
func (e *Engine) HandleResponse(tx *Transaction) Decision {
	return e.handle(rules.PhaseResponse, tx)
}

// handle walks the phase's candidates in order. For each candidate node
// the stateful wrappers resolve first, then the resolved node's
// conditions are evaluated; the first node that matches acts, and its
// actions settle the whole transaction phase.
func (e *Engine) handle(phase string, tx *Transaction) Decision {
	rs := e.rules.Load()
	if rs == nil {
		return passDecision(phase)
	}

	for _, cand := range resolveCandidates(rs.PhaseFor(phase), tx) {
		for _, node := range cand.nodes {
			if node.Err != nil {
				continue
			}
			resolved, ok := e.resolveStateful(cand.identity, node.Clauses)
			if !ok {
				continue
			}
			if !e.matches(phase, resolved, tx, rs, cand.identity) {
				continue
			}
			return e.execute(phase, resolved, tx, rs, cand.identity)
		}
	}
	return passDecision(phase)
}

func passDecision(phase string) Decision {
	if phase == rules.PhaseResponse {
		return Decision{Kind: ForwardResponseUnmodified}
	}
	return Decision{Kind: ForwardUnmodified}
}
