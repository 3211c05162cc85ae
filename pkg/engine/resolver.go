package engine

import (
	"github.com/getmoxy/moxy/pkg/rules"
)

// candidate is one path key's handler nodes, already layered over the
// phase's "*" base, plus the default state identity for the request.
type candidate struct {
	nodes    []*rules.Node
	identity string
}

// resolveCandidates selects the handler specs a request's path key
// resolution yields, in evaluation order. An exact key (full path
// first, then query-stripped path) is the sole candidate and suppresses
// every pattern key; otherwise each matching regex key and the
// catch-all contribute candidates in declaration order.
func resolveCandidates(ph *rules.Phase, tx *Transaction) []candidate {
	identity := tx.StrippedPath()

	if spec, ok := ph.Exact[tx.Path]; ok {
		return []candidate{{nodes: layerBase(spec, ph.Base), identity: identity}}
	}
	if spec, ok := ph.Exact[identity]; ok {
		return []candidate{{nodes: layerBase(spec, ph.Base), identity: identity}}
	}

	var out []candidate
	for _, pk := range ph.Patterns {
		if pk.Err != nil {
			continue
		}
		if pk.CatchAll || (pk.Regex != nil && pk.Regex.MatchString(tx.Path)) {
			out = append(out, candidate{nodes: layerBase(pk.Spec, ph.Base), identity: identity})
		}
	}
	return out
}

// layerBase merges the phase's "*" base spec under a path key's nodes.
// Clauses from the node shadow the base's, except modify steps, which
// concatenate base-first so global rewrites still run. A list base
// under a single-node key expands into one merged node per base entry;
// two lists do not combine, the key's list wins.
func layerBase(spec, base *rules.Spec) []*rules.Node {
	if base == nil || len(base.Nodes) == 0 {
		return spec.Nodes
	}
	if base.IsList {
		if spec.IsList {
			return spec.Nodes
		}
		merged := make([]*rules.Node, 0, len(base.Nodes))
		for _, bn := range base.Nodes {
			for _, node := range spec.Nodes {
				merged = append(merged, overlayNode(bn, node))
			}
		}
		return merged
	}

	merged := make([]*rules.Node, 0, len(spec.Nodes))
	for _, node := range spec.Nodes {
		merged = append(merged, overlayNode(base.Nodes[0], node))
	}
	return merged
}

func overlayNode(base, node *rules.Node) *rules.Node {
	clauses := make(map[string]any, len(base.Clauses)+len(node.Clauses))
	for k, v := range base.Clauses {
		clauses[k] = v
	}
	for k, v := range node.Clauses {
		clauses[k] = v
	}
	if bm, ok := base.Clauses[rules.ActionModify]; ok {
		if nm, ok := node.Clauses[rules.ActionModify]; ok {
			clauses[rules.ActionModify] = append(asSteps(bm), asSteps(nm)...)
		}
	}

	err := node.Err
	if err == nil {
		err = base.Err
	}
	return &rules.Node{Clauses: clauses, Err: err}
}

func asSteps(v any) []any {
	if list, ok := v.([]any); ok {
		return append([]any(nil), list...)
	}
	return []any{v}
}
