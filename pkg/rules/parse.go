package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/getmoxy/moxy/internal/matching"
)

// Parse parses a configuration document into a RuleSet.
//
// The document is JSON, but it is decoded through yaml.v3 because the
// declaration order of regex path keys is significant and yaml.Node
// preserves mapping order where encoding/json does not.
func Parse(data []byte) (*RuleSet, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty configuration document")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("configuration root must be an object")
	}

	rs := &RuleSet{}
	for i := 0; i+1 < len(root.Content); i += 2 {
		key := root.Content[i].Value
		val := root.Content[i+1]

		var err error
		switch key {
		case PhaseRequest:
			rs.Request, err = parsePhase(val, rs)
		case PhaseResponse:
			rs.Response, err = parsePhase(val, rs)
		case ClauseHost:
			err = val.Decode(&rs.Defaults.Host)
		case ClauseScheme:
			err = val.Decode(&rs.Defaults.Scheme)
		case "charset":
			err = val.Decode(&rs.Defaults.Charset)
		default:
			rs.Warnings = append(rs.Warnings, fmt.Sprintf("unknown top-level key %q ignored", key))
		}
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
	}

	return rs, nil
}

func parsePhase(n *yaml.Node, rs *RuleSet) (Phase, error) {
	phase := Phase{Exact: make(map[string]*Spec)}
	if n.Kind != yaml.MappingNode {
		return phase, fmt.Errorf("phase must be an object of path keys")
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		spec, err := parseSpec(n.Content[i+1], rs)
		if err != nil {
			return phase, fmt.Errorf("path %q: %w", key, err)
		}

		switch {
		case key == KeyWildcard:
			phase.Base = spec
		case key == KeyCatchAll:
			phase.Patterns = append(phase.Patterns, PatternKey{Key: key, Spec: spec, CatchAll: true})
		case strings.HasPrefix(key, matching.RegexMarker):
			pk := PatternKey{Key: key, Spec: spec}
			re, err := matching.Compiled(key[1:])
			if err != nil {
				pk.Err = err
				rs.Warnings = append(rs.Warnings, fmt.Sprintf("path key %q: invalid pattern: %v", key, err))
			} else {
				pk.Regex = re
			}
			phase.Patterns = append(phase.Patterns, pk)
		default:
			phase.Exact[key] = spec
		}
	}

	return phase, nil
}

func parseSpec(n *yaml.Node, rs *RuleSet) (*Spec, error) {
	spec := &Spec{}

	if n.Kind == yaml.SequenceNode {
		spec.IsList = true
		for idx, item := range n.Content {
			node, err := parseNode(item, rs)
			if err != nil {
				return nil, fmt.Errorf("handler %d: %w", idx, err)
			}
			spec.Nodes = append(spec.Nodes, node)
		}
		return spec, nil
	}

	node, err := parseNode(n, rs)
	if err != nil {
		return nil, err
	}
	spec.Nodes = []*Node{node}
	return spec, nil
}

// matchClauses are the node keys whose values are patterns validated at
// load time. Wrapper branches are validated lazily at match time, where
// a malformed pattern simply never matches.
var matchClauses = []string{
	ClauseScheme, ClauseHost, ClauseMethod, ClausePath, ClauseQuery,
	ClauseHeaders, ClauseContent, ClauseStatus, ClauseRequire,
}

func parseNode(n *yaml.Node, rs *RuleSet) (*Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("handler must be an object")
	}

	var clauses map[string]any
	if err := n.Decode(&clauses); err != nil {
		return nil, err
	}

	node := &Node{Clauses: clauses}
	for _, clause := range matchClauses {
		v, ok := clauses[clause]
		if !ok {
			continue
		}
		if err := matching.ValidatePatterns(v); err != nil {
			node.Err = fmt.Errorf("clause %q: %w", clause, err)
			rs.Warnings = append(rs.Warnings, fmt.Sprintf("handler disabled, %v", node.Err))
			break
		}
	}
	if node.Err == nil {
		if jp, ok := clauses[ClauseJSONPath].(map[string]any); ok {
			for path := range jp {
				if err := matching.ValidateJSONPath(path); err != nil {
					node.Err = err
					rs.Warnings = append(rs.Warnings, fmt.Sprintf("handler disabled, %v", err))
					break
				}
			}
		}
	}

	return node, nil
}
