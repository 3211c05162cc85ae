package transform

import (
	"github.com/getmoxy/moxy/internal/matching"
)

// applyWhere merges a map carrying a where clause into a content list.
// The where value subset-selects elements (inverted by "negated"; only
// the first match unless "forall", which defaults to true), then the
// operations apply to each selected element in a fixed order:
//
//	delete              drop the element
//	replace / content   replace the element wholesale
//	merge               deep-merge into the element
//	insert              "before"/"after": keep the element and place a
//	                    new one (from replace/content, then merge)
//	                    adjacent to it
//	move                "head"/"first" or "tail"/"last": relocate the
//	                    element, order-preserving among moved elements
func applyWhere(clause map[string]any, list []any, opts Options) ([]any, error) {
	where := clause["where"]
	negated := matching.Truthy(clause["negated"])
	forall := true
	if v, ok := clause["forall"]; ok {
		forall = matching.Truthy(v)
	}

	selected := make([]bool, len(list))
	found := false
	for i, elem := range list {
		if matching.Subset(where, elem) != negated {
			if !forall && found {
				continue
			}
			selected[i] = true
			found = true
		}
	}

	del := matching.Truthy(clause["delete"])
	replaceVal, hasReplace := clause["replace"]
	if !hasReplace {
		replaceVal, hasReplace = clause["content"]
	}
	mergeVal, hasMerge := clause["merge"]
	insert, _ := clause["insert"].(string)
	move, _ := clause["move"].(string)

	out := make([]any, 0, len(list))
	var moved []any
	place := func(elem any) {
		switch move {
		case "head", "first", "tail", "last":
			moved = append(moved, elem)
		default:
			out = append(out, elem)
		}
	}

	for i, elem := range list {
		if !selected[i] {
			out = append(out, elem)
			continue
		}
		if del {
			continue
		}

		if insert == "before" || insert == "after" {
			inserted, err := buildElement(replaceVal, hasReplace, mergeVal, hasMerge, nil, opts)
			if err != nil {
				return nil, err
			}
			if insert == "before" {
				out = append(out, inserted)
				place(elem)
			} else {
				place(elem)
				out = append(out, inserted)
			}
			continue
		}

		mutated, err := buildElement(replaceVal, hasReplace, mergeVal, hasMerge, elem, opts)
		if err != nil {
			return nil, err
		}
		place(mutated)
	}

	switch move {
	case "head", "first":
		return append(moved, out...), nil
	case "tail", "last":
		return append(out, moved...), nil
	}
	return out, nil
}

// buildElement produces a where-clause element: the replacement value
// wholesale when given, otherwise the base, with the merge value
// deep-merged on top.
func buildElement(replaceVal any, hasReplace bool, mergeVal any, hasMerge bool, base any, opts Options) (any, error) {
	elem := base
	if hasReplace {
		resolved, err := Merge(replaceVal, nil, opts)
		if err != nil {
			return nil, err
		}
		elem = resolved
	}
	if hasMerge {
		merged, err := Merge(mergeVal, elem, opts)
		if err != nil {
			return nil, err
		}
		elem = merged
	}
	return elem, nil
}
