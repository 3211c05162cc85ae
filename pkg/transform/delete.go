package transform

import (
	"github.com/getmoxy/moxy/internal/matching"
)

// Delete removes the parts of content described by pattern and returns
// the result. Deletion is idempotent: applying the same pattern twice
// yields the same content.
//
// A map pattern walks content by key: an empty map or list value drops
// the key outright, a non-empty map or list recurses when the content
// value has the matching shape (and leaves it alone otherwise), and a
// scalar drops the key when it is falsy or equals the current value. A
// list pattern filters a content list, removing every element some
// pattern element subset-matches.
func Delete(pattern, content any) any {
	switch del := pattern.(type) {
	case map[string]any:
		cm, ok := content.(map[string]any)
		if !ok {
			return content
		}
		for key, val := range del {
			switch v := val.(type) {
			case map[string]any:
				if len(v) == 0 {
					delete(cm, key)
				} else if inner, ok := cm[key]; ok {
					cm[key] = Delete(v, inner)
				}
			case []any:
				if len(v) == 0 {
					delete(cm, key)
				} else if inner, ok := cm[key].([]any); ok {
					// A list pattern filters lists only; a scalar
					// matches no element so the value stays.
					cm[key] = Delete(v, inner)
				}
			default:
				if !matching.Truthy(v) || matching.LooseEqual(cm[key], v) {
					delete(cm, key)
				}
			}
		}
		return cm
	case []any:
		ca, ok := content.([]any)
		if len(del) == 0 || !ok {
			return []any{}
		}
		out := make([]any, 0, len(ca))
		for _, elem := range ca {
			removed := false
			for _, d := range del {
				if matching.Subset(d, elem) {
					removed = true
					break
				}
			}
			if !removed {
				out = append(out, elem)
			}
		}
		return out
	}
	return content
}
