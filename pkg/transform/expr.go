package transform

import (
	"regexp"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/getmoxy/moxy/internal/matching"
)

var exprCache = struct {
	sync.RWMutex
	programs map[string]*vm.Program
}{programs: make(map[string]*vm.Program)}

// compiledExpr compiles an expression once and caches the program.
// Expressions see a single variable, "value".
func compiledExpr(src string) (*vm.Program, error) {
	exprCache.RLock()
	prog, ok := exprCache.programs[src]
	exprCache.RUnlock()
	if ok {
		return prog, nil
	}

	prog, err := expr.Compile(src, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}

	exprCache.Lock()
	exprCache.programs[src] = prog
	exprCache.Unlock()
	return prog, nil
}

func runExpr(prog *vm.Program, value any) (any, error) {
	return expr.Run(prog, map[string]any{"value": value})
}

// replaceExpr applies a replace_expr step. A map computes new values
// key-wise over the content object, each expression seeing the current
// value as "value" and recursing into nested maps. A string expression
// rewrites the whole content from its string form. A
// [pattern, expression] pair rewrites each regex match, the expression
// seeing the matched text. Expressions that fail to compile or evaluate
// leave their target unchanged.
func replaceExpr(spec, content any, opts Options) any {
	switch s := spec.(type) {
	case map[string]any:
		obj, ok := objectOr(content).(map[string]any)
		if !ok {
			obj = map[string]any{}
		}
		return replaceExprInMap(s, obj, opts)
	case string:
		prog, err := compiledExpr(s)
		if err != nil {
			opts.logger().Warn("ignoring invalid replace_expr", "expr", s, "error", err)
			return content
		}
		out, err := runExpr(prog, matching.StringForm(content))
		if err != nil {
			opts.logger().Warn("replace_expr failed", "expr", s, "error", err)
			return content
		}
		return out
	case []any:
		if len(s) != 2 {
			opts.logger().Warn("ignoring malformed replace_expr, want [pattern, expression]", "value", s)
			return content
		}
		pattern, pok := s[0].(string)
		src, sok := s[1].(string)
		if !pok || !sok {
			opts.logger().Warn("ignoring malformed replace_expr, want [pattern, expression]", "value", s)
			return content
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			opts.logger().Warn("ignoring replace_expr with invalid pattern", "pattern", pattern, "error", err)
			return content
		}
		prog, err := compiledExpr(src)
		if err != nil {
			opts.logger().Warn("ignoring invalid replace_expr", "expr", src, "error", err)
			return content
		}
		return re.ReplaceAllStringFunc(matching.StringForm(content), func(match string) string {
			out, err := runExpr(prog, match)
			if err != nil {
				return match
			}
			return matching.StringForm(out)
		})
	}
	return content
}

func replaceExprInMap(spec, obj map[string]any, opts Options) map[string]any {
	for key, v := range spec {
		switch s := v.(type) {
		case map[string]any:
			inner, ok := obj[key].(map[string]any)
			if !ok {
				inner = map[string]any{}
			}
			obj[key] = replaceExprInMap(s, inner, opts)
		case string:
			prog, err := compiledExpr(s)
			if err != nil {
				opts.logger().Warn("ignoring invalid replace_expr", "key", key, "error", err)
				continue
			}
			out, err := runExpr(prog, obj[key])
			if err != nil {
				opts.logger().Warn("replace_expr failed", "key", key, "error", err)
				continue
			}
			obj[key] = out
		}
	}
	return obj
}
