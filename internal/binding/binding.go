// Package binding resolves per-item parameter expressions.
//
// A string parameter starting with "=" is a template. Each {{ ... }}
// segment in it is an expr-lang expression evaluated against the item:
//
//	={{ json.email }}                  -> the item's email, keeping its type
//	=lead-{{ json.source }}-signup     -> "lead-blog-signup"
//	={{ json.score > 50 ? "hot" : "cold" }}
//
// Any other value is passed through. Maps and lists are resolved recursively.
package binding

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// segmentPattern matches {{ ... }} segments.
var segmentPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Resolver evaluates parameter expressions. It caches compiled programs and
// is safe for concurrent use.
type Resolver struct {
	cache map[string]*vm.Program
	mu    sync.RWMutex
}

// New creates a new resolver.
func New() *Resolver {
	return &Resolver{
		cache: make(map[string]*vm.Program),
	}
}

// Resolve returns a copy of params with every expression evaluated against
// item. params is not modified.
func (r *Resolver) Resolve(params map[string]interface{}, item map[string]interface{}) (map[string]interface{}, error) {
	env := map[string]interface{}{"json": item}
	if item == nil {
		env["json"] = map[string]interface{}{}
	}

	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		resolved, err := r.resolveValue(v, env)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

// IsExpression reports whether s is evaluated by Resolve.
func IsExpression(s string) bool {
	return strings.HasPrefix(s, "=")
}

func (r *Resolver) resolveValue(v interface{}, env map[string]interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if !IsExpression(val) {
			return val, nil
		}
		return r.evaluateTemplate(val[1:], env)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			resolved, err := r.resolveValue(inner, env)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			resolved, err := r.resolveValue(inner, env)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// evaluateTemplate evaluates the body of an expression string. A body that
// is exactly one segment yields the raw result; otherwise results are
// formatted into the surrounding text.
func (r *Resolver) evaluateTemplate(body string, env map[string]interface{}) (interface{}, error) {
	trimmed := strings.TrimSpace(body)
	if loc := segmentPattern.FindStringIndex(trimmed); loc != nil && loc[0] == 0 && loc[1] == len(trimmed) {
		return r.evaluate(trimmed[2:len(trimmed)-2], env)
	}

	var evalErr error
	result := segmentPattern.ReplaceAllStringFunc(body, func(match string) string {
		if evalErr != nil {
			return match
		}
		v, err := r.evaluate(match[2:len(match)-2], env)
		if err != nil {
			evalErr = err
			return match
		}
		return format(v)
	})
	if evalErr != nil {
		return nil, evalErr
	}
	return result, nil
}

func (r *Resolver) evaluate(expression string, env map[string]interface{}) (interface{}, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("empty expression")
	}

	program, err := r.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("expression %q evaluation failed: %w", expression, err)
	}
	return result, nil
}

// compile compiles an expression and caches the result.
func (r *Resolver) compile(expression string) (*vm.Program, error) {
	r.mu.RLock()
	if prog, ok := r.cache[expression]; ok {
		r.mu.RUnlock()
		return prog, nil
	}
	r.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.Env(map[string]interface{}{"json": map[string]interface{}{}}),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[expression] = prog
	r.mu.Unlock()

	return prog, nil
}

// CacheSize returns the number of cached expressions.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func format(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
