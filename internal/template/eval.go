package template

import (
	"fmt"

	"github.com/dop251/goja"
)

// prelude is loaded into every expression runtime. range mirrors the
// Python builtin commonly used in foreach enumerations.
const prelude = `
function range(start, stop, step) {
	if (stop === undefined) { stop = start; start = 0; }
	if (step === undefined) { step = 1; }
	if (step === 0) { throw new Error("range() step must not be zero"); }
	var out = [];
	if (step > 0) {
		for (var i = start; i < stop; i += step) { out.push(i); }
	} else {
		for (var i = start; i > stop; i += step) { out.push(i); }
	}
	return out;
}
`

// EvalExpr evaluates a JavaScript expression in a fresh sandboxed
// runtime with the prelude loaded and returns the exported value.
func EvalExpr(expr string) (any, error) {
	vm := goja.New()
	if _, err := vm.RunString(prelude); err != nil {
		return nil, fmt.Errorf("expression prelude: %w", err)
	}
	val, err := vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return val.Export(), nil
}

// EvalList evaluates an expression expected to enumerate values: a
// resulting array yields its elements, a scalar yields a one-element
// list.
func EvalList(expr string) ([]any, error) {
	val, err := EvalExpr(expr)
	if err != nil {
		return nil, err
	}
	if items, ok := val.([]any); ok {
		return items, nil
	}
	return []any{val}, nil
}
