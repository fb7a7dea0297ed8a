package notify

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL expression over an Event.
type Filter struct {
	expr string
	prg  cel.Program
}

// CompileFilter compiles expr. The expression sees the variables plugin
// (string), event (string) and params (map of the notification params) and
// must evaluate to a bool.
func CompileFilter(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("plugin", cel.StringType),
		cel.Variable("event", cel.StringType),
		cel.Variable("params", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("creating CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues.Err() != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building filter program %q: %w", expr, err)
	}

	return &Filter{expr: expr, prg: prg}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the filter against ev.
func (f *Filter) Match(ev Event) (bool, error) {
	params := ev.Params
	if params == nil {
		params = map[string]any{}
	}

	out, _, err := f.prg.Eval(map[string]any{
		"plugin": ev.Plugin,
		"event":  ev.Name,
		"params": params,
	})
	if err != nil {
		return false, fmt.Errorf("evaluating filter %q: %w", f.expr, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q evaluated to %T, want bool", f.expr, out.Value())
	}
	return matched, nil
}
