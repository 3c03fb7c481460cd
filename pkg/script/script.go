// Package script provides Lua-driven parametric evaluation for
// ExternalModule generics and vendor attribute values (spec §4.8),
// grounded on the teacher's pkg/meta.LuaEvaluator: embed gopher-lua,
// wrap an expression in "return (...)", and convert whatever comes
// back on the stack.
package script

import (
	"fmt"

	"github.com/oisee/hlim/pkg/herr"
	lua "github.com/yuin/gopher-lua"
)

// Evaluator owns one Lua state. It is not safe for concurrent use;
// circuit construction is single-threaded per spec §5, and so is this.
type Evaluator struct {
	L *lua.LState
}

// NewEvaluator creates an Evaluator with a fresh Lua state and no
// globals beyond the standard library.
func NewEvaluator() *Evaluator {
	return &Evaluator{L: lua.NewState()}
}

// Close releases the underlying Lua state.
func (e *Evaluator) Close() {
	e.L.Close()
}

// SetGlobal exposes a named integer to expressions (e.g. a generic
// referring to another generic, or a clock frequency in Hz).
func (e *Evaluator) SetGlobal(name string, v int64) {
	e.L.SetGlobal(name, lua.LNumber(v))
}

// EvalString evaluates expr as a Lua expression and renders the
// result as a string, the same literal-value shape a generic's map
// value or a vendor attribute's value string takes.
func (e *Evaluator) EvalString(expr string) (string, error) {
	v, err := e.eval(expr)
	if err != nil {
		return "", err
	}
	switch v := v.(type) {
	case lua.LNumber:
		if float64(int64(v)) == float64(v) {
			return fmt.Sprintf("%d", int64(v)), nil
		}
		return fmt.Sprintf("%g", float64(v)), nil
	case lua.LString:
		return string(v), nil
	case lua.LBool:
		if bool(v) {
			return "true", nil
		}
		return "false", nil
	default:
		return "", herr.New(herr.LiteralError, "script: expression %q produced unsupported value %s", expr, v.Type().String())
	}
}

// EvalInt evaluates expr and requires a whole-number result, for
// generics and attribute values that feed a width or depth.
func (e *Evaluator) EvalInt(expr string) (int64, error) {
	v, err := e.eval(expr)
	if err != nil {
		return 0, err
	}
	n, ok := v.(lua.LNumber)
	if !ok {
		return 0, herr.New(herr.LiteralError, "script: expression %q did not evaluate to a number, got %s", expr, v.Type().String())
	}
	if float64(int64(n)) != float64(n) {
		return 0, herr.New(herr.LiteralError, "script: expression %q evaluated to a non-integer %g", expr, float64(n))
	}
	return int64(n), nil
}

func (e *Evaluator) eval(expr string) (lua.LValue, error) {
	code := fmt.Sprintf("return (%s)", expr)
	if err := e.L.DoString(code); err != nil {
		return nil, herr.New(herr.LiteralError, "script: failed to evaluate %q: %v", expr, err)
	}
	v := e.L.Get(-1)
	e.L.Pop(1)
	return v, nil
}

// EvalMap evaluates every value of m as a Lua expression and returns
// a new map of resolved literal strings, leaving m unchanged (e.g. a
// generics/vendor-attribute bag where values are written as "8*2"
// rather than "16").
func (e *Evaluator) EvalMap(m map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, expr := range m {
		v, err := e.EvalString(expr)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
