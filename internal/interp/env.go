package interp

import (
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

// Env is the interpreter's runtime binding environment: a flat,
// copy-on-extend map from CPS variable names to their current value.
// Unlike internal/cps.Env (a compile-time lexical scope), this is a
// per-activation value environment; closures capture a slice of values
// rather than a parent Env, so extending one frame never mutates another
// activation's bindings.
type Env map[cps.Var]value.Value

func (e Env) lookup(v cps.Var) value.Value {
	return e[v]
}

// extend returns a new Env containing all of e's bindings plus names
// bound to vals positionally. The base map is copied so control-flow
// merges (branch arms rejoining, retried trampoline steps) never see
// bindings from a sibling path.
func (e Env) extend(names []cps.Var, vals []value.Value) Env {
	next := make(Env, len(e)+len(names))
	for k, v := range e {
		next[k] = v
	}
	for i, n := range names {
		if n == "" {
			continue
		}
		if i < len(vals) {
			next[n] = vals[i]
		} else {
			next[n] = value.VoidV()
		}
	}
	return next
}
