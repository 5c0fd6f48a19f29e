package cps

// Env is the translator's lexical scope chain. It is intentionally minimal:
// hygiene and macro expansion happen upstream in the expander; the
// translator only needs to know, for a surface name, which CPS variable
// currently denotes it and whether that variable is boxed (top-level and
// letrec-style local defines are always boxed so that forward/recursive
// references work before the box is initialized).
type Env struct {
	parent *Env
	vars   map[string]binding
}

type binding struct {
	v     Var
	boxed bool
}

func NewEnv(parent *Env) *Env {
	return &Env{parent: parent, vars: make(map[string]binding)}
}

func (e *Env) Bind(name string, v Var, boxed bool) {
	e.vars[name] = binding{v: v, boxed: boxed}
}

func (e *Env) Lookup(name string) (Var, bool, bool) {
	for s := e; s != nil; s = s.parent {
		if b, ok := s.vars[name]; ok {
			return b.v, b.boxed, true
		}
	}
	return "", false, false
}
