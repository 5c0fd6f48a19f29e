// Package freevar implements the free-variable analyzer: for every kproc,
// the set of variables its body references that are bound outside it,
// i.e. the capture set closure conversion turns into a closure record.
package freevar

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/MattsPoche/sly-sub000/internal/cps"
)

// Set is an ordered, deduplicated list of captured variables. Order is
// deterministic (first-use order) so closure conversion assigns stable
// record slot indices across repeated runs.
type Set struct {
	order []cps.Var
	seen  map[cps.Var]bool
}

func newSet() *Set {
	return &Set{seen: make(map[cps.Var]bool)}
}

func (s *Set) add(v cps.Var) {
	if v == "" || s.seen[v] {
		return
	}
	s.seen[v] = true
	s.order = append(s.order, v)
}

func (s *Set) Vars() []cps.Var { return s.order }

// Analyzer computes and memoizes per-kproc free-variable sets. Memoizing
// with an LRU cache (rather than an unbounded map) bounds memory on very
// large graphs while still making repeated queries for the same kproc
// during closure conversion cheap. Eviction only costs a recompute.
type Analyzer struct {
	g     *cps.Graph
	cache *lru.Cache
}

// NewAnalyzer builds an analyzer over g with a cache sized to the number
// of continuations in the graph (every label is a plausible cache key).
func NewAnalyzer(g *cps.Graph) *Analyzer {
	size := len(g.Konts)
	if size < 16 {
		size = 16
	}
	cache, _ := lru.New(size)
	return &Analyzer{g: g, cache: cache}
}

// FreeVars returns the free variables of the kproc at procLabel: every
// variable referenced in its body or tail that is not bound within it.
func (a *Analyzer) FreeVars(procLabel cps.Label) []cps.Var {
	if cached, ok := a.cache.Get(procLabel); ok {
		return cached.([]cps.Var)
	}
	k, ok := a.g.Ref(procLabel)
	if !ok || k.Kind != cps.KKproc {
		return nil
	}

	bound := make(map[cps.Var]bool)
	free := newSet()
	visited := make(map[cps.Label]bool)

	var walk func(label cps.Label)
	walk = func(label cps.Label) {
		if visited[label] {
			return
		}
		visited[label] = true
		kk, ok := a.g.Ref(label)
		if !ok {
			return
		}
		switch kk.Kind {
		case cps.KKargs:
			for _, v := range kk.Vars {
				bound[v] = true
			}
			walkTerm(kk.Term, bound, free, a, walk)
		case cps.KKreceive:
			walk(kk.RecvK)
		case cps.KKproc:
			// A nested lambda's own parameters are locally bound to it,
			// not to the outer procedure, but any free variable IT
			// captures that isn't bound in the outer scope either must
			// still propagate outward as one of ours.
			for _, nv := range a.FreeVars(label) {
				if !bound[nv] {
					free.add(nv)
				}
			}
		case cps.KKtail:
		}
	}
	walk(k.ProcBody)

	result := free.Vars()
	a.cache.Add(procLabel, result)
	return result
}

func walkTerm(t *cps.Term, bound map[cps.Var]bool, free *Set, a *Analyzer, walk func(cps.Label)) {
	if t == nil {
		return
	}
	switch t.Kind {
	case cps.TContinue:
		walkExpr(t.Expr, bound, free, a, walk)
		walk(t.K)
	case cps.TBranch:
		if !bound[t.Arg] {
			free.add(t.Arg)
		}
		walk(t.KTrue)
		walk(t.KFalse)
	}
}

func walkExpr(e *cps.Expr, bound map[cps.Var]bool, free *Set, a *Analyzer, walk func(cps.Label)) {
	if e == nil {
		return
	}
	use := func(v cps.Var) {
		if v != "" && !bound[v] {
			free.add(v)
		}
	}
	switch e.Kind {
	case cps.EValues, cps.EPrimcall, cps.ERecord:
		for _, v := range e.Args {
			use(v)
		}
	case cps.ECall:
		use(e.Proc)
		for _, v := range e.Args {
			use(v)
		}
	case cps.EProc:
		walk(e.K)
	case cps.EFix:
		for _, p := range e.Procs {
			walkExpr(p, bound, free, a, walk)
		}
	case cps.ESet:
		use(e.Var)
		use(e.Val)
	case cps.EBox:
		use(e.Val)
	case cps.EUnbox:
		use(e.Var)
	case cps.ESelect:
		use(e.Record)
	case cps.ERecordSet:
		use(e.Record)
		use(e.Val)
	}
}
