// Package closure implements closure conversion: every surviving
// `fix`-bound or anonymous kproc becomes a closure record
// {code, free-vars...}, call sites dispatch through that record, and
// variables that are both mutated and captured by some nested procedure
// are boxed so every capturing closure shares the same mutable cell.
package closure

import (
	"sort"

	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/freevar"
	"github.com/MattsPoche/sly-sub000/internal/varinfo"
)

// Result records, for every kproc label that survived conversion, its
// assigned closure layout: the order closure records must be allocated
// with at runtime (slot 0 is the code pointer, then the captures).
type Result struct {
	Layouts map[cps.Label][]cps.Var
	Boxed   map[cps.Var]bool
}

// IsBoxed reports whether v was found to be both captured by some nested
// procedure and mutated via set!, and so must be allocated in a box at
// its binding site. internal/interp consults this for lambda parameters,
// which (unlike `define`/letrec names) have no explicit EBox producer
// expression in the graph.
func (r Result) IsBoxed(v cps.Var) bool { return r.Boxed[v] }

// converter holds the graph and closure layout being built up as Convert
// rewrites every `proc` expression and `fix` binding in place.
type converter struct {
	g   *cps.Graph
	res Result
}

// Convert rewrites g in place: no `fix` expression survives, every
// `proc` expression becomes a code+record pair, and a kproc's
// Shares/Offset (the record's free-var layout) are fixed before any site
// referencing that kproc is rewritten. A call site's Proc variable
// already names the closure record produced by that rewrite, so the
// closure is passed to the call by construction; see DESIGN.md for why
// no separate Args-prepending step is needed on top of that.
func Convert(g *cps.Graph, info *varinfo.Info) Result {
	fv := freevar.NewAnalyzer(g)
	boxed := make(map[cps.Var]bool)
	for name, f := range info.Vars {
		if f.Escapes > 0 && f.Updates > 0 {
			boxed[name] = true
		}
	}
	c := &converter{g: g, res: Result{Layouts: make(map[cps.Label][]cps.Var), Boxed: boxed}}

	for label, k := range g.Konts {
		if k.Kind != cps.KKproc {
			continue
		}
		free := fv.FreeVars(label)
		k.ClosureDef = true
		k.Shares = free
		for i := range free {
			k.Offset = i + 1 // slot 0 reserved for the code pointer itself
		}
		c.res.Layouts[label] = free
	}

	boxMutableCaptures(g, boxed)
	c.eliminateFixAndProc()
	return c.res
}

// eliminateFixAndProc walks every kargs in the graph and replaces each
// `fix` or standalone `proc` expression it finds with the code+record
// construction. The label set is snapshotted first since the rewrite
// allocates fresh labels as it goes, and sorted so those fresh labels are
// numbered the same way on every run.
func (c *converter) eliminateFixAndProc() {
	labels := make([]cps.Label, 0, len(c.g.Konts))
	for label := range c.g.Konts {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	for _, label := range labels {
		k, ok := c.g.Ref(label)
		if !ok || k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if e == nil {
			continue
		}
		switch e.Kind {
		case cps.EFix:
			c.eliminateFix(k, e)
		case cps.EProc:
			c.convertProcExpr(k, e)
		}
	}
}

// eliminateFix replaces a `fix` node's simultaneous bindings with a chain
// of single-name binds, each producing its value directly (EBox) or via
// a code+record pair (EProc), ending at the fix's original continuation.
// letrec-binding groups never interleave in a way that requires true
// simultaneity beyond what boxing already provides, so a left-to-right
// chain preserves behavior.
func (c *converter) eliminateFix(k *cps.Kont, e *cps.Expr) {
	if len(e.Names) == 0 {
		k.Term = &cps.Term{Kind: cps.TContinue, K: k.Term.K, Expr: &cps.Expr{Kind: cps.EValues}}
		return
	}
	final := k.Term.K
	next := final
	for i := len(e.Names) - 1; i >= 1; i-- {
		term := c.stepTerm(e.Names[i], e.Procs[i], next)
		l := c.g.GensymLabel()
		c.g.Set(l, &cps.Kont{Kind: cps.KKargs, Term: term})
		next = l
	}
	k.Term = c.stepTerm(e.Names[0], e.Procs[0], next)
}

// convertProcExpr rewrites a standalone `proc` producer (one not nested
// in a `fix`, e.g. a `lambda` used as an ordinary expression) into the
// same code+record pair, preserving its original continuation target.
func (c *converter) convertProcExpr(k *cps.Kont, e *cps.Expr) {
	cont := k.Term.K
	codeBind := c.recordHop(e.K, cont)
	k.Term = &cps.Term{Kind: cps.TContinue, K: codeBind, Expr: &cps.Expr{Kind: cps.ECode, Code: e.K}}
}

// stepTerm returns the Term to install at the point that binds name to
// the value e describes, continuing to next once bound. For a boxed
// producer (EBox) the value is produced directly; for a proc producer it
// takes the code+record detour recordHop builds.
func (c *converter) stepTerm(name cps.Var, e *cps.Expr, next cps.Label) *cps.Term {
	if e.Kind != cps.EProc {
		nameBind := c.bindName(name, next)
		return &cps.Term{Kind: cps.TContinue, K: nameBind, Expr: e}
	}
	nameBind := c.bindName(name, next)
	codeBind := c.recordHop(e.K, nameBind)
	return &cps.Term{Kind: cps.TContinue, K: codeBind, Expr: &cps.Expr{Kind: cps.ECode, Code: e.K}}
}

// bindName allocates a fresh kargs that receives one value into name and
// falls straight through to next.
func (c *converter) bindName(name cps.Var, next cps.Label) cps.Label {
	l := c.g.GensymLabel()
	c.g.Set(l, &cps.Kont{
		Kind: cps.KKargs,
		Vars: []cps.Var{name},
		Term: &cps.Term{Kind: cps.TContinue, K: next, Expr: &cps.Expr{Kind: cps.EValues}},
	})
	return l
}

// recordHop allocates the kargs that receives a bare code pointer for
// procLabel and packs it with procLabel's already-computed Shares into
// an ERecord, the {code_ptr, free_vars[]} closure record.
func (c *converter) recordHop(procLabel cps.Label, cont cps.Label) cps.Label {
	free := c.sharesOf(procLabel)
	codeVar := c.g.GensymTemp()
	l := c.g.GensymLabel()
	c.g.Set(l, &cps.Kont{
		Kind: cps.KKargs,
		Vars: []cps.Var{codeVar},
		Term: &cps.Term{
			Kind: cps.TContinue, K: cont,
			Expr: &cps.Expr{Kind: cps.ERecord, Args: append([]cps.Var{codeVar}, free...)},
		},
	})
	return l
}

func (c *converter) sharesOf(procLabel cps.Label) []cps.Var {
	k, ok := c.g.Ref(procLabel)
	if !ok {
		return nil
	}
	return k.Shares
}

// boxMutableCaptures rewrites bare EValues reads of a boxed variable into
// EUnbox, so closures sharing the variable see each other's writes. It
// does not touch defining sites: the translator already boxes every
// `define` target with EBox, and internal/interp wraps a boxed lambda
// parameter in a box when it binds it. An EValues expression with a boxed
// argument becomes a single EUnbox of the first such argument; a boxed
// variable used as an operand of an EPrimcall, ECall or ERecord is not
// rewritten.
func boxMutableCaptures(g *cps.Graph, boxed map[cps.Var]bool) {
	if len(boxed) == 0 {
		return
	}
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil {
			continue
		}
		rewriteExprForBoxing(k.Term, boxed)
	}
}

func rewriteExprForBoxing(t *cps.Term, boxed map[cps.Var]bool) {
	if t.Kind != cps.TContinue || t.Expr == nil {
		return
	}
	e := t.Expr
	switch e.Kind {
	case cps.EValues:
		for _, v := range e.Args {
			if boxed[v] {
				// A bare read of a variable that must be boxed is
				// rewritten to unbox at the read site; the defining site
				// (set by the translator or by a later pass) is expected
				// to have boxed the value going in, matching the
				// invariant that a name in `boxed` is always stored
				// through EBox/ESet and read through EUnbox.
				e.Kind = cps.EUnbox
				e.Var = v
				e.Args = nil
				return
			}
		}
	}
}
