// Package varinfo implements the variable-info analyzer: a single pass
// over a CPS graph that records, per binding site, whether a variable is
// ever referenced, whether it escapes its defining procedure (is captured
// by some nested lambda), whether it is ever the target of a `set!`, and,
// for branch-merged alternatives, the chain of other bindings it could
// have come from.
package varinfo

import "github.com/MattsPoche/sly-sub000/internal/cps"

// Fact holds everything the optimizer and closure converter need to know
// about one CPS variable. Used/Escapes/Updates are occurrence counts, not
// flags: the contraction optimizer's single-use test needs "exactly
// once", not "at least once".
type Fact struct {
	Used    int
	Escapes int
	Updates int
	IsAlias bool
	Which   cps.Var // the variable this one is an alias of, when IsAlias
	Binding cps.Label
	Alt     *Fact // next alternative in a branch-merge chain
}

// Info is the global aggregate: one Fact per variable name. The enclosing
// procedure of each label, used to decide "escapes", is tracked by the
// collector during the walk and is not kept here.
type Info struct {
	Vars map[cps.Var]*Fact
}

func newInfo() *Info {
	return &Info{Vars: make(map[cps.Var]*Fact)}
}

func (inf *Info) fact(v cps.Var) *Fact {
	f, ok := inf.Vars[v]
	if !ok {
		f = &Fact{}
		inf.Vars[v] = f
	}
	return f
}

// Collect walks g from g.Entry and returns the aggregate variable-info
// table. The collector tracks, for each label visited, which kproc's body
// it is nested inside, so a reference to a variable bound by an outer
// procedure can be marked as escaping.
func Collect(g *cps.Graph) *Info {
	inf := newInfo()
	c := &collector{g: g, inf: inf, procOf: make(map[cps.Label]cps.Label)}
	c.run()
	return c.inf
}

type collector struct {
	g      *cps.Graph
	inf    *Info
	procOf map[cps.Label]cps.Label // label -> innermost enclosing kproc label ("" for top level)
	seen   map[cps.Label]bool
}

func (c *collector) run() {
	c.seen = make(map[cps.Label]bool)
	c.walk(c.g.Entry, "")
}

func (c *collector) walk(label cps.Label, proc cps.Label) {
	if c.seen[label] {
		return
	}
	c.seen[label] = true
	k, ok := c.g.Ref(label)
	if !ok {
		return
	}
	c.procOf[label] = proc

	switch k.Kind {
	case cps.KKargs:
		for _, v := range k.Vars {
			c.inf.fact(v).Binding = label
		}
		// Names bound by a fix are defined at the kargs whose term holds it.
		if t := k.Term; t != nil && t.Kind == cps.TContinue && t.Expr != nil && t.Expr.Kind == cps.EFix {
			for _, n := range t.Expr.Names {
				c.inf.fact(n).Binding = label
			}
		}
		c.walkTerm(k.Term, proc)
	case cps.KKreceive:
		c.walk(k.RecvK, proc)
	case cps.KKproc:
		c.walk(k.ProcTail, label)
		c.walk(k.ProcBody, label)
	case cps.KKtail:
		// no successors
	}
}

func (c *collector) walkTerm(t *cps.Term, proc cps.Label) {
	if t == nil {
		return
	}
	switch t.Kind {
	case cps.TContinue:
		c.walkExpr(t.Expr, proc)
		c.markAliases(t)
		c.walk(t.K, proc)
	case cps.TBranch:
		c.use(t.Arg, proc)
		c.walk(t.KTrue, proc)
		c.walk(t.KFalse, proc)
		// Branch-merge: when both arms bind variables at the same arity
		// via their own kargs (i.e. both forward to a shared downstream
		// kargs by continuing with values), record the alternative chain
		// so later alias resolution can see through an if that merely
		// selects between two pre-bound values.
		c.chainAlternatives(t.KTrue, t.KFalse)
	}
}

// markAliases records that the variables bound by a `values` producer's
// target are aliases of the forwarded names: values is effect-free, so
// a consumer may later resolve the alias to the underlying definition.
func (c *collector) markAliases(t *cps.Term) {
	e := t.Expr
	if e == nil || e.Kind != cps.EValues || len(e.Args) == 0 {
		return
	}
	d, ok := c.g.Ref(t.K)
	if !ok || d.Kind != cps.KKargs || len(d.Vars) != len(e.Args) {
		return
	}
	for i, w := range d.Vars {
		if w == "" {
			continue
		}
		f := c.inf.fact(w)
		f.IsAlias = true
		f.Which = e.Args[i]
	}
}

// chainAlternatives links the Alt field of any variable bound by ifTrue's
// kargs to the correspondingly-positioned variable bound by ifFalse's
// kargs, when both target the same downstream label with the same arity
// (the common "if merges two definitions" shape).
func (c *collector) chainAlternatives(kTrue, kFalse cps.Label) {
	kt, ok1 := c.g.Ref(kTrue)
	kf, ok2 := c.g.Ref(kFalse)
	if !ok1 || !ok2 || kt.Kind != cps.KKargs || kf.Kind != cps.KKargs {
		return
	}
	if len(kt.Vars) != len(kf.Vars) {
		return
	}
	if kt.Term == nil || kf.Term == nil || kt.Term.Kind != cps.TContinue ||
		kf.Term.Kind != cps.TContinue || kt.Term.K != kf.Term.K {
		return
	}
	for i := range kt.Vars {
		a, b := kt.Vars[i], kf.Vars[i]
		if a == "" || b == "" {
			continue
		}
		fa, fb := c.inf.fact(a), c.inf.fact(b)
		fa.Alt = fb
	}
}

func (c *collector) walkExpr(e *cps.Expr, proc cps.Label) {
	if e == nil {
		return
	}
	switch e.Kind {
	case cps.EValues, cps.EPrimcall, cps.ERecord:
		for _, v := range e.Args {
			c.use(v, proc)
		}
	case cps.ECall:
		c.use(e.Proc, proc)
		for _, v := range e.Args {
			c.use(v, proc)
		}
	case cps.EProc:
		c.walk(e.K, proc)
	case cps.EFix:
		for _, p := range e.Procs {
			c.walkExpr(p, proc)
		}
	case cps.ESet:
		c.inf.fact(e.Var).Updates++
		c.use(e.Val, proc)
	case cps.EBox:
		if e.Val != "" {
			c.use(e.Val, proc)
		}
	case cps.EUnbox:
		c.use(e.Var, proc)
	case cps.ESelect, cps.EOffset:
		c.use(e.Record, proc)
	case cps.ERecordSet:
		c.use(e.Record, proc)
		c.use(e.Val, proc)
	}
}

// use marks v as referenced, and as escaping when the reference occurs
// inside a kproc other than the one whose body contains v's binding;
// closure conversion later uses the escape mark to decide what must be
// captured.
func (c *collector) use(v cps.Var, proc cps.Label) {
	if v == "" {
		return
	}
	f := c.inf.fact(v)
	f.Used++
	bindProc, ok := c.procOf[f.Binding]
	if ok && bindProc != proc {
		f.Escapes++
	}
}
