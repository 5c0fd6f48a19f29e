// Package contract implements the contraction optimizer: a fixed-point
// loop of alias resolution, constant folding with dead-code elimination,
// and single-use beta-contraction. Each round is cheap and monotonic; the
// optimizer stops the instant a round makes no change, tracked with a
// per-round "click" counter.
package contract

import (
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/value"
	"github.com/MattsPoche/sly-sub000/internal/varinfo"
)

// Stats reports how many times each phase fired, useful for tests
// asserting the optimizer actually did something and for the pipeline's
// log line.
type Stats struct {
	Rounds      int
	Aliases     int
	Folds       int
	DeadKonts   int
	Inlines     int
	BetaInlines int
}

// Run drives alias resolution, constant/branch folding with dead-producer
// DCE, jump splicing, and single-use procedure beta-contraction to a fixed
// point and returns the click totals.
func Run(g *cps.Graph) Stats {
	return RunLimited(g, 0)
}

// RunLimited is Run with a cap on the number of rounds; maxRounds <= 0
// means run to the natural fixed point. The variable-info analyzer is
// re-run at the start of each stage: every rewrite invalidates the
// previous stage's facts, so aliases, dead-code checks, and the
// single-use beta test each read a table collected after the rewrites
// that precede them.
func RunLimited(g *cps.Graph, maxRounds int) Stats {
	var total Stats
	for {
		info := varinfo.Collect(g)
		a := resolveAliases(g, info)

		info = varinfo.Collect(g)
		f := foldConstants(g)
		p := dropDeadPureProducers(g, info)
		s := dropDeadSetsAndFixNames(g, info)
		d := sweepDead(g)

		info = varinfo.Collect(g)
		i := inlineSingleUse(g)
		b := betaContractProcs(g, info)
		total.Aliases += a
		total.Folds += f + p + s
		total.DeadKonts += d
		total.Inlines += i
		total.BetaInlines += b
		total.Rounds++
		if a+f+p+s+d+i+b == 0 {
			break
		}
		if maxRounds > 0 && total.Rounds >= maxRounds {
			break
		}
	}
	return total
}

// ---- shared graph queries ------------------------------------------------

// inDegree counts, for every label, how many TContinue terms anywhere in
// the graph name it as their successor. A producer/consumer fact (a known
// constant, a known alias, a known closure) is only sound to record when
// the consumer has exactly one producer — a branch merge point can be
// reached by two different producers feeding the same variable slot, and
// treating either one as "the" producer there would be unsound.
func inDegree(g *cps.Graph) map[cps.Label]int {
	deg := make(map[cps.Label]int)
	for _, k := range g.Konts {
		if k.Kind == cps.KKargs && k.Term != nil && k.Term.Kind == cps.TContinue {
			deg[k.Term.K]++
		}
	}
	return deg
}

// usedCount reads a variable's global read count from the analyzer's
// table; a name with no fact was never referenced anywhere.
func usedCount(info *varinfo.Info, v cps.Var) int {
	if f, ok := info.Vars[v]; ok {
		return f.Used
	}
	return 0
}

// ---- phase 1: alias resolution ----------------------------------------

// resolveAliases rewrites every reference to a `values`-bound alias to
// refer to the forwarded variable directly. values is effect-free, so
// the rewrite is always sound. The alias facts come from the analyzer
// (Fact.IsAlias/Which); a fact is only acted on when the binder has a
// single producer (inDegree 1) and no branch-merge alternatives, since a
// slot fed by two different arms has no one underlying definition.
func resolveAliases(g *cps.Graph, info *varinfo.Info) int {
	deg := inDegree(g)
	alias := make(map[cps.Var]cps.Var)
	for v, f := range info.Vars {
		if !f.IsAlias || f.Which == "" || f.Alt != nil {
			continue
		}
		binder, ok := g.Ref(f.Binding)
		if !ok || binder.Kind != cps.KKargs || deg[f.Binding] != 1 {
			continue
		}
		alias[v] = f.Which
	}
	if len(alias) == 0 {
		return 0
	}
	resolve := func(v cps.Var) cps.Var {
		seen := map[cps.Var]bool{}
		for {
			t, ok := alias[v]
			if !ok || t == v || seen[v] {
				return v
			}
			seen[v] = true
			v = t
		}
	}

	clicks := 0
	rewrite := func(v *cps.Var) {
		if *v == "" {
			return
		}
		if r := resolve(*v); r != *v {
			*v = r
			clicks++
		}
	}
	rewriteSlice := func(vs []cps.Var) {
		for i := range vs {
			rewrite(&vs[i])
		}
	}

	for _, k := range g.Konts {
		if k.Kind == cps.KKargs && k.Term != nil {
			rewriteTerm(k.Term, rewrite, rewriteSlice)
		}
	}
	return clicks
}

func rewriteTerm(t *cps.Term, rewrite func(*cps.Var), rewriteSlice func([]cps.Var)) {
	switch t.Kind {
	case cps.TContinue:
		rewriteExpr(t.Expr, rewrite, rewriteSlice)
	case cps.TBranch:
		rewrite(&t.Arg)
	}
}

func rewriteExpr(e *cps.Expr, rewrite func(*cps.Var), rewriteSlice func([]cps.Var)) {
	if e == nil {
		return
	}
	switch e.Kind {
	case cps.EValues, cps.EPrimcall, cps.ERecord:
		rewriteSlice(e.Args)
	case cps.ECall:
		rewrite(&e.Proc)
		rewriteSlice(e.Args)
	case cps.EFix:
		for _, p := range e.Procs {
			rewriteExpr(p, rewrite, rewriteSlice)
		}
	case cps.ESet:
		rewrite(&e.Val)
	case cps.EBox:
		if e.Val != "" {
			rewrite(&e.Val)
		}
	case cps.EUnbox:
		rewrite(&e.Var)
	case cps.ESelect, cps.EOffset:
		rewrite(&e.Record)
	case cps.ERecordSet:
		rewrite(&e.Record)
		rewrite(&e.Val)
	}
}

// ---- phase 2: constant folding, branch folding, dead producers ---------

// foldConstants replaces any kargs whose term is `primcall(op, consts...)`
// for a pure, foldable op (cps.IsPureFoldable) with the computed constant,
// using the runtime's own arithmetic semantics so folded and unfolded code
// agree bit-for-bit. It also folds a branch whose condition variable is a
// known constant.
//
// constOf maps a variable to the *producer* expression that feeds it: the
// kont whose Term is `continue(const(x), D)` for the single-var kargs D
// that binds the variable, not D itself — D's own Term is an unrelated,
// later computation.
func foldConstants(g *cps.Graph) int {
	deg := inDegree(g)
	constOf := make(map[cps.Var]*cps.Expr)
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if e == nil || e.Kind != cps.EConst {
			continue
		}
		d, ok := g.Ref(k.Term.K)
		if !ok || d.Kind != cps.KKargs || len(d.Vars) != 1 || deg[k.Term.K] != 1 {
			continue
		}
		constOf[d.Vars[0]] = e
	}

	clicks := 0
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if e == nil || e.Kind != cps.EPrimcall || !cps.IsPureFoldable(e.Prim) {
			continue
		}
		vals := make([]value.Value, len(e.Args))
		allConst := true
		for i, a := range e.Args {
			ce, ok := constOf[a]
			if !ok {
				allConst = false
				break
			}
			vals[i] = ce.Const
		}
		if !allConst {
			continue
		}
		folded, ok := foldPrim(e.Prim, vals)
		if !ok {
			continue
		}
		k.Term.Expr = &cps.Expr{Kind: cps.EConst, Const: folded}
		clicks++
	}
	clicks += foldBranches(g, constOf)
	return clicks
}

// foldBranches collapses a branch whose condition resolves to a known
// constant to a direct jump at the winning arm.
func foldBranches(g *cps.Graph, constOf map[cps.Var]*cps.Expr) int {
	clicks := 0
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TBranch {
			continue
		}
		ce, ok := constOf[k.Term.Arg]
		if !ok {
			continue
		}
		winner := k.Term.KFalse
		if !ce.Const.IsFalse() {
			winner = k.Term.KTrue
		}
		k.Term = &cps.Term{Kind: cps.TContinue, K: winner, Expr: &cps.Expr{Kind: cps.EValues}}
		clicks++
	}
	return clicks
}

// dropDeadPureProducers drops a pure producer feeding a single-var kargs
// whose variable has become globally unused — typically left behind once
// foldBranches removes the sole read of a condition variable, or once
// inlineSingleUse/betaContractProcs remove the sole read of some other
// temporary. The producer's own term is rewritten to produce no values and
// the consumer's Vars is cleared to match. Deadness comes from the
// analyzer's table: a fold or branch collapse earlier in the stage only
// ever removes uses, so a variable the table already shows dead is dead.
func dropDeadPureProducers(g *cps.Graph, info *varinfo.Info) int {
	deg := inDegree(g)
	clicks := 0
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if !isPureDroppable(e) {
			continue
		}
		d, ok := g.Ref(k.Term.K)
		if !ok || d.Kind != cps.KKargs || len(d.Vars) != 1 || deg[k.Term.K] != 1 {
			continue
		}
		if usedCount(info, d.Vars[0]) != 0 {
			continue
		}
		k.Term.Expr = &cps.Expr{Kind: cps.EValues}
		d.Vars = nil
		clicks++
	}
	return clicks
}

// dropDeadSetsAndFixNames rewrites a `set` whose target is never read to
// a plain void constant (the assignment has no observer), and prunes from
// every `fix` any name that is never read and whose initializer is a
// box/proc (no effect to lose). A fully pruned fix degenerates to a bare
// no-values forward. Cascades (a pruned box's initializer var going dead,
// etc.) are picked up on the next round's recollection.
func dropDeadSetsAndFixNames(g *cps.Graph, info *varinfo.Info) int {
	clicks := 0
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if e == nil {
			continue
		}
		switch e.Kind {
		case cps.ESet:
			if usedCount(info, e.Var) == 0 {
				k.Term.Expr = &cps.Expr{Kind: cps.EConst, Const: value.VoidV()}
				clicks++
			}
		case cps.EFix:
			var names []cps.Var
			var procs []*cps.Expr
			for i, n := range e.Names {
				if usedCount(info, n) == 0 && prunableFixInit(e.Procs[i]) {
					clicks++
					continue
				}
				names = append(names, n)
				procs = append(procs, e.Procs[i])
			}
			if len(names) == len(e.Names) {
				continue
			}
			if len(names) == 0 {
				k.Term.Expr = &cps.Expr{Kind: cps.EValues}
			} else {
				e.Names, e.Procs = names, procs
			}
		}
	}
	return clicks
}

func prunableFixInit(e *cps.Expr) bool {
	if e == nil {
		return true
	}
	return e.Kind == cps.EProc || e.Kind == cps.EBox
}

// isPureDroppable reports whether e's evaluation has no side effect that
// dropping its result would lose: constants, closures, variable references
// and bare primitive values. set!, box mutation, allocation, and calls
// are excluded even though some are "pure" in a result sense, since they
// may still need to run for their control-transfer or allocation effect.
func isPureDroppable(e *cps.Expr) bool {
	if e == nil {
		return false
	}
	switch e.Kind {
	case cps.EConst, cps.EValues, cps.EProc, cps.EPrim:
		return true
	default:
		return false
	}
}

// ---- phase 3: dead-kont sweep -------------------------------------------

// sweepDead removes any label unreachable from Entry, via a fresh
// worklist reachability walk each round.
func sweepDead(g *cps.Graph) int {
	reachable := make(map[cps.Label]bool)
	var work []cps.Label
	push := func(l cps.Label) {
		if l == "" || reachable[l] {
			return
		}
		reachable[l] = true
		work = append(work, l)
	}
	push(g.Entry)
	push(g.Exit)
	for len(work) > 0 {
		l := work[len(work)-1]
		work = work[:len(work)-1]
		k, ok := g.Ref(l)
		if !ok {
			continue
		}
		switch k.Kind {
		case cps.KKargs:
			if k.Term != nil {
				switch k.Term.Kind {
				case cps.TContinue:
					push(k.Term.K)
					markExprLabels(k.Term.Expr, push)
				case cps.TBranch:
					push(k.Term.KTrue)
					push(k.Term.KFalse)
				}
			}
		case cps.KKreceive:
			push(k.RecvK)
		case cps.KKproc:
			push(k.ProcTail)
			push(k.ProcBody)
		}
	}

	clicks := 0
	for name := range g.Konts {
		if !reachable[name] {
			g.Delete(name)
			clicks++
		}
	}
	return clicks
}

func markExprLabels(e *cps.Expr, push func(cps.Label)) {
	if e == nil {
		return
	}
	switch e.Kind {
	case cps.EProc:
		push(e.K)
	case cps.ECode:
		push(e.Code)
	case cps.EFix:
		for _, p := range e.Procs {
			markExprLabels(p, push)
		}
	}
}

// ---- phase 4: trivial jump splicing -------------------------------------

// inlineSingleUse collapses a zero-arg kargs hop that exactly one term
// jumps to: the referrer adopts the target's entire term (both successor
// and expression), so the indirection disappears without losing whatever
// the target actually computed. The referrer's own expression is replaced,
// so only a referrer whose expression is effect-free (isPureDroppable) is
// spliced; a `fix` or `set` referrer keeps its term. Non-zero-arg targets
// are left to alias resolution, which already knows how to rename the
// bound variables.
func inlineSingleUse(g *cps.Graph) int {
	useCount := make(map[cps.Label]int)
	var sites []*cps.Kont
	for _, k := range g.Konts {
		if k.Kind == cps.KKargs && k.Term != nil && k.Term.Kind == cps.TContinue {
			useCount[k.Term.K]++
			sites = append(sites, k)
		}
	}

	clicks := 0
	for _, k := range sites {
		target := k.Term.K
		if target == g.Exit || useCount[target] != 1 {
			continue
		}
		if !isPureDroppable(k.Term.Expr) {
			continue
		}
		tk, ok := g.Ref(target)
		if !ok || tk.Kind != cps.KKargs || len(tk.Vars) != 0 {
			continue
		}
		if tk.Term == nil || tk.Term.Kind != cps.TContinue {
			continue
		}
		exprCopy := *tk.Term.Expr
		k.Term = &cps.Term{Kind: cps.TContinue, K: tk.Term.K, Expr: &exprCopy}
		clicks++
	}
	return clicks
}

// ---- phase 5: single-use procedure beta-contraction ---------------------

// betaContractProcs inlines single-use procedures: when a call's operator
// names a procedure used exactly once in the whole graph, the call is
// replaced by a renamed copy of the callee's body, with its formal
// parameters bound to the call's argument variables and its own tail
// continuation redirected to wherever the call's result was headed
// (directly to ktail for a tail call, or to the kreceive's target for a
// non-tail call whose kreceive takes exactly one value; a call returning
// through any other kreceive is not inlined). A variadic callee's rest parameter is bound to a `list`
// primcall over the caller's extra arguments, exactly as an ordinary call
// would build it at the runtime boundary. The "used exactly once, no
// escapes" test reads the analyzer's counts.
func betaContractProcs(g *cps.Graph, info *varinfo.Info) int {
	deg := inDegree(g)
	procOf := make(map[cps.Var]cps.Label)
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if e == nil || e.Kind != cps.EProc {
			continue
		}
		d, ok := g.Ref(k.Term.K)
		if !ok || d.Kind != cps.KKargs || len(d.Vars) != 1 || deg[k.Term.K] != 1 {
			continue
		}
		procOf[d.Vars[0]] = e.K
	}
	if len(procOf) == 0 {
		return 0
	}

	clicks := 0
	for _, k := range g.Konts {
		if k.Kind != cps.KKargs || k.Term == nil || k.Term.Kind != cps.TContinue {
			continue
		}
		e := k.Term.Expr
		if e == nil || e.Kind != cps.ECall || e.Spread {
			continue
		}
		procLabel, ok := procOf[e.Proc]
		if !ok {
			continue
		}
		if f := info.Vars[e.Proc]; f == nil || f.Used != 1 || f.Escapes != 0 {
			continue
		}
		pk, ok := g.Ref(procLabel)
		if !ok || pk.Kind != cps.KKproc {
			continue
		}
		// An escape continuation's body jumps to a label outside the
		// procedure; splicing it in would copy the whole downstream
		// subgraph. Leave it for the runtime's escape path.
		if pk.ProcEscape {
			continue
		}
		if len(e.Args) < pk.ProcArity.Req || (!pk.ProcArity.Rest && len(e.Args) != pk.ProcArity.Req) {
			continue
		}
		target, ok := resolveReturnTarget(g, k.Term.K)
		if !ok {
			continue
		}
		in := &inliner{g: g, tailLabel: pk.ProcTail, target: target,
			labels: map[cps.Label]cps.Label{}, vars: map[cps.Var]cps.Var{}}
		entry := in.label(pk.ProcBody)
		k.Term = wireArgs(g, pk.ProcArity, e.Args, entry)
		clicks++
	}
	return clicks
}

// resolveReturnTarget finds where a call's result actually flows once
// execution resumes: a tail call's successor is already ktail, a
// non-tail call's successor is a kreceive whose RecvK is the true target.
// Only a single-value kreceive can be bypassed: any other arity packs or
// pads the returned values, which a direct jump to RecvK would skip.
func resolveReturnTarget(g *cps.Graph, after cps.Label) (cps.Label, bool) {
	k, ok := g.Ref(after)
	if !ok {
		return "", false
	}
	switch k.Kind {
	case cps.KKtail:
		return after, true
	case cps.KKreceive:
		if k.RecvArity.Req != 1 || k.RecvArity.Rest {
			return "", false
		}
		return k.RecvK, true
	default:
		return "", false
	}
}

// wireArgs builds the identity-binding chain for an inlined call:
// required arguments forwarded positionally into entry, with any surplus
// collected by a `list` primcall for a rest parameter.
func wireArgs(g *cps.Graph, arity cps.Arity, args []cps.Var, entry cps.Label) *cps.Term {
	if !arity.Rest {
		return &cps.Term{Kind: cps.TContinue, K: entry, Expr: &cps.Expr{Kind: cps.EValues, Args: args}}
	}
	req := append([]cps.Var{}, args[:arity.Req]...)
	extra := args[arity.Req:]
	restVar := g.GensymTemp()
	hop := g.GensymLabel()
	g.Set(hop, &cps.Kont{Kind: cps.KKargs, Vars: []cps.Var{restVar}, Term: &cps.Term{
		Kind: cps.TContinue, K: entry,
		Expr: &cps.Expr{Kind: cps.EValues, Args: append(req, restVar)},
	}})
	return &cps.Term{Kind: cps.TContinue, K: hop, Expr: &cps.Expr{Kind: cps.EPrimcall, Prim: "list", Args: extra}}
}

// inliner deep-copies a callee's body into fresh labels and variables as
// it's spliced into a caller, redirecting the callee's own tail (ProcTail)
// to wherever the caller's call site was headed. Only names actually bound
// within the copied subgraph are renamed; a free reference to an outer
// name passes through unchanged, since it still denotes the same binding
// after the copy.
type inliner struct {
	g         *cps.Graph
	tailLabel cps.Label
	target    cps.Label
	labels    map[cps.Label]cps.Label
	vars      map[cps.Var]cps.Var
}

func (in *inliner) bindVar(old cps.Var) cps.Var {
	if old == "" {
		return ""
	}
	nv := in.g.GensymTemp()
	in.vars[old] = nv
	return nv
}

func (in *inliner) useVar(old cps.Var) cps.Var {
	if old == "" {
		return ""
	}
	if nv, ok := in.vars[old]; ok {
		return nv
	}
	return old
}

func (in *inliner) varSlice(vs []cps.Var) []cps.Var {
	if vs == nil {
		return nil
	}
	out := make([]cps.Var, len(vs))
	for i, v := range vs {
		out[i] = in.bindVar(v)
	}
	return out
}

func (in *inliner) useVarSlice(vs []cps.Var) []cps.Var {
	if vs == nil {
		return nil
	}
	out := make([]cps.Var, len(vs))
	for i, v := range vs {
		out[i] = in.useVar(v)
	}
	return out
}

func (in *inliner) label(old cps.Label) cps.Label {
	if old == in.tailLabel {
		return in.target
	}
	if nl, ok := in.labels[old]; ok {
		return nl
	}
	nl := in.g.GensymLabel()
	in.labels[old] = nl
	oldK, ok := in.g.Ref(old)
	if !ok {
		in.g.Set(nl, &cps.Kont{Kind: cps.KKtail})
		return nl
	}
	newK := &cps.Kont{Kind: oldK.Kind}
	in.g.Set(nl, newK)
	switch oldK.Kind {
	case cps.KKargs:
		newK.Vars = in.varSlice(oldK.Vars)
		newK.Term = in.term(oldK.Term)
	case cps.KKreceive:
		newK.RecvArity = oldK.RecvArity
		newK.RecvK = in.label(oldK.RecvK)
	case cps.KKproc:
		newK.ProcArity = oldK.ProcArity
		newK.ProcEscape = oldK.ProcEscape
		newK.ProcTail = in.label(oldK.ProcTail)
		newK.ProcBody = in.label(oldK.ProcBody)
	case cps.KKtail:
		// A nested procedure's own tail is its own return point, untouched.
	}
	return nl
}

func (in *inliner) term(old *cps.Term) *cps.Term {
	if old == nil {
		return nil
	}
	switch old.Kind {
	case cps.TContinue:
		return &cps.Term{Kind: cps.TContinue, K: in.label(old.K), Expr: in.expr(old.Expr)}
	case cps.TBranch:
		return &cps.Term{Kind: cps.TBranch, Arg: in.useVar(old.Arg),
			KTrue: in.label(old.KTrue), KFalse: in.label(old.KFalse)}
	}
	return nil
}

func (in *inliner) expr(old *cps.Expr) *cps.Expr {
	if old == nil {
		return nil
	}
	ne := &cps.Expr{
		Kind: old.Kind, Const: old.Const, Prim: old.Prim,
		Spread: old.Spread, Field: old.Field, NFields: old.NFields,
	}
	switch old.Kind {
	case cps.EValues, cps.EPrimcall, cps.ERecord:
		ne.Args = in.useVarSlice(old.Args)
	case cps.ECall:
		ne.Proc = in.useVar(old.Proc)
		ne.Args = in.useVarSlice(old.Args)
	case cps.EProc:
		ne.K = in.label(old.K)
	case cps.EFix:
		ne.Names = make([]cps.Var, len(old.Names))
		for i, n := range old.Names {
			ne.Names[i] = in.bindVar(n)
		}
		ne.Procs = make([]*cps.Expr, len(old.Procs))
		for i, p := range old.Procs {
			ne.Procs[i] = in.expr(p)
		}
	case cps.ESet:
		ne.Var = in.useVar(old.Var)
		ne.Val = in.useVar(old.Val)
	case cps.EBox:
		ne.Val = in.useVar(old.Val)
	case cps.EUnbox:
		ne.Var = in.useVar(old.Var)
	case cps.ESelect:
		ne.Record = in.useVar(old.Record)
	case cps.EOffset:
		ne.Record = in.useVar(old.Record)
	case cps.ERecordSet:
		ne.Record = in.useVar(old.Record)
		ne.Val = in.useVar(old.Val)
	case cps.ECode:
		ne.Code = in.label(old.Code)
	case cps.EConst, cps.EPrim, cps.EMakeRecord:
		// no vars or labels to rename
	}
	return ne
}

func foldPrim(op string, args []value.Value) (value.Value, bool) {
	return evalPrim(op, args)
}
