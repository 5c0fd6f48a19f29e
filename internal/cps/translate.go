package cps

import (
	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

// translator holds the mutable translation state: the graph being built
// and the gensym counters it owns.
type translator struct {
	g *Graph
}

// Translate lowers a fully macro-expanded top-level program (a sequence of
// forms) into a CPS graph rooted at Entry with exit continuation Exit.
// Every top-level define is collected into one fix wrapping the program
// entry so mutually recursive top-level procedures can see each other.
func Translate(forms []ast.Node) *Graph {
	g := NewGraph()
	tr := &translator{g: g}

	exit := g.GensymLabel()
	g.Set(exit, &Kont{Kind: KKtail})
	g.Exit = exit

	env := NewEnv(nil)
	entry := tr.translateToplevel(forms, env, exit)
	g.Entry = entry
	return g
}

// translateToplevel implements letrec-like hoisting for both top-level
// programs and local lambda bodies: every
// `define` in forms (not just a leading run of them) is collected into
// one `fix` of boxed bindings, each initialized to an unboxed void, then
// written by a `set` once its right-hand side has been evaluated, so
// mutually recursive defines can see each other before any of them runs.
func (tr *translator) translateToplevel(forms []ast.Node, env *Env, cc Label) Label {
	type pending struct {
		fixv Var
		rhs  ast.Node
	}
	var defs []pending
	var rest []ast.Node
	for _, f := range forms {
		if head, ok := ast.Head(f); ok && head == "define" {
			l := f.(ast.List)
			name, rhs := parseDefine(l)
			fv := tr.g.GensymTemp()
			env.Bind(name, fv, true)
			defs = append(defs, pending{fixv: fv, rhs: rhs})
		} else {
			rest = append(rest, f)
		}
	}
	if len(defs) == 0 {
		return tr.translateBegin(rest, env, cc)
	}

	names := make([]Var, len(defs))
	procs := make([]*Expr, len(defs))
	for i, d := range defs {
		names[i] = d.fixv
		procs[i] = &Expr{Kind: EBox}
	}

	// Chain the set writes so the first define's RHS evaluates first,
	// left-to-right, ending in `rest`.
	next := tr.translateBegin(rest, env, cc)
	for i := len(defs) - 1; i >= 0; i-- {
		d := defs[i]
		tmp := tr.g.GensymTemp()
		setJump := tr.g.GensymLabel()
		tr.g.Set(setJump, &Kont{Kind: KKargs, Vars: nil, Term: &Term{
			Kind: TContinue, K: next, Expr: &Expr{Kind: EValues, Args: nil},
		}})
		rhsBind := tr.g.GensymLabel()
		tr.g.Set(rhsBind, &Kont{Kind: KKargs, Vars: []Var{tmp}, Term: &Term{
			Kind: TContinue, K: setJump, Expr: &Expr{Kind: ESet, Var: d.fixv, Val: tmp},
		}})
		next = tr.translate(d.rhs, env, rhsBind)
	}

	fixLabel := tr.g.GensymLabel()
	tr.g.Set(fixLabel, &Kont{Kind: KKargs, Vars: nil, Term: &Term{
		Kind: TContinue, K: next, Expr: &Expr{Kind: EFix, Names: names, Procs: procs},
	}})
	return fixLabel
}

func parseDefine(l ast.List) (string, ast.Node) {
	// (define name rhs) or (define (name . params) body...)
	second := l.Items[1]
	if name, ok := ast.SymbolName(second); ok {
		if len(l.Items) >= 3 {
			return name, l.Items[2]
		}
		return name, ast.Quote(value.VoidV())
	}
	sig := second.(ast.List)
	name, _ := ast.SymbolName(sig.Items[0])
	params := sig.Items[1:]
	lambdaForm := ast.L(append([]ast.Node{ast.Sym("lambda"), ast.List{Items: params}}, l.Items[2:]...)...)
	return name, lambdaForm
}

// translateBegin translates right-to-left so the current continuation
// threads through each form, discarding all but the last form's value.
func (tr *translator) translateBegin(forms []ast.Node, env *Env, cc Label) Label {
	if len(forms) == 0 {
		entry := tr.g.GensymLabel()
		tr.g.Set(entry, &Kont{Kind: KKargs, Vars: nil, Term: &Term{
			Kind: TContinue, K: cc, Expr: &Expr{Kind: EConst, Const: value.VoidV()},
		}})
		return entry
	}
	if len(forms) == 1 {
		return tr.translate(forms[0], env, cc)
	}
	dummy := tr.g.GensymTemp()
	restEntry := tr.translateBegin(forms[1:], env, cc)
	dummyLabel := tr.g.GensymLabel()
	tr.g.Set(dummyLabel, &Kont{Kind: KKargs, Vars: []Var{dummy}, Term: &Term{
		Kind: TContinue, K: restEntry, Expr: &Expr{Kind: EValues, Args: nil},
	}})
	return tr.translate(forms[0], env, dummyLabel)
}

// translate evaluates form, arranging for its (single) value to reach cc,
// and returns the label of the fresh zero-variable entry kargs where
// evaluation of form begins.
func (tr *translator) translate(form ast.Node, env *Env, cc Label) Label {
	switch n := form.(type) {
	case ast.Atom:
		if n.Sym {
			return tr.translateVarRef(n, env, cc)
		}
		return tr.leaf(cc, &Expr{Kind: EConst, Const: n.V})
	case ast.List:
		if len(n.Items) == 0 {
			return tr.leaf(cc, &Expr{Kind: EConst, Const: value.NullV()})
		}
		if head, ok := ast.Head(n); ok {
			switch head {
			case "quote":
				return tr.leaf(cc, &Expr{Kind: EConst, Const: quoteDatum(n.Items[1])})
			case "if":
				return tr.translateIf(n, env, cc)
			case "lambda":
				return tr.translateLambda(n, env, cc)
			case "begin":
				return tr.translateBegin(n.Items[1:], env, cc)
			case "set!":
				return tr.translateSet(n, env, cc)
			case "define":
				return tr.translateToplevel([]ast.Node{n}, env, cc)
			case "values":
				return tr.translateValues(n, env, cc)
			case "call-with-values":
				return tr.translateCallWithValues(n, env, cc)
			case "call/cc", "call-with-current-continuation":
				return tr.translateCallCC(n.Items[1], env, cc)
			}
		}
		return tr.translateApply(n, env, cc)
	}
	panic("cps: unknown ast node")
}

func quoteDatum(n ast.Node) value.Value {
	a := n.(ast.Atom)
	return a.V
}

func (tr *translator) leaf(cc Label, e *Expr) Label {
	entry := tr.g.GensymLabel()
	tr.g.Set(entry, &Kont{Kind: KKargs, Vars: nil, Term: &Term{Kind: TContinue, K: cc, Expr: e}})
	return entry
}

func (tr *translator) translateVarRef(a ast.Atom, env *Env, cc Label) Label {
	name := a.V.SymbolName()
	if v, boxed, ok := env.Lookup(name); ok {
		if boxed {
			return tr.leaf(cc, &Expr{Kind: EUnbox, Var: v})
		}
		return tr.leaf(cc, &Expr{Kind: EValues, Args: []Var{v}})
	}
	// Unbound names are either primitives reified as values, or an
	// undefined reference; the latter is a compile-time failure the
	// external front end is expected to have already caught via a prior
	// pass, so here we treat any unbound bare symbol as a primitive
	// reference.
	return tr.leaf(cc, &Expr{Kind: EPrim, Prim: name})
}

func (tr *translator) translateSet(n ast.List, env *Env, cc Label) Label {
	name, _ := ast.SymbolName(n.Items[1])
	rhs := n.Items[2]
	v, boxed, ok := env.Lookup(name)
	if !ok || !boxed {
		panic("cps: set! of unbound or non-boxed variable " + name)
	}
	tmp := tr.g.GensymTemp()
	target := tr.g.GensymLabel()
	tr.g.Set(target, &Kont{Kind: KKargs, Vars: []Var{tmp}, Term: &Term{
		Kind: TContinue, K: cc, Expr: &Expr{Kind: ESet, Var: v, Val: tmp},
	}})
	return tr.translate(rhs, env, target)
}

func (tr *translator) translateIf(n ast.List, env *Env, cc Label) Label {
	cond, texpr := n.Items[1], n.Items[2]
	var fexpr ast.Node = ast.Quote(value.VoidV())
	if len(n.Items) > 3 {
		fexpr = n.Items[3]
	}
	kt := tr.translate(texpr, env, cc)
	kf := tr.translate(fexpr, env, cc)
	branchVar := tr.g.GensymTemp()
	branchLabel := tr.g.GensymLabel()
	tr.g.Set(branchLabel, &Kont{Kind: KKargs, Vars: []Var{branchVar}, Term: &Term{
		Kind: TBranch, Arg: branchVar, KTrue: kt, KFalse: kf,
	}})
	return tr.translate(cond, env, branchLabel)
}

func (tr *translator) translateLambda(n ast.List, env *Env, cc Label) Label {
	paramList := n.Items[1].(ast.List)
	body := n.Items[2:]

	// A dotted rest parameter is represented by the front end as a
	// trailing symbol whose name is prefixed with "." (e.g. ".args" for
	// source `(a b . args)`), since this package's minimal ast.List has
	// no native notion of an improper list.
	inner := NewEnv(env)
	var params []Var
	arity := Arity{}
	items := paramList.Items
	var restName string
	if n := len(items); n > 0 {
		if s, ok := ast.SymbolName(items[n-1]); ok && len(s) > 0 && s[0] == '.' {
			restName = s[1:]
			items = items[:n-1]
			arity.Rest = true
		}
	}
	for _, p := range items {
		name, _ := ast.SymbolName(p)
		pv := tr.g.GensymTemp()
		inner.Bind(name, pv, false)
		params = append(params, pv)
		arity.Req++
	}
	if arity.Rest {
		restVar := tr.g.GensymTemp()
		inner.Bind(restName, restVar, false)
		params = append(params, restVar)
	}

	tailLabel := tr.g.GensymLabel()
	tr.g.Set(tailLabel, &Kont{Kind: KKtail})

	bodyEntry := tr.translateToplevel(body, inner, tailLabel)
	// Rebind the body entry's vars to the parameters in order; the kproc
	// body must be a kargs whose vars are exactly the parameters.
	bodyKont := tr.g.Konts[bodyEntry]
	bodyKont.Vars = params

	kprocLabel := tr.g.GensymLabel()
	tr.g.Set(kprocLabel, &Kont{
		Kind:      KKproc,
		ProcArity: arity,
		ProcTail:  tailLabel,
		ProcBody:  bodyEntry,
	})
	return tr.leaf(cc, &Expr{Kind: EProc, K: kprocLabel})
}

func (tr *translator) translateValues(n ast.List, env *Env, cc Label) Label {
	return tr.translateArgsRL(n.Items[1:], env, func(vars []Var) Label {
		return tr.leaf(cc, &Expr{Kind: EValues, Args: vars})
	})
}

func (tr *translator) translateCallWithValues(n ast.List, env *Env, cc Label) Label {
	producer, consumer := n.Items[1], n.Items[2]
	return tr.translateArgsRL([]ast.Node{producer, consumer}, env, func(vars []Var) Label {
		producerVar, consumerVar := vars[0], vars[1]
		// The producer's values are collected into restVar as a rest-list,
		// then spread across consumer exactly like an explicit (apply
		// consumer restVar) call — finishCall gives that call the same
		// tail/non-tail handling as any other call site, rather than
		// routing through a standalone "apply" primitive the runtime never
		// defines.
		restVar := tr.g.GensymTemp()
		callLabel := tr.finishCall(cc, consumerVar, []Var{restVar}, true)
		bindLabel := tr.g.GensymLabel()
		tr.g.Set(bindLabel, &Kont{
			Kind: KKargs, Vars: []Var{restVar},
			Term: &Term{Kind: TContinue, K: callLabel, Expr: &Expr{Kind: EValues}},
		})
		kreceiveLabel := tr.g.GensymLabel()
		tr.g.Set(kreceiveLabel, &Kont{Kind: KKreceive, RecvArity: Arity{Req: 0, Rest: true}, RecvK: bindLabel})
		entry := tr.g.GensymLabel()
		tr.g.Set(entry, &Kont{Kind: KKargs, Vars: nil, Term: &Term{
			Kind: TContinue, K: kreceiveLabel, Expr: &Expr{Kind: ECall, Proc: producerVar, Args: nil},
		}})
		return entry
	})
}

func (tr *translator) translateCallCC(procForm ast.Node, env *Env, cc Label) Label {
	kVar := tr.g.GensymTemp()
	kBodyLabel := tr.g.GensymLabel()
	tr.g.Set(kBodyLabel, &Kont{Kind: KKargs, Vars: []Var{kVar}, Term: &Term{
		Kind: TContinue, K: cc, Expr: &Expr{Kind: EValues, Args: []Var{kVar}},
	}})
	kTail := tr.g.GensymLabel()
	tr.g.Set(kTail, &Kont{Kind: KKtail})
	kprocLabel := tr.g.GensymLabel()
	tr.g.Set(kprocLabel, &Kont{Kind: KKproc, ProcArity: Arity{Req: 1}, ProcTail: kTail, ProcBody: kBodyLabel, ProcEscape: true})

	return tr.translateArgsRL([]ast.Node{procForm}, env, func(vars []Var) Label {
		procVar := vars[0]
		contVar := tr.g.GensymTemp()
		kreceiveLabel := tr.g.GensymLabel()
		tr.g.Set(kreceiveLabel, &Kont{Kind: KKreceive, RecvArity: Arity{Req: 1}, RecvK: cc})
		// callLabel receives the freshly built escape-continuation closure
		// into contVar, then calls procVar with it as the sole argument.
		callLabel := tr.g.GensymLabel()
		tr.g.Set(callLabel, &Kont{Kind: KKargs, Vars: []Var{contVar}, Term: &Term{
			Kind: TContinue, K: kreceiveLabel, Expr: &Expr{Kind: ECall, Proc: procVar, Args: []Var{contVar}},
		}})
		procTarget := tr.g.GensymLabel()
		tr.g.Set(procTarget, &Kont{Kind: KKargs, Vars: nil, Term: &Term{
			Kind: TContinue, K: callLabel, Expr: &Expr{Kind: EProc, K: kprocLabel},
		}})
		return procTarget
	})
}

// translateArgsRL evaluates forms right-to-left into fresh temporaries,
// then calls finish with the temporaries in original left-to-right order.
// Right-to-left is the fixed argument evaluation order of the compiler.
func (tr *translator) translateArgsRL(forms []ast.Node, env *Env, finish func(vars []Var) Label) Label {
	n := len(forms)
	vars := make([]Var, n)
	var build func(i int) Label
	build = func(i int) Label {
		if i < 0 {
			return finish(vars)
		}
		tmp := tr.g.GensymTemp()
		vars[i] = tmp
		next := build(i - 1)
		cont := tr.g.GensymLabel()
		tr.g.Set(cont, &Kont{Kind: KKargs, Vars: []Var{tmp}, Term: &Term{
			Kind: TContinue, K: next, Expr: &Expr{Kind: EValues, Args: nil},
		}})
		return tr.translate(forms[i], env, cont)
	}
	return build(n - 1)
}

// translateApply compiles a function application, recognizing a
// bare-symbol primitive head as a primcall and everything else as an
// ordinary call through a kreceive. A literal `apply` form is handled
// specially: its final argument is marked as a splice list that the
// back end must expand across the real call. A lexically bound name
// always shadows the primitive of the same name.
func (tr *translator) translateApply(n ast.List, env *Env, cc Label) Label {
	head, isSym := ast.Head(n)
	_, _, shadowIsBound := env.Lookup(head)
	isPrim := isSym && IsPrimName(head) && !shadowIsBound
	if isSym && head == "apply" && !shadowIsBound {
		return tr.translateArgsRL(n.Items[1:], env, func(vars []Var) Label {
			return tr.finishCall(cc, vars[0], vars[1:], true)
		})
	}
	if isPrim {
		return tr.translateArgsRL(n.Items[1:], env, func(vars []Var) Label {
			return tr.leaf(cc, &Expr{Kind: EPrimcall, Prim: head, Args: vars})
		})
	}
	return tr.translateArgsRL(n.Items, env, func(vars []Var) Label {
		return tr.finishCall(cc, vars[0], vars[1:], false)
	})
}

func (tr *translator) finishCall(cc Label, proc Var, args []Var, spread bool) Label {
	e := &Expr{Kind: ECall, Proc: proc, Args: args, Spread: spread}
	if tail, ok := tr.g.Ref(cc); ok && tail.Kind == KKtail {
		return tr.leaf(cc, e)
	}
	kreceiveLabel := tr.g.GensymLabel()
	tr.g.Set(kreceiveLabel, &Kont{Kind: KKreceive, RecvArity: Arity{Req: 1}, RecvK: cc})
	return tr.leaf(kreceiveLabel, e)
}
