// Package interp is the reference evaluator: it executes a closure-
// converted CPS graph directly, dispatching on continuations and
// trampolining tail calls through internal/runtime.Run. It drives the
// same runtime contract (heap, argument stack, primitives, trampoline)
// that a bytecode or C back end would target.
package interp

import (
	"github.com/MattsPoche/sly-sub000/internal/closure"
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/runtime"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

// Interp holds everything needed to run one compiled program: the graph
// itself, the closure layout/boxing table closure conversion produced,
// and the Machine (heap, argument stack, exception handler) it runs
// against.
type Interp struct {
	g       *cps.Graph
	layout  closure.Result
	machine *runtime.Machine
	global  Env
}

// New builds an interpreter for g, previously processed by
// contract.RunLimited, varinfo.Collect, and closure.Convert in that order
// (internal/pipeline wires this sequence).
func New(g *cps.Graph, layout closure.Result, m *runtime.Machine) *Interp {
	return &Interp{g: g, layout: layout, machine: m, global: make(Env)}
}

// RunProgram executes the program from g.Entry to completion and returns
// its final result values, or the first uncaught error.
func (in *Interp) RunProgram() ([]value.Value, error) {
	results, err := in.evalFrom(in.g.Entry, in.global)
	if err == nil {
		// evalFrom stops as soon as it reaches a tail call, possibly
		// handing back a pending-call sentinel rather than a final value;
		// Continue resumes the trampoline from there so the top-level
		// program's own tail position is bounded the same way a nested
		// call's is.
		results, err = unwrapRaised(runtime.Continue(results))
	}
	if err != nil {
		if esc, ok := err.(*continuationEscape); ok {
			return esc.results, nil
		}
		if v, herr := in.machine.Handler.Raise(err); herr == nil {
			return []value.Value{v}, nil
		}
		return nil, err
	}
	return results, nil
}

// evalFrom runs the control-flow loop starting at label with env already
// containing every variable label's term can reference (parameters,
// free variables, and anything bound further up the same activation).
// It returns once a KKtail is reached, handing any genuine tail call
// back to the active trampoline loop so tail recursion never grows the
// Go call stack.
func (in *Interp) evalFrom(label cps.Label, env Env) ([]value.Value, error) {
	cur := label
	for {
		k, ok := in.g.Ref(cur)
		if !ok {
			return nil, runtime.NewError("internal", "dangling label %s", cur)
		}
		switch k.Kind {
		case cps.KKtail:
			return nil, nil
		case cps.KKargs:
			vals, next, err := in.step(k, env)
			if err != nil {
				return nil, err
			}
			if next.done {
				return vals, nil
			}
			if next.pending != nil {
				// Hand the pending call back as a trampoline sentinel
				// rather than recursing into runtime.Run here: the Run
				// loop already on the Go stack (the one that invoked the
				// CodePtr wrapping this evalFrom) picks it up and keeps
				// looping, which is what keeps tail recursion in bounded
				// Go-stack space.
				p := next.pending
				return runtime.Pending(p.Code, p.Closure, p.Args), nil
			}
			env = next.env
			cur = next.label
		default:
			return nil, runtime.NewError("internal", "unexpected control target %s", cur)
		}
	}
}

// stepResult tells evalFrom's loop what to do after processing one kargs
// term: continue at label with env, stop and return vals (done), or hand
// off to the trampoline with a pending tail call.
type stepResult struct {
	done    bool
	pending *runtime.Thunk
	label   cps.Label
	env     Env
}

func (in *Interp) step(k *cps.Kont, env Env) ([]value.Value, stepResult, error) {
	t := k.Term
	switch t.Kind {
	case cps.TBranch:
		v := env.lookup(t.Arg)
		if !v.IsFalse() {
			return nil, stepResult{label: t.KTrue, env: env}, nil
		}
		return nil, stepResult{label: t.KFalse, env: env}, nil

	case cps.TContinue:
		targetKont, ok := in.g.Ref(t.K)
		if !ok {
			return nil, stepResult{}, runtime.NewError("internal", "dangling continue target %s", t.K)
		}
		if t.Expr.Kind == cps.ECall && targetKont.Kind == cps.KKtail {
			code, clos, args, err := in.prepCall(t.Expr, env)
			if err != nil {
				return nil, stepResult{}, err
			}
			th := runtime.TailCall(code, clos, args)
			return nil, stepResult{pending: &th}, nil
		}

		vals, err := in.evalExpr(t.Expr, env)
		if err != nil {
			return nil, stepResult{}, err
		}
		switch targetKont.Kind {
		case cps.KKtail:
			return vals, stepResult{done: true}, nil
		case cps.KKargs:
			return nil, stepResult{label: t.K, env: env.extend(targetKont.Vars, vals)}, nil
		case cps.KKreceive:
			packed := in.bindReceive(targetKont.RecvArity, vals)
			recvK, ok := in.g.Ref(targetKont.RecvK)
			if !ok || recvK.Kind != cps.KKargs {
				return nil, stepResult{}, runtime.NewError("internal", "kreceive target is not kargs")
			}
			return nil, stepResult{label: targetKont.RecvK, env: env.extend(recvK.Vars, packed)}, nil
		}
	}
	return nil, stepResult{}, runtime.NewError("internal", "unreachable term")
}

// bindReceive packs vals according to arity: the first arity.Req values
// pass through unchanged, and when arity.Rest is set the remainder is
// consed into a single Scheme list as the final bound value.
func (in *Interp) bindReceive(arity cps.Arity, vals []value.Value) []value.Value {
	if !arity.Rest {
		return vals
	}
	if len(vals) <= arity.Req {
		padded := make([]value.Value, arity.Req+1)
		copy(padded, vals)
		for i := len(vals); i < arity.Req; i++ {
			padded[i] = value.VoidV()
		}
		padded[arity.Req] = value.NullV()
		return padded
	}
	in.machine.Heap.Reserve(len(vals)-arity.Req, in.machine.Stack)
	rest := value.NullV()
	for i := len(vals) - 1; i >= arity.Req; i-- {
		rest = value.Cons(vals[i], rest)
	}
	out := make([]value.Value, arity.Req+1)
	copy(out, vals[:arity.Req])
	out[arity.Req] = rest
	return out
}
