package interp

import (
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/runtime"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

// evalExpr computes e's value(s) under env. ECall here is always a
// non-tail call (the tail case is intercepted in step before evalExpr is
// reached), so it actually invokes the callee via the trampoline and
// waits for a final result.
func (in *Interp) evalExpr(e *cps.Expr, env Env) ([]value.Value, error) {
	switch e.Kind {
	case cps.EConst:
		return []value.Value{e.Const}, nil
	case cps.EValues:
		vals := make([]value.Value, len(e.Args))
		for i, a := range e.Args {
			vals[i] = env.lookup(a)
		}
		return vals, nil
	case cps.EPrim:
		return []value.Value{in.primValue(e.Prim)}, nil
	case cps.EPrimcall:
		prim, ok := runtime.Prims[e.Prim]
		if !ok {
			return nil, runtime.NewError("unbound-primitive", "unknown primitive %q", e.Prim)
		}
		args := make([]value.Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = env.lookup(a)
		}
		v, err := prim(in.machine, args)
		if err != nil {
			return nil, err
		}
		return []value.Value{v}, nil
	case cps.ECall:
		code, clos, args, err := in.prepCall(e, env)
		if err != nil {
			return nil, err
		}
		if err := in.machine.Stack.Push(args); err != nil {
			return nil, err
		}
		defer in.machine.Stack.Pop()
		return unwrapRaised(runtime.Run(runtime.TailCall(code, clos, args)))
	case cps.ECode:
		return []value.Value{value.NewFunction(in.codePtrFor(e.Code), string(e.Code))}, nil
	case cps.ESet:
		box := env.lookup(e.Var)
		box.BoxSet(env.lookup(e.Val))
		return []value.Value{value.VoidV()}, nil
	case cps.EBox:
		init := value.VoidV()
		if e.Val != "" {
			init = env.lookup(e.Val)
		}
		in.machine.Heap.Reserve(1, in.machine.Stack)
		return []value.Value{value.NewBox(init)}, nil
	case cps.EUnbox:
		return []value.Value{env.lookup(e.Var).BoxRef()}, nil
	case cps.ERecord:
		vals := make([]value.Value, len(e.Args))
		for i, a := range e.Args {
			vals[i] = env.lookup(a)
		}
		in.machine.Heap.Reserve(1, in.machine.Stack)
		// Closure conversion always builds a record whose first field
		// came from ECode (a bare Function value); the rest are the
		// captured free variables. Reify that shape as a real Closure so
		// ECall's Callable() dispatch keeps working unchanged.
		if len(vals) > 0 && vals[0].Kind == value.Function {
			fn := vals[0].Obj.(*value.FunctionObj)
			return []value.Value{value.NewClosure(fn.Code, vals[1:], fn.Label)}, nil
		}
		return []value.Value{value.NewRecord(value.VoidV(), vals)}, nil
	case cps.ESelect:
		r := env.lookup(e.Record)
		return []value.Value{r.Obj.(*value.RecordObj).Fields[e.Field]}, nil
	case cps.ERecordSet:
		r := env.lookup(e.Record)
		r.Obj.(*value.RecordObj).Fields[e.Field] = env.lookup(e.Val)
		return []value.Value{value.VoidV()}, nil
	case cps.EMakeRecord:
		fields := make([]value.Value, e.NFields)
		for i := range fields {
			fields[i] = value.VoidV()
		}
		in.machine.Heap.Reserve(1, in.machine.Stack)
		return []value.Value{value.NewRecord(value.VoidV(), fields)}, nil
	}
	return nil, runtime.NewError("internal", "unhandled expr kind %d", e.Kind)
}

// primValue reifies a primitive name as a first-class callable, for the
// case a primitive is referenced as a value rather than applied directly.
func (in *Interp) primValue(name string) value.Value {
	prim := runtime.Prims[name]
	return value.NewFunction(func(closure *value.ClosureObj, args []value.Value) []value.Value {
		if prim == nil {
			return raise(runtime.NewError("unbound-primitive", "unknown primitive %q", name))
		}
		v, err := prim(in.machine, args)
		if err != nil {
			return raise(err)
		}
		return []value.Value{v}
	}, name)
}

// codePtrFor compiles the kproc at procLabel into a value.CodePtr: given
// a closure record and argument values, bind parameters (boxing any that
// closure conversion flagged as mutated-and-captured) and run the body.
func (in *Interp) codePtrFor(procLabel cps.Label) value.CodePtr {
	return func(clos *value.ClosureObj, args []value.Value) []value.Value {
		k, ok := in.g.Ref(procLabel)
		if !ok {
			return raise(runtime.NewError("internal", "dangling code label %s", procLabel))
		}
		if err := chkArgs(k.ProcArity, len(args)); err != nil {
			return raise(err)
		}
		env := make(Env, len(k.Shares)+len(args))
		if clos != nil {
			for i, name := range k.Shares {
				if i < len(clos.FreeVars) {
					env[name] = clos.FreeVars[i]
				}
			}
		}
		bodyKont, ok := in.g.Ref(k.ProcBody)
		if !ok {
			return raise(runtime.NewError("internal", "dangling body label for %s", procLabel))
		}
		params := bodyKont.Vars
		bound := in.bindParams(params, k.ProcArity, args)
		for i, p := range params {
			v := bound[i]
			if in.layout.IsBoxed(p) {
				in.machine.Heap.Reserve(1, in.machine.Stack)
				v = value.NewBox(v)
			}
			env[p] = v
		}
		vals, err := in.evalFrom(k.ProcBody, env)
		if err != nil {
			return raise(err)
		}
		if k.ProcEscape {
			// An escape continuation's body just ran the rest of the
			// program to completion; abandon whatever the invoking frame
			// still had pending by unwinding with the final results.
			final, ferr := unwrapRaised(runtime.Continue(vals))
			if ferr != nil {
				return raise(ferr)
			}
			return raise(&continuationEscape{results: final})
		}
		return vals
	}
}

// continuationEscape unwinds the Go frames between an escape
// continuation's invocation site and the top-level driver, carrying the
// program's final results past the abandoned computation.
type continuationEscape struct{ results []value.Value }

func (e *continuationEscape) Error() string { return "escape continuation invoked" }

// chkArgs verifies a caller pushed an acceptable argument count for
// arity before the callee binds its parameters.
func chkArgs(arity cps.Arity, got int) error {
	if got < arity.Req || (!arity.Rest && got != arity.Req) {
		return runtime.ArityMismatch(arity.Req, got)
	}
	return nil
}

// bindParams packs args into the positional+rest shape arity describes,
// mirroring bindReceive's packing for call sites.
func (in *Interp) bindParams(params []cps.Var, arity cps.Arity, args []value.Value) []value.Value {
	if !arity.Rest {
		return args
	}
	return in.bindReceive(arity, args)
}

// raisedError is the sentinel payload a CodePtr returns when the callee
// faulted; it rides through runtime.Run as an ordinary Done result and is
// recovered by unwrapRaised at the nearest point that can return a Go
// error. The unexported type guarantees no genuine Scheme value collides
// with it, the same trick runtime.PendingCall uses for tail calls.
type raisedError struct{ err error }

func raise(err error) []value.Value {
	return []value.Value{{Obj: &raisedError{err: err}}}
}

// unwrapRaised splits a trampoline result set back into values-or-error.
func unwrapRaised(results []value.Value) ([]value.Value, error) {
	if len(results) == 1 {
		if r, ok := results[0].Obj.(*raisedError); ok {
			return nil, r.err
		}
	}
	return results, nil
}
