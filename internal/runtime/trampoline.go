package runtime

import "github.com/MattsPoche/sly-sub000/internal/value"

// Thunk is one pending call: either a genuine result (Done) or a tail
// call to perform next (Code/Closure/Args set, Done false).
// internal/interp returns a Thunk instead of recursing on tail calls, so
// Run can drive the loop from here without growing the Go call stack.
type Thunk struct {
	Done    bool
	Results []value.Value

	Code    value.CodePtr
	Closure *value.ClosureObj
	Args    []value.Value
}

// DoneThunk wraps a final result set.
func DoneThunk(results ...value.Value) Thunk {
	return Thunk{Done: true, Results: results}
}

// TailCall wraps a pending call for the trampoline to perform next.
func TailCall(code value.CodePtr, closure *value.ClosureObj, args []value.Value) Thunk {
	return Thunk{Code: code, Closure: closure, Args: args}
}

// Run drives thunk.Code calls until one returns Done, the Go-level loop
// standing in for tail-call elimination: every iteration replaces the
// current frame instead of recursing. CodePtr implementations that end
// in a tail position return a pending-call sentinel rather than
// recursively invoking Code themselves.
func Run(initial Thunk) []value.Value {
	t := initial
	for !t.Done {
		results := t.Code(t.Closure, t.Args)
		t = thunkFromResults(results)
	}
	return t.Results
}

// thunkFromResults lets a CodePtr signal "this was a tail call, keep
// trampolining" by returning a single sentinel value wrapping a
// *PendingCall, recovered here; any other return is treated as a final
// result set. internal/interp is the only producer of the sentinel, via
// Pending. *PendingCall is an unexported type no legitimate Scheme value
// ever carries, so the type assertion alone disambiguates it safely
// without needing a dedicated value.Kind.
func thunkFromResults(results []value.Value) Thunk {
	if len(results) == 1 {
		if p, ok := results[0].Obj.(*PendingCall); ok {
			return TailCall(p.Code, p.Closure, p.Args)
		}
	}
	return DoneThunk(results...)
}

// PendingCall is the sentinel payload thunkFromResults recognizes.
type PendingCall struct {
	Code    value.CodePtr
	Closure *value.ClosureObj
	Args    []value.Value
}

// Continue takes a result set that may or may not be a pending-call
// sentinel and drives it to completion: a plain result set passes through
// unchanged, while a sentinel hands off to Run so the rest of the tail
// call chain executes as loop iterations instead of nested Go calls. This
// is what lets a top-level driver (internal/interp.RunProgram) resume a
// trampoline that a single evalFrom call only partially unwound.
func Continue(results []value.Value) []value.Value {
	t := thunkFromResults(results)
	if t.Done {
		return t.Results
	}
	return Run(t)
}

// Pending wraps a tail call as a single-value result set a CodePtr can
// return to ask Run to continue trampolining instead of recursing.
func Pending(code value.CodePtr, closure *value.ClosureObj, args []value.Value) []value.Value {
	return []value.Value{{Obj: &PendingCall{Code: code, Closure: closure, Args: args}}}
}
