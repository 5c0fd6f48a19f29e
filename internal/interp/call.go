package interp

import (
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/runtime"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

// prepCall resolves an ECall's operator and argument values, expanding
// the final argument into the call when e.Spread marks it as an `apply`
// splice.
func (in *Interp) prepCall(e *cps.Expr, env Env) (value.CodePtr, *value.ClosureObj, []value.Value, error) {
	procVal := env.lookup(e.Proc)
	code, clos, ok := procVal.Callable()
	if !ok {
		return nil, nil, nil, runtime.WrongType("procedure", procVal)
	}

	args := make([]value.Value, len(e.Args))
	for i, a := range e.Args {
		args[i] = env.lookup(a)
	}
	if e.Spread && len(args) > 0 {
		last := args[len(args)-1]
		rest, err := listToSlice(last)
		if err != nil {
			return nil, nil, nil, err
		}
		args = append(args[:len(args)-1], rest...)
	}
	return code, clos, args, nil
}

func listToSlice(v value.Value) ([]value.Value, error) {
	var out []value.Value
	for v.Kind == value.Pair {
		p := v.Obj.(*value.PairObj)
		out = append(out, p.Car)
		v = p.Cdr
	}
	if v.Kind != value.Null {
		return nil, runtime.WrongType("list", v)
	}
	return out, nil
}
