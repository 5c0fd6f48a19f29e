package contract

import (
	"math"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

// evalPrim computes the same pure primitives the runtime's primitive
// library implements (internal/runtime/prims.go), so a constant folded at
// compile time and the same call left unfolded produce identical results.
// Only internal/cps.IsPureFoldable names ever reach here.
func evalPrim(op string, args []value.Value) (value.Value, bool) {
	switch op {
	case "+", "-", "*", "/", "idiv", "mod":
		return evalArith(op, args)
	case "=", "<", ">", "<=", ">=":
		return evalCompare(op, args)
	case "eq?":
		return value.BoolV(value.EqualTo(args[0], args[1], value.Eq)), true
	case "eqv?":
		return value.BoolV(value.EqualTo(args[0], args[1], value.Eqv)), true
	case "equal?":
		return value.BoolV(value.EqualTo(args[0], args[1], value.Equal)), true
	case "car":
		return carOf(args[0])
	case "cdr":
		return cdrOf(args[0])
	case "cons", "list", "vector":
		// Folding these would require the optimizer to fabricate heap
		// objects at compile time; left to the runtime even though they
		// are pure.
		return value.Value{}, false
	}
	return value.Value{}, false
}

func numeric(v value.Value) (float64, bool, bool) {
	switch v.Kind {
	case value.Int:
		return float64(v.AsInt()), true, true
	case value.Float:
		return v.AsFloat(), false, true
	}
	return 0, false, false
}

// evalArith folds +, -, * over any number of arguments left-to-right,
// matching internal/runtime/prims.go's arith2 n-ary fold so a primcall
// folded here and the same primcall left for the runtime agree. /, idiv
// and mod stay strictly binary, again matching the runtime procedures of
// those names.
func evalArith(op string, args []value.Value) (value.Value, bool) {
	switch op {
	case "+", "-", "*":
		return evalArithN(op, args)
	case "/", "idiv", "mod":
		return evalArithBinary(op, args)
	}
	return value.Value{}, false
}

func evalArithN(op string, args []value.Value) (value.Value, bool) {
	if len(args) < 1 {
		return value.Value{}, false
	}
	acc, accInt, ok := numeric(args[0])
	if !ok {
		return value.Value{}, false
	}
	for _, next := range args[1:] {
		b, bInt, ok := numeric(next)
		if !ok {
			return value.Value{}, false
		}
		switch op {
		case "+":
			acc += b
		case "-":
			acc -= b
		case "*":
			acc *= b
		}
		accInt = accInt && bInt
		if accInt && (acc > math.MaxInt32 || acc < math.MinInt32) {
			// Integer overflow is a fatal runtime condition, not a value;
			// leave the primcall unfolded so the runtime primitive raises
			// it with the same step-by-step range check.
			return value.Value{}, false
		}
	}
	if accInt {
		return value.IntV(int32(acc)), true
	}
	return value.FloatV(acc), true
}

func evalArithBinary(op string, args []value.Value) (value.Value, bool) {
	if len(args) != 2 {
		return value.Value{}, false
	}
	a, aInt, ok1 := numeric(args[0])
	b, bInt, ok2 := numeric(args[1])
	if !ok1 || !ok2 {
		return value.Value{}, false
	}
	bothInt := aInt && bInt
	var r float64
	switch op {
	case "/":
		if b == 0 {
			return value.Value{}, false
		}
		r = a / b
		bothInt = false
	case "idiv":
		if !bothInt || int64(b) == 0 {
			return value.Value{}, false
		}
		if int64(a) == math.MinInt32 && int64(b) == -1 {
			return value.Value{}, false
		}
		r = float64(int64(a) / int64(b))
	case "mod":
		if !bothInt || int64(b) == 0 {
			return value.Value{}, false
		}
		r = float64(int64(a) % int64(b))
	}
	if bothInt {
		return value.IntV(int32(r)), true
	}
	return value.FloatV(r), true
}

func evalCompare(op string, args []value.Value) (value.Value, bool) {
	if len(args) != 2 {
		return value.Value{}, false
	}
	a, _, ok1 := numeric(args[0])
	b, _, ok2 := numeric(args[1])
	if !ok1 || !ok2 {
		return value.Value{}, false
	}
	var r bool
	switch op {
	case "=":
		r = a == b
	case "<":
		r = a < b
	case ">":
		r = a > b
	case "<=":
		r = a <= b
	case ">=":
		r = a >= b
	}
	return value.BoolV(r), true
}

func carOf(v value.Value) (value.Value, bool) {
	p, ok := v.Obj.(*value.PairObj)
	if !ok {
		return value.Value{}, false
	}
	return p.Car, true
}

func cdrOf(v value.Value) (value.Value, bool) {
	p, ok := v.Obj.(*value.PairObj)
	if !ok {
		return value.Value{}, false
	}
	return p.Cdr, true
}
