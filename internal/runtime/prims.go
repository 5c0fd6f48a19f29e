package runtime

import (
	"io"
	"math"
	"os"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

// Machine bundles everything a primitive needs: the heap (for
// allocation), the argument stack (for GC rooting during that
// allocation), the exception handler (to raise conditions), the current
// output port, and the open-file table the I/O shims index into.
// internal/interp constructs one Machine per program run and passes it
// to every primcall dispatch.
type Machine struct {
	Heap    *Heap
	Stack   *ArgStack
	Handler *Handler
	Stdout  io.Writer

	fds    map[int32]*os.File
	nextFD int32
}

// NewMachine builds a Machine writing display/write/newline output to
// os.Stdout; use NewMachineWithStdout to redirect it (tests capture
// output this way instead of reading the process's real stdout).
func NewMachine(heap *Heap, stack *ArgStack, handler *Handler) *Machine {
	return NewMachineWithStdout(heap, stack, handler, os.Stdout)
}

// NewMachineWithStdout is NewMachine with an explicit output port.
// Descriptors 0-2 are reserved for stdin/stdout/stderr; user opens start
// at 3.
func NewMachineWithStdout(heap *Heap, stack *ArgStack, handler *Handler, stdout io.Writer) *Machine {
	return &Machine{
		Heap: heap, Stack: stack, Handler: handler, Stdout: stdout,
		fds: make(map[int32]*os.File), nextFD: 3,
	}
}

// Prim is a primitive's Go implementation: given already-evaluated
// arguments, produce a result or an error (which the caller routes
// through Handler.Raise). This is the concrete counterpart of the
// `prim`/`primcall` CPS nodes.
type Prim func(m *Machine, args []value.Value) (value.Value, error)

// Prims is the primitive table, keyed by the names
// internal/cps.IsPrimName recognizes, except `apply`, which the
// translator compiles as a spread call rather than a primcall.
var Prims = map[string]Prim{
	"+":    arith2("+", func(a, b float64) float64 { return a + b }),
	"-":    arith2("-", func(a, b float64) float64 { return a - b }),
	"*":    arith2("*", func(a, b float64) float64 { return a * b }),
	"/":    divide,
	"idiv": idiv,
	"mod":  mod,

	"=":  compare2(func(a, b float64) bool { return a == b }),
	"<":  compare2(func(a, b float64) bool { return a < b }),
	">":  compare2(func(a, b float64) bool { return a > b }),
	"<=": compare2(func(a, b float64) bool { return a <= b }),
	">=": compare2(func(a, b float64) bool { return a >= b }),

	"eq?":    eqPrim(value.Eq),
	"eqv?":   eqPrim(value.Eqv),
	"equal?": eqPrim(value.Equal),

	"void":     func(m *Machine, args []value.Value) (value.Value, error) { return value.VoidV(), nil },
	"cons":     consPrim,
	"car":      carPrim,
	"cdr":      cdrPrim,
	"list":     listPrim,
	"set-car!": setCarPrim,
	"set-cdr!": setCdrPrim,
	"list?":    listPredPrim,
	"length":   lengthPrim,
	"list-ref": listRefPrim,

	"vector":        vectorPrim,
	"make-vector":   makeVectorPrim,
	"vector-ref":    vectorRefPrim,
	"vector-set!":   vectorSetPrim,
	"vector-length": vectorLengthPrim,

	"null?":       predicate(func(v value.Value) bool { return v.Kind == value.Null }),
	"pair?":       predicate(func(v value.Value) bool { return v.Kind == value.Pair }),
	"number?":     predicate(func(v value.Value) bool { return v.Kind == value.Int || v.Kind == value.Float }),
	"string?":     predicate(func(v value.Value) bool { return v.Kind == value.String }),
	"symbol?":     predicate(func(v value.Value) bool { return v.Kind == value.Symbol }),
	"boolean?":    predicate(func(v value.Value) bool { return v.Kind == value.Bool }),
	"vector?":     predicate(func(v value.Value) bool { return v.Kind == value.Vector }),
	"bytevector?": predicate(func(v value.Value) bool { return v.Kind == value.ByteVector }),
	"record?":     predicate(func(v value.Value) bool { return v.Kind == value.Record }),
	"procedure?":  predicate(func(v value.Value) bool { return v.Kind == value.Closure || v.Kind == value.Function }),

	"string":        stringPrim,
	"make-string":   makeStringPrim,
	"string-length": stringLengthPrim,
	"string-ref":    stringRefPrim,
	"string-set!":   stringSetPrim,
	"string-copy":   stringCopyPrim,
	"string=?":      stringComparePrim(func(a, b string) bool { return a == b }),
	"string<?":      stringComparePrim(func(a, b string) bool { return a < b }),
	"string>?":      stringComparePrim(func(a, b string) bool { return a > b }),

	"bytevector":        bytevectorPrim,
	"make-bytevector":   makeBytevectorPrim,
	"bytevector-length": bytevectorLengthPrim,
	"bytevector-ref":    bytevectorRefPrim,
	"bytevector-set!":   bytevectorSetPrim,

	"make-record":      makeRecordPrim,
	"record-ref":       recordRefPrim,
	"record-set!":      recordSetPrim,
	"record-meta-ref":  recordMetaRefPrim,
	"record-meta-set!": recordMetaSetPrim,

	"display":    displayPrim(true),
	"write":      displayPrim(false),
	"newline":    newlinePrim,
	"open-fd-ro": openFDReadOnlyPrim,
	"read-fd":    readFDPrim,
	"close-fd":   closeFDPrim,

	"bitwise-and":   bitwise2(func(a, b int32) int32 { return a & b }),
	"bitwise-ior":   bitwise2(func(a, b int32) int32 { return a | b }),
	"bitwise-xor":   bitwise2(func(a, b int32) int32 { return a ^ b }),
	"bitwise-eqv":   bitwise2(func(a, b int32) int32 { return ^(a ^ b) }),
	"bitwise-nor":   bitwise2(func(a, b int32) int32 { return ^(a | b) }),
	"bitwise-nand":  bitwise2(func(a, b int32) int32 { return ^(a & b) }),
	"bitwise-not":   bitwise1(func(a int32) int32 { return ^a }),
	"bitwise-shift": bitwiseShift,
}

func predicate(f func(value.Value) bool) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, ArityMismatch(1, len(args))
		}
		return value.BoolV(f(args[0])), nil
	}
}

func numericOf(v value.Value) (float64, bool, bool) {
	switch v.Kind {
	case value.Int:
		return float64(v.AsInt()), true, true
	case value.Float:
		return v.AsFloat(), false, true
	}
	return 0, false, false
}

// arith2 builds a variadic left-fold over f: (+ 1 2 3) folds as
// ((1+2)+3). A primcall node carries a fixed argument list per call
// site, but the primitive itself accepts any count. Integer results are
// range-checked after every step: overflow does not demote to float, it
// is a fatal condition. The float64 accumulator represents every
// in-range intermediate exactly, so the check never misfires.
func arith2(name string, f func(a, b float64) float64) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) < 1 {
			return value.Value{}, ArityMismatch(1, len(args))
		}
		acc, accInt, ok := numericOf(args[0])
		if !ok {
			return value.Value{}, WrongType("number", args[0])
		}
		if len(args) == 1 {
			return foldResult(acc, accInt), nil
		}
		for _, next := range args[1:] {
			b, bInt, ok := numericOf(next)
			if !ok {
				return value.Value{}, WrongType("number", next)
			}
			acc = f(acc, b)
			accInt = accInt && bInt && name != "/"
			if accInt && (acc > math.MaxInt32 || acc < math.MinInt32) {
				return value.Value{}, NewError("overflow", "%s: integer overflow", name)
			}
		}
		return foldResult(acc, accInt), nil
	}
}

func foldResult(acc float64, isInt bool) value.Value {
	if isInt {
		return value.IntV(int32(acc))
	}
	return value.FloatV(acc)
}

func divide(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, ArityMismatch(2, len(args))
	}
	a, _, ok1 := numericOf(args[0])
	b, _, ok2 := numericOf(args[1])
	if !ok1 || !ok2 {
		return value.Value{}, WrongType("number", args[0])
	}
	if b == 0 {
		return value.Value{}, NewError("division-by-zero", "/ by zero")
	}
	return value.FloatV(a / b), nil
}

func idiv(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, ArityMismatch(2, len(args))
	}
	if args[0].Kind != value.Int || args[1].Kind != value.Int {
		return value.Value{}, WrongType("integer", args[0])
	}
	b := args[1].AsInt()
	if b == 0 {
		return value.Value{}, NewError("division-by-zero", "idiv by zero")
	}
	a := args[0].AsInt()
	if a == math.MinInt32 && b == -1 {
		return value.Value{}, NewError("overflow", "idiv: integer overflow")
	}
	return value.IntV(a / b), nil
}

func mod(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, ArityMismatch(2, len(args))
	}
	if args[0].Kind != value.Int || args[1].Kind != value.Int {
		return value.Value{}, WrongType("integer", args[0])
	}
	b := args[1].AsInt()
	if b == 0 {
		return value.Value{}, NewError("division-by-zero", "mod by zero")
	}
	return value.IntV(args[0].AsInt() % b), nil
}

func compare2(f func(a, b float64) bool) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, ArityMismatch(2, len(args))
		}
		a, _, ok1 := numericOf(args[0])
		b, _, ok2 := numericOf(args[1])
		if !ok1 || !ok2 {
			return value.Value{}, WrongType("number", args[0])
		}
		return value.BoolV(f(a, b)), nil
	}
}

func bitwise2(f func(a, b int32) int32) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 2 || args[0].Kind != value.Int || args[1].Kind != value.Int {
			return value.Value{}, WrongType("integer", args[0])
		}
		return value.IntV(f(args[0].AsInt(), args[1].AsInt())), nil
	}
}

func bitwise1(f func(a int32) int32) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 1 || args[0].Kind != value.Int {
			return value.Value{}, WrongType("integer", args[0])
		}
		return value.IntV(f(args[0].AsInt())), nil
	}
}

func bitwiseShift(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Int || args[1].Kind != value.Int {
		return value.Value{}, WrongType("integer", args[0])
	}
	n, shift := args[0].AsInt(), args[1].AsInt()
	if shift >= 0 {
		return value.IntV(n << uint(shift)), nil
	}
	return value.IntV(n >> uint(-shift)), nil
}

func eqPrim(kind value.EqKind) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, ArityMismatch(2, len(args))
		}
		return value.BoolV(value.EqualTo(args[0], args[1], kind)), nil
	}
}

func consPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, ArityMismatch(2, len(args))
	}
	m.Heap.Reserve(1, m.Stack)
	return value.Cons(args[0], args[1]), nil
}

func carPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.Pair {
		return value.Value{}, WrongType("pair", firstOr(args))
	}
	return args[0].Obj.(*value.PairObj).Car, nil
}

func cdrPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.Pair {
		return value.Value{}, WrongType("pair", firstOr(args))
	}
	return args[0].Obj.(*value.PairObj).Cdr, nil
}

func setCarPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Pair {
		return value.Value{}, WrongType("pair", firstOr(args))
	}
	args[0].Obj.(*value.PairObj).Car = args[1]
	return value.VoidV(), nil
}

func setCdrPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Pair {
		return value.Value{}, WrongType("pair", firstOr(args))
	}
	args[0].Obj.(*value.PairObj).Cdr = args[1]
	return value.VoidV(), nil
}

func listPrim(m *Machine, args []value.Value) (value.Value, error) {
	m.Heap.Reserve(len(args), m.Stack)
	result := value.NullV()
	for i := len(args) - 1; i >= 0; i-- {
		result = value.Cons(args[i], result)
	}
	return result, nil
}

func vectorPrim(m *Machine, args []value.Value) (value.Value, error) {
	m.Heap.Reserve(1, m.Stack)
	elems := make([]value.Value, len(args))
	copy(elems, args)
	return value.NewVector(elems), nil
}

func makeVectorPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	n := int(args[0].AsInt())
	fill := value.VoidV()
	if len(args) > 1 {
		fill = args[1]
	}
	m.Heap.Reserve(1, m.Stack)
	elems := make([]value.Value, n)
	for i := range elems {
		elems[i] = fill
	}
	return value.NewVector(elems), nil
}

func vectorRefPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Vector || args[1].Kind != value.Int {
		return value.Value{}, WrongType("vector", firstOr(args))
	}
	v := args[0].Obj.(*value.VectorObj)
	i := int(args[1].AsInt())
	if i < 0 || i >= len(v.Elems) {
		return value.Value{}, NewError("index-out-of-range", "vector-ref: index %d out of range [0,%d)", i, len(v.Elems))
	}
	return v.Elems[i], nil
}

func vectorSetPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 3 || args[0].Kind != value.Vector || args[1].Kind != value.Int {
		return value.Value{}, WrongType("vector", firstOr(args))
	}
	v := args[0].Obj.(*value.VectorObj)
	i := int(args[1].AsInt())
	if i < 0 || i >= len(v.Elems) {
		return value.Value{}, NewError("index-out-of-range", "vector-set!: index %d out of range [0,%d)", i, len(v.Elems))
	}
	v.Elems[i] = args[2]
	return value.VoidV(), nil
}

func vectorLengthPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.Vector {
		return value.Value{}, WrongType("vector", firstOr(args))
	}
	return value.IntV(int32(len(args[0].Obj.(*value.VectorObj).Elems))), nil
}

// displayPrim builds display (humanReadable=true, no string quoting) and
// write (humanReadable=false, `write`-style quoting), both of which print
// their argument to the machine's current output port and return void.
func displayPrim(humanReadable bool) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, ArityMismatch(1, len(args))
		}
		io.WriteString(m.Stdout, value.Write(args[0], humanReadable))
		return value.VoidV(), nil
	}
}

func newlinePrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 0 {
		return value.Value{}, ArityMismatch(0, len(args))
	}
	io.WriteString(m.Stdout, "\n")
	return value.VoidV(), nil
}

// openFDReadOnlyPrim opens args[0] (a string path) for reading and
// returns its file descriptor.
func openFDReadOnlyPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.String {
		return value.Value{}, WrongType("string", firstOr(args))
	}
	f, err := os.Open(args[0].Str())
	if err != nil {
		return value.Value{}, NewError("io-error", "open-fd-ro: %s", err)
	}
	fd := m.nextFD
	m.nextFD++
	m.fds[fd] = f
	return value.IntV(fd), nil
}

// readFDPrim reads up to args[1] bytes from the open descriptor args[0]
// into a fresh byte-vector; a short read (including zero, at EOF) returns
// a byte-vector sized to just what was actually read.
func readFDPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Int || args[1].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	f, ok := m.fds[args[0].AsInt()]
	if !ok {
		return value.Value{}, NewError("io-error", "read-fd: no such descriptor %d", args[0].AsInt())
	}
	buf := make([]byte, args[1].AsInt())
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return value.Value{}, NewError("io-error", "read-fd: %s", err)
	}
	return value.NewByteVector(buf[:n]), nil
}

func closeFDPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	fd := args[0].AsInt()
	f, ok := m.fds[fd]
	if !ok {
		return value.Value{}, NewError("io-error", "close-fd: no such descriptor %d", fd)
	}
	delete(m.fds, fd)
	return value.VoidV(), f.Close()
}

func listPredPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, ArityMismatch(1, len(args))
	}
	cur := args[0]
	for cur.Kind == value.Pair {
		cur = cur.Obj.(*value.PairObj).Cdr
	}
	return value.BoolV(cur.Kind == value.Null), nil
}

func lengthPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, ArityMismatch(1, len(args))
	}
	n := int32(0)
	cur := args[0]
	for cur.Kind == value.Pair {
		n++
		cur = cur.Obj.(*value.PairObj).Cdr
	}
	if cur.Kind != value.Null {
		return value.Value{}, WrongType("list", args[0])
	}
	return value.IntV(n), nil
}

func listRefPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[1].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	i := args[1].AsInt()
	cur := args[0]
	for ; i > 0 && cur.Kind == value.Pair; i-- {
		cur = cur.Obj.(*value.PairObj).Cdr
	}
	if cur.Kind != value.Pair {
		return value.Value{}, NewError("index-out-of-range", "list-ref: index %d past end of list", args[1].AsInt())
	}
	return cur.Obj.(*value.PairObj).Car, nil
}

func stringPrim(m *Machine, args []value.Value) (value.Value, error) {
	bytes := make([]byte, len(args))
	for i, a := range args {
		if a.Kind != value.Char {
			return value.Value{}, WrongType("char", a)
		}
		bytes[i] = a.AsChar()
	}
	m.Heap.Reserve(1, m.Stack)
	return value.NewString(string(bytes)), nil
}

func makeStringPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	fill := byte(' ')
	if len(args) > 1 {
		if args[1].Kind != value.Char {
			return value.Value{}, WrongType("char", args[1])
		}
		fill = args[1].AsChar()
	}
	bytes := make([]byte, args[0].AsInt())
	for i := range bytes {
		bytes[i] = fill
	}
	m.Heap.Reserve(1, m.Stack)
	return value.NewString(string(bytes)), nil
}

func stringLengthPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.String {
		return value.Value{}, WrongType("string", firstOr(args))
	}
	return value.IntV(int32(args[0].StringObj().Length)), nil
}

func stringRefPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.String || args[1].Kind != value.Int {
		return value.Value{}, WrongType("string", firstOr(args))
	}
	so := args[0].StringObj()
	i := int(args[1].AsInt())
	if i < 0 || i >= so.Length {
		return value.Value{}, NewError("index-out-of-range", "string-ref: index %d out of range [0,%d)", i, so.Length)
	}
	if so.Buf.Narrow {
		return value.CharV(so.Buf.Bytes[so.Offset+i]), nil
	}
	return value.CharV(byte(so.Buf.Runes[so.Offset+i])), nil
}

// stringSetPrim mutates one character of a string. A read-only or shared
// backing buffer is copied first, so other strings referencing it are
// unaffected.
func stringSetPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 3 || args[0].Kind != value.String || args[1].Kind != value.Int || args[2].Kind != value.Char {
		return value.Value{}, WrongType("string", firstOr(args))
	}
	so := args[0].StringObj()
	i := int(args[1].AsInt())
	if i < 0 || i >= so.Length {
		return value.Value{}, NewError("index-out-of-range", "string-set!: index %d out of range [0,%d)", i, so.Length)
	}
	if so.Buf.ReadOnly || so.Buf.RefCount > 1 {
		m.Heap.Reserve(1, m.Stack)
		privatizeStringBuf(so)
	}
	if so.Buf.Narrow {
		so.Buf.Bytes[so.Offset+i] = args[2].AsChar()
	} else {
		so.Buf.Runes[so.Offset+i] = rune(args[2].AsChar())
	}
	return value.VoidV(), nil
}

func privatizeStringBuf(so *value.StringObj) {
	old := so.Buf
	if old.RefCount > 1 {
		old.RefCount--
	}
	fresh := &value.StringBuf{RefCount: 1, Narrow: old.Narrow}
	if old.Narrow {
		fresh.Bytes = append([]byte(nil), old.Bytes[so.Offset:so.Offset+so.Length]...)
	} else {
		fresh.Runes = append([]rune(nil), old.Runes[so.Offset:so.Offset+so.Length]...)
	}
	so.Buf = fresh
	so.Offset = 0
}

func stringCopyPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind != value.String {
		return value.Value{}, WrongType("string", firstOr(args))
	}
	s := args[0].Str()
	start, end := 0, len(s)
	if len(args) > 1 {
		if args[1].Kind != value.Int {
			return value.Value{}, WrongType("integer", args[1])
		}
		start = int(args[1].AsInt())
	}
	if len(args) > 2 {
		if args[2].Kind != value.Int {
			return value.Value{}, WrongType("integer", args[2])
		}
		end = int(args[2].AsInt())
	}
	if start < 0 || end > len(s) || start > end {
		return value.Value{}, NewError("index-out-of-range", "string-copy: range [%d,%d) out of range [0,%d)", start, end, len(s))
	}
	m.Heap.Reserve(1, m.Stack)
	return value.NewString(s[start:end]), nil
}

func stringComparePrim(f func(a, b string) bool) Prim {
	return func(m *Machine, args []value.Value) (value.Value, error) {
		if len(args) != 2 || args[0].Kind != value.String || args[1].Kind != value.String {
			return value.Value{}, WrongType("string", firstOr(args))
		}
		return value.BoolV(f(args[0].Str(), args[1].Str())), nil
	}
}

func bytevectorPrim(m *Machine, args []value.Value) (value.Value, error) {
	bytes := make([]byte, len(args))
	for i, a := range args {
		if a.Kind != value.Int {
			return value.Value{}, WrongType("integer", a)
		}
		bytes[i] = byte(a.AsInt())
	}
	m.Heap.Reserve(1, m.Stack)
	return value.NewByteVector(bytes), nil
}

func makeBytevectorPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	fill := byte(0)
	if len(args) > 1 {
		if args[1].Kind != value.Int {
			return value.Value{}, WrongType("integer", args[1])
		}
		fill = byte(args[1].AsInt())
	}
	bytes := make([]byte, args[0].AsInt())
	for i := range bytes {
		bytes[i] = fill
	}
	m.Heap.Reserve(1, m.Stack)
	return value.NewByteVector(bytes), nil
}

func bytevectorLengthPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.ByteVector {
		return value.Value{}, WrongType("byte-vector", firstOr(args))
	}
	return value.IntV(int32(len(args[0].Obj.(*value.ByteVectorObj).Bytes))), nil
}

func bytevectorRefPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.ByteVector || args[1].Kind != value.Int {
		return value.Value{}, WrongType("byte-vector", firstOr(args))
	}
	bv := args[0].Obj.(*value.ByteVectorObj)
	i := int(args[1].AsInt())
	if i < 0 || i >= len(bv.Bytes) {
		return value.Value{}, NewError("index-out-of-range", "bytevector-ref: index %d out of range [0,%d)", i, len(bv.Bytes))
	}
	return value.IntV(int32(bv.Bytes[i])), nil
}

func bytevectorSetPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 3 || args[0].Kind != value.ByteVector || args[1].Kind != value.Int || args[2].Kind != value.Int {
		return value.Value{}, WrongType("byte-vector", firstOr(args))
	}
	bv := args[0].Obj.(*value.ByteVectorObj)
	i := int(args[1].AsInt())
	if i < 0 || i >= len(bv.Bytes) {
		return value.Value{}, NewError("index-out-of-range", "bytevector-set!: index %d out of range [0,%d)", i, len(bv.Bytes))
	}
	bv.Bytes[i] = byte(args[2].AsInt())
	return value.VoidV(), nil
}

func makeRecordPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) < 1 || args[0].Kind != value.Int {
		return value.Value{}, WrongType("integer", firstOr(args))
	}
	meta := value.VoidV()
	if len(args) > 1 {
		meta = args[1]
	}
	m.Heap.Reserve(1, m.Stack)
	fields := make([]value.Value, args[0].AsInt())
	for i := range fields {
		fields[i] = value.VoidV()
	}
	return value.NewRecord(meta, fields), nil
}

func recordRefPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Record || args[1].Kind != value.Int {
		return value.Value{}, WrongType("record", firstOr(args))
	}
	r := args[0].Obj.(*value.RecordObj)
	i := int(args[1].AsInt())
	if i < 0 || i >= len(r.Fields) {
		return value.Value{}, NewError("index-out-of-range", "record-ref: field %d out of range [0,%d)", i, len(r.Fields))
	}
	return r.Fields[i], nil
}

func recordSetPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 3 || args[0].Kind != value.Record || args[1].Kind != value.Int {
		return value.Value{}, WrongType("record", firstOr(args))
	}
	r := args[0].Obj.(*value.RecordObj)
	i := int(args[1].AsInt())
	if i < 0 || i >= len(r.Fields) {
		return value.Value{}, NewError("index-out-of-range", "record-set!: field %d out of range [0,%d)", i, len(r.Fields))
	}
	r.Fields[i] = args[2]
	return value.VoidV(), nil
}

func recordMetaRefPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 1 || args[0].Kind != value.Record {
		return value.Value{}, WrongType("record", firstOr(args))
	}
	return args[0].Obj.(*value.RecordObj).Meta, nil
}

func recordMetaSetPrim(m *Machine, args []value.Value) (value.Value, error) {
	if len(args) != 2 || args[0].Kind != value.Record {
		return value.Value{}, WrongType("record", firstOr(args))
	}
	args[0].Obj.(*value.RecordObj).Meta = args[1]
	return value.VoidV(), nil
}

func firstOr(args []value.Value) value.Value {
	if len(args) == 0 {
		return value.VoidV()
	}
	return args[0]
}
