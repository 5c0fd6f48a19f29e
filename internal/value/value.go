// Package value implements the surface/runtime value universe: a tagged,
// discriminated-union representation rather than an open interface{} sum,
// so that type dispatch is a single integer compare on Kind.
package value

import (
	"fmt"
	"math"
	"strings"
)

// Kind discriminates the variants of Value. Immediate kinds carry their
// payload inline; heap kinds carry a pointer to a heap-allocated struct.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Char
	Int
	Float
	Null // the empty list '()
	Pair
	Symbol
	String
	ByteVector
	Vector
	Record
	Box
	Closure
	Function
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Bool:
		return "boolean"
	case Char:
		return "char"
	case Int:
		return "integer"
	case Float:
		return "float"
	case Null:
		return "null"
	case Pair:
		return "pair"
	case Symbol:
		return "symbol"
	case String:
		return "string"
	case ByteVector:
		return "byte-vector"
	case Vector:
		return "vector"
	case Record:
		return "record"
	case Box:
		return "box"
	case Closure:
		return "closure"
	case Function:
		return "function"
	default:
		return "unknown"
	}
}

// Value is an immediate-or-boxed value. Immediate kinds (Void, Bool, Char,
// Int, Float, Null) live entirely in i/f; every other kind points at a
// heap object via Obj.
type Value struct {
	Kind Kind
	i    int64   // Bool, Char, Int payload
	f    float64 // Float payload
	Obj  interface{}
}

func VoidV() Value { return Value{Kind: Void} }
func NullV() Value { return Value{Kind: Null} }

func BoolV(b bool) Value {
	if b {
		return Value{Kind: Bool, i: 1}
	}
	return Value{Kind: Bool, i: 0}
}

func CharV(c byte) Value     { return Value{Kind: Char, i: int64(c)} }
func IntV(n int32) Value     { return Value{Kind: Int, i: int64(n)} }
func FloatV(f float64) Value { return Value{Kind: Float, f: f} }

func (v Value) AsBool() bool     { return v.i != 0 }
func (v Value) AsChar() byte     { return byte(v.i) }
func (v Value) AsInt() int32     { return int32(v.i) }
func (v Value) AsFloat() float64 { return v.f }

// IsFalse reports whether v is the unique false value; every other value
// (including 0, "" and '()) is truthy.
func (v Value) IsFalse() bool { return v.Kind == Bool && v.i == 0 }

// --- heap object payloads ---

type PairObj struct {
	Car, Cdr Value
}

type SymbolObj struct {
	Name string
	Hash uint64
}

// StringBuf is the shared, possibly-wide, possibly-read-only backing
// buffer behind one or more String values. COW happens on promotion from
// narrow (byte-per-char) to wide (rune-per-char).
type StringBuf struct {
	RefCount int
	Narrow   bool
	ReadOnly bool
	Bytes    []byte // valid when Narrow
	Runes    []rune // valid when !Narrow
}

func (b *StringBuf) Len() int {
	if b.Narrow {
		return len(b.Bytes)
	}
	return len(b.Runes)
}

type StringObj struct {
	Buf    *StringBuf
	Offset int
	Length int
}

type VectorObj struct {
	Elems []Value
}

type ByteVectorObj struct {
	Bytes []byte
}

// RecordObj is a heterogeneous tuple with an associated metadata value.
type RecordObj struct {
	Meta   Value
	Fields []Value
}

// BoxObj is a mutable single-value cell, used for captured/shared/recursive
// bindings after closure conversion.
type BoxObj struct {
	V Value
}

// CodePtr is the Go-level stand-in for a compiled entry point: given the
// closure record (nil for Function) and argument values, produce results.
// internal/interp supplies the concrete implementation; internal/runtime
// only needs the shape.
type CodePtr func(closure *ClosureObj, args []Value) []Value

type ClosureObj struct {
	Code     CodePtr
	FreeVars []Value
	Label    string // originating kproc label, for diagnostics
}

type FunctionObj struct {
	Code  CodePtr
	Label string
}

func Cons(car, cdr Value) Value {
	return Value{Kind: Pair, Obj: &PairObj{Car: car, Cdr: cdr}}
}

// SymbolName returns the interned name of a Symbol value.
func (v Value) SymbolName() string { return v.Obj.(*SymbolObj).Name }

func NewSymbol(name string) Value {
	return Value{Kind: Symbol, Obj: &SymbolObj{Name: name, Hash: hashString(name)}}
}

func hashString(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}

func NewString(s string) Value {
	buf := &StringBuf{RefCount: 1, Narrow: true, Bytes: []byte(s)}
	return Value{Kind: String, Obj: &StringObj{Buf: buf, Offset: 0, Length: len(s)}}
}

func (v Value) StringObj() *StringObj { return v.Obj.(*StringObj) }

func (v Value) Str() string {
	so := v.StringObj()
	if so.Buf.Narrow {
		return string(so.Buf.Bytes[so.Offset : so.Offset+so.Length])
	}
	return string(so.Buf.Runes[so.Offset : so.Offset+so.Length])
}

// PromoteWide converts a narrow buffer to wide, copy-on-write: if the
// buffer is shared (RefCount > 1) a private copy is made first so other
// String values referencing the old narrow buffer are unaffected.
func (so *StringObj) PromoteWide() {
	buf := so.Buf
	if !buf.Narrow {
		return
	}
	runes := []rune(string(buf.Bytes))
	if buf.RefCount > 1 {
		buf.RefCount--
		so.Buf = &StringBuf{RefCount: 1, Narrow: false, Runes: runes}
		so.Offset, so.Length = 0, len(runes)
		return
	}
	buf.Narrow = false
	buf.Runes = runes
	buf.Bytes = nil
}

func NewVector(elems []Value) Value {
	return Value{Kind: Vector, Obj: &VectorObj{Elems: elems}}
}

func NewByteVector(bytes []byte) Value {
	return Value{Kind: ByteVector, Obj: &ByteVectorObj{Bytes: bytes}}
}

func NewRecord(meta Value, fields []Value) Value {
	return Value{Kind: Record, Obj: &RecordObj{Meta: meta, Fields: fields}}
}

func NewBox(v Value) Value {
	return Value{Kind: Box, Obj: &BoxObj{V: v}}
}

func (v Value) BoxRef() Value   { return v.Obj.(*BoxObj).V }
func (v Value) BoxSet(nv Value) { v.Obj.(*BoxObj).V = nv }

func NewClosure(code CodePtr, free []Value, label string) Value {
	return Value{Kind: Closure, Obj: &ClosureObj{Code: code, FreeVars: free, Label: label}}
}

func NewFunction(code CodePtr, label string) Value {
	return Value{Kind: Function, Obj: &FunctionObj{Code: code, Label: label}}
}

// Callable returns the underlying code pointer and closure record (nil for
// a Function) for any callable value, or ok=false.
func (v Value) Callable() (code CodePtr, closure *ClosureObj, ok bool) {
	switch v.Kind {
	case Closure:
		c := v.Obj.(*ClosureObj)
		return c.Code, c, true
	case Function:
		f := v.Obj.(*FunctionObj)
		return f.Code, nil, true
	default:
		return nil, nil, false
	}
}

// EqKind selects which of eq?/eqv?/equal? EqualTo implements: eq is
// pointer/immediate identity, eqv adds numeric value equality, equal
// recurses into pairs/vectors/strings.
type EqKind int

const (
	Eq EqKind = iota
	Eqv
	Equal
)

func EqualTo(a, b Value, kind EqKind) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Void, Null:
		return true
	case Bool, Char:
		return a.i == b.i
	case Int:
		return a.i == b.i
	case Float:
		if kind == Eq {
			return a.Obj == b.Obj && a.f == b.f
		}
		return a.f == b.f
	case Symbol:
		return a.Obj.(*SymbolObj) == b.Obj.(*SymbolObj)
	case String:
		if kind == Equal {
			return a.Str() == b.Str()
		}
		return a.Obj == b.Obj
	case Pair:
		if kind != Equal {
			return a.Obj == b.Obj
		}
		ap, bp := a.Obj.(*PairObj), b.Obj.(*PairObj)
		return EqualTo(ap.Car, bp.Car, Equal) && EqualTo(ap.Cdr, bp.Cdr, Equal)
	case Vector:
		if kind != Equal {
			return a.Obj == b.Obj
		}
		av, bv := a.Obj.(*VectorObj), b.Obj.(*VectorObj)
		if len(av.Elems) != len(bv.Elems) {
			return false
		}
		for i := range av.Elems {
			if !EqualTo(av.Elems[i], bv.Elems[i], Equal) {
				return false
			}
		}
		return true
	default:
		return a.Obj == b.Obj
	}
}

// Write renders a value the way the runtime's `write`/`display`
// primitives do.
func Write(v Value, display bool) string {
	switch v.Kind {
	case Void:
		return ""
	case Null:
		return "()"
	case Bool:
		if v.AsBool() {
			return "#t"
		}
		return "#f"
	case Char:
		if display {
			return string(rune(v.AsChar()))
		}
		return fmt.Sprintf("#\\%c", v.AsChar())
	case Int:
		return fmt.Sprintf("%d", v.AsInt())
	case Float:
		f := v.AsFloat()
		if math.Trunc(f) == f && !math.IsInf(f, 0) {
			return fmt.Sprintf("%.1f", f)
		}
		return fmt.Sprintf("%g", f)
	case Symbol:
		return v.Obj.(*SymbolObj).Name
	case String:
		if display {
			return v.Str()
		}
		return fmt.Sprintf("%q", v.Str())
	case Pair:
		var sb strings.Builder
		sb.WriteByte('(')
		cur := v
		first := true
		for cur.Kind == Pair {
			if !first {
				sb.WriteByte(' ')
			}
			first = false
			p := cur.Obj.(*PairObj)
			sb.WriteString(Write(p.Car, display))
			cur = p.Cdr
		}
		if cur.Kind != Null {
			sb.WriteString(" . ")
			sb.WriteString(Write(cur, display))
		}
		sb.WriteByte(')')
		return sb.String()
	case Vector:
		var sb strings.Builder
		sb.WriteString("#(")
		for i, e := range v.Obj.(*VectorObj).Elems {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(Write(e, display))
		}
		sb.WriteByte(')')
		return sb.String()
	case Closure, Function:
		return "#<procedure>"
	case Record:
		return "#<record>"
	case Box:
		return "#<box>"
	default:
		return "#<unknown>"
	}
}
