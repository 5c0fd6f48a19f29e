package cps

// primNames is the primitive set recognized as a bare-symbol application
// head. Anything not in this set that appears as the head of an application
// is compiled as an ordinary `call`, not a `primcall`.
var primNames = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "idiv": true, "mod": true,
	"bitwise-and": true, "bitwise-ior": true, "bitwise-xor": true,
	"bitwise-eqv": true, "bitwise-nor": true, "bitwise-nand": true,
	"bitwise-not": true, "bitwise-shift": true,
	"eq?": true, "eqv?": true, "equal?": true,
	"=": true, "<": true, ">": true, "<=": true, ">=": true,
	"void": true, "apply": true,
	"cons": true, "car": true, "cdr": true, "list": true,
	"set-car!": true, "set-cdr!": true,
	"list?": true, "length": true, "list-ref": true,
	"vector": true, "make-vector": true, "vector-ref": true, "vector-set!": true, "vector-length": true,
	"bytevector": true, "make-bytevector": true, "bytevector-length": true,
	"bytevector-ref": true, "bytevector-set!": true,
	"string": true, "make-string": true, "string-length": true, "string-ref": true,
	"string-set!": true, "string-copy": true, "string=?": true, "string<?": true, "string>?": true,
	"make-record": true, "record-ref": true, "record-set!": true,
	"record-meta-ref": true, "record-meta-set!": true,
	"null?": true, "pair?": true, "number?": true, "string?": true, "symbol?": true, "boolean?": true,
	"vector?": true, "bytevector?": true, "record?": true, "procedure?": true,
	"display": true, "write": true, "newline": true,
	"open-fd-ro": true, "read-fd": true, "close-fd": true,
}

// purePrims is the subset of primNames the contraction optimizer may fold
// at compile time. `apply`, mutating ops, and I/O are excluded: apply
// requires real control transfer, and set-car!/set-cdr!/vector-set! are
// effectful. cons/list/vector are listed as pure, but the constant folder
// leaves calls to them unfolded.
var purePrims = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "idiv": true, "mod": true,
	"=": true, "<": true, ">": true, "<=": true, ">=": true,
	"eq?": true, "eqv?": true, "equal?": true,
	"cons": true, "car": true, "cdr": true, "list": true, "vector": true,
}

func IsPrimName(name string) bool     { return primNames[name] }
func IsPureFoldable(name string) bool { return purePrims[name] }
