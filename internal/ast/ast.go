// Package ast defines the minimal contract the CPS translator consumes
// from the external front end. The lexer, hygienic macro expander, and
// surface-to-S-expression parser all live upstream; this package only
// fixes the shape of a fully macro-expanded AST node so internal/cps has
// something concrete to walk, and so tests can build fixtures without a
// real parser.
package ast

import "github.com/MattsPoche/sly-sub000/internal/value"

// Node is either an Atom or a List. Both satisfy Node; callers type-switch.
type Node interface {
	node()
}

// Atom wraps a self-evaluating datum: number, string, boolean, character,
// symbol, null, or void. Symbols are distinguished by Sym being set.
type Atom struct {
	V   value.Value
	Sym bool // true when V is a Symbol used as a variable reference
}

func (Atom) node() {}

// List is an application or special form: (head . rest) written flat.
type List struct {
	Items []Node
}

func (List) node() {}

// Sym builds a symbol-reference atom.
func Sym(name string) Node {
	return Atom{V: value.NewSymbol(name), Sym: true}
}

// Quote builds a self-evaluating literal (numbers, strings, booleans,
// chars, or a quoted datum already reduced to a value.Value).
func Quote(v value.Value) Node {
	return Atom{V: v}
}

func L(items ...Node) Node {
	return List{Items: items}
}

// Head returns the leading symbol name of a List, and ok=true, when the
// list is non-empty and its first item is a symbol atom. Used by the
// translator to dispatch on `define`, `if`, `lambda`, etc.
func Head(n Node) (string, bool) {
	l, ok := n.(List)
	if !ok || len(l.Items) == 0 {
		return "", false
	}
	return SymbolName(l.Items[0])
}

// SymbolName extracts the identifier name from a symbol atom.
func SymbolName(n Node) (string, bool) {
	a, ok := n.(Atom)
	if !ok || !a.Sym {
		return "", false
	}
	return a.V.SymbolName(), true
}
