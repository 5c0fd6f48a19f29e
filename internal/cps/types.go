// Package cps implements the continuation-passing-style intermediate
// representation: a directed labelled graph of continuations stored in a
// label-indexed arena, plus the AST-to-CPS translator. Optimization passes
// rewrite the arena in place or build new label->node maps; label
// references are never owning pointers, so cyclic graphs (mutual recursion
// through fix) need no special handling.
package cps

import (
	"fmt"
	"strings"

	"github.com/MattsPoche/sly-sub000/internal/value"
)

// Label names a continuation. Var names a variable (parameter, temporary,
// or fix-bound name). Both are plain strings so that the `_k<n>`/`_t<n>`
// gensym scheme can be used verbatim as back-end C identifiers once
// legalized.
type Label string
type Var string

// Arity describes a procedure or kreceive's expected argument shape: Req
// required positions, and whether a trailing rest parameter collects the
// remainder.
type Arity struct {
	Req  int
	Rest bool
}

type KontKind uint8

const (
	KKargs KontKind = iota
	KKreceive
	KKproc
	KKtail
)

// Kont is one of the four continuation variants. All variants live in one
// flat struct, discriminated by Kind; every variant is known at compile
// time, so passes switch on Kind rather than type-assert.
type Kont struct {
	Kind KontKind
	Name Label

	// KKargs
	Vars []Var
	Term *Term

	// KKreceive
	RecvArity Arity
	RecvK     Label

	// KKproc
	ProcArity Arity
	ProcTail  Label
	ProcBody  Label

	// KKproc: this entry reifies a captured continuation. Invoking it
	// resumes the saved continuation with the supplied value and abandons
	// whatever the invoking frame still had pending (one-shot upward
	// escape).
	ProcEscape bool

	// KKproc, populated only after closure conversion
	ClosureDef bool
	Shares     []Var // captured free-variable names, in record-slot order
	Offset     int   // byte-offset-equivalent slot index for multi-closure fix records
}

type TermKind uint8

const (
	TContinue TermKind = iota
	TBranch
)

// Term is the tail of a kargs body: either "evaluate expr, pass to k" or a
// two-way branch on a variable's truthiness (#f is the only false value).
type Term struct {
	Kind TermKind

	// TContinue
	K    Label
	Expr *Expr

	// TBranch
	Arg    Var
	KTrue  Label
	KFalse Label
}

type ExprKind uint8

const (
	EConst ExprKind = iota
	EValues
	EPrim
	EPrimcall
	ECall
	EProc
	EFix
	ESet
	EBox
	EUnbox
	ERecord
	ESelect
	ERecordSet
	EMakeRecord
	EOffset
	ECode
)

// Expr is the tagged union of CPS expressions. As with Kont, one flat
// struct discriminated by Kind.
type Expr struct {
	Kind ExprKind

	// EConst
	Const value.Value

	// EValues, EPrimcall args, ERecord values
	Args []Var

	// EPrim, EPrimcall
	Prim string

	// ECall
	Proc Var

	// EProc
	K Label

	// EFix
	Names []Var
	Procs []*Expr // each Procs[i] is typically EProc or EBox

	// ESet, EBox, EUnbox
	Var Var // ESet target / EUnbox operand
	Val Var // ESet source / EBox init; empty means box(void), an
	// uninitialized letrec slot later filled by a matching ESet

	// ESelect, ERecordSet, EOffset
	Record Var
	Field  int

	// EMakeRecord
	NFields int

	// ECall: true when the final entry of Args is a list to be spliced
	// across the real call, i.e. this call originated from `apply`.
	Spread bool

	// ECode
	Code Label
}

// Graph is the label-indexed arena of continuations for one compilation
// unit, plus the gensym counters.
type Graph struct {
	Konts map[Label]*Kont
	Entry Label
	Exit  Label // the ktail of the top-level program

	nextK int
	nextT int
}

func NewGraph() *Graph {
	return &Graph{Konts: make(map[Label]*Kont)}
}

// GensymLabel produces a fresh `_k<n>` label.
func (g *Graph) GensymLabel() Label {
	g.nextK++
	return Label(fmt.Sprintf("_k%d", g.nextK))
}

// GensymTemp produces a fresh `_t<n>` temporary name.
func (g *Graph) GensymTemp() Var {
	g.nextT++
	return Var(fmt.Sprintf("_t%d", g.nextT))
}

func (g *Graph) Set(k Label, kont *Kont) {
	kont.Name = k
	g.Konts[k] = kont
}

func (g *Graph) Ref(k Label) (*Kont, bool) {
	kont, ok := g.Konts[k]
	return kont, ok
}

func (g *Graph) IsMember(k Label) bool {
	_, ok := g.Konts[k]
	return ok
}

// Delete removes a label from the graph, used by the contraction optimizer
// when a fix binding or kargs becomes unreachable.
func (g *Graph) Delete(k Label) {
	delete(g.Konts, k)
}

// LegalizeIdent replaces characters a C identifier cannot carry with `_`.
// Kept here since Label and Var are the exact strings a C back end would
// legalize.
func LegalizeIdent(s string) string {
	var b strings.Builder
	for _, r := range s {
		ok := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || (r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || (out[0] >= '0' && out[0] <= '9') {
		out = "_" + out
	}
	return out
}

// Closed reports whether every label referenced by any term or expression
// in the graph resolves to a member of the graph. Optimization passes must
// leave the graph closed; Pipeline checks this after translation and
// again after closure conversion.
func (g *Graph) Closed() error {
	for name, k := range g.Konts {
		switch k.Kind {
		case KKargs:
			if err := g.checkTerm(k.Term); err != nil {
				return fmt.Errorf("kargs %s: %w", name, err)
			}
		case KKreceive:
			if !g.IsMember(k.RecvK) {
				return fmt.Errorf("kreceive %s: dangling successor %s", name, k.RecvK)
			}
		case KKproc:
			if !g.IsMember(k.ProcBody) {
				return fmt.Errorf("kproc %s: dangling body %s", name, k.ProcBody)
			}
			if !g.IsMember(k.ProcTail) {
				return fmt.Errorf("kproc %s: dangling tail %s", name, k.ProcTail)
			}
		case KKtail:
			// no successors
		}
	}
	return nil
}

func (g *Graph) checkTerm(t *Term) error {
	if t == nil {
		return fmt.Errorf("nil term")
	}
	switch t.Kind {
	case TContinue:
		if !g.IsMember(t.K) {
			return fmt.Errorf("dangling continue target %s", t.K)
		}
	case TBranch:
		if !g.IsMember(t.KTrue) {
			return fmt.Errorf("dangling branch-true target %s", t.KTrue)
		}
		if !g.IsMember(t.KFalse) {
			return fmt.Errorf("dangling branch-false target %s", t.KFalse)
		}
	}
	return nil
}
