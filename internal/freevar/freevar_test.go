package freevar_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/freevar"
)

func TestFreeVarsFindsACapturedOuterParam(t *testing.T) {
	// (lambda (x) (lambda (y) x)) — the inner lambda's only free variable
	// is the outer parameter x; y is bound locally and never referenced.
	form := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("x")),
		ast.L(ast.Sym("lambda"), ast.L(ast.Sym("y")), ast.Sym("x")),
	)
	g := cps.Translate([]ast.Node{form})

	entry, _ := g.Ref(g.Entry)
	outerKproc, _ := g.Ref(entry.Term.Expr.K)
	outerBody, _ := g.Ref(outerKproc.ProcBody)
	innerKproc, _ := g.Ref(outerBody.Term.Expr.K)

	a := freevar.NewAnalyzer(g)
	free := a.FreeVars(innerKproc.Name)
	require.Equal(t, []cps.Var{outerBody.Vars[0]}, free)
}

func TestFreeVarsOfANonCapturingProcIsEmpty(t *testing.T) {
	// (lambda (x) x) — x is bound within the proc, so it is not free.
	form := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("x")), ast.Sym("x"))
	g := cps.Translate([]ast.Node{form})

	entry, _ := g.Ref(g.Entry)
	kproc, _ := g.Ref(entry.Term.Expr.K)

	a := freevar.NewAnalyzer(g)
	require.Empty(t, a.FreeVars(kproc.Name))
}

func TestFreeVarsIsMemoizedAcrossRepeatedQueries(t *testing.T) {
	form := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("x")),
		ast.L(ast.Sym("lambda"), ast.L(ast.Sym("y")), ast.Sym("x")),
	)
	g := cps.Translate([]ast.Node{form})

	entry, _ := g.Ref(g.Entry)
	outerKproc, _ := g.Ref(entry.Term.Expr.K)
	outerBody, _ := g.Ref(outerKproc.ProcBody)
	innerKproc, _ := g.Ref(outerBody.Term.Expr.K)

	a := freevar.NewAnalyzer(g)
	first := a.FreeVars(innerKproc.Name)
	second := a.FreeVars(innerKproc.Name)
	require.Equal(t, first, second)
}
