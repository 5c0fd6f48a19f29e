package ast_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

func TestSymBuildsASymbolAtom(t *testing.T) {
	n := ast.Sym("x")
	a, ok := n.(ast.Atom)
	require.True(t, ok)
	require.True(t, a.Sym)
	require.Equal(t, "x", a.V.SymbolName())
}

func TestQuoteBuildsASelfEvaluatingAtom(t *testing.T) {
	n := ast.Quote(value.IntV(7))
	a, ok := n.(ast.Atom)
	require.True(t, ok)
	require.False(t, a.Sym)
	require.Equal(t, int32(7), a.V.AsInt())
}

func TestHeadReturnsLeadingSymbolName(t *testing.T) {
	form := ast.L(ast.Sym("if"), ast.Quote(value.BoolV(true)), ast.Quote(value.IntV(1)))
	head, ok := ast.Head(form)
	require.True(t, ok)
	require.Equal(t, "if", head)
}

func TestHeadRejectsEmptyListAndNonListNodes(t *testing.T) {
	_, ok := ast.Head(ast.L())
	require.False(t, ok)

	_, ok = ast.Head(ast.Quote(value.IntV(1)))
	require.False(t, ok)
}

func TestHeadRejectsAListWhoseFirstItemIsNotASymbol(t *testing.T) {
	form := ast.L(ast.Quote(value.IntV(1)), ast.Quote(value.IntV(2)))
	_, ok := ast.Head(form)
	require.False(t, ok)
}

func TestSymbolNameRejectsNonSymbolAtoms(t *testing.T) {
	_, ok := ast.SymbolName(ast.Quote(value.IntV(1)))
	require.False(t, ok)

	_, ok = ast.SymbolName(ast.L(ast.Sym("x")))
	require.False(t, ok)
}
