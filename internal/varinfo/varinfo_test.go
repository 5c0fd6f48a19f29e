package varinfo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/value"
	"github.com/MattsPoche/sly-sub000/internal/varinfo"
)

func TestCollectDoesNotMarkLocallyUsedParamAsEscaping(t *testing.T) {
	form := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("x")), ast.Sym("x"))
	g := cps.Translate([]ast.Node{form})

	entry, _ := g.Ref(g.Entry)
	kproc, _ := g.Ref(entry.Term.Expr.K)
	body, _ := g.Ref(kproc.ProcBody)
	px := body.Vars[0]

	info := varinfo.Collect(g)
	f := info.Vars[px]
	require.NotNil(t, f)
	require.Equal(t, 1, f.Used)
	require.Zero(t, f.Escapes)
}

func TestCollectMarksCapturedOuterParamAsEscaping(t *testing.T) {
	// (lambda (x) (lambda (y) x))
	form := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("x")),
		ast.L(ast.Sym("lambda"), ast.L(ast.Sym("y")), ast.Sym("x")),
	)
	g := cps.Translate([]ast.Node{form})

	entry, _ := g.Ref(g.Entry)
	outerKproc, _ := g.Ref(entry.Term.Expr.K)
	outerBody, _ := g.Ref(outerKproc.ProcBody)
	px := outerBody.Vars[0]

	innerKproc, _ := g.Ref(outerBody.Term.Expr.K)
	innerBody, _ := g.Ref(innerKproc.ProcBody)
	py := innerBody.Vars[0]

	// Inner body's sole reference should indeed be to the outer x.
	require.Equal(t, []cps.Var{px}, innerBody.Term.Expr.Args)

	info := varinfo.Collect(g)

	fx := info.Vars[px]
	require.NotNil(t, fx)
	require.Equal(t, 1, fx.Used)
	require.Equal(t, 1, fx.Escapes)

	fy := info.Vars[py]
	require.NotNil(t, fy)
	require.Zero(t, fy.Used)
}

func TestCollectMarksAValuesForwardedBindingAsAlias(t *testing.T) {
	// (lambda (x) ((lambda (y) y) x)) — the inner call binds y to the
	// forwarded x somewhere along the argument-evaluation chain, so some
	// binding must be recorded as an alias of x's temp.
	form := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("x")),
		ast.L(ast.L(ast.Sym("lambda"), ast.L(ast.Sym("y")), ast.Sym("y")), ast.Sym("x")),
	)
	g := cps.Translate([]ast.Node{form})

	entry, _ := g.Ref(g.Entry)
	kproc, _ := g.Ref(entry.Term.Expr.K)
	body, _ := g.Ref(kproc.ProcBody)
	px := body.Vars[0]

	info := varinfo.Collect(g)
	var found bool
	for _, f := range info.Vars {
		if f.IsAlias && f.Which == px {
			found = true
		}
	}
	require.True(t, found, "forwarding x through values must record an alias of it")
}

func TestCollectMarksTopLevelDefineAsUpdated(t *testing.T) {
	// (define x 1)
	def := ast.L(ast.Sym("define"), ast.Sym("x"), ast.Quote(value.IntV(1)))
	g := cps.Translate([]ast.Node{def})

	entry, _ := g.Ref(g.Entry)
	require.Equal(t, cps.EFix, entry.Term.Expr.Kind)
	px := entry.Term.Expr.Names[0]

	info := varinfo.Collect(g)
	f := info.Vars[px]
	require.NotNil(t, f)
	require.Equal(t, 1, f.Updates)
}
