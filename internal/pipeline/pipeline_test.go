package pipeline_test

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/pipeline"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

func TestCompileAndRunFoldsConstantArithmeticAtCompileTime(t *testing.T) {
	// (+ 1 2 3): contraction must fold this to a single const(6) before
	// the runtime ever sees it, run here end to end through the same
	// entry point an external driver would use.
	form := ast.L(ast.Sym("+"), ast.Quote(value.IntV(1)), ast.Quote(value.IntV(2)), ast.Quote(value.IntV(3)))

	cfg := pipeline.DefaultConfig()
	log := zap.NewNop()
	compiled, err := pipeline.Compile([]ast.Node{form}, cfg.Compiler, log)
	require.NoError(t, err)
	require.Greater(t, compiled.Stats.Folds, 0)

	results, err := pipeline.Run(compiled, cfg.Runtime, log)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int32(6), results[0].AsInt())
}

func TestCompileAndRunAppliesAUserDefinedMapOverAList(t *testing.T) {
	// (define (square x) (* x x))
	// (define (map f lst)
	//   (if (null? lst) '() (cons (f (car lst)) (map f (cdr lst)))))
	// (map square (list 1 2 3 4))
	square := ast.L(ast.Sym("define"), ast.L(ast.Sym("square"), ast.Sym("x")),
		ast.L(ast.Sym("*"), ast.Sym("x"), ast.Sym("x")),
	)
	mapDef := ast.L(ast.Sym("define"), ast.L(ast.Sym("map"), ast.Sym("f"), ast.Sym("lst")),
		ast.L(ast.Sym("if"),
			ast.L(ast.Sym("null?"), ast.Sym("lst")),
			ast.Quote(value.NullV()),
			ast.L(ast.Sym("cons"),
				ast.L(ast.Sym("f"), ast.L(ast.Sym("car"), ast.Sym("lst"))),
				ast.L(ast.Sym("map"), ast.Sym("f"), ast.L(ast.Sym("cdr"), ast.Sym("lst"))),
			),
		),
	)
	call := ast.L(ast.Sym("map"), ast.Sym("square"),
		ast.L(ast.Sym("list"), ast.Quote(value.IntV(1)), ast.Quote(value.IntV(2)), ast.Quote(value.IntV(3)), ast.Quote(value.IntV(4))),
	)

	results, err := pipeline.CompileAndRun([]ast.Node{square, mapDef, call}, pipeline.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "(1 4 9 16)", value.Write(results[0], true))
}

func TestCompileAndRunDispatchesCallWithValuesToAMultiArgConsumer(t *testing.T) {
	// (call-with-values (lambda () (values 1 2 3)) (lambda (a b c) (+ a b c)))
	producer := ast.L(ast.Sym("lambda"), ast.L(),
		ast.L(ast.Sym("values"), ast.Quote(value.IntV(1)), ast.Quote(value.IntV(2)), ast.Quote(value.IntV(3))),
	)
	consumer := ast.L(ast.Sym("lambda"), ast.L(ast.Sym("a"), ast.Sym("b"), ast.Sym("c")),
		ast.L(ast.Sym("+"), ast.Sym("a"), ast.Sym("b"), ast.Sym("c")),
	)
	form := ast.L(ast.Sym("call-with-values"), producer, consumer)

	results, err := pipeline.CompileAndRun([]ast.Node{form}, pipeline.DefaultConfig())
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, int32(6), results[0].AsInt())
}

// TestCompiledGraphIsAlphaEquivalentAcrossVariableNaming checks that two
// programs differing only in the surface name of a bound variable
// compile to the same graph, since gensym'd
// labels/vars never derive from source spelling. spew.Sdump renders each
// side as a golden-style text dump (sorted map keys, so iteration order
// can't introduce spurious diffs), and go-difflib renders a unified diff
// of the two dumps on failure.
func TestCompiledGraphIsAlphaEquivalentAcrossVariableNaming(t *testing.T) {
	progA := []ast.Node{
		ast.L(ast.Sym("define"), ast.L(ast.Sym("square"), ast.Sym("x")),
			ast.L(ast.Sym("*"), ast.Sym("x"), ast.Sym("x"))),
		ast.L(ast.Sym("square"), ast.Quote(value.IntV(7))),
	}
	progB := []ast.Node{
		ast.L(ast.Sym("define"), ast.L(ast.Sym("square"), ast.Sym("y")),
			ast.L(ast.Sym("*"), ast.Sym("y"), ast.Sym("y"))),
		ast.L(ast.Sym("square"), ast.Quote(value.IntV(7))),
	}

	cfg := pipeline.DefaultConfig()
	log := zap.NewNop()
	compiledA, err := pipeline.Compile(progA, cfg.Compiler, log)
	require.NoError(t, err)
	compiledB, err := pipeline.Compile(progB, cfg.Compiler, log)
	require.NoError(t, err)

	dumpCfg := spew.ConfigState{SortKeys: true, DisableMethods: true}
	dumpA := dumpCfg.Sdump(compiledA.Graph)
	dumpB := dumpCfg.Sdump(compiledB.Graph)
	if dumpA != dumpB {
		diff := difflib.UnifiedDiff{
			A:        difflib.SplitLines(dumpA),
			B:        difflib.SplitLines(dumpB),
			FromFile: "progA (parameter x)",
			ToFile:   "progB (parameter y)",
			Context:  3,
		}
		text, _ := difflib.GetUnifiedDiffString(diff)
		t.Fatalf("graphs differing only in a bound variable's surface name must be alpha-equivalent:\n%s", text)
	}
}
