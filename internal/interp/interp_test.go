package interp_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/closure"
	"github.com/MattsPoche/sly-sub000/internal/contract"
	"github.com/MattsPoche/sly-sub000/internal/cps"
	"github.com/MattsPoche/sly-sub000/internal/interp"
	"github.com/MattsPoche/sly-sub000/internal/runtime"
	"github.com/MattsPoche/sly-sub000/internal/value"
	"github.com/MattsPoche/sly-sub000/internal/varinfo"
)

// run compiles forms through every stage internal/pipeline wires, stopping
// short of actually depending on that package, so this file exercises
// internal/interp directly against a hand-assembled Machine.
func run(t *testing.T, forms []ast.Node) []value.Value {
	t.Helper()
	g := cps.Translate(forms)
	require.NoError(t, g.Closed())

	contract.Run(g)
	info := varinfo.Collect(g)
	layout := closure.Convert(g, info)
	require.NoError(t, g.Closed())

	heap := runtime.NewHeapWithCapacity(4096, zap.NewNop())
	stack := runtime.NewArgStackWithLimit(512)
	handler := runtime.NewHandler()
	machine := runtime.NewMachine(heap, stack, handler)

	it := interp.New(g, layout, machine)
	results, err := it.RunProgram()
	require.NoError(t, err)
	return results
}

func TestRunProgramComputesFactorialOfTen(t *testing.T) {
	// (define (fact n) (if (= n 0) 1 (* n (fact (- n 1)))))
	// (fact 10)
	fact := ast.L(ast.Sym("define"), ast.L(ast.Sym("fact"), ast.Sym("n")),
		ast.L(ast.Sym("if"),
			ast.L(ast.Sym("="), ast.Sym("n"), ast.Quote(value.IntV(0))),
			ast.Quote(value.IntV(1)),
			ast.L(ast.Sym("*"), ast.Sym("n"),
				ast.L(ast.Sym("fact"), ast.L(ast.Sym("-"), ast.Sym("n"), ast.Quote(value.IntV(1)))),
			),
		),
	)
	call := ast.L(ast.Sym("fact"), ast.Quote(value.IntV(10)))

	results := run(t, []ast.Node{fact, call})
	require.Len(t, results, 1)
	require.Equal(t, int32(3628800), results[0].AsInt())
}

func TestRunProgramCallCCReturnsTheProcsOwnResultWhenKIsNeverInvoked(t *testing.T) {
	// (call/cc (lambda (k) 42))
	form := ast.L(ast.Sym("call/cc"), ast.L(ast.Sym("lambda"), ast.L(ast.Sym("k")), ast.Quote(value.IntV(42))))

	results := run(t, []ast.Node{form})
	require.Len(t, results, 1)
	require.Equal(t, int32(42), results[0].AsInt())
}

func TestRunProgramCallCCEscapeAbandonsThePendingComputation(t *testing.T) {
	// (call/cc (lambda (k) (+ 1 (k 42)))) — invoking k must abandon the
	// pending (+ 1 _) and deliver 42 straight to call/cc's continuation.
	form := ast.L(ast.Sym("call/cc"),
		ast.L(ast.Sym("lambda"), ast.L(ast.Sym("k")),
			ast.L(ast.Sym("+"), ast.Quote(value.IntV(1)),
				ast.L(ast.Sym("k"), ast.Quote(value.IntV(42)))),
		),
	)

	results := run(t, []ast.Node{form})
	require.Len(t, results, 1)
	require.Equal(t, int32(42), results[0].AsInt())
}

func TestRunProgramRejectsACallWithTheWrongArgumentCount(t *testing.T) {
	// (define (pair a b) (cons a b)) (pair 1) — one argument short.
	def := ast.L(ast.Sym("define"), ast.L(ast.Sym("pair"), ast.Sym("a"), ast.Sym("b")),
		ast.L(ast.Sym("cons"), ast.Sym("a"), ast.Sym("b")),
	)
	call := ast.L(ast.Sym("pair"), ast.Quote(value.IntV(1)))

	g := cps.Translate([]ast.Node{def, call})
	require.NoError(t, g.Closed())
	contract.Run(g)
	info := varinfo.Collect(g)
	layout := closure.Convert(g, info)

	machine := runtime.NewMachine(
		runtime.NewHeapWithCapacity(4096, zap.NewNop()),
		runtime.NewArgStackWithLimit(512),
		runtime.NewHandler(),
	)
	_, err := interp.New(g, layout, machine).RunProgram()
	require.Error(t, err)
	require.Contains(t, err.Error(), "arity-mismatch")
}

func TestRunProgramTailRecursesToOneMillionWithoutGrowingTheGoStack(t *testing.T) {
	// (define (loop n) (if (= n 1000000) 'done (loop (+ n 1))))
	// (loop 0)
	loop := ast.L(ast.Sym("define"), ast.L(ast.Sym("loop"), ast.Sym("n")),
		ast.L(ast.Sym("if"),
			ast.L(ast.Sym("="), ast.Sym("n"), ast.Quote(value.IntV(1000000))),
			ast.Quote(value.NewSymbol("done")),
			ast.L(ast.Sym("loop"), ast.L(ast.Sym("+"), ast.Sym("n"), ast.Quote(value.IntV(1)))),
		),
	)
	call := ast.L(ast.Sym("loop"), ast.Quote(value.IntV(0)))

	results := run(t, []ast.Node{loop, call})
	require.Len(t, results, 1)
	require.Equal(t, value.Symbol, results[0].Kind)
	require.Equal(t, "done", results[0].SymbolName())
}
