// Package pipeline wires the compilation and execution stages into the
// single entry point an external driver calls: Translate -> VarInfo ->
// Contract -> FreeVar -> ClosureConvert -> Interp.
package pipeline

import (
	"io"
	"os"

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

// Compiled is a fully translated, optimized, and closure-converted
// program, ready to execute any number of times against fresh Machines.
type Compiled struct {
	Graph  *cps.Graph
	Layout closure.Result
	Stats  contract.Stats
}

// Compile runs every compile-time stage over forms and returns the
// closure-converted graph plus optimizer statistics.
func Compile(forms []ast.Node, cfg CompilerConfig, log *zap.Logger) (*Compiled, error) {
	g := cps.Translate(forms)
	if err := g.Closed(); err != nil {
		return nil, err
	}

	stats := contract.RunLimited(g, cfg.OptimizeRounds)
	log.Debug("contraction complete",
		zap.Int("rounds", stats.Rounds),
		zap.Int("aliases", stats.Aliases),
		zap.Int("folds", stats.Folds),
		zap.Int("dead_konts", stats.DeadKonts),
		zap.Int("inlines", stats.Inlines),
		zap.Int("beta_inlines", stats.BetaInlines),
	)

	info := varinfo.Collect(g)
	layout := closure.Convert(g, info)

	if err := g.Closed(); err != nil {
		return nil, err
	}
	return &Compiled{Graph: g, Layout: layout, Stats: stats}, nil
}

// Run executes a Compiled program against a fresh Machine built from
// cfg, returning its result values. display/write/newline output goes to
// os.Stdout; use RunWithStdout to capture it instead.
func Run(c *Compiled, cfg RuntimeConfig, log *zap.Logger) ([]value.Value, error) {
	return RunWithStdout(c, cfg, log, os.Stdout)
}

// RunWithStdout is Run with an explicit output port, letting tests and
// embedders redirect display/write/newline away from the real stdout.
func RunWithStdout(c *Compiled, cfg RuntimeConfig, log *zap.Logger, stdout io.Writer) ([]value.Value, error) {
	heap := runtime.NewHeapWithCapacity(cfg.HeapCapacity, log)
	stack := runtime.NewArgStackWithLimit(cfg.MaxStackDepth)
	handler := runtime.NewHandler()
	machine := runtime.NewMachineWithStdout(heap, stack, handler, stdout)

	it := interp.New(c.Graph, c.Layout, machine)
	return it.RunProgram()
}

// CompileAndRun is the convenience entry point: translate+optimize+
// convert forms, then execute them immediately. Used by tests and the
// minimal CLI.
func CompileAndRun(forms []ast.Node, cfg Config) ([]value.Value, error) {
	return CompileAndRunWithStdout(forms, cfg, os.Stdout)
}

// CompileAndRunWithStdout is CompileAndRun with an explicit output port.
func CompileAndRunWithStdout(forms []ast.Node, cfg Config, stdout io.Writer) ([]value.Value, error) {
	log, err := NewLogger(cfg.Compiler)
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	c, err := Compile(forms, cfg.Compiler, log)
	if err != nil {
		return nil, err
	}
	return RunWithStdout(c, cfg.Runtime, log, stdout)
}
