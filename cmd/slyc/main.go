// Command slyc is a minimal harness for exercising the compiler/runtime
// core directly with embedded AST fixtures. The lexer, hygienic macro
// expander, and surface-syntax parser live upstream; a real CLI front
// end is expected to build internal/ast.Node trees of its own and call
// internal/pipeline the same way this command does.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MattsPoche/sly-sub000/internal/ast"
	"github.com/MattsPoche/sly-sub000/internal/pipeline"
	"github.com/MattsPoche/sly-sub000/internal/value"
)

func main() {
	configPath := flag.String("config", "", "path to a .slyc.yaml config file")
	flag.Parse()

	cfg, err := pipeline.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slyc:", err)
		os.Exit(1)
	}

	results, err := pipeline.CompileAndRun(sampleProgram(), cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "slyc:", err)
		os.Exit(1)
	}
	for _, v := range results {
		fmt.Println(value.Write(v, true))
	}
}

// sampleProgram builds (+ 1 2 3) as an AST fixture, standing in for what
// an external parser would hand the pipeline.
func sampleProgram() []ast.Node {
	return []ast.Node{
		ast.L(ast.Sym("+"), ast.Quote(value.IntV(1)), ast.Quote(value.IntV(2)), ast.Quote(value.IntV(3))),
	}
}
