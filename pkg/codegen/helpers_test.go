package codegen

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/asm/sim"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/lexer"
	"github.com/xplshn/glisp/pkg/parser"
)

// quietConfig is the default configuration with every warning disabled.
func quietConfig() *config.Config {
	cfg := config.NewConfig()
	for wt := config.Warning(0); wt < config.WarnCount; wt++ {
		cfg.SetWarning(wt, false)
	}
	return cfg
}

func parseProgram(t *testing.T, src string) *ast.Node {
	t.Helper()
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	be.Err(t, err, nil)
	root, err := parser.NewParser(toks, cfg).Parse()
	be.Err(t, err, nil)
	return root
}

func parseExpr(t *testing.T, src string) *ast.Node {
	t.Helper()
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	be.Err(t, err, nil)
	expr, err := parser.NewParser(toks, cfg).ParseExpr()
	be.Err(t, err, nil)
	return expr
}

func newTestContext() *Context {
	return NewContext(quietConfig()).WithLabels(&Gensym{})
}

// evaluate compiles src and runs it on the simulator, returning the printed
// result.
func evaluate(t *testing.T, src string) string {
	t.Helper()
	code, err := newTestContext().Compile(parseProgram(t, src))
	be.Err(t, err, nil)
	word, err := sim.Run(code, EntrySymbol)
	be.Err(t, err, nil)
	return asm.FormatValue(word)
}

// compileError compiles src and returns the resulting error.
func compileError(t *testing.T, src string) error {
	t.Helper()
	_, err := newTestContext().Compile(parseProgram(t, src))
	if err == nil {
		t.Fatalf("compiling %q: expected an error", src)
	}
	return err
}
