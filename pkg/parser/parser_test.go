package parser

import (
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/lexer"
)

func parse(cfg *config.Config, src string) (*ast.Node, error) {
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	if err != nil {
		return nil, err
	}
	return NewParser(toks, cfg).Parse()
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{"42", "42"},
		{"-7", "-7"},
		{"true false nil ()", "true\nfalse\n()\n()"},
		{"(add1 (sub1 x))", "(add1 (sub1 x))"},
		{"[+ 1 [* 2 3]]", "(+ 1 (* 2 3))"},
		{"(if (< a b) a b)", "(if (< a b) a b)"},
		{"(let ((x 1) [y 2]) (+ x y))", "(let ((x 1) (y 2)) (+ x y))"},
		{"(let () 5)", "(let () 5)"},
		{"(do 1 2 3)", "(do 1 2 3)"},
		{"(define (f) 1)", "(define (f) 1)"},
		{"(define (g a b) (f)) (g 1 2)", "(define (g a b) (f))\n(g 1 2)"},
		{"(vector? (pair? (empty? (bool? (num? (not (zero? 0)))))))", "(vector? (pair? (empty? (bool? (num? (not (zero? 0)))))))"},
		{"(= (/ 6 2) (- 4 1))", "(= (/ 6 2) (- 4 1))"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			root, err := parse(config.NewConfig(), tt.src)
			be.Err(t, err, nil)
			be.Equal(t, root.String(), tt.want)
		})
	}
}

func TestParseShapes(t *testing.T) {
	root, err := parse(config.NewConfig(), "(define (f x y) (+ x y))\n(f 1 2)")
	be.Err(t, err, nil)
	prog := root.Data.(ast.ProgramNode)
	be.Equal(t, len(prog.Forms), 2)

	def := prog.Forms[0]
	be.Equal(t, def.Type, ast.FuncDef)
	d := def.Data.(ast.FuncDefNode)
	be.Equal(t, d.Name, "f")
	be.Equal(t, len(d.Params), 2)
	be.Equal(t, d.Body.Type, ast.BinaryOp)
	be.Equal(t, d.Body.Parent, def)
	be.Equal(t, def.Tok.Line, 1)
	be.Equal(t, def.Tok.Column, 10)

	call := prog.Forms[1]
	be.Equal(t, call.Type, ast.FuncCall)
	be.Equal(t, call.Tok.Line, 2)
	be.Equal(t, len(call.Data.(ast.FuncCallNode).Args), 2)
}

func TestParseExpr(t *testing.T) {
	toks, err := lexer.Tokenize([]rune("(+ 1 2)"), 0, config.NewConfig())
	be.Err(t, err, nil)
	node, err := NewParser(toks, config.NewConfig()).ParseExpr()
	be.Err(t, err, nil)
	be.Equal(t, node.Type, ast.BinaryOp)

	toks, err = lexer.Tokenize([]rune("1 2"), 0, config.NewConfig())
	be.Err(t, err, nil)
	_, err = NewParser(toks, config.NewConfig()).ParseExpr()
	be.Err(t, err, "1:3: unexpected '2' after expression")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src, want string
	}{
		{"(+ 1 2", "1:1: unclosed '('"},
		{"(+ 1 2]", "1:7: expected ')' but found ']'"},
		{")", "1:1: unexpected ')'"},
		{"(", "expected an operator or function name, found end of file"},
		{"(+ 1", "'+' expects 2 argument(s), got 1"},
		{"(f 1", "unclosed"},
		{"(add1", "'add1' expects 1 argument(s), got 0"},
		{"(if 1 2)", "'if' expects a condition, a then branch and an else branch, got 2 expression(s)"},
		{"(do)", "'do' needs at least one expression"},
		{"(let ((x)) x)", "binding for 'x' has no value"},
		{"(let ((1 2)) 3)", "expected a variable name, found '1'"},
		{"(let (x 1) x)", "expected a binding like (name value), found 'x'"},
		{"(let x 1)", "expected a binding list after 'let', found 'x'"},
		{"(let ((x 1)))", "'let' has no body"},
		{"(let ((+ 1)) 2)", "cannot use primitive '+' as a variable name"},
		{"(define (f))", "definition of 'f' has no body"},
		{"(define f 1)", "expected '(' to start the signature of a definition, found 'f'"},
		{"(define (1) 1)", "expected a function name, found '1'"},
		{"(define (f 2) 1)", "expected a parameter name, found '2'"},
		{"(define (add1 x) x)", "cannot use primitive 'add1' as a function name"},
		{"(define (f not) 1)", "cannot use primitive 'not' as a parameter name"},
		{"(do (define (f) 1))", "'define' is only allowed at the top level"},
		{"(add1 1 2)", "'add1' expects 1 argument(s), got 2"},
		{"(+ 1)", "'+' expects 2 argument(s), got 1"},
		{"(1 2)", "expected an operator or function name, found '1'"},
		{"add1", "primitive 'add1' is not a value; call it as (add1 ...)"},
		{"if", "unexpected keyword 'if' outside of a form"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := parse(config.NewConfig(), tt.src)
			be.Err(t, err, tt.want)
		})
	}
}

func TestFeatureGatedPrimitives(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetFeature(config.FeatMulDiv, false)
	cfg.SetFeature(config.FeatTagPredicates, false)

	root, err := parse(cfg, "(* 2 3)")
	be.Err(t, err, nil)
	be.Equal(t, root.Data.(ast.ProgramNode).Forms[0].Type, ast.FuncCall)

	root, err = parse(cfg, "(define (pair? x) x) (pair? 1)")
	be.Err(t, err, nil)
	be.Equal(t, root.Data.(ast.ProgramNode).Forms[1].Type, ast.FuncCall)

	_, err = parse(cfg, "(define (add1 x) x)")
	be.Err(t, err, "cannot use primitive 'add1'")
}
