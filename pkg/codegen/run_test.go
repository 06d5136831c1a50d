package codegen

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"empty program", "", "()"},
		{"number", "42", "42"},
		{"negative number", "-17", "-17"},
		{"last expression wins", "1 2 3", "3"},
		{"true", "true", "true"},
		{"empty list", "()", "()"},
		{"nil keyword", "nil", "()"},
		{"add1", "(add1 41)", "42"},
		{"sub1", "(sub1 0)", "-1"},
		{"zero? on zero", "(zero? 0)", "true"},
		{"zero? on false", "(zero? false)", "false"},
		{"num?", "(num? 5)", "true"},
		{"num? on bool", "(num? true)", "false"},
		{"not false", "(not false)", "true"},
		{"not zero", "(not 0)", "false"},
		{"bool?", "(bool? false)", "true"},
		{"empty?", "(empty? ())", "true"},
		{"empty? on zero", "(empty? 0)", "false"},
		{"pair? on number", "(pair? 1)", "false"},
		{"vector? on empty list", "(vector? ())", "false"},
		{"plus", "(+ 40 2)", "42"},
		{"minus", "(- 10 3)", "7"},
		{"minus below zero", "(- 3 10)", "-7"},
		{"equal", "(= 3 3)", "true"},
		{"not equal", "(= 3 4)", "false"},
		{"equal across kinds", "(= 0 false)", "false"},
		{"less", "(< 1 2)", "true"},
		{"not less", "(< 2 2)", "false"},
		{"negative less", "(< -5 -2)", "true"},
		{"times", "(* 6 7)", "42"},
		{"times negative", "(* -3 4)", "-12"},
		{"divide", "(/ 7 2)", "3"},
		{"divide truncates toward zero", "(/ -7 2)", "-3"},
		{"divide by zero", "(/ 5 0)", "0"},
		{"if true", "(if true 1 2)", "1"},
		{"if false", "(if false 1 2)", "2"},
		{"if treats zero as true", "(if 0 1 2)", "1"},
		{"nested if", "(if (< 1 2) (if false 1 2) 3)", "2"},
		{"do", "(do 1 2 3)", "3"},
		{"let", "(let ((x 5)) (+ x x))", "10"},
		{"let sees earlier bindings", "(let ((x 1) (y (+ x 1))) (+ x y))", "3"},
		{"let rebinding", "(let ((x 1) (x (+ x 1))) x)", "2"},
		{"nested let", "(let ((x 1)) (let ((x (+ x 10))) x))", "11"},
		{"brackets", "[let ([x 2]) (* x x)]", "4"},
		{"comments", "; nothing here\n(+ 1 ; one\n 2)", "3"},
		{
			name: "zero-argument function",
			src:  "(define (answer) 42) (answer)",
			want: "42",
		},
		{
			name: "identity",
			src:  "(define (id x) x) (id 9)",
			want: "9",
		},
		{
			name: "argument order",
			src:  "(define (sub a b) (- a b)) (sub 10 4)",
			want: "6",
		},
		{
			name: "function defined after use",
			src:  "(twice 4) (define (twice n) (* n 2))",
			want: "8",
		},
		{
			name: "factorial",
			src:  "(define (fact n) (if (zero? n) 1 (* n (fact (sub1 n))))) (fact 10)",
			want: "3628800",
		},
		{
			name: "fibonacci",
			src:  "(define (fib n) (if (< n 2) n (+ (fib (- n 1)) (fib (- n 2))))) (fib 15)",
			want: "610",
		},
		{
			name: "mutual recursion",
			src: `(define (even? n) (if (zero? n) true (odd? (sub1 n))))
(define (odd? n) (if (zero? n) false (even? (sub1 n))))
(even? 10)`,
			want: "true",
		},
		{
			name: "calls as arguments",
			src:  "(define (sq x) (* x x)) (define (add a b) (+ a b)) (add (sq 3) (sq 4))",
			want: "25",
		},
		{
			name: "call inside let keeps bindings",
			src:  "(define (inc x) (add1 x)) (let ((a 1) (b (inc 10))) (+ a b))",
			want: "12",
		},
		{
			name: "call as right operand keeps the left one",
			src:  "(define (inc x) (add1 x)) (+ 100 (inc 1))",
			want: "102",
		},
		{
			name: "eight arguments",
			src: `(define (last8 a b c d e f g h) (- h a))
(last8 1 2 3 4 5 6 7 8)`,
			want: "7",
		},
		{
			name: "nine arguments",
			src: `(define (pick9 a b c d e f g h i) (- i a))
(pick9 1 2 3 4 5 6 7 8 9)`,
			want: "8",
		},
		{
			name: "twelve arguments",
			src: `(define (sum12 a b c d e f g h i j k l)
  (+ a (+ b (+ c (+ d (+ e (+ f (+ g (+ h (+ i (+ j (+ k l))))))))))))
(sum12 1 2 3 4 5 6 7 8 9 10 11 12)`,
			want: "78",
		},
		{
			name: "stack arguments keep their order",
			src: `(define (weigh a b c d e f g h i j) (+ (* i 10) j))
(weigh 0 0 0 0 0 0 0 0 3 4)`,
			want: "34",
		},
		{
			name: "recursion with stack arguments",
			src: `(define (count a b c d e f g h n acc)
  (if (zero? n) acc (count a b c d e f g h (sub1 n) (+ acc h))))
(count 1 2 3 4 5 6 7 8 10 0)`,
			want: "80",
		},
		{
			name: "booleans pass through calls",
			src:  "(define (flip b) (not b)) (flip (flip false))",
			want: "false",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, evaluate(t, tt.src), tt.want)
		})
	}
}

// chainedLet builds a let with n bindings, each one more than the last.
func chainedLet(n int, body string) string {
	var sb strings.Builder
	sb.WriteString("(let ((v0 0)")
	for i := 1; i < n; i++ {
		fmt.Fprintf(&sb, " (v%d (add1 v%d))", i, i-1)
	}
	sb.WriteString(") " + body + ")")
	return sb.String()
}

func TestEvaluateDeepFrames(t *testing.T) {
	t.Run("slots beyond the immediate range", func(t *testing.T) {
		be.Equal(t, evaluate(t, chainedLet(40, "(+ v39 v0)")), "39")
	})
	t.Run("call from a deep frame", func(t *testing.T) {
		src := "(define (add a b) (+ a b)) " + chainedLet(40, "(add v39 v38)")
		be.Equal(t, evaluate(t, src), "77")
	})
	t.Run("outgoing area beyond an add immediate", func(t *testing.T) {
		src := "(define (add a b) (+ a b)) " + chainedLet(600, "(add v599 v1)")
		be.Equal(t, evaluate(t, src), "600")
	})
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
		msg  string
	}{
		{"unbound variable", "x", ErrUnresolved, "'x' is not bound"},
		{"suggestion", "(let ((count 1)) cout)", ErrUnresolved, "did you mean 'count'"},
		{"function as value", "(define (f) 1) (f) f", ErrUnresolved, "is a function, not a value"},
		{"undefined function", "(g 1)", ErrUnresolved, "undefined function 'g'"},
		{"calling a variable", "(let ((h 1)) (h 2))", ErrUnsupported, "'h' is a variable"},
		{"too few arguments", "(define (f a b) a) (f 1)", ErrArity, "expects 2 argument(s), got 1"},
		{"too many arguments", "(define (f) 1) (f 1)", ErrArity, "expects 0 argument(s), got 1"},
		{"duplicate function", "(define (f x) x) (define (f y) y)", ErrDuplicate, "already defined on line 1"},
		{"duplicate parameter", "(define (f x x) x)", ErrDuplicate, "parameter 'x' appears twice"},
		{"unbound inside function", "(define (f x) y) (f 1)", ErrUnresolved, "'y' is not bound"},
		{"parameters are not globals", "(define (f x) x) x", ErrUnresolved, "'x' is not bound"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := compileError(t, tt.src)
			var cerr *Error
			be.True(t, errors.As(err, &cerr))
			be.Equal(t, cerr.Kind, tt.kind)
			be.Err(t, err, tt.msg)
		})
	}
}

func TestLowerRejectsMalformedTrees(t *testing.T) {
	ctx := newTestContext()

	_, err := ctx.Lower(nil, firstSlot, nil)
	be.True(t, errors.Is(err, &Error{Kind: ErrUnsupported}))

	root := parseProgram(t, "(define (f) 1)")
	_, err = ctx.Lower(nil, firstSlot, root)
	be.True(t, errors.Is(err, &Error{Kind: ErrUnsupported}))

	def := root.Children()[0]
	_, err = ctx.Lower(nil, firstSlot, def)
	be.Err(t, err, "must be defined at the top level")
}
