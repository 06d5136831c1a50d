package codegen

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/util"
)

func captureWarnings(t *testing.T, cfg *config.Config, src string) string {
	t.Helper()
	var buf bytes.Buffer
	util.SetOutput(&buf)
	t.Cleanup(func() { util.SetOutput(os.Stderr) })

	_, err := NewContext(cfg).WithLabels(&Gensym{}).Compile(parseProgram(t, src))
	be.Err(t, err, nil)
	return buf.String()
}

func TestWarnings(t *testing.T) {
	cfg := config.NewConfig()
	for wt := config.Warning(0); wt < config.WarnCount; wt++ {
		cfg.SetWarning(wt, true)
	}

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"shadowing", "(let ((x 1)) (let ((x x)) x))", "'x' shadows an earlier binding [-Wshadow]"},
		{"unused binding", "(let ((x 1) (y 2)) y)", "'x' is bound but never used [-Wunused]"},
		{"rebound before use", "(let ((x 1) (x 2)) x)", "'x' is bound but never used"},
		{"unused parameter", "(define (f a) 1) (f 2)", "parameter 'a' of 'f' is never used [-Wunused]"},
		{"uncalled function", "(define (g) 1) 2", "function 'g' is defined but never called [-Wextra]"},
		{
			name: "stack arguments",
			src:  "(define (f a b c d e f2 g h i) (+ a i)) (f 1 2 3 4 5 6 7 8 9)",
			want: "passes 1 arguments on the stack [-Wstack-args]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureWarnings(t, cfg, tt.src)
			if !strings.Contains(out, tt.want) {
				t.Errorf("warnings for %q:\n%s\nwant a line containing %q", tt.src, out, tt.want)
			}
		})
	}
}

func TestWarningsQuiet(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, true)

	src := `(define (f _ignored n) (let ((_tmp 1) (m n)) m))
(f 1 2)`
	be.Equal(t, captureWarnings(t, cfg, src), "")

	be.Equal(t, captureWarnings(t, quietConfig(), "(let ((x 1)) (let ((x 2)) 3))"), "")
}
