package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func TestParseExpectations(t *testing.T) {
	t.Run("output", func(t *testing.T) {
		exp := parseExpectations("; expect: 1\n;; expect: true\n(do 1 true)\n")
		be.True(t, exp.present())
		be.Equal(t, exp.stdout(), "1\ntrue\n")
		be.Equal(t, exp.exitCode, 0)
	})
	t.Run("exit code", func(t *testing.T) {
		exp := parseExpectations("; expect-exit: 3\n")
		be.True(t, exp.present())
		be.Equal(t, exp.exitCode, 3)
		be.Equal(t, exp.stdout(), "")
	})
	t.Run("compile error", func(t *testing.T) {
		exp := parseExpectations("  ; expect-error: 'x' is not bound\n(+ x 1)")
		be.True(t, exp.present())
		be.Equal(t, exp.compileError, "'x' is not bound")
	})
	t.Run("plain comments", func(t *testing.T) {
		exp := parseExpectations("; computes things\n; note that (+ 1 2)\n(+ 1 2)")
		be.True(t, !exp.present())
	})
}

func TestFilterOutput(t *testing.T) {
	out := "a\nDEBUG x\nb\n"
	be.Equal(t, filterOutput(out, nil), out)
	be.Equal(t, filterOutput(out, []string{"DEBUG"}), "a\nb\n")
	be.Equal(t, filterOutput(out, []string{""}), out)
}

func TestCompareRuntimeResults(t *testing.T) {
	want := &TargetResult{Run: Execution{Stdout: "42\n"}}

	res := compareRuntimeResults("f.lisp", want, &TargetResult{Run: Execution{Stdout: "42\n"}})
	be.Equal(t, res.Status, "PASS")

	res = compareRuntimeResults("f.lisp", want, &TargetResult{Run: Execution{Stdout: "41\n"}})
	be.Equal(t, res.Status, "FAIL")
	be.True(t, strings.Contains(res.Diff, "Stdout"))

	res = compareRuntimeResults("f.lisp", want, &TargetResult{Run: Execution{Stdout: "42\n", ExitCode: 1}})
	be.Equal(t, res.Status, "FAIL")
	be.True(t, strings.Contains(res.Diff, "Exit Code: expected 0, got 1"))

	res = compareRuntimeResults("f.lisp", want, &TargetResult{Run: Execution{TimedOut: true}})
	be.Equal(t, res.Status, "FAIL")
	be.True(t, strings.Contains(res.Message, "timed out"))

	res = compareRuntimeResults("f.lisp", want, &TargetResult{Run: Execution{Stdout: "42\n", UnstableOutput: true}})
	be.Equal(t, res.Status, "FAIL")
}

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.lisp")
	b := filepath.Join(dir, "b.lisp")
	c := filepath.Join(dir, "c.lisp")
	be.Err(t, os.WriteFile(a, []byte("(+ 1 2)"), 0644), nil)
	be.Err(t, os.WriteFile(b, []byte("(+ 1 2)"), 0644), nil)
	be.Err(t, os.WriteFile(c, []byte("(+ 2 1)"), 0644), nil)

	ha, err := hashFile(a)
	be.Err(t, err, nil)
	hb, _ := hashFile(b)
	hc, _ := hashFile(c)
	be.Equal(t, ha, hb)
	be.True(t, ha != hc)

	_, err = hashFile(filepath.Join(dir, "missing.lisp"))
	be.True(t, err != nil)
}

func TestExpandGlobPatterns(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.lisp", "a.lisp", "notes.txt"} {
		be.Err(t, os.WriteFile(filepath.Join(dir, name), nil, 0644), nil)
	}
	be.Err(t, os.Mkdir(filepath.Join(dir, "sub.lisp"), 0755), nil)

	pattern := filepath.Join(dir, "*.lisp")
	files, err := expandGlobPatterns(pattern + " " + pattern)
	be.Err(t, err, nil)
	want := []string{filepath.Join(dir, "a.lisp"), filepath.Join(dir, "b.lisp")}
	if diff := cmp.Diff(want, files); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}

	_, err = expandGlobPatterns("[")
	be.True(t, err != nil)
}

func TestGetJSONPath(t *testing.T) {
	be.Equal(t, getJSONPath("/x/y/fact.lisp"), filepath.Join("/x/y", ".fact.lisp.json"))

	saved := *jsonDir
	*jsonDir = "/golden"
	t.Cleanup(func() { *jsonDir = saved })
	be.Equal(t, getJSONPath("/x/y/fact.lisp"), filepath.Join("/golden", ".fact.lisp.json"))
}

func TestDurationRatio(t *testing.T) {
	res := &FileTestResult{
		Reference: &TargetResult{Run: Execution{Duration: 2 * time.Millisecond}},
		Target:    &TargetResult{Run: Execution{Duration: time.Millisecond}},
	}
	ratio, ok := durationRatio(res)
	be.True(t, ok)
	be.Equal(t, ratio, 2.0)

	_, ok = durationRatio(&FileTestResult{Target: res.Target})
	be.True(t, !ok)

	be.True(t, geomean([]float64{2, 8}) > 3.99 && geomean([]float64{2, 8}) < 4.01)
}

func TestHasFailures(t *testing.T) {
	be.True(t, !hasFailures([]*FileTestResult{{Status: "PASS"}, {Status: "SKIP"}}))
	be.True(t, hasFailures([]*FileTestResult{{Status: "PASS"}, {Status: "ERROR"}}))
}
