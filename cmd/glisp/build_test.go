package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/util"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnUnused, false)
	cfg.SetWarning(config.WarnExtra, false)
	be.Err(t, cfg.SetTarget("linux", "arm64", "arm64"), nil)
	return cfg
}

func writeSource(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	be.Err(t, os.WriteFile(path, []byte(src), 0o644), nil)
	return path
}

func TestOutputFor(t *testing.T) {
	d := &driver{cfg: config.NewConfig(), mode: modeLink}
	be.Equal(t, d.outputFor("dir/fact.lisp"), "dir/fact")
	be.Equal(t, d.outputFor("noext"), "noext.out")

	d.mode = modeAsm
	be.Equal(t, d.outputFor("dir/fact.lisp"), "dir/fact.s")

	d.output = "custom.s"
	be.Equal(t, d.outputFor("dir/fact.lisp"), "custom.s")
}

func TestCheck(t *testing.T) {
	d := &driver{cfg: testConfig(t), output: "a.out", mode: modeLink}
	be.Err(t, d.check([]string{"a.lisp", "b.lisp"}), "-o cannot be used")
	be.Err(t, d.check([]string{"a.lisp"}), nil)

	d.mode = modeRun
	d.cfg.Backend = config.BackendQBE
	be.Err(t, d.check([]string{"a.lisp"}), "needs the asm backend")
}

func TestRunMode(t *testing.T) {
	dir := t.TempDir()
	fact := writeSource(t, dir, "fact.lisp", "(define (fact n) (if (zero? n) 1 (* n (fact (sub1 n)))))\n(fact 6)\n")
	pred := writeSource(t, dir, "pred.lisp", "(num? true)")

	var out bytes.Buffer
	d := &driver{cfg: testConfig(t), mode: modeRun, stdout: &out}
	be.Equal(t, d.buildAll([]string{fact}), 0)
	be.Equal(t, out.String(), "720\n")

	out.Reset()
	be.Equal(t, d.buildAll([]string{fact, pred}), 0)
	be.True(t, strings.Contains(out.String(), fact+": 720\n"))
	be.True(t, strings.Contains(out.String(), pred+": false\n"))
}

func TestAsmMode(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "one.lisp", "(define (one) 1) (one)")

	d := &driver{cfg: testConfig(t), mode: modeAsm, stdout: &bytes.Buffer{}}
	be.Equal(t, d.buildAll([]string{src}), 0)

	data, err := os.ReadFile(filepath.Join(dir, "one.s"))
	be.Err(t, err, nil)
	text := string(data)
	be.True(t, strings.HasPrefix(text, ".text\n.global lisp_entry\n"))
	be.True(t, strings.Contains(text, "\tbl _fn_one\n"))
}

func TestDumpMode(t *testing.T) {
	dir := t.TempDir()
	src := writeSource(t, dir, "add.lisp", "[+ 1 2]")

	var out bytes.Buffer
	d := &driver{cfg: testConfig(t), mode: modeDumpIR, stdout: &out}
	be.Equal(t, d.buildAll([]string{src}), 0)
	be.Equal(t, out.String(), "(+ 1 2)\n")

	out.Reset()
	d.cfg.Backend = config.BackendQBE
	be.Equal(t, d.buildAll([]string{src}), 0)
	be.True(t, strings.Contains(out.String(), "export function l $lisp_entry(l %heap)"))
}

func TestBuildErrors(t *testing.T) {
	dir := t.TempDir()
	bad := writeSource(t, dir, "bad.lisp", "(f 1)")
	d := &driver{cfg: testConfig(t), mode: modeRun, stdout: &bytes.Buffer{}}

	err := d.build(bad, 1)
	be.Err(t, err, "undefined function 'f'")

	err = d.build(filepath.Join(dir, "missing.lisp"), 1)
	be.Err(t, err, "could not read file")
}

func TestAssemblyCache(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.CacheDir = filepath.Join(dir, "cache")
	d := &driver{cfg: cfg, mode: modeAsm, stdout: &bytes.Buffer{}}

	src := []byte("(+ 1 2)")
	root, _, err := d.parse(writeSource(t, dir, "a.lisp", string(src)))
	be.Err(t, err, nil)

	first, err := d.assembly(root, src)
	be.Err(t, err, nil)
	entries, err := os.ReadDir(cfg.CacheDir)
	be.Err(t, err, nil)
	be.Equal(t, len(entries), 1)

	// A poisoned entry proves the second call reads the cache.
	cached := filepath.Join(cfg.CacheDir, cacheKey(cfg, src)+".s")
	be.Err(t, os.WriteFile(cached, []byte("from cache"), 0o644), nil)
	second, err := d.assembly(root, src)
	be.Err(t, err, nil)
	be.Equal(t, second, "from cache")
	be.True(t, first != second)
}

func TestCacheKey(t *testing.T) {
	cfg := testConfig(t)
	src := []byte("(add1 1)")
	key := cacheKey(cfg, src)
	be.Equal(t, len(key), 16)
	be.Equal(t, cacheKey(cfg, src), key)
	be.True(t, cacheKey(cfg, []byte("(add1 2)")) != key)

	cfg.SetFeature(config.FeatMulDiv, false)
	be.True(t, cacheKey(cfg, src) != key)
	cfg.SetFeature(config.FeatMulDiv, true)

	cfg.Backend = config.BackendQBE
	be.True(t, cacheKey(cfg, src) != key)
}

func TestApplyProjectFile(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "src", "deep")
	be.Err(t, os.MkdirAll(nested, 0o755), nil)
	yaml := "target: arm64_apple\nbackend: qbe\njobs: 2\nflags: [\"-Wshadow\"]\n"
	be.Err(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(yaml), 0o644), nil)

	cfg := config.NewConfig()
	target, err := applyProjectFile(cfg, "", nested)
	be.Err(t, err, nil)
	be.Equal(t, target, "arm64_apple")
	be.Equal(t, cfg.Backend, config.BackendQBE)
	be.Equal(t, cfg.Jobs, 2)
	be.True(t, cfg.IsWarningEnabled(config.WarnShadow))

	_, err = applyProjectFile(config.NewConfig(), filepath.Join(dir, "nope.yaml"), nested)
	be.Err(t, err, "reading config")
}

func TestFirstNonEmpty(t *testing.T) {
	be.Equal(t, firstNonEmpty("", "b", "c"), "b")
	be.Equal(t, firstNonEmpty("", ""), "")
}

func TestCacheHitKeepsWarnings(t *testing.T) {
	var diag bytes.Buffer
	util.SetOutput(&diag)
	t.Cleanup(func() { util.SetOutput(os.Stderr) })

	dir := t.TempDir()
	cfg := testConfig(t)
	cfg.SetWarning(config.WarnShadow, true)
	cfg.CacheDir = filepath.Join(dir, "cache")
	d := &driver{cfg: cfg, mode: modeAsm, stdout: &bytes.Buffer{}}

	src := []byte("(let ((x 1)) (let ((x 2)) x))")
	root, _, err := d.parse(writeSource(t, dir, "shadow.lisp", string(src)))
	be.Err(t, err, nil)

	first, err := d.assembly(root, src)
	be.Err(t, err, nil)
	be.Equal(t, strings.Count(diag.String(), "[-Wshadow]"), 1)

	second, err := d.assembly(root, src)
	be.Err(t, err, nil)
	be.Equal(t, second, first)
	be.Equal(t, strings.Count(diag.String(), "[-Wshadow]"), 2)
}

func TestAssembleAndLinkSplitsCC(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found")
	}
	dir := t.TempDir()
	script := writeSource(t, dir, "fakecc.sh", `while [ $# -gt 0 ]; do
  if [ "$1" = -o ]; then out=$2; fi
  last=$1
  shift
done
echo "linked $last" > "$out"
`)

	cfg := testConfig(t)
	cfg.CC = "sh " + script
	cfg.LinkerArgs = []string{"-lm"}
	out := filepath.Join(dir, "prog")
	be.Err(t, assembleAndLink(cfg, out, ".text\n"), nil)
	data, err := os.ReadFile(out)
	be.Err(t, err, nil)
	be.Equal(t, string(data), "linked -lm\n")

	cfg.CC = "  "
	be.Err(t, assembleAndLink(cfg, out, ".text\n"), "no C compiler configured")
}
