package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/asm/sim"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/codegen"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/lexer"
	"github.com/xplshn/glisp/pkg/parser"
	lispruntime "github.com/xplshn/glisp/pkg/runtime"
	"github.com/xplshn/glisp/pkg/util"
)

type mode int

const (
	modeLink mode = iota
	modeAsm
	modeRun
	modeDumpIR
)

type driver struct {
	cfg    *config.Config
	output string
	mode   mode

	mu     sync.Mutex // guards stdout
	stdout io.Writer
}

// check rejects option combinations before any work starts.
func (d *driver) check(inputs []string) error {
	if d.output != "" && len(inputs) > 1 && d.mode != modeRun && d.mode != modeDumpIR {
		return fmt.Errorf("-o cannot be used with %d inputs", len(inputs))
	}
	if d.mode == modeRun && d.cfg.Backend != config.BackendAsm {
		return fmt.Errorf("--run needs the asm backend, not '%s'", d.cfg.Backend)
	}
	return nil
}

// buildAll compiles every input, at most cfg.Jobs at a time, and returns how
// many failed. Errors are reported as they happen.
func (d *driver) buildAll(inputs []string) int {
	sem := make(chan struct{}, max(d.cfg.Jobs, 1))
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for _, input := range inputs {
		wg.Add(1)
		go func(input string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := d.build(input, len(inputs)); err != nil {
				util.Report(err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}(input)
	}
	wg.Wait()
	return failed
}

func (d *driver) progress(format string, args ...interface{}) {
	if d.cfg.Verbose {
		d.mu.Lock()
		fmt.Fprintf(d.stdout, format+"\n", args...)
		d.mu.Unlock()
	}
}

func (d *driver) build(input string, ninputs int) error {
	d.progress("Parsing %s...", input)
	root, source, err := d.parse(input)
	if err != nil {
		return err
	}

	switch d.mode {
	case modeDumpIR:
		text, err := d.dump(root)
		if err != nil {
			return err
		}
		d.write(input, ninputs, text)
		return nil
	case modeRun:
		d.progress("Running %s in the simulator...", input)
		prog, err := codegen.Compile(root, d.cfg)
		if err != nil {
			return err
		}
		word, err := sim.Run(prog, codegen.EntrySymbol)
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		d.write(input, ninputs, asm.FormatValue(word)+"\n")
		return nil
	}

	d.progress("Generating code for %s with the '%s' backend...", input, d.cfg.Backend)
	text, err := d.assembly(root, source)
	if err != nil {
		return err
	}

	out := d.outputFor(input)
	if d.mode == modeAsm {
		if err := os.WriteFile(out, []byte(text), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		d.progress("Wrote %s", out)
		return nil
	}

	d.progress("Linking %s...", out)
	if err := assembleAndLink(d.cfg, out, text); err != nil {
		return fmt.Errorf("%s: assembler/linker failed: %w", input, err)
	}
	return nil
}

func (d *driver) parse(input string) (*ast.Node, []byte, error) {
	source, err := os.ReadFile(input)
	if err != nil {
		return nil, nil, fmt.Errorf("could not read file '%s': %w", input, err)
	}
	runes := []rune(string(source))
	idx := util.AddSourceFile(util.SourceFileRecord{Name: input, Content: runes})
	toks, err := lexer.Tokenize(runes, idx, d.cfg)
	if err != nil {
		return nil, nil, err
	}
	root, err := parser.NewParser(toks, d.cfg).Parse()
	if err != nil {
		return nil, nil, err
	}
	return root, source, nil
}

// dump renders the QBE IL for the qbe backend and the parsed program for
// the asm backend, which has no intermediate form.
func (d *driver) dump(root *ast.Node) (string, error) {
	if d.cfg.Backend == config.BackendQBE {
		return codegen.QBEText(root, d.cfg)
	}
	return root.String() + "\n", nil
}

// write prints text, headed by the input name when there are several.
func (d *driver) write(input string, ninputs int, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ninputs > 1 {
		fmt.Fprintf(d.stdout, "%s: ", input)
	}
	fmt.Fprint(d.stdout, text)
}

// outputFor names the artifact for input: -o when given, otherwise the input
// name with .s for assembly or without extension for executables.
func (d *driver) outputFor(input string) string {
	if d.output != "" {
		return d.output
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	if d.mode == modeAsm {
		return base + ".s"
	}
	if base == input {
		return base + ".out"
	}
	return base
}

// assembly generates the target assembly for root, going through the cache
// when one is configured.
func (d *driver) assembly(root *ast.Node, source []byte) (string, error) {
	var cached string
	if d.cfg.CacheDir != "" {
		cached = filepath.Join(d.cfg.CacheDir, cacheKey(d.cfg, source)+".s")
		if data, err := os.ReadFile(cached); err == nil {
			d.progress("Reusing %s", cached)
			if err := d.diagnose(root); err != nil {
				return "", err
			}
			return string(data), nil
		}
	}

	backend, err := codegen.NewBackend(d.cfg)
	if err != nil {
		return "", err
	}
	buf, err := backend.Generate(root, d.cfg)
	if err != nil {
		return "", err
	}

	if cached != "" {
		if err := os.MkdirAll(d.cfg.CacheDir, 0o755); err != nil {
			return "", fmt.Errorf("creating cache directory: %w", err)
		}
		if err := writeAtomic(cached, buf.Bytes()); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// diagnose lowers root only for its warnings, so a cache hit reports the
// same diagnostics as a fresh build.
func (d *driver) diagnose(root *ast.Node) error {
	for wt := config.Warning(0); wt < config.WarnCount; wt++ {
		if d.cfg.IsWarningEnabled(wt) {
			_, err := codegen.Compile(root, d.cfg)
			return err
		}
	}
	return nil
}

// cacheKey hashes the source with every setting that changes the generated
// assembly.
func cacheKey(cfg *config.Config, source []byte) string {
	h := xxhash.New()
	h.Write(source)
	fmt.Fprintf(h, "\x00%s\x00%s\x00%s\x00%s", cfg.Backend, cfg.Target, cfg.SymbolPrefix, cfg.LabelPrefix)

	var switches []string
	for ft, info := range cfg.Features {
		switches = append(switches, fmt.Sprintf("F%d=%t", ft, info.Enabled))
	}
	sort.Strings(switches)
	fmt.Fprintf(h, "\x00%s", strings.Join(switches, ","))
	return fmt.Sprintf("%016x", h.Sum64())
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".glisp-*.s")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

func assembleAndLink(cfg *config.Config, outFile, mainAsm string) error {
	dir, err := os.MkdirTemp("", "glisp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(dir)

	asmPath := filepath.Join(dir, "main.s")
	if err := os.WriteFile(asmPath, []byte(mainAsm), 0o644); err != nil {
		return fmt.Errorf("failed to write assembly: %w", err)
	}
	runtimePath, err := lispruntime.WriteTo(dir)
	if err != nil {
		return err
	}

	cc := strings.Fields(cfg.CC)
	if len(cc) == 0 {
		return fmt.Errorf("no C compiler configured")
	}
	args := append(append(cc[1:len(cc):len(cc)], "-o", outFile, asmPath, runtimePath), cfg.LinkerArgs...)
	cmd := exec.Command(cc[0], args...)
	var output bytes.Buffer
	cmd.Stdout, cmd.Stderr = &output, &output
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s command failed: %w\nOutput:\n%s", cfg.CC, err, output.String())
	}
	return nil
}
