package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"

	"github.com/xplshn/glisp/pkg/cli"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/util"
)

func main() {
	app := cli.NewApp("glisp")
	app.Synopsis = "[options] <input.lisp> ..."
	app.Description = "A compiler for a small Lisp that emits AArch64 assembly, either directly or through QBE, and links it against a C runtime."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/glisp>"
	app.Since = 2025

	var (
		outFile    string
		target     string
		backend    string
		cc         string
		cacheDir   string
		configPath string
		linkerArgs []string
		jobs       int
		asmOnly    bool
		run        bool
		dumpIR     bool
		watchMode  bool
		verbose    bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.String(&target, "target", "t", "", "Set the target ABI (arm64, arm64_apple).", "target")
	fs.String(&backend, "backend", "b", config.BackendAsm, "Select the code generator (asm, qbe).", "backend")
	fs.Bool(&asmOnly, "asm", "S", false, "Stop after writing assembly.")
	fs.Bool(&run, "run", "r", false, "Run the program in the built-in simulator and print its value.")
	fs.Bool(&dumpIR, "dump-ir", "d", false, "Print the intermediate representation and exit.")
	fs.Bool(&watchMode, "watch", "w", false, "Rebuild whenever an input changes.")
	fs.Bool(&verbose, "verbose", "v", false, "Print progress information.")
	fs.Int(&jobs, "jobs", "j", 0, "Compile up to <n> inputs at once.", "n")
	fs.String(&cc, "cc", "", "", "C compiler driver used to assemble and link.", "path")
	fs.String(&cacheDir, "cache-dir", "", "", "Reuse assembly for unchanged inputs from <dir>.", "dir")
	fs.String(&configPath, "config", "c", "", "Read settings from <file> instead of the nearest glisp.yaml.", "file")
	fs.List(&linkerArgs, "linker-arg", "L", []string{}, "Pass an argument to the linker.", "arg")

	cfg := config.NewConfig()
	cfg.SetupFlagGroups(fs)

	app.Action = func(inputs []string) error {
		if len(inputs) == 0 {
			err := fmt.Errorf("no input files specified")
			util.Report(err)
			return err
		}
		cfg.Verbose = verbose

		// Settings layer as defaults, project file, environment, then flags.
		fileTarget, err := applyProjectFile(cfg, configPath, filepath.Dir(inputs[0]))
		if err != nil {
			util.Report(err)
			return err
		}
		envTarget, err := cfg.ApplyEnv()
		if err != nil {
			util.Report(err)
			return err
		}
		if fs.Changed("backend") {
			if err := cfg.SetBackend(backend); err != nil {
				util.Report(err)
				return err
			}
		}
		if cc != "" {
			cfg.CC = cc
		}
		if jobs > 0 {
			cfg.Jobs = jobs
		}
		if cacheDir != "" {
			cfg.CacheDir = cacheDir
		}
		cfg.LinkerArgs = append(cfg.LinkerArgs, linkerArgs...)
		if err := cfg.ApplyFlagGroups(fs); err != nil {
			util.Report(err)
			return err
		}
		if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, firstNonEmpty(target, envTarget, fileTarget)); err != nil {
			util.Report(err)
			return err
		}

		d := &driver{cfg: cfg, output: outFile, mode: modeLink, stdout: os.Stdout}
		switch {
		case dumpIR:
			d.mode = modeDumpIR
		case run:
			d.mode = modeRun
		case asmOnly:
			d.mode = modeAsm
		}
		if err := d.check(inputs); err != nil {
			util.Report(err)
			return err
		}

		failed := d.buildAll(inputs)
		if !watchMode {
			if failed > 0 {
				return fmt.Errorf("%d input(s) failed", failed)
			}
			return nil
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		if err := d.watch(ctx, inputs); err != nil {
			util.Report(err)
			return err
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func applyProjectFile(cfg *config.Config, explicit, dir string) (string, error) {
	path := explicit
	if path == "" {
		found, err := config.FindFile(dir)
		if err != nil {
			return "", err
		}
		path = found
	}
	if path == "" {
		return "", nil
	}
	f, err := config.LoadFile(path)
	if err != nil {
		return "", err
	}
	if cfg.Verbose {
		util.Info("using settings from %s", path)
	}
	return cfg.ApplyFile(f)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
