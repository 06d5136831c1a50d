package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// expectations are read from comment lines of a test program:
//
//	; expect: 42
//	; expect-exit: 1
//	; expect-error: undefined variable
type expectations struct {
	output       []string
	exitCode     int
	compileError string
	hasOutput    bool
}

func (e expectations) present() bool { return e.hasOutput || e.compileError != "" }

func (e expectations) stdout() string {
	if len(e.output) == 0 {
		return ""
	}
	return strings.Join(e.output, "\n") + "\n"
}

func parseExpectations(source string) expectations {
	var exp expectations
	for _, line := range strings.Split(source, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, ";") {
			continue
		}
		directive, value, ok := strings.Cut(strings.TrimLeft(line, "; "), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch directive {
		case "expect":
			exp.output = append(exp.output, value)
			exp.hasOutput = true
		case "expect-exit":
			fmt.Sscanf(value, "%d", &exp.exitCode)
			exp.hasOutput = true
		case "expect-error":
			exp.compileError = value
		}
	}
	return exp
}

func executeCommand(ctx context.Context, command string, args ...string) Execution {
	startTime := time.Now()
	cmd := exec.CommandContext(ctx, command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout, cmd.Stderr = &stdout, &stderr

	err := cmd.Run()
	duration := time.Since(startTime)

	exitCode := 0
	timedOut := false
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			timedOut = true
			exitCode = 124
		case errors.As(err, &exitErr):
			exitCode = exitErr.ExitCode()
		default:
			exitCode = -1
			stderr.WriteString(err.Error())
		}
	}

	return Execution{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Duration: duration,
		TimedOut: timedOut,
	}
}

// compileAndRun builds sourceFile with the given compiler arguments and runs
// the result *runs times, keeping the fastest run. In simulator mode the
// compiler evaluates the program itself and the two steps collapse into one.
func compileAndRun(compilerArgs []string, sourceFile, tempDir, binaryID string) (*TargetResult, error) {
	if *simulate {
		return simulateRun(compilerArgs, sourceFile)
	}

	binaryPath := filepath.Join(tempDir, binaryID)
	args := append(append([]string{}, compilerArgs...), "-o", binaryPath, sourceFile)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	compileResult := executeCommand(ctx, *compiler, args...)
	result := &TargetResult{BinaryPath: binaryPath, Compile: compileResult}
	if compileResult.ExitCode != 0 || compileResult.TimedOut {
		return result, fmt.Errorf("compilation failed with exit code %d", compileResult.ExitCode)
	}

	result.Run = fastestRun(func(ctx context.Context) Execution {
		return executeCommand(ctx, binaryPath)
	})
	return result, nil
}

func simulateRun(compilerArgs []string, sourceFile string) (*TargetResult, error) {
	args := append(append([]string{}, compilerArgs...), "-r", sourceFile)
	run := fastestRun(func(ctx context.Context) Execution {
		return executeCommand(ctx, *compiler, args...)
	})
	result := &TargetResult{Compile: Execution{Stderr: run.Stderr, ExitCode: run.ExitCode, Duration: run.Duration, TimedOut: run.TimedOut}}
	if run.ExitCode != 0 || run.TimedOut {
		return result, fmt.Errorf("simulation failed with exit code %d", run.ExitCode)
	}
	result.Run = run
	return result, nil
}

// fastestRun keeps the quickest of *runs executions and flags programs whose
// output changes between runs.
func fastestRun(run func(ctx context.Context) Execution) Execution {
	var best Execution
	best.Duration = -1
	unstable := false
	var first string
	for i := 0; i < *runs; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		r := run(ctx)
		cancel()
		if i == 0 {
			first = r.Stdout
		} else if r.Stdout != first {
			unstable = true
		}
		if best.Duration < 0 || r.Duration < best.Duration {
			best = r
		}
		if r.TimedOut {
			best = r
			break
		}
	}
	best.UnstableOutput = unstable
	return best
}
