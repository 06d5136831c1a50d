//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
)

// Generate shells out to a qbe binary, since libqbe does not build here.
func (b *qbeBackend) Generate(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error) {
	if cfg.Verbose {
		fmt.Println("Self-contained QBE backend is not supported on Windows. Falling back to the system's 'qbe'.")
	}
	qbePath, err := exec.LookPath("qbe")
	if err != nil {
		return nil, fmt.Errorf("qbe not found in PATH: %w", err)
	}

	qbeIR, err := b.GenerateIR(root, cfg)
	if err != nil {
		return nil, err
	}

	inputFile, err := os.CreateTemp("", "glisp-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer os.Remove(inputFile.Name())
	if _, err = inputFile.WriteString(qbeIR); err != nil {
		inputFile.Close()
		return nil, err
	}
	if err := inputFile.Close(); err != nil {
		return nil, err
	}

	outputName := inputFile.Name() + ".s"
	defer os.Remove(outputName)
	cmd := exec.Command(qbePath, "-o", outputName, "-t", cfg.Target, inputFile.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nError: %w\n%s", qbeIR, err, out)
	}

	outputFile, err := os.Open(outputName)
	if err != nil {
		return nil, err
	}
	defer outputFile.Close()

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, outputFile); err != nil {
		return nil, err
	}

	return &asmBuf, nil
}
