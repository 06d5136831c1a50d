package codegen

import (
	"bytes"
	"fmt"

	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// Generate takes a parsed program and a configuration, and produces the
	// target assembly as a byte buffer.
	Generate(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error)
}

// NewBackend returns the backend cfg selects.
func NewBackend(cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendAsm:
		return NewAsmBackend(), nil
	case config.BackendQBE:
		return NewQBEBackend(), nil
	}
	return nil, fmt.Errorf("unsupported backend '%s'", cfg.Backend)
}

type asmBackend struct{}

// NewAsmBackend lowers straight to AArch64 instructions.
func NewAsmBackend() Backend { return asmBackend{} }

func (asmBackend) Generate(root *ast.Node, cfg *config.Config) (*bytes.Buffer, error) {
	prog, err := NewContext(cfg).Compile(root)
	if err != nil {
		return nil, err
	}
	p := asm.NewPrinter(cfg.SymbolPrefix)
	if cfg.LabelPrefix != "" {
		p.LabelPrefix = cfg.LabelPrefix
	}
	var buf bytes.Buffer
	if err := p.Write(&buf, prog); err != nil {
		return nil, err
	}
	return &buf, nil
}
