package codegen

import (
	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/util"
)

// Compile lowers a whole program: every function definition, then the entry
// point that evaluates the top-level expressions in order and returns the
// value of the last one (the empty list when there is none).
func (ctx *Context) Compile(root *ast.Node) ([]asm.Instruction, error) {
	prog, ok := root.Data.(ast.ProgramNode)
	if !ok {
		return nil, errorf(ErrUnsupported, root.Tok, "expected a program")
	}

	var defs, exprs []*ast.Node
	for _, form := range prog.Forms {
		if form.Type == ast.FuncDef {
			if err := ctx.Declare(form); err != nil {
				return nil, err
			}
			defs = append(defs, form)
		} else {
			exprs = append(exprs, form)
		}
	}

	var e emitter
	e.emit(
		asm.Section(".text"),
		asm.Global(EntrySymbol),
		asm.Extern(ErrorSymbol),
		asm.Align(2),
	)
	for _, def := range defs {
		code, err := ctx.LowerFunc(def)
		if err != nil {
			return nil, err
		}
		e.emit(code...)
	}

	e.emit(asm.Symbol(EntrySymbol))
	e.prologue()
	if len(exprs) == 0 {
		e.emit(asm.Mov(asm.X0, asm.NilOperand()))
	}
	for _, expr := range exprs {
		if err := ctx.lower(&e, nil, firstSlot, expr); err != nil {
			return nil, err
		}
	}
	e.epilogue()
	ctx.warnUncalled()
	return e.code, nil
}

func (ctx *Context) warnUncalled() {
	for _, info := range ctx.order {
		if !info.Called {
			util.Warn(ctx.cfg, config.WarnExtra, info.Node.Tok, "function '%s' is defined but never called", info.Name)
		}
	}
}

// Compile lowers root with a fresh Context.
func Compile(root *ast.Node, cfg *config.Config) ([]asm.Instruction, error) {
	return NewContext(cfg).Compile(root)
}
