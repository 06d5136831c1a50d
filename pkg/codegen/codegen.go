package codegen

import (
	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/token"
)

// EntrySymbol is the C-visible function the runtime calls.
const EntrySymbol = "lisp_entry"

// ErrorSymbol is the runtime's error reporter.
const ErrorSymbol = "lisp_error"

const (
	wordSize  = 8
	frameSize = 16
	// firstSlot is the stack index of the first temporary in every frame.
	firstSlot = -wordSize
	// paramBase is the offset of parameter 0 above the frame pointer.
	paramBase = frameSize
)

type funcInfo struct {
	Name   string
	Label  string
	Params []string
	Node   *ast.Node
	Called bool
}

// Context carries what lowering needs beyond the expression itself: the
// function table and the label generator. A Context lowers one program at a
// time; separate programs may use separate Contexts concurrently.
type Context struct {
	cfg    *config.Config
	labels *Gensym
	funcs  map[string]*funcInfo
	order  []*funcInfo
}

func NewContext(cfg *config.Config) *Context {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	return &Context{
		cfg:    cfg,
		labels: Labels,
		funcs:  make(map[string]*funcInfo),
	}
}

// WithLabels makes ctx mint labels from g instead of the shared generator.
func (ctx *Context) WithLabels(g *Gensym) *Context {
	ctx.labels = g
	return ctx
}

// emitter accumulates the instructions of one lowering.
type emitter struct {
	code []asm.Instruction
}

func (e *emitter) emit(ins ...asm.Instruction) { e.code = append(e.code, ins...) }

// fitsOffset reports whether off can be encoded directly in a load or store:
// the signed 9-bit unscaled form or the scaled unsigned 12-bit form.
func fitsOffset(off int64) bool {
	return (off >= -256 && off <= 255) || (off >= 0 && off%wordSize == 0 && off <= 4095*wordSize)
}

// slot returns the address of the frame slot at off. Offsets that do not fit
// an immediate are materialized in x17 first.
func (e *emitter) slot(off int64) asm.Operand {
	if fitsOffset(off) {
		return asm.Mem{Base: asm.FP, Offset: off}
	}
	e.emit(asm.Mov(asm.X17, asm.Imm(off)))
	return asm.MemReg{Base: asm.FP, Index: asm.X17}
}

func (e *emitter) store(src asm.Register, off int64) {
	addr := e.slot(off)
	e.emit(asm.Str(src, addr))
}

func (e *emitter) load(dst asm.Register, off int64) {
	addr := e.slot(off)
	e.emit(asm.Ldr(dst, addr))
}

// adjustSP moves the stack pointer by n bytes, down when sub is set.
func (e *emitter) adjustSP(sub bool, n int64) {
	op := asm.Add
	if sub {
		op = asm.Sub
	}
	if n <= 4095 {
		e.emit(op(asm.SP, asm.Imm(n)))
		return
	}
	e.emit(asm.Mov(asm.X17, asm.Imm(n)), op(asm.SP, asm.X17))
}

func (e *emitter) prologue() {
	e.emit(
		asm.Sub(asm.SP, asm.Imm(frameSize)),
		asm.Stp(asm.FP, asm.LR, asm.Mem{Base: asm.SP, Offset: 0}),
		asm.Mov(asm.FP, asm.SP),
	)
}

func (e *emitter) epilogue() {
	e.emit(
		asm.Mov(asm.SP, asm.FP),
		asm.Ldp(asm.FP, asm.LR, asm.Mem{Base: asm.SP, Offset: 0}),
		asm.Add(asm.SP, asm.Imm(frameSize)),
		asm.Ret(),
	)
}

func identName(n *ast.Node) (string, token.Token) {
	return n.Data.(ast.IdentNode).Name, n.Tok
}
