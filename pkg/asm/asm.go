// Package asm is the AArch64 instruction vocabulary the compiler emits: a
// closed set of operands and instructions, a printer, and the value tags.
package asm

import (
	"fmt"
	"strconv"
)

type Register int

const (
	X0 Register = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	SP
	NumRegisters
)

const (
	FP = X29
	LR = X30
)

// ArgRegisters are the registers that carry the first eight arguments.
var ArgRegisters = [8]Register{X0, X1, X2, X3, X4, X5, X6, X7}

func (r Register) String() string {
	if r == SP {
		return "sp"
	}
	return "x" + strconv.Itoa(int(r))
}

// Operand is one of Register, Imm, Mem or MemReg.
type Operand interface {
	isOperand()
	String() string
}

// Imm is an immediate operand.
type Imm int64

// Mem addresses Base plus a constant byte offset.
type Mem struct {
	Base   Register
	Offset int64
}

// MemReg addresses Base plus the value of Index.
type MemReg struct {
	Base  Register
	Index Register
}

func (Register) isOperand() {}
func (Imm) isOperand()      {}
func (Mem) isOperand()      {}
func (MemReg) isOperand()   {}

func (i Imm) String() string    { return "#" + strconv.FormatInt(int64(i), 10) }
func (m Mem) String() string    { return fmt.Sprintf("[%s, #%d]", m.Base, m.Offset) }
func (m MemReg) String() string { return fmt.Sprintf("[%s, %s]", m.Base, m.Index) }

// Cond is a branch or cset condition on the flags left by cmp.
type Cond int

const (
	EQ Cond = iota
	NE
	LT
	GE
	GT
	LE
)

var condNames = [...]string{EQ: "eq", NE: "ne", LT: "lt", GE: "ge", GT: "gt", LE: "le"}

func (c Cond) String() string {
	if int(c) < len(condNames) {
		return condNames[c]
	}
	return "??"
}

// Invert returns the condition that holds exactly when c does not.
func (c Cond) Invert() Cond {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case GE:
		return LT
	case GT:
		return LE
	default:
		return GT
	}
}

type Op int

const (
	OpMov Op = iota
	OpAdd
	OpSub
	OpMul
	OpSdiv
	OpLsl
	OpLsr
	OpAsr
	OpCmp
	OpAnd
	OpOrr
	OpCset
	OpAdr
	OpB
	OpBcond
	OpBr
	OpStr
	OpLdr
	OpStp
	OpLdp
	OpBl
	OpRet
	OpLabel
	OpSection
	OpGlobal
	OpExtern
	OpQuad
	OpQuadLabel
	OpAscii
	OpAlign
	OpComment
)

var opNames = [...]string{
	OpMov: "mov", OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSdiv: "sdiv",
	OpLsl: "lsl", OpLsr: "lsr", OpAsr: "asr", OpCmp: "cmp", OpAnd: "and",
	OpOrr: "orr", OpCset: "cset", OpAdr: "adr", OpB: "b", OpBcond: "b.cond",
	OpBr: "br", OpStr: "str", OpLdr: "ldr", OpStp: "stp", OpLdp: "ldp",
	OpBl: "bl", OpRet: "ret", OpLabel: "label", OpSection: ".section",
	OpGlobal: ".global", OpExtern: ".extern", OpQuad: ".quad",
	OpQuadLabel: ".quad", OpAscii: ".ascii", OpAlign: ".align", OpComment: "//",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// IsALU reports whether o is printed in the two-operand "op d, d, s" form.
func (o Op) IsALU() bool {
	switch o {
	case OpAdd, OpSub, OpMul, OpSdiv, OpLsl, OpLsr, OpAsr, OpAnd, OpOrr:
		return true
	}
	return false
}

// Instruction is one line of output. Which fields are meaningful depends on
// Op; unused ones stay zero so that instructions compare with ==.
type Instruction struct {
	Op     Op
	Dst    Operand // destination register; first register of stp/ldp
	Src    Operand // source operand; second register of stp/ldp
	Addr   Operand // memory operand of str/ldr/stp/ldp
	Cond   Cond
	Label  string // branch target, label name or symbol
	Global bool   // Label is a C-visible symbol
	Value  int64  // .quad and .align argument
	Text   string // section name, string literal or comment text
}

func Mov(dst Register, src Operand) Instruction { return Instruction{Op: OpMov, Dst: dst, Src: src} }
func Add(dst Register, src Operand) Instruction { return Instruction{Op: OpAdd, Dst: dst, Src: src} }
func Sub(dst Register, src Operand) Instruction { return Instruction{Op: OpSub, Dst: dst, Src: src} }
func Mul(dst, src Register) Instruction         { return Instruction{Op: OpMul, Dst: dst, Src: src} }
func Sdiv(dst, src Register) Instruction        { return Instruction{Op: OpSdiv, Dst: dst, Src: src} }
func Lsl(dst Register, src Operand) Instruction { return Instruction{Op: OpLsl, Dst: dst, Src: src} }
func Lsr(dst Register, src Operand) Instruction { return Instruction{Op: OpLsr, Dst: dst, Src: src} }
func Asr(dst Register, src Operand) Instruction { return Instruction{Op: OpAsr, Dst: dst, Src: src} }
func Cmp(a Register, b Operand) Instruction     { return Instruction{Op: OpCmp, Dst: a, Src: b} }
func And(dst Register, src Operand) Instruction { return Instruction{Op: OpAnd, Dst: dst, Src: src} }
func Orr(dst Register, src Operand) Instruction { return Instruction{Op: OpOrr, Dst: dst, Src: src} }
func Cset(dst Register, c Cond) Instruction     { return Instruction{Op: OpCset, Dst: dst, Cond: c} }
func Adr(dst Register, label string) Instruction {
	return Instruction{Op: OpAdr, Dst: dst, Label: label}
}
func B(label string) Instruction             { return Instruction{Op: OpB, Label: label} }
func Bcond(c Cond, label string) Instruction { return Instruction{Op: OpBcond, Cond: c, Label: label} }
func Beq(label string) Instruction           { return Bcond(EQ, label) }
func Bne(label string) Instruction           { return Bcond(NE, label) }
func Blt(label string) Instruction           { return Bcond(LT, label) }
func Bge(label string) Instruction           { return Bcond(GE, label) }
func Bgt(label string) Instruction           { return Bcond(GT, label) }
func Ble(label string) Instruction           { return Bcond(LE, label) }
func Br(r Register) Instruction              { return Instruction{Op: OpBr, Dst: r} }

// Str stores src at addr.
func Str(src Register, addr Operand) Instruction { return Instruction{Op: OpStr, Src: src, Addr: addr} }

// Ldr loads dst from addr.
func Ldr(dst Register, addr Operand) Instruction { return Instruction{Op: OpLdr, Dst: dst, Addr: addr} }

func Stp(a, b Register, addr Operand) Instruction {
	return Instruction{Op: OpStp, Dst: a, Src: b, Addr: addr}
}
func Ldp(a, b Register, addr Operand) Instruction {
	return Instruction{Op: OpLdp, Dst: a, Src: b, Addr: addr}
}

// Bl calls a local label; BlSymbol calls a C-visible symbol.
func Bl(label string) Instruction        { return Instruction{Op: OpBl, Label: label} }
func BlSymbol(name string) Instruction   { return Instruction{Op: OpBl, Label: name, Global: true} }
func Ret() Instruction                   { return Instruction{Op: OpRet} }
func Label(name string) Instruction      { return Instruction{Op: OpLabel, Label: name} }
func Symbol(name string) Instruction     { return Instruction{Op: OpLabel, Label: name, Global: true} }
func Section(name string) Instruction    { return Instruction{Op: OpSection, Text: name} }
func Global(name string) Instruction     { return Instruction{Op: OpGlobal, Label: name, Global: true} }
func Extern(name string) Instruction     { return Instruction{Op: OpExtern, Label: name, Global: true} }
func Quad(v int64) Instruction           { return Instruction{Op: OpQuad, Value: v} }
func QuadLabel(label string) Instruction { return Instruction{Op: OpQuadLabel, Label: label} }
func Ascii(s string) Instruction         { return Instruction{Op: OpAscii, Text: s} }
func Align(n int64) Instruction          { return Instruction{Op: OpAlign, Value: n} }
func Comment(s string) Instruction       { return Instruction{Op: OpComment, Text: s} }
