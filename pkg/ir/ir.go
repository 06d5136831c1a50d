// Package ir is the SSA form handed to the QBE backend. Every value is a
// tagged 64-bit word, so there is a single integer type in practice; the
// narrower ones only appear as comparison operand types.
package ir

import "fmt"

type Op int

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpShl
	OpSar
	OpCEq
	OpCNeq
	OpCLt
	OpCopy
	OpJmp
	OpJnz
	OpRet
	OpCall
	OpPhi
)

var opNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpAnd: "and",
	OpOr: "or", OpShl: "shl", OpSar: "sar", OpCEq: "ceq", OpCNeq: "cne",
	OpCLt: "cslt", OpCopy: "copy", OpJmp: "jmp", OpJnz: "jnz", OpRet: "ret",
	OpCall: "call", OpPhi: "phi",
}

func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// IsComparison reports whether o yields 0 or 1 from two operands.
func (o Op) IsComparison() bool { return o >= OpCEq && o <= OpCLt }

type Type int

const (
	TypeNone Type = iota
	TypeW         // word (32-bit)
	TypeL         // long (64-bit)
)

type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int64 }
type Global struct{ Name string }
type Temporary struct {
	Name string
	ID   int
}
type Label struct{ Name string }

func (c *Const) isValue()     {}
func (g *Global) isValue()    {}
func (t *Temporary) isValue() {}
func (l *Label) isValue()     {}

func (c *Const) String() string     { return fmt.Sprintf("%d", c.Value) }
func (g *Global) String() string    { return g.Name }
func (t *Temporary) String() string { return t.Name }
func (l *Label) String() string     { return l.Name }

type Func struct {
	Name       string
	Params     []*Param
	ReturnType Type
	Exported   bool
	Blocks     []*BasicBlock
}

type Param struct {
	Name string
	Typ  Type
	Val  Value
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

type Instruction struct {
	Op          Op
	Typ         Type
	OperandType Type
	Result      Value
	Args        []Value
	ArgTypes    []Type
}

type Program struct {
	Funcs    []*Func
	WordSize int
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// WordType is the integer type of a machine word.
func WordType(wordSize int) Type {
	if wordSize == 4 {
		return TypeW
	}
	return TypeL
}

// Terminated reports whether b already ends in a jump or return.
func (b *BasicBlock) Terminated() bool {
	if len(b.Instructions) == 0 {
		return false
	}
	switch b.Instructions[len(b.Instructions)-1].Op {
	case OpJmp, OpJnz, OpRet:
		return true
	}
	return false
}
