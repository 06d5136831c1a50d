package asm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MaxMovImm is the widest immediate printed as a plain mov. Anything larger
// goes through the literal pool.
const MaxMovImm = 65535

// Printer renders instructions as assembler text. Local labels get
// LabelPrefix; C-visible symbols get SymbolPrefix ("_" on Apple, "" on ELF).
type Printer struct {
	LabelPrefix  string
	SymbolPrefix string
}

// NewPrinter returns a printer with the default local label marker.
func NewPrinter(symbolPrefix string) *Printer {
	return &Printer{LabelPrefix: "_", SymbolPrefix: symbolPrefix}
}

func (p *Printer) label(in Instruction) string {
	if in.Global {
		return p.SymbolPrefix + in.Label
	}
	return p.LabelPrefix + in.Label
}

func operand(o Operand) string {
	if o == nil {
		return "<none>"
	}
	return o.String()
}

// Format renders one instruction. Multi-line directives are joined by "\n"
// without a trailing newline.
func (p *Printer) Format(in Instruction) string {
	switch in.Op {
	case OpLabel:
		return p.label(in) + ":"
	case OpMov:
		if imm, ok := in.Src.(Imm); ok && (imm > MaxMovImm || imm < -MaxMovImm) {
			return fmt.Sprintf("\tldr %s, =%d", operand(in.Dst), int64(imm))
		}
		return fmt.Sprintf("\tmov %s, %s", operand(in.Dst), operand(in.Src))
	case OpCmp:
		return fmt.Sprintf("\tcmp %s, %s", operand(in.Dst), operand(in.Src))
	case OpCset:
		return fmt.Sprintf("\tcset %s, %s", operand(in.Dst), in.Cond)
	case OpAdr:
		return fmt.Sprintf("\tadr %s, %s", operand(in.Dst), p.label(in))
	case OpB:
		return "\tb " + p.label(in)
	case OpBcond:
		return fmt.Sprintf("\tb.%s %s", in.Cond, p.label(in))
	case OpBr:
		return "\tbr " + operand(in.Dst)
	case OpStr:
		return fmt.Sprintf("\tstr %s, %s", operand(in.Src), operand(in.Addr))
	case OpLdr:
		return fmt.Sprintf("\tldr %s, %s", operand(in.Dst), operand(in.Addr))
	case OpStp, OpLdp:
		return fmt.Sprintf("\t%s %s, %s, %s", in.Op, operand(in.Dst), operand(in.Src), operand(in.Addr))
	case OpBl:
		return "\tbl " + p.label(in)
	case OpRet:
		return "\tret"
	case OpSection:
		if strings.HasPrefix(in.Text, ".") {
			return in.Text
		}
		return ".section " + in.Text
	case OpGlobal:
		return ".global " + p.label(in)
	case OpExtern:
		return ".extern " + p.label(in)
	case OpQuad:
		return "\t.quad " + strconv.FormatInt(in.Value, 10)
	case OpQuadLabel:
		return "\t.quad " + p.label(in)
	case OpAscii:
		return "\t.ascii " + strconv.Quote(in.Text) + "\n\t.byte 0"
	case OpAlign:
		return ".align " + strconv.FormatInt(in.Value, 10)
	case OpComment:
		return "\t// " + in.Text
	}
	if in.Op.IsALU() {
		dst := operand(in.Dst)
		return fmt.Sprintf("\t%s %s, %s, %s", in.Op, dst, dst, operand(in.Src))
	}
	return "\t// unknown " + in.Op.String()
}

// Write renders prog one instruction per line.
func (p *Printer) Write(w io.Writer, prog []Instruction) error {
	bw := bufio.NewWriter(w)
	for _, in := range prog {
		if _, err := bw.WriteString(p.Format(in)); err != nil {
			return err
		}
		if err := bw.WriteByte('\n'); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// String renders prog to a string.
func (p *Printer) String(prog []Instruction) string {
	var sb strings.Builder
	_ = p.Write(&sb, prog)
	return sb.String()
}
