package codegen

import (
	"fmt"
	"strings"

	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/ir"
)

type qbeBackend struct {
	out       *strings.Builder
	prog      *ir.Program
	currentFn *ir.Func
}

func NewQBEBackend() Backend { return &qbeBackend{} }

// GenerateIR lowers root and renders it as QBE intermediate language.
func (b *qbeBackend) GenerateIR(root *ast.Node, cfg *config.Config) (string, error) {
	prog, err := NewContext(cfg).GenerateIR(root)
	if err != nil {
		return "", err
	}
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.prog = prog
	b.gen()
	return qbeIRBuilder.String(), nil
}

// QBEText renders root as QBE intermediate language without assembling it.
func QBEText(root *ast.Node, cfg *config.Config) (string, error) {
	return (&qbeBackend{}).GenerateIR(root, cfg)
}

func (b *qbeBackend) gen() {
	for _, fn := range b.prog.Funcs {
		b.genFunc(fn)
	}
}

func (b *qbeBackend) genFunc(fn *ir.Func) {
	b.currentFn = fn
	retTypeStr := b.formatType(fn.ReturnType)
	if retTypeStr != "" {
		retTypeStr = " " + retTypeStr
	}

	export := ""
	if fn.Exported {
		export = "export "
	}
	fmt.Fprintf(b.out, "\n%sfunction%s $%s(", export, retTypeStr, fn.Name)
	for i, p := range fn.Params {
		fmt.Fprintf(b.out, "%s %s", b.formatType(p.Typ), b.formatValue(p.Val))
		if i < len(fn.Params)-1 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(") {\n")

	for _, block := range fn.Blocks {
		b.genBlock(block)
	}

	b.out.WriteString("}\n")
}

func (b *qbeBackend) genBlock(block *ir.BasicBlock) {
	fmt.Fprintf(b.out, "@%s\n", block.Label.Name)
	for _, instr := range block.Instructions {
		b.genInstr(instr)
	}
}

func (b *qbeBackend) genInstr(instr *ir.Instruction) {
	b.out.WriteString("\t")
	if instr.Op == ir.OpCall {
		b.genCall(instr)
		return
	}

	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}

	b.out.WriteString(b.formatOp(instr))

	if instr.Op == ir.OpPhi {
		for i := 0; i < len(instr.Args); i += 2 {
			fmt.Fprintf(b.out, " @%s %s", instr.Args[i].String(), b.formatValue(instr.Args[i+1]))
			if i+2 < len(instr.Args) {
				b.out.WriteString(",")
			}
		}
	} else {
		for i, arg := range instr.Args {
			b.out.WriteString(" ")
			if arg != nil {
				b.out.WriteString(b.formatValue(arg))
			}
			if i < len(instr.Args)-1 {
				b.out.WriteString(",")
			}
		}
	}
	b.out.WriteString("\n")
}

func (b *qbeBackend) genCall(instr *ir.Instruction) {
	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}

	fmt.Fprintf(b.out, "call %s(", b.formatValue(instr.Args[0]))
	for i, arg := range instr.Args[1:] {
		argType := ir.WordType(b.prog.WordSize)
		if i < len(instr.ArgTypes) {
			argType = instr.ArgTypes[i]
		}
		fmt.Fprintf(b.out, "%s %s", b.formatType(argType), b.formatValue(arg))
		if i < len(instr.Args)-2 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(")\n")
}

func (b *qbeBackend) formatValue(v ir.Value) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case *ir.Const:
		return fmt.Sprintf("%d", val.Value)
	case *ir.Global:
		return "$" + val.Name
	case *ir.Temporary:
		if val.ID == -1 {
			return "%" + val.Name
		}
		if val.Name != "" {
			return fmt.Sprintf("%%.%s_%d", val.Name, val.ID)
		}
		return fmt.Sprintf("%%t%d", val.ID)
	case *ir.Label:
		return "@" + val.Name
	default:
		return ""
	}
}

func (b *qbeBackend) formatType(t ir.Type) string {
	switch t {
	case ir.TypeW:
		return "w"
	case ir.TypeL:
		return "l"
	default:
		return ""
	}
}

func (b *qbeBackend) formatOp(instr *ir.Instruction) string {
	argType := instr.OperandType
	if argType == ir.TypeNone {
		argType = instr.Typ
	}
	if instr.Op.IsComparison() {
		return instr.Op.String() + b.formatType(argType)
	}
	return instr.Op.String()
}
