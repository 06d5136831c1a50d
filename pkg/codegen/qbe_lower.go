package codegen

import (
	"fmt"

	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/ir"
	"github.com/xplshn/glisp/pkg/token"
)

// irScope maps identifiers to SSA values. Like Env it is persistent.
type irScope struct {
	name string
	val  ir.Value
	next *irScope
}

func (s *irScope) bind(name string, val ir.Value) *irScope {
	return &irScope{name: name, val: val, next: s}
}

func (s *irScope) lookup(name string) (ir.Value, bool) {
	for ; s != nil; s = s.next {
		if s.name == name {
			return s.val, true
		}
	}
	return nil, false
}

// irGen lowers the AST to SSA form for the QBE backend. It shares the
// function table and error kinds with the instruction-level lowering.
type irGen struct {
	ctx          *Context
	prog         *ir.Program
	currentFunc  *ir.Func
	currentBlock *ir.BasicBlock
	tempCount    int
	labelCount   int
	word         ir.Type
}

// GenerateIR lowers a whole program to SSA form. The entry point takes the
// heap pointer, like the instruction-level entry.
func (ctx *Context) GenerateIR(root *ast.Node) (*ir.Program, error) {
	prog, ok := root.Data.(ast.ProgramNode)
	if !ok {
		return nil, errorf(ErrUnsupported, root.Tok, "expected a program")
	}
	g := &irGen{
		ctx:  ctx,
		prog: &ir.Program{WordSize: ctx.cfg.WordSize},
		word: ir.WordType(ctx.cfg.WordSize),
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

	for _, def := range defs {
		if err := g.codegenFunc(def); err != nil {
			return nil, err
		}
	}

	entry := &ir.Func{Name: EntrySymbol, ReturnType: g.word, Exported: true}
	entry.Params = []*ir.Param{{Name: "heap", Typ: g.word, Val: &ir.Temporary{Name: "heap", ID: -1}}}
	g.beginFunc(entry)
	var result ir.Value = &ir.Const{Value: asm.NilValue}
	for _, expr := range exprs {
		val, err := g.codegenExpr(nil, expr)
		if err != nil {
			return nil, err
		}
		result = val
	}
	g.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{result}})
	ctx.warnUncalled()
	return g.prog, nil
}

func (g *irGen) beginFunc(fn *ir.Func) {
	g.prog.Funcs = append(g.prog.Funcs, fn)
	g.currentFunc = fn
	g.tempCount, g.labelCount = 0, 0
	g.startBlock(&ir.Label{Name: "start"})
}

func (g *irGen) newTemp() *ir.Temporary {
	t := &ir.Temporary{ID: g.tempCount}
	g.tempCount++
	return t
}

func (g *irGen) newLabel() *ir.Label {
	l := &ir.Label{Name: fmt.Sprintf("L%d", g.labelCount)}
	g.labelCount++
	return l
}

func (g *irGen) startBlock(label *ir.Label) {
	block := &ir.BasicBlock{Label: label}
	g.currentFunc.Blocks = append(g.currentFunc.Blocks, block)
	g.currentBlock = block
}

func (g *irGen) addInstr(instr *ir.Instruction) {
	g.currentBlock.Instructions = append(g.currentBlock.Instructions, instr)
}

// emit adds a value-producing instruction and returns its result.
func (g *irGen) emit(op ir.Op, args ...ir.Value) ir.Value {
	res := g.newTemp()
	g.addInstr(&ir.Instruction{Op: op, Typ: g.word, OperandType: g.word, Result: res, Args: args})
	return res
}

func word(v int64) ir.Value { return &ir.Const{Value: v} }

func (g *irGen) codegenFunc(def *ast.Node) error {
	d := def.Data.(ast.FuncDefNode)
	info := g.ctx.funcs[d.Name]
	fn := &ir.Func{Name: info.Label, ReturnType: g.word}

	var scope *irScope
	for i, p := range d.Params {
		name, _ := identName(p)
		val := &ir.Temporary{Name: "arg", ID: i}
		fn.Params = append(fn.Params, &ir.Param{Name: name, Typ: g.word, Val: val})
		scope = scope.bind(name, val)
	}

	g.beginFunc(fn)
	result, err := g.codegenExpr(scope, d.Body)
	if err != nil {
		return err
	}
	g.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{result}})
	return nil
}

// boolFromFlag turns a 0/1 comparison result into a tagged boolean.
func (g *irGen) boolFromFlag(flag ir.Value) ir.Value {
	shifted := g.emit(ir.OpShl, flag, word(asm.BoolShift))
	return g.emit(ir.OpOr, shifted, word(asm.BoolTag))
}

func (g *irGen) tagTest(v ir.Value, mask, tag int64) ir.Value {
	masked := g.emit(ir.OpAnd, v, word(mask))
	return g.boolFromFlag(g.emit(ir.OpCEq, masked, word(tag)))
}

func (g *irGen) codegenExpr(scope *irScope, node *ast.Node) (ir.Value, error) {
	if node == nil {
		return nil, errorf(ErrUnsupported, token.Token{}, "missing expression")
	}
	switch d := node.Data.(type) {
	case ast.NumberNode:
		return word(int64(asm.NumOperand(d.Value))), nil
	case ast.BoolNode:
		return word(int64(asm.BoolOperand(d.Value))), nil
	case ast.NilNode:
		return word(asm.NilValue), nil
	case ast.IdentNode:
		if v, ok := scope.lookup(d.Name); ok {
			return v, nil
		}
		if _, isFunc := g.ctx.funcs[d.Name]; isFunc {
			return nil, errorf(ErrUnresolved, node.Tok, "'%s' is a function, not a value; call it as (%s ...)", d.Name, d.Name)
		}
		return nil, errorf(ErrUnresolved, node.Tok, "'%s' is not bound", d.Name)
	case ast.UnaryOpNode:
		v, err := g.codegenExpr(scope, d.Expr)
		if err != nil {
			return nil, err
		}
		return g.codegenUnary(node, d.Op, v)
	case ast.BinaryOpNode:
		l, err := g.codegenExpr(scope, d.Left)
		if err != nil {
			return nil, err
		}
		r, err := g.codegenExpr(scope, d.Right)
		if err != nil {
			return nil, err
		}
		return g.codegenBinary(node, d.Op, l, r)
	case ast.IfNode:
		return g.codegenIf(scope, d)
	case ast.DoNode:
		var last ir.Value
		for _, expr := range d.Exprs {
			v, err := g.codegenExpr(scope, expr)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	case ast.LetNode:
		for _, b := range d.Bindings {
			v, err := g.codegenExpr(scope, b.Value)
			if err != nil {
				return nil, err
			}
			scope = scope.bind(b.Name, v)
		}
		return g.codegenExpr(scope, d.Body)
	case ast.FuncCallNode:
		return g.codegenCall(scope, node)
	case ast.FuncDefNode:
		return nil, errorf(ErrUnsupported, node.Tok, "function '%s' must be defined at the top level", d.Name)
	}
	return nil, errorf(ErrUnsupported, node.Tok, "cannot compile %s as an expression", describe(node))
}

func (g *irGen) codegenUnary(node *ast.Node, op ast.Prim, v ir.Value) (ir.Value, error) {
	switch op {
	case ast.Add1:
		return g.emit(ir.OpAdd, v, word(int64(asm.NumOperand(1)))), nil
	case ast.Sub1:
		return g.emit(ir.OpSub, v, word(int64(asm.NumOperand(1)))), nil
	case ast.IsZero:
		return g.boolFromFlag(g.emit(ir.OpCEq, v, word(0))), nil
	case ast.Not:
		return g.boolFromFlag(g.emit(ir.OpCEq, v, word(asm.FalseValue))), nil
	case ast.IsNum:
		return g.tagTest(v, asm.IntMask, asm.IntTag), nil
	case ast.IsBool:
		return g.tagTest(v, asm.BoolMask, asm.BoolTag), nil
	case ast.IsEmpty:
		return g.tagTest(v, asm.NilMask, asm.NilTag), nil
	case ast.IsPair:
		return g.tagTest(v, asm.PairMask, asm.PairTag), nil
	case ast.IsVector:
		return g.tagTest(v, asm.VectorMask, asm.VectorTag), nil
	}
	return nil, errorf(ErrUnsupported, node.Tok, "'%s' is not a unary primitive", op)
}

func (g *irGen) codegenBinary(node *ast.Node, op ast.Prim, l, r ir.Value) (ir.Value, error) {
	switch op {
	case ast.Plus:
		return g.emit(ir.OpAdd, l, r), nil
	case ast.Minus:
		return g.emit(ir.OpSub, l, r), nil
	case ast.Eq:
		return g.boolFromFlag(g.emit(ir.OpCEq, l, r)), nil
	case ast.Lt:
		return g.boolFromFlag(g.emit(ir.OpCLt, l, r)), nil
	case ast.Times:
		return g.emit(ir.OpMul, l, g.emit(ir.OpSar, r, word(asm.IntShift))), nil
	case ast.Div:
		return g.codegenDiv(l, r), nil
	}
	return nil, errorf(ErrUnsupported, node.Tok, "'%s' is not a binary primitive", op)
}

// codegenDiv yields 0 for a zero divisor on every target, as sdiv does on
// arm64.
func (g *irGen) codegenDiv(l, r ir.Value) ir.Value {
	divL, zeroL, endL := g.newLabel(), g.newLabel(), g.newLabel()
	// jnz only looks at the low word, so test the full divisor first.
	nonzero := g.emit(ir.OpCNeq, r, word(0))
	g.addInstr(&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{nonzero, divL, zeroL}})

	g.startBlock(divL)
	quot := g.emit(ir.OpShl, g.emit(ir.OpDiv, l, r), word(asm.IntShift))
	g.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{endL}})

	g.startBlock(zeroL)
	g.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{endL}})

	g.startBlock(endL)
	res := g.newTemp()
	g.addInstr(&ir.Instruction{Op: ir.OpPhi, Typ: g.word, Result: res, Args: []ir.Value{divL, quot, zeroL, word(0)}})
	return res
}

func (g *irGen) codegenIf(scope *irScope, d ast.IfNode) (ir.Value, error) {
	thenL, elseL, endL := g.newLabel(), g.newLabel(), g.newLabel()
	res := g.newTemp()

	cond, err := g.codegenExpr(scope, d.Cond)
	if err != nil {
		return nil, err
	}
	truthy := g.emit(ir.OpCNeq, cond, word(asm.FalseValue))
	g.addInstr(&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{truthy, thenL, elseL}})

	g.startBlock(thenL)
	thenVal, err := g.codegenExpr(scope, d.Then)
	if err != nil {
		return nil, err
	}
	thenPred := g.currentBlock.Label
	g.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{endL}})

	g.startBlock(elseL)
	elseVal, err := g.codegenExpr(scope, d.Else)
	if err != nil {
		return nil, err
	}
	elsePred := g.currentBlock.Label
	g.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{endL}})

	g.startBlock(endL)
	g.addInstr(&ir.Instruction{Op: ir.OpPhi, Typ: g.word, Result: res, Args: []ir.Value{thenPred, thenVal, elsePred, elseVal}})
	return res, nil
}

func (g *irGen) codegenCall(scope *irScope, node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.FuncCallNode)
	info, ok := g.ctx.funcs[d.Name]
	if !ok {
		if _, isVar := scope.lookup(d.Name); isVar {
			return nil, errorf(ErrUnsupported, node.Tok, "'%s' is a variable; only functions introduced with define can be called", d.Name)
		}
		return nil, errorf(ErrUnresolved, node.Tok, "call to undefined function '%s'", d.Name)
	}
	if len(d.Args) != len(info.Params) {
		return nil, errorf(ErrArity, node.Tok, "'%s' expects %d argument(s), got %d", d.Name, len(info.Params), len(d.Args))
	}
	info.Called = true

	args := []ir.Value{&ir.Global{Name: info.Label}}
	argTypes := make([]ir.Type, len(d.Args))
	for i, arg := range d.Args {
		v, err := g.codegenExpr(scope, arg)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		argTypes[i] = g.word
	}
	res := g.newTemp()
	g.addInstr(&ir.Instruction{Op: ir.OpCall, Typ: g.word, Result: res, Args: args, ArgTypes: argTypes})
	return res, nil
}
