package codegen

import (
	"strings"

	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/token"
	"github.com/xplshn/glisp/pkg/util"
)

// Lower compiles expr so that its value ends up in x0. Bindings in env are
// frame offsets; stackIndex is the next free slot below the frame pointer and
// every slot at or below it may be overwritten.
func (ctx *Context) Lower(env *Env, stackIndex int64, expr *ast.Node) ([]asm.Instruction, error) {
	var e emitter
	if err := ctx.lower(&e, env, stackIndex, expr); err != nil {
		return nil, err
	}
	return e.code, nil
}

func (ctx *Context) lower(e *emitter, env *Env, si int64, node *ast.Node) error {
	if node == nil {
		return errorf(ErrUnsupported, token.Token{}, "missing expression")
	}
	switch d := node.Data.(type) {
	case ast.NumberNode:
		e.emit(asm.Mov(asm.X0, asm.NumOperand(d.Value)))
	case ast.BoolNode:
		e.emit(asm.Mov(asm.X0, asm.BoolOperand(d.Value)))
	case ast.NilNode:
		e.emit(asm.Mov(asm.X0, asm.NilOperand()))
	case ast.IdentNode:
		return ctx.lowerIdent(e, env, node)
	case ast.UnaryOpNode:
		if err := ctx.lower(e, env, si, d.Expr); err != nil {
			return err
		}
		return ctx.lowerUnary(e, node, d.Op)
	case ast.BinaryOpNode:
		if err := ctx.lower(e, env, si, d.Left); err != nil {
			return err
		}
		e.store(asm.X0, si)
		if err := ctx.lower(e, env, si-wordSize, d.Right); err != nil {
			return err
		}
		return ctx.lowerBinary(e, node, d.Op, si)
	case ast.IfNode:
		return ctx.lowerIf(e, env, si, d)
	case ast.DoNode:
		for _, expr := range d.Exprs {
			if err := ctx.lower(e, env, si, expr); err != nil {
				return err
			}
		}
	case ast.LetNode:
		return ctx.lowerLet(e, env, si, d)
	case ast.FuncCallNode:
		return ctx.lowerCall(e, env, si, node)
	case ast.FuncDefNode:
		return errorf(ErrUnsupported, node.Tok, "function '%s' must be defined at the top level", d.Name)
	default:
		return errorf(ErrUnsupported, node.Tok, "cannot compile %s as an expression", describe(node))
	}
	return nil
}

func (ctx *Context) lowerIdent(e *emitter, env *Env, node *ast.Node) error {
	name, tok := identName(node)
	off, ok := env.Lookup(name)
	if ok {
		e.load(asm.X0, off)
		return nil
	}
	if _, isFunc := ctx.funcs[name]; isFunc {
		return errorf(ErrUnresolved, tok, "'%s' is a function, not a value; call it as (%s ...)", name, name)
	}
	if names := env.Names(); len(names) > 0 {
		if near := closest(name, names); near != "" {
			return errorf(ErrUnresolved, tok, "'%s' is not bound; did you mean '%s'?", name, near)
		}
	}
	return errorf(ErrUnresolved, tok, "'%s' is not bound", name)
}

func (ctx *Context) lowerUnary(e *emitter, node *ast.Node, op ast.Prim) error {
	tagTest := func(mask, tag int64) {
		e.emit(asm.And(asm.X0, asm.Imm(mask)), asm.Cmp(asm.X0, asm.Imm(tag)))
		e.emit(asm.ZFToBool()...)
	}
	switch op {
	case ast.Add1:
		e.emit(asm.Add(asm.X0, asm.NumOperand(1)))
	case ast.Sub1:
		e.emit(asm.Sub(asm.X0, asm.NumOperand(1)))
	case ast.IsZero:
		e.emit(asm.Cmp(asm.X0, asm.NumOperand(0)))
		e.emit(asm.ZFToBool()...)
	case ast.Not:
		e.emit(asm.Cmp(asm.X0, asm.BoolOperand(false)))
		e.emit(asm.ZFToBool()...)
	case ast.IsNum:
		tagTest(asm.IntMask, asm.IntTag)
	case ast.IsBool:
		tagTest(asm.BoolMask, asm.BoolTag)
	case ast.IsEmpty:
		tagTest(asm.NilMask, asm.NilTag)
	case ast.IsPair:
		tagTest(asm.PairMask, asm.PairTag)
	case ast.IsVector:
		tagTest(asm.VectorMask, asm.VectorTag)
	default:
		return errorf(ErrUnsupported, node.Tok, "'%s' is not a unary primitive", op)
	}
	return nil
}

// lowerBinary combines the left operand, spilled at si, with the right one
// in x0.
func (ctx *Context) lowerBinary(e *emitter, node *ast.Node, op ast.Prim, si int64) error {
	switch op {
	case ast.Plus:
		e.load(asm.X1, si)
		e.emit(asm.Add(asm.X0, asm.X1))
	case ast.Minus:
		e.emit(asm.Mov(asm.X1, asm.X0))
		e.load(asm.X0, si)
		e.emit(asm.Sub(asm.X0, asm.X1))
	case ast.Eq:
		e.load(asm.X1, si)
		e.emit(asm.Cmp(asm.X1, asm.X0))
		e.emit(asm.ZFToBool()...)
	case ast.Lt:
		e.load(asm.X1, si)
		e.emit(asm.Cmp(asm.X1, asm.X0))
		e.emit(asm.LtToBool()...)
	case ast.Times:
		// One operand is untagged so the product carries a single tag.
		e.load(asm.X1, si)
		e.emit(asm.Asr(asm.X1, asm.Imm(asm.IntShift)), asm.Mul(asm.X0, asm.X1))
	case ast.Div:
		// Both operands carry the tag, which cancels in the quotient.
		e.emit(asm.Mov(asm.X1, asm.X0))
		e.load(asm.X0, si)
		e.emit(asm.Sdiv(asm.X0, asm.X1), asm.Lsl(asm.X0, asm.Imm(asm.IntShift)))
	default:
		return errorf(ErrUnsupported, node.Tok, "'%s' is not a binary primitive", op)
	}
	return nil
}

func (ctx *Context) lowerIf(e *emitter, env *Env, si int64, d ast.IfNode) error {
	thenLabel := ctx.labels.Fresh("then")
	elseLabel := ctx.labels.Fresh("else")
	contLabel := ctx.labels.Fresh("continue")

	if err := ctx.lower(e, env, si, d.Cond); err != nil {
		return err
	}
	e.emit(
		asm.Cmp(asm.X0, asm.BoolOperand(false)),
		asm.Beq(elseLabel),
		asm.Label(thenLabel),
	)
	if err := ctx.lower(e, env, si, d.Then); err != nil {
		return err
	}
	e.emit(asm.B(contLabel), asm.Label(elseLabel))
	if err := ctx.lower(e, env, si, d.Else); err != nil {
		return err
	}
	e.emit(asm.Label(contLabel))
	return nil
}

// lowerLet evaluates bindings in order, each seeing the ones before it, and
// gives binding i the slot si-8i.
func (ctx *Context) lowerLet(e *emitter, env *Env, si int64, d ast.LetNode) error {
	for i, b := range d.Bindings {
		if err := ctx.lower(e, env, si, b.Value); err != nil {
			return err
		}
		e.store(asm.X0, si)
		if _, shadows := env.Lookup(b.Name); shadows {
			util.Warn(ctx.cfg, config.WarnShadow, b.Tok, "'%s' shadows an earlier binding", b.Name)
		}
		if !letBindingUsed(d, i) {
			util.Warn(ctx.cfg, config.WarnUnused, b.Tok, "'%s' is bound but never used", b.Name)
		}
		env = env.Bind(b.Name, si)
		si -= wordSize
	}
	return ctx.lower(e, env, si, d.Body)
}

// letBindingUsed reports whether binding i is referenced by a later
// initializer or the body before being shadowed.
func letBindingUsed(d ast.LetNode, i int) bool {
	name := d.Bindings[i].Name
	if strings.HasPrefix(name, "_") {
		return true
	}
	for _, later := range d.Bindings[i+1:] {
		if ast.References(later.Value, name) {
			return true
		}
		if later.Name == name {
			return false
		}
	}
	return ast.References(d.Body, name)
}

func describe(node *ast.Node) string {
	switch node.Type {
	case ast.Program:
		return "a whole program"
	case ast.FuncDef:
		return "a definition"
	}
	return "this form"
}

// closest returns the candidate within edit distance 2 of name, if any.
// Names shorter than the distance never match.
func closest(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range candidates {
		if d := editDistance(name, c); d < bestDist && d < len([]rune(name)) {
			best, bestDist = c, d
		}
	}
	return best
}

func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}
