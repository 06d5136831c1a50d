package codegen

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xplshn/glisp/pkg/asm"
	"github.com/xplshn/glisp/pkg/ast"
	"github.com/xplshn/glisp/pkg/config"
	"github.com/xplshn/glisp/pkg/util"
)

// Mangle turns a source function name into an assembler-safe label.
// Letters and digits are kept, '_' doubles and every other rune becomes
// '_' + hex + '_', so distinct names never collide.
func Mangle(name string) string {
	var sb strings.Builder
	sb.WriteString("fn_")
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case r == '_':
			sb.WriteString("__")
		default:
			fmt.Fprintf(&sb, "_%x_", r)
		}
	}
	return sb.String()
}

// Declare registers a top-level function so that calls to it can be lowered
// before or after its body.
func (ctx *Context) Declare(def *ast.Node) error {
	d, ok := def.Data.(ast.FuncDefNode)
	if !ok {
		return errorf(ErrUnsupported, def.Tok, "expected a function definition")
	}
	if prev, dup := ctx.funcs[d.Name]; dup {
		return errorf(ErrDuplicate, def.Tok, "function '%s' is already defined on line %d", d.Name, prev.Node.Tok.Line)
	}
	seen := make(map[string]bool, len(d.Params))
	params := make([]string, 0, len(d.Params))
	for _, p := range d.Params {
		name, tok := identName(p)
		if seen[name] {
			return errorf(ErrDuplicate, tok, "parameter '%s' appears twice in '%s'", name, d.Name)
		}
		seen[name] = true
		params = append(params, name)
	}
	info := &funcInfo{Name: d.Name, Label: Mangle(d.Name), Params: params, Node: def}
	ctx.funcs[d.Name] = info
	ctx.order = append(ctx.order, info)
	return nil
}

// LowerFunc compiles a declared function: label, frame setup, parameter
// spills, body and frame teardown. Parameter i lives at x29+16+8i; the first
// eight arrive in registers and are spilled there, the rest were stored
// there by the caller.
func (ctx *Context) LowerFunc(def *ast.Node) ([]asm.Instruction, error) {
	d := def.Data.(ast.FuncDefNode)
	info, ok := ctx.funcs[d.Name]
	if !ok || info.Node != def {
		if err := ctx.Declare(def); err != nil {
			return nil, err
		}
		info = ctx.funcs[d.Name]
	}

	var e emitter
	e.emit(asm.Label(info.Label))
	e.prologue()

	var env *Env
	for i, p := range d.Params {
		name, tok := identName(p)
		off := paramBase + int64(i)*wordSize
		if i < len(asm.ArgRegisters) {
			e.store(asm.ArgRegisters[i], off)
		}
		if !strings.HasPrefix(name, "_") && !ast.References(d.Body, name) {
			util.Warn(ctx.cfg, config.WarnUnused, tok, "parameter '%s' of '%s' is never used", name, d.Name)
		}
		env = env.Bind(name, off)
	}

	if err := ctx.lower(&e, env, firstSlot, d.Body); err != nil {
		return nil, err
	}
	e.epilogue()
	return e.code, nil
}

// outgoingSize is the stack space a call at si reserves: everything live
// above si plus room for the arguments, rounded to keep sp 16-byte aligned.
func outgoingSize(si int64, nargs int) int64 {
	return util.AlignUp(-si+wordSize*int64(max(nargs-1, 0)), 16)
}

func (ctx *Context) lowerCall(e *emitter, env *Env, si int64, node *ast.Node) error {
	d := node.Data.(ast.FuncCallNode)
	info, ok := ctx.funcs[d.Name]
	if !ok {
		if _, isVar := env.Lookup(d.Name); isVar {
			return errorf(ErrUnsupported, node.Tok, "'%s' is a variable; only functions introduced with define can be called", d.Name)
		}
		return errorf(ErrUnresolved, node.Tok, "call to undefined function '%s'", d.Name)
	}
	if len(d.Args) != len(info.Params) {
		return errorf(ErrArity, node.Tok, "'%s' expects %d argument(s), got %d", d.Name, len(info.Params), len(d.Args))
	}
	info.Called = true
	if len(d.Args) > len(asm.ArgRegisters) {
		util.Warn(ctx.cfg, config.WarnStackArgs, node.Tok, "call to '%s' passes %d arguments on the stack", d.Name, len(d.Args)-len(asm.ArgRegisters))
	}

	size := outgoingSize(si, len(d.Args))
	argSlot := func(i int) int64 { return -size + int64(i)*wordSize }

	// Later arguments sit higher in the outgoing area, so evaluating them
	// first keeps each argument's temporaries clear of the ones already
	// stored.
	for i := len(d.Args) - 1; i >= 0; i-- {
		if err := ctx.lower(e, env, argSlot(i), d.Args[i]); err != nil {
			return err
		}
		e.store(asm.X0, argSlot(i))
	}
	for i := 0; i < len(d.Args) && i < len(asm.ArgRegisters); i++ {
		e.load(asm.ArgRegisters[i], argSlot(i))
	}
	e.adjustSP(true, size)
	e.emit(asm.Bl(info.Label))
	e.adjustSP(false, size)
	return nil
}
