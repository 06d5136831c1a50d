package sim

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/glisp/pkg/asm"
)

// entry wraps body in a minimal C-callable function.
func entry(body ...asm.Instruction) []asm.Instruction {
	prog := []asm.Instruction{asm.Global("main"), asm.Symbol("main")}
	prog = append(prog, body...)
	return append(prog, asm.Ret())
}

func run(t *testing.T, body ...asm.Instruction) uint64 {
	t.Helper()
	got, err := Run(entry(body...), "main")
	be.Err(t, err, nil)
	return got
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		body []asm.Instruction
		want int64
	}{
		{"mov", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(7))}, 7},
		{"add", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(7)), asm.Add(asm.X0, asm.Imm(5))}, 12},
		{"sub", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(7)), asm.Sub(asm.X0, asm.Imm(9))}, -2},
		{"mul", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(-6)), asm.Mov(asm.X1, asm.Imm(7)), asm.Mul(asm.X0, asm.X1)}, -42},
		{"sdiv", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(-7)), asm.Mov(asm.X1, asm.Imm(2)), asm.Sdiv(asm.X0, asm.X1)}, -3},
		{"sdiv by zero", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(9)), asm.Mov(asm.X1, asm.Imm(0)), asm.Sdiv(asm.X0, asm.X1)}, 0},
		{"lsl", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(3)), asm.Lsl(asm.X0, asm.Imm(4))}, 48},
		{"asr", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(-16)), asm.Asr(asm.X0, asm.Imm(2))}, -4},
		{"lsr", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(16)), asm.Lsr(asm.X0, asm.Imm(2))}, 4},
		{"and", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(0b1011)), asm.And(asm.X0, asm.Imm(0b0110))}, 0b0010},
		{"orr", []asm.Instruction{asm.Mov(asm.X0, asm.Imm(0b1000)), asm.Orr(asm.X0, asm.Imm(0b0011))}, 0b1011},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be.Equal(t, int64(run(t, tt.body...)), tt.want)
		})
	}
}

func TestConditions(t *testing.T) {
	tests := []struct {
		a, b int64
		cond asm.Cond
		want uint64
	}{
		{1, 1, asm.EQ, 1},
		{1, 2, asm.EQ, 0},
		{1, 2, asm.NE, 1},
		{-5, 3, asm.LT, 1},
		{3, -5, asm.LT, 0},
		{3, 3, asm.GE, 1},
		{4, 3, asm.GT, 1},
		{3, 3, asm.GT, 0},
		{3, 3, asm.LE, 1},
		{-1 << 62, 1 << 62, asm.LT, 1},
	}
	for _, tt := range tests {
		got := run(t,
			asm.Mov(asm.X1, asm.Imm(tt.a)),
			asm.Mov(asm.X2, asm.Imm(tt.b)),
			asm.Cmp(asm.X1, asm.X2),
			asm.Cset(asm.X0, tt.cond),
		)
		if got != tt.want {
			t.Errorf("cmp %d, %d; cset %s = %d, want %d", tt.a, tt.b, tt.cond, got, tt.want)
		}
	}
}

func TestBranches(t *testing.T) {
	got := run(t,
		asm.Mov(asm.X0, asm.Imm(1)),
		asm.Cmp(asm.X0, asm.Imm(1)),
		asm.Beq("yes"),
		asm.Mov(asm.X0, asm.Imm(100)),
		asm.B("done"),
		asm.Label("yes"),
		asm.Mov(asm.X0, asm.Imm(200)),
		asm.Label("done"),
	)
	be.Equal(t, got, uint64(200))

	got = run(t,
		asm.Adr(asm.X16, "target"),
		asm.Mov(asm.X0, asm.Imm(1)),
		asm.Br(asm.X16),
		asm.Mov(asm.X0, asm.Imm(2)),
		asm.Label("target"),
	)
	be.Equal(t, got, uint64(1))
}

func TestMemoryAndCalls(t *testing.T) {
	prog := []asm.Instruction{
		asm.Label("double"),
		asm.Sub(asm.SP, asm.Imm(16)),
		asm.Stp(asm.FP, asm.LR, asm.Mem{Base: asm.SP, Offset: 0}),
		asm.Mov(asm.FP, asm.SP),
		asm.Str(asm.X0, asm.Mem{Base: asm.FP, Offset: -8}),
		asm.Ldr(asm.X1, asm.Mem{Base: asm.FP, Offset: -8}),
		asm.Add(asm.X0, asm.X1),
		asm.Mov(asm.SP, asm.FP),
		asm.Ldp(asm.FP, asm.LR, asm.Mem{Base: asm.SP, Offset: 0}),
		asm.Add(asm.SP, asm.Imm(16)),
		asm.Ret(),

		asm.Symbol("main"),
		asm.Sub(asm.SP, asm.Imm(16)),
		asm.Stp(asm.FP, asm.LR, asm.Mem{Base: asm.SP, Offset: 0}),
		asm.Mov(asm.FP, asm.SP),
		asm.Mov(asm.X0, asm.Imm(21)),
		asm.Bl("double"),
		asm.Mov(asm.X17, asm.Imm(-4096)),
		asm.Str(asm.X0, asm.MemReg{Base: asm.FP, Index: asm.X17}),
		asm.Ldr(asm.X0, asm.MemReg{Base: asm.FP, Index: asm.X17}),
		asm.Mov(asm.SP, asm.FP),
		asm.Ldp(asm.FP, asm.LR, asm.Mem{Base: asm.SP, Offset: 0}),
		asm.Add(asm.SP, asm.Imm(16)),
		asm.Ret(),
	}
	m := NewMachine()
	got, err := m.Run(prog, "main")
	be.Err(t, err, nil)
	be.Equal(t, got, uint64(42))
	be.Equal(t, m.Regs[asm.SP], uint64(DefaultStackTop))
}

func TestFaults(t *testing.T) {
	_, err := Run(entry(asm.Ldr(asm.X0, asm.Mem{Base: asm.SP, Offset: -8})), "main")
	var fault *Fault
	be.True(t, errors.As(err, &fault))
	be.Equal(t, fault.PC, 2)

	_, err = Run(entry(asm.BlSymbol("lisp_error")), "main")
	be.Err(t, err, "call to external symbol")

	_, err = Run(entry(asm.B("nowhere")), "main")
	be.Err(t, err, "undefined label")

	_, err = Run(entry(), "missing")
	be.Err(t, err, "entry point")

	_, err = Run([]asm.Instruction{asm.Label("a"), asm.Label("a")}, "a")
	be.Err(t, err, "defined twice")
}

func TestStepLimit(t *testing.T) {
	m := NewMachine()
	m.StepLimit = 100
	_, err := m.Run(entry(asm.Label("loop"), asm.B("loop")), "main")
	be.Err(t, err, ErrStepLimit)
}
