// Package sim executes compiler output without an assembler. It covers the
// subset of AArch64 that the code generator emits: integer registers, the
// stack pointer, NZCV flags, word-sized loads and stores, branches, calls and
// returns.
package sim

import (
	"errors"
	"fmt"

	"github.com/xplshn/glisp/pkg/asm"
)

const (
	DefaultStepLimit = 10_000_000
	DefaultStackTop  = 1 << 24
	DefaultHeapBase  = 1 << 28

	// haltAddr is the return address handed to the entry point; returning to
	// it ends the run.
	haltAddr = ^uint64(0)
)

var ErrStepLimit = errors.New("step limit exceeded")

// Fault is a run-time error raised at a particular instruction.
type Fault struct {
	PC    int
	Instr asm.Instruction
	Msg   string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("pc %d (%s): %s", f.PC, asm.NewPrinter("").Format(f.Instr), f.Msg)
}

type Machine struct {
	// Regs holds x0..x30; index asm.SP is the stack pointer.
	Regs       [asm.NumRegisters]uint64
	N, Z, C, V bool

	Memory    map[uint64]uint64
	StepLimit int
	Steps     int
	StackTop  uint64

	prog    []asm.Instruction
	labels  map[string]int
	symbols map[string]int
}

func NewMachine() *Machine {
	return &Machine{
		Memory:    make(map[uint64]uint64),
		StepLimit: DefaultStepLimit,
		StackTop:  DefaultStackTop,
	}
}

// Run loads prog and calls entry as a C function taking the heap pointer in
// x0. It returns x0 when entry returns.
func Run(prog []asm.Instruction, entry string) (uint64, error) {
	return NewMachine().Run(prog, entry)
}

func (m *Machine) load(prog []asm.Instruction) error {
	m.prog = prog
	m.labels = make(map[string]int)
	m.symbols = make(map[string]int)
	for i, in := range prog {
		if in.Op != asm.OpLabel {
			continue
		}
		table := m.labels
		if in.Global {
			table = m.symbols
		}
		if _, dup := table[in.Label]; dup {
			return fmt.Errorf("label %q defined twice", in.Label)
		}
		table[in.Label] = i
	}
	return nil
}

// Run executes prog starting at entry. The label is looked up among the
// C-visible symbols first, then among local labels.
func (m *Machine) Run(prog []asm.Instruction, entry string) (uint64, error) {
	if err := m.load(prog); err != nil {
		return 0, err
	}
	pc, ok := m.symbols[entry]
	if !ok {
		if pc, ok = m.labels[entry]; !ok {
			return 0, fmt.Errorf("entry point %q not found", entry)
		}
	}
	m.Regs[asm.SP] = m.StackTop
	m.Regs[asm.LR] = haltAddr
	m.Regs[asm.X0] = DefaultHeapBase
	m.Steps = 0

	for {
		if pc < 0 || pc >= len(prog) {
			return 0, fmt.Errorf("pc %d out of program bounds", pc)
		}
		if m.StepLimit > 0 && m.Steps >= m.StepLimit {
			return 0, ErrStepLimit
		}
		m.Steps++
		next, err := m.step(pc, prog[pc])
		if err == errHalt {
			return m.Regs[asm.X0], nil
		}
		if err != nil {
			return 0, err
		}
		pc = next
	}
}

func (m *Machine) fault(pc int, in asm.Instruction, format string, args ...interface{}) error {
	return &Fault{PC: pc, Instr: in, Msg: fmt.Sprintf(format, args...)}
}

func (m *Machine) value(o asm.Operand) (uint64, bool) {
	switch v := o.(type) {
	case asm.Register:
		return m.Regs[v], true
	case asm.Imm:
		return uint64(v), true
	}
	return 0, false
}

func (m *Machine) address(o asm.Operand) (uint64, bool) {
	switch a := o.(type) {
	case asm.Mem:
		return m.Regs[a.Base] + uint64(a.Offset), true
	case asm.MemReg:
		return m.Regs[a.Base] + m.Regs[a.Index], true
	}
	return 0, false
}

func (m *Machine) read(addr uint64) (uint64, error) {
	if addr%8 != 0 {
		return 0, fmt.Errorf("unaligned load from 0x%x", addr)
	}
	v, ok := m.Memory[addr]
	if !ok {
		return 0, fmt.Errorf("load from uninitialized memory at 0x%x", addr)
	}
	return v, nil
}

func (m *Machine) write(addr, v uint64) error {
	if addr%8 != 0 {
		return fmt.Errorf("unaligned store to 0x%x", addr)
	}
	m.Memory[addr] = v
	return nil
}

func (m *Machine) cond(c asm.Cond) bool {
	switch c {
	case asm.EQ:
		return m.Z
	case asm.NE:
		return !m.Z
	case asm.LT:
		return m.N != m.V
	case asm.GE:
		return m.N == m.V
	case asm.GT:
		return !m.Z && m.N == m.V
	case asm.LE:
		return m.Z || m.N != m.V
	}
	return false
}

func (m *Machine) compare(a, b uint64) {
	r := a - b
	m.N = int64(r) < 0
	m.Z = r == 0
	m.C = a >= b
	m.V = ((a^b)&(a^r))>>63 != 0
}

func (m *Machine) target(pc int, in asm.Instruction) (int, error) {
	table := m.labels
	if in.Global {
		table = m.symbols
	}
	t, ok := table[in.Label]
	if !ok {
		if in.Global {
			return 0, m.fault(pc, in, "call to external symbol %q", in.Label)
		}
		return 0, m.fault(pc, in, "undefined label %q", in.Label)
	}
	return t, nil
}

func (m *Machine) step(pc int, in asm.Instruction) (int, error) {
	next := pc + 1
	switch in.Op {
	case asm.OpLabel, asm.OpSection, asm.OpGlobal, asm.OpExtern, asm.OpAlign, asm.OpComment:
	case asm.OpQuad, asm.OpQuadLabel, asm.OpAscii:
		return 0, m.fault(pc, in, "executing data")

	case asm.OpMov:
		v, ok := m.value(in.Src)
		if !ok {
			return 0, m.fault(pc, in, "bad source operand")
		}
		m.Regs[in.Dst.(asm.Register)] = v

	case asm.OpAdd, asm.OpSub, asm.OpMul, asm.OpSdiv, asm.OpLsl, asm.OpLsr, asm.OpAsr, asm.OpAnd, asm.OpOrr:
		d, ok := in.Dst.(asm.Register)
		if !ok {
			return 0, m.fault(pc, in, "destination is not a register")
		}
		s, ok := m.value(in.Src)
		if !ok {
			return 0, m.fault(pc, in, "bad source operand")
		}
		m.Regs[d] = alu(in.Op, m.Regs[d], s)

	case asm.OpCmp:
		a, ok := m.value(in.Dst)
		b, ok2 := m.value(in.Src)
		if !ok || !ok2 {
			return 0, m.fault(pc, in, "bad compare operands")
		}
		m.compare(a, b)

	case asm.OpCset:
		var v uint64
		if m.cond(in.Cond) {
			v = 1
		}
		m.Regs[in.Dst.(asm.Register)] = v

	case asm.OpAdr:
		t, err := m.target(pc, in)
		if err != nil {
			return 0, err
		}
		m.Regs[in.Dst.(asm.Register)] = uint64(t)

	case asm.OpB:
		return m.target(pc, in)

	case asm.OpBcond:
		if m.cond(in.Cond) {
			return m.target(pc, in)
		}

	case asm.OpBr:
		return int(m.Regs[in.Dst.(asm.Register)]), nil

	case asm.OpStr:
		addr, ok := m.address(in.Addr)
		v, ok2 := m.value(in.Src)
		if !ok || !ok2 {
			return 0, m.fault(pc, in, "bad store operands")
		}
		if err := m.write(addr, v); err != nil {
			return 0, m.fault(pc, in, "%v", err)
		}

	case asm.OpLdr:
		addr, ok := m.address(in.Addr)
		if !ok {
			return 0, m.fault(pc, in, "bad load address")
		}
		v, err := m.read(addr)
		if err != nil {
			return 0, m.fault(pc, in, "%v", err)
		}
		m.Regs[in.Dst.(asm.Register)] = v

	case asm.OpStp:
		addr, ok := m.address(in.Addr)
		if !ok {
			return 0, m.fault(pc, in, "bad store address")
		}
		a, _ := m.value(in.Dst)
		b, _ := m.value(in.Src)
		if err := m.write(addr, a); err != nil {
			return 0, m.fault(pc, in, "%v", err)
		}
		if err := m.write(addr+8, b); err != nil {
			return 0, m.fault(pc, in, "%v", err)
		}

	case asm.OpLdp:
		addr, ok := m.address(in.Addr)
		if !ok {
			return 0, m.fault(pc, in, "bad load address")
		}
		a, err := m.read(addr)
		if err != nil {
			return 0, m.fault(pc, in, "%v", err)
		}
		b, err := m.read(addr + 8)
		if err != nil {
			return 0, m.fault(pc, in, "%v", err)
		}
		m.Regs[in.Dst.(asm.Register)] = a
		m.Regs[in.Src.(asm.Register)] = b

	case asm.OpBl:
		t, err := m.target(pc, in)
		if err != nil {
			return 0, err
		}
		m.Regs[asm.LR] = uint64(next)
		return t, nil

	case asm.OpRet:
		lr := m.Regs[asm.LR]
		if lr == haltAddr {
			return 0, errHalt
		}
		return int(lr), nil

	default:
		return 0, m.fault(pc, in, "unsupported instruction")
	}
	return next, nil
}

// errHalt is returned by step when the entry point returns.
var errHalt = errors.New("halt")

func alu(op asm.Op, d, s uint64) uint64 {
	switch op {
	case asm.OpAdd:
		return d + s
	case asm.OpSub:
		return d - s
	case asm.OpMul:
		return d * s
	case asm.OpSdiv:
		if s == 0 {
			return 0
		}
		if int64(d) == -1<<63 && int64(s) == -1 {
			return d
		}
		return uint64(int64(d) / int64(s))
	case asm.OpLsl:
		return d << (s & 63)
	case asm.OpLsr:
		return d >> (s & 63)
	case asm.OpAsr:
		return uint64(int64(d) >> (s & 63))
	case asm.OpAnd:
		return d & s
	case asm.OpOrr:
		return d | s
	}
	return d
}
