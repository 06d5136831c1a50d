package asm

import "fmt"

// Value tags. Every runtime value is one 64-bit word whose low bits say
// what it is.
const (
	IntShift = 2
	IntMask  = 0b11
	IntTag   = 0b00

	BoolShift = 7
	BoolMask  = 0b1111111
	BoolTag   = 0b0011111

	PairMask = 0b111
	PairTag  = 0b010

	NilMask = 0b11111111
	NilTag  = 0b11111111

	VectorMask = 0b111
	VectorTag  = 0b101
)

const (
	FalseValue = 0<<BoolShift | BoolTag
	TrueValue  = 1<<BoolShift | BoolTag
	NilValue   = NilTag
)

// NumOperand is the tagged immediate for the integer n.
func NumOperand(n int64) Imm { return Imm(n << IntShift) }

// BoolOperand is the tagged immediate for b.
func BoolOperand(b bool) Imm {
	if b {
		return TrueValue
	}
	return FalseValue
}

// NilOperand is the tagged immediate for the empty list.
func NilOperand() Imm { return NilValue }

// FlagToBool turns the flags left by a cmp into a boolean in x0.
func FlagToBool(c Cond) []Instruction {
	return []Instruction{
		Mov(X0, Imm(0)),
		Cset(X0, c),
		Lsl(X0, Imm(BoolShift)),
		Orr(X0, Imm(BoolTag)),
	}
}

// ZFToBool is true when the last compare was equal.
func ZFToBool() []Instruction { return FlagToBool(EQ) }

// LtToBool is true when the last compare was signed less-than.
func LtToBool() []Instruction { return FlagToBool(LT) }

// Kind classifies a decoded word.
type Kind int

const (
	KindInt Kind = iota
	KindBool
	KindNil
	KindPair
	KindVector
)

var kindNames = [...]string{KindInt: "int", KindBool: "bool", KindNil: "nil", KindPair: "pair", KindVector: "vector"}

func (k Kind) String() string { return kindNames[k] }

// Value is a decoded runtime word. Int holds the integer or boolean payload;
// Addr holds the untagged address of heap values.
type Value struct {
	Kind Kind
	Int  int64
	Addr uint64
}

// DecodeValue inverts the tag scheme.
func DecodeValue(word uint64) (Value, error) {
	switch {
	case word&IntMask == IntTag:
		return Value{Kind: KindInt, Int: int64(word) >> IntShift}, nil
	case word&BoolMask == BoolTag:
		return Value{Kind: KindBool, Int: int64(word >> BoolShift)}, nil
	case word&NilMask == NilTag:
		return Value{Kind: KindNil}, nil
	case word&PairMask == PairTag:
		return Value{Kind: KindPair, Addr: word &^ PairMask}, nil
	case word&VectorMask == VectorTag:
		return Value{Kind: KindVector, Addr: word &^ VectorMask}, nil
	}
	return Value{}, fmt.Errorf("bad value: %d", word)
}

func (v Value) String() string {
	switch v.Kind {
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindBool:
		if v.Int != 0 {
			return "true"
		}
		return "false"
	case KindNil:
		return "()"
	case KindPair:
		return fmt.Sprintf("#<pair 0x%x>", v.Addr)
	default:
		return fmt.Sprintf("#<vector 0x%x>", v.Addr)
	}
}

// FormatValue renders word the way the runtime prints it.
func FormatValue(word uint64) string {
	v, err := DecodeValue(word)
	if err != nil {
		return fmt.Sprintf("BAD VALUE: %d", word)
	}
	return v.String()
}
