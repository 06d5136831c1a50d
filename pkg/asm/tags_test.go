package asm

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func TestOperands(t *testing.T) {
	be.Equal(t, NumOperand(0), Imm(0))
	be.Equal(t, NumOperand(5), Imm(20))
	be.Equal(t, NumOperand(-3), Imm(-12))
	be.Equal(t, BoolOperand(false), Imm(31))
	be.Equal(t, BoolOperand(true), Imm(159))
	be.Equal(t, NilOperand(), Imm(255))
}

func TestFlagToBool(t *testing.T) {
	want := []Instruction{
		Mov(X0, Imm(0)),
		Cset(X0, EQ),
		Lsl(X0, Imm(7)),
		Orr(X0, Imm(31)),
	}
	if diff := cmp.Diff(want, ZFToBool()); diff != "" {
		t.Errorf("ZFToBool mismatch (-want +got):\n%s", diff)
	}
	be.Equal(t, LtToBool()[1], Cset(X0, LT))
	be.Equal(t, len(FlagToBool(GE)), 4)
}

func TestTagsAreDisjoint(t *testing.T) {
	// Every canonical value matches its own tag test and no other.
	type check struct {
		name      string
		mask, tag uint64
	}
	checks := []check{
		{"int", IntMask, IntTag},
		{"bool", BoolMask, BoolTag},
		{"nil", NilMask, NilTag},
		{"pair", PairMask, PairTag},
		{"vector", VectorMask, VectorTag},
	}
	values := map[string][]uint64{
		"int":    {0, 4, 1 << 40, uint64(NumOperand(-7))},
		"bool":   {FalseValue, TrueValue},
		"nil":    {NilValue},
		"pair":   {0x1000 | PairTag},
		"vector": {0x2000 | VectorTag},
	}
	for kind, words := range values {
		for _, w := range words {
			for _, c := range checks {
				matches := w&c.mask == c.tag
				if c.name == kind && !matches {
					t.Errorf("%s value %#x fails its own tag test", kind, w)
				}
				if c.name != kind && matches {
					t.Errorf("%s value %#x also matches the %s tag", kind, w, c.name)
				}
			}
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		word uint64
		want string
	}{
		{uint64(NumOperand(42)), "42"},
		{uint64(NumOperand(-42)), "-42"},
		{FalseValue, "false"},
		{TrueValue, "true"},
		{NilValue, "()"},
		{0x1000 | PairTag, "#<pair 0x1000>"},
		{0x2000 | VectorTag, "#<vector 0x2000>"},
		{0b011, "BAD VALUE: 3"},
	}
	for _, tt := range tests {
		be.Equal(t, FormatValue(tt.word), tt.want)
	}

	v, err := DecodeValue(uint64(NumOperand(1 << 60)))
	be.Err(t, err, nil)
	be.Equal(t, v, Value{Kind: KindInt, Int: 1 << 60})
}
