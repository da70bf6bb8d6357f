package vm

import (
	"strings"
	"testing"
)

func TestAllOpcodesHaveMetadata(t *testing.T) {
	for _, op := range AllOpcodes() {
		info := GetOpcodeInfo(op)
		if info.Name == "" || strings.HasPrefix(info.Name, "UNKNOWN") {
			t.Errorf("opcode 0x%02X has no metadata", byte(op))
		}
	}
}

func TestOpcodeCount(t *testing.T) {
	if got := OpcodeCount(); got != 30 {
		t.Errorf("OpcodeCount() = %d, want 30", got)
	}
	if got := len(AllOpcodes()); got != OpcodeCount() {
		t.Errorf("AllOpcodes() returned %d opcodes, want %d", got, OpcodeCount())
	}
}

func TestUnknownOpcode(t *testing.T) {
	info := GetOpcodeInfo(Opcode(0x00))
	if !strings.HasPrefix(info.Name, "UNKNOWN") {
		t.Errorf("unknown opcode name = %q, want UNKNOWN(...)", info.Name)
	}
	if got := Opcode(0xFF).String(); got != "UNKNOWN(0xFF)" {
		t.Errorf("String() = %q, want %q", got, "UNKNOWN(0xFF)")
	}
}

func TestOpcodeString(t *testing.T) {
	cases := map[Opcode]string{
		OpPushFloat: "push_float",
		OpPushFn:    "push_fn",
		OpJumpIf:    "jump_if",
		OpAdd:       "add",
		OpGet:       "get",
		OpPushArray: "push_array",
	}
	for op, want := range cases {
		if got := op.String(); got != want {
			t.Errorf("Opcode(0x%02X).String() = %q, want %q", byte(op), got, want)
		}
	}
}

func TestOperandLen(t *testing.T) {
	cases := []struct {
		op   Opcode
		want int
	}{
		{OpAdd, 0},
		{OpJump, 0},
		{OpPushFloat, 4},
		{OpPushInt, 4},
		{OpSwap, 8},
		{OpPushFn, 12},
		{OpPushStr, -1},
	}
	for _, tt := range cases {
		if got := tt.op.OperandLen(); got != tt.want {
			t.Errorf("%s.OperandLen() = %d, want %d", tt.op, got, tt.want)
		}
	}
}

func TestInstructionLen(t *testing.T) {
	if got := OpNeg.InstructionLen(); got != 1 {
		t.Errorf("neg.InstructionLen() = %d, want 1", got)
	}
	if got := OpPushInt.InstructionLen(); got != 5 {
		t.Errorf("push_int.InstructionLen() = %d, want 5", got)
	}
	if got := OpPushStr.InstructionLen(); got != -1 {
		t.Errorf("push_str.InstructionLen() = %d, want -1", got)
	}
}

func TestOpcodePredicates(t *testing.T) {
	for _, op := range []Opcode{OpJumpIf, OpJump, OpCall} {
		if !op.IsJump() {
			t.Errorf("%s.IsJump() = false, want true", op)
		}
	}
	if OpAdd.IsJump() {
		t.Error("add.IsJump() = true, want false")
	}

	for _, op := range []Opcode{OpAdd, OpSub, OpMul, OpDiv, OpMod, OpNeg} {
		if !op.IsArith() {
			t.Errorf("%s.IsArith() = false, want true", op)
		}
		if op.IsCompare() {
			t.Errorf("%s.IsCompare() = true, want false", op)
		}
	}

	for _, op := range []Opcode{OpLt, OpGt, OpLe, OpGe, OpEq, OpNe, OpAnd, OpOr, OpNot} {
		if !op.IsCompare() {
			t.Errorf("%s.IsCompare() = false, want true", op)
		}
		if op.IsArith() {
			t.Errorf("%s.IsArith() = true, want false", op)
		}
	}

	if OpGet.IsArith() || OpGet.IsCompare() || OpGet.IsJump() {
		t.Error("get should match no predicate")
	}
}

// The interpreter trusts the pop/push metadata when reporting stack
// effects, so fixed entries must agree with what the run loop does.
func TestOpcodeStackEffectTable(t *testing.T) {
	fixed := map[Opcode][2]int{
		OpPushFloat: {0, 1},
		OpPushFn:    {1, 1},
		OpLoad:      {1, 1},
		OpStore:     {2, 0},
		OpJumpIf:    {2, 0},
		OpJump:      {1, 0},
		OpNot:       {1, 1},
		OpGet:       {2, 1},
	}
	for op, want := range fixed {
		info := GetOpcodeInfo(op)
		if info.StackPop != want[0] || info.StackPush != want[1] {
			t.Errorf("%s stack effect = (%d, %d), want (%d, %d)",
				op, info.StackPop, info.StackPush, want[0], want[1])
		}
	}
	for _, op := range []Opcode{OpCall, OpPop, OpPushDict, OpPushArray} {
		if GetOpcodeInfo(op).StackPop != -1 {
			t.Errorf("%s should report a variable pop count", op)
		}
	}
}

// The byte values are the wire contract with the compiler that
// produces the streams, so every assignment is pinned here by value.
func TestOpcodeByteTable(t *testing.T) {
	wire := map[byte]string{
		0x20: "push_float",
		0x21: "push_str",
		0x22: "push_int",
		0x23: "push_fn",
		0x24: "take",
		0x25: "swap",
		0x26: "pop",
		0x31: "load",
		0x32: "store",
		0x40: "jump_if",
		0x41: "jump",
		0x42: "call",
		0x50: "add",
		0x51: "sub",
		0x52: "mul",
		0x53: "div",
		0x54: "mod",
		0x55: "neg",
		0x60: "lt",
		0x61: "gt",
		0x62: "eq",
		0x63: "ne",
		0x64: "le",
		0x65: "ge",
		0x66: "and",
		0x67: "or",
		0x68: "not",
		0x70: "get",
		0x71: "push_dict",
		0x72: "push_array",
	}
	if len(wire) != OpcodeCount() {
		t.Errorf("table pins %d opcodes, want %d", len(wire), OpcodeCount())
	}
	for b, want := range wire {
		if got := Opcode(b).String(); got != want {
			t.Errorf("byte 0x%02X decodes as %q, want %q", b, got, want)
		}
	}
}
