package vm

import "fmt"

// Opcode represents a bytecode instruction.
// Opcodes are organized into ranges by category for easy identification.
type Opcode byte

const (
	// ========================================================================
	// Constants and stack shuffling (0x20-0x2F)
	// ========================================================================

	OpPushFloat Opcode = 0x20 // Push float literal: push_float <value:f32>
	OpPushStr   Opcode = 0x21 // Push string literal: push_str <len:u32> <bytes>
	OpPushInt   Opcode = 0x22 // Push integer literal: push_int <value:u32>
	OpPushFn    Opcode = 0x23 // Build function: push_fn <envCount:u32> <envDepth:u32> <frameSize:u32>; pops entry address
	OpTake      Opcode = 0x24 // Push copy of value at depth: take <depth:u32>
	OpSwap      Opcode = 0x25 // Swap values at two depths: swap <a:u32> <b:u32>
	OpPop       Opcode = 0x26 // Discard top values: pop <count:u32>

	// ========================================================================
	// Memory (0x30-0x3F)
	// ========================================================================

	OpLoad  Opcode = 0x31 // Replace address on top with the cell it targets: load <offset:u32>
	OpStore Opcode = 0x32 // Pop address, then value; write the cell: store <offset:u32>

	// ========================================================================
	// Control flow (0x40-0x4F)
	// ========================================================================

	OpJumpIf Opcode = 0x40 // Pop target, then condition; jump if condition is nonzero
	OpJump   Opcode = 0x41 // Pop target; jump unconditionally
	OpCall   Opcode = 0x42 // Pop callee, argument count, then arguments; enter the function

	// ========================================================================
	// Arithmetic (0x50-0x5F)
	// ========================================================================

	OpAdd Opcode = 0x50 // Pop two, push sum (also concatenates strings, offsets references)
	OpSub Opcode = 0x51 // Pop two, push difference (a - b where b is on top)
	OpMul Opcode = 0x52 // Pop two, push product
	OpDiv Opcode = 0x53 // Pop two, push quotient (IEEE 754, division by zero gives Inf)
	OpMod Opcode = 0x54 // Pop two, push remainder
	OpNeg Opcode = 0x55 // Negate top of stack

	// ========================================================================
	// Comparison and logic (0x60-0x6F)
	// ========================================================================

	OpLt  Opcode = 0x60 // Pop two, push 1.0 if a < b else 0.0
	OpGt  Opcode = 0x61 // Pop two, push 1.0 if a > b else 0.0
	OpEq  Opcode = 0x62 // Pop two, push 1.0 if a == b else 0.0
	OpNe  Opcode = 0x63 // Pop two, push 1.0 if a != b else 0.0
	OpLe  Opcode = 0x64 // Pop two, push 1.0 if a <= b else 0.0
	OpGe  Opcode = 0x65 // Pop two, push 1.0 if a >= b else 0.0
	OpAnd Opcode = 0x66 // Pop two, push 1.0 if both nonzero else 0.0
	OpOr  Opcode = 0x67 // Pop two, push 1.0 if either nonzero else 0.0
	OpNot Opcode = 0x68 // Pop one, push 1.0 if zero else 0.0

	// ========================================================================
	// Objects (0x70-0x7F)
	// ========================================================================

	OpGet       Opcode = 0x70 // Pop key, then object reference; push field reference
	OpPushDict  Opcode = 0x71 // Build dictionary: push_dict <entries:u32>; pops value, key per entry
	OpPushArray Opcode = 0x72 // Build array: push_array <length:u32>; pops elements, last index first
)

// OperandKind identifies the encoding of a single inline operand.
type OperandKind uint8

const (
	OperandU32 OperandKind = iota // Little-endian uint32
	OperandF32                    // Little-endian IEEE 754 float32
	OperandStr                    // uint32 byte length followed by that many UTF-8 bytes
)

// OpcodeInfo provides metadata about each opcode for debugging and validation.
type OpcodeInfo struct {
	Name      string        // Assembler mnemonic
	Operands  []OperandKind // Inline operand encoding, in order
	StackPop  int           // How many values popped from stack (-1 = variable)
	StackPush int           // How many values pushed to stack
}

// opcodeInfoTable maps opcodes to their metadata.
var opcodeInfoTable = map[Opcode]OpcodeInfo{
	// Constants and stack shuffling
	OpPushFloat: {"push_float", []OperandKind{OperandF32}, 0, 1},
	OpPushStr:   {"push_str", []OperandKind{OperandStr}, 0, 1},
	OpPushInt:   {"push_int", []OperandKind{OperandU32}, 0, 1},
	OpPushFn:    {"push_fn", []OperandKind{OperandU32, OperandU32, OperandU32}, 1, 1},
	OpTake:      {"take", []OperandKind{OperandU32}, 0, 1},
	OpSwap:      {"swap", []OperandKind{OperandU32, OperandU32}, 0, 0},
	OpPop:       {"pop", []OperandKind{OperandU32}, -1, 0},

	// Memory
	OpLoad:  {"load", []OperandKind{OperandU32}, 1, 1},
	OpStore: {"store", []OperandKind{OperandU32}, 2, 0},

	// Control flow
	OpJumpIf: {"jump_if", nil, 2, 0},
	OpJump:   {"jump", nil, 1, 0},
	OpCall:   {"call", nil, -1, -1},

	// Arithmetic
	OpAdd: {"add", nil, 2, 1},
	OpSub: {"sub", nil, 2, 1},
	OpMul: {"mul", nil, 2, 1},
	OpDiv: {"div", nil, 2, 1},
	OpMod: {"mod", nil, 2, 1},
	OpNeg: {"neg", nil, 1, 1},

	// Comparison and logic
	OpLt:  {"lt", nil, 2, 1},
	OpGt:  {"gt", nil, 2, 1},
	OpEq:  {"eq", nil, 2, 1},
	OpNe:  {"ne", nil, 2, 1},
	OpLe:  {"le", nil, 2, 1},
	OpGe:  {"ge", nil, 2, 1},
	OpAnd: {"and", nil, 2, 1},
	OpOr:  {"or", nil, 2, 1},
	OpNot: {"not", nil, 1, 1},

	// Objects
	OpGet:       {"get", nil, 2, 1},
	OpPushDict:  {"push_dict", []OperandKind{OperandU32}, -1, 1},
	OpPushArray: {"push_array", []OperandKind{OperandU32}, -1, 1},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns a zero OpcodeInfo with name "UNKNOWN" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if info, ok := opcodeInfoTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op))}
}

// String returns the assembler mnemonic of an opcode.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns the number of inline operand bytes, or -1 when the
// length depends on the operands themselves (push_str).
func (op Opcode) OperandLen() int {
	n := 0
	for _, kind := range GetOpcodeInfo(op).Operands {
		switch kind {
		case OperandU32, OperandF32:
			n += 4
		case OperandStr:
			return -1
		}
	}
	return n
}

// InstructionLen returns the total length of an instruction including
// the opcode byte, or -1 when it depends on the operands.
func (op Opcode) InstructionLen() int {
	n := op.OperandLen()
	if n < 0 {
		return -1
	}
	return 1 + n
}

// IsJump returns true if this opcode transfers control.
func (op Opcode) IsJump() bool {
	return op == OpJumpIf || op == OpJump || op == OpCall
}

// IsArith returns true if this opcode is an arithmetic operation.
func (op Opcode) IsArith() bool {
	return op >= OpAdd && op <= OpNeg
}

// IsCompare returns true if this opcode is a comparison or logic operation.
func (op Opcode) IsCompare() bool {
	return op >= OpLt && op <= OpNot
}

// AllOpcodes returns a slice of all defined opcodes.
// Useful for testing that all opcodes have metadata.
func AllOpcodes() []Opcode {
	opcodes := make([]Opcode, 0, len(opcodeInfoTable))
	for op := range opcodeInfoTable {
		opcodes = append(opcodes, op)
	}
	return opcodes
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int {
	return len(opcodeInfoTable)
}
