package vm

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"
)

// Program is a runnable instruction stream. The stream is flat:
// little-endian operands follow each opcode byte inline and execution
// begins at offset zero. Code offsets are plain integers, so programs
// carry no relocation or section structure.
type Program struct {
	Name string
	Code []byte
}

// NewProgram wraps raw bytecode in a Program.
func NewProgram(name string, code []byte) *Program {
	return &Program{Name: name, Code: code}
}

// Validate walks the instruction stream and checks that every opcode is
// known and every operand complete. Jump targets are not checked; they
// are ordinary stack values computed at run time.
func (p *Program) Validate() error {
	off := 0
	for off < len(p.Code) {
		n, err := InstrLen(p.Code, off)
		if err != nil {
			return err
		}
		off += n
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operand decoding
// ---------------------------------------------------------------------------

// ReadU32 decodes the little-endian uint32 at off.
func ReadU32(code []byte, off int) (uint32, error) {
	if off < 0 || off+4 > len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode reading u32 at 0x%04x", off)
	}
	return binary.LittleEndian.Uint32(code[off:]), nil
}

// ReadF32 decodes the little-endian float32 at off.
func ReadF32(code []byte, off int) (float32, error) {
	if off < 0 || off+4 > len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode reading f32 at 0x%04x", off)
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(code[off:])), nil
}

// ReadStr decodes a length-prefixed UTF-8 string at off, returning the
// string and the number of bytes consumed.
func ReadStr(code []byte, off int) (string, int, error) {
	n, err := ReadU32(code, off)
	if err != nil {
		return "", 0, fmt.Errorf("unexpected end of bytecode reading string length at 0x%04x", off)
	}
	start := off + 4
	end := start + int(n)
	if end > len(code) {
		return "", 0, fmt.Errorf("unexpected end of bytecode reading %d string bytes at 0x%04x", n, start)
	}
	s := string(code[start:end])
	if !utf8.ValidString(s) {
		return "", 0, fmt.Errorf("string at 0x%04x is not valid UTF-8", start)
	}
	return s, 4 + int(n), nil
}

// InstrLen returns the full length in bytes of the instruction starting
// at off, operands included.
func InstrLen(code []byte, off int) (int, error) {
	if off < 0 || off >= len(code) {
		return 0, fmt.Errorf("offset 0x%04x past end of bytecode", off)
	}
	op := Opcode(code[off])
	info, ok := opcodeInfoTable[op]
	if !ok {
		return 0, fmt.Errorf("unknown opcode 0x%02x at 0x%04x", byte(op), off)
	}
	n := 1
	for _, kind := range info.Operands {
		switch kind {
		case OperandU32, OperandF32:
			n += 4
		case OperandStr:
			slen, err := ReadU32(code, off+n)
			if err != nil {
				return 0, err
			}
			n += 4 + int(slen)
		}
	}
	if off+n > len(code) {
		return 0, fmt.Errorf("unexpected end of bytecode in %s operands at 0x%04x", op, off)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Builder
// ---------------------------------------------------------------------------

// Label names a code offset resolved during assembly.
type Label int

// Builder assembles an instruction stream. Labels stand in for offsets
// that are not known yet: PushLabel emits a push_int whose operand is
// backpatched once the label is marked. This is also how call sites push
// their return address and functions their entry point, since the
// machine has no dedicated address operands.
type Builder struct {
	code    []byte
	marks   []int   // label -> bound offset, -1 until marked
	patches [][]int // label -> operand offsets awaiting the mark
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Len returns the current stream length, which is also the offset the
// next instruction will be emitted at.
func (b *Builder) Len() int { return len(b.code) }

// Emit appends an opcode followed by u32 operands and returns its offset.
func (b *Builder) Emit(op Opcode, operands ...uint32) int {
	off := len(b.code)
	b.code = append(b.code, byte(op))
	for _, v := range operands {
		b.code = binary.LittleEndian.AppendUint32(b.code, v)
	}
	return off
}

// PushFloat emits a push_float instruction.
func (b *Builder) PushFloat(f float32) int {
	return b.Emit(OpPushFloat, math.Float32bits(f))
}

// PushInt emits a push_int instruction.
func (b *Builder) PushInt(n uint32) int {
	return b.Emit(OpPushInt, n)
}

// PushStr emits a push_str instruction with a length-prefixed payload.
func (b *Builder) PushStr(s string) int {
	off := b.Emit(OpPushStr, uint32(len(s)))
	b.code = append(b.code, s...)
	return off
}

// NewLabel allocates an unmarked label.
func (b *Builder) NewLabel() Label {
	b.marks = append(b.marks, -1)
	b.patches = append(b.patches, nil)
	return Label(len(b.marks) - 1)
}

// PushLabel emits a push_int of the label's offset. If the label is not
// marked yet a placeholder is emitted and patched later.
func (b *Builder) PushLabel(l Label) int {
	if b.marks[l] >= 0 {
		return b.Emit(OpPushInt, uint32(b.marks[l]))
	}
	off := b.Emit(OpPushInt, 0xFFFFFFFF)
	b.patches[l] = append(b.patches[l], off+1)
	return off
}

// Mark binds the label to the current offset and patches every pending
// push of it.
func (b *Builder) Mark(l Label) {
	off := len(b.code)
	b.marks[l] = off
	for _, at := range b.patches[l] {
		binary.LittleEndian.PutUint32(b.code[at:], uint32(off))
	}
	b.patches[l] = nil
}

// Bytes returns the assembled stream. Every pushed label must have been
// marked.
func (b *Builder) Bytes() ([]byte, error) {
	for l, m := range b.marks {
		if m < 0 && len(b.patches[l]) > 0 {
			return nil, fmt.Errorf("label %d pushed but never marked", l)
		}
	}
	return b.code, nil
}

// Program wraps the assembled stream in a named Program.
func (b *Builder) Program(name string) (*Program, error) {
	code, err := b.Bytes()
	if err != nil {
		return nil, err
	}
	return &Program{Name: name, Code: code}, nil
}
