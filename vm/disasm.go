package vm

import (
	"fmt"
	"strconv"
	"strings"
)

// DisassembleInstr renders the instruction at off the way the assembler
// would write it, returning the line and the instruction length.
func DisassembleInstr(code []byte, off int) (string, int, error) {
	if off < 0 || off >= len(code) {
		return "", 0, fmt.Errorf("offset 0x%04x past end of bytecode", off)
	}
	op := Opcode(code[off])
	n, err := InstrLen(code, off)
	if err != nil {
		return "", 0, err
	}

	switch op {
	case OpPushFloat:
		f, err := ReadF32(code, off+1)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%04x  push_float %s", off, strconv.FormatFloat(float64(f), 'g', -1, 32)), n, nil

	case OpPushStr:
		s, _, err := ReadStr(code, off+1)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%04x  push_str %s", off, strconv.Quote(s)), n, nil

	case OpPushInt:
		v, err := ReadU32(code, off+1)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%04x  push_int %d", off, v), n, nil

	case OpPushFn:
		envCount, err := ReadU32(code, off+1)
		if err != nil {
			return "", 0, err
		}
		envDepth, err := ReadU32(code, off+5)
		if err != nil {
			return "", 0, err
		}
		frameSize, err := ReadU32(code, off+9)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%04x  push_fn env=%d depth=%d frame=%d", off, envCount, envDepth, frameSize), n, nil

	case OpSwap:
		a, err := ReadU32(code, off+1)
		if err != nil {
			return "", 0, err
		}
		b, err := ReadU32(code, off+5)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%04x  swap %d %d", off, a, b), n, nil

	case OpTake, OpPop, OpLoad, OpStore, OpPushDict, OpPushArray:
		v, err := ReadU32(code, off+1)
		if err != nil {
			return "", 0, err
		}
		return fmt.Sprintf("%04x  %s %d", off, op, v), n, nil

	default:
		return fmt.Sprintf("%04x  %s", off, op), n, nil
	}
}

// Disassemble returns a full disassembly of the bytecode, one
// instruction per line. On a malformed stream the lines decoded so far
// are returned along with the error.
func Disassemble(code []byte) (string, error) {
	var sb strings.Builder
	off := 0
	for off < len(code) {
		line, n, err := DisassembleInstr(code, off)
		if err != nil {
			return sb.String(), err
		}
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		off += n
	}
	return sb.String(), nil
}
