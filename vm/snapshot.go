package vm

import (
	"fmt"
	"io"
	"strconv"
)

// Snapshot is a point-in-time view of the machine for debuggers.
// Everything in it is a copy; mutating it does not touch the running
// machine.
type Snapshot struct {
	PC      int
	Steps   uint64
	Halted  bool
	Stack   []Value
	HeapLen int
}

// Snapshot captures the current machine state.
func (in *Interp) Snapshot() Snapshot {
	return Snapshot{
		PC:      in.pc,
		Steps:   in.steps,
		Halted:  in.halted,
		Stack:   in.stack.Values(),
		HeapLen: in.heap.Len(),
	}
}

// Program returns the program the machine is executing.
func (in *Interp) Program() *Program { return in.prog }

// SetPC moves execution to the instruction at off. The offset must lie
// within the code stream; it is not checked to fall on an instruction
// boundary.
func (in *Interp) SetPC(off int) error {
	if off < 0 || off > len(in.prog.Code) {
		return fmt.Errorf("pc 0x%04x outside code of %d bytes", off, len(in.prog.Code))
	}
	in.pc = off
	return nil
}

// Skip advances past the next instruction without executing it.
func (in *Interp) Skip() error {
	if in.halted || in.pc >= len(in.prog.Code) {
		return nil
	}
	n, err := InstrLen(in.prog.Code, in.pc)
	if err != nil {
		return err
	}
	in.pc += n
	return nil
}

// Status summarizes the machine in one line for the stepper prompt.
func (in *Interp) Status() string {
	next := "end of stream"
	if in.pc < len(in.prog.Code) {
		if line, _, err := DisassembleInstr(in.prog.Code, in.pc); err == nil {
			next = line
		} else {
			next = err.Error()
		}
	}
	return fmt.Sprintf("pc=0x%04x steps=%d depth=%d heap=%d next: %s",
		in.pc, in.steps, in.stack.Len(), in.heap.Len(), next)
}

// DumpStack writes the operand stack top first, one value per line.
func (in *Interp) DumpStack(w io.Writer) {
	vals := in.stack.Values()
	if len(vals) == 0 {
		fmt.Fprintln(w, "stack: empty")
		return
	}
	for i := len(vals) - 1; i >= 0; i-- {
		fmt.Fprintf(w, "  [%d] %s\n", len(vals)-1-i, DebugString(vals[i]))
	}
}

// DumpHeap writes the heap cells in [from, to), clamped to the arena.
func (in *Interp) DumpHeap(w io.Writer, from, to int) {
	cells := in.heap.Cells()
	if from < 0 {
		from = 0
	}
	if to > len(cells) {
		to = len(cells)
	}
	for i := from; i < to; i++ {
		fmt.Fprintf(w, "  %04d  %s\n", i, DebugString(cells[i]))
	}
}

// DebugString renders v for debugger output. Unlike Value.String it
// quotes strings, so the string "1" and the number 1 read differently
// in a dump.
func DebugString(v Value) string {
	if v.IsStr() {
		return strconv.Quote(v.Str())
	}
	return v.String()
}
