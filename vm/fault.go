package vm

import (
	"errors"
	"fmt"
)

// FaultKind classifies execution faults.
type FaultKind uint8

const (
	StackFault  FaultKind = iota // Operand stack misuse
	TypeFault                    // Operand of the wrong runtime type
	HeapFault                    // Bad heap address or reference
	DecodeFault                  // Malformed instruction stream
)

// String returns the lowercase name of the fault kind.
func (k FaultKind) String() string {
	switch k {
	case StackFault:
		return "stack fault"
	case TypeFault:
		return "type fault"
	case HeapFault:
		return "heap fault"
	case DecodeFault:
		return "decode fault"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Sentinels for errors.Is matching. A *Fault matches the sentinel of its
// kind, so callers can branch on the taxonomy without unpacking the fault.
var (
	ErrStackFault  = errors.New("stack fault")
	ErrTypeFault   = errors.New("type fault")
	ErrHeapFault   = errors.New("heap fault")
	ErrDecodeFault = errors.New("decode fault")
)

// ErrStepLimit is returned when execution exceeds the configured step
// budget before halting.
var ErrStepLimit = errors.New("step limit exceeded")

// Fault describes why execution stopped abnormally. PC is the offset of
// the faulting instruction's opcode byte; the machine state is left as it
// was when the fault was raised.
type Fault struct {
	Kind   FaultKind
	Op     Opcode
	PC     int
	Reason string
}

// Error renders the fault with its kind, location and reason.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s at 0x%04x (%s): %s", f.Kind, f.PC, f.Op, f.Reason)
}

// Is reports whether target is the sentinel matching f's kind.
func (f *Fault) Is(target error) bool {
	switch f.Kind {
	case StackFault:
		return target == ErrStackFault
	case TypeFault:
		return target == ErrTypeFault
	case HeapFault:
		return target == ErrHeapFault
	case DecodeFault:
		return target == ErrDecodeFault
	default:
		return false
	}
}

func newFault(kind FaultKind, op Opcode, pc int, format string, args ...any) *Fault {
	return &Fault{Kind: kind, Op: op, PC: pc, Reason: fmt.Sprintf(format, args...)}
}
