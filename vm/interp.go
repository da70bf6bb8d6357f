package vm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// cancelInterval is how many instructions run between context checks.
const cancelInterval = 1024

// Result describes how a run ended.
type Result struct {
	Value    Value  // Top of stack at halt, or undefined when the stack is empty
	Steps    uint64 // Instructions executed
	Halted   bool   // True when the program halted cleanly
	ExitCode int    // Status passed to sys.exit, zero otherwise
}

// Interp executes a Program against a fresh stack and heap. It is not
// safe for concurrent use.
// The zero value is not usable; call New.
type Interp struct {
	prog  *Program
	stack *Stack
	heap  *Heap
	pc    int
	steps uint64

	halted bool
	exit   int
	out    io.Writer
	std    *Dict

	// Fault reporting context for the instruction in flight
	op   Opcode
	opPC int

	// Trace, when set, receives a line for each instruction before it
	// executes.
	Trace io.Writer
	// MaxSteps stops the run with ErrStepLimit after this many
	// instructions. Zero means no limit.
	MaxSteps uint64
}

// New creates an interpreter for prog with the builtin tree installed.
// Output from the io natives goes to os.Stdout until SetOutput.
func New(prog *Program) *Interp {
	in := &Interp{
		prog:  prog,
		stack: NewStack(),
		heap:  NewHeap(),
		out:   os.Stdout,
	}
	installStd(in)
	return in
}

// SetOutput redirects the io natives to w.
func (in *Interp) SetOutput(w io.Writer) { in.out = w }

// SetHeapLimit caps the heap at n cells. Zero removes the cap.
func (in *Interp) SetHeapLimit(n int) { in.heap.SetLimit(n) }

// Heap exposes the machine heap for inspection.
func (in *Interp) Heap() *Heap { return in.heap }

// Stack exposes the operand stack for inspection.
func (in *Interp) Stack() *Stack { return in.stack }

// PC returns the offset of the next instruction.
func (in *Interp) PC() int { return in.pc }

// Steps returns the number of instructions executed so far.
func (in *Interp) Steps() uint64 { return in.steps }

// Halted reports whether execution has finished.
func (in *Interp) Halted() bool { return in.halted }

// Result captures the current outcome. Value is the stack top when the
// stack is nonempty.
func (in *Interp) Result() Result {
	res := Result{Steps: in.steps, Halted: in.halted, ExitCode: in.exit}
	if v, err := in.stack.Peek(); err == nil {
		res.Value = v
	}
	return res
}

// Run executes until the program halts or faults.
func (in *Interp) Run() (Result, error) {
	return in.RunContext(context.Background())
}

// RunContext executes until the program halts, faults, exceeds its step
// budget or ctx is cancelled. Cancellation is only checked between
// instructions, every cancelInterval steps.
func (in *Interp) RunContext(ctx context.Context) (Result, error) {
	for !in.halted {
		if in.MaxSteps > 0 && in.steps >= in.MaxSteps {
			return in.Result(), ErrStepLimit
		}
		if in.steps%cancelInterval == 0 {
			select {
			case <-ctx.Done():
				return in.Result(), ctx.Err()
			default:
			}
		}
		if err := in.Step(); err != nil {
			return in.Result(), err
		}
	}
	return in.Result(), nil
}

// RunSteps executes at most n more instructions. Exhausting the budget
// is not an error; check Halted on the result to see whether the
// program finished. A configured MaxSteps limit still applies.
func (in *Interp) RunSteps(n uint64) (Result, error) {
	target := in.steps + n
	for !in.halted && in.steps < target {
		if in.MaxSteps > 0 && in.steps >= in.MaxSteps {
			return in.Result(), ErrStepLimit
		}
		if err := in.Step(); err != nil {
			return in.Result(), err
		}
	}
	return in.Result(), nil
}

// Step executes a single instruction. Running off the end of the stream
// is a clean halt. After a fault the machine is left exactly as the
// faulting instruction found it plus whatever it consumed; stepping on
// is not meaningful.
func (in *Interp) Step() error {
	if in.halted {
		return nil
	}
	if in.pc >= len(in.prog.Code) {
		in.halted = true
		return nil
	}

	in.opPC = in.pc
	in.op = Opcode(in.prog.Code[in.pc])
	in.pc++

	if in.Trace != nil {
		fmt.Fprintf(in.Trace, "[%04x] %-12s depth=%d\n", in.opPC, in.op, in.stack.Len())
	}
	in.steps++

	switch in.op {
	// ============ Constants and stack shuffling ============
	case OpPushFloat:
		f, err := in.readF32()
		if err != nil {
			return err
		}
		in.stack.Push(FromFloat(f))

	case OpPushStr:
		s, err := in.readStr()
		if err != nil {
			return err
		}
		in.stack.Push(FromStr(s))

	case OpPushInt:
		n, err := in.readU32()
		if err != nil {
			return err
		}
		in.stack.Push(FromInt(n))

	case OpPushFn:
		return in.opPushFn()

	case OpTake:
		d, err := in.readU32()
		if err != nil {
			return err
		}
		v, err := in.stack.At(int(d))
		if err != nil {
			return in.faultf(StackFault, "%v", err)
		}
		in.stack.Push(v)

	case OpSwap:
		a, err := in.readU32()
		if err != nil {
			return err
		}
		b, err := in.readU32()
		if err != nil {
			return err
		}
		if err := in.stack.Swap(int(a), int(b)); err != nil {
			return in.faultf(StackFault, "%v", err)
		}

	case OpPop:
		n, err := in.readU32()
		if err != nil {
			return err
		}
		if err := in.stack.Drop(int(n)); err != nil {
			return in.faultf(StackFault, "%v", err)
		}

	// ============ Memory ============
	case OpLoad:
		off, err := in.readU32()
		if err != nil {
			return err
		}
		return in.opLoad(off)

	case OpStore:
		off, err := in.readU32()
		if err != nil {
			return err
		}
		return in.opStore(off)

	// ============ Control flow ============
	case OpJumpIf:
		target, err := in.popInt("jump target")
		if err != nil {
			return err
		}
		cond, err := in.popFloat()
		if err != nil {
			return err
		}
		if cond != 0 {
			in.pc = int(target)
		}

	case OpJump:
		target, err := in.popInt("jump target")
		if err != nil {
			return err
		}
		in.pc = int(target)

	case OpCall:
		return in.opCall()

	// ============ Arithmetic ============
	case OpAdd:
		return in.opAdd()

	case OpSub:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(FromFloat(a - b))

	case OpMul:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(FromFloat(a * b))

	case OpDiv:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(FromFloat(a / b))

	case OpMod:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(FromFloat(float32(math.Mod(float64(a), float64(b)))))

	case OpNeg:
		a, err := in.popFloat()
		if err != nil {
			return err
		}
		in.stack.Push(FromFloat(-a))

	// ============ Comparison and logic ============
	case OpLt:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a < b))

	case OpGt:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a > b))

	case OpEq:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a == b))

	case OpNe:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a != b))

	case OpLe:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a <= b))

	case OpGe:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a >= b))

	case OpAnd:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a != 0 && b != 0))

	case OpOr:
		b, a, err := in.popFloat2()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a != 0 || b != 0))

	case OpNot:
		a, err := in.popFloat()
		if err != nil {
			return err
		}
		in.stack.Push(boolFloat(a == 0))

	// ============ Objects ============
	case OpGet:
		return in.opGet()

	case OpPushDict:
		n, err := in.readU32()
		if err != nil {
			return err
		}
		return in.opPushDict(n)

	case OpPushArray:
		n, err := in.readU32()
		if err != nil {
			return err
		}
		return in.opPushArray(n)

	default:
		return in.faultf(DecodeFault, "unknown opcode 0x%02x", byte(in.op))
	}
	return nil
}

// ---------------------------------------------------------------------------
// Closures and calls
// ---------------------------------------------------------------------------

func (in *Interp) opPushFn() error {
	envCount, err := in.readU32()
	if err != nil {
		return err
	}
	envDepth, err := in.readU32()
	if err != nil {
		return err
	}
	frameSize, err := in.readU32()
	if err != nil {
		return err
	}

	// The environment is read in place before the entry address comes
	// off; the captured references stay on the stack for the emitter to
	// clean up.
	env := make([]Value, 0, envCount)
	for i := 0; i < int(envCount); i++ {
		v, err := in.stack.At(int(envDepth) - i)
		if err != nil {
			return in.faultf(StackFault, "capturing environment: %v", err)
		}
		env = append(env, v)
	}

	entry, err := in.popInt("function entry address")
	if err != nil {
		return err
	}
	in.stack.Push(FromFn(&Fn{Entry: int(entry), FrameSize: int(frameSize), Env: env}))
	return nil
}

func (in *Interp) opCall() error {
	callee, err := in.pop()
	if err != nil {
		return err
	}

	// A reference callee is dereferenced, and its owning object becomes
	// the frame's this binding. With no owning object the binding is a
	// pending reference, so any use of this faults.
	thisRef := Ref{Base: -1, Key: StrKey("this"), Slot: -1}
	if callee.IsRef() {
		r := callee.Ref()
		if r.Pending() {
			return in.faultf(HeapFault, "call through pending reference %s", r.Key)
		}
		fnv, err := in.heap.Load(r.Slot)
		if err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
		if r.Base >= 0 {
			thisRef = Ref{Base: -1, Slot: r.Base}
		}
		callee = fnv
	}

	argc, err := in.popInt("argument count")
	if err != nil {
		return err
	}
	n := int(argc)

	switch {
	case callee.IsFn():
		fn := callee.Fn()
		if fn.FrameSize < n+1 {
			return in.faultf(HeapFault, "frame of %d cells cannot hold %d arguments", fn.FrameSize, n)
		}
		base, err := in.heap.AllocRange(fn.FrameSize)
		if err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
		// Arguments fill the frame top of stack first, so the cell
		// order matches the emitter's reversed parameter layout.
		for i := 0; i < n; i++ {
			arg, err := in.pop()
			if err != nil {
				return err
			}
			if err := in.heap.Store(base+i, arg); err != nil {
				return in.faultf(HeapFault, "%v", err)
			}
		}
		if err := in.heap.Store(base+n, FromRef(thisRef)); err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
		in.stack.Push(FromRef(Ref{Base: -1, Slot: base}))
		for _, capture := range fn.Env {
			in.stack.Push(capture)
		}
		in.pc = fn.Entry

	case callee.IsNative():
		args := make([]Value, n)
		for i := n - 1; i >= 0; i-- {
			v, err := in.pop()
			if err != nil {
				return err
			}
			args[i] = v
		}
		ret, err := in.popInt("return address")
		if err != nil {
			return err
		}
		res, err := callee.Native()(args)
		if err != nil {
			var halt *haltError
			if errors.As(err, &halt) {
				in.halted = true
				in.exit = halt.code
				return nil
			}
			return in.faultf(TypeFault, "%v", err)
		}
		in.pc = int(ret)
		in.stack.Push(res)

	default:
		return in.faultf(TypeFault, "call of %s, not a function", callee.Kind())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Memory access
// ---------------------------------------------------------------------------

func (in *Interp) opLoad(off uint32) error {
	addr, err := in.stack.Peek()
	if err != nil {
		return in.faultf(StackFault, "%v", err)
	}

	var slot int
	switch {
	case addr.IsInt():
		slot = int(addr.Int()) + int(off)
	case addr.IsRef():
		r := addr.Ref()
		if r.Pending() {
			return in.faultf(HeapFault, "load through pending reference %s", r.Key)
		}
		slot = r.Slot + int(off)
	default:
		return in.faultf(TypeFault, "load address must be int or ref, got %s", addr.Kind())
	}

	v, err := in.heap.Load(slot)
	if err != nil {
		return in.faultf(HeapFault, "%v", err)
	}
	return in.stack.SetTop(v)
}

func (in *Interp) opStore(off uint32) error {
	addr, err := in.pop()
	if err != nil {
		return err
	}
	val, err := in.pop()
	if err != nil {
		return err
	}

	switch {
	case addr.IsInt():
		if err := in.heap.Store(int(addr.Int())+int(off), val); err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
	case addr.IsRef():
		r := addr.Ref()
		if !r.Pending() {
			if err := in.heap.Store(r.Slot+int(off), val); err != nil {
				return in.faultf(HeapFault, "%v", err)
			}
			return nil
		}
		if off != 0 {
			return in.faultf(HeapFault, "cannot offset pending reference %s", r.Key)
		}
		header, err := in.heap.Load(r.Base)
		if err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
		switch header.Kind() {
		case KindDict:
			if _, err := in.heap.Materialize(r.Base, r.Key, val); err != nil {
				return in.faultf(HeapFault, "%v", err)
			}
		case KindArray:
			return in.faultf(HeapFault, "array index %s out of range", r.Key)
		default:
			return in.faultf(TypeFault, "pending reference owner holds %s, not an object", header.Kind())
		}
	default:
		return in.faultf(TypeFault, "store address must be int or ref, got %s", addr.Kind())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Objects
// ---------------------------------------------------------------------------

func (in *Interp) opGet() error {
	keyv, err := in.pop()
	if err != nil {
		return err
	}
	objv, err := in.pop()
	if err != nil {
		return err
	}

	key, err := normalizeKey(keyv)
	if err != nil {
		return in.faultf(TypeFault, "%v", err)
	}
	if !objv.IsRef() {
		return in.faultf(TypeFault, "get target must be a reference, got %s", objv.Kind())
	}
	r := objv.Ref()
	if r.Pending() {
		return in.faultf(HeapFault, "get through pending reference %s", r.Key)
	}
	header, err := in.heap.Load(r.Slot)
	if err != nil {
		return in.faultf(HeapFault, "%v", err)
	}
	base := r.Slot

	switch header.Kind() {
	case KindDict:
		d := header.Dict()
		if key == StrKey("length") {
			return in.pushLength(base, key, len(d.Entries))
		}
		if slot, ok := d.Entries[key]; ok {
			in.stack.Push(FromRef(Ref{Base: base, Key: key, Slot: slot}))
		} else {
			in.stack.Push(FromRef(Ref{Base: base, Key: key, Slot: -1}))
		}

	case KindArray:
		a := header.Array()
		if key == StrKey("length") {
			return in.pushLength(base, key, len(a.Slots))
		}
		if key.Kind != KeyInt {
			return in.faultf(TypeFault, "array key must be an index, got %s", key)
		}
		if int(key.Int) < len(a.Slots) {
			in.stack.Push(FromRef(Ref{Base: base, Key: key, Slot: a.Slots[key.Int]}))
		} else {
			in.stack.Push(FromRef(Ref{Base: base, Key: key, Slot: -1}))
		}

	default:
		return in.faultf(TypeFault, "get target holds %s, not an object", header.Kind())
	}
	return nil
}

// pushLength materializes the element count in a fresh cell. Every
// length lookup allocates; nothing on the append-only heap is reused.
func (in *Interp) pushLength(base int, key Key, n int) error {
	slot, err := in.heap.Alloc(FromFloat(float32(n)))
	if err != nil {
		return in.faultf(HeapFault, "%v", err)
	}
	in.stack.Push(FromRef(Ref{Base: base, Key: key, Slot: slot}))
	return nil
}

func (in *Interp) opPushDict(n uint32) error {
	d := NewDict()
	base, err := in.heap.Alloc(FromDict(d))
	if err != nil {
		return in.faultf(HeapFault, "%v", err)
	}
	for i := 0; i < int(n); i++ {
		val, err := in.pop()
		if err != nil {
			return err
		}
		keyv, err := in.pop()
		if err != nil {
			return err
		}
		key, err := normalizeKey(keyv)
		if err != nil {
			return in.faultf(TypeFault, "%v", err)
		}
		slot, err := in.heap.Alloc(val)
		if err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
		d.Entries[key] = slot
	}
	in.stack.Push(FromRef(Ref{Base: -1, Slot: base}))
	return nil
}

func (in *Interp) opPushArray(n uint32) error {
	a := &Array{Slots: make([]int, n)}
	base, err := in.heap.Alloc(FromArray(a))
	if err != nil {
		return in.faultf(HeapFault, "%v", err)
	}
	// Elements come off the stack last index first, so the earliest
	// pushed value ends up at index zero.
	for i := 0; i < int(n); i++ {
		v, err := in.pop()
		if err != nil {
			return err
		}
		slot, err := in.heap.Alloc(v)
		if err != nil {
			return in.faultf(HeapFault, "%v", err)
		}
		a.Slots[int(n)-1-i] = slot
	}
	in.stack.Push(FromRef(Ref{Base: -1, Slot: base}))
	return nil
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func (in *Interp) opAdd() error {
	b, err := in.pop()
	if err != nil {
		return err
	}
	a, err := in.pop()
	if err != nil {
		return err
	}

	switch {
	case a.IsFloat() && b.IsFloat():
		in.stack.Push(FromFloat(a.Float() + b.Float()))
	case a.IsInt() && b.IsInt():
		in.stack.Push(FromInt(a.Int() + b.Int()))
	case a.IsStr() && b.IsStr():
		in.stack.Push(FromStr(a.Str() + b.Str()))
	case a.IsRef() && b.IsInt():
		r := a.Ref()
		if r.Pending() {
			return in.faultf(HeapFault, "cannot offset pending reference %s", r.Key)
		}
		in.stack.Push(FromRef(r.Shift(b.Int())))
	default:
		return in.faultf(TypeFault, "add of %s and %s", a.Kind(), b.Kind())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operand and stack helpers
// ---------------------------------------------------------------------------

func (in *Interp) readU32() (uint32, error) {
	v, err := ReadU32(in.prog.Code, in.pc)
	if err != nil {
		return 0, in.faultf(DecodeFault, "%v", err)
	}
	in.pc += 4
	return v, nil
}

func (in *Interp) readF32() (float32, error) {
	v, err := ReadF32(in.prog.Code, in.pc)
	if err != nil {
		return 0, in.faultf(DecodeFault, "%v", err)
	}
	in.pc += 4
	return v, nil
}

func (in *Interp) readStr() (string, error) {
	s, n, err := ReadStr(in.prog.Code, in.pc)
	if err != nil {
		return "", in.faultf(DecodeFault, "%v", err)
	}
	in.pc += n
	return s, nil
}

func (in *Interp) pop() (Value, error) {
	v, err := in.stack.Pop()
	if err != nil {
		return Undefined, in.faultf(StackFault, "%v", err)
	}
	return v, nil
}

func (in *Interp) popFloat() (float32, error) {
	v, err := in.pop()
	if err != nil {
		return 0, err
	}
	if !v.IsFloat() {
		return 0, in.faultf(TypeFault, "expected float operand, got %s", v.Kind())
	}
	return v.Float(), nil
}

func (in *Interp) popFloat2() (b, a float32, err error) {
	b, err = in.popFloat()
	if err != nil {
		return 0, 0, err
	}
	a, err = in.popFloat()
	if err != nil {
		return 0, 0, err
	}
	return b, a, nil
}

func (in *Interp) popInt(what string) (uint32, error) {
	v, err := in.pop()
	if err != nil {
		return 0, err
	}
	if !v.IsInt() {
		return 0, in.faultf(TypeFault, "%s must be int, got %s", what, v.Kind())
	}
	return v.Int(), nil
}

func (in *Interp) faultf(kind FaultKind, format string, args ...any) error {
	return newFault(kind, in.op, in.opPC, format, args...)
}

func boolFloat(b bool) Value {
	if b {
		return FromFloat(1)
	}
	return FromFloat(0)
}

// normalizeKey converts a stack value into a field key. Strings key
// dictionaries by name; integers index arrays and dictionary entries
// directly. Floats with an integral value are accepted as indices,
// since the language's numbers are floats.
func normalizeKey(v Value) (Key, error) {
	switch v.Kind() {
	case KindStr:
		return StrKey(v.Str()), nil
	case KindInt:
		return IntKey(v.Int()), nil
	case KindFloat:
		f := float64(v.Float())
		if f < 0 || f >= 1<<32 || f != math.Trunc(f) {
			return Key{}, fmt.Errorf("float key %s is not an index", v)
		}
		return IntKey(uint32(f)), nil
	default:
		return Key{}, fmt.Errorf("%s cannot be a field key", v.Kind())
	}
}
