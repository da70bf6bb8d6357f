package vm

import (
	"fmt"
	"strings"
)

// NativeFn is a host function callable from bytecode. Arguments arrive
// in source order. Natives run without a frame: the machine pops the
// arguments, invokes the function and leaves its result on the stack at
// the call site's return address.
type NativeFn func(args []Value) (Value, error)

// haltError carries the exit status out of sys.exit. The interpreter
// treats it as a clean halt, not a fault.
type haltError struct {
	code int
}

func (e *haltError) Error() string {
	return fmt.Sprintf("halt with status %d", e.code)
}

// installStd builds the builtin tree at the bottom of the heap. Slot 0
// holds a reference to the std dictionary, so compiled code reaches any
// builtin by loading address zero and walking fields with get. Nested
// dictionaries sit behind reference cells, which keeps the get/load
// chain uniform at every level; natives are stored directly in their
// entry cells.
//
// Layout: [0] ref to std, [1] std, [2] io, [3] ref to io, [4] println,
// [5] print, [6] sys, [7] ref to sys, [8] exit.
func installStd(in *Interp) {
	h := in.heap
	h.bootstrap(FromRef(Ref{Base: -1, Slot: 1}))
	std := NewDict()
	h.bootstrap(FromDict(std))
	in.std = std

	ioDict := NewDict()
	ioSlot := h.bootstrap(FromDict(ioDict))
	std.Entries[StrKey("io")] = h.bootstrap(FromRef(Ref{Base: -1, Slot: ioSlot}))
	ioDict.Entries[StrKey("println")] = h.bootstrap(FromNative(in.nativePrintln))
	ioDict.Entries[StrKey("print")] = h.bootstrap(FromNative(in.nativePrint))

	sysDict := NewDict()
	sysSlot := h.bootstrap(FromDict(sysDict))
	std.Entries[StrKey("sys")] = h.bootstrap(FromRef(Ref{Base: -1, Slot: sysSlot}))
	sysDict.Entries[StrKey("exit")] = h.bootstrap(FromNative(nativeExit))
}

// RegisterNative installs fn in the builtin tree at a dotted path such
// as "io.write" or "host.clock". Intermediate dictionaries are created
// as needed and registering over an existing entry replaces it. Call
// this after New and before the first instruction runs.
func (in *Interp) RegisterNative(path string, fn NativeFn) error {
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if s == "" {
			return fmt.Errorf("bad native path %q", path)
		}
	}

	d := in.std
	for _, s := range segs[:len(segs)-1] {
		slot, ok := d.Entries[StrKey(s)]
		if !ok {
			next := NewDict()
			nextSlot := in.heap.bootstrap(FromDict(next))
			d.Entries[StrKey(s)] = in.heap.bootstrap(FromRef(Ref{Base: -1, Slot: nextSlot}))
			d = next
			continue
		}
		cell, err := in.heap.Load(slot)
		if err != nil {
			return err
		}
		if !cell.IsRef() {
			return fmt.Errorf("%s is not a dictionary", s)
		}
		next, err := in.heap.DictAt(cell.Ref().Slot)
		if err != nil {
			return fmt.Errorf("%s is not a dictionary", s)
		}
		d = next
	}

	d.Entries[StrKey(segs[len(segs)-1])] = in.heap.bootstrap(FromNative(fn))
	return nil
}

// RemoveNative detaches the named top-level field from the std
// dictionary, putting that tree out of reach of the program. Reading
// the field afterwards behaves like reading any missing key. Reports
// whether the field existed.
func (in *Interp) RemoveNative(name string) bool {
	if _, ok := in.std.Entries[StrKey(name)]; !ok {
		return false
	}
	delete(in.std.Entries, StrKey(name))
	return true
}

func (in *Interp) nativePrintln(args []Value) (Value, error) {
	fmt.Fprintln(in.out, joinValues(args))
	return Undefined, nil
}

func (in *Interp) nativePrint(args []Value) (Value, error) {
	fmt.Fprint(in.out, joinValues(args))
	return Undefined, nil
}

// nativeExit halts the machine with the status given by its first
// argument, or zero when called without one.
func nativeExit(args []Value) (Value, error) {
	code := 0
	if len(args) > 0 {
		if !args[0].IsFloat() {
			return Undefined, fmt.Errorf("exit status must be a float, got %s", args[0].Kind())
		}
		code = int(args[0].Float())
	}
	return Undefined, &haltError{code: code}
}

func joinValues(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, " ")
}
