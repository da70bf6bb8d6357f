package vm

import (
	"fmt"
	"math"
	"strconv"
)

// Kind identifies the runtime type of a Value.
type Kind uint8

const (
	KindUndef  Kind = iota // Uninitialized cells and missing results
	KindFloat              // 32-bit IEEE 754 float, the language's number type
	KindInt                // 32-bit unsigned integer for addresses and counts
	KindStr                // Immutable UTF-8 string
	KindRef                // Reference to a heap cell
	KindFn                 // Function with captured environment
	KindDict               // Dictionary object header
	KindArray              // Array object header
	KindNative             // Host function provided by the runtime
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUndef:
		return "undef"
	case KindFloat:
		return "float"
	case KindInt:
		return "int"
	case KindStr:
		return "str"
	case KindRef:
		return "ref"
	case KindFn:
		return "fn"
	case KindDict:
		return "dict"
	case KindArray:
		return "array"
	case KindNative:
		return "native"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// KeyKind identifies how a field is addressed.
type KeyKind uint8

const (
	KeyNone KeyKind = iota // No key; plain address references
	KeyInt                 // Integer index
	KeyStr                 // String field name
)

// Key is a normalized field identifier. Dictionary entries are keyed by a
// string name or an unsigned integer index, array elements by an index
// only. Keys are comparable and serve directly as map keys.
type Key struct {
	Kind KeyKind
	Int  uint32
	Str  string
}

// IntKey creates an integer key.
func IntKey(n uint32) Key { return Key{Kind: KeyInt, Int: n} }

// StrKey creates a string key.
func StrKey(s string) Key { return Key{Kind: KeyStr, Str: s} }

// String renders the key for diagnostics.
func (k Key) String() string {
	switch k.Kind {
	case KeyInt:
		return strconv.FormatUint(uint64(k.Int), 10)
	case KeyStr:
		return strconv.Quote(k.Str)
	default:
		return "-"
	}
}

// ---------------------------------------------------------------------------
// References
// ---------------------------------------------------------------------------

// Ref is a reference to a heap cell. Base is the heap slot of the owning
// object header, or -1 for plain address references (frames and freshly
// built objects). Slot is the target cell, or -1 while the reference is
// pending: the key was absent at lookup time and no cell exists yet.
// Storing through a pending reference creates the cell and materializes
// the key in the owning dictionary.
type Ref struct {
	Base int
	Key  Key
	Slot int
}

// Pending reports whether the reference has no target cell yet.
func (r Ref) Pending() bool { return r.Slot < 0 }

// Shift returns a copy of r with the target moved by delta cells. Base
// and Key are preserved; shifting is how compiled code addresses
// individual cells inside a frame.
func (r Ref) Shift(delta uint32) Ref {
	r.Slot += int(delta)
	return r
}

// ---------------------------------------------------------------------------
// Object headers
// ---------------------------------------------------------------------------

// Fn is a function value: an entry offset into the instruction stream,
// the number of heap cells its frame occupies, and the frame references
// captured when the function was built.
type Fn struct {
	Entry     int
	FrameSize int
	Env       []Value
}

// Dict is a dictionary object header. Entries maps each materialized key
// to the absolute heap slot holding its value cell. The header itself
// occupies a heap cell; value cells are appended as keys materialize.
type Dict struct {
	Entries map[Key]int
}

// NewDict creates an empty dictionary header.
func NewDict() *Dict {
	return &Dict{Entries: make(map[Key]int)}
}

// Array is an array object header. Slots[i] is the absolute heap slot
// holding element i. The element count is fixed at construction.
type Array struct {
	Slots []int
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// Value is a single Minnow runtime value.
//
// The zero Value is undefined. Float and Int payloads share the num
// field; floats are stored as their IEEE 754 bit pattern. Functions,
// object headers and native functions are held behind obj.
type Value struct {
	kind Kind
	num  uint32
	str  string
	ref  Ref
	obj  any
}

// Undefined is the undefined value, identical to the zero Value.
var Undefined Value

// FromFloat creates a float value.
func FromFloat(f float32) Value {
	return Value{kind: KindFloat, num: math.Float32bits(f)}
}

// FromInt creates an integer value.
func FromInt(n uint32) Value {
	return Value{kind: KindInt, num: n}
}

// FromStr creates a string value.
func FromStr(s string) Value {
	return Value{kind: KindStr, str: s}
}

// FromRef creates a reference value.
func FromRef(r Ref) Value {
	return Value{kind: KindRef, ref: r}
}

// FromFn creates a function value.
func FromFn(fn *Fn) Value {
	return Value{kind: KindFn, obj: fn}
}

// FromDict creates a dictionary header value.
func FromDict(d *Dict) Value {
	return Value{kind: KindDict, obj: d}
}

// FromArray creates an array header value.
func FromArray(a *Array) Value {
	return Value{kind: KindArray, obj: a}
}

// FromNative creates a native function value.
func FromNative(fn NativeFn) Value {
	return Value{kind: KindNative, obj: fn}
}

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// Kind returns the runtime type of v.
func (v Value) Kind() Kind { return v.kind }

// IsUndef returns true if v is undefined.
func (v Value) IsUndef() bool { return v.kind == KindUndef }

// IsFloat returns true if v is a float.
func (v Value) IsFloat() bool { return v.kind == KindFloat }

// IsInt returns true if v is an integer.
func (v Value) IsInt() bool { return v.kind == KindInt }

// IsStr returns true if v is a string.
func (v Value) IsStr() bool { return v.kind == KindStr }

// IsRef returns true if v is a reference.
func (v Value) IsRef() bool { return v.kind == KindRef }

// IsFn returns true if v is a function.
func (v Value) IsFn() bool { return v.kind == KindFn }

// IsDict returns true if v is a dictionary header.
func (v Value) IsDict() bool { return v.kind == KindDict }

// IsArray returns true if v is an array header.
func (v Value) IsArray() bool { return v.kind == KindArray }

// IsNative returns true if v is a native function.
func (v Value) IsNative() bool { return v.kind == KindNative }

// ---------------------------------------------------------------------------
// Payload access
// ---------------------------------------------------------------------------

// Float returns v as a float32.
// Panics if v is not a float.
func (v Value) Float() float32 {
	if v.kind != KindFloat {
		panic("Value.Float: not a float")
	}
	return math.Float32frombits(v.num)
}

// Int returns v as a uint32.
// Panics if v is not an integer.
func (v Value) Int() uint32 {
	if v.kind != KindInt {
		panic("Value.Int: not an integer")
	}
	return v.num
}

// Str returns the string payload of v.
// Panics if v is not a string.
func (v Value) Str() string {
	if v.kind != KindStr {
		panic("Value.Str: not a string")
	}
	return v.str
}

// Ref returns the reference payload of v.
// Panics if v is not a reference.
func (v Value) Ref() Ref {
	if v.kind != KindRef {
		panic("Value.Ref: not a reference")
	}
	return v.ref
}

// Fn returns the function payload of v.
// Panics if v is not a function.
func (v Value) Fn() *Fn {
	if v.kind != KindFn {
		panic("Value.Fn: not a function")
	}
	return v.obj.(*Fn)
}

// Dict returns the dictionary header of v.
// Panics if v is not a dictionary.
func (v Value) Dict() *Dict {
	if v.kind != KindDict {
		panic("Value.Dict: not a dictionary")
	}
	return v.obj.(*Dict)
}

// Array returns the array header of v.
// Panics if v is not an array.
func (v Value) Array() *Array {
	if v.kind != KindArray {
		panic("Value.Array: not an array")
	}
	return v.obj.(*Array)
}

// Native returns the native function payload of v.
// Panics if v is not a native function.
func (v Value) Native() NativeFn {
	if v.kind != KindNative {
		panic("Value.Native: not a native function")
	}
	return v.obj.(NativeFn)
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

// String renders v the way the io natives print it. Strings render as
// their raw contents; use strconv.Quote for diagnostic output.
func (v Value) String() string {
	switch v.kind {
	case KindUndef:
		return "undefined"
	case KindFloat:
		return strconv.FormatFloat(float64(math.Float32frombits(v.num)), 'g', -1, 32)
	case KindInt:
		return strconv.FormatUint(uint64(v.num), 10)
	case KindStr:
		return v.str
	case KindRef:
		r := v.ref
		switch {
		case r.Pending():
			return fmt.Sprintf("<ref %s@%d pending>", r.Key, r.Base)
		case r.Base < 0:
			return fmt.Sprintf("<ref ->%d>", r.Slot)
		default:
			return fmt.Sprintf("<ref %s@%d ->%d>", r.Key, r.Base, r.Slot)
		}
	case KindFn:
		return fmt.Sprintf("<fn 0x%04x>", v.obj.(*Fn).Entry)
	case KindDict:
		return fmt.Sprintf("<dict %d>", len(v.obj.(*Dict).Entries))
	case KindArray:
		return fmt.Sprintf("<array %d>", len(v.obj.(*Array).Slots))
	case KindNative:
		return "<native>"
	default:
		return fmt.Sprintf("<%s>", v.kind)
	}
}
