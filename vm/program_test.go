package vm

import (
	"strings"
	"testing"
)

func TestReadU32(t *testing.T) {
	code := []byte{0x00, 0x78, 0x56, 0x34, 0x12}
	got, err := ReadU32(code, 1)
	if err != nil {
		t.Fatalf("ReadU32 failed: %v", err)
	}
	if got != 0x12345678 {
		t.Errorf("ReadU32 = 0x%08x, want 0x12345678", got)
	}

	if _, err := ReadU32(code, 2); err == nil {
		t.Error("ReadU32 past the end should fail")
	}
	if _, err := ReadU32(code, -1); err == nil {
		t.Error("ReadU32 at a negative offset should fail")
	}
}

func TestReadF32(t *testing.T) {
	// 2.5 as little-endian IEEE 754.
	code := []byte{0x00, 0x00, 0x20, 0x40}
	got, err := ReadF32(code, 0)
	if err != nil {
		t.Fatalf("ReadF32 failed: %v", err)
	}
	if got != 2.5 {
		t.Errorf("ReadF32 = %v, want 2.5", got)
	}
	if _, err := ReadF32(code, 1); err == nil {
		t.Error("ReadF32 past the end should fail")
	}
}

func TestReadStr(t *testing.T) {
	code := []byte{0x05, 0x00, 0x00, 0x00, 'h', 'e', 'l', 'l', 'o'}
	s, n, err := ReadStr(code, 0)
	if err != nil {
		t.Fatalf("ReadStr failed: %v", err)
	}
	if s != "hello" {
		t.Errorf("ReadStr = %q, want %q", s, "hello")
	}
	if n != 9 {
		t.Errorf("ReadStr consumed %d bytes, want 9", n)
	}
}

func TestReadStrTruncated(t *testing.T) {
	if _, _, err := ReadStr([]byte{0x05, 0x00}, 0); err == nil {
		t.Error("truncated length prefix should fail")
	}
	if _, _, err := ReadStr([]byte{0x05, 0x00, 0x00, 0x00, 'h', 'i'}, 0); err == nil {
		t.Error("truncated payload should fail")
	}
}

func TestReadStrRejectsInvalidUTF8(t *testing.T) {
	code := []byte{0x02, 0x00, 0x00, 0x00, 0xFF, 0xFE}
	if _, _, err := ReadStr(code, 0); err == nil {
		t.Error("invalid UTF-8 payload should fail")
	} else if !strings.Contains(err.Error(), "UTF-8") {
		t.Errorf("error = %q, want it to mention UTF-8", err)
	}
}

func TestInstrLen(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpAdd)       // offset 0, len 1
	b.PushInt(7)        // offset 1, len 5
	b.PushStr("hi")     // offset 6, len 7
	b.Emit(OpPushFn, 0, 0, 1)
	code, _ := b.Bytes()

	cases := []struct {
		off, want int
	}{
		{0, 1},
		{1, 5},
		{6, 7},
		{13, 13},
	}
	for _, tt := range cases {
		got, err := InstrLen(code, tt.off)
		if err != nil {
			t.Fatalf("InstrLen at 0x%04x failed: %v", tt.off, err)
		}
		if got != tt.want {
			t.Errorf("InstrLen at 0x%04x = %d, want %d", tt.off, got, tt.want)
		}
	}
}

func TestInstrLenErrors(t *testing.T) {
	if _, err := InstrLen([]byte{byte(OpAdd)}, 1); err == nil {
		t.Error("offset past the end should fail")
	}
	if _, err := InstrLen([]byte{0x00}, 0); err == nil {
		t.Error("unknown opcode should fail")
	}
	if _, err := InstrLen([]byte{byte(OpPushInt), 0x01}, 0); err == nil {
		t.Error("truncated operand should fail")
	}
	if _, err := InstrLen([]byte{byte(OpPushStr), 0x09, 0x00, 0x00, 0x00, 'x'}, 0); err == nil {
		t.Error("truncated string payload should fail")
	}
}

func TestValidate(t *testing.T) {
	b := NewBuilder()
	b.PushFloat(1)
	b.PushFloat(2)
	b.Emit(OpAdd)
	code, _ := b.Bytes()
	if err := NewProgram("ok", code).Validate(); err != nil {
		t.Errorf("Validate failed on a well-formed stream: %v", err)
	}

	bad := NewProgram("bad", []byte{byte(OpPushInt), 0x01})
	if err := bad.Validate(); err == nil {
		t.Error("Validate should reject a truncated stream")
	}

	unknown := NewProgram("unknown", []byte{byte(OpAdd), 0x00})
	if err := unknown.Validate(); err == nil {
		t.Error("Validate should reject an unknown opcode")
	}
}

func TestBuilderOffsets(t *testing.T) {
	b := NewBuilder()
	if off := b.PushFloat(1.5); off != 0 {
		t.Errorf("first instruction at %d, want 0", off)
	}
	if off := b.Emit(OpNeg); off != 5 {
		t.Errorf("second instruction at %d, want 5", off)
	}
	if b.Len() != 6 {
		t.Errorf("Len = %d, want 6", b.Len())
	}
}

func TestBuilderPushStr(t *testing.T) {
	b := NewBuilder()
	b.PushStr("ok")
	code, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	want := []byte{byte(OpPushStr), 0x02, 0x00, 0x00, 0x00, 'o', 'k'}
	if string(code) != string(want) {
		t.Errorf("encoded %v, want %v", code, want)
	}
}

func TestBuilderForwardLabel(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.PushLabel(l)
	b.Emit(OpJump)
	b.Mark(l)
	b.Emit(OpAdd)
	code, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}
	got, _ := ReadU32(code, 1)
	if got != 6 {
		t.Errorf("patched label operand = %d, want 6", got)
	}
}

func TestBuilderBackwardLabel(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.Mark(l)
	b.Emit(OpAdd)
	b.PushLabel(l)
	code, _ := b.Bytes()
	got, _ := ReadU32(code, 2)
	if got != 0 {
		t.Errorf("label operand = %d, want 0", got)
	}
}

func TestBuilderLabelSharedByManySites(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.PushLabel(l)
	b.PushLabel(l)
	b.Mark(l)
	code, _ := b.Bytes()
	for _, at := range []int{1, 6} {
		got, _ := ReadU32(code, at)
		if got != 10 {
			t.Errorf("operand at 0x%04x = %d, want 10", at, got)
		}
	}
}

func TestBuilderUnmarkedLabel(t *testing.T) {
	b := NewBuilder()
	l := b.NewLabel()
	b.PushLabel(l)
	if _, err := b.Bytes(); err == nil {
		t.Error("Bytes should fail while a pushed label is unmarked")
	}

	// A label that was allocated but never pushed needs no mark.
	b2 := NewBuilder()
	b2.NewLabel()
	b2.Emit(OpAdd)
	if _, err := b2.Bytes(); err != nil {
		t.Errorf("Bytes failed: %v", err)
	}
}

func TestBuilderProgram(t *testing.T) {
	b := NewBuilder()
	b.PushFloat(1)
	p, err := b.Program("demo")
	if err != nil {
		t.Fatalf("Program failed: %v", err)
	}
	if p.Name != "demo" {
		t.Errorf("Name = %q, want %q", p.Name, "demo")
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}
