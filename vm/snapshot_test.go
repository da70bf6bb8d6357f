package vm

import (
	"bytes"
	"strings"
	"testing"
)

func TestSnapshot(t *testing.T) {
	in := New(buildProgram(t, func(b *Builder) {
		b.PushFloat(1)
		b.PushFloat(2)
	}))
	if err := in.Step(); err != nil {
		t.Fatalf("Step failed: %v", err)
	}

	snap := in.Snapshot()
	if snap.PC != 5 {
		t.Errorf("PC = 0x%04x, want 0x0005", snap.PC)
	}
	if snap.Steps != 1 {
		t.Errorf("Steps = %d, want 1", snap.Steps)
	}
	if snap.Halted {
		t.Error("Halted = true, want false")
	}
	if len(snap.Stack) != 1 || snap.Stack[0].Float() != 1 {
		t.Errorf("Stack = %v, want [1]", snap.Stack)
	}
	if snap.HeapLen != in.Heap().Len() {
		t.Errorf("HeapLen = %d, want %d", snap.HeapLen, in.Heap().Len())
	}

	snap.Stack[0] = FromFloat(99)
	top, _ := in.Stack().Peek()
	if top.Float() != 1 {
		t.Error("mutating the snapshot must not touch the machine")
	}
}

func TestSkip(t *testing.T) {
	in := New(buildProgram(t, func(b *Builder) {
		b.PushFloat(1)
		b.PushFloat(2)
	}))
	if err := in.Skip(); err != nil {
		t.Fatalf("Skip failed: %v", err)
	}
	if in.PC() != 5 {
		t.Errorf("PC = 0x%04x, want 0x0005", in.PC())
	}
	if in.Steps() != 0 {
		t.Errorf("Skip counted %d steps, want 0", in.Steps())
	}

	res, err := in.Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Value.Float() != 2 || in.Stack().Len() != 1 {
		t.Errorf("after skipping the first push, stack top = %s depth = %d", res.Value, in.Stack().Len())
	}
}

func TestSetPC(t *testing.T) {
	in := New(buildProgram(t, func(b *Builder) {
		b.PushFloat(1)
		b.PushFloat(2)
	}))
	if err := in.SetPC(5); err != nil {
		t.Fatalf("SetPC failed: %v", err)
	}
	res, err := in.Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Value.Float() != 2 || in.Stack().Len() != 1 {
		t.Errorf("after SetPC(5), top = %s depth = %d", res.Value, in.Stack().Len())
	}

	if err := in.SetPC(-1); err == nil {
		t.Error("SetPC(-1) should fail")
	}
	if err := in.SetPC(999); err == nil {
		t.Error("SetPC past the end should fail")
	}
}

func TestSkipAtEnd(t *testing.T) {
	in := New(NewProgram("empty", nil))
	if err := in.Skip(); err != nil {
		t.Errorf("Skip at end failed: %v", err)
	}
	if in.PC() != 0 {
		t.Errorf("PC moved to 0x%04x", in.PC())
	}
}

func TestStatus(t *testing.T) {
	in := New(buildProgram(t, func(b *Builder) {
		b.PushInt(7)
	}))
	want := "pc=0x0000 steps=0 depth=0 heap=9 next: 0000  push_int 7"
	if got := in.Status(); got != want {
		t.Errorf("Status = %q, want %q", got, want)
	}

	if _, err := in.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if got := in.Status(); !strings.Contains(got, "end of stream") {
		t.Errorf("Status at end = %q, want it to note the end of stream", got)
	}
}

func TestDumpStack(t *testing.T) {
	in := New(buildProgram(t, func(b *Builder) {
		b.PushStr("a")
		b.PushFloat(1)
	}))
	if _, err := in.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var buf bytes.Buffer
	in.DumpStack(&buf)
	want := "  [0] 1\n  [1] \"a\"\n"
	if got := buf.String(); got != want {
		t.Errorf("DumpStack = %q, want %q", got, want)
	}
}

func TestDumpStackEmpty(t *testing.T) {
	in := New(NewProgram("empty", nil))
	var buf bytes.Buffer
	in.DumpStack(&buf)
	if got := buf.String(); got != "stack: empty\n" {
		t.Errorf("DumpStack = %q, want %q", got, "stack: empty\n")
	}
}

func TestDumpHeap(t *testing.T) {
	in := New(NewProgram("empty", nil))
	var buf bytes.Buffer
	in.DumpHeap(&buf, 0, 2)
	want := "  0000  <ref ->1>\n  0001  <dict 2>\n"
	if got := buf.String(); got != want {
		t.Errorf("DumpHeap = %q, want %q", got, want)
	}
}

func TestDumpHeapClamps(t *testing.T) {
	in := New(NewProgram("empty", nil))
	var buf bytes.Buffer
	in.DumpHeap(&buf, -5, 9999)
	lines := strings.Count(buf.String(), "\n")
	if lines != in.Heap().Len() {
		t.Errorf("DumpHeap wrote %d lines, want %d", lines, in.Heap().Len())
	}
}

func TestDebugString(t *testing.T) {
	if got := DebugString(FromStr("a")); got != `"a"` {
		t.Errorf("DebugString(str) = %q, want %q", got, `"a"`)
	}
	if got := DebugString(FromFloat(1)); got != "1" {
		t.Errorf("DebugString(float) = %q, want %q", got, "1")
	}
}
