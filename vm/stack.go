package vm

import "fmt"

// Stack is the single operand stack. Every instruction reads its inputs
// from the top and leaves its results there; call frames live in the
// heap, so the stack only ever holds values.
type Stack struct {
	vals []Value
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{vals: make([]Value, 0, 64)}
}

// Len returns the number of values on the stack.
func (s *Stack) Len() int { return len(s.vals) }

// Push places v on top of the stack.
func (s *Stack) Push(v Value) {
	s.vals = append(s.vals, v)
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (Value, error) {
	if len(s.vals) == 0 {
		return Undefined, fmt.Errorf("stack underflow")
	}
	v := s.vals[len(s.vals)-1]
	s.vals = s.vals[:len(s.vals)-1]
	return v, nil
}

// Peek returns the top value without removing it.
func (s *Stack) Peek() (Value, error) {
	if len(s.vals) == 0 {
		return Undefined, fmt.Errorf("stack underflow")
	}
	return s.vals[len(s.vals)-1], nil
}

// At returns the value at the given depth, 0 being the top.
func (s *Stack) At(depth int) (Value, error) {
	if depth < 0 || depth >= len(s.vals) {
		return Undefined, fmt.Errorf("depth %d out of range, stack holds %d values", depth, len(s.vals))
	}
	return s.vals[len(s.vals)-1-depth], nil
}

// SetTop replaces the top value.
func (s *Stack) SetTop(v Value) error {
	if len(s.vals) == 0 {
		return fmt.Errorf("stack underflow")
	}
	s.vals[len(s.vals)-1] = v
	return nil
}

// Swap exchanges the values at depths a and b.
func (s *Stack) Swap(a, b int) error {
	n := len(s.vals)
	if a < 0 || a >= n || b < 0 || b >= n {
		return fmt.Errorf("swap %d,%d out of range, stack holds %d values", a, b, n)
	}
	s.vals[n-1-a], s.vals[n-1-b] = s.vals[n-1-b], s.vals[n-1-a]
	return nil
}

// Drop removes the top n values.
func (s *Stack) Drop(n int) error {
	if n < 0 || n > len(s.vals) {
		return fmt.Errorf("cannot drop %d values, stack holds %d", n, len(s.vals))
	}
	s.vals = s.vals[:len(s.vals)-n]
	return nil
}

// Values returns a copy of the stack from bottom to top.
func (s *Stack) Values() []Value {
	out := make([]Value, len(s.vals))
	copy(out, s.vals)
	return out
}

// Reset empties the stack.
func (s *Stack) Reset() {
	s.vals = s.vals[:0]
}
