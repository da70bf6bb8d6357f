package vm

import "fmt"

// Heap is the append-only cell arena. Cells are never freed or moved, so
// any reference ever handed out stays valid for the life of the machine.
// A dictionary or array header occupies a single cell and its element
// cells are ordinary heap cells reached through the header. Call frames
// are plain cell ranges claimed at call time.
type Heap struct {
	cells []Value
	limit int // maximum cell count, 0 means unbounded
}

// NewHeap creates an empty heap.
func NewHeap() *Heap {
	return &Heap{cells: make([]Value, 0, 256)}
}

// SetLimit caps the heap at n cells. Zero removes the cap.
func (h *Heap) SetLimit(n int) { h.limit = n }

// Len returns the number of live cells.
func (h *Heap) Len() int { return len(h.cells) }

func (h *Heap) grow(n int) error {
	if h.limit > 0 && len(h.cells)+n > h.limit {
		return fmt.Errorf("heap ceiling exceeded: %d cells needed, limit is %d", len(h.cells)+n, h.limit)
	}
	return nil
}

// Alloc appends one cell holding v and returns its slot.
func (h *Heap) Alloc(v Value) (int, error) {
	if err := h.grow(1); err != nil {
		return 0, err
	}
	h.cells = append(h.cells, v)
	return len(h.cells) - 1, nil
}

// AllocRange appends n undefined cells and returns the first slot.
// Call frames are allocated this way.
func (h *Heap) AllocRange(n int) (int, error) {
	if err := h.grow(n); err != nil {
		return 0, err
	}
	base := len(h.cells)
	for i := 0; i < n; i++ {
		h.cells = append(h.cells, Undefined)
	}
	return base, nil
}

// AllocDict appends an empty dictionary header cell and returns its slot.
func (h *Heap) AllocDict() (int, error) {
	return h.Alloc(FromDict(NewDict()))
}

// bootstrap appends a cell before execution begins, bypassing the
// ceiling. The builtin tree is installed this way.
func (h *Heap) bootstrap(v Value) int {
	h.cells = append(h.cells, v)
	return len(h.cells) - 1
}

// Load returns the cell at slot.
func (h *Heap) Load(slot int) (Value, error) {
	if slot < 0 || slot >= len(h.cells) {
		return Undefined, fmt.Errorf("slot %d out of range, heap holds %d cells", slot, len(h.cells))
	}
	return h.cells[slot], nil
}

// Store overwrites the cell at slot.
func (h *Heap) Store(slot int, v Value) error {
	if slot < 0 || slot >= len(h.cells) {
		return fmt.Errorf("slot %d out of range, heap holds %d cells", slot, len(h.cells))
	}
	h.cells[slot] = v
	return nil
}

// DictAt returns the dictionary header stored at slot.
func (h *Heap) DictAt(slot int) (*Dict, error) {
	v, err := h.Load(slot)
	if err != nil {
		return nil, err
	}
	if !v.IsDict() {
		return nil, fmt.Errorf("slot %d holds %s, not a dictionary", slot, v.Kind())
	}
	return v.Dict(), nil
}

// Materialize appends a cell holding v and binds key to it in the
// dictionary whose header sits at base. This is how a store through a
// pending reference creates the field it was aimed at.
func (h *Heap) Materialize(base int, key Key, v Value) (int, error) {
	d, err := h.DictAt(base)
	if err != nil {
		return 0, err
	}
	slot, err := h.Alloc(v)
	if err != nil {
		return 0, err
	}
	d.Entries[key] = slot
	return slot, nil
}

// Cells returns a copy of the arena from slot 0 upward.
func (h *Heap) Cells() []Value {
	out := make([]Value, len(h.cells))
	copy(out, h.cells)
	return out
}
