package mvalue

// Cell is the unit of closure capture: a single heap-allocated
// interior-mutable box. The enclosing scope holds it in its cellvar
// array; every nested function that captures the same variable stores a
// pointer to the same Cell in its own binding list, and at call time that
// binding list is copied into the new frame's cellvar prefix. This
// replaces any "pointer to parent frame" scheme, per the Design Notes —
// lifetimes are governed strictly by reference counting (Go's GC, in this
// implementation), and a Cell's identity (not its contents) is what two
// closures over the same variable share.
type Cell struct {
	value Value
}

// NewCell allocates a Cell holding the given initial value. Owned-cell
// variables are allocated with v == Uninitialized; freevar cells are
// allocated already holding the captured binding.
func NewCell(v Value) *Cell {
	return &Cell{value: v}
}

// Load reads the cell's current contents.
func (c *Cell) Load() Value { return c.value }

// Store overwrites the cell's contents. Single-threaded execution (§5)
// means no locking is required here; the one constraint the Design Notes
// impose is on callers: never hold two live mutable borrows of the same
// cell across a reentrant native call, since this type does not itself
// guard against that — it is a plain box, not a mutex.
func (c *Cell) Store(v Value) { c.value = v }
