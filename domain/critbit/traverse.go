package critbit

// Direction selects in-order traversal order.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

// Cursor walks leaves in key order without recursion or a stack, climbing
// parent links to the nearest unvisited subtree. A cursor is invalidated by
// any Insert or Pop except its own PopNext.
type Cursor[V any] struct {
	m    *Map[V]
	dir  Direction
	node int
}

// TraverseInit positions a cursor on the first leaf in dir.
func (m *Map[V]) TraverseInit(dir Direction) (Cursor[V], error) {
	if m.IsEmpty() {
		return Cursor[V]{}, ErrEmptyMap
	}
	return Cursor[V]{m: m, dir: dir, node: m.extreme(m.root, dir)}, nil
}

func (c *Cursor[V]) Key() Key {
	return c.m.outer[c.node].key
}

// Value points into the map; valid until the cursor moves.
func (c *Cursor[V]) Value() *V {
	return &c.m.outer[c.node].value
}

// Index is the outer slot the cursor sits on.
func (c *Cursor[V]) Index() int {
	return c.node
}

// Parent is the inner slot above the current leaf, -1 at the root.
func (c *Cursor[V]) Parent() int {
	return c.m.outer[c.node].parent
}

// Next steps to the following leaf. It returns false at the end, after
// which the cursor must not be used.
func (c *Cursor[V]) Next() bool {
	next, ok := c.m.successor(c.node, c.dir)
	if ok {
		c.node = next
	}
	return ok
}

// PopNext removes the current leaf and steps to the following one in the
// same pass. When the swap-remove relocates the successor into the vacated
// slot the cursor follows it there.
func (c *Cursor[V]) PopNext() (V, bool) {
	next, ok := c.m.successor(c.node, c.dir)
	last := len(c.m.outer) - 1
	v := c.m.popAt(c.node)
	if ok && next == last {
		next = c.node
	}
	c.node = next
	return v, ok
}

// successor finds the in-order neighbour of leaf idx in dir.
func (m *Map[V]) successor(idx int, dir Direction) (int, bool) {
	from := outerRef(idx)
	p := m.outer[idx].parent
	for p != noParent {
		n := &m.inner[p]
		if dir == Ascending && n.left == from {
			return m.extreme(n.right, Ascending), true
		}
		if dir == Descending && n.right == from {
			return m.extreme(n.left, Descending), true
		}
		from = innerRef(p)
		p = n.parent
	}
	return 0, false
}

// Walk visits every entry in dir until fn returns false.
func (m *Map[V]) Walk(dir Direction, fn func(k Key, v *V) bool) {
	c, err := m.TraverseInit(dir)
	if err != nil {
		return
	}
	for {
		if !fn(c.Key(), c.Value()) {
			return
		}
		if !c.Next() {
			return
		}
	}
}

// Keys lists all keys in dir.
func (m *Map[V]) Keys(dir Direction) []Key {
	out := make([]Key, 0, m.Len())
	m.Walk(dir, func(k Key, _ *V) bool {
		out = append(out, k)
		return true
	})
	return out
}
