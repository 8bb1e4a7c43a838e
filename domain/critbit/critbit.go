// Package critbit is an ordered map keyed by 128-bit integers, stored as a
// binary radix ("crit-bit") trie in two dense slices instead of linked
// nodes. Leaves live in outer, branch points in inner; every node is
// addressed by its slice index, so the whole map is flat and can be
// persisted without pointer fix-ups.
//
// A map with n entries always has exactly n-1 inner nodes. Removal
// swap-removes from both slices, so indexes handed out before a Pop are not
// stable across it.
package critbit

import (
	"errors"

	"lukechampine.com/uint128"
)

var (
	ErrDuplicateKey = errors.New("critbit: duplicate key")
	ErrKeyNotFound  = errors.New("critbit: key not found")
	ErrEmptyMap     = errors.New("critbit: empty map")
	ErrMapFull      = errors.New("critbit: map full")
	ErrCorrupt      = errors.New("critbit: corrupt encoding")
)

// Key is the 128-bit map key.
type Key = uint128.Uint128

// MaxEntries bounds the number of leaves a map may hold.
const MaxEntries uint64 = 1<<63 - 1

// maxEntries is lowered by tests.
var maxEntries = MaxEntries

// noParent marks the root.
const noParent = -1

type refKind uint8

const (
	refNone refKind = iota
	refInner
	refOuter
)

// NodeRef addresses one node in either backing slice.
type NodeRef struct {
	kind  refKind
	index int
}

func innerRef(i int) NodeRef { return NodeRef{kind: refInner, index: i} }
func outerRef(i int) NodeRef { return NodeRef{kind: refOuter, index: i} }

func (r NodeRef) IsInner() bool { return r.kind == refInner }
func (r NodeRef) IsOuter() bool { return r.kind == refOuter }
func (r NodeRef) IsNone() bool  { return r.kind == refNone }
func (r NodeRef) Index() int    { return r.index }

// innerNode branches on critBit: keys with a 0 there go left.
type innerNode struct {
	critBit uint8
	parent  int
	left    NodeRef
	right   NodeRef
}

type outerNode[V any] struct {
	key    Key
	value  V
	parent int
}

// Map is the crit-bit map. The zero value is an empty map.
type Map[V any] struct {
	root  NodeRef
	inner []innerNode
	outer []outerNode[V]
}

func New[V any]() *Map[V] {
	return &Map[V]{}
}

func (m *Map[V]) Len() int {
	return len(m.outer)
}

func (m *Map[V]) IsEmpty() bool {
	return m.root.IsNone()
}

// Root exposes the root reference for inspection.
func (m *Map[V]) Root() NodeRef {
	return m.root
}

// InnerLen is the number of branch nodes, always Len()-1 for a non-empty map.
func (m *Map[V]) InnerLen() int {
	return len(m.inner)
}

// ---------------- Lookup ----------------

func (m *Map[V]) Has(k Key) bool {
	_, ok := m.find(k)
	return ok
}

// Borrow returns a pointer to the value stored under k. The pointer stays
// valid until the next Insert or Pop.
func (m *Map[V]) Borrow(k Key) (*V, error) {
	i, ok := m.find(k)
	if !ok {
		return nil, ErrKeyNotFound
	}
	return &m.outer[i].value, nil
}

func (m *Map[V]) Get(k Key) (V, error) {
	p, err := m.Borrow(k)
	if err != nil {
		var zero V
		return zero, err
	}
	return *p, nil
}

func (m *Map[V]) MinKey() (Key, error) {
	if m.IsEmpty() {
		return Key{}, ErrEmptyMap
	}
	return m.outer[m.extreme(m.root, Ascending)].key, nil
}

func (m *Map[V]) MaxKey() (Key, error) {
	if m.IsEmpty() {
		return Key{}, ErrEmptyMap
	}
	return m.outer[m.extreme(m.root, Descending)].key, nil
}

// ---------------- Insert ----------------

// Insert adds k. It never overwrites.
func (m *Map[V]) Insert(k Key, v V) error {
	if uint64(len(m.outer)) >= maxEntries {
		return ErrMapFull
	}
	if m.IsEmpty() {
		m.outer = append(m.outer, outerNode[V]{key: k, value: v, parent: noParent})
		m.root = outerRef(0)
		return nil
	}

	closest := m.closest(k)
	if m.outer[closest].key == k {
		return ErrDuplicateKey
	}
	crit := critBit(m.outer[closest].key, k)

	// Climb until the parent splits on a higher bit than the new node.
	child := outerRef(closest)
	parent := m.outer[closest].parent
	for parent != noParent && m.inner[parent].critBit < crit {
		child = innerRef(parent)
		parent = m.inner[parent].parent
	}

	newInner := len(m.inner)
	newOuter := len(m.outer)
	node := innerNode{critBit: crit, parent: parent}
	if bitAt(k, crit) == 1 {
		node.left, node.right = child, outerRef(newOuter)
	} else {
		node.left, node.right = outerRef(newOuter), child
	}

	m.inner = append(m.inner, node)
	m.outer = append(m.outer, outerNode[V]{key: k, value: v, parent: newInner})
	m.setParent(child, newInner)
	m.relink(parent, child, innerRef(newInner))
	return nil
}

// ---------------- Pop ----------------

// Pop removes k and returns its value.
func (m *Map[V]) Pop(k Key) (V, error) {
	i, ok := m.find(k)
	if !ok {
		var zero V
		return zero, ErrKeyNotFound
	}
	return m.popAt(i), nil
}

func (m *Map[V]) popAt(idx int) V {
	v := m.outer[idx].value

	if m.root.IsOuter() {
		m.outer[0] = outerNode[V]{}
		m.outer = m.outer[:0]
		m.root = NodeRef{}
		return v
	}

	// Promote the sibling into the parent's slot.
	p := m.outer[idx].parent
	pn := m.inner[p]
	sibling := pn.left
	if sibling == outerRef(idx) {
		sibling = pn.right
	}
	m.setParent(sibling, pn.parent)
	m.relink(pn.parent, innerRef(p), sibling)

	m.removeInner(p)
	m.removeOuter(idx)
	return v
}

// removeInner swap-removes an already unlinked inner node.
func (m *Map[V]) removeInner(i int) {
	last := len(m.inner) - 1
	if i != last {
		moved := m.inner[last]
		m.inner[i] = moved
		m.relink(moved.parent, innerRef(last), innerRef(i))
		m.setParent(moved.left, i)
		m.setParent(moved.right, i)
	}
	m.inner = m.inner[:last]
}

// removeOuter swap-removes an already unlinked leaf.
func (m *Map[V]) removeOuter(i int) {
	last := len(m.outer) - 1
	if i != last {
		moved := m.outer[last]
		m.outer[i] = moved
		m.relink(moved.parent, outerRef(last), outerRef(i))
	}
	m.outer[last] = outerNode[V]{}
	m.outer = m.outer[:last]
}

// ---------------- Internal helpers ----------------

// closest descends by k's bits to the leaf sharing its longest prefix.
func (m *Map[V]) closest(k Key) int {
	ref := m.root
	for ref.IsInner() {
		n := &m.inner[ref.index]
		if bitAt(k, n.critBit) == 1 {
			ref = n.right
		} else {
			ref = n.left
		}
	}
	return ref.index
}

func (m *Map[V]) find(k Key) (int, bool) {
	if m.IsEmpty() {
		return 0, false
	}
	i := m.closest(k)
	return i, m.outer[i].key == k
}

func (m *Map[V]) extreme(ref NodeRef, dir Direction) int {
	for ref.IsInner() {
		if dir == Ascending {
			ref = m.inner[ref.index].left
		} else {
			ref = m.inner[ref.index].right
		}
	}
	return ref.index
}

func (m *Map[V]) setParent(ref NodeRef, parent int) {
	switch ref.kind {
	case refInner:
		m.inner[ref.index].parent = parent
	case refOuter:
		m.outer[ref.index].parent = parent
	}
}

// relink points parent (or the root) at to where it pointed at from.
func (m *Map[V]) relink(parent int, from, to NodeRef) {
	if parent == noParent {
		m.root = to
		return
	}
	n := &m.inner[parent]
	if n.left == from {
		n.left = to
	} else {
		n.right = to
	}
}

// bitAt returns bit b of k, bit 127 being the most significant.
func bitAt(k Key, b uint8) uint64 {
	if b >= 64 {
		return (k.Hi >> (b - 64)) & 1
	}
	return (k.Lo >> b) & 1
}

// critBit is the index of the highest bit where a and b differ. a != b.
func critBit(a, b Key) uint8 {
	return uint8(127 - a.Xor(b).LeadingZeros())
}
