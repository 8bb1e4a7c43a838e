package critbit

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/infra/wire"
)

// Field numbers of the persisted layout.
const (
	fieldRoot  protowire.Number = 1
	fieldInner protowire.Number = 2
	fieldOuter protowire.Number = 3
)

// Encode writes the map with its exact slice layout, so a decoded map has
// the same node indexes as the one that was stored.
func (m *Map[V]) Encode(enc *wire.Encoder, value func(*wire.Encoder, V)) {
	enc.PutUint64(fieldRoot, packRef(m.root))
	for _, n := range m.inner {
		enc.PutMessage(fieldInner, func(sub *wire.Encoder) {
			sub.PutUint64(1, uint64(n.critBit))
			sub.PutUint64(2, uint64(n.parent+1))
			sub.PutUint64(3, packRef(n.left))
			sub.PutUint64(4, packRef(n.right))
		})
	}
	for _, n := range m.outer {
		enc.PutMessage(fieldOuter, func(sub *wire.Encoder) {
			sub.PutFixed64(1, n.key.Hi)
			sub.PutFixed64(2, n.key.Lo)
			sub.PutUint64(3, uint64(n.parent+1))
			sub.PutMessage(4, func(v *wire.Encoder) { value(v, n.value) })
		})
	}
}

// Decode rebuilds a map written by Encode and checks every link.
func Decode[V any](data []byte, value func([]byte) (V, error)) (*Map[V], error) {
	m := &Map[V]{}
	var rootPacked uint64
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case fieldRoot:
			v, err := f.Uint64()
			rootPacked = v
			return err
		case fieldInner:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			n, err := decodeInner(raw)
			if err != nil {
				return err
			}
			m.inner = append(m.inner, n)
		case fieldOuter:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			n, err := decodeOuter(raw, value)
			if err != nil {
				return err
			}
			m.outer = append(m.outer, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	m.root = unpackRef(rootPacked)
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func decodeInner(raw []byte) (innerNode, error) {
	n := innerNode{parent: noParent}
	err := wire.Decode(raw, func(num protowire.Number, f wire.Field) error {
		v, err := f.Uint64()
		if err != nil {
			return err
		}
		switch num {
		case 1:
			if v > 127 {
				return fmt.Errorf("%w: critical bit %d", ErrCorrupt, v)
			}
			n.critBit = uint8(v)
		case 2:
			n.parent = int(v) - 1
		case 3:
			n.left = unpackRef(v)
		case 4:
			n.right = unpackRef(v)
		}
		return nil
	})
	return n, err
}

func decodeOuter[V any](raw []byte, value func([]byte) (V, error)) (outerNode[V], error) {
	n := outerNode[V]{parent: noParent}
	var payload []byte
	err := wire.Decode(raw, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1:
			v, err := f.Uint64()
			n.key.Hi = v
			return err
		case 2:
			v, err := f.Uint64()
			n.key.Lo = v
			return err
		case 3:
			v, err := f.Uint64()
			n.parent = int(v) - 1
			return err
		case 4:
			b, err := f.Bytes()
			payload = b
			return err
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	n.value, err = value(payload)
	return n, err
}

func (m *Map[V]) validate() error {
	if len(m.outer) == 0 {
		if !m.root.IsNone() || len(m.inner) != 0 {
			return fmt.Errorf("%w: empty map with nodes", ErrCorrupt)
		}
		return nil
	}
	if len(m.inner) != len(m.outer)-1 {
		return fmt.Errorf("%w: %d inner for %d outer", ErrCorrupt, len(m.inner), len(m.outer))
	}
	if !m.validRef(m.root) || m.parentOf(m.root) != noParent {
		return fmt.Errorf("%w: bad root", ErrCorrupt)
	}
	for i, n := range m.inner {
		if !m.validRef(n.left) || !m.validRef(n.right) {
			return fmt.Errorf("%w: inner %d has dangling child", ErrCorrupt, i)
		}
		if m.parentOf(n.left) != i || m.parentOf(n.right) != i {
			return fmt.Errorf("%w: inner %d child parent mismatch", ErrCorrupt, i)
		}
		if n.parent < noParent || n.parent >= len(m.inner) {
			return fmt.Errorf("%w: inner %d parent out of range", ErrCorrupt, i)
		}
	}
	for i, n := range m.outer {
		if n.parent < noParent || n.parent >= len(m.inner) {
			return fmt.Errorf("%w: outer %d parent out of range", ErrCorrupt, i)
		}
	}
	return nil
}

func (m *Map[V]) validRef(r NodeRef) bool {
	switch r.kind {
	case refInner:
		return r.index >= 0 && r.index < len(m.inner)
	case refOuter:
		return r.index >= 0 && r.index < len(m.outer)
	}
	return false
}

func (m *Map[V]) parentOf(r NodeRef) int {
	if r.kind == refInner {
		return m.inner[r.index].parent
	}
	return m.outer[r.index].parent
}

// packRef stores a reference as index<<2 | kind; 0 is the empty reference.
func packRef(r NodeRef) uint64 {
	if r.IsNone() {
		return 0
	}
	return uint64(r.index)<<2 | uint64(r.kind)
}

func unpackRef(v uint64) NodeRef {
	kind := refKind(v & 3)
	if kind != refInner && kind != refOuter {
		return NodeRef{}
	}
	return NodeRef{kind: kind, index: int(v >> 2)}
}
