package critbit

import (
	"testing"

	"github.com/google/btree"
	"pgregory.net/rapid"
)

func keyLess(a, b Key) bool { return a.Cmp(b) < 0 }

// TestPropertyMatchesOrderedSet drives random inserts and pops against a
// btree and checks the traversal order and structure after every step.
func TestPropertyMatchesOrderedSet(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := New[uint64]()
		oracle := btree.NewG[Key](8, keyLess)

		// Narrow key space so duplicates and shared prefixes are common.
		genKey := rapid.Custom(func(t *rapid.T) Key {
			return k(rapid.Uint64Range(0, 7).Draw(t, "hi"), rapid.Uint64Range(0, 31).Draw(t, "lo"))
		})

		steps := rapid.IntRange(1, 120).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			key := genKey.Draw(t, "key")
			if rapid.Bool().Draw(t, "insert") {
				err := m.Insert(key, key.Lo)
				_, exists := oracle.ReplaceOrInsert(key)
				if exists != (err != nil) {
					t.Fatalf("insert %v: err=%v exists=%v", key, err, exists)
				}
			} else {
				v, err := m.Pop(key)
				_, existed := oracle.Delete(key)
				if existed != (err == nil) {
					t.Fatalf("pop %v: err=%v existed=%v", key, err, existed)
				}
				if err == nil && v != key.Lo {
					t.Fatalf("pop %v returned %d", key, v)
				}
			}

			if m.Len() != oracle.Len() {
				t.Fatalf("len %d, oracle %d", m.Len(), oracle.Len())
			}
			got := m.Keys(Ascending)
			j := 0
			oracle.Ascend(func(want Key) bool {
				if got[j] != want {
					t.Fatalf("position %d: got %v want %v", j, got[j], want)
				}
				j++
				return true
			})
			if lo, ok := oracle.Min(); ok {
				if mk, _ := m.MinKey(); mk != lo {
					t.Fatalf("min %v want %v", mk, lo)
				}
				hi, _ := oracle.Max()
				if mk, _ := m.MaxKey(); mk != hi {
					t.Fatalf("max %v want %v", mk, hi)
				}
			}
			checkInvariants(t, m)
		}
	})
}

// TestPropertyInsertPopRoundTrip checks pop(insert(k, v)) == v and that the
// remaining key set is unchanged.
func TestPropertyInsertPopRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := New[uint64]()
		base := rapid.SliceOfNDistinct(rapid.Uint64(), 0, 40, func(v uint64) uint64 { return v }).Draw(t, "base")
		for _, v := range base {
			_ = m.Insert(k(v, v), v)
		}
		before := m.Keys(Ascending)

		fresh := rapid.Uint64().Filter(func(v uint64) bool { return !m.Has(k(v, ^v)) }).Draw(t, "fresh")
		if err := m.Insert(k(fresh, ^fresh), 42); err != nil {
			t.Fatalf("insert: %v", err)
		}
		v, err := m.Pop(k(fresh, ^fresh))
		if err != nil || v != 42 {
			t.Fatalf("pop: %v %d", err, v)
		}

		after := m.Keys(Ascending)
		if len(after) != len(before) {
			t.Fatalf("len %d want %d", len(after), len(before))
		}
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("key %d changed", i)
			}
		}
		checkInvariants(t, m)
	})
}

// TestPropertyCursorDrain pops every entry through a cursor in a random
// direction and expects strict monotonic keys.
func TestPropertyCursorDrain(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		m := New[uint64]()
		vals := rapid.SliceOfNDistinct(rapid.Uint64Range(0, 1<<20), 1, 60, func(v uint64) uint64 { return v }).Draw(t, "vals")
		for _, v := range vals {
			if err := m.Insert(k(v>>10, v), v); err != nil {
				t.Fatalf("insert: %v", err)
			}
		}
		dir := Direction(rapid.IntRange(0, 1).Draw(t, "dir"))

		c, err := m.TraverseInit(dir)
		if err != nil {
			t.Fatal(err)
		}
		prev := c.Key()
		n := 1
		for {
			_, more := c.PopNext()
			if !more {
				break
			}
			cur := c.Key()
			cmp := prev.Cmp(cur)
			if (dir == Ascending && cmp >= 0) || (dir == Descending && cmp <= 0) {
				t.Fatalf("out of order: %v then %v", prev, cur)
			}
			prev = cur
			n++
		}
		if n != len(vals) || !m.IsEmpty() {
			t.Fatalf("drained %d of %d, left %d", n, len(vals), m.Len())
		}
	})
}
