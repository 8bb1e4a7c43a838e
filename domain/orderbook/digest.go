package orderbook

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"ledgerbook/domain/critbit"
	"ledgerbook/domain/orderid"
)

// Digest hashes both sides in key order. Two books with the same resting
// orders have the same digest regardless of their internal node layout.
func (b *OrderBook) Digest() [32]byte {
	h := blake3.New()
	var buf [8]byte

	put := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		_, _ = h.Write(buf[:])
	}

	put(b.ScaleFactor)
	put(b.Counter)
	for _, side := range []Side{Ask, Bid} {
		put(uint64(b.Tree(side).Len()))
		b.Tree(side).Walk(critbit.Ascending, func(k orderid.ID, v *Position) bool {
			put(k.Hi)
			put(k.Lo)
			put(v.Size)
			_, _ = h.Write(v.Owner[:])
			return true
		})
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
