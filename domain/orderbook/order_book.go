// Package orderbook holds the resting side of a market: two crit-bit maps of
// positions keyed by order ID, and a cached best key per side.
package orderbook

import (
	"errors"
	"fmt"

	"ledgerbook/domain/capability"
	"ledgerbook/domain/critbit"
	"ledgerbook/domain/orderid"
)

var (
	ErrWouldCross  = errors.New("orderbook: order would cross the spread")
	ErrNoSuchOrder = errors.New("orderbook: no such order")
)

// OrderBook is single-writer and deterministic.
type OrderBook struct {
	ScaleFactor uint64

	Asks *critbit.Map[Position]
	Bids *critbit.Map[Position]

	// BestAskID is the minimum ask key, orderid.NoneAsk when empty.
	BestAskID orderid.ID
	// BestBidID is the maximum bid key, orderid.NoneBid when empty.
	BestBidID orderid.ID

	// Counter is the last sequence number handed out by NextID.
	Counter uint64
}

func NewOrderBook(scaleFactor uint64) *OrderBook {
	return &OrderBook{
		ScaleFactor: scaleFactor,
		Asks:        critbit.New[Position](),
		Bids:        critbit.New[Position](),
		BestAskID:   orderid.NoneAsk,
		BestBidID:   orderid.NoneBid,
	}
}

// Tree returns the index of one side.
func (b *OrderBook) Tree(side Side) *critbit.Map[Position] {
	if side == Bid {
		return b.Bids
	}
	return b.Asks
}

// NextID allocates the next order ID for side at price.
func (b *OrderBook) NextID(side Side, price uint64) orderid.ID {
	b.Counter++
	if side == Bid {
		return orderid.EncodeBid(price, b.Counter)
	}
	return orderid.EncodeAsk(price, b.Counter)
}

// BestPrice reports the best price of side, false when the side is empty.
func (b *OrderBook) BestPrice(side Side) (uint64, bool) {
	if b.Tree(side).IsEmpty() {
		return 0, false
	}
	if side == Bid {
		return orderid.Price(b.BestBidID), true
	}
	return orderid.Price(b.BestAskID), true
}

// Crosses reports whether a price on side would trade against the
// opposite side's best.
func (b *OrderBook) Crosses(side Side, price uint64) bool {
	best, ok := b.BestPrice(side.Opposite())
	if !ok {
		return false
	}
	if side == Ask {
		return price <= best
	}
	return price >= best
}

// ---------------- Mutations ----------------

// AddPosition rests pos under id. A price that would cross the spread is
// refused with ErrWouldCross; those orders belong to the matching engine.
func (b *OrderBook) AddPosition(fc capability.FriendCap, side Side, id orderid.ID, pos Position) error {
	if err := fc.Check(); err != nil {
		return err
	}
	if b.Crosses(side, orderid.Price(id)) {
		return fmt.Errorf("%w: %s at %d", ErrWouldCross, side, orderid.Price(id))
	}
	if err := b.Tree(side).Insert(id, pos); err != nil {
		return fmt.Errorf("add %s: %w", orderid.Format(id, side == Bid), err)
	}

	switch side {
	case Ask:
		if id.Cmp(b.BestAskID) < 0 {
			b.BestAskID = id
		}
	case Bid:
		if id.Cmp(b.BestBidID) > 0 {
			b.BestBidID = id
		}
	}
	return nil
}

// CancelPosition removes id and returns what was resting there.
func (b *OrderBook) CancelPosition(fc capability.FriendCap, side Side, id orderid.ID) (Position, error) {
	if err := fc.Check(); err != nil {
		return Position{}, err
	}
	pos, err := b.Tree(side).Pop(id)
	if err != nil {
		if errors.Is(err, critbit.ErrKeyNotFound) {
			return Position{}, fmt.Errorf("%w: %s", ErrNoSuchOrder, orderid.Format(id, side == Bid))
		}
		return Position{}, err
	}

	if (side == Ask && id == b.BestAskID) || (side == Bid && id == b.BestBidID) {
		b.RefreshBest(side)
	}
	return pos, nil
}

// RefreshBest recomputes the cached best key of side from the tree.
func (b *OrderBook) RefreshBest(side Side) {
	if side == Bid {
		k, err := b.Bids.MaxKey()
		if err != nil {
			k = orderid.NoneBid
		}
		b.BestBidID = k
		return
	}
	k, err := b.Asks.MinKey()
	if err != nil {
		k = orderid.NoneAsk
	}
	b.BestAskID = k
}

// ---------------- Traversal helpers ----------------

// Direction is the best-first traversal direction of side.
func Direction(side Side) critbit.Direction {
	if side == Bid {
		return critbit.Descending
	}
	return critbit.Ascending
}

// Walk visits the positions of side best first.
func (b *OrderBook) Walk(side Side, fn func(id orderid.ID, pos Position) bool) {
	b.Tree(side).Walk(Direction(side), func(k critbit.Key, v *Position) bool {
		return fn(k, *v)
	})
}

// Levels aggregates side into at most depth price levels, best first. A
// depth of 0 means all levels.
func (b *OrderBook) Levels(side Side, depth int) []PriceLevel {
	var out []PriceLevel
	b.Walk(side, func(id orderid.ID, pos Position) bool {
		price := orderid.Price(id)
		if n := len(out); n > 0 && out[n-1].Price == price {
			out[n-1].TotalSize += pos.Size
			out[n-1].OrderCount++
			return true
		}
		if depth > 0 && len(out) == depth {
			return false
		}
		out = append(out, PriceLevel{Price: price, TotalSize: pos.Size, OrderCount: 1})
		return true
	})
	return out
}
