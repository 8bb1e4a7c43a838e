// Package openorders mirrors, per user and market, the sizes of the orders
// that user has resting in the book. It is only consulted for collateral
// accounting, never for matching.
package openorders

import (
	"errors"
	"fmt"

	"ledgerbook/domain/critbit"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
)

var ErrNoSuchOrder = errors.New("openorders: no such order")

type OpenOrders struct {
	ScaleFactor uint64

	Asks *critbit.Map[uint64]
	Bids *critbit.Map[uint64]
}

func New(scaleFactor uint64) *OpenOrders {
	return &OpenOrders{
		ScaleFactor: scaleFactor,
		Asks:        critbit.New[uint64](),
		Bids:        critbit.New[uint64](),
	}
}

func (o *OpenOrders) Tree(side orderbook.Side) *critbit.Map[uint64] {
	if side == orderbook.Bid {
		return o.Bids
	}
	return o.Asks
}

func (o *OpenOrders) IsEmpty() bool {
	return o.Asks.IsEmpty() && o.Bids.IsEmpty()
}

func (o *OpenOrders) Add(side orderbook.Side, id orderid.ID, size uint64) error {
	if err := o.Tree(side).Insert(id, size); err != nil {
		return fmt.Errorf("open order %s: %w", orderid.Format(id, side == orderbook.Bid), err)
	}
	return nil
}

// Size is the remaining size of id.
func (o *OpenOrders) Size(side orderbook.Side, id orderid.ID) (uint64, error) {
	v, err := o.Tree(side).Get(id)
	if err != nil {
		return 0, o.notFound(side, id, err)
	}
	return v, nil
}

// Remove drops id and returns the size it had left.
func (o *OpenOrders) Remove(side orderbook.Side, id orderid.ID) (uint64, error) {
	v, err := o.Tree(side).Pop(id)
	if err != nil {
		return 0, o.notFound(side, id, err)
	}
	return v, nil
}

// Shrink takes filled off id. Reaching zero removes the entry.
func (o *OpenOrders) Shrink(side orderbook.Side, id orderid.ID, filled uint64) error {
	p, err := o.Tree(side).Borrow(id)
	if err != nil {
		return o.notFound(side, id, err)
	}
	if filled > *p {
		return fmt.Errorf("openorders: fill %d exceeds open size %d", filled, *p)
	}
	*p -= filled
	if *p == 0 {
		_, err = o.Tree(side).Pop(id)
	}
	return err
}

// Each visits the open orders of side in key order.
func (o *OpenOrders) Each(side orderbook.Side, fn func(id orderid.ID, size uint64)) {
	o.Tree(side).Walk(orderbook.Direction(side), func(k critbit.Key, v *uint64) bool {
		fn(k, *v)
		return true
	})
}

func (o *OpenOrders) notFound(side orderbook.Side, id orderid.ID, err error) error {
	if errors.Is(err, critbit.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", ErrNoSuchOrder, orderid.Format(id, side == orderbook.Bid))
	}
	return err
}
