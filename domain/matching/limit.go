package matching

import (
	"fmt"

	"ledgerbook/domain/account"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/collateral"
	"ledgerbook/domain/openorders"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
)

// Owner bundles one user's records on one market.
type Owner struct {
	Address account.Address
	Vault   *collateral.Vault
	Orders  *openorders.OpenOrders
}

// PlaceLimitOrder reserves collateral and rests size lots at price. An order
// that would cross is refused with orderbook.ErrWouldCross before anything
// is reserved.
func PlaceLimitOrder(
	fc capability.FriendCap,
	book *orderbook.OrderBook,
	owner Owner,
	side orderbook.Side,
	price, size uint64,
) (orderid.ID, error) {
	if err := fc.Check(); err != nil {
		return orderid.ID{}, err
	}
	if size == 0 {
		return orderid.ID{}, ErrZeroSize
	}
	if book.Crosses(side, price) {
		return orderid.ID{}, fmt.Errorf("%w: %s at %d", orderbook.ErrWouldCross, side, price)
	}
	if err := owner.Vault.Reserve(fc, side, size, price, book.ScaleFactor); err != nil {
		return orderid.ID{}, err
	}

	id := book.NextID(side, price)
	if err := book.AddPosition(fc, side, id, orderbook.Position{Size: size, Owner: owner.Address}); err != nil {
		return orderid.ID{}, err
	}
	if err := owner.Orders.Add(side, id, size); err != nil {
		return orderid.ID{}, err
	}
	return id, nil
}

// CancelOrder removes owner's resting order id and credits back the
// collateral held for its remaining size.
func CancelOrder(
	fc capability.FriendCap,
	book *orderbook.OrderBook,
	owner Owner,
	side orderbook.Side,
	id orderid.ID,
) (orderbook.Position, error) {
	if err := fc.Check(); err != nil {
		return orderbook.Position{}, err
	}
	// Only the owner's mirror proves ownership.
	if _, err := owner.Orders.Size(side, id); err != nil {
		return orderbook.Position{}, fmt.Errorf("%w: %v", orderbook.ErrNoSuchOrder, err)
	}
	pos, err := book.CancelPosition(fc, side, id)
	if err != nil {
		return orderbook.Position{}, err
	}
	if pos.Owner != owner.Address {
		return orderbook.Position{}, fmt.Errorf("%w: %s not owned by %s", orderbook.ErrNoSuchOrder,
			orderid.Format(id, side == orderbook.Bid), owner.Address)
	}
	if _, err := owner.Orders.Remove(side, id); err != nil {
		return orderbook.Position{}, err
	}
	if err := owner.Vault.Release(fc, side, pos.Size, orderid.Price(id), book.ScaleFactor); err != nil {
		return orderbook.Position{}, err
	}
	return pos, nil
}
