// Package matching walks the book from the best price outward to fill a
// taker, and places or cancels resting limit orders together with their
// collateral reservation.
//
// Every function here runs to completion or returns the first error. The
// caller owns atomicity: on error it must discard every record it handed in.
package matching

import (
	"errors"
	"fmt"
	"math/bits"

	"ledgerbook/domain/account"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/collateral"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
)

var (
	ErrSelfMatch       = errors.New("matching: taker would match own order")
	ErrZeroSize        = errors.New("matching: zero size")
	ErrZeroQuoteBudget = errors.New("matching: zero quote budget")
	ErrNoMarket        = registry.ErrNoMarket
)

// Makers resolves the collateral records of a resting order's owner.
type Makers interface {
	Maker(owner account.Address) (collateral.Maker, error)
}

// Taker is the party submitting a market order.
type Taker struct {
	Owner account.Address
	Vault *collateral.Vault
}

// Trade is one fill against one resting position.
type Trade struct {
	MakerOrder orderid.ID
	Maker      account.Address
	Price      uint64
	Size       uint64
	Base       uint64
	Quote      uint64
	// MakerDone is set when the resting position left the book.
	MakerDone bool
}

// Result sums a market order.
type Result struct {
	BaseFilled uint64
	QuoteSpent uint64
	Trades     []Trade
}

// FillMarketOrder fills up to size lots for taker. side is the taker's side:
// Bid buys against asks (bounded by quoteBudget), Ask sells into bids.
//
// A buy whose next fill would cost more than the remaining budget is clipped
// to budget / price lots, rounded down, and ends the walk.
func FillMarketOrder(
	fc capability.FriendCap,
	book *orderbook.OrderBook,
	taker Taker,
	side orderbook.Side,
	size uint64,
	quoteBudget uint64,
	makers Makers,
) (Result, error) {
	if err := fc.Check(); err != nil {
		return Result{}, err
	}
	if size == 0 {
		return Result{}, ErrZeroSize
	}
	resting := side.Opposite()
	tree := book.Tree(resting)
	if tree.IsEmpty() {
		return Result{}, nil
	}
	if err := checkTakerFunds(taker.Vault, side, size, quoteBudget, book.ScaleFactor); err != nil {
		return Result{}, err
	}
	cur, err := tree.TraverseInit(orderbook.Direction(resting))
	if err != nil {
		return Result{}, err
	}

	var res Result
	remaining := size
	budget := quoteBudget
	for {
		id := cur.Key()
		pos := cur.Value()
		if pos.Owner == taker.Owner {
			return Result{}, fmt.Errorf("%w: %s", ErrSelfMatch, orderid.Format(id, resting == orderbook.Bid))
		}
		price := orderid.Price(id)

		fill := min(remaining, pos.Size)
		clipped := false
		if side == orderbook.Bid {
			if hi, cost := bits.Mul64(fill, price); hi != 0 || cost > budget {
				fill = budget / price
				clipped = true
			}
		}
		if fill == 0 {
			break
		}

		maker, err := makers.Maker(pos.Owner)
		if err != nil {
			return Result{}, fmt.Errorf("maker %s: %w", pos.Owner, err)
		}
		done := fill == pos.Size
		s, err := collateral.SettleFill(fc, maker, taker.Vault, collateral.Fill{
			TakerSide:     side,
			MakerOrder:    id,
			Size:          fill,
			ScaleFactor:   book.ScaleFactor,
			FullyConsumed: done,
		})
		if err != nil {
			return Result{}, err
		}

		res.Trades = append(res.Trades, Trade{
			MakerOrder: id,
			Maker:      pos.Owner,
			Price:      price,
			Size:       fill,
			Base:       s.Base,
			Quote:      s.Quote,
			MakerDone:  done,
		})
		res.BaseFilled += fill
		res.QuoteSpent += s.Quote
		remaining -= fill
		if side == orderbook.Bid {
			budget -= s.Quote
		}

		if !done {
			pos.Size -= fill
			break
		}
		if _, more := cur.PopNext(); !more || remaining == 0 || clipped {
			break
		}
	}

	book.RefreshBest(resting)
	return res, nil
}

// checkTakerFunds makes sure the taker can pay for the whole request up
// front: the quote budget for a buy, size × scale factor base for a sell.
func checkTakerFunds(v *collateral.Vault, side orderbook.Side, size, quoteBudget, scaleFactor uint64) error {
	if side == orderbook.Bid {
		if quoteBudget == 0 {
			return ErrZeroQuoteBudget
		}
		if quoteBudget > v.QuoteLocked {
			return fmt.Errorf("%w: budget %d, locked %d", collateral.ErrInsufficientCollateral, quoteBudget, v.QuoteLocked)
		}
		return nil
	}
	base, _, err := collateral.Amounts(size, 0, scaleFactor)
	if err != nil {
		return err
	}
	if base > v.BaseLocked {
		return fmt.Errorf("%w: sell needs %d base, locked %d", collateral.ErrInsufficientCollateral, base, v.BaseLocked)
	}
	return nil
}
