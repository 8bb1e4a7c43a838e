package collateral

import (
	"fmt"

	"ledgerbook/domain/asset"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/openorders"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
)

// Maker is the resting side of a fill.
type Maker struct {
	Vault  *Vault
	Orders *openorders.OpenOrders
}

// Fill describes one match between a taker and a resting order.
type Fill struct {
	// TakerSide is Bid when the taker buys against asks.
	TakerSide   orderbook.Side
	MakerOrder  orderid.ID
	Size        uint64
	ScaleFactor uint64
	// FullyConsumed is set when the maker order leaves the book.
	FullyConsumed bool
}

// Settlement is what changed hands.
type Settlement struct {
	Base  uint64
	Quote uint64
}

// SettleFill moves Size × ScaleFactor base and Size × price quote between
// the vaults and shrinks or removes the maker's open order. Every check
// runs before the first mutation, so a failure leaves all inputs as they
// were.
func SettleFill(fc capability.FriendCap, maker Maker, taker *Vault, f Fill) (Settlement, error) {
	if err := fc.Check(); err != nil {
		return Settlement{}, err
	}
	makerSide := f.TakerSide.Opposite()
	price := orderid.Price(f.MakerOrder)
	base, quote, err := Amounts(f.Size, price, f.ScaleFactor)
	if err != nil {
		return Settlement{}, err
	}

	open, err := maker.Orders.Size(makerSide, f.MakerOrder)
	if err != nil {
		return Settlement{}, err
	}
	if f.Size > open || (f.FullyConsumed && f.Size != open) {
		return Settlement{}, fmt.Errorf("settle %s: fill %d against open %d",
			orderid.Format(f.MakerOrder, makerSide == orderbook.Bid), f.Size, open)
	}

	if f.TakerSide == orderbook.Bid {
		// Taker buys: base maker -> taker, quote taker -> maker.
		if err := checkLeg(maker.Vault.BaseAsset.Value, base, taker.BaseAsset.Value, taker.BaseLocked); err != nil {
			return Settlement{}, fmt.Errorf("settle base: %w", err)
		}
		if quote > taker.QuoteLocked {
			return Settlement{}, fmt.Errorf("%w: taker has %d quote, needs %d", ErrInsufficientCollateral, taker.QuoteLocked, quote)
		}
		if err := checkLeg(taker.QuoteAsset.Value, quote, maker.Vault.QuoteAsset.Value, maker.Vault.QuoteLocked); err != nil {
			return Settlement{}, fmt.Errorf("settle quote: %w", err)
		}
	} else {
		// Taker sells: base taker -> maker, quote maker -> taker.
		if base > taker.BaseLocked {
			return Settlement{}, fmt.Errorf("%w: taker has %d base, needs %d", ErrInsufficientCollateral, taker.BaseLocked, base)
		}
		if err := checkLeg(taker.BaseAsset.Value, base, maker.Vault.BaseAsset.Value, maker.Vault.BaseLocked); err != nil {
			return Settlement{}, fmt.Errorf("settle base: %w", err)
		}
		if err := checkLeg(maker.Vault.QuoteAsset.Value, quote, taker.QuoteAsset.Value, taker.QuoteLocked); err != nil {
			return Settlement{}, fmt.Errorf("settle quote: %w", err)
		}
	}

	if f.FullyConsumed {
		_, err = maker.Orders.Remove(makerSide, f.MakerOrder)
	} else {
		err = maker.Orders.Shrink(makerSide, f.MakerOrder, f.Size)
	}
	if err != nil {
		return Settlement{}, err
	}

	if f.TakerSide == orderbook.Bid {
		if err := transfer(&maker.Vault.BaseAsset, &taker.BaseAsset, base); err != nil {
			return Settlement{}, err
		}
		taker.BaseLocked += base
		if err := transfer(&taker.QuoteAsset, &maker.Vault.QuoteAsset, quote); err != nil {
			return Settlement{}, err
		}
		taker.QuoteLocked -= quote
		maker.Vault.QuoteLocked += quote
	} else {
		if err := transfer(&taker.BaseAsset, &maker.Vault.BaseAsset, base); err != nil {
			return Settlement{}, err
		}
		taker.BaseLocked -= base
		maker.Vault.BaseLocked += base
		if err := transfer(&maker.Vault.QuoteAsset, &taker.QuoteAsset, quote); err != nil {
			return Settlement{}, err
		}
		taker.QuoteLocked += quote
	}
	return Settlement{Base: base, Quote: quote}, nil
}

// checkLeg verifies that amount can leave a coin holding from and be added
// to a coin holding to whose unreserved counter is toLocked.
func checkLeg(from, amount, to, toLocked uint64) error {
	if amount > from {
		return fmt.Errorf("%w: %d held, %d owed", ErrInsufficientCollateral, from, amount)
	}
	if _, err := add(to, amount); err != nil {
		return err
	}
	_, err := add(toLocked, amount)
	return err
}

// transfer cannot fail once checkLeg has passed for the same amounts.
func transfer(from, to *asset.Coin, amount uint64) error {
	c, err := from.Extract(amount)
	if err != nil {
		return err
	}
	return to.Merge(c)
}
