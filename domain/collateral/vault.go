// Package collateral is the per-user, per-market escrow backing resting
// orders.
//
// A Vault holds one coin of each asset of the market and two counters.
// BaseLocked and QuoteLocked are the parts of those coins that are not
// reserved by resting orders and can be withdrawn or spent by a taker:
//
//	BaseLocked  + Σ open ask size × scale factor == BaseAsset.Value
//	QuoteLocked + Σ open bid size × price        == QuoteAsset.Value
//
// Placing an order only moves funds from the counter into the reservation;
// coins leave the vault on withdrawal or settlement.
package collateral

import (
	"errors"
	"fmt"
	"math/bits"

	"ledgerbook/domain/asset"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/orderbook"
)

var (
	ErrInsufficientCollateral = errors.New("collateral: insufficient collateral")
	ErrInsufficientLocked     = errors.New("collateral: insufficient locked balance")
	ErrNoTransfer             = errors.New("collateral: nothing to transfer")
	ErrOverflow               = errors.New("collateral: arithmetic overflow")
)

type Vault struct {
	BaseAsset  asset.Coin
	BaseLocked uint64

	QuoteAsset  asset.Coin
	QuoteLocked uint64
}

func NewVault(base, quote asset.Type) *Vault {
	return &Vault{
		BaseAsset:  asset.Zero(base),
		QuoteAsset: asset.Zero(quote),
	}
}

// Reserved is the part of each coin held back for resting orders.
func (v *Vault) Reserved() (base, quote uint64) {
	return v.BaseAsset.Value - v.BaseLocked, v.QuoteAsset.Value - v.QuoteLocked
}

// ---------------- Arithmetic ----------------

// Amounts converts size lots at price into absolute base and quote units.
func Amounts(size, price, scaleFactor uint64) (base, quote uint64, err error) {
	base, err = mul(size, scaleFactor)
	if err != nil {
		return 0, 0, err
	}
	quote, err = mul(size, price)
	if err != nil {
		return 0, 0, err
	}
	return base, quote, nil
}

func mul(a, b uint64) (uint64, error) {
	hi, lo := bits.Mul64(a, b)
	if hi != 0 {
		return 0, fmt.Errorf("%w: %d × %d", ErrOverflow, a, b)
	}
	return lo, nil
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return sum, nil
}

// ---------------- Deposit / Withdraw ----------------

// Deposit moves the stated amounts from the user's wallet into v. Either both
// legs happen or neither does.
func (v *Vault) Deposit(fc capability.FriendCap, w *asset.Wallet, baseAmt, quoteAmt uint64) error {
	if err := fc.Check(); err != nil {
		return err
	}
	if baseAmt == 0 && quoteAmt == 0 {
		return ErrNoTransfer
	}
	if w.Balance(v.BaseAsset.Type) < baseAmt {
		return fmt.Errorf("deposit %s: %w", v.BaseAsset.Type, asset.ErrInsufficientBalance)
	}
	if w.Balance(v.QuoteAsset.Type) < quoteAmt {
		return fmt.Errorf("deposit %s: %w", v.QuoteAsset.Type, asset.ErrInsufficientBalance)
	}
	if _, err := add(v.BaseAsset.Value, baseAmt); err != nil {
		return err
	}
	if _, err := add(v.QuoteAsset.Value, quoteAmt); err != nil {
		return err
	}

	if baseAmt > 0 {
		c, err := w.Withdraw(v.BaseAsset.Type, baseAmt)
		if err != nil {
			return err
		}
		if err := v.BaseAsset.Merge(c); err != nil {
			return err
		}
		v.BaseLocked += baseAmt
	}
	if quoteAmt > 0 {
		c, err := w.Withdraw(v.QuoteAsset.Type, quoteAmt)
		if err != nil {
			return err
		}
		if err := v.QuoteAsset.Merge(c); err != nil {
			return err
		}
		v.QuoteLocked += quoteAmt
	}
	return nil
}

// Withdraw releases unreserved funds back to the wallet. On error v is left
// untouched.
func (v *Vault) Withdraw(fc capability.FriendCap, w *asset.Wallet, baseAmt, quoteAmt uint64) error {
	if err := fc.Check(); err != nil {
		return err
	}
	if baseAmt > v.BaseLocked {
		return fmt.Errorf("%w: base %d > %d", ErrInsufficientLocked, baseAmt, v.BaseLocked)
	}
	if quoteAmt > v.QuoteLocked {
		return fmt.Errorf("%w: quote %d > %d", ErrInsufficientLocked, quoteAmt, v.QuoteLocked)
	}
	if _, err := add(w.Balance(v.BaseAsset.Type), baseAmt); err != nil {
		return err
	}
	if _, err := add(w.Balance(v.QuoteAsset.Type), quoteAmt); err != nil {
		return err
	}

	if baseAmt > 0 {
		c, err := v.BaseAsset.Extract(baseAmt)
		if err != nil {
			return err
		}
		v.BaseLocked -= baseAmt
		if err := w.Deposit(c); err != nil {
			return err
		}
	}
	if quoteAmt > 0 {
		c, err := v.QuoteAsset.Extract(quoteAmt)
		if err != nil {
			return err
		}
		v.QuoteLocked -= quoteAmt
		if err := w.Deposit(c); err != nil {
			return err
		}
	}
	return nil
}

// ---------------- Reservations ----------------

// Reserve debits the collateral a resting order of size at price needs:
// size × scale factor base for an ask, size × price quote for a bid.
func (v *Vault) Reserve(fc capability.FriendCap, side orderbook.Side, size, price, scaleFactor uint64) error {
	if err := fc.Check(); err != nil {
		return err
	}
	base, quote, err := Amounts(size, price, scaleFactor)
	if err != nil {
		return err
	}
	if side == orderbook.Ask {
		if base > v.BaseLocked {
			return fmt.Errorf("%w: ask needs %d base, %d locked", ErrInsufficientCollateral, base, v.BaseLocked)
		}
		v.BaseLocked -= base
		return nil
	}
	if quote > v.QuoteLocked {
		return fmt.Errorf("%w: bid needs %d quote, %d locked", ErrInsufficientCollateral, quote, v.QuoteLocked)
	}
	v.QuoteLocked -= quote
	return nil
}

// Release credits back exactly what Reserve took for the remaining size.
func (v *Vault) Release(fc capability.FriendCap, side orderbook.Side, size, price, scaleFactor uint64) error {
	if err := fc.Check(); err != nil {
		return err
	}
	base, quote, err := Amounts(size, price, scaleFactor)
	if err != nil {
		return err
	}
	reservedBase, reservedQuote := v.Reserved()
	if side == orderbook.Ask {
		if base > reservedBase {
			return fmt.Errorf("%w: release %d base of %d reserved", ErrOverflow, base, reservedBase)
		}
		v.BaseLocked += base
		return nil
	}
	if quote > reservedQuote {
		return fmt.Errorf("%w: release %d quote of %d reserved", ErrOverflow, quote, reservedQuote)
	}
	v.QuoteLocked += quote
	return nil
}
