// Package asset is the fungible-asset primitive: typed coins that can only
// be created or destroyed by the holder of the matching capability, and
// otherwise only split (Extract) and joined (Merge).
package asset

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

var (
	ErrTypeMismatch        = errors.New("asset: coin type mismatch")
	ErrInsufficientBalance = errors.New("asset: insufficient balance")
	ErrOverflow            = errors.New("asset: balance overflow")
	ErrInvalidCapability   = errors.New("asset: invalid capability")
	ErrAlreadyInitialized  = errors.New("asset: coin type already initialized")
)

// Type names a coin type, e.g. "BTC" or "0x1::usdc::USDC".
type Type string

// Coin is a value of one asset type. It is a plain value, so moving it
// between holders is the caller's responsibility; the helpers below keep
// the total supply unchanged.
type Coin struct {
	Type  Type
	Value uint64
}

func Zero(t Type) Coin {
	return Coin{Type: t}
}

func (c Coin) Balance() uint64 {
	return c.Value
}

// Extract splits amount off c.
func (c *Coin) Extract(amount uint64) (Coin, error) {
	if amount > c.Value {
		return Coin{}, fmt.Errorf("%w: have %d, want %d", ErrInsufficientBalance, c.Value, amount)
	}
	c.Value -= amount
	return Coin{Type: c.Type, Value: amount}, nil
}

// Merge folds other into c.
func (c *Coin) Merge(other Coin) error {
	if other.Type != c.Type {
		return fmt.Errorf("%w: %s into %s", ErrTypeMismatch, other.Type, c.Type)
	}
	sum, carry := bits.Add64(c.Value, other.Value, 0)
	if carry != 0 {
		return ErrOverflow
	}
	c.Value = sum
	return nil
}

// ---------------- Capabilities ----------------

// MintCapability authorises creation of new coins of one type.
type MintCapability struct {
	typ Type
}

// BurnCapability authorises destruction of coins of one type.
type BurnCapability struct {
	typ Type
}

// Issuer hands out the capability pair of each coin type at most once.
type Issuer struct {
	mu     sync.Mutex
	issued map[Type]struct{}
}

func NewIssuer() *Issuer {
	return &Issuer{issued: make(map[Type]struct{})}
}

// Initialize creates the capability pair for t. The caller becomes the
// type's only issuer.
func (i *Issuer) Initialize(t Type) (MintCapability, BurnCapability, error) {
	if t == "" {
		return MintCapability{}, BurnCapability{}, fmt.Errorf("%w: empty coin type", ErrInvalidCapability)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.issued[t]; ok {
		return MintCapability{}, BurnCapability{}, fmt.Errorf("%w: %s", ErrAlreadyInitialized, t)
	}
	if i.issued == nil {
		i.issued = make(map[Type]struct{})
	}
	i.issued[t] = struct{}{}
	return MintCapability{typ: t}, BurnCapability{typ: t}, nil
}

func (c MintCapability) Type() Type { return c.typ }

func (c BurnCapability) Type() Type { return c.typ }

func Mint(c MintCapability, amount uint64) (Coin, error) {
	if c.typ == "" {
		return Coin{}, ErrInvalidCapability
	}
	return Coin{Type: c.typ, Value: amount}, nil
}

func Burn(c BurnCapability, coin Coin) error {
	if c.typ == "" {
		return ErrInvalidCapability
	}
	if coin.Type != c.typ {
		return fmt.Errorf("%w: burn %s with %s capability", ErrTypeMismatch, coin.Type, c.typ)
	}
	return nil
}
