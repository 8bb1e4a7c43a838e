// Package capability implements friend-style access control. A FriendCap
// can only be obtained from the Authority bound to the root address, and
// only once; holding one is what lets a component call the mutating entry
// points of orderbook, matching and collateral.
package capability

import (
	"errors"
	"sync"

	"ledgerbook/domain/account"
)

var (
	ErrUnauthorized  = errors.New("capability: missing or forged friend capability")
	ErrNotRoot       = errors.New("capability: signer is not the root authority")
	ErrAlreadyMinted = errors.New("capability: friend capability already minted")
)

// Authority is the designated root allowed to mint the friend capability.
type Authority struct {
	root account.Address

	mu     sync.Mutex
	minted bool
}

func NewAuthority(root account.Address) *Authority {
	return &Authority{root: root}
}

func (a *Authority) Root() account.Address {
	return a.root
}

// FriendCap is an unforgeable marker. Its zero value is invalid; only Mint
// sets issuer.
type FriendCap struct {
	issuer *Authority
}

// Mint hands out the capability to the root signer, exactly once.
func (a *Authority) Mint(signer account.Address) (FriendCap, error) {
	if signer != a.root || a.root.IsZero() {
		return FriendCap{}, ErrNotRoot
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.minted {
		return FriendCap{}, ErrAlreadyMinted
	}
	a.minted = true
	return FriendCap{issuer: a}, nil
}

// Check reports ErrUnauthorized for a zero or foreign capability.
func (c FriendCap) Check() error {
	if c.issuer == nil {
		return ErrUnauthorized
	}
	return nil
}
