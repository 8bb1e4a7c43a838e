package orderbook

import (
	"ledgerbook/domain/account"
)

type Side uint8

const (
	Ask Side = iota
	Bid
)

func (s Side) Opposite() Side {
	if s == Ask {
		return Bid
	}
	return Ask
}

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Position is a resting order inside the book index.
type Position struct {
	Size  uint64
	Owner account.Address
}
