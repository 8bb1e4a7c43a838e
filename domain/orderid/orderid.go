// Package orderid builds the 128-bit order keys used by the book index.
//
// An ID is price in the upper 64 bits and a per-book sequence number in the
// lower 64 bits. Bid sequence numbers are bit-complemented, so for one price
// a later bid sorts lower: walking asks ascending and bids descending both
// visit equal-price orders first-in first-out.
package orderid

import (
	"fmt"

	"lukechampine.com/uint128"
)

// ID is an encoded order key.
type ID = uint128.Uint128

const lowMask = ^uint64(0)

// NoneAsk is the best-ask sentinel of an empty ask tree.
var NoneAsk = uint128.Max

// NoneBid is the best-bid sentinel of an empty bid tree.
var NoneBid = uint128.Zero

func EncodeAsk(price, seq uint64) ID {
	return uint128.New(seq, price)
}

func EncodeBid(price, seq uint64) ID {
	return uint128.New(seq^lowMask, price)
}

// Price returns the upper half of id.
func Price(id ID) uint64 {
	return id.Hi
}

// SeqAsk recovers the sequence number of an ask ID.
func SeqAsk(id ID) uint64 {
	return id.Lo
}

// SeqBid recovers the sequence number of a bid ID.
func SeqBid(id ID) uint64 {
	return id.Lo ^ lowMask
}

// Format renders id as price/seq for logs.
func Format(id ID, bid bool) string {
	if bid {
		return fmt.Sprintf("bid(%d/%d)", Price(id), SeqBid(id))
	}
	return fmt.Sprintf("ask(%d/%d)", Price(id), SeqAsk(id))
}
