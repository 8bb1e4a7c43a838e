package orderid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ask := EncodeAsk(10, 7)
	require.Equal(t, uint64(10), Price(ask))
	require.Equal(t, uint64(7), SeqAsk(ask))

	bid := EncodeBid(10, 7)
	require.Equal(t, uint64(10), Price(bid))
	require.Equal(t, uint64(7), SeqBid(bid))
	require.Equal(t, ^uint64(7), bid.Lo)
}

func TestAskOrderingIsFIFOThenPrice(t *testing.T) {
	a1 := EncodeAsk(10, 1)
	a2 := EncodeAsk(10, 2)
	a3 := EncodeAsk(11, 0)

	require.Equal(t, -1, a1.Cmp(a2))
	require.Equal(t, -1, a2.Cmp(a3))
}

func TestBidOrderingDescendingIsFIFO(t *testing.T) {
	b1 := EncodeBid(10, 1)
	b2 := EncodeBid(10, 2)
	b3 := EncodeBid(9, 0)

	// Best bid is the max key: earlier sequence wins at one price.
	require.Equal(t, 1, b1.Cmp(b2))
	// Higher price beats any sequence number.
	require.Equal(t, 1, b2.Cmp(b3))
}

func TestSentinels(t *testing.T) {
	require.Equal(t, ^uint64(0), Price(NoneAsk))
	require.True(t, NoneBid.IsZero())
	require.Equal(t, "ask(10/3)", Format(EncodeAsk(10, 3), false))
	require.Equal(t, "bid(10/3)", Format(EncodeBid(10, 3), true))
}
