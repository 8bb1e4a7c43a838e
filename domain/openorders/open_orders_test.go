package openorders

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
)

func TestShrinkAndRemove(t *testing.T) {
	o := New(10)
	id := orderid.EncodeAsk(7, 1)
	require.NoError(t, o.Add(orderbook.Ask, id, 5))

	require.NoError(t, o.Shrink(orderbook.Ask, id, 2))
	size, err := o.Size(orderbook.Ask, id)
	require.NoError(t, err)
	require.Equal(t, uint64(3), size)

	require.Error(t, o.Shrink(orderbook.Ask, id, 4))

	require.NoError(t, o.Shrink(orderbook.Ask, id, 3))
	require.True(t, o.IsEmpty())

	_, err = o.Remove(orderbook.Ask, id)
	require.True(t, errors.Is(err, ErrNoSuchOrder))
}

func TestSidesAreIndependent(t *testing.T) {
	o := New(1)
	require.NoError(t, o.Add(orderbook.Bid, orderid.EncodeBid(3, 1), 4))
	_, err := o.Size(orderbook.Ask, orderid.EncodeBid(3, 1))
	require.True(t, errors.Is(err, ErrNoSuchOrder))

	v, err := o.Remove(orderbook.Bid, orderid.EncodeBid(3, 1))
	require.NoError(t, err)
	require.Equal(t, uint64(4), v)
}

func TestCodecRoundTrip(t *testing.T) {
	o := New(1000)
	require.NoError(t, o.Add(orderbook.Ask, orderid.EncodeAsk(9, 1), 1))
	require.NoError(t, o.Add(orderbook.Ask, orderid.EncodeAsk(8, 2), 2))
	require.NoError(t, o.Add(orderbook.Bid, orderid.EncodeBid(5, 3), 3))

	raw, err := o.MarshalBinary()
	require.NoError(t, err)
	var back OpenOrders
	require.NoError(t, back.UnmarshalBinary(raw))

	require.Equal(t, uint64(1000), back.ScaleFactor)
	var got []uint64
	back.Each(orderbook.Ask, func(_ orderid.ID, size uint64) { got = append(got, size) })
	require.Equal(t, []uint64{2, 1}, got)
	size, err := back.Size(orderbook.Bid, orderid.EncodeBid(5, 3))
	require.NoError(t, err)
	require.Equal(t, uint64(3), size)
}
