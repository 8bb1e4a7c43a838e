package orderbook

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/domain/account"
	"ledgerbook/domain/critbit"
	"ledgerbook/infra/wire"
)

// Kind is the store record kind of the book of market.
func Kind(market string) string {
	return "orderbook<" + market + ">"
}

func (b *OrderBook) MarshalBinary() ([]byte, error) {
	enc := wire.NewEncoder(nil)
	enc.PutUint64(1, b.ScaleFactor)
	enc.PutUint64(2, b.Counter)
	enc.PutMessage(3, func(sub *wire.Encoder) { b.Asks.Encode(sub, encodePosition) })
	enc.PutMessage(4, func(sub *wire.Encoder) { b.Bids.Encode(sub, encodePosition) })
	return enc.Data(), nil
}

// UnmarshalBinary restores a book. The best-price cache is rebuilt from the
// trees rather than stored.
func (b *OrderBook) UnmarshalBinary(data []byte) error {
	*b = *NewOrderBook(0)
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1:
			v, err := f.Uint64()
			b.ScaleFactor = v
			return err
		case 2:
			v, err := f.Uint64()
			b.Counter = v
			return err
		case 3, 4:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			m, err := critbit.Decode(raw, decodePosition)
			if err != nil {
				return err
			}
			if num == 3 {
				b.Asks = m
			} else {
				b.Bids = m
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("decode orderbook: %w", err)
	}
	b.RefreshBest(Ask)
	b.RefreshBest(Bid)
	return nil
}

func encodePosition(enc *wire.Encoder, p Position) {
	enc.PutUint64(1, p.Size)
	enc.PutBytes(2, p.Owner[:])
}

func decodePosition(data []byte) (Position, error) {
	var p Position
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1:
			v, err := f.Uint64()
			p.Size = v
			return err
		case 2:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			p.Owner, err = account.FromBytes(raw)
			return err
		}
		return nil
	})
	return p, err
}
