package openorders

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/domain/critbit"
	"ledgerbook/infra/wire"
)

// Kind is the store record kind of a user's open orders on market.
func Kind(market string) string {
	return "openorders<" + market + ">"
}

func (o *OpenOrders) MarshalBinary() ([]byte, error) {
	enc := wire.NewEncoder(nil)
	enc.PutUint64(1, o.ScaleFactor)
	enc.PutMessage(2, func(sub *wire.Encoder) { o.Asks.Encode(sub, encodeSize) })
	enc.PutMessage(3, func(sub *wire.Encoder) { o.Bids.Encode(sub, encodeSize) })
	return enc.Data(), nil
}

func (o *OpenOrders) UnmarshalBinary(data []byte) error {
	*o = *New(0)
	return wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1:
			v, err := f.Uint64()
			o.ScaleFactor = v
			return err
		case 2, 3:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			m, err := critbit.Decode(raw, decodeSize)
			if err != nil {
				return err
			}
			if num == 2 {
				o.Asks = m
			} else {
				o.Bids = m
			}
		}
		return nil
	})
}

func encodeSize(enc *wire.Encoder, v uint64) {
	enc.PutUint64(1, v)
}

func decodeSize(data []byte) (uint64, error) {
	var v uint64
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		if num != 1 {
			return nil
		}
		var err error
		v, err = f.Uint64()
		return err
	})
	return v, err
}
