package collateral

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/domain/asset"
	"ledgerbook/infra/wire"
)

// Kind is the store record kind of a user's vault on market.
func Kind(market string) string {
	return "collateral<" + market + ">"
}

func (v *Vault) MarshalBinary() ([]byte, error) {
	enc := wire.NewEncoder(nil)
	enc.PutMessage(1, func(sub *wire.Encoder) { asset.AppendCoin(sub, v.BaseAsset) })
	enc.PutUint64(2, v.BaseLocked)
	enc.PutMessage(3, func(sub *wire.Encoder) { asset.AppendCoin(sub, v.QuoteAsset) })
	enc.PutUint64(4, v.QuoteLocked)
	return enc.Data(), nil
}

func (v *Vault) UnmarshalBinary(data []byte) error {
	*v = Vault{}
	return wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1, 3:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			c, err := asset.DecodeCoin(raw)
			if err != nil {
				return err
			}
			if num == 1 {
				v.BaseAsset = c
			} else {
				v.QuoteAsset = c
			}
		case 2:
			n, err := f.Uint64()
			v.BaseLocked = n
			return err
		case 4:
			n, err := f.Uint64()
			v.QuoteLocked = n
			return err
		}
		return nil
	})
}
