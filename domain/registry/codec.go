package registry

import (
	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/infra/wire"
)

func (r *Registry) MarshalBinary() ([]byte, error) {
	enc := wire.NewEncoder(nil)
	for _, m := range r.List() {
		enc.PutMessage(1, func(sub *wire.Encoder) {
			sub.PutString(1, string(m.Info.Base))
			sub.PutString(2, string(m.Info.Quote))
			sub.PutUint64(3, uint64(m.Info.Exponent))
			sub.PutBytes(4, m.Host[:])
			sub.PutUint64(5, m.ScaleFactor)
		})
	}
	return enc.Data(), nil
}

func (r *Registry) UnmarshalBinary(data []byte) error {
	r.Markets = make(map[MarketInfo]Market)
	return wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		if num != 1 {
			return nil
		}
		raw, err := f.Bytes()
		if err != nil {
			return err
		}
		m, err := decodeMarket(raw)
		if err != nil {
			return err
		}
		r.Markets[m.Info] = m
		return nil
	})
}

func decodeMarket(data []byte) (Market, error) {
	var m Market
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1, 2:
			s, err := f.String()
			if num == 1 {
				m.Info.Base = asset.Type(s)
			} else {
				m.Info.Quote = asset.Type(s)
			}
			return err
		case 3:
			v, err := f.Uint64()
			m.Info.Exponent = ScaleExponent(v)
			return err
		case 4:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			m.Host, err = account.FromBytes(raw)
			return err
		case 5:
			v, err := f.Uint64()
			m.ScaleFactor = v
			return err
		}
		return nil
	})
	if err != nil {
		return m, err
	}
	return m, m.Info.Validate()
}
