package service

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
	entrywal "ledgerbook/infra/wal/entry"
	"ledgerbook/infra/wire"
)

// Command is the WAL payload of one request. Only the fields its Type
// needs are set.
type Command struct {
	Type   entrywal.RecordType
	User   account.Address
	Market registry.MarketInfo

	Side    orderbook.Side
	Price   uint64
	Size    uint64
	Budget  uint64
	OrderID orderid.ID

	BaseAmount  uint64
	QuoteAmount uint64

	Asset  asset.Type
	Amount uint64
}

func (c *Command) Encode() []byte {
	enc := wire.NewEncoder(nil)
	enc.PutBytes(1, c.User[:])
	enc.PutMessage(2, func(sub *wire.Encoder) {
		sub.PutString(1, string(c.Market.Base))
		sub.PutString(2, string(c.Market.Quote))
		sub.PutUint64(3, uint64(c.Market.Exponent))
	})
	enc.PutUint64(3, uint64(c.Side))
	enc.PutUint64(4, c.Price)
	enc.PutUint64(5, c.Size)
	enc.PutUint64(6, c.Budget)
	if !c.OrderID.IsZero() {
		enc.PutFixed64(7, c.OrderID.Hi)
		enc.PutFixed64(8, c.OrderID.Lo)
	}
	enc.PutUint64(9, c.BaseAmount)
	enc.PutUint64(10, c.QuoteAmount)
	enc.PutString(11, string(c.Asset))
	enc.PutUint64(12, c.Amount)
	return enc.Data()
}

// DecodeCommand rebuilds a command from a WAL record.
func DecodeCommand(t entrywal.RecordType, data []byte) (Command, error) {
	c := Command{Type: t}
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			c.User, err = account.FromBytes(raw)
			return err
		case 2:
			raw, err := f.Bytes()
			if err != nil {
				return err
			}
			return decodeMarketInfo(raw, &c.Market)
		case 11:
			s, err := f.String()
			c.Asset = asset.Type(s)
			return err
		}

		v, err := f.Uint64()
		if err != nil {
			return err
		}
		switch num {
		case 3:
			c.Side = orderbook.Side(v)
		case 4:
			c.Price = v
		case 5:
			c.Size = v
		case 6:
			c.Budget = v
		case 7:
			c.OrderID.Hi = v
		case 8:
			c.OrderID.Lo = v
		case 9:
			c.BaseAmount = v
		case 10:
			c.QuoteAmount = v
		case 12:
			c.Amount = v
		}
		return nil
	})
	if err != nil {
		return Command{}, fmt.Errorf("decode %s command: %w", t, err)
	}
	return c, nil
}

func decodeMarketInfo(data []byte, m *registry.MarketInfo) error {
	return wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1, 2:
			s, err := f.String()
			if num == 1 {
				m.Base = asset.Type(s)
			} else {
				m.Quote = asset.Type(s)
			}
			return err
		case 3:
			v, err := f.Uint64()
			m.Exponent = registry.ScaleExponent(v)
			return err
		}
		return nil
	})
}
