package asset

import (
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"

	"ledgerbook/infra/wire"
)

// WalletKind is the store record kind of a user's externally held balances.
const WalletKind = "wallet"

// Wallet is the balance a user holds outside any market vault.
type Wallet struct {
	Coins map[Type]Coin
}

func NewWallet() *Wallet {
	return &Wallet{Coins: make(map[Type]Coin)}
}

func (w *Wallet) Balance(t Type) uint64 {
	return w.Coins[t].Value
}

func (w *Wallet) Deposit(c Coin) error {
	if w.Coins == nil {
		w.Coins = make(map[Type]Coin)
	}
	cur, ok := w.Coins[c.Type]
	if !ok {
		cur = Zero(c.Type)
	}
	if err := cur.Merge(c); err != nil {
		return err
	}
	w.Coins[c.Type] = cur
	return nil
}

func (w *Wallet) Withdraw(t Type, amount uint64) (Coin, error) {
	cur, ok := w.Coins[t]
	if !ok {
		cur = Zero(t)
	}
	out, err := cur.Extract(amount)
	if err != nil {
		return Coin{}, fmt.Errorf("withdraw %s: %w", t, err)
	}
	if w.Coins == nil {
		w.Coins = make(map[Type]Coin)
	}
	w.Coins[t] = cur
	return out, nil
}

// ---------------- Encoding ----------------

func (w *Wallet) MarshalBinary() ([]byte, error) {
	types := make([]string, 0, len(w.Coins))
	for t := range w.Coins {
		types = append(types, string(t))
	}
	sort.Strings(types)

	enc := wire.NewEncoder(nil)
	for _, t := range types {
		c := w.Coins[Type(t)]
		enc.PutMessage(1, func(sub *wire.Encoder) {
			AppendCoin(sub, c)
		})
	}
	return enc.Data(), nil
}

func (w *Wallet) UnmarshalBinary(data []byte) error {
	w.Coins = make(map[Type]Coin)
	return wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		if num != 1 {
			return nil
		}
		raw, err := f.Bytes()
		if err != nil {
			return err
		}
		c, err := DecodeCoin(raw)
		if err != nil {
			return err
		}
		w.Coins[c.Type] = c
		return nil
	})
}

// AppendCoin writes c as fields 1 (type) and 2 (value).
func AppendCoin(enc *wire.Encoder, c Coin) {
	enc.PutString(1, string(c.Type))
	enc.PutUint64(2, c.Value)
}

func DecodeCoin(data []byte) (Coin, error) {
	var c Coin
	err := wire.Decode(data, func(num protowire.Number, f wire.Field) error {
		switch num {
		case 1:
			s, err := f.String()
			c.Type = Type(s)
			return err
		case 2:
			v, err := f.Uint64()
			c.Value = v
			return err
		}
		return nil
	})
	return c, err
}
