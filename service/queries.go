package service

import (
	"context"
	"encoding/hex"
	"errors"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/collateral"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
	"ledgerbook/infra/store"
)

// BookView is a depth snapshot of one market.
type BookView struct {
	Market  registry.Market
	Asks    []orderbook.PriceLevel
	Bids    []orderbook.PriceLevel
	BestAsk uint64
	BestBid uint64
	HasAsk  bool
	HasBid  bool
	Placed  uint64
	Digest  string
}

// OpenOrder is one resting order of a user.
type OpenOrder struct {
	ID    orderid.ID
	Side  orderbook.Side
	Price uint64
	Size  uint64
}

// AccountView is a user's vault and open orders on one market.
type AccountView struct {
	Vault         collateral.Vault
	BaseReserved  uint64
	QuoteReserved uint64
	Orders        []OpenOrder
}

// read runs fn against a transaction that is always discarded.
func (s *MarketService) read(ctx context.Context, fn func(tx *store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx := s.store.Begin()
	defer tx.Discard()
	return fn(tx)
}

// Markets lists every registered market ordered by tag.
func (s *MarketService) Markets(ctx context.Context) ([]registry.Market, error) {
	var out []registry.Market
	err := s.read(ctx, func(tx *store.Txn) error {
		reg, err := store.Read[registry.Registry](tx, s.root, registry.Kind)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out = reg.List()
		return nil
	})
	return out, err
}

// Book returns up to depth levels per side; 0 means all.
func (s *MarketService) Book(ctx context.Context, info registry.MarketInfo, depth int) (BookView, error) {
	var v BookView
	err := s.read(ctx, func(tx *store.Txn) error {
		m, err := s.lookupMarket(tx, info)
		if err != nil {
			return err
		}
		book, err := store.Read[orderbook.OrderBook](tx, m.Host, orderbook.Kind(m.Info.Tag()))
		if err != nil {
			return err
		}
		d := book.Digest()
		v = BookView{
			Market: m,
			Asks:   book.Levels(orderbook.Ask, depth),
			Bids:   book.Levels(orderbook.Bid, depth),
			Placed: book.Counter,
			Digest: hex.EncodeToString(d[:]),
		}
		v.BestAsk, v.HasAsk = book.BestPrice(orderbook.Ask)
		v.BestBid, v.HasBid = book.BestPrice(orderbook.Bid)
		return nil
	})
	return v, err
}

// Account returns user's collateral and resting orders on a market.
func (s *MarketService) Account(ctx context.Context, user account.Address, info registry.MarketInfo) (AccountView, error) {
	var v AccountView
	err := s.read(ctx, func(tx *store.Txn) error {
		m, err := s.lookupMarket(tx, info)
		if err != nil {
			return err
		}
		o, err := borrowOwner(tx, m, user)
		if err != nil {
			return err
		}
		v.Vault = *o.Vault
		v.BaseReserved, v.QuoteReserved = o.Vault.Reserved()
		for _, side := range []orderbook.Side{orderbook.Ask, orderbook.Bid} {
			o.Orders.Each(side, func(id orderid.ID, size uint64) {
				v.Orders = append(v.Orders, OpenOrder{ID: id, Side: side, Price: orderid.Price(id), Size: size})
			})
		}
		return nil
	})
	return v, err
}

// Wallet returns user's balances held outside any vault.
func (s *MarketService) Wallet(ctx context.Context, user account.Address) (map[asset.Type]uint64, error) {
	out := make(map[asset.Type]uint64)
	err := s.read(ctx, func(tx *store.Txn) error {
		w, err := store.Read[asset.Wallet](tx, user, asset.WalletKind)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		for t, c := range w.Coins {
			out[t] = c.Value
		}
		return nil
	})
	return out, err
}

// Digest hashes the book of a market, see orderbook.OrderBook.Digest.
func (s *MarketService) Digest(ctx context.Context, info registry.MarketInfo) ([32]byte, error) {
	var d [32]byte
	err := s.read(ctx, func(tx *store.Txn) error {
		m, err := s.lookupMarket(tx, info)
		if err != nil {
			return err
		}
		book, err := store.Read[orderbook.OrderBook](tx, m.Host, orderbook.Kind(m.Info.Tag()))
		if err != nil {
			return err
		}
		d = book.Digest()
		return nil
	})
	return d, err
}
