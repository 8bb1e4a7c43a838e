package service

import (
	"errors"
	"fmt"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/collateral"
	"ledgerbook/domain/matching"
	"ledgerbook/domain/openorders"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
	"ledgerbook/infra/store"
	entrywal "ledgerbook/infra/wal/entry"
)

// Outcome carries what a command produced back to the caller.
type Outcome struct {
	Market    registry.Market
	OrderID   orderid.ID
	Cancelled orderbook.Position
	Fill      matching.Result
}

// apply is deterministic in (store state, cmd); replay depends on it.
func (s *MarketService) apply(tx *store.Txn, em *emitter, cmd Command) (Outcome, error) {
	switch cmd.Type {
	case entrywal.RecordRegisterMarket:
		return s.applyRegister(tx, em, cmd)
	case entrywal.RecordFund:
		return Outcome{}, s.applyFund(tx, em, cmd)
	case entrywal.RecordDeposit:
		return Outcome{}, s.applyDeposit(tx, em, cmd)
	case entrywal.RecordWithdraw:
		return Outcome{}, s.applyWithdraw(tx, em, cmd)
	case entrywal.RecordPlaceLimit:
		return s.applyPlace(tx, em, cmd)
	case entrywal.RecordCancel:
		return s.applyCancel(tx, em, cmd)
	case entrywal.RecordFillMarket:
		return s.applyFill(tx, em, cmd)
	default:
		return Outcome{}, fmt.Errorf("unknown command type %d", cmd.Type)
	}
}

// ---------------- Lookups ----------------

func (s *MarketService) lookupMarket(tx *store.Txn, info registry.MarketInfo) (registry.Market, error) {
	reg, err := store.Read[registry.Registry](tx, s.root, registry.Kind)
	if errors.Is(err, store.ErrNotFound) {
		return registry.Market{}, fmt.Errorf("%w: %s", matching.ErrNoMarket, info.Tag())
	}
	if err != nil {
		return registry.Market{}, err
	}
	return reg.Lookup(info)
}

func (s *MarketService) borrowBook(tx *store.Txn, m registry.Market) (*orderbook.OrderBook, error) {
	return store.Borrow[orderbook.OrderBook](tx, m.Host, orderbook.Kind(m.Info.Tag()))
}

// borrowOwner loads user's vault and open orders on m.
func borrowOwner(tx *store.Txn, m registry.Market, user account.Address) (matching.Owner, error) {
	tag := m.Info.Tag()
	v, err := store.Borrow[collateral.Vault](tx, user, collateral.Kind(tag))
	if errors.Is(err, store.ErrNotFound) {
		return matching.Owner{}, fmt.Errorf("%w: %s on %s", ErrNoCollateral, user, tag)
	}
	if err != nil {
		return matching.Owner{}, err
	}
	o, err := store.Borrow[openorders.OpenOrders](tx, user, openorders.Kind(tag))
	if err != nil {
		return matching.Owner{}, err
	}
	return matching.Owner{Address: user, Vault: v, Orders: o}, nil
}

// txMakers resolves makers inside the command's transaction.
type txMakers struct {
	tx     *store.Txn
	market registry.Market
}

func (m txMakers) Maker(owner account.Address) (collateral.Maker, error) {
	o, err := borrowOwner(m.tx, m.market, owner)
	if err != nil {
		return collateral.Maker{}, err
	}
	return collateral.Maker{Vault: o.Vault, Orders: o.Orders}, nil
}

// ---------------- Handlers ----------------

func (s *MarketService) applyRegister(tx *store.Txn, em *emitter, cmd Command) (Outcome, error) {
	reg, err := store.BorrowOrCreate(tx, s.root, registry.Kind, registry.New)
	if err != nil {
		return Outcome{}, err
	}
	m, err := reg.Register(s.friend, cmd.Market, s.root)
	if err != nil {
		return Outcome{}, err
	}
	book := orderbook.NewOrderBook(m.ScaleFactor)
	if err := store.Create(tx, m.Host, orderbook.Kind(m.Info.Tag()), book); err != nil {
		return Outcome{}, err
	}
	return Outcome{Market: m}, em.add(Event{
		Type:        EventMarketRegistered,
		Market:      m.Info.Tag(),
		Owner:       m.Host.String(),
		ScaleFactor: m.ScaleFactor,
	})
}

// capsFor initializes t on first use; the issuer refuses a second pair.
func (s *MarketService) capsFor(t asset.Type) (coinCaps, error) {
	if c, ok := s.caps[t]; ok {
		return c, nil
	}
	mint, burn, err := s.issuer.Initialize(t)
	if err != nil {
		return coinCaps{}, err
	}
	c := coinCaps{mint: mint, burn: burn}
	s.caps[t] = c
	return c, nil
}

func (s *MarketService) applyFund(tx *store.Txn, em *emitter, cmd Command) error {
	if cmd.Asset == "" {
		return fmt.Errorf("fund: empty asset type")
	}
	caps, err := s.capsFor(cmd.Asset)
	if err != nil {
		return err
	}
	coin, err := asset.Mint(caps.mint, cmd.Amount)
	if err != nil {
		return err
	}
	w, err := store.BorrowOrCreate(tx, cmd.User, asset.WalletKind, asset.NewWallet)
	if err != nil {
		return err
	}
	if err := w.Deposit(coin); err != nil {
		return err
	}
	return em.add(Event{
		Type:  EventFunded,
		Owner: cmd.User.String(),
		Asset: string(cmd.Asset),
		Size:  cmd.Amount,
	})
}

func (s *MarketService) applyDeposit(tx *store.Txn, em *emitter, cmd Command) error {
	m, err := s.lookupMarket(tx, cmd.Market)
	if err != nil {
		return err
	}
	tag := m.Info.Tag()
	w, err := store.BorrowOrCreate(tx, cmd.User, asset.WalletKind, asset.NewWallet)
	if err != nil {
		return err
	}
	v, err := store.BorrowOrCreate(tx, cmd.User, collateral.Kind(tag), func() *collateral.Vault {
		return collateral.NewVault(m.Info.Base, m.Info.Quote)
	})
	if err != nil {
		return err
	}
	if _, err := store.BorrowOrCreate(tx, cmd.User, openorders.Kind(tag), func() *openorders.OpenOrders {
		return openorders.New(m.ScaleFactor)
	}); err != nil {
		return err
	}

	if err := v.Deposit(s.friend, w, cmd.BaseAmount, cmd.QuoteAmount); err != nil {
		return err
	}
	return em.add(Event{
		Type:   EventDeposited,
		Market: tag,
		Owner:  cmd.User.String(),
		Base:   cmd.BaseAmount,
		Quote:  cmd.QuoteAmount,
	})
}

func (s *MarketService) applyWithdraw(tx *store.Txn, em *emitter, cmd Command) error {
	m, err := s.lookupMarket(tx, cmd.Market)
	if err != nil {
		return err
	}
	o, err := borrowOwner(tx, m, cmd.User)
	if err != nil {
		return err
	}
	w, err := store.BorrowOrCreate(tx, cmd.User, asset.WalletKind, asset.NewWallet)
	if err != nil {
		return err
	}
	if err := o.Vault.Withdraw(s.friend, w, cmd.BaseAmount, cmd.QuoteAmount); err != nil {
		return err
	}
	return em.add(Event{
		Type:   EventWithdrawn,
		Market: m.Info.Tag(),
		Owner:  cmd.User.String(),
		Base:   cmd.BaseAmount,
		Quote:  cmd.QuoteAmount,
	})
}

func (s *MarketService) applyPlace(tx *store.Txn, em *emitter, cmd Command) (Outcome, error) {
	m, err := s.lookupMarket(tx, cmd.Market)
	if err != nil {
		return Outcome{}, err
	}
	book, err := s.borrowBook(tx, m)
	if err != nil {
		return Outcome{}, err
	}
	o, err := borrowOwner(tx, m, cmd.User)
	if err != nil {
		return Outcome{}, err
	}

	id, err := matching.PlaceLimitOrder(s.friend, book, o, cmd.Side, cmd.Price, cmd.Size)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{OrderID: id}, em.add(Event{
		Type:    EventPlaced,
		Market:  m.Info.Tag(),
		Side:    cmd.Side.String(),
		OrderID: orderid.Format(id, cmd.Side == orderbook.Bid),
		Price:   cmd.Price,
		Size:    cmd.Size,
		Owner:   cmd.User.String(),
	})
}

func (s *MarketService) applyCancel(tx *store.Txn, em *emitter, cmd Command) (Outcome, error) {
	m, err := s.lookupMarket(tx, cmd.Market)
	if err != nil {
		return Outcome{}, err
	}
	book, err := s.borrowBook(tx, m)
	if err != nil {
		return Outcome{}, err
	}
	o, err := borrowOwner(tx, m, cmd.User)
	if err != nil {
		return Outcome{}, err
	}

	pos, err := matching.CancelOrder(s.friend, book, o, cmd.Side, cmd.OrderID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Cancelled: pos}, em.add(Event{
		Type:    EventCancelled,
		Market:  m.Info.Tag(),
		Side:    cmd.Side.String(),
		OrderID: orderid.Format(cmd.OrderID, cmd.Side == orderbook.Bid),
		Price:   orderid.Price(cmd.OrderID),
		Size:    pos.Size,
		Owner:   cmd.User.String(),
	})
}

func (s *MarketService) applyFill(tx *store.Txn, em *emitter, cmd Command) (Outcome, error) {
	m, err := s.lookupMarket(tx, cmd.Market)
	if err != nil {
		return Outcome{}, err
	}
	book, err := s.borrowBook(tx, m)
	if err != nil {
		return Outcome{}, err
	}
	taker, err := borrowOwner(tx, m, cmd.User)
	if err != nil {
		return Outcome{}, err
	}

	res, err := matching.FillMarketOrder(
		s.friend, book,
		matching.Taker{Owner: cmd.User, Vault: taker.Vault},
		cmd.Side, cmd.Size, cmd.Budget,
		txMakers{tx: tx, market: m},
	)
	if err != nil {
		return Outcome{}, err
	}

	for _, tr := range res.Trades {
		if err := em.add(Event{
			Type:      EventFilled,
			Market:    m.Info.Tag(),
			Side:      cmd.Side.String(),
			OrderID:   orderid.Format(tr.MakerOrder, cmd.Side == orderbook.Ask),
			Price:     tr.Price,
			Size:      tr.Size,
			Owner:     tr.Maker.String(),
			Taker:     cmd.User.String(),
			Base:      tr.Base,
			Quote:     tr.Quote,
			MakerDone: tr.MakerDone,
		}); err != nil {
			return Outcome{}, err
		}
	}
	return Outcome{Fill: res}, nil
}
