package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/matching"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
	"ledgerbook/infra/sequence"
	"ledgerbook/infra/store"
	entrywal "ledgerbook/infra/wal/entry"
)

var (
	ErrInvalidUser  = errors.New("service: invalid user address")
	ErrNoCollateral = errors.New("service: no collateral vault on market")
	ErrStorage      = errors.New("service: storage failure")
)

// MarketService is the ONLY write entry point into the system.
type MarketService struct {
	mu sync.RWMutex

	store  *store.Store
	wal    *entrywal.WAL
	walDir string
	seq    *sequence.Sequencer
	log    *zap.Logger

	root   account.Address
	friend capability.FriendCap
	issuer *asset.Issuer
	caps   map[asset.Type]coinCaps
}

// coinCaps is the capability pair the root holds for one coin type.
type coinCaps struct {
	mint asset.MintCapability
	burn asset.BurnCapability
}

type Options struct {
	Store     *store.Store
	WAL       *entrywal.WAL
	WALDir    string
	Sequencer *sequence.Sequencer
	Authority *capability.Authority
	Logger    *zap.Logger
}

// New wires the service and takes the friend capability from authority,
// which therefore can back only one service.
func New(opts Options) (*MarketService, error) {
	root := opts.Authority.Root()
	friend, err := opts.Authority.Mint(root)
	if err != nil {
		return nil, fmt.Errorf("friend capability: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	seq := opts.Sequencer
	if seq == nil {
		seq = sequence.New(0)
	}
	return &MarketService{
		store:  opts.Store,
		wal:    opts.WAL,
		walDir: opts.WALDir,
		seq:    seq,
		log:    log,
		root:   root,
		friend: friend,
		issuer: asset.NewIssuer(),
		caps:   make(map[asset.Type]coinCaps),
	}, nil
}

// Root is the address hosting the registry and every market.
func (s *MarketService) Root() account.Address {
	return s.root
}

// ---------------- Commands ----------------

func (s *MarketService) RegisterMarket(ctx context.Context, info registry.MarketInfo) (registry.Market, error) {
	out, err := s.execute(ctx, Command{Type: entrywal.RecordRegisterMarket, User: s.root, Market: info})
	return out.Market, err
}

// Fund mints amount of t into user's wallet. The root holds every mint
// capability, so this is the faucet of a dev or test deployment.
func (s *MarketService) Fund(ctx context.Context, user account.Address, t asset.Type, amount uint64) error {
	_, err := s.execute(ctx, Command{Type: entrywal.RecordFund, User: user, Asset: t, Amount: amount})
	return err
}

func (s *MarketService) Deposit(ctx context.Context, user account.Address, info registry.MarketInfo, base, quote uint64) error {
	_, err := s.execute(ctx, Command{
		Type: entrywal.RecordDeposit, User: user, Market: info,
		BaseAmount: base, QuoteAmount: quote,
	})
	return err
}

func (s *MarketService) Withdraw(ctx context.Context, user account.Address, info registry.MarketInfo, base, quote uint64) error {
	_, err := s.execute(ctx, Command{
		Type: entrywal.RecordWithdraw, User: user, Market: info,
		BaseAmount: base, QuoteAmount: quote,
	})
	return err
}

func (s *MarketService) PlaceLimitOrder(
	ctx context.Context,
	user account.Address,
	info registry.MarketInfo,
	side orderbook.Side,
	price, size uint64,
) (orderid.ID, error) {
	out, err := s.execute(ctx, Command{
		Type: entrywal.RecordPlaceLimit, User: user, Market: info,
		Side: side, Price: price, Size: size,
	})
	return out.OrderID, err
}

func (s *MarketService) CancelOrder(
	ctx context.Context,
	user account.Address,
	info registry.MarketInfo,
	side orderbook.Side,
	id orderid.ID,
) (orderbook.Position, error) {
	out, err := s.execute(ctx, Command{
		Type: entrywal.RecordCancel, User: user, Market: info,
		Side: side, OrderID: id,
	})
	return out.Cancelled, err
}

// FillMarketOrder fills a taker order. side is the taker's side: Bid buys
// with at most quoteBudget, Ask sells size lots.
func (s *MarketService) FillMarketOrder(
	ctx context.Context,
	user account.Address,
	info registry.MarketInfo,
	side orderbook.Side,
	size, quoteBudget uint64,
) (matching.Result, error) {
	out, err := s.execute(ctx, Command{
		Type: entrywal.RecordFillMarket, User: user, Market: info,
		Side: side, Size: size, Budget: quoteBudget,
	})
	return out.Fill, err
}

// ---------------- Execution ----------------

// execute logs cmd to the WAL and applies it.
func (s *MarketService) execute(ctx context.Context, cmd Command) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	if cmd.User.IsZero() {
		return Outcome{}, ErrInvalidUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := entrywal.NewRecord(cmd.Type, s.seq.Next(), cmd.Encode())
	if err := s.wal.Append(rec); err != nil {
		return Outcome{}, fmt.Errorf("%w: wal append: %w", ErrStorage, err)
	}
	if err := s.wal.RotateErr(); err != nil {
		s.log.Warn("[service] wal segment rotation failed", zap.Uint64("seq", rec.Seq), zap.Error(err))
	}
	return s.applyRecord(rec, cmd)
}

// applyRecord runs cmd in one store transaction. A rejected command
// commits nothing but its sequence, so replay does not retry it.
func (s *MarketService) applyRecord(rec *entrywal.Record, cmd Command) (Outcome, error) {
	tx := s.store.Begin()
	tx.SetSeq(rec.Seq)

	em := &emitter{seq: rec.Seq, time: rec.Time, emit: tx.Emit}
	out, err := s.apply(tx, em, cmd)
	if err != nil {
		tx.Discard()
		s.log.Info("[service] command rejected",
			zap.Uint64("seq", rec.Seq),
			zap.Stringer("type", cmd.Type),
			zap.Error(err),
		)
		if mErr := s.store.MarkApplied(rec.Seq); mErr != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrStorage, mErr)
		}
		return Outcome{}, err
	}

	if err := tx.Commit(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.log.Debug("[service] command applied",
		zap.Uint64("seq", rec.Seq),
		zap.Stringer("type", cmd.Type),
		zap.Int("events", em.n),
	)
	return out, nil
}
