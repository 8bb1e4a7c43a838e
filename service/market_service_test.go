package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/collateral"
	"ledgerbook/domain/matching"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/registry"
	"ledgerbook/infra/store"
	entrywal "ledgerbook/infra/wal/entry"
	exitwal "ledgerbook/infra/wal/exit"
)

var (
	rootAddr = account.MustParse("0x1")
	alice    = account.MustParse("0xa11ce")
	bob      = account.MustParse("0xb0b")

	btcusd = registry.MarketInfo{Base: "BTC", Quote: "USD", Exponent: registry.E3}
)

type harness struct {
	svc    *MarketService
	store  *store.Store
	wal    *entrywal.WAL
	walDir string
}

func openService(t testing.TB, fs vfs.FS, walDir string) *harness {
	t.Helper()
	st, err := store.Open(store.Options{Dir: "db", FS: fs})
	require.NoError(t, err)
	w, err := entrywal.Open(entrywal.Config{Dir: walDir, SegmentSize: 1 << 20})
	require.NoError(t, err)

	svc, err := New(Options{
		Store:     st,
		WAL:       w,
		WALDir:    walDir,
		Authority: capability.NewAuthority(rootAddr),
	})
	require.NoError(t, err)
	_, err = svc.Replay(context.Background())
	require.NoError(t, err)

	h := &harness{svc: svc, store: st, wal: w, walDir: walDir}
	t.Cleanup(h.close)
	return h
}

func (h *harness) close() {
	if h.wal != nil {
		_ = h.wal.Close()
		h.wal = nil
	}
	if h.store != nil {
		_ = h.store.Close()
		h.store = nil
	}
}

// seed registers BTC/USD and gives alice base and bob quote collateral.
func seed(t testing.TB, svc *MarketService) {
	t.Helper()
	ctx := context.Background()
	m, err := svc.RegisterMarket(ctx, btcusd)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), m.ScaleFactor)

	require.NoError(t, svc.Fund(ctx, alice, "BTC", 10_000))
	require.NoError(t, svc.Fund(ctx, bob, "USD", 1_000_000))
	require.NoError(t, svc.Deposit(ctx, alice, btcusd, 10_000, 0))
	require.NoError(t, svc.Deposit(ctx, bob, btcusd, 0, 1_000_000))
}

func outboxEvents(t *testing.T, st *store.Store) []Event {
	t.Helper()
	var out []Event
	err := st.Outbox().ScanByState(exitwal.StateNew, func(rec exitwal.ExitRecord) error {
		var ev Event
		if err := json.Unmarshal(rec.Payload, &ev); err != nil {
			return err
		}
		out = append(out, ev)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestRegisterMarketTwice(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()

	_, err := h.svc.RegisterMarket(ctx, btcusd)
	require.NoError(t, err)
	_, err = h.svc.RegisterMarket(ctx, btcusd)
	require.True(t, errors.Is(err, registry.ErrMarketExists))

	_, err = h.svc.RegisterMarket(ctx, registry.MarketInfo{Base: "BTC", Quote: "USD", Exponent: 20})
	require.True(t, errors.Is(err, registry.ErrInvalidExponent))

	markets, err := h.svc.Markets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 1)
	require.Equal(t, rootAddr, markets[0].Host)
}

func TestCommandsOnUnknownMarket(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()

	err := h.svc.Deposit(ctx, alice, btcusd, 1, 0)
	require.True(t, errors.Is(err, matching.ErrNoMarket))

	_, err = h.svc.Book(ctx, btcusd, 0)
	require.True(t, errors.Is(err, matching.ErrNoMarket))
}

func TestZeroUserRejected(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	err := h.svc.Fund(context.Background(), account.Zero, "USD", 1)
	require.True(t, errors.Is(err, ErrInvalidUser))
}

func TestFundReusesCoinCapabilities(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()

	require.NoError(t, h.svc.Fund(ctx, alice, "BTC", 5))
	first := h.svc.caps["BTC"]
	require.NoError(t, h.svc.Fund(ctx, bob, "BTC", 7))
	require.Equal(t, first, h.svc.caps["BTC"])
	require.Equal(t, asset.Type("BTC"), first.burn.Type())

	_, _, err := h.svc.issuer.Initialize("BTC")
	require.True(t, errors.Is(err, asset.ErrAlreadyInitialized))
}

func TestPlaceWithoutCollateral(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()
	_, err := h.svc.RegisterMarket(ctx, btcusd)
	require.NoError(t, err)

	_, err = h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 100, 1)
	require.True(t, errors.Is(err, ErrNoCollateral))
}

func TestPlaceFillCancel(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()
	seed(t, h.svc)

	id, err := h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 100, 5)
	require.NoError(t, err)

	acct, err := h.svc.Account(ctx, alice, btcusd)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000), acct.BaseReserved)
	require.Len(t, acct.Orders, 1)
	require.Equal(t, id, acct.Orders[0].ID)

	res, err := h.svc.FillMarketOrder(ctx, bob, btcusd, orderbook.Bid, 3, 300)
	require.NoError(t, err)
	require.Equal(t, uint64(3), res.BaseFilled)
	require.Equal(t, uint64(300), res.QuoteSpent)
	require.Len(t, res.Trades, 1)
	require.False(t, res.Trades[0].MakerDone)

	book, err := h.svc.Book(ctx, btcusd, 0)
	require.NoError(t, err)
	require.True(t, book.HasAsk)
	require.False(t, book.HasBid)
	require.Equal(t, uint64(100), book.BestAsk)
	require.Equal(t, []orderbook.PriceLevel{{Price: 100, TotalSize: 2, OrderCount: 1}}, book.Asks)

	acct, err = h.svc.Account(ctx, alice, btcusd)
	require.NoError(t, err)
	require.Equal(t, uint64(7_000), acct.Vault.BaseAsset.Value)
	require.Equal(t, uint64(300), acct.Vault.QuoteLocked)
	require.Equal(t, uint64(2_000), acct.BaseReserved)

	bobAcct, err := h.svc.Account(ctx, bob, btcusd)
	require.NoError(t, err)
	require.Equal(t, uint64(3_000), bobAcct.Vault.BaseLocked)
	require.Equal(t, uint64(999_700), bobAcct.Vault.QuoteLocked)

	pos, err := h.svc.CancelOrder(ctx, alice, btcusd, orderbook.Ask, id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), pos.Size)

	acct, err = h.svc.Account(ctx, alice, btcusd)
	require.NoError(t, err)
	require.Empty(t, acct.Orders)
	require.Zero(t, acct.BaseReserved)

	require.NoError(t, h.svc.Withdraw(ctx, alice, btcusd, 7_000, 300))
	wallet, err := h.svc.Wallet(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, uint64(7_000), wallet["BTC"])
	require.Equal(t, uint64(300), wallet["USD"])
}

func TestRejectedCommandIsAppliedAndHasNoEffect(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()
	seed(t, h.svc)

	_, err := h.svc.PlaceLimitOrder(ctx, bob, btcusd, orderbook.Bid, 100, 1)
	require.NoError(t, err)
	before, err := h.svc.Digest(ctx, btcusd)
	require.NoError(t, err)

	// Crosses bob's bid.
	_, err = h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 90, 1)
	require.True(t, errors.Is(err, orderbook.ErrWouldCross))

	applied, err := h.store.AppliedSeq()
	require.NoError(t, err)
	require.Equal(t, h.svc.seq.Current(), applied)

	after, err := h.svc.Digest(ctx, btcusd)
	require.NoError(t, err)
	require.Equal(t, before, after)

	acct, err := h.svc.Account(ctx, alice, btcusd)
	require.NoError(t, err)
	require.Zero(t, acct.BaseReserved)
}

func TestWithdrawReservedCollateral(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()
	seed(t, h.svc)

	_, err := h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 100, 8)
	require.NoError(t, err)

	err = h.svc.Withdraw(ctx, alice, btcusd, 3_000, 0)
	require.True(t, errors.Is(err, collateral.ErrInsufficientLocked))
	require.NoError(t, h.svc.Withdraw(ctx, alice, btcusd, 2_000, 0))
}

func TestEventsInOutbox(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	ctx := context.Background()
	seed(t, h.svc)

	_, err := h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 100, 1)
	require.NoError(t, err)
	_, err = h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 101, 1)
	require.NoError(t, err)
	_, err = h.svc.FillMarketOrder(ctx, bob, btcusd, orderbook.Bid, 2, 1_000)
	require.NoError(t, err)

	events := outboxEvents(t, h.store)
	var types []string
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	require.Equal(t, []string{
		EventMarketRegistered,
		EventFunded, EventFunded,
		EventDeposited, EventDeposited,
		EventPlaced, EventPlaced,
		EventFilled, EventFilled,
	}, types)

	fills := events[len(events)-2:]
	require.Equal(t, fills[0].Seq, fills[1].Seq)
	require.NotEqual(t, fills[0].ID, fills[1].ID)
	require.Equal(t, uint64(100), fills[0].Price)
	require.Equal(t, uint64(101), fills[1].Price)
	require.Equal(t, bob.String(), fills[0].Taker)
	require.True(t, fills[1].MakerDone)
	require.Equal(t, btcusd.Tag(), fills[0].Market)
}

func TestReplayRebuildsState(t *testing.T) {
	walDir := t.TempDir()
	h := openService(t, vfs.NewMem(), walDir)
	ctx := context.Background()
	seed(t, h.svc)

	for i := uint64(0); i < 10; i++ {
		_, err := h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 100+i, 1)
		require.NoError(t, err)
	}
	_, err := h.svc.PlaceLimitOrder(ctx, alice, btcusd, orderbook.Ask, 50, 1_000)
	require.Error(t, err)
	_, err = h.svc.FillMarketOrder(ctx, bob, btcusd, orderbook.Bid, 7, 5_000)
	require.NoError(t, err)

	want, err := h.svc.Digest(ctx, btcusd)
	require.NoError(t, err)
	wantEvents := outboxEvents(t, h.store)
	lastSeq := h.svc.seq.Current()
	h.close()

	// A fresh store replays the whole WAL.
	r := openService(t, vfs.NewMem(), walDir)
	got, err := r.svc.Digest(ctx, btcusd)
	require.NoError(t, err)
	require.Equal(t, want, got)
	require.Equal(t, wantEvents, outboxEvents(t, r.store))
	require.Equal(t, lastSeq, r.svc.seq.Current())

	// New commands continue the sequence.
	_, err = r.svc.PlaceLimitOrder(ctx, bob, btcusd, orderbook.Bid, 50, 1)
	require.NoError(t, err)
	require.Equal(t, lastSeq+1, r.svc.seq.Current())
}

func TestReplaySkipsCommittedCommands(t *testing.T) {
	fs := vfs.NewMem()
	walDir := t.TempDir()
	h := openService(t, fs, walDir)
	seed(t, h.svc)
	want := outboxEvents(t, h.store)
	h.close()

	r := openService(t, fs, walDir)
	n, err := r.svc.Replay(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, want, outboxEvents(t, r.store))
}

func TestCompact(t *testing.T) {
	h := openService(t, vfs.NewMem(), t.TempDir())
	seed(t, h.svc)

	var acked uint64
	err := h.store.Outbox().ScanByState(exitwal.StateNew, func(rec exitwal.ExitRecord) error {
		acked = rec.Seq
		return h.store.Outbox().UpdateState(rec.Seq, exitwal.StateAcked, 0)
	})
	require.NoError(t, err)

	segs, events, err := h.svc.Compact()
	require.NoError(t, err)
	require.Zero(t, segs)
	require.Equal(t, int(acked), events)
}

func TestCheckpointNamedBySequence(t *testing.T) {
	fs := vfs.NewMem()
	h := openService(t, fs, t.TempDir())
	seed(t, h.svc)

	seq, err := h.svc.Checkpoint("snapshots")
	require.NoError(t, err)
	require.Equal(t, h.svc.seq.Current(), seq)
}
