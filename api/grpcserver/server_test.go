package grpcserver

import (
	"context"
	"net"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"ledgerbook/domain/account"
	"ledgerbook/domain/capability"
	"ledgerbook/infra/store"
	entrywal "ledgerbook/infra/wal/entry"
	"ledgerbook/service"
)

var (
	alice  = account.MustParse("0xa11ce")
	bob    = account.MustParse("0xb0b")
	btcusd = Market{Base: "BTC", Quote: "USD", Exponent: "E2"}
)

func newClient(t *testing.T) *Client {
	log := zaptest.NewLogger(t)

	st, err := store.Open(store.Options{Dir: "db", FS: vfs.NewMem()})
	require.NoError(t, err)
	walDir := t.TempDir()
	w, err := entrywal.Open(entrywal.Config{Dir: walDir, SegmentSize: 1 << 20})
	require.NoError(t, err)
	svc, err := service.New(service.Options{
		Store:     st,
		WAL:       w,
		WALDir:    walDir,
		Authority: capability.NewAuthority(account.MustParse("0x1")),
		Logger:    log,
	})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	g := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(log)))
	Register(g, NewServer(svc, log))
	go func() { _ = g.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		g.Stop()
		_ = w.Close()
		_ = st.Close()
	})
	return NewClient(conn)
}

func TestTradeOverGRPC(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	reg, err := c.RegisterMarket(ctx, &RegisterMarketRequest{Market: btcusd})
	require.NoError(t, err)
	require.Equal(t, uint64(100), reg.ScaleFactor)

	require.NoError(t, c.Fund(ctx, &FundRequest{User: alice, Asset: "BTC", Amount: 1_000}))
	require.NoError(t, c.Fund(ctx, &FundRequest{User: bob, Asset: "USD", Amount: 10_000}))
	require.NoError(t, c.Deposit(ctx, &TransferRequest{User: alice, Market: btcusd, Base: 1_000}))
	require.NoError(t, c.Deposit(ctx, &TransferRequest{User: bob, Market: btcusd, Quote: 10_000}))

	placed, err := c.PlaceLimitOrder(ctx, &PlaceLimitOrderRequest{
		User: alice, Market: btcusd, Side: "ask", Price: 50, Size: 4,
	})
	require.NoError(t, err)
	require.Len(t, placed.OrderID, 32)

	fill, err := c.FillMarketOrder(ctx, &FillMarketOrderRequest{
		User: bob, Market: btcusd, Side: "bid", Size: 3, QuoteBudget: 1_000,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(3), fill.BaseFilled)
	require.Equal(t, uint64(150), fill.QuoteSpent)
	require.Equal(t, placed.OrderID, fill.Trades[0].MakerOrder)
	require.Equal(t, alice, fill.Trades[0].Maker)

	book, err := c.GetBook(ctx, &BookRequest{Market: btcusd})
	require.NoError(t, err)
	require.NotNil(t, book.BestAsk)
	require.Nil(t, book.BestBid)
	require.Equal(t, []Level{{Price: 50, Size: 1, Orders: 1}}, book.Asks)
	require.Len(t, book.Digest, 64)

	acct, err := c.GetAccount(ctx, &AccountRequest{User: alice, Market: btcusd})
	require.NoError(t, err)
	require.Equal(t, uint64(700), acct.BaseTotal)
	require.Equal(t, uint64(600), acct.BaseLocked)
	require.Equal(t, uint64(150), acct.QuoteLocked)
	require.Len(t, acct.Orders, 1)

	cancelled, err := c.CancelOrder(ctx, &CancelOrderRequest{
		User: alice, Market: btcusd, Side: "ask", OrderID: placed.OrderID,
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), cancelled.Size)

	require.NoError(t, c.Withdraw(ctx, &TransferRequest{User: alice, Market: btcusd, Base: 700, Quote: 150}))
	wallet, err := c.GetWallet(ctx, &WalletRequest{User: alice})
	require.NoError(t, err)
	require.Equal(t, map[string]uint64{"BTC": 700, "USD": 150}, wallet.Balances)

	markets, err := c.ListMarkets(ctx)
	require.NoError(t, err)
	require.Equal(t, []Market{btcusd}, markets.Markets)
}

func TestErrorCodes(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.GetBook(ctx, &BookRequest{Market: btcusd})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = c.RegisterMarket(ctx, &RegisterMarketRequest{Market: Market{Base: "BTC", Quote: "USD", Exponent: "E42"}})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.RegisterMarket(ctx, &RegisterMarketRequest{Market: btcusd})
	require.NoError(t, err)
	_, err = c.RegisterMarket(ctx, &RegisterMarketRequest{Market: btcusd})
	require.Equal(t, codes.AlreadyExists, status.Code(err))

	_, err = c.PlaceLimitOrder(ctx, &PlaceLimitOrderRequest{User: alice, Market: btcusd, Side: "up", Price: 1, Size: 1})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.PlaceLimitOrder(ctx, &PlaceLimitOrderRequest{User: alice, Market: btcusd, Side: "ask", Price: 1, Size: 1})
	require.Equal(t, codes.NotFound, status.Code(err))

	require.NoError(t, c.Fund(ctx, &FundRequest{User: alice, Asset: "BTC", Amount: 100}))
	require.NoError(t, c.Deposit(ctx, &TransferRequest{User: alice, Market: btcusd, Base: 100}))
	_, err = c.PlaceLimitOrder(ctx, &PlaceLimitOrderRequest{User: alice, Market: btcusd, Side: "ask", Price: 1, Size: 1})
	require.NoError(t, err)

	require.NoError(t, c.Fund(ctx, &FundRequest{User: bob, Asset: "USD", Amount: 10}))
	require.NoError(t, c.Deposit(ctx, &TransferRequest{User: bob, Market: btcusd, Quote: 10}))
	_, err = c.FillMarketOrder(ctx, &FillMarketOrderRequest{User: bob, Market: btcusd, Side: "bid", Size: 1, QuoteBudget: 11})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = c.CancelOrder(ctx, &CancelOrderRequest{User: bob, Market: btcusd, Side: "bid", OrderID: "zz"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestOrderIDFormat(t *testing.T) {
	id, err := parseOrderID("00000000000000320000000000000007")
	require.NoError(t, err)
	require.Equal(t, uint64(0x32), id.Hi)
	require.Equal(t, uint64(7), id.Lo)
	require.Equal(t, "00000000000000320000000000000007", formatOrderID(id))
}
