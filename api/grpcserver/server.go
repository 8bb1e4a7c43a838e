// Package grpcserver exposes the market service over gRPC. Messages are
// plain structs carried by a JSON codec, so no generated code is involved.
package grpcserver

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/capability"
	"ledgerbook/domain/collateral"
	"ledgerbook/domain/matching"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
	"ledgerbook/service"
)

// Server adapts MarketService to gRPC.
type Server struct {
	svc *service.MarketService
	log *zap.Logger
}

func NewServer(svc *service.MarketService, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{svc: svc, log: log}
}

// -------------------- Commands --------------------

func (s *Server) RegisterMarket(ctx context.Context, req *RegisterMarketRequest) (*RegisterMarketResponse, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	m, err := s.svc.RegisterMarket(ctx, info)
	if err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("[gRPC] RegisterMarket", zap.String("market", info.Tag()))
	return &RegisterMarketResponse{Host: m.Host, ScaleFactor: m.ScaleFactor}, nil
}

func (s *Server) Fund(ctx context.Context, req *FundRequest) (*Empty, error) {
	if err := s.svc.Fund(ctx, req.User, asset.Type(req.Asset), req.Amount); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) Deposit(ctx context.Context, req *TransferRequest) (*Empty, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.svc.Deposit(ctx, req.User, info, req.Base, req.Quote); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) Withdraw(ctx context.Context, req *TransferRequest) (*Empty, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.svc.Withdraw(ctx, req.User, info, req.Base, req.Quote); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Server) PlaceLimitOrder(ctx context.Context, req *PlaceLimitOrderRequest) (*PlaceLimitOrderResponse, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	side, err := toSide(req.Side)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	id, err := s.svc.PlaceLimitOrder(ctx, req.User, info, side, req.Price, req.Size)
	if err != nil {
		return nil, toStatus(err)
	}
	s.log.Debug("[gRPC] PlaceLimitOrder",
		zap.String("market", info.Tag()),
		zap.Stringer("side", side),
		zap.Uint64("price", req.Price),
		zap.Uint64("size", req.Size),
		zap.String("id", orderid.Format(id, side == orderbook.Bid)),
	)
	return &PlaceLimitOrderResponse{OrderID: formatOrderID(id)}, nil
}

func (s *Server) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	side, err := toSide(req.Side)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	id, err := parseOrderID(req.OrderID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	pos, err := s.svc.CancelOrder(ctx, req.User, info, side, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return &CancelOrderResponse{Size: pos.Size}, nil
}

func (s *Server) FillMarketOrder(ctx context.Context, req *FillMarketOrderRequest) (*FillMarketOrderResponse, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	side, err := toSide(req.Side)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	res, err := s.svc.FillMarketOrder(ctx, req.User, info, side, req.Size, req.QuoteBudget)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &FillMarketOrderResponse{
		BaseFilled: res.BaseFilled,
		QuoteSpent: res.QuoteSpent,
		Trades:     make([]Trade, 0, len(res.Trades)),
	}
	for _, t := range res.Trades {
		resp.Trades = append(resp.Trades, Trade{
			MakerOrder: formatOrderID(t.MakerOrder),
			Maker:      t.Maker,
			Price:      t.Price,
			Size:       t.Size,
			MakerDone:  t.MakerDone,
		})
	}
	return resp, nil
}

// -------------------- Queries --------------------

func (s *Server) GetBook(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := s.svc.Book(ctx, info, req.Depth)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &BookResponse{
		Asks:   toLevels(v.Asks),
		Bids:   toLevels(v.Bids),
		Digest: v.Digest,
	}
	if v.HasAsk {
		resp.BestAsk = &v.BestAsk
	}
	if v.HasBid {
		resp.BestBid = &v.BestBid
	}
	return resp, nil
}

func (s *Server) GetAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	info, err := req.Market.info()
	if err != nil {
		return nil, toStatus(err)
	}
	v, err := s.svc.Account(ctx, req.User, info)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &AccountResponse{
		BaseTotal:   v.Vault.BaseAsset.Value,
		BaseLocked:  v.Vault.BaseLocked,
		QuoteTotal:  v.Vault.QuoteAsset.Value,
		QuoteLocked: v.Vault.QuoteLocked,
		Orders:      make([]OpenOrder, 0, len(v.Orders)),
	}
	for _, o := range v.Orders {
		resp.Orders = append(resp.Orders, OpenOrder{
			OrderID: formatOrderID(o.ID),
			Side:    o.Side.String(),
			Price:   o.Price,
			Size:    o.Size,
		})
	}
	return resp, nil
}

func (s *Server) GetWallet(ctx context.Context, req *WalletRequest) (*WalletResponse, error) {
	bal, err := s.svc.Wallet(ctx, req.User)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &WalletResponse{Balances: make(map[string]uint64, len(bal))}
	for t, v := range bal {
		resp.Balances[string(t)] = v
	}
	return resp, nil
}

func (s *Server) ListMarkets(ctx context.Context, _ *Empty) (*ListMarketsResponse, error) {
	markets, err := s.svc.Markets(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListMarketsResponse{Markets: make([]Market, 0, len(markets))}
	for _, m := range markets {
		resp.Markets = append(resp.Markets, fromInfo(m.Info))
	}
	return resp, nil
}

// -------------------- Errors --------------------

var codeOf = []struct {
	err  error
	code codes.Code
}{
	{service.ErrInvalidUser, codes.InvalidArgument},
	{account.ErrInvalidAddress, codes.InvalidArgument},
	{registry.ErrInvalidExponent, codes.InvalidArgument},
	{registry.ErrInvalidMarket, codes.InvalidArgument},
	{matching.ErrZeroSize, codes.InvalidArgument},
	{matching.ErrZeroQuoteBudget, codes.InvalidArgument},
	{collateral.ErrNoTransfer, codes.InvalidArgument},
	{registry.ErrNoMarket, codes.NotFound},
	{orderbook.ErrNoSuchOrder, codes.NotFound},
	{service.ErrNoCollateral, codes.NotFound},
	{registry.ErrMarketExists, codes.AlreadyExists},
	{orderbook.ErrWouldCross, codes.FailedPrecondition},
	{matching.ErrSelfMatch, codes.FailedPrecondition},
	{collateral.ErrInsufficientCollateral, codes.FailedPrecondition},
	{collateral.ErrInsufficientLocked, codes.FailedPrecondition},
	{collateral.ErrOverflow, codes.OutOfRange},
	{capability.ErrUnauthorized, codes.PermissionDenied},
	{service.ErrStorage, codes.Internal},
}

func toStatus(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	for _, c := range codeOf {
		if errors.Is(err, c.err) {
			return status.Error(c.code, err.Error())
		}
	}
	return status.Error(codes.Unknown, err.Error())
}
