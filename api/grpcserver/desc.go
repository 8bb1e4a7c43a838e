package grpcserver

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const ServiceName = "ledgerbook.v1.Ledger"

// Register attaches s to g.
func Register(g grpc.ServiceRegistrar, s *Server) {
	g.RegisterService(&serviceDesc, s)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("RegisterMarket", (*Server).RegisterMarket),
		unary("Fund", (*Server).Fund),
		unary("Deposit", (*Server).Deposit),
		unary("Withdraw", (*Server).Withdraw),
		unary("PlaceLimitOrder", (*Server).PlaceLimitOrder),
		unary("CancelOrder", (*Server).CancelOrder),
		unary("FillMarketOrder", (*Server).FillMarketOrder),
		unary("GetBook", (*Server).GetBook),
		unary("GetAccount", (*Server).GetAccount),
		unary("GetWallet", (*Server).GetWallet),
		unary("ListMarkets", (*Server).ListMarkets),
	},
	Metadata: "ledgerbook/v1/ledger",
}

func unary[Req, Resp any](name string, call func(*Server, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			req := new(Req)
			if err := dec(req); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, r any) (any, error) {
				return call(srv.(*Server), ctx, r.(*Req))
			}
			if ic == nil {
				return h(ctx, req)
			}
			return ic(ctx, req, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, h)
		},
	}
}

// LoggingInterceptor logs every call with its status code and latency.
func LoggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, h grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := h(ctx, req)
		log.Debug("[gRPC] call",
			zap.String("method", info.FullMethod),
			zap.Stringer("code", status.Code(err)),
			zap.Duration("took", time.Since(start)),
		)
		return resp, err
	}
}

// -------------------- Client --------------------

// Client calls a Server over conn using the JSON codec.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterMarket(ctx context.Context, req *RegisterMarketRequest) (*RegisterMarketResponse, error) {
	return invoke[RegisterMarketResponse](ctx, c, "RegisterMarket", req)
}

func (c *Client) Fund(ctx context.Context, req *FundRequest) error {
	_, err := invoke[Empty](ctx, c, "Fund", req)
	return err
}

func (c *Client) Deposit(ctx context.Context, req *TransferRequest) error {
	_, err := invoke[Empty](ctx, c, "Deposit", req)
	return err
}

func (c *Client) Withdraw(ctx context.Context, req *TransferRequest) error {
	_, err := invoke[Empty](ctx, c, "Withdraw", req)
	return err
}

func (c *Client) PlaceLimitOrder(ctx context.Context, req *PlaceLimitOrderRequest) (*PlaceLimitOrderResponse, error) {
	return invoke[PlaceLimitOrderResponse](ctx, c, "PlaceLimitOrder", req)
}

func (c *Client) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	return invoke[CancelOrderResponse](ctx, c, "CancelOrder", req)
}

func (c *Client) FillMarketOrder(ctx context.Context, req *FillMarketOrderRequest) (*FillMarketOrderResponse, error) {
	return invoke[FillMarketOrderResponse](ctx, c, "FillMarketOrder", req)
}

func (c *Client) GetBook(ctx context.Context, req *BookRequest) (*BookResponse, error) {
	return invoke[BookResponse](ctx, c, "GetBook", req)
}

func (c *Client) GetAccount(ctx context.Context, req *AccountRequest) (*AccountResponse, error) {
	return invoke[AccountResponse](ctx, c, "GetAccount", req)
}

func (c *Client) GetWallet(ctx context.Context, req *WalletRequest) (*WalletResponse, error) {
	return invoke[WalletResponse](ctx, c, "GetWallet", req)
}

func (c *Client) ListMarkets(ctx context.Context) (*ListMarketsResponse, error) {
	return invoke[ListMarketsResponse](ctx, c, "ListMarkets", &Empty{})
}
