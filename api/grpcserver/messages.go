package grpcserver

import (
	"fmt"
	"strconv"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/orderbook"
	"ledgerbook/domain/orderid"
	"ledgerbook/domain/registry"
)

// -------------------- Shared --------------------

type Market struct {
	Base     string `json:"base"`
	Quote    string `json:"quote"`
	Exponent string `json:"exponent"`
}

type Level struct {
	Price  uint64 `json:"price"`
	Size   uint64 `json:"size"`
	Orders int    `json:"orders"`
}

// -------------------- Commands --------------------

type RegisterMarketRequest struct {
	Market Market `json:"market"`
}

type RegisterMarketResponse struct {
	Host        account.Address `json:"host"`
	ScaleFactor uint64          `json:"scale_factor"`
}

type FundRequest struct {
	User   account.Address `json:"user"`
	Asset  string          `json:"asset"`
	Amount uint64          `json:"amount"`
}

type TransferRequest struct {
	User   account.Address `json:"user"`
	Market Market          `json:"market"`
	Base   uint64          `json:"base"`
	Quote  uint64          `json:"quote"`
}

type Empty struct{}

type PlaceLimitOrderRequest struct {
	User   account.Address `json:"user"`
	Market Market          `json:"market"`
	Side   string          `json:"side"`
	Price  uint64          `json:"price"`
	Size   uint64          `json:"size"`
}

type PlaceLimitOrderResponse struct {
	OrderID string `json:"order_id"`
}

type CancelOrderRequest struct {
	User    account.Address `json:"user"`
	Market  Market          `json:"market"`
	Side    string          `json:"side"`
	OrderID string          `json:"order_id"`
}

type CancelOrderResponse struct {
	Size uint64 `json:"size"`
}

type FillMarketOrderRequest struct {
	User        account.Address `json:"user"`
	Market      Market          `json:"market"`
	Side        string          `json:"side"`
	Size        uint64          `json:"size"`
	QuoteBudget uint64          `json:"quote_budget"`
}

type Trade struct {
	MakerOrder string          `json:"maker_order"`
	Maker      account.Address `json:"maker"`
	Price      uint64          `json:"price"`
	Size       uint64          `json:"size"`
	MakerDone  bool            `json:"maker_done"`
}

type FillMarketOrderResponse struct {
	BaseFilled uint64  `json:"base_filled"`
	QuoteSpent uint64  `json:"quote_spent"`
	Trades     []Trade `json:"trades"`
}

// -------------------- Queries --------------------

type BookRequest struct {
	Market Market `json:"market"`
	Depth  int    `json:"depth"`
}

type BookResponse struct {
	Asks    []Level `json:"asks"`
	Bids    []Level `json:"bids"`
	BestAsk *uint64 `json:"best_ask,omitempty"`
	BestBid *uint64 `json:"best_bid,omitempty"`
	Digest  string  `json:"digest"`
}

type AccountRequest struct {
	User   account.Address `json:"user"`
	Market Market          `json:"market"`
}

type OpenOrder struct {
	OrderID string `json:"order_id"`
	Side    string `json:"side"`
	Price   uint64 `json:"price"`
	Size    uint64 `json:"size"`
}

type AccountResponse struct {
	BaseTotal   uint64      `json:"base_total"`
	BaseLocked  uint64      `json:"base_locked"`
	QuoteTotal  uint64      `json:"quote_total"`
	QuoteLocked uint64      `json:"quote_locked"`
	Orders      []OpenOrder `json:"orders"`
}

type WalletRequest struct {
	User account.Address `json:"user"`
}

type WalletResponse struct {
	Balances map[string]uint64 `json:"balances"`
}

type ListMarketsResponse struct {
	Markets []Market `json:"markets"`
}

// -------------------- Converters --------------------

func (m Market) info() (registry.MarketInfo, error) {
	exp, err := registry.ParseScaleExponent(m.Exponent)
	if err != nil {
		return registry.MarketInfo{}, err
	}
	return registry.MarketInfo{Base: asset.Type(m.Base), Quote: asset.Type(m.Quote), Exponent: exp}, nil
}

func fromInfo(info registry.MarketInfo) Market {
	return Market{Base: string(info.Base), Quote: string(info.Quote), Exponent: info.Exponent.String()}
}

func toSide(s string) (orderbook.Side, error) {
	switch s {
	case "ask", "ASK", "sell":
		return orderbook.Ask, nil
	case "bid", "BID", "buy":
		return orderbook.Bid, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// formatOrderID renders id as 32 hex digits, price half first.
func formatOrderID(id orderid.ID) string {
	return fmt.Sprintf("%016x%016x", id.Hi, id.Lo)
}

func parseOrderID(s string) (orderid.ID, error) {
	if len(s) != 32 {
		return orderid.ID{}, fmt.Errorf("order id %q: want 32 hex digits", s)
	}
	hi, err := strconv.ParseUint(s[:16], 16, 64)
	if err != nil {
		return orderid.ID{}, fmt.Errorf("order id %q: %w", s, err)
	}
	lo, err := strconv.ParseUint(s[16:], 16, 64)
	if err != nil {
		return orderid.ID{}, fmt.Errorf("order id %q: %w", s, err)
	}
	return orderid.ID{Hi: hi, Lo: lo}, nil
}

func toLevels(in []orderbook.PriceLevel) []Level {
	out := make([]Level, len(in))
	for i, l := range in {
		out[i] = Level{Price: l.Price, Size: l.TotalSize, Orders: l.OrderCount}
	}
	return out
}
