// Package registry maps a (base, quote, scale exponent) triple to the
// market's host address and scale factor.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"ledgerbook/domain/account"
	"ledgerbook/domain/asset"
	"ledgerbook/domain/capability"
)

var (
	ErrMarketExists    = errors.New("registry: market already registered")
	ErrNoMarket        = errors.New("registry: no such market")
	ErrInvalidExponent = errors.New("registry: invalid scale exponent")
	ErrInvalidMarket   = errors.New("registry: invalid market")
)

// Kind is the store record kind of the registry, held by the root address.
const Kind = "registry"

// MarketInfo is the registry key.
type MarketInfo struct {
	Base     asset.Type
	Quote    asset.Type
	Exponent ScaleExponent
}

// Tag names the market inside record kinds, e.g. "BTC,USD,E3".
func (m MarketInfo) Tag() string {
	return string(m.Base) + "," + string(m.Quote) + "," + m.Exponent.String()
}

func (m MarketInfo) Validate() error {
	if m.Base == "" || m.Quote == "" || m.Base == m.Quote {
		return fmt.Errorf("%w: %s", ErrInvalidMarket, m.Tag())
	}
	// The comma separates the parts of Tag.
	if strings.ContainsRune(string(m.Base), ',') || strings.ContainsRune(string(m.Quote), ',') {
		return fmt.Errorf("%w: comma in asset type: %s", ErrInvalidMarket, m.Tag())
	}
	if !m.Exponent.Valid() {
		return fmt.Errorf("%w: E%d", ErrInvalidExponent, m.Exponent)
	}
	return nil
}

// Market is a registered market.
type Market struct {
	Info        MarketInfo
	Host        account.Address
	ScaleFactor uint64
}

type Registry struct {
	Markets map[MarketInfo]Market
}

func New() *Registry {
	return &Registry{Markets: make(map[MarketInfo]Market)}
}

// Register records a new market hosted at host.
func (r *Registry) Register(fc capability.FriendCap, info MarketInfo, host account.Address) (Market, error) {
	if err := fc.Check(); err != nil {
		return Market{}, err
	}
	if err := info.Validate(); err != nil {
		return Market{}, err
	}
	if _, ok := r.Markets[info]; ok {
		return Market{}, fmt.Errorf("%w: %s", ErrMarketExists, info.Tag())
	}
	factor, _ := info.Exponent.Factor()
	m := Market{Info: info, Host: host, ScaleFactor: factor}
	if r.Markets == nil {
		r.Markets = make(map[MarketInfo]Market)
	}
	r.Markets[info] = m
	return m, nil
}

func (r *Registry) Lookup(info MarketInfo) (Market, error) {
	m, ok := r.Markets[info]
	if !ok {
		return Market{}, fmt.Errorf("%w: %s", ErrNoMarket, info.Tag())
	}
	return m, nil
}

// List returns all markets ordered by tag.
func (r *Registry) List() []Market {
	out := make([]Market, 0, len(r.Markets))
	for _, m := range r.Markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Info.Tag() < out[j].Info.Tag() })
	return out
}
