package pricing

import (
	"context"
	"strings"

	"github.com/devblac/salewatch/internal/sale"
	"github.com/shopspring/decimal"
)

// Static answers symbol and price lookups from fixed tables, e.g. stablecoins
// pinned in config. Quotes ignore the timestamp.
type Static struct {
	Tokens map[string]sale.TokenMetadata
	Prices map[string]decimal.Decimal
}

func staticKey(token, protocol string) string {
	return protocol + ":" + strings.ToLower(token)
}

// NewStatic returns an empty Static service.
func NewStatic() *Static {
	return &Static{Tokens: map[string]sale.TokenMetadata{}, Prices: map[string]decimal.Decimal{}}
}

// AddToken registers metadata for token on protocol, and a fixed USD price when usd is non-nil.
func (s *Static) AddToken(protocol, token, symbol string, decimals uint8, usd *decimal.Decimal) *Static {
	s.Tokens[staticKey(token, protocol)] = sale.TokenMetadata{Symbol: symbol, Decimals: decimals}
	if usd != nil {
		s.Prices[staticKey(token, protocol)] = *usd
	}
	return s
}

func (s *Static) Metadata(_ context.Context, token, protocol string) (*sale.TokenMetadata, error) {
	m, ok := s.Tokens[staticKey(token, protocol)]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (s *Static) Quote(_ context.Context, token, protocol string, _ uint64) (*sale.PriceQuote, error) {
	p, ok := s.Prices[staticKey(token, protocol)]
	if !ok {
		return nil, nil
	}
	return &sale.PriceQuote{Price: p}, nil
}

// Symbols consults each service in order and returns the first known metadata.
type Symbols []sale.SymbolService

func (l Symbols) Metadata(ctx context.Context, token, protocol string) (*sale.TokenMetadata, error) {
	for _, s := range l {
		m, err := s.Metadata(ctx, token, protocol)
		if err != nil || m != nil {
			return m, err
		}
	}
	return nil, nil
}

// Prices consults each service in order and returns the first quote.
type Prices []sale.PriceService

func (l Prices) Quote(ctx context.Context, token, protocol string, timestamp uint64) (*sale.PriceQuote, error) {
	for _, s := range l {
		q, err := s.Quote(ctx, token, protocol, timestamp)
		if err != nil || q != nil {
			return q, err
		}
	}
	return nil, nil
}
