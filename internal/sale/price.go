package sale

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Prices holds a fill's price in the payment token and, when known, in USD.
type Prices struct {
	Native decimal.Decimal
	USD    *decimal.Decimal
}

// NormalizePrice scales a raw fill amount by the token's decimals. The USD price
// is only computed for tokens with known, non-zero decimals and a quote.
func NormalizePrice(raw *big.Int, meta *TokenMetadata, quote *PriceQuote) Prices {
	if raw == nil {
		raw = new(big.Int)
	}
	var decimals uint8
	if meta != nil {
		decimals = meta.Decimals
	}
	// Shifting the exponent keeps the division exact for any width of raw.
	native := decimal.NewFromBigInt(raw, -int32(decimals))

	p := Prices{Native: native}
	if decimals == 0 || quote == nil {
		return p
	}
	usd := native.Mul(quote.Price)
	p.USD = &usd
	return p
}
