package sink

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestPredicates(t *testing.T) {
	id, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	fields := map[string]any{
		"price":        decimal.RequireFromString("0.000000000000000001"),
		"price_usd":    decimal.RequireFromString("150.25"),
		"token":        "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
		"token_symbol": "WETH",
		"buyer":        "0x2222222222222222222222222222222222222222",
		"nft_id":       id,
		"block_number": uint64(16579900),
		"amount":       1,
	}

	tests := []struct {
		expr string
		want bool
	}{
		{"price_usd > 100", true},
		{"price_usd >= 150.25", true},
		{"price_usd < 150.25", false},
		{"price_usd <= 1_000", true},
		{"price > 0", true},
		{"price == 1e-18", true},
		{"nft_id == 115792089237316195423570985008687907853269984665640564039457584007913129639935", true},
		{"nft_id > 1 * 1e70", true},
		{"block_number != 16579900", false},
		{"amount == 1", true},
		{"token == 0xA0B86991C6218B36C1D19D4A2E9EB0CE3606EB48", true},
		{"token != 0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", false},
		{"buyer in 0x1111111111111111111111111111111111111111, 0x2222222222222222222222222222222222222222", true},
		{"buyer in 0x1111111111111111111111111111111111111111", false},
		{"token_symbol contains ETH", true},
		{"token_symbol contains USD", false},
		{"missing > 1", false},
		{"token_symbol > 1", false},
	}

	for _, tt := range tests {
		preds, err := CompilePredicates([]string{tt.expr})
		if err != nil {
			t.Fatalf("compile %q: %v", tt.expr, err)
		}
		if got := Match(preds, fields); got != tt.want {
			t.Errorf("%q = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestPredicateMissingUSD(t *testing.T) {
	preds, _ := CompilePredicates([]string{"price_usd < 10"})
	if Match(preds, map[string]any{"price": decimal.NewFromInt(1)}) {
		t.Fatal("a sale without a USD price must not match a USD bound")
	}
}

func TestCompilePredicateErrors(t *testing.T) {
	for _, expr := range []string{"price ~ 1", "price_usd > cheap", "== 1", "buyer in ,"} {
		if _, err := CompilePredicates([]string{expr}); err == nil {
			t.Errorf("expected error for %q", expr)
		}
	}
	preds, err := CompilePredicates([]string{"", "  "})
	if err != nil || len(preds) != 0 {
		t.Fatalf("blank expressions should be ignored, got %d, %v", len(preds), err)
	}
}
