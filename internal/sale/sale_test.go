package sale

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

const (
	tokenAddr  = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"
	nftAddr    = "0xBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBbBb"
	sellerAddr = "0x1111111111111111111111111111111111111111"
	buyerAddr  = "0x2222222222222222222222222222222222222222"
	proxyAddr  = "0x2DEBB6CED142197BEC08D76D3ECCE828B3B261EE"
	senderAddr = "0x3333333333333333333333333333333333333AbC"
	nativeETH  = "0x0000000000000000000000000000000000000000"
	erc20Class = "0x8ae85d84"
)

type fakeChain struct {
	times        map[uint64]uint64
	receipts     map[string]*Receipt
	blockErr     error
	receiptCalls int
}

func (f *fakeChain) BlockTimestamp(_ context.Context, n uint64) (uint64, error) {
	if f.blockErr != nil {
		return 0, f.blockErr
	}
	return f.times[n], nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash string) (*Receipt, error) {
	f.receiptCalls++
	r, ok := f.receipts[hash]
	if !ok {
		return nil, errors.New("receipt not found")
	}
	return r, nil
}

type fakeSymbols map[string]*TokenMetadata

func (f fakeSymbols) Metadata(_ context.Context, token, _ string) (*TokenMetadata, error) {
	return f[token], nil
}

type fakePrices struct {
	price   decimal.Decimal
	gotTS   uint64
	calls   int
	missing bool
}

func (f *fakePrices) Quote(_ context.Context, _, _ string, ts uint64) (*PriceQuote, error) {
	f.calls++
	f.gotTS = ts
	if f.missing {
		return nil, nil
	}
	return &PriceQuote{Price: f.price}, nil
}

func encode(t *testing.T, types []string, vals ...any) []byte {
	t.Helper()
	args := abi.Arguments{}
	for _, ty := range types {
		typ, err := abi.NewType(ty, "", nil)
		if err != nil {
			t.Fatalf("type %s: %v", ty, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	out, err := args.Pack(vals...)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	return out
}

func mustClass(t *testing.T, s string) AssetClass {
	t.Helper()
	c, err := ParseAssetClass(s)
	if err != nil {
		t.Fatalf("class: %v", err)
	}
	return c
}

func nftAsset(t *testing.T, id int64) Asset {
	return Asset{Class: ClassERC721, Data: encode(t, nftTuple, common.HexToAddress(nftAddr), big.NewInt(id))}
}

func tokenAsset(t *testing.T) Asset {
	return Asset{Class: mustClass(t, erc20Class), Data: encode(t, paymentTuple, common.HexToAddress(tokenAddr))}
}

func leftNFTEvent(t *testing.T) OrderFillEvent {
	return OrderFillEvent{
		BlockNumber:  100,
		TxHash:       "0xABC",
		LeftAsset:    nftAsset(t, 42),
		RightAsset:   tokenAsset(t),
		LeftMaker:    sellerAddr,
		RightMaker:   buyerAddr,
		NewLeftFill:  big.NewInt(1),
		NewRightFill: big.NewInt(1_000_000),
	}
}

func newTestEngine(t *testing.T, chain Chain, syms SymbolService, prices PriceService) *Engine {
	t.Helper()
	e, err := NewEngine(Config{
		Name:        "ghostmarket-ethereum",
		Protocol:    "ethereum",
		Contract:    "0xFB2F452639CBB0850B46B20D24DE7B0A9CCB665F",
		NativeToken: nativeETH,
		Proxies:     []string{proxyAddr},
	}, chain, syms, prices)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

func TestResolveAssetsEitherSide(t *testing.T) {
	left := leftNFTEvent(t)
	right := left
	right.LeftAsset, right.RightAsset = left.RightAsset, left.LeftAsset
	right.LeftMaker, right.RightMaker = buyerAddr, sellerAddr
	right.NewLeftFill, right.NewRightFill = big.NewInt(1_000_000), big.NewInt(1)

	tests := []struct {
		name     string
		ev       OrderFillEvent
		wantLeft bool
	}{
		{"nft_left", left, true},
		{"nft_right", right, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sides, err := ResolveAssets(ABIDecoder{}, tt.ev, nativeETH)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if sides.IsLeftNFT != tt.wantLeft {
				t.Fatalf("IsLeftNFT = %v, want %v", sides.IsLeftNFT, tt.wantLeft)
			}
			if sides.NFTContract != strings.ToLower(nftAddr) || sides.NFTTokenID.Int64() != 42 {
				t.Fatalf("unexpected nft %s #%s", sides.NFTContract, sides.NFTTokenID)
			}
			if sides.PaymentToken != strings.ToLower(tokenAddr) {
				t.Fatalf("payment token = %s", sides.PaymentToken)
			}
			if sides.Seller != sellerAddr || sides.Buyer != buyerAddr {
				t.Fatalf("seller %s buyer %s", sides.Seller, sides.Buyer)
			}
			if sides.PaymentFill.Int64() != 1_000_000 {
				t.Fatalf("payment fill = %s, want payment side fill", sides.PaymentFill)
			}
		})
	}
}

func TestResolveAssetsNativePayment(t *testing.T) {
	ev := leftNFTEvent(t)
	ev.RightAsset = Asset{Class: mustClass(t, "0xaaaebeba")}

	sides, err := ResolveAssets(ABIDecoder{}, ev, "matic")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if sides.PaymentToken != "matic" {
		t.Fatalf("payment token = %q, want native sentinel", sides.PaymentToken)
	}
}

func TestResolveAssetsDecodeErrors(t *testing.T) {
	malformed := leftNFTEvent(t)
	malformed.LeftAsset.Data = []byte{0x01, 0x02}

	noNFT := leftNFTEvent(t)
	noNFT.LeftAsset = tokenAsset(t)

	bothNFT := leftNFTEvent(t)
	bothNFT.RightAsset = nftAsset(t, 7)

	badPayment := leftNFTEvent(t)
	badPayment.RightAsset.Data = []byte{0xff}

	noFill := leftNFTEvent(t)
	noFill.NewRightFill = nil

	for name, ev := range map[string]OrderFillEvent{
		"malformed_nft":     malformed,
		"no_nft_side":       noNFT,
		"both_nft_sides":    bothNFT,
		"malformed_payment": badPayment,
		"missing_fill":      noFill,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ResolveAssets(ABIDecoder{}, ev, nativeETH)
			if !IsDecodeError(err) {
				t.Fatalf("expected decode error, got %v", err)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.TxHash != ev.TxHash {
				t.Fatalf("decode error does not carry tx hash: %v", err)
			}
		})
	}
}

func TestNormalizePrice(t *testing.T) {
	huge, _ := new(big.Int).SetString("123456789012345678901234567890", 10)
	tests := []struct {
		name      string
		raw       *big.Int
		meta      *TokenMetadata
		quote     *PriceQuote
		wantPrice string
		wantUSD   string
	}{
		{"usdc", big.NewInt(1_000_000), &TokenMetadata{Symbol: "USDC", Decimals: 6}, &PriceQuote{Price: decimal.RequireFromString("2.50")}, "1", "2.5"},
		{"wide_integer", huge, &TokenMetadata{Symbol: "WETH", Decimals: 18}, &PriceQuote{Price: decimal.NewFromInt(2)}, "123456789012.34567890123456789", "246913578024.69135780246913578"},
		{"unknown_token", big.NewInt(1_000_000), nil, &PriceQuote{Price: decimal.NewFromInt(3)}, "1000000", ""},
		{"zero_decimals", big.NewInt(5), &TokenMetadata{Symbol: "X"}, &PriceQuote{Price: decimal.NewFromInt(3)}, "5", ""},
		{"no_quote", big.NewInt(10), &TokenMetadata{Decimals: 1}, nil, "1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NormalizePrice(tt.raw, tt.meta, tt.quote)
			if p.Native.String() != tt.wantPrice {
				t.Fatalf("native = %s, want %s", p.Native, tt.wantPrice)
			}
			if tt.wantUSD == "" {
				if p.USD != nil {
					t.Fatalf("usd = %s, want nil", p.USD)
				}
				return
			}
			if p.USD == nil || p.USD.String() != tt.wantUSD {
				t.Fatalf("usd = %v, want %s", p.USD, tt.wantUSD)
			}
		})
	}
}

func TestProxyResolver(t *testing.T) {
	chain := &fakeChain{receipts: map[string]*Receipt{"0xabc": {From: senderAddr}}}
	r := NewProxyResolver(chain, []string{proxyAddr})

	got, err := r.ResolveBuyer(context.Background(), buyerAddr, "0xabc")
	if err != nil || got != buyerAddr {
		t.Fatalf("non-proxy buyer changed: %s %v", got, err)
	}
	if chain.receiptCalls != 0 {
		t.Fatalf("receipt fetched for non-proxy buyer")
	}

	got, err = r.ResolveBuyer(context.Background(), strings.ToLower(proxyAddr), "0xabc")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != strings.ToLower(senderAddr) {
		t.Fatalf("buyer = %s, want tx sender", got)
	}

	if _, err := r.ResolveBuyer(context.Background(), proxyAddr, "0xmissing"); !IsUpstreamError(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestEngineProcessLeftNFT(t *testing.T) {
	chain := &fakeChain{times: map[uint64]uint64{100: 1675000000}}
	prices := &fakePrices{price: decimal.RequireFromString("2.50")}
	e := newTestEngine(t, chain, fakeSymbols{strings.ToLower(tokenAddr): {Symbol: "USDC", Decimals: 6}}, prices)

	s, err := e.Process(context.Background(), leftNFTEvent(t))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !s.Price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("price = %s", s.Price)
	}
	if s.PriceUSD == nil || !s.PriceUSD.Equal(decimal.RequireFromString("2.5")) {
		t.Fatalf("price usd = %v", s.PriceUSD)
	}
	if prices.gotTS != 1675000000 {
		t.Fatalf("quote fetched at %d, want block timestamp", prices.gotTS)
	}
	if s.SoldAtString() != "2023-01-29 13:46:40" {
		t.Fatalf("sold at = %s", s.SoldAtString())
	}
	if s.Amount != 1 || s.TokenSymbol != "USDC" || s.Seller != sellerAddr || s.Buyer != buyerAddr {
		t.Fatalf("unexpected sale %+v", s)
	}
	for field, v := range map[string]string{
		"provider_contract": s.ProviderContract,
		"nft_contract":      s.NFTContract,
		"token":             s.Token,
		"seller":            s.Seller,
		"buyer":             s.Buyer,
		"transaction_hash":  s.TransactionHash,
	} {
		if v != strings.ToLower(v) {
			t.Fatalf("%s not lowercase: %s", field, v)
		}
	}
}

func TestEngineUnknownTokenDegrades(t *testing.T) {
	chain := &fakeChain{times: map[uint64]uint64{100: 1}}
	prices := &fakePrices{price: decimal.NewFromInt(5)}
	e := newTestEngine(t, chain, fakeSymbols{}, prices)

	s, err := e.Process(context.Background(), leftNFTEvent(t))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if s.TokenSymbol != "" || s.PriceUSD != nil {
		t.Fatalf("expected degraded sale, got symbol %q usd %v", s.TokenSymbol, s.PriceUSD)
	}
	if !s.Price.Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("price = %s, want raw amount", s.Price)
	}
	if prices.calls != 0 {
		t.Fatalf("price looked up for unknown token")
	}
}

func TestEngineMissingQuoteDegrades(t *testing.T) {
	chain := &fakeChain{times: map[uint64]uint64{100: 1}}
	e := newTestEngine(t, chain, fakeSymbols{strings.ToLower(tokenAddr): {Symbol: "USDC", Decimals: 6}}, &fakePrices{missing: true})

	s, err := e.Process(context.Background(), leftNFTEvent(t))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if s.TokenSymbol != "USDC" || s.PriceUSD != nil {
		t.Fatalf("symbol %q usd %v", s.TokenSymbol, s.PriceUSD)
	}
}

func TestEngineProxyBuyerEitherSide(t *testing.T) {
	left := leftNFTEvent(t)
	left.RightMaker = proxyAddr

	right := leftNFTEvent(t)
	right.LeftAsset, right.RightAsset = right.RightAsset, right.LeftAsset
	right.LeftMaker, right.RightMaker = proxyAddr, sellerAddr
	right.NewLeftFill, right.NewRightFill = big.NewInt(1_000_000), big.NewInt(1)

	for name, ev := range map[string]OrderFillEvent{"proxy_right": left, "proxy_left": right} {
		t.Run(name, func(t *testing.T) {
			chain := &fakeChain{
				times:    map[uint64]uint64{100: 1},
				receipts: map[string]*Receipt{"0xABC": {From: senderAddr}},
			}
			e := newTestEngine(t, chain, fakeSymbols{}, &fakePrices{})
			s, err := e.Process(context.Background(), ev)
			if err != nil {
				t.Fatalf("process: %v", err)
			}
			if s.Buyer != strings.ToLower(senderAddr) {
				t.Fatalf("buyer = %s, want tx sender", s.Buyer)
			}
			if s.Seller != sellerAddr {
				t.Fatalf("seller = %s", s.Seller)
			}
		})
	}
}

func TestEngineIdempotent(t *testing.T) {
	chain := &fakeChain{times: map[uint64]uint64{100: 1675000000}}
	e := newTestEngine(t, chain, fakeSymbols{strings.ToLower(tokenAddr): {Symbol: "USDC", Decimals: 6}}, &fakePrices{price: decimal.RequireFromString("2.5")})

	ev := leftNFTEvent(t)
	a, err := e.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	b, err := e.Process(context.Background(), ev)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("sales differ:\n%+v\n%+v", a, b)
	}
}

func TestEngineErrors(t *testing.T) {
	chain := &fakeChain{blockErr: errors.New("rpc down")}
	e := newTestEngine(t, chain, fakeSymbols{}, &fakePrices{})

	if _, err := e.Process(context.Background(), leftNFTEvent(t)); !IsUpstreamError(err) {
		t.Fatalf("expected upstream error, got %v", err)
	}

	bad := leftNFTEvent(t)
	bad.LeftAsset.Data = []byte{0x01}
	_, err := e.Process(context.Background(), bad)
	if !IsDecodeError(err) || IsUpstreamError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}

func TestParseAssetClass(t *testing.T) {
	c, err := ParseAssetClass("0x73AD2146")
	if err != nil || !c.IsNFT() {
		t.Fatalf("expected ERC-721 class, got %s %v", c, err)
	}
	if _, err := ParseAssetClass("0x1234"); err == nil {
		t.Fatalf("expected short tag to fail")
	}
}
