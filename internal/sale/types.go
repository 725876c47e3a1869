package sale

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// SoldAtLayout is the canonical timestamp format of a sale record.
const SoldAtLayout = "2006-01-02 15:04:05"

// AssetClass is the 4-byte tag identifying what an order side references.
type AssetClass [4]byte

// ClassERC721 is the only asset class treated specially; every other class is a payment asset.
var ClassERC721 = AssetClass{0x73, 0xad, 0x21, 0x46}

// ParseAssetClass parses a 0x-prefixed 4-byte hex tag.
func ParseAssetClass(s string) (AssetClass, error) {
	var c AssetClass
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return c, fmt.Errorf("parse asset class %q: %w", s, err)
	}
	if len(raw) != len(c) {
		return c, fmt.Errorf("parse asset class %q: want 4 bytes, got %d", s, len(raw))
	}
	copy(c[:], raw)
	return c, nil
}

func (c AssetClass) String() string {
	return "0x" + hex.EncodeToString(c[:])
}

// IsNFT reports whether the class is the ERC-721 class.
func (c AssetClass) IsNFT() bool {
	return c == ClassERC721
}

// Asset is one side of a matched order: a class tag plus its ABI-encoded payload.
type Asset struct {
	Class AssetClass
	Data  []byte
}

// OrderFillEvent is a decoded OrderFilled log.
type OrderFillEvent struct {
	BlockNumber  uint64
	TxHash       string
	LogIndex     uint
	LeftAsset    Asset
	RightAsset   Asset
	LeftMaker    string
	RightMaker   string
	NewLeftFill  *big.Int
	NewRightFill *big.Int
}

// TokenMetadata is what the symbol service knows about a token.
type TokenMetadata struct {
	Symbol   string
	Decimals uint8
}

// PriceQuote is the USD price of one unit of a token at a point in time.
type PriceQuote struct {
	Price decimal.Decimal
}

// Receipt carries the transaction receipt fields the engine reads.
type Receipt struct {
	TxHash string
	From   string
}

// SaleEntity is the canonical sale record.
type SaleEntity struct {
	ProviderName     string
	ProviderContract string
	Protocol         string
	NFTContract      string
	NFTID            *big.Int
	Token            string
	TokenSymbol      string
	Amount           int
	Price            decimal.Decimal
	PriceUSD         *decimal.Decimal
	Seller           string
	Buyer            string
	SoldAt           time.Time
	BlockNumber      uint64
	TransactionHash  string
}

// SoldAtString formats SoldAt as YYYY-MM-DD HH:mm:ss in UTC.
func (s SaleEntity) SoldAtString() string {
	return s.SoldAt.UTC().Format(SoldAtLayout)
}

// Key is the identity of a sale: transaction hash, NFT contract and token id.
func (s SaleEntity) Key() string {
	id := "0"
	if s.NFTID != nil {
		id = s.NFTID.String()
	}
	return s.TransactionHash + ":" + s.NFTContract + ":" + id
}

// Fields flattens the sale into a map keyed by snake_case field names.
// Decimal and big integer values are kept as their exact types.
func (s SaleEntity) Fields() map[string]any {
	f := map[string]any{
		"provider_name":     s.ProviderName,
		"provider_contract": s.ProviderContract,
		"protocol":          s.Protocol,
		"nft_contract":      s.NFTContract,
		"nft_id":            s.NFTID,
		"token":             s.Token,
		"token_symbol":      s.TokenSymbol,
		"amount":            s.Amount,
		"price":             s.Price,
		"seller":            s.Seller,
		"buyer":             s.Buyer,
		"sold_at":           s.SoldAtString(),
		"block_number":      s.BlockNumber,
		"transaction_hash":  s.TransactionHash,
	}
	if s.PriceUSD != nil {
		f["price_usd"] = *s.PriceUSD
	}
	return f
}
