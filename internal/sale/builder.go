package sale

import (
	"math/big"
	"time"
)

// SaleInput gathers everything the builder composes into a SaleEntity.
type SaleInput struct {
	ProviderName     string
	ProviderContract string
	Protocol         string
	Sides            AssetSides
	Buyer            string
	TokenSymbol      string
	Prices           Prices
	BlockNumber      uint64
	BlockTime        uint64
	TxHash           string
}

// BuildSale composes a SaleEntity. Only single-unit fills are modelled, so Amount is 1.
func BuildSale(in SaleInput) SaleEntity {
	var id *big.Int
	if in.Sides.NFTTokenID != nil {
		id = new(big.Int).Set(in.Sides.NFTTokenID)
	}
	var usd = in.Prices.USD
	if usd != nil {
		v := *usd
		usd = &v
	}
	return SaleEntity{
		ProviderName:     in.ProviderName,
		ProviderContract: lower(in.ProviderContract),
		Protocol:         in.Protocol,
		NFTContract:      lower(in.Sides.NFTContract),
		NFTID:            id,
		Token:            lower(in.Sides.PaymentToken),
		TokenSymbol:      in.TokenSymbol,
		Amount:           1,
		Price:            in.Prices.Native,
		PriceUSD:         usd,
		Seller:           lower(in.Sides.Seller),
		Buyer:            lower(in.Buyer),
		SoldAt:           time.Unix(int64(in.BlockTime), 0).UTC(),
		BlockNumber:      in.BlockNumber,
		TransactionHash:  lower(in.TxHash),
	}
}
