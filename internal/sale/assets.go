package sale

import (
	"errors"
	"fmt"
	"math/big"
)

// AssetSides is the outcome of deciding which side of a fill carries the NFT.
type AssetSides struct {
	PaymentToken string
	NFTContract  string
	NFTTokenID   *big.Int
	IsLeftNFT    bool

	// Seller is the maker of the NFT side, Buyer the maker of the payment side.
	Seller string
	Buyer  string
	// PaymentFill is the raw fill amount of the payment side.
	PaymentFill *big.Int
}

// ResolveAssets splits a fill into its NFT and payment sides. An empty payment
// payload is the chain's native coin and is reported as nativeToken.
func ResolveAssets(dec TupleDecoder, ev OrderFillEvent, nativeToken string) (AssetSides, error) {
	leftNFT, rightNFT := ev.LeftAsset.Class.IsNFT(), ev.RightAsset.Class.IsNFT()
	switch {
	case leftNFT && rightNFT:
		return AssetSides{}, decodeErr(ev, errors.New("both sides carry ERC-721 class"))
	case !leftNFT && !rightNFT:
		return AssetSides{}, decodeErr(ev, fmt.Errorf("no ERC-721 side (left %s, right %s)", ev.LeftAsset.Class, ev.RightAsset.Class))
	}

	nftAsset, payAsset := ev.RightAsset, ev.LeftAsset
	sides := AssetSides{
		IsLeftNFT:   leftNFT,
		Seller:      lower(ev.RightMaker),
		Buyer:       lower(ev.LeftMaker),
		PaymentFill: ev.NewLeftFill,
	}
	if leftNFT {
		nftAsset, payAsset = ev.LeftAsset, ev.RightAsset
		sides.Seller = lower(ev.LeftMaker)
		sides.Buyer = lower(ev.RightMaker)
		sides.PaymentFill = ev.NewRightFill
	}
	if sides.PaymentFill == nil {
		return AssetSides{}, decodeErr(ev, errors.New("missing payment fill"))
	}

	token, err := paymentToken(dec, payAsset, nativeToken)
	if err != nil {
		return AssetSides{}, decodeErr(ev, fmt.Errorf("payment asset: %w", err))
	}
	sides.PaymentToken = token

	contract, id, err := decodeNFT(dec, nftAsset.Data)
	if err != nil {
		return AssetSides{}, decodeErr(ev, fmt.Errorf("nft asset: %w", err))
	}
	sides.NFTContract = contract
	sides.NFTTokenID = id
	return sides, nil
}

func paymentToken(dec TupleDecoder, a Asset, nativeToken string) (string, error) {
	if len(a.Data) == 0 {
		return lower(nativeToken), nil
	}
	return decodeAddress(dec, a.Data)
}

func decodeErr(ev OrderFillEvent, err error) error {
	return &DecodeError{TxHash: ev.TxHash, LogIndex: ev.LogIndex, Err: err}
}
