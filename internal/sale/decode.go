package sale

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	paymentTuple = []string{"address"}
	nftTuple     = []string{"address", "uint256"}
)

// TupleDecoder decodes an ABI-encoded tuple of the given solidity types.
type TupleDecoder interface {
	DecodeTuple(types []string, data []byte) ([]any, error)
}

// ABIDecoder decodes tuples with the standard contract ABI layout.
type ABIDecoder struct{}

// DecodeTuple unpacks data as a tuple of types, e.g. ["address","uint256"].
func (ABIDecoder) DecodeTuple(types []string, data []byte) ([]any, error) {
	args := make(abi.Arguments, 0, len(types))
	for _, t := range types {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parse type %s: %w", t, err)
		}
		args = append(args, abi.Argument{Type: typ})
	}
	vals, err := args.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("unpack (%s): %w", strings.Join(types, ","), err)
	}
	return vals, nil
}

func decodeAddress(dec TupleDecoder, data []byte) (string, error) {
	vals, err := dec.DecodeTuple(paymentTuple, data)
	if err != nil {
		return "", err
	}
	if len(vals) != 1 {
		return "", fmt.Errorf("want 1 value, got %d", len(vals))
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("unexpected address type %T", vals[0])
	}
	return lower(addr.Hex()), nil
}

func decodeNFT(dec TupleDecoder, data []byte) (string, *big.Int, error) {
	vals, err := dec.DecodeTuple(nftTuple, data)
	if err != nil {
		return "", nil, err
	}
	if len(vals) != 2 {
		return "", nil, fmt.Errorf("want 2 values, got %d", len(vals))
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return "", nil, fmt.Errorf("unexpected address type %T", vals[0])
	}
	id, ok := vals[1].(*big.Int)
	if !ok {
		return "", nil, fmt.Errorf("unexpected token id type %T", vals[1])
	}
	return lower(addr.Hex()), new(big.Int).Set(id), nil
}

func lower(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
