package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/devblac/salewatch/internal/sale"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// assetType mirrors the LibAsset.AssetType tuple.
type assetType struct {
	AssetClass [4]byte `json:"assetClass"`
	Data       []byte  `json:"data"`
}

// FillMatcher filters and decodes OrderFilled logs of one marketplace contract.
type FillMatcher struct {
	address common.Address
	event   *abi.Event
}

// NewFillMatcher builds a matcher for contract using the OrderFilled event of a.
func NewFillMatcher(contract string, a *abi.ABI) (*FillMatcher, error) {
	if !common.IsHexAddress(contract) {
		return nil, fmt.Errorf("invalid contract address %q", contract)
	}
	ev, ok := FindEvent(a, OrderFilledEvent)
	if !ok {
		return nil, fmt.Errorf("abi has no %s event", OrderFilledEvent)
	}
	return &FillMatcher{
		address: common.HexToAddress(contract),
		event:   ev,
	}, nil
}

// Address returns the watched contract.
func (m *FillMatcher) Address() common.Address { return m.address }

// Topic returns the OrderFilled event id.
func (m *FillMatcher) Topic() common.Hash { return m.event.ID }

// Match decodes log into a fill. ok is false for logs of other contracts or events.
// A log that matches but cannot be decoded yields a sale.DecodeError.
func (m *FillMatcher) Match(log types.Log) (ev *sale.OrderFillEvent, ok bool, err error) {
	if log.Address != m.address {
		return nil, false, nil
	}
	if len(log.Topics) == 0 || log.Topics[0] != m.event.ID {
		return nil, false, nil
	}

	fail := func(err error) (*sale.OrderFillEvent, bool, error) {
		return nil, true, &sale.DecodeError{TxHash: strings.ToLower(log.TxHash.Hex()), LogIndex: log.Index, Err: err}
	}

	args := map[string]any{}
	indexed, nonIndexed := splitIndexed(m.event.Inputs)
	if err := abi.ParseTopicsIntoMap(args, indexed, log.Topics[1:]); err != nil {
		return fail(fmt.Errorf("parse topics: %w", err))
	}
	if err := nonIndexed.UnpackIntoMap(args, log.Data); err != nil {
		return fail(fmt.Errorf("unpack data: %w", err))
	}

	out := &sale.OrderFillEvent{
		BlockNumber: log.BlockNumber,
		TxHash:      strings.ToLower(log.TxHash.Hex()),
		LogIndex:    log.Index,
	}
	if out.LeftMaker, err = addressArg(args, "leftMaker"); err != nil {
		return fail(err)
	}
	if out.RightMaker, err = addressArg(args, "rightMaker"); err != nil {
		return fail(err)
	}
	if out.NewLeftFill, err = uintArg(args, "newLeftFill"); err != nil {
		return fail(err)
	}
	if out.NewRightFill, err = uintArg(args, "newRightFill"); err != nil {
		return fail(err)
	}
	if out.LeftAsset, err = assetArg(args, "leftAsset"); err != nil {
		return fail(err)
	}
	if out.RightAsset, err = assetArg(args, "rightAsset"); err != nil {
		return fail(err)
	}
	return out, true, nil
}

func addressArg(args map[string]any, name string) (string, error) {
	v, ok := args[name].(common.Address)
	if !ok {
		return "", fmt.Errorf("arg %s: unexpected type %T", name, args[name])
	}
	return strings.ToLower(v.Hex()), nil
}

func uintArg(args map[string]any, name string) (*big.Int, error) {
	v, ok := args[name].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("arg %s: unexpected type %T", name, args[name])
	}
	return v, nil
}

func assetArg(args map[string]any, name string) (a sale.Asset, err error) {
	raw, ok := args[name]
	if !ok {
		return a, fmt.Errorf("arg %s missing", name)
	}
	// ConvertType panics on shape mismatch, which a custom ABI file can cause.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("arg %s: %v", name, r)
		}
	}()
	t := *abi.ConvertType(raw, new(assetType)).(*assetType)
	return sale.Asset{Class: sale.AssetClass(t.AssetClass), Data: t.Data}, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
