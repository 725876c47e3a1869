package evm

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// OrderFilledEvent is the marketplace event every adapter listens for.
const OrderFilledEvent = "OrderFilled"

//go:embed abi/orderfilled.json
var defaultABI []byte

// LoadABI parses the ABI JSON at path, or the built-in OrderFilled ABI when path is empty.
func LoadABI(path string) (*abi.ABI, error) {
	data := defaultABI
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read abi %s: %w", path, err)
		}
		data = raw
	}
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi %q: %w", path, err)
	}
	return &a, nil
}

// FindEvent looks up an event by name in a parsed ABI.
func FindEvent(a *abi.ABI, eventName string) (*abi.Event, bool) {
	if a == nil {
		return nil, false
	}
	ev, ok := a.Events[eventName]
	if !ok {
		return nil, false
	}
	return &ev, true
}
