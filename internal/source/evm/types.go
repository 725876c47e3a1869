package evm

import (
	"github.com/devblac/salewatch/internal/sale"
)

// Batch is one scanned block range of an adapter.
type Batch struct {
	AdapterID string
	From      uint64
	To        uint64
	Events    []sale.OrderFillEvent
	// Undecodable holds matching logs that could not be decoded into fills.
	Undecodable []error
}
