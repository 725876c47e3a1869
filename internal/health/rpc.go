package health

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/devblac/salewatch/internal/source/evm"
)

// RPCChecker combines the RPC health checks of every adapter.
type RPCChecker struct {
	clients map[string]evm.HeaderReader
}

// NewRPCChecker creates a checker for the adapters' RPC clients.
func NewRPCChecker(clients map[string]evm.HeaderReader) *RPCChecker {
	return &RPCChecker{clients: clients}
}

// Ping checks all configured RPC endpoints and reports the last failure.
func (c *RPCChecker) Ping(ctx context.Context) error {
	ids := make([]string, 0, len(c.clients))
	for id := range c.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var lastErr error
	for _, id := range ids {
		if _, err := c.clients[id].HeaderByNumber(ctx, big.NewInt(0)); err != nil {
			lastErr = fmt.Errorf("adapter %s: %w", id, err)
		}
	}
	return lastErr
}
