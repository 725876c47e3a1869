package sale

import (
	"context"
	"fmt"
)

// Chain is the narrow set of chain reads the engine performs.
type Chain interface {
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	TransactionReceipt(ctx context.Context, txHash string) (*Receipt, error)
}

// ProxyResolver substitutes a known marketplace proxy recorded as buyer with
// the transaction's originating sender. Single hop only.
type ProxyResolver struct {
	chain   Chain
	proxies map[string]struct{}
}

// NewProxyResolver builds a resolver for the given proxy addresses.
func NewProxyResolver(chain Chain, proxies []string) *ProxyResolver {
	set := make(map[string]struct{}, len(proxies))
	for _, p := range proxies {
		if p = lower(p); p != "" {
			set[p] = struct{}{}
		}
	}
	return &ProxyResolver{chain: chain, proxies: set}
}

// IsProxy reports whether addr is a configured proxy.
func (r *ProxyResolver) IsProxy(addr string) bool {
	_, ok := r.proxies[lower(addr)]
	return ok
}

// ResolveBuyer returns the real buyer for a payment-side maker.
func (r *ProxyResolver) ResolveBuyer(ctx context.Context, maker, txHash string) (string, error) {
	maker = lower(maker)
	if !r.IsProxy(maker) {
		return maker, nil
	}
	rcpt, err := r.chain.TransactionReceipt(ctx, txHash)
	if err != nil {
		return "", upstream("transaction receipt "+txHash, err)
	}
	if rcpt == nil || rcpt.From == "" {
		return "", upstream("transaction receipt "+txHash, fmt.Errorf("receipt has no sender"))
	}
	return lower(rcpt.From), nil
}
