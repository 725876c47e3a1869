package pricing

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/devblac/salewatch/internal/sale"
	"github.com/shopspring/decimal"
)

const (
	metadataTTL = 24 * time.Hour
	// Historical quotes do not change once published.
	quoteTTL = 7 * 24 * time.Hour
)

// Cache is a byte-oriented key/value store with expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

func metadataKey(token, protocol string) string {
	return "symbol:" + protocol + ":" + strings.ToLower(token)
}

func quoteKey(token, protocol string, ts uint64) string {
	return "price:" + protocol + ":" + strings.ToLower(token) + ":" + strconv.FormatUint(ts, 10)
}

// CachedSymbols serves metadata from cache before asking the wrapped service.
// Cache failures are logged and bypassed.
type CachedSymbols struct {
	next  sale.SymbolService
	cache Cache
	log   *slog.Logger
}

// NewCachedSymbols wraps next with cache.
func NewCachedSymbols(next sale.SymbolService, cache Cache, log *slog.Logger) *CachedSymbols {
	return &CachedSymbols{next: next, cache: cache, log: log}
}

type cachedMetadata struct {
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
}

func (c *CachedSymbols) Metadata(ctx context.Context, token, protocol string) (*sale.TokenMetadata, error) {
	key := metadataKey(token, protocol)
	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("symbol cache read failed", "entry", key, "error", err)
	} else if ok {
		var m cachedMetadata
		if err := json.Unmarshal(raw, &m); err == nil {
			return &sale.TokenMetadata{Symbol: m.Symbol, Decimals: m.Decimals}, nil
		}
	}

	meta, err := c.next.Metadata(ctx, token, protocol)
	if err != nil || meta == nil {
		return meta, err
	}
	raw, _ := json.Marshal(cachedMetadata{Symbol: meta.Symbol, Decimals: meta.Decimals})
	if err := c.cache.Set(ctx, key, raw, metadataTTL); err != nil {
		c.log.Warn("symbol cache write failed", "entry", key, "error", err)
	}
	return meta, nil
}

// CachedPrices serves quotes from cache before asking the wrapped service.
type CachedPrices struct {
	next  sale.PriceService
	cache Cache
	log   *slog.Logger
}

// NewCachedPrices wraps next with cache.
func NewCachedPrices(next sale.PriceService, cache Cache, log *slog.Logger) *CachedPrices {
	return &CachedPrices{next: next, cache: cache, log: log}
}

func (c *CachedPrices) Quote(ctx context.Context, token, protocol string, timestamp uint64) (*sale.PriceQuote, error) {
	key := quoteKey(token, protocol, timestamp)
	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		c.log.Warn("price cache read failed", "entry", key, "error", err)
	} else if ok {
		if p, err := decimal.NewFromString(string(raw)); err == nil {
			return &sale.PriceQuote{Price: p}, nil
		}
	}

	q, err := c.next.Quote(ctx, token, protocol, timestamp)
	if err != nil || q == nil {
		return q, err
	}
	if err := c.cache.Set(ctx, key, []byte(q.Price.String()), quoteTTL); err != nil {
		c.log.Warn("price cache write failed", "entry", key, "error", err)
	}
	return q, nil
}

// MemoryCache is an in-process Cache used when no Redis is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
	nowFunc func() time.Time
}

type memEntry struct {
	val     []byte
	expires time.Time
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: map[string]memEntry{}, nowFunc: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.After(m.nowFunc()) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.val, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memEntry{val: append([]byte(nil), val...), expires: m.nowFunc().Add(ttl)}
	return nil
}
