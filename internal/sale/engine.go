package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// SymbolService resolves token metadata. It returns nil, nil for unknown tokens.
type SymbolService interface {
	Metadata(ctx context.Context, token, protocol string) (*TokenMetadata, error)
}

// PriceService resolves the USD price of a token at a unix timestamp. It returns nil, nil when no quote exists.
type PriceService interface {
	Quote(ctx context.Context, token, protocol string, timestamp uint64) (*PriceQuote, error)
}

// Sink persists one sale at a time.
type Sink interface {
	Save(ctx context.Context, s SaleEntity) (SaleEntity, error)
}

// Config is the static, per-adapter description of a marketplace deployment.
type Config struct {
	Name        string
	Protocol    string
	Contract    string
	NativeToken string
	Proxies     []string
}

// Engine turns OrderFillEvents into SaleEntities. It holds no per-event state
// and is safe for concurrent use.
type Engine struct {
	cfg     Config
	chain   Chain
	symbols SymbolService
	prices  PriceService
	decoder TupleDecoder
	proxies *ProxyResolver
	log     *slog.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDecoder replaces the default ABI tuple decoder.
func WithDecoder(d TupleDecoder) Option {
	return func(e *Engine) { e.decoder = d }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine builds an engine for one adapter configuration.
func NewEngine(cfg Config, chain Chain, symbols SymbolService, prices PriceService, opts ...Option) (*Engine, error) {
	if cfg.Name == "" || cfg.Protocol == "" {
		return nil, errors.New("engine: name and protocol are required")
	}
	if chain == nil || symbols == nil || prices == nil {
		return nil, errors.New("engine: chain, symbol and price services are required")
	}
	e := &Engine{
		cfg:     cfg,
		chain:   chain,
		symbols: symbols,
		prices:  prices,
		decoder: ABIDecoder{},
		proxies: NewProxyResolver(chain, cfg.Proxies),
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(e)
	}
	return e, nil
}

// Config returns the engine's adapter configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Process normalizes a single fill. Decode failures wrap ErrDecode and lookup
// failures wrap ErrUpstream; unknown token metadata only degrades the output.
func (e *Engine) Process(ctx context.Context, ev OrderFillEvent) (SaleEntity, error) {
	sides, err := ResolveAssets(e.decoder, ev, e.cfg.NativeToken)
	if err != nil {
		return SaleEntity{}, err
	}

	ts, err := e.chain.BlockTimestamp(ctx, ev.BlockNumber)
	if err != nil {
		return SaleEntity{}, upstream(fmt.Sprintf("block %d", ev.BlockNumber), err)
	}

	meta, err := e.symbols.Metadata(ctx, sides.PaymentToken, e.cfg.Protocol)
	if err != nil {
		return SaleEntity{}, upstream("symbol "+sides.PaymentToken, err)
	}

	var quote *PriceQuote
	if meta != nil && meta.Decimals != 0 {
		quote, err = e.prices.Quote(ctx, sides.PaymentToken, e.cfg.Protocol, ts)
		if err != nil {
			return SaleEntity{}, upstream("price "+sides.PaymentToken, err)
		}
	}

	buyer, err := e.proxies.ResolveBuyer(ctx, sides.Buyer, ev.TxHash)
	if err != nil {
		return SaleEntity{}, err
	}

	symbol := ""
	if meta == nil {
		e.log.Debug("token metadata unavailable", "token", sides.PaymentToken, "protocol", e.cfg.Protocol)
	} else {
		symbol = meta.Symbol
	}

	return BuildSale(SaleInput{
		ProviderName:     e.cfg.Name,
		ProviderContract: e.cfg.Contract,
		Protocol:         e.cfg.Protocol,
		Sides:            sides,
		Buyer:            buyer,
		TokenSymbol:      symbol,
		Prices:           NormalizePrice(sides.PaymentFill, meta, quote),
		BlockNumber:      ev.BlockNumber,
		BlockTime:        ts,
		TxHash:           ev.TxHash,
	}), nil
}
