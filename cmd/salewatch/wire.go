package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	rediscache "github.com/devblac/salewatch/internal/cache/redis"
	"github.com/devblac/salewatch/internal/config"
	"github.com/devblac/salewatch/internal/engine"
	"github.com/devblac/salewatch/internal/pricing"
	"github.com/devblac/salewatch/internal/sale"
	"github.com/devblac/salewatch/internal/source/evm"
	"github.com/devblac/salewatch/internal/storage"
	"github.com/shopspring/decimal"
)

// services bundles the token lookups shared by every adapter.
type services struct {
	symbols sale.SymbolService
	prices  sale.PriceService
	close   func() error
}

func buildServices(ctx context.Context, svc config.Services, log *slog.Logger) (*services, error) {
	static := pricing.NewStatic()
	for _, t := range svc.Tokens {
		var usd *decimal.Decimal
		if t.USD != "" {
			d, err := decimal.NewFromString(t.USD)
			if err != nil {
				return nil, fmt.Errorf("token %s usd: %w", t.Address, err)
			}
			usd = &d
		}
		static.AddToken(t.Protocol, t.Address, t.Symbol, t.Decimals, usd)
	}

	symClient, err := pricing.NewSymbolClient(svc.SymbolURL, svc.APIKey, svc.RatePerSec)
	if err != nil {
		return nil, err
	}
	priceClient, err := pricing.NewPriceClient(svc.PriceURL, svc.APIKey, svc.RatePerSec)
	if err != nil {
		return nil, err
	}

	var cache pricing.Cache = pricing.NewMemoryCache()
	closeFn := func() error { return nil }
	if svc.Redis != nil {
		rc, err := rediscache.New(ctx, rediscache.ClientConfig{
			Addr:     svc.Redis.Addr,
			Password: svc.Redis.Password,
			DB:       svc.Redis.DB,
			Prefix:   "salewatch:",
		})
		if err != nil {
			return nil, err
		}
		cache = rc
		closeFn = rc.Close
		log.Info("token cache backed by redis", "addr", svc.Redis.Addr)
	}

	return &services{
		symbols: pricing.Symbols{static, pricing.NewCachedSymbols(symClient, cache, log)},
		prices:  pricing.Prices{static, pricing.NewCachedPrices(priceClient, cache, log)},
		close:   closeFn,
	}, nil
}

// adapters holds the per-adapter pipelines and the RPC clients behind them.
type adapters struct {
	pipelines []engine.Pipeline
	headers   map[string]evm.HeaderReader
	clients   []*evm.RPCClient
}

func (a *adapters) Close() {
	for _, c := range a.clients {
		c.Close()
	}
}

func buildAdapters(cfg *config.Config, store *storage.Store, svc *services, log *slog.Logger, from, to uint64) (*adapters, error) {
	out := &adapters{headers: map[string]evm.HeaderReader{}}
	for _, a := range cfg.Adapters {
		if from > 0 {
			a.StartBlock = strconv.FormatUint(from, 10)
		}
		cli, err := evm.NewRPCClient(a.RPCURL)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("adapter %s: %w", a.ID, err)
		}
		out.clients = append(out.clients, cli)
		out.headers[a.ID] = cli

		parsed, err := evm.LoadABI(a.ABIPath)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("adapter %s: %w", a.ID, err)
		}
		matcher, err := evm.NewFillMatcher(a.Contract, parsed)
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("adapter %s: %w", a.ID, err)
		}
		sc, err := evm.NewScanner(cli, store, a, cfg.Global.Confirmations, matcher)
		if err != nil {
			out.Close()
			return nil, err
		}
		if to > 0 {
			sc.StopAt(to)
		}

		eng, err := sale.NewEngine(sale.Config{
			Name:        a.Name,
			Protocol:    a.Protocol,
			Contract:    a.Contract,
			NativeToken: a.NativeToken,
			Proxies:     a.Proxies,
		}, cli.ChainReader(), svc.symbols, svc.prices, sale.WithLogger(log.With("adapter", a.ID)))
		if err != nil {
			out.Close()
			return nil, fmt.Errorf("adapter %s: %w", a.ID, err)
		}

		out.pipelines = append(out.pipelines, engine.Pipeline{Source: sc, Engine: eng, ChunkSize: a.ChunkSize})
	}
	return out, nil
}
