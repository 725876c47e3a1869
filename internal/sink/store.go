package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/devblac/salewatch/internal/sale"
)

// Inserter persists a sale once per identity.
type Inserter interface {
	InsertSale(ctx context.Context, s sale.SaleEntity) (bool, error)
}

// Store writes sales into the local database. Saving an already stored sale is a no-op.
type Store struct {
	db  Inserter
	log *slog.Logger
}

// NewStore wraps db as a sink.
func NewStore(db Inserter, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

func (s *Store) Save(ctx context.Context, sl sale.SaleEntity) (sale.SaleEntity, error) {
	inserted, err := s.db.InsertSale(ctx, sl)
	if err != nil {
		return sl, fmt.Errorf("store sale: %w", err)
	}
	if !inserted {
		s.log.Debug("sale already stored", "sale", sl.Key())
	}
	return sl, nil
}

// Log writes one line per sale.
type Log struct {
	log *slog.Logger
}

// NewLog builds a logging sink.
func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Save(_ context.Context, s sale.SaleEntity) (sale.SaleEntity, error) {
	id := "0"
	if s.NFTID != nil {
		id = s.NFTID.String()
	}
	args := []any{
		"provider", s.ProviderName,
		"block", s.BlockNumber,
		"tx", s.TransactionHash,
		"token", s.Token,
		"token_symbol", s.TokenSymbol,
		"price", s.Price.String(),
		"seller", s.Seller,
		"buyer", s.Buyer,
		"sold_at", s.SoldAtString(),
	}
	if s.PriceUSD != nil {
		args = append(args, "price_usd", s.PriceUSD.String())
	}
	l.log.Info(fmt.Sprintf("creating sale for %s with id %s", s.NFTContract, id), args...)
	return s, nil
}
