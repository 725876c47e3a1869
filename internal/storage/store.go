package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/devblac/salewatch/internal/sale"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for scan cursors and sales.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS cursors (
  adapter_id  TEXT PRIMARY KEY,
  height      INTEGER NOT NULL,
  updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sales (
  tx_hash           TEXT NOT NULL,
  nft_contract      TEXT NOT NULL,
  nft_id            TEXT NOT NULL,
  provider_name     TEXT NOT NULL,
  provider_contract TEXT NOT NULL,
  protocol          TEXT NOT NULL,
  token             TEXT NOT NULL,
  token_symbol      TEXT NOT NULL,
  amount            INTEGER NOT NULL,
  price             TEXT NOT NULL,
  price_usd         TEXT,
  seller            TEXT NOT NULL,
  buyer             TEXT NOT NULL,
  sold_at           TEXT NOT NULL,
  block_number      INTEGER NOT NULL,
  created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  PRIMARY KEY(tx_hash, nft_contract, nft_id)
);

CREATE INDEX IF NOT EXISTS sales_provider_block ON sales(provider_name, block_number);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertCursor records the last fully scanned height of an adapter.
func (s *Store) UpsertCursor(ctx context.Context, adapterID string, height uint64) error {
	if adapterID == "" {
		return errors.New("adapterID required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO cursors (adapter_id, height, updated_at)
VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(adapter_id) DO UPDATE SET
  height=excluded.height,
  updated_at=CURRENT_TIMESTAMP;
`, adapterID, height)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}

// GetCursor retrieves the cursor for an adapter.
func (s *Store) GetCursor(ctx context.Context, adapterID string) (height uint64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `
SELECT height FROM cursors WHERE adapter_id = ?;
`, adapterID)
	switch err = row.Scan(&height); err {
	case nil:
		return height, true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf("get cursor: %w", err)
	}
}

// Cursor is a stored scan position.
type Cursor struct {
	AdapterID string
	Height    uint64
	UpdatedAt time.Time
}

// ListCursors returns every adapter cursor ordered by adapter id.
func (s *Store) ListCursors(ctx context.Context) ([]Cursor, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT adapter_id, height, updated_at FROM cursors ORDER BY adapter_id;
`)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.AdapterID, &c.Height, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// InsertSale stores a sale once; a sale with the same identity is left untouched
// and inserted is false.
func (s *Store) InsertSale(ctx context.Context, sl sale.SaleEntity) (inserted bool, err error) {
	if sl.TransactionHash == "" || sl.NFTContract == "" || sl.NFTID == nil {
		return false, errors.New("sale tx hash, nft contract and nft id are required")
	}
	var usd any
	if sl.PriceUSD != nil {
		usd = sl.PriceUSD.String()
	}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO sales (tx_hash, nft_contract, nft_id, provider_name, provider_contract, protocol,
  token, token_symbol, amount, price, price_usd, seller, buyer, sold_at, block_number)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(tx_hash, nft_contract, nft_id) DO NOTHING;
`, sl.TransactionHash, sl.NFTContract, sl.NFTID.String(), sl.ProviderName, sl.ProviderContract, sl.Protocol,
		sl.Token, sl.TokenSymbol, sl.Amount, sl.Price.String(), usd, sl.Seller, sl.Buyer, sl.SoldAtString(), sl.BlockNumber)
	if err != nil {
		return false, fmt.Errorf("insert sale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert sale: %w", err)
	}
	return n > 0, nil
}

// SaleFilter narrows ListSales. Zero values match everything.
type SaleFilter struct {
	ProviderName string
	NFTContract  string
	FromBlock    uint64
	ToBlock      uint64
	Limit        int
}

// ListSales returns sales in ascending block order.
func (s *Store) ListSales(ctx context.Context, f SaleFilter) ([]sale.SaleEntity, error) {
	var (
		where []string
		args  []any
	)
	if f.ProviderName != "" {
		where = append(where, "provider_name = ?")
		args = append(args, f.ProviderName)
	}
	if f.NFTContract != "" {
		where = append(where, "nft_contract = ?")
		args = append(args, strings.ToLower(f.NFTContract))
	}
	if f.FromBlock > 0 {
		where = append(where, "block_number >= ?")
		args = append(args, f.FromBlock)
	}
	if f.ToBlock > 0 {
		where = append(where, "block_number <= ?")
		args = append(args, f.ToBlock)
	}
	q := `SELECT tx_hash, nft_contract, nft_id, provider_name, provider_contract, protocol,
  token, token_symbol, amount, price, price_usd, seller, buyer, sold_at, block_number FROM sales`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY block_number, tx_hash, nft_contract, nft_id"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sales: %w", err)
	}
	defer rows.Close()

	var out []sale.SaleEntity
	for rows.Next() {
		sl, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sl)
	}
	return out, rows.Err()
}

// CountSales returns the number of stored sales.
func (s *Store) CountSales(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sales;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sales: %w", err)
	}
	return n, nil
}

func scanSale(rows *sql.Rows) (sale.SaleEntity, error) {
	var (
		sl                 sale.SaleEntity
		nftID, price, sold string
		usd                sql.NullString
	)
	err := rows.Scan(&sl.TransactionHash, &sl.NFTContract, &nftID, &sl.ProviderName, &sl.ProviderContract, &sl.Protocol,
		&sl.Token, &sl.TokenSymbol, &sl.Amount, &price, &usd, &sl.Seller, &sl.Buyer, &sold, &sl.BlockNumber)
	if err != nil {
		return sl, fmt.Errorf("scan sale: %w", err)
	}
	id, ok := new(big.Int).SetString(nftID, 10)
	if !ok {
		return sl, fmt.Errorf("scan sale: bad nft id %q", nftID)
	}
	sl.NFTID = id
	if sl.Price, err = decimal.NewFromString(price); err != nil {
		return sl, fmt.Errorf("scan sale price: %w", err)
	}
	if usd.Valid {
		v, err := decimal.NewFromString(usd.String)
		if err != nil {
			return sl, fmt.Errorf("scan sale price_usd: %w", err)
		}
		sl.PriceUSD = &v
	}
	if sl.SoldAt, err = time.ParseInLocation(sale.SoldAtLayout, sold, time.UTC); err != nil {
		return sl, fmt.Errorf("scan sale sold_at: %w", err)
	}
	return sl, nil
}
