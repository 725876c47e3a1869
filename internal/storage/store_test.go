package storage

import (
	"context"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/devblac/salewatch/internal/sale"
	"github.com/shopspring/decimal"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	store, err := Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSale(block uint64, id int64) sale.SaleEntity {
	usd := decimal.RequireFromString("2.5")
	return sale.SaleEntity{
		ProviderName:     "ghostmarket-ethereum",
		ProviderContract: "0xfb2f452639cbb0850b46b20d24de7b0a9ccb665f",
		Protocol:         "ethereum",
		NFTContract:      "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb",
		NFTID:            big.NewInt(id),
		Token:            "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		TokenSymbol:      "USDC",
		Amount:           1,
		Price:            decimal.RequireFromString("1.000001"),
		PriceUSD:         &usd,
		Seller:           "0x1111111111111111111111111111111111111111",
		Buyer:            "0x2222222222222222222222222222222222222222",
		SoldAt:           time.Date(2023, 1, 29, 13, 46, 40, 0, time.UTC),
		BlockNumber:      block,
		TransactionHash:  "0xabc",
	}
}

func TestCursorUpsertAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := store.GetCursor(ctx, "eth"); err != nil || ok {
		t.Fatalf("expected no cursor, ok=%v err=%v", ok, err)
	}
	if err := store.UpsertCursor(ctx, "eth", 10); err != nil {
		t.Fatalf("upsert cursor: %v", err)
	}
	if err := store.UpsertCursor(ctx, "eth", 20); err != nil {
		t.Fatalf("upsert cursor update: %v", err)
	}
	h, ok, err := store.GetCursor(ctx, "eth")
	if err != nil || !ok || h != 20 {
		t.Fatalf("cursor not updated: %d err=%v ok=%v", h, err, ok)
	}

	if err := store.UpsertCursor(ctx, "matic", 5); err != nil {
		t.Fatalf("upsert second cursor: %v", err)
	}
	cursors, err := store.ListCursors(ctx)
	if err != nil {
		t.Fatalf("list cursors: %v", err)
	}
	if len(cursors) != 2 || cursors[0].AdapterID != "eth" || cursors[1].Height != 5 {
		t.Fatalf("unexpected cursors %+v", cursors)
	}
}

func TestInsertSaleOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	s := testSale(100, 42)
	inserted, err := store.InsertSale(ctx, s)
	if err != nil || !inserted {
		t.Fatalf("insert sale: inserted=%v err=%v", inserted, err)
	}
	inserted, err = store.InsertSale(ctx, s)
	if err != nil {
		t.Fatalf("reinsert sale: %v", err)
	}
	if inserted {
		t.Fatalf("expected duplicate sale to be ignored")
	}
	n, err := store.CountSales(ctx)
	if err != nil || n != 1 {
		t.Fatalf("count = %d err=%v", n, err)
	}
}

func TestListSalesRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	huge, _ := new(big.Int).SetString("115792089237316195423570985008687907853269984665640564039457584007913129639935", 10)
	withHugeID := testSale(200, 0)
	withHugeID.NFTID = huge
	withHugeID.PriceUSD = nil

	for _, s := range []sale.SaleEntity{withHugeID, testSale(100, 1)} {
		if _, err := store.InsertSale(ctx, s); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := store.ListSales(ctx, SaleFilter{ProviderName: "ghostmarket-ethereum"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sales, got %d", len(got))
	}
	if got[0].BlockNumber != 100 || got[1].NFTID.Cmp(huge) != 0 {
		t.Fatalf("unexpected order or id: %+v", got)
	}
	if !got[0].Price.Equal(decimal.RequireFromString("1.000001")) || got[0].PriceUSD == nil {
		t.Fatalf("price not preserved: %s %v", got[0].Price, got[0].PriceUSD)
	}
	if got[1].PriceUSD != nil {
		t.Fatalf("expected null price_usd")
	}
	if got[0].SoldAtString() != "2023-01-29 13:46:40" {
		t.Fatalf("sold_at = %s", got[0].SoldAtString())
	}

	bounded, err := store.ListSales(ctx, SaleFilter{FromBlock: 150})
	if err != nil || len(bounded) != 1 {
		t.Fatalf("block filter: %d err=%v", len(bounded), err)
	}
}

func TestPing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}

	store.Close()
	if err := store.Ping(ctx); err == nil {
		t.Fatalf("expected ping to fail after close")
	}
}
