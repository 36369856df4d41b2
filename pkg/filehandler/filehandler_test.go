package filehandler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/models"
	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

func testItem(code string, quantity int, price string) models.Item {
	now := time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

	return models.Item{
		StockCode:   code,
		StockName:   "Garmin Navigation system",
		StockType:   models.DefaultStockType,
		Description: models.DefaultDescription,
		Brand:       "Garmin",
		Quantity:    quantity,
		Price:       decimal.RequireFromString(price),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func openHandler(t *testing.T, name string) *StockFileHandler {
	t.Helper()

	dir := t.TempDir()

	h, err := OpenStockFileHandler(context.Background(), filepath.Join(dir, name), filepath.Join(dir, "backups"), 3, zap.NewNop())
	require.NoError(t, err)

	return h
}

func TestStockFileHandler_LoadCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "stock.json")

	h, err := OpenStockFileHandler(context.Background(), path, "", 0, zap.NewNop())
	require.NoError(t, err)

	_, err = os.Stat(path)
	require.NoError(t, err)

	items, err := h.ListItems(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestStockFileHandler_PersistsAcrossReload(t *testing.T) {
	for _, name := range []string{"stock.json", "stock.yaml", "stock.msgpack"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			h := openHandler(t, name)

			require.NoError(t, h.CreateItem(ctx, testItem("NAV-2", 20, "149.50")))
			require.NoError(t, h.CreateItem(ctx, testItem("NAV-1", 8, "99.99")))

			sold := testItem("NAV-1", 6, "99.99")
			sale := models.Sale{
				ID:            "5f1c7a52-1d4f-4d55-9f5b-0c7c2a0a3e11",
				TransactionID: "abcdefghij",
				StockCode:     "NAV-1",
				Brand:         "Garmin",
				Quantity:      2,
				UnitPrice:     decimal.RequireFromString("99.99"),
				Revenue:       decimal.RequireFromString("199.98"),
				SoldAt:        time.Date(2026, 10, 2, 12, 0, 0, 0, time.UTC),
			}
			require.NoError(t, h.RecordSale(ctx, sold, sale))

			reloaded, err := OpenStockFileHandler(ctx, h.Path(), "", 0, zap.NewNop())
			require.NoError(t, err)

			items, err := reloaded.ListItems(ctx)
			require.NoError(t, err)
			require.Len(t, items, 2)
			assert.Equal(t, "NAV-1", items[0].StockCode)
			assert.Equal(t, 6, items[0].Quantity)
			assert.True(t, items[0].Price.Equal(decimal.RequireFromString("99.99")))
			assert.True(t, items[0].CreatedAt.Equal(sold.CreatedAt))

			sales, err := reloaded.ListSales(ctx)
			require.NoError(t, err)
			require.Len(t, sales, 1)
			assert.Equal(t, "abcdefghij", sales[0].TransactionID)
			assert.True(t, sales[0].Revenue.Equal(decimal.RequireFromString("199.98")))
			assert.True(t, sales[0].SoldAt.Equal(sale.SoldAt))
		})
	}
}

func TestStockFileHandler_CRUDErrors(t *testing.T) {
	ctx := context.Background()
	h := openHandler(t, "stock.json")

	require.NoError(t, h.CreateItem(ctx, testItem("NAV-1", 5, "10")))

	err := h.CreateItem(ctx, testItem("NAV-1", 5, "10"))
	assert.True(t, errors.Is(err, stockserrors.ErrStockExists))

	_, err = h.GetItem(ctx, "MISSING")
	assert.True(t, errors.Is(err, stockserrors.ErrStockNotFound))

	err = h.UpdateItem(ctx, testItem("MISSING", 1, "1"))
	assert.True(t, errors.Is(err, stockserrors.ErrStockNotFound))

	err = h.RecordSale(ctx, testItem("MISSING", 1, "1"), models.Sale{})
	assert.True(t, errors.Is(err, stockserrors.ErrStockNotFound))

	require.NoError(t, h.DeleteItem(ctx, "NAV-1"))
	err = h.DeleteItem(ctx, "NAV-1")
	assert.True(t, errors.Is(err, stockserrors.ErrStockNotFound))
}

func TestStockFileHandler_FailedWriteKeepsState(t *testing.T) {
	ctx := context.Background()
	h := openHandler(t, "stock.json")

	require.NoError(t, h.CreateItem(ctx, testItem("NAV-1", 5, "10")))

	// A non-empty directory in place of the file makes the rename fail.
	require.NoError(t, os.Remove(h.Path()))
	require.NoError(t, os.MkdirAll(filepath.Join(h.Path(), "blocker"), 0o755))

	err := h.CreateItem(ctx, testItem("NAV-2", 5, "10"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, stockserrors.ErrStockStorage))

	items, err := h.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "NAV-1", items[0].StockCode)
}

func TestStockFileHandler_CorruptFile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("undecodable", func(t *testing.T) {
		path := filepath.Join(dir, "broken.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"items": [`), 0o644))

		_, err := OpenStockFileHandler(ctx, path, "", 0, zap.NewNop())
		assert.True(t, errors.Is(err, stockserrors.ErrStockFileCorrupt))
	})

	t.Run("future version", func(t *testing.T) {
		path := filepath.Join(dir, "future.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"version": 2, "items": [], "sales": []}`), 0o644))

		_, err := OpenStockFileHandler(ctx, path, "", 0, zap.NewNop())
		assert.True(t, errors.Is(err, stockserrors.ErrStockFileCorrupt))
	})

	t.Run("duplicate codes", func(t *testing.T) {
		path := filepath.Join(dir, "dup.json")
		body := `{"version": 1, "items": [{"stock_code": "A", "price": 1}, {"stock_code": "A", "price": 2}], "sales": []}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		_, err := OpenStockFileHandler(ctx, path, "", 0, zap.NewNop())
		assert.True(t, errors.Is(err, stockserrors.ErrStockFileCorrupt))
	})

	t.Run("empty file is an empty inventory", func(t *testing.T) {
		path := filepath.Join(dir, "empty.json")
		require.NoError(t, os.WriteFile(path, nil, 0o644))

		h, err := OpenStockFileHandler(ctx, path, "", 0, zap.NewNop())
		require.NoError(t, err)

		items, err := h.ListItems(ctx)
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestStockFileHandler_BackupRotation(t *testing.T) {
	ctx := context.Background()
	h := openHandler(t, "stock.json")
	require.NoError(t, h.CreateItem(ctx, testItem("NAV-1", 5, "10")))

	clock := time.Date(2026, 10, 18, 8, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return clock }

	var paths []string

	for i := 0; i < 5; i++ {
		clock = clock.Add(time.Minute)

		path, err := h.Backup(ctx)
		require.NoError(t, err)

		paths = append(paths, path)
	}

	entries, err := os.ReadDir(filepath.Join(filepath.Dir(h.Path()), "backups"))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, filepath.Base(paths[2]), entries[0].Name())
	assert.Equal(t, filepath.Base(paths[4]), entries[2].Name())

	restored, err := OpenStockFileHandler(ctx, paths[4], "", 0, zap.NewNop())
	require.NoError(t, err)

	item, err := restored.GetItem(ctx, "NAV-1")
	require.NoError(t, err)
	assert.Equal(t, 5, item.Quantity)
}

func TestStockFileHandler_BackupWithoutDirectory(t *testing.T) {
	h, err := OpenStockFileHandler(context.Background(), filepath.Join(t.TempDir(), "stock.json"), "", 0, zap.NewNop())
	require.NoError(t, err)

	_, err = h.Backup(context.Background())
	assert.True(t, errors.Is(err, stockserrors.ErrStockStorage))
}

func TestStockFileHandler_CanceledContext(t *testing.T) {
	h := openHandler(t, "stock.json")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := h.CreateItem(ctx, testItem("NAV-1", 1, "1"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCodecForPath(t *testing.T) {
	assert.Equal(t, "json", CodecForPath("stock.json").Name())
	assert.Equal(t, "json", CodecForPath("stock.db").Name())
	assert.Equal(t, "yaml", CodecForPath("stock.YML").Name())
	assert.Equal(t, "msgpack", CodecForPath("stock.mpk").Name())
}
