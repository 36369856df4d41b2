package filehandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/models"
	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

const (
	DocumentVersion   = 1
	DefaultMaxBackups = 10
)

// Document is the on-disk layout of the stock file.
type Document struct {
	Version   int           `json:"version" yaml:"version"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"updated_at"`
	Items     []models.Item `json:"items" yaml:"items"`
	Sales     []models.Sale `json:"sales" yaml:"sales"`
}

// StockFileHandler keeps the inventory and the sales ledger in a single stock
// file. Every mutation is written to disk before it becomes visible, so a
// failed write leaves both the file and the in-memory state untouched.
type StockFileHandler struct {
	path       string
	codec      Codec
	backupDir  string
	maxBackups int
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.RWMutex
	loaded bool
	items  map[string]models.Item
	sales  []models.Sale
}

func NewStockFileHandler(path, backupDir string, maxBackups int, logger *zap.Logger) *StockFileHandler {
	if maxBackups <= 0 {
		maxBackups = DefaultMaxBackups
	}

	return &StockFileHandler{
		path:       path,
		codec:      CodecForPath(path),
		backupDir:  backupDir,
		maxBackups: maxBackups,
		logger:     logger.Named("stockfile"),
		now:        time.Now,
		items:      map[string]models.Item{},
	}
}

// OpenStockFileHandler creates a handler and loads the stock file.
func OpenStockFileHandler(ctx context.Context, path, backupDir string, maxBackups int, logger *zap.Logger) (*StockFileHandler, error) {
	h := NewStockFileHandler(path, backupDir, maxBackups, logger)

	if err := h.Load(ctx); err != nil {
		return nil, err
	}

	return h, nil
}

func (h *StockFileHandler) Path() string {
	return h.path
}

// Load reads the stock file. A missing file is created empty.
func (h *StockFileHandler) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	data, err := os.ReadFile(h.path)
	if errors.Is(err, fs.ErrNotExist) {
		h.logger.Info("Stock file not found, creating an empty one.", zap.String("path", h.path))

		items, sales := map[string]models.Item{}, []models.Sale{}
		if err := h.write(items, sales); err != nil {
			return stockserrors.Wrap("load", stockserrors.ErrStockStorage, err)
		}

		h.items, h.sales, h.loaded = items, sales, true

		return nil
	}

	if err != nil {
		h.logger.Error("Failed to read stock file.", zap.String("path", h.path), zap.Error(err))

		return stockserrors.Wrap("load", stockserrors.ErrStockStorage, err)
	}

	items, sales, err := h.decode(data)
	if err != nil {
		h.logger.Error("Stock file is corrupt.", zap.String("path", h.path), zap.Error(err))

		return err
	}

	h.items, h.sales, h.loaded = items, sales, true

	h.logger.Info("Stock file loaded.",
		zap.String("path", h.path),
		zap.String("format", h.codec.Name()),
		zap.Int("items", len(items)),
		zap.Int("sales", len(sales)))

	return nil
}

func (h *StockFileHandler) decode(data []byte) (map[string]models.Item, []models.Sale, error) {
	items := map[string]models.Item{}
	sales := []models.Sale{}

	if len(bytes.TrimSpace(data)) == 0 {
		return items, sales, nil
	}

	var doc Document
	if err := h.codec.Unmarshal(data, &doc); err != nil {
		return nil, nil, stockserrors.Wrap("load", stockserrors.ErrStockFileCorrupt, err)
	}

	if doc.Version > DocumentVersion {
		return nil, nil, stockserrors.Newf("load", stockserrors.ErrStockFileCorrupt,
			"stock file version %d is newer than supported version %d", doc.Version, DocumentVersion)
	}

	for _, item := range doc.Items {
		if _, dup := items[item.StockCode]; dup {
			return nil, nil, stockserrors.New("load", stockserrors.ErrStockFileCorrupt, "duplicate stock code in stock file").WithCode(item.StockCode)
		}

		item.PriceWithVAT = decimal.Decimal{}
		item.CreatedAt = item.CreatedAt.UTC()
		item.UpdatedAt = item.UpdatedAt.UTC()
		items[item.StockCode] = item
	}

	for _, sale := range doc.Sales {
		sale.SoldAt = sale.SoldAt.UTC()
		sales = append(sales, sale)
	}

	return items, sales, nil
}

func (h *StockFileHandler) encode(items map[string]models.Item, sales []models.Sale) ([]byte, error) {
	doc := Document{
		Version:   DocumentVersion,
		UpdatedAt: h.now().UTC(),
		Items:     sortedItems(items),
		Sales:     sales,
	}

	for i := range doc.Items {
		doc.Items[i].PriceWithVAT = decimal.Decimal{}
	}

	if doc.Sales == nil {
		doc.Sales = []models.Sale{}
	}

	return h.codec.Marshal(doc)
}

func (h *StockFileHandler) write(items map[string]models.Item, sales []models.Sale) error {
	data, err := h.encode(items, sales)
	if err != nil {
		return fmt.Errorf("error encoding stock file: %w", err)
	}

	return writeFileAtomic(h.path, data)
}

// Save rewrites the stock file from the in-memory state.
func (h *StockFileHandler) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := h.write(h.items, h.sales); err != nil {
		h.logger.Error("Failed to save stock file.", zap.String("path", h.path), zap.Error(err))

		return stockserrors.Wrap("save", stockserrors.ErrStockStorage, err)
	}

	return nil
}

// mutate applies fn to copies of the state, persists the result and only then
// swaps it in.
func (h *StockFileHandler) mutate(ctx context.Context, op string, fn func(items map[string]models.Item, sales *[]models.Sale) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.loaded {
		return stockserrors.New(op, stockserrors.ErrStockStorage, "stock file not loaded")
	}

	items := make(map[string]models.Item, len(h.items)+1)
	for code, item := range h.items {
		items[code] = item
	}

	sales := make([]models.Sale, len(h.sales), len(h.sales)+1)
	copy(sales, h.sales)

	if err := fn(items, &sales); err != nil {
		return err
	}

	if err := h.write(items, sales); err != nil {
		h.logger.Error("Failed to write stock file.", zap.String("op", op), zap.String("path", h.path), zap.Error(err))

		return stockserrors.Wrap(op, stockserrors.ErrStockStorage, err)
	}

	h.items, h.sales = items, sales

	return nil
}

func (h *StockFileHandler) ListItems(ctx context.Context) ([]models.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	return sortedItems(h.items), nil
}

func (h *StockFileHandler) GetItem(ctx context.Context, code string) (models.Item, error) {
	if err := ctx.Err(); err != nil {
		return models.Item{}, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	item, ok := h.items[code]
	if !ok {
		return models.Item{}, stockserrors.NotFound("get", code)
	}

	return item, nil
}

func (h *StockFileHandler) CreateItem(ctx context.Context, item models.Item) error {
	return h.mutate(ctx, "create", func(items map[string]models.Item, _ *[]models.Sale) error {
		if _, exists := items[item.StockCode]; exists {
			return stockserrors.Newf("create", stockserrors.ErrStockExists, "Item with stock code %s already exists", item.StockCode).WithCode(item.StockCode)
		}

		items[item.StockCode] = item

		return nil
	})
}

func (h *StockFileHandler) UpdateItem(ctx context.Context, item models.Item) error {
	return h.mutate(ctx, "update", func(items map[string]models.Item, _ *[]models.Sale) error {
		if _, exists := items[item.StockCode]; !exists {
			return stockserrors.NotFound("update", item.StockCode)
		}

		items[item.StockCode] = item

		return nil
	})
}

func (h *StockFileHandler) DeleteItem(ctx context.Context, code string) error {
	return h.mutate(ctx, "delete", func(items map[string]models.Item, _ *[]models.Sale) error {
		if _, exists := items[code]; !exists {
			return stockserrors.NotFound("delete", code)
		}

		delete(items, code)

		return nil
	})
}

// RecordSale stores the updated item and appends the sale in one write.
func (h *StockFileHandler) RecordSale(ctx context.Context, item models.Item, sale models.Sale) error {
	return h.mutate(ctx, "sell", func(items map[string]models.Item, sales *[]models.Sale) error {
		if _, exists := items[item.StockCode]; !exists {
			return stockserrors.NotFound("sell", item.StockCode)
		}

		items[item.StockCode] = item
		*sales = append(*sales, sale)

		return nil
	})
}

func (h *StockFileHandler) ListSales(ctx context.Context) ([]models.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sales := make([]models.Sale, len(h.sales))
	copy(sales, h.sales)

	sort.SliceStable(sales, func(i, j int) bool {
		return sales[i].SoldAt.Before(sales[j].SoldAt)
	})

	return sales, nil
}

// Backup writes a timestamped copy of the stock file into the backup
// directory and prunes the oldest copies beyond maxBackups.
func (h *StockFileHandler) Backup(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if h.backupDir == "" {
		return "", stockserrors.New("backup", stockserrors.ErrStockStorage, "backup directory not configured")
	}

	h.mu.RLock()
	data, err := h.encode(h.items, h.sales)
	h.mu.RUnlock()

	if err != nil {
		return "", stockserrors.Wrap("backup", stockserrors.ErrStockStorage, err)
	}

	prefix, ext := h.backupNameParts()
	backupPath := filepath.Join(h.backupDir, prefix+h.now().UTC().Format("20060102T150405.000000000")+ext)

	if err := writeFileAtomic(backupPath, data); err != nil {
		h.logger.Error("Failed to write stock file backup.", zap.String("backup_path", backupPath), zap.Error(err))

		return "", stockserrors.Wrap("backup", stockserrors.ErrStockStorage, err)
	}

	if err := PruneBackups(h.backupDir, prefix, ext, h.maxBackups); err != nil {
		h.logger.Warn("Failed to rotate stock file backups.", zap.String("backup_dir", h.backupDir), zap.Error(err))
	}

	h.logger.Info("Stock file backup written.", zap.String("backup_path", backupPath))

	return backupPath, nil
}

func (h *StockFileHandler) backupNameParts() (string, string) {
	base := filepath.Base(h.path)
	ext := filepath.Ext(base)

	return strings.TrimSuffix(base, ext) + "_", ext
}

func (h *StockFileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.loaded = false

	return nil
}

func sortedItems(items map[string]models.Item) []models.Item {
	out := make([]models.Item, 0, len(items))
	for _, item := range items {
		out = append(out, item)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].StockCode < out[j].StockCode
	})

	return out
}
