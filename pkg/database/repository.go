package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/filehandler"
	"github.com/SGNL-ai/stockfile/pkg/models"
	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

const backupPrefix = "stock_"

// Repository stores the inventory and the sales ledger in SQLite.
type Repository struct {
	DB         *sql.DB
	Logger     *zap.Logger
	backupDir  string
	maxBackups int
	now        func() time.Time
}

func NewRepository(db *sql.DB, backupDir string, maxBackups int, logger *zap.Logger) *Repository {
	if maxBackups <= 0 {
		maxBackups = filehandler.DefaultMaxBackups
	}

	return &Repository{
		DB:         db,
		Logger:     logger.Named("sqlite"),
		backupDir:  backupDir,
		maxBackups: maxBackups,
		now:        time.Now,
	}
}

const itemColumns = `stock_code, stock_name, stock_type, description, brand, quantity, price, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (models.Item, error) {
	var item models.Item

	err := row.Scan(&item.StockCode, &item.StockName, &item.StockType, &item.Description, &item.Brand,
		&item.Quantity, &item.Price, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return models.Item{}, err
	}

	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()

	return item, nil
}

func (r *Repository) ListItems(ctx context.Context) ([]models.Item, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY stock_code`)
	if err != nil {
		r.Logger.Error("Error executing list-items query.", zap.Error(err))

		return nil, stockserrors.Wrap("list", stockserrors.ErrStockStorage, err)
	}

	defer rows.Close()

	items := []models.Item{}

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			r.Logger.Error("Error scanning item rows.", zap.Error(err))

			return nil, stockserrors.Wrap("list", stockserrors.ErrStockStorage, err)
		}

		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		r.Logger.Error("Error iterating over item rows.", zap.Error(err))

		return nil, stockserrors.Wrap("list", stockserrors.ErrStockStorage, err)
	}

	return items, nil
}

func (r *Repository) GetItem(ctx context.Context, code string) (models.Item, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE stock_code = ?`, code)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Item{}, stockserrors.NotFound("get", code)
		}

		r.Logger.Error("Error fetching item by stock code.", zap.String("stock_code", code), zap.Error(err))

		return models.Item{}, stockserrors.Wrap("get", stockserrors.ErrStockStorage, err).WithCode(code)
	}

	return item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item models.Item) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO items (`+itemColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.StockCode, item.StockName, item.StockType, item.Description, item.Brand,
		item.Quantity, item.Price, item.CreatedAt.UTC(), item.UpdatedAt.UTC())
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return stockserrors.Newf("create", stockserrors.ErrStockExists, "Item with stock code %s already exists", item.StockCode).WithCode(item.StockCode)
		}

		r.Logger.Error("Error inserting item.", zap.String("stock_code", item.StockCode), zap.Error(err))

		return stockserrors.Wrap("create", stockserrors.ErrStockStorage, err).WithCode(item.StockCode)
	}

	return nil
}

func (r *Repository) UpdateItem(ctx context.Context, item models.Item) error {
	return r.updateItem(ctx, r.DB, "update", item)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) updateItem(ctx context.Context, db execer, op string, item models.Item) error {
	res, err := db.ExecContext(ctx, `
	UPDATE items
	SET stock_name = ?, stock_type = ?, description = ?, brand = ?, quantity = ?, price = ?, updated_at = ?
	WHERE stock_code = ?
	`, item.StockName, item.StockType, item.Description, item.Brand, item.Quantity, item.Price, item.UpdatedAt.UTC(), item.StockCode)
	if err != nil {
		r.Logger.Error("Error updating item.", zap.String("stock_code", item.StockCode), zap.Error(err))

		return stockserrors.Wrap(op, stockserrors.ErrStockStorage, err).WithCode(item.StockCode)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return stockserrors.Wrap(op, stockserrors.ErrStockStorage, err).WithCode(item.StockCode)
	}

	if affected == 0 {
		return stockserrors.NotFound(op, item.StockCode)
	}

	return nil
}

func (r *Repository) DeleteItem(ctx context.Context, code string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM items WHERE stock_code = ?`, code)
	if err != nil {
		r.Logger.Error("Error deleting item.", zap.String("stock_code", code), zap.Error(err))

		return stockserrors.Wrap("delete", stockserrors.ErrStockStorage, err).WithCode(code)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return stockserrors.Wrap("delete", stockserrors.ErrStockStorage, err).WithCode(code)
	}

	if affected == 0 {
		return stockserrors.NotFound("delete", code)
	}

	return nil
}

// RecordSale updates the sold item and inserts the sale in one transaction.
func (r *Repository) RecordSale(ctx context.Context, item models.Item, sale models.Sale) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		r.Logger.Error("Failed to start transaction.", zap.Error(err))

		return stockserrors.Wrap("sell", stockserrors.ErrStockStorage, fmt.Errorf("failed to start transaction: %w", err))
	}

	defer tx.Rollback()

	if err := r.updateItem(ctx, tx, "sell", item); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
	INSERT INTO sales (id, transaction_id, stock_code, brand, quantity, unit_price, revenue, sold_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sale.ID, sale.TransactionID, sale.StockCode, sale.Brand, sale.Quantity, sale.UnitPrice, sale.Revenue, sale.SoldAt.UTC())
	if err != nil {
		r.Logger.Error("Error inserting sale.", zap.String("stock_code", sale.StockCode), zap.Error(err))

		return stockserrors.Wrap("sell", stockserrors.ErrStockStorage, err).WithCode(sale.StockCode)
	}

	if err := tx.Commit(); err != nil {
		r.Logger.Error("Failed to commit transaction.", zap.Error(err))

		return stockserrors.Wrap("sell", stockserrors.ErrStockStorage, fmt.Errorf("failed to commit transaction: %w", err))
	}

	return nil
}

func (r *Repository) ListSales(ctx context.Context) ([]models.Sale, error) {
	rows, err := r.DB.QueryContext(ctx, `
	SELECT id, transaction_id, stock_code, brand, quantity, unit_price, revenue, sold_at
	FROM sales
	ORDER BY sold_at, rowid
	`)
	if err != nil {
		r.Logger.Error("Error executing list-sales query.", zap.Error(err))

		return nil, stockserrors.Wrap("sales", stockserrors.ErrStockStorage, err)
	}

	defer rows.Close()

	sales := []models.Sale{}

	for rows.Next() {
		var sale models.Sale

		if err := rows.Scan(&sale.ID, &sale.TransactionID, &sale.StockCode, &sale.Brand, &sale.Quantity,
			&sale.UnitPrice, &sale.Revenue, &sale.SoldAt); err != nil {
			r.Logger.Error("Error scanning sale rows.", zap.Error(err))

			return nil, stockserrors.Wrap("sales", stockserrors.ErrStockStorage, err)
		}

		sale.SoldAt = sale.SoldAt.UTC()
		sales = append(sales, sale)
	}

	if err := rows.Err(); err != nil {
		return nil, stockserrors.Wrap("sales", stockserrors.ErrStockStorage, err)
	}

	return sales, nil
}

// Backup snapshots the database with VACUUM INTO and rotates old snapshots.
func (r *Repository) Backup(ctx context.Context) (string, error) {
	if r.backupDir == "" {
		return "", stockserrors.New("backup", stockserrors.ErrStockStorage, "backup directory not configured")
	}

	if err := os.MkdirAll(r.backupDir, 0o755); err != nil {
		return "", stockserrors.Wrap("backup", stockserrors.ErrStockStorage, err)
	}

	backupPath := filepath.Join(r.backupDir, backupPrefix+r.now().UTC().Format("20060102T150405.000000000")+".db")

	if _, err := r.DB.ExecContext(ctx, `VACUUM INTO ?`, backupPath); err != nil {
		r.Logger.Error("Failed to back up stock database.", zap.String("backup_path", backupPath), zap.Error(err))

		return "", stockserrors.Wrap("backup", stockserrors.ErrStockStorage, err)
	}

	if err := filehandler.PruneBackups(r.backupDir, backupPrefix, ".db", r.maxBackups); err != nil {
		r.Logger.Warn("Failed to rotate stock database backups.", zap.String("backup_dir", r.backupDir), zap.Error(err))
	}

	r.Logger.Info("Stock database backup written.", zap.String("backup_path", backupPath))

	return backupPath, nil
}

func (r *Repository) Close() error {
	return r.DB.Close()
}
