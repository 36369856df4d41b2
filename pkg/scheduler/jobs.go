package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/events"
	"github.com/SGNL-ai/stockfile/pkg/models"
)

type Backupper interface {
	Backup(ctx context.Context) (string, error)
}

type LowStockLister interface {
	LowStock(ctx context.Context) ([]models.Item, error)
}

type Publisher interface {
	Publish(event events.Event)
}

// BackupJob snapshots the active repository.
type BackupJob struct {
	Store  Backupper
	Logger *zap.Logger
}

func (j *BackupJob) Name() string { return "stock_backup" }

func (j *BackupJob) Run(ctx context.Context) error {
	path, err := j.Store.Backup(ctx)
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	j.Logger.Info("Scheduled backup completed.", zap.String("backup_path", path))

	return nil
}

// LowStockReportJob logs items under the low stock threshold and announces
// them on the event stream.
type LowStockReportJob struct {
	Lister    LowStockLister
	Publisher Publisher
	Logger    *zap.Logger
}

func (j *LowStockReportJob) Name() string { return "low_stock_report" }

func (j *LowStockReportJob) Run(ctx context.Context) error {
	items, err := j.Lister.LowStock(ctx)
	if err != nil {
		return fmt.Errorf("low stock lookup failed: %w", err)
	}

	for _, item := range items {
		j.Logger.Warn("Item is low on stock.",
			zap.String("stock_code", item.StockCode),
			zap.String("brand", item.Brand),
			zap.Int("quantity", item.Quantity))

		if j.Publisher != nil {
			j.Publisher.Publish(events.Event{Type: events.ItemLowStock, StockCode: item.StockCode, Data: item})
		}
	}

	j.Logger.Info("Low stock report completed.", zap.Int("low_stock_items", len(items)))

	return nil
}
