package stockservice

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/events"
	"github.com/SGNL-ai/stockfile/pkg/models"
	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

var ItemCSVHeader = []string{"stock_code", "stock_name", "stock_type", "description", "brand", "quantity", "price", "price_with_vat"}

var SalesCSVHeader = []string{"transaction_id", "sold_at", "stock_code", "brand", "quantity", "unit_price", "revenue"}

// importColumns are required in an import; price_with_vat is optional and ignored.
const importColumns = 7

type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Errors  []RowError `json:"errors"`
}

func (s *Service) ExportItemsCSV(ctx context.Context, w io.Writer) error {
	items, err := s.Repo.ListItems(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(ItemCSVHeader); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}

	for _, item := range s.withVAT(items) {
		record := []string{
			item.StockCode,
			item.StockName,
			item.StockType,
			item.Description,
			item.Brand,
			strconv.Itoa(item.Quantity),
			item.Price.StringFixed(2),
			item.PriceWithVAT.StringFixed(2),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("error writing CSV row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

func (s *Service) ExportSalesCSV(ctx context.Context, w io.Writer) error {
	sales, err := s.Repo.ListSales(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(SalesCSVHeader); err != nil {
		return fmt.Errorf("error writing CSV header: %w", err)
	}

	for _, sale := range sales {
		record := []string{
			sale.TransactionID,
			sale.SoldAt.UTC().Format(time.RFC3339),
			sale.StockCode,
			sale.Brand,
			strconv.Itoa(sale.Quantity),
			sale.UnitPrice.StringFixed(2),
			sale.Revenue.StringFixed(2),
		}

		if err := cw.Write(record); err != nil {
			return fmt.Errorf("error writing CSV row: %w", err)
		}
	}

	cw.Flush()

	return cw.Error()
}

// ImportItemsCSV upserts items from a CSV in the export format. Quantities are
// absolute, not restock amounts. Rows that fail are reported and skipped.
func (s *Service) ImportItemsCSV(ctx context.Context, r io.Reader) (ImportResult, error) {
	const op = "import"

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, invalid(op, "", "CSV file is empty")
		}

		return ImportResult{}, stockserrors.Wrap(op, stockserrors.ErrInvalidStock, err)
	}

	if len(header) < importColumns {
		return ImportResult{}, invalidf(op, "", "CSV header must start with: %s", strings.Join(ItemCSVHeader[:importColumns], ","))
	}

	for i := 0; i < importColumns; i++ {
		if strings.TrimSpace(strings.ToLower(header[i])) != ItemCSVHeader[i] {
			return ImportResult{}, invalidf(op, "", "CSV header must start with: %s", strings.Join(ItemCSVHeader[:importColumns], ","))
		}
	}

	result := ImportResult{Errors: []RowError{}}

	// Records are read in full before the service lock is taken.
	type pendingRow struct {
		row    int
		record []string
	}

	var rows []pendingRow

	for row := 2; ; row++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			// The reader cannot resync after malformed quoting.
			result.Errors = append(result.Errors, RowError{Row: row, Message: err.Error()})

			break
		}

		rows = append(rows, pendingRow{row: row, record: record})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pr := range rows {
		created, err := s.importRow(ctx, pr.record)
		if err != nil {
			if errors.Is(err, stockserrors.ErrStockStorage) || ctx.Err() != nil {
				return result, err
			}

			result.Errors = append(result.Errors, RowError{Row: pr.row, Message: userMessage(err)})

			continue
		}

		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })

	s.Logger.Info("Items imported from CSV.",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("failed_rows", len(result.Errors)))

	return result, nil
}

func userMessage(err error) string {
	var stockErr *stockserrors.StockError
	if errors.As(err, &stockErr) {
		return stockErr.UserMessage()
	}

	return err.Error()
}

func (s *Service) importRow(ctx context.Context, record []string) (bool, error) {
	const op = "import"

	if len(record) < importColumns {
		return false, invalidf(op, "", "Expected at least %d columns, got %d", importColumns, len(record))
	}

	code := models.NormalizeStockCode(record[0])

	quantity, err := strconv.Atoi(strings.TrimSpace(record[5]))
	if err != nil {
		return false, invalidf(op, code, "Invalid quantity: %s", record[5])
	}

	price, err := decimal.NewFromString(strings.TrimSpace(record[6]))
	if err != nil {
		return false, invalidf(op, code, "Invalid price: %s", record[6])
	}

	now := s.now().UTC()

	item := models.Item{
		StockCode:   code,
		StockName:   strings.TrimSpace(record[1]),
		StockType:   strings.TrimSpace(record[2]),
		Description: strings.TrimSpace(record[3]),
		Brand:       strings.TrimSpace(record[4]),
		Quantity:    quantity,
		Price:       price.Round(2),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	fillDefaults(&item)

	if err := item.Validate(op); err != nil {
		return false, err
	}

	existing, err := s.Repo.GetItem(ctx, code)

	switch {
	case err == nil:
		item.CreatedAt = existing.CreatedAt

		if err := s.Repo.UpdateItem(ctx, item); err != nil {
			return false, err
		}

		s.publish(events.ItemUpdated, code, item.WithVAT(s.VATRate))

		return false, nil
	case errors.Is(err, stockserrors.ErrStockNotFound):
		if err := s.Repo.CreateItem(ctx, item); err != nil {
			return false, err
		}

		s.publish(events.ItemCreated, code, item.WithVAT(s.VATRate))

		return true, nil
	default:
		return false, err
	}
}
