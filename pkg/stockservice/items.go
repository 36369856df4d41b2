package stockservice

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SGNL-ai/stockfile/pkg/events"
	"github.com/SGNL-ai/stockfile/pkg/models"
)

type ListQuery struct {
	Search    string
	Brand     string
	SortBy    string
	SortOrder string
	Page      int
	PerPage   int
}

type Pagination struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	PerPage     int `json:"per_page"`
	TotalItems  int `json:"total_items"`
}

type Statistics struct {
	TotalItems    int             `json:"total_items"`
	TotalQuantity int             `json:"total_quantity"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TotalValueVAT decimal.Decimal `json:"total_value_vat"`
	LowStockItems int             `json:"low_stock_items"`
}

type ItemPage struct {
	Items      []models.Item `json:"items"`
	Pagination Pagination    `json:"pagination"`
	Statistics Statistics    `json:"statistics"`
}

type NewItem struct {
	StockCode   string          `json:"stock_code"`
	StockName   string          `json:"stock_name"`
	StockType   string          `json:"stock_type"`
	Description string          `json:"description"`
	Brand       string          `json:"brand"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// ItemUpdate is a partial update; nil fields are left alone. Quantity is a
// restock amount added to the current stock.
type ItemUpdate struct {
	StockName   *string          `json:"stock_name"`
	StockType   *string          `json:"stock_type"`
	Description *string          `json:"description"`
	Brand       *string          `json:"brand"`
	Quantity    *int             `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
}

func (u ItemUpdate) empty() bool {
	return u.StockName == nil && u.StockType == nil && u.Description == nil &&
		u.Brand == nil && u.Quantity == nil && u.Price == nil
}

type SaleReceipt struct {
	Sale models.Sale `json:"sale"`
	Item models.Item `json:"item"`
}

var sortFields = map[string]func(a, b models.Item) int{
	"stock_code": func(a, b models.Item) int { return strings.Compare(a.StockCode, b.StockCode) },
	"stock_name": func(a, b models.Item) int { return compareFold(a.StockName, b.StockName) },
	"brand":      func(a, b models.Item) int { return compareFold(a.Brand, b.Brand) },
	"stock_type": func(a, b models.Item) int { return compareFold(a.StockType, b.StockType) },
	"quantity":   func(a, b models.Item) int { return a.Quantity - b.Quantity },
	"price":      func(a, b models.Item) int { return a.Price.Cmp(b.Price) },
}

func compareFold(a, b string) int {
	return strings.Compare(strings.ToLower(a), strings.ToLower(b))
}

func matchesSearch(item models.Item, needle string) bool {
	for _, field := range []string{item.StockCode, item.StockName, item.Brand, item.StockType, item.Description} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}

	return false
}

func (s *Service) statistics(items []models.Item) Statistics {
	stats := Statistics{
		TotalItems:    len(items),
		TotalValue:    decimal.Zero,
		TotalValueVAT: decimal.Zero,
	}

	for _, item := range items {
		qty := decimal.NewFromInt(int64(item.Quantity))

		stats.TotalQuantity += item.Quantity
		stats.TotalValue = stats.TotalValue.Add(item.Value())
		stats.TotalValueVAT = stats.TotalValueVAT.Add(models.ApplyVAT(item.Price, s.VATRate).Mul(qty))

		if item.IsLowStock() {
			stats.LowStockItems++
		}
	}

	return stats
}

// ListItems filters, sorts and paginates the inventory. Statistics always
// cover the whole inventory regardless of filters.
func (s *Service) ListItems(ctx context.Context, q ListQuery) (ItemPage, error) {
	const op = "list"

	if q.Page < 0 {
		return ItemPage{}, invalid(op, "", "Page must be at least 1")
	}

	if q.Page == 0 {
		q.Page = 1
	}

	if q.PerPage == 0 {
		q.PerPage = s.DefaultPerPage
	}

	if q.PerPage < 1 || q.PerPage > MaxPerPage {
		return ItemPage{}, invalidf(op, "", "per_page must be between 1 and %d", MaxPerPage)
	}

	if q.SortBy == "" {
		q.SortBy = "stock_code"
	}

	compare, ok := sortFields[q.SortBy]
	if !ok {
		return ItemPage{}, invalidf(op, "", "Invalid sort field: %s", q.SortBy)
	}

	desc := false

	switch strings.ToLower(q.SortOrder) {
	case "", "asc":
	case "desc":
		desc = true
	default:
		return ItemPage{}, invalidf(op, "", "Invalid sort order: %s", q.SortOrder)
	}

	all, err := s.Repo.ListItems(ctx)
	if err != nil {
		s.Logger.Error("Error listing items.", zap.Error(err))

		return ItemPage{}, err
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	brand := strings.TrimSpace(q.Brand)

	filtered := make([]models.Item, 0, len(all))

	for _, item := range all {
		if brand != "" && !strings.EqualFold(item.Brand, brand) {
			continue
		}

		if search != "" && !matchesSearch(item, search) {
			continue
		}

		filtered = append(filtered, item)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		c := compare(filtered[i], filtered[j])
		if desc {
			c = -c
		}

		if c == 0 {
			return filtered[i].StockCode < filtered[j].StockCode
		}

		return c < 0
	})

	total := len(filtered)
	totalPages := int(math.Ceil(float64(total) / float64(q.PerPage)))

	if totalPages < 1 {
		totalPages = 1
	}

	start := (q.Page - 1) * q.PerPage
	if start > total {
		start = total
	}

	end := start + q.PerPage
	if end > total {
		end = total
	}

	return ItemPage{
		Items: s.withVAT(filtered[start:end:end]),
		Pagination: Pagination{
			CurrentPage: q.Page,
			TotalPages:  totalPages,
			PerPage:     q.PerPage,
			TotalItems:  total,
		},
		Statistics: s.statistics(all),
	}, nil
}

func (s *Service) GetItem(ctx context.Context, code string) (models.Item, error) {
	item, err := s.Repo.GetItem(ctx, models.NormalizeStockCode(code))
	if err != nil {
		return models.Item{}, err
	}

	return item.WithVAT(s.VATRate), nil
}

// LowStock returns items below the low stock threshold, emptiest first.
func (s *Service) LowStock(ctx context.Context) ([]models.Item, error) {
	all, err := s.Repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}

	low := make([]models.Item, 0)

	for _, item := range all {
		if item.IsLowStock() {
			low = append(low, item)
		}
	}

	sort.SliceStable(low, func(i, j int) bool {
		if low[i].Quantity != low[j].Quantity {
			return low[i].Quantity < low[j].Quantity
		}

		return low[i].StockCode < low[j].StockCode
	})

	return s.withVAT(low), nil
}

func fillDefaults(item *models.Item) {
	if item.StockType == "" {
		item.StockType = models.DefaultStockType
	}

	if item.Description == "" {
		item.Description = models.DefaultDescription
	}

	if item.StockName == "" {
		item.StockName = models.DefaultStockName(item.Brand, item.StockType)
	}
}

func (s *Service) AddItem(ctx context.Context, in NewItem) (models.Item, error) {
	const op = "add"

	code := models.NormalizeStockCode(in.StockCode)
	if err := models.ValidateStockCode(op, code); err != nil {
		return models.Item{}, err
	}

	if in.Quantity < 1 {
		return models.Item{}, invalid(op, code, "Quantity must be greater than 0")
	}

	now := s.now().UTC()

	item := models.Item{
		StockCode:   code,
		StockName:   strings.TrimSpace(in.StockName),
		StockType:   strings.TrimSpace(in.StockType),
		Description: strings.TrimSpace(in.Description),
		Brand:       strings.TrimSpace(in.Brand),
		Quantity:    in.Quantity,
		Price:       in.Price.Round(2),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	fillDefaults(&item)

	if err := item.Validate(op); err != nil {
		return models.Item{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Repo.CreateItem(ctx, item); err != nil {
		s.Logger.Error("Error adding item.", zap.String("stock_code", code), zap.Error(err))

		return models.Item{}, err
	}

	item = item.WithVAT(s.VATRate)

	s.Logger.Info("Item added.", zap.String("stock_code", code), zap.Int("quantity", item.Quantity))
	s.publish(events.ItemCreated, code, item)

	if item.IsLowStock() {
		s.publish(events.ItemLowStock, code, item)
	}

	return item, nil
}

func (s *Service) UpdateItem(ctx context.Context, code string, u ItemUpdate) (models.Item, error) {
	const op = "update"

	code = models.NormalizeStockCode(code)

	if u.empty() {
		return models.Item{}, emptyUpdate(code)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Repo.GetItem(ctx, code)
	if err != nil {
		return models.Item{}, err
	}

	if u.Price != nil {
		price := u.Price.Round(2)
		if err := models.ValidatePrice(op, price); err != nil {
			return models.Item{}, err
		}

		item.Price = price
	}

	if u.Brand != nil {
		if err := models.ValidateBrand(op, *u.Brand); err != nil {
			return models.Item{}, err
		}

		item.Brand = strings.TrimSpace(*u.Brand)
	}

	if u.StockType != nil {
		item.StockType = strings.TrimSpace(*u.StockType)
	}

	if u.Description != nil {
		item.Description = strings.TrimSpace(*u.Description)
	}

	if u.StockName != nil {
		item.StockName = strings.TrimSpace(*u.StockName)
	}

	fillDefaults(&item)

	if u.Quantity != nil {
		adding := *u.Quantity
		if adding < 1 {
			return models.Item{}, invalid(op, code, "Quantity must be greater than 0")
		}

		total := item.Quantity + adding
		if total > models.MaxQuantity {
			return models.Item{}, restockLimitExceeded(op, code, adding, total)
		}

		item.Quantity = total
	}

	item.UpdatedAt = s.now().UTC()

	if err := s.Repo.UpdateItem(ctx, item); err != nil {
		s.Logger.Error("Error updating item.", zap.String("stock_code", code), zap.Error(err))

		return models.Item{}, err
	}

	item = item.WithVAT(s.VATRate)

	s.Logger.Info("Item updated.", zap.String("stock_code", code))
	s.publish(events.ItemUpdated, code, item)

	return item, nil
}

func (s *Service) SellItem(ctx context.Context, code string, quantity int) (SaleReceipt, error) {
	const op = "sell"

	code = models.NormalizeStockCode(code)

	if quantity < 1 {
		return SaleReceipt{}, invalid(op, code, "Quantity must be greater than 0")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, err := s.Repo.GetItem(ctx, code)
	if err != nil {
		return SaleReceipt{}, err
	}

	if quantity > item.Quantity {
		return SaleReceipt{}, insufficientStock(op, code, quantity, item.Quantity)
	}

	saleID, err := s.newSaleID()
	if err != nil {
		s.Logger.Error("Failed to generate sale id.", zap.Error(err))

		return SaleReceipt{}, err
	}

	txnID, err := s.newTransactionID()
	if err != nil {
		s.Logger.Error("Failed to generate transaction id.", zap.Error(err))

		return SaleReceipt{}, err
	}

	now := s.now().UTC()
	wasLow := item.IsLowStock()

	item.Quantity -= quantity
	item.UpdatedAt = now

	sale := models.Sale{
		ID:            saleID,
		TransactionID: txnID,
		StockCode:     code,
		Brand:         item.Brand,
		Quantity:      quantity,
		UnitPrice:     item.Price,
		Revenue:       item.Price.Mul(decimal.NewFromInt(int64(quantity))),
		SoldAt:        now,
	}

	if err := s.Repo.RecordSale(ctx, item, sale); err != nil {
		s.Logger.Error("Error recording sale.", zap.String("stock_code", code), zap.Error(err))

		return SaleReceipt{}, err
	}

	item = item.WithVAT(s.VATRate)

	s.Logger.Info("Item sold.",
		zap.String("stock_code", code),
		zap.String("transaction_id", txnID),
		zap.Int("quantity", quantity),
		zap.Int("remaining", item.Quantity))

	receipt := SaleReceipt{Sale: sale, Item: item}
	s.publish(events.ItemSold, code, receipt)

	if !wasLow && item.IsLowStock() {
		s.publish(events.ItemLowStock, code, item)
	}

	return receipt, nil
}

func (s *Service) DeleteItem(ctx context.Context, code string) error {
	code = models.NormalizeStockCode(code)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.Repo.DeleteItem(ctx, code); err != nil {
		return err
	}

	s.Logger.Info("Item deleted.", zap.String("stock_code", code))
	s.publish(events.ItemDeleted, code, nil)

	return nil
}
