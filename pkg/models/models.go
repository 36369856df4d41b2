package models

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

const (
	MaxQuantity        = 100
	LowStockThreshold  = 10
	MaxStockCodeLength = 32

	DefaultStockType   = "Navigation system"
	DefaultDescription = "GeoVision Sat Nav"
)

var DefaultVATRate = decimal.RequireFromString("0.20")

var stockCodePattern = regexp.MustCompile(`^[A-Z0-9_-]+$`)

func init() {
	// Prices travel to the frontend as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true
}

type Item struct {
	StockCode    string          `json:"stock_code" yaml:"stock_code"`
	StockName    string          `json:"stock_name" yaml:"stock_name"`
	StockType    string          `json:"stock_type" yaml:"stock_type"`
	Description  string          `json:"description" yaml:"description"`
	Brand        string          `json:"brand" yaml:"brand"`
	Quantity     int             `json:"quantity" yaml:"quantity"`
	Price        decimal.Decimal `json:"price" yaml:"price"`
	PriceWithVAT decimal.Decimal `json:"price_with_vat" yaml:"price_with_vat,omitempty"`
	CreatedAt    time.Time       `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" yaml:"updated_at"`
}

func (i Item) IsLowStock() bool {
	return i.Quantity < LowStockThreshold
}

func (i Item) Value() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// WithVAT returns a copy of the item with PriceWithVAT filled in.
func (i Item) WithVAT(rate decimal.Decimal) Item {
	i.PriceWithVAT = ApplyVAT(i.Price, rate)

	return i
}

type Sale struct {
	ID            string          `json:"id" yaml:"id"`
	TransactionID string          `json:"transaction_id" yaml:"transaction_id"`
	StockCode     string          `json:"stock_code" yaml:"stock_code"`
	Brand         string          `json:"brand" yaml:"brand"`
	Quantity      int             `json:"quantity" yaml:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price" yaml:"unit_price"`
	Revenue       decimal.Decimal `json:"revenue" yaml:"revenue"`
	SoldAt        time.Time       `json:"sold_at" yaml:"sold_at"`
}

func ApplyVAT(price, rate decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(1).Add(rate)).Round(2)
}

func NormalizeStockCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func DefaultStockName(brand, stockType string) string {
	return strings.TrimSpace(brand + " " + stockType)
}

func ValidateStockCode(op, code string) error {
	switch {
	case code == "":
		return stockserrors.New(op, stockserrors.ErrInvalidStock, "Stock code is required")
	case len(code) > MaxStockCodeLength:
		return stockserrors.Newf(op, stockserrors.ErrInvalidStock, "Stock code must be at most %d characters", MaxStockCodeLength).WithCode(code)
	case !stockCodePattern.MatchString(code):
		return stockserrors.New(op, stockserrors.ErrInvalidStock, "Stock code may only contain letters, digits, '-' and '_'").WithCode(code)
	}

	return nil
}

func ValidatePrice(op string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return stockserrors.New(op, stockserrors.ErrInvalidStock, "Price must be greater than 0")
	}

	return nil
}

func ValidateBrand(op, brand string) error {
	if strings.TrimSpace(brand) == "" {
		return stockserrors.New(op, stockserrors.ErrInvalidStock, "Brand is required")
	}

	return nil
}

// Validate checks a fully populated item before it is stored.
func (i Item) Validate(op string) error {
	if err := ValidateStockCode(op, i.StockCode); err != nil {
		return err
	}

	if i.Quantity < 0 {
		return stockserrors.New(op, stockserrors.ErrInvalidStock, "Quantity cannot be negative").WithCode(i.StockCode)
	}

	if i.Quantity > MaxQuantity {
		return stockserrors.Newf(op, stockserrors.ErrStockLimitExceeded, "Quantity cannot exceed %d items", MaxQuantity).WithCode(i.StockCode)
	}

	if err := ValidatePrice(op, i.Price); err != nil {
		return err
	}

	return ValidateBrand(op, i.Brand)
}
