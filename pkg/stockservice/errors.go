package stockservice

import (
	"github.com/SGNL-ai/stockfile/pkg/models"
	"github.com/SGNL-ai/stockfile/pkg/stockserrors"
)

func invalid(op, code, message string) error {
	return stockserrors.New(op, stockserrors.ErrInvalidStock, message).WithCode(code)
}

func invalidf(op, code, format string, args ...any) error {
	return stockserrors.Newf(op, stockserrors.ErrInvalidStock, format, args...).WithCode(code)
}

func restockLimitExceeded(op, code string, adding, total int) error {
	return stockserrors.Newf(op, stockserrors.ErrStockLimitExceeded,
		"Cannot add %d items. Total quantity (%d) would exceed %d items limit", adding, total, models.MaxQuantity).WithCode(code)
}

func insufficientStock(op, code string, selling, available int) error {
	return stockserrors.Newf(op, stockserrors.ErrInsufficientStock,
		"Cannot sell %d items. Only %d items available in stock", selling, available).WithCode(code)
}

func emptyUpdate(code string) error {
	return stockserrors.New("update", stockserrors.ErrInvalidUpdateRequest, "No valid fields to update").WithCode(code)
}
