package stockserrors

import (
	"errors"
	"fmt"
	"strings"
)

var ErrStockNotFound = errors.New("stock not found")

var ErrStockExists = errors.New("stock already exists")

var ErrInvalidStock = errors.New("invalid stock")

var ErrInvalidUpdateRequest = errors.New("invalid update request")

var ErrInsufficientStock = errors.New("insufficient stock")

var ErrStockLimitExceeded = errors.New("stock limit exceeded")

var ErrStockFileCorrupt = errors.New("stock file corrupt")

var ErrStockStorage = errors.New("stock storage failure")

// StockError is returned by every stock operation that fails for a reason a
// caller may want to branch on. Kind is one of the sentinel errors above.
type StockError struct {
	Op        string
	StockCode string
	Kind      error
	Message   string
	Err       error
}

func New(op string, kind error, message string) *StockError {
	return &StockError{Op: op, Kind: kind, Message: message}
}

func Newf(op string, kind error, format string, args ...any) *StockError {
	return New(op, kind, fmt.Sprintf(format, args...))
}

func Wrap(op string, kind error, err error) *StockError {
	return &StockError{Op: op, Kind: kind, Err: err}
}

func (e *StockError) WithCode(code string) *StockError {
	e.StockCode = code

	return e
}

func (e *StockError) Error() string {
	var b strings.Builder

	b.WriteString(e.Op)

	if e.StockCode != "" {
		b.WriteString(" ")
		b.WriteString(e.StockCode)
	}

	b.WriteString(": ")

	if e.Message != "" {
		b.WriteString(e.Message)
	} else if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("stock error")
	}

	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}

	return b.String()
}

func (e *StockError) Unwrap() []error {
	errs := make([]error, 0, 2)

	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}

	if e.Err != nil {
		errs = append(errs, e.Err)
	}

	return errs
}

// UserMessage is the text safe to show to API clients.
func (e *StockError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Kind != nil {
		msg := e.Kind.Error()

		return strings.ToUpper(msg[:1]) + msg[1:]
	}

	return "Stock operation failed"
}

// KindOf returns the kind of the first StockError in err's chain, or nil.
func KindOf(err error) error {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr.Kind
	}

	return nil
}

// NotFound reports a missing item.
func NotFound(op, code string) *StockError {
	return Newf(op, ErrStockNotFound, "Item %s not found", code).WithCode(code)
}
