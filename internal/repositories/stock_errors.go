package repositories

import (
	"errors"
	"fmt"
)

// StockErrorCode enumerates ledger failure causes.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the size counter is lower than the requested quantity.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorNotFound indicates the product has no stock record.
	StockErrorNotFound StockErrorCode = "stock_not_found"
	// StockErrorInvalidInput indicates a malformed ledger line.
	StockErrorInvalidInput StockErrorCode = "stock_invalid_input"
)

// StockError carries the ledger line that failed together with the observed availability.
type StockError struct {
	Op        string
	Code      StockErrorCode
	ProductID string
	Size      string
	Requested int
	Available int
	Err       error
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: product=%s size=%s", e.Code, e.ProductID, e.Size)
	if e.Code == StockErrorInsufficient {
		msg = fmt.Sprintf("%s requested=%d available=%d", msg, e.Requested, e.Available)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes the underlying error, if any.
func (e *StockError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewStockError constructs a typed ledger error for the given line.
func NewStockError(op string, code StockErrorCode, productID, size string) *StockError {
	return &StockError{Op: op, Code: code, ProductID: productID, Size: size}
}

// AsStockError unwraps err into a *StockError when possible.
func AsStockError(err error) (*StockError, bool) {
	var stockErr *StockError
	if errors.As(err, &stockErr) {
		return stockErr, true
	}
	return nil, false
}
