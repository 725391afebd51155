package services

import (
	"errors"
	"fmt"

	domain "github.com/solestore/api/internal/domain"
)

var (
	// ErrInsufficientStock indicates a size counter could not cover the requested quantity.
	ErrInsufficientStock = errors.New("order: insufficient stock")
	// ErrLineItemUnavailable indicates a checkout line failed catalog validation.
	ErrLineItemUnavailable = errors.New("order: line item unavailable")
	// ErrInvalidTransition indicates the requested status change is not allowed.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidInput indicates the caller supplied malformed data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderConflict indicates a concurrent write won the race.
	ErrOrderConflict = errors.New("order: conflict")
)

// Reasons reported by LineItemUnavailableError.
const (
	UnavailableProductMissing  = "product_missing"
	UnavailableProductInactive = "product_unavailable"
	UnavailableSizeNotOffered  = "size_not_offered"
	UnavailableOutOfStock      = "out_of_stock"
)

// InsufficientStockError names the ledger line that could not be reserved.
type InsufficientStockError struct {
	ProductID string
	Size      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%v: product %s size %s requested %d available %d",
		ErrInsufficientStock, e.ProductID, e.Size, e.Requested, e.Available)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// LineItemUnavailableError names the checkout line rejected by the snapshot builder.
type LineItemUnavailableError struct {
	ProductID string
	Size      string
	Reason    string
}

func (e *LineItemUnavailableError) Error() string {
	return fmt.Sprintf("%v: product %s size %s (%s)", ErrLineItemUnavailable, e.ProductID, e.Size, e.Reason)
}

func (e *LineItemUnavailableError) Unwrap() error { return ErrLineItemUnavailable }

// InvalidTransitionError carries the stored and requested statuses of a rejected update.
type InvalidTransitionError struct {
	OrderID   string
	Current   domain.OrderStatus
	Requested domain.OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%v: order %s cannot move from %s to %s", ErrInvalidTransition, e.OrderID, e.Current, e.Requested)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
