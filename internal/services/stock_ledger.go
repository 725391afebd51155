package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
)

// StockLedgerDeps bundles the collaborators of the stock ledger service.
type StockLedgerDeps struct {
	Repository repositories.StockLedgerRepository
	Metrics    Metrics
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type stockLedger struct {
	repo    repositories.StockLedgerRepository
	metrics Metrics
	logger  logFunc
}

var _ StockLedger = (*stockLedger)(nil)

// NewStockLedger wraps a ledger repository with typed errors and all-or-nothing batch operations.
func NewStockLedger(deps StockLedgerDeps) (StockLedger, error) {
	if deps.Repository == nil {
		return nil, errors.New("stock ledger: repository is required")
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &stockLedger{repo: deps.Repository, metrics: metrics, logger: logger}, nil
}

func (l *stockLedger) Reserve(ctx context.Context, productID, size string, quantity int) (domain.ProductStock, error) {
	line, err := normaliseStockLine(productID, size, quantity)
	if err != nil {
		return domain.ProductStock{}, err
	}
	stock, err := l.repo.Reserve(ctx, line)
	if err != nil {
		mapped := mapStockError(err)
		if errors.Is(mapped, ErrInsufficientStock) {
			l.metrics.StockReservation(resultInsufficient)
		} else {
			l.metrics.StockReservation(resultFailed)
		}
		return domain.ProductStock{}, mapped
	}
	l.metrics.StockReservation(resultReserved)
	return stock, nil
}

func (l *stockLedger) Release(ctx context.Context, productID, size string, quantity int) (domain.ProductStock, error) {
	line, err := normaliseStockLine(productID, size, quantity)
	if err != nil {
		return domain.ProductStock{}, err
	}
	stock, err := l.repo.Release(ctx, line)
	if err != nil {
		return domain.ProductStock{}, mapStockError(err)
	}
	return stock, nil
}

func (l *stockLedger) Get(ctx context.Context, productID string) (domain.ProductStock, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductStock{}, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	}
	stock, err := l.repo.Get(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, mapStockError(err)
	}
	return stock, nil
}

// ReserveAll reserves lines in order. On the first failure every line already reserved is released
// in reverse order before the failure is returned.
func (l *stockLedger) ReserveAll(ctx context.Context, lines []domain.StockLine) error {
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one stock line is required", ErrOrderInvalidInput)
	}
	done := make([]domain.StockLine, 0, len(lines))
	for _, line := range lines {
		if _, err := l.Reserve(ctx, line.ProductID, line.Size, line.Quantity); err != nil {
			l.undo(ctx, done, l.Release, "stock.reserve.compensation_failed")
			return err
		}
		done = append(done, line)
	}
	return nil
}

// ReleaseAll releases every line. A failed release re-reserves the lines already returned so the
// caller can retry the whole batch.
func (l *stockLedger) ReleaseAll(ctx context.Context, lines []domain.StockLine) error {
	done := make([]domain.StockLine, 0, len(lines))
	for _, line := range lines {
		if _, err := l.Release(ctx, line.ProductID, line.Size, line.Quantity); err != nil {
			l.undo(ctx, done, l.Reserve, "stock.release.compensation_failed")
			return err
		}
		done = append(done, line)
	}
	return nil
}

type stockAdjustFunc func(ctx context.Context, productID, size string, quantity int) (domain.ProductStock, error)

// undo applies adjust to lines in reverse order. It ignores cancellation of ctx so that a caller
// disconnecting mid-checkout does not strand reserved stock.
func (l *stockLedger) undo(ctx context.Context, lines []domain.StockLine, adjust stockAdjustFunc, event string) {
	ctx = context.WithoutCancel(ctx)
	for _, line := range slices.Backward(lines) {
		if _, err := adjust(ctx, line.ProductID, line.Size, line.Quantity); err != nil {
			l.logger(ctx, event, map[string]any{
				"productId": line.ProductID,
				"size":      line.Size,
				"quantity":  line.Quantity,
				"error":     err.Error(),
			})
		}
	}
}

func normaliseStockLine(productID, size string, quantity int) (domain.StockLine, error) {
	line := domain.StockLine{
		ProductID: strings.TrimSpace(productID),
		Size:      strings.TrimSpace(size),
		Quantity:  quantity,
	}
	switch {
	case line.ProductID == "":
		return line, fmt.Errorf("%w: product id is required", ErrOrderInvalidInput)
	case line.Size == "":
		return line, fmt.Errorf("%w: size is required", ErrOrderInvalidInput)
	case line.Quantity <= 0:
		return line, fmt.Errorf("%w: quantity must be positive", ErrOrderInvalidInput)
	}
	return line, nil
}

func mapStockError(err error) error {
	stockErr, ok := repositories.AsStockError(err)
	if !ok {
		return mapRepositoryError(err)
	}
	switch stockErr.Code {
	case repositories.StockErrorInsufficient:
		return &InsufficientStockError{
			ProductID: stockErr.ProductID,
			Size:      stockErr.Size,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		}
	case repositories.StockErrorNotFound:
		return &LineItemUnavailableError{
			ProductID: stockErr.ProductID,
			Size:      stockErr.Size,
			Reason:    UnavailableProductMissing,
		}
	case repositories.StockErrorInvalidInput:
		return fmt.Errorf("%w: %v", ErrOrderInvalidInput, stockErr)
	default:
		return mapRepositoryError(err)
	}
}
