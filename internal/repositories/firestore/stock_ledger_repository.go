package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/solestore/api/internal/domain"
	pfirestore "github.com/solestore/api/internal/platform/firestore"
	"github.com/solestore/api/internal/repositories"
)

// stockTxAttempts bounds retries when concurrent checkouts contend on one product document.
const stockTxAttempts = 10

// StockLedgerRepository mutates products/{id}.sizeStock inside Firestore transactions. Firestore
// aborts and retries a transaction whose read set changed, which serialises concurrent writers of
// the same product document.
type StockLedgerRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
	now      func() time.Time
}

var _ repositories.StockLedgerRepository = (*StockLedgerRepository)(nil)

// NewStockLedgerRepository constructs the Firestore stock ledger.
func NewStockLedgerRepository(provider *pfirestore.Provider, clock func() time.Time) (*StockLedgerRepository, error) {
	if provider == nil {
		return nil, errors.New("stock ledger repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &StockLedgerRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
		now:      clock,
	}, nil
}

func (r *StockLedgerRepository) Reserve(ctx context.Context, line domain.StockLine) (domain.ProductStock, error) {
	return r.adjust(ctx, "stock.reserve", line, -1)
}

func (r *StockLedgerRepository) Release(ctx context.Context, line domain.StockLine) (domain.ProductStock, error) {
	return r.adjust(ctx, "stock.release", line, 1)
}

func (r *StockLedgerRepository) Get(ctx context.Context, productID string) (domain.ProductStock, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.ProductStock{}, repositories.NewStockError("stock.get", repositories.StockErrorInvalidInput, productID, "")
	}
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return domain.ProductStock{}, repositories.NewStockError("stock.get", repositories.StockErrorNotFound, id, "")
		}
		return domain.ProductStock{}, err
	}
	return doc.stock(id), nil
}

func (r *StockLedgerRepository) adjust(ctx context.Context, op string, line domain.StockLine, sign int) (domain.ProductStock, error) {
	productID := strings.TrimSpace(line.ProductID)
	size := strings.TrimSpace(line.Size)
	if productID == "" || size == "" || line.Quantity <= 0 {
		stockErr := repositories.NewStockError(op, repositories.StockErrorInvalidInput, productID, size)
		stockErr.Requested = line.Quantity
		return domain.ProductStock{}, stockErr
	}

	var result domain.ProductStock
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.products.TxGet(ctx, tx, productID)
		if err != nil {
			if isNotFound(err) {
				return repositories.NewStockError(op, repositories.StockErrorNotFound, productID, size)
			}
			return err
		}

		stock := doc.stock(productID)
		current := stock.Available(size)
		if sign < 0 && current < line.Quantity {
			stockErr := repositories.NewStockError(op, repositories.StockErrorInsufficient, productID, size)
			stockErr.Requested = line.Quantity
			stockErr.Available = current
			return stockErr
		}

		stock.SizeStock[size] = current + sign*line.Quantity
		stock.Recalculate()
		stock.UpdatedAt = r.now().UTC()

		if err := tx.Update(ref, []firestore.Update{
			{FieldPath: firestore.FieldPath{"sizeStock", size}, Value: stock.SizeStock[size]},
			{Path: "totalStock", Value: stock.TotalStock},
			{Path: "inStock", Value: stock.InStock},
			{Path: "updatedAt", Value: stock.UpdatedAt},
		}); err != nil {
			return err
		}
		result = stock
		return nil
	}, pfirestore.WithTxAttempts(stockTxAttempts))
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return domain.ProductStock{}, stockErr
		}
		return domain.ProductStock{}, pfirestore.WrapError(op, err)
	}
	return result, nil
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
