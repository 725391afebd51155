package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/solestore/api/internal/domain"
	pfirestore "github.com/solestore/api/internal/platform/firestore"
	"github.com/solestore/api/internal/repositories"
)

// CatalogRepository reads product documents for checkout and mirrors externally kept stock onto them.
type CatalogRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
}

var (
	_ repositories.CatalogRepository = (*CatalogRepository)(nil)
	_ repositories.StockMirror       = (*CatalogRepository)(nil)
)

func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
	}, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, pfirestore.NotFound("products.get", "product id is empty")
	}
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(id), nil
}

// MirrorStock replaces the stock block of products/{id} unless the document already carries the
// same or a newer stockVersion.
func (r *CatalogRepository) MirrorStock(ctx context.Context, stock domain.ProductStock) error {
	id := strings.TrimSpace(stock.ProductID)
	if id == "" {
		return pfirestore.NotFound("products.mirror_stock", "product id is empty")
	}
	mirrored := stock.Clone()
	mirrored.Recalculate()

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.products.TxGet(ctx, tx, id)
		if err != nil {
			return err
		}
		if mirrored.Version <= doc.StockVersion {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "sizeStock", Value: mirrored.SizeStock},
			{Path: "totalStock", Value: mirrored.TotalStock},
			{Path: "inStock", Value: mirrored.InStock},
			{Path: "updatedAt", Value: mirrored.UpdatedAt},
			{Path: "stockVersion", Value: mirrored.Version},
		})
	}, pfirestore.WithTxAttempts(stockTxAttempts))
	return pfirestore.WrapError("products.mirror_stock", err)
}
