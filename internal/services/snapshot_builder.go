package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
)

const maxSnapshotLines = 100

// SnapshotBuilderDeps bundles the collaborators of the snapshot builder.
type SnapshotBuilderDeps struct {
	Catalog repositories.CatalogRepository
	Ledger  StockLedger
}

type snapshotBuilder struct {
	catalog repositories.CatalogRepository
	ledger  StockLedger
}

var _ SnapshotBuilder = (*snapshotBuilder)(nil)

// NewSnapshotBuilder constructs a SnapshotBuilder. Without a ledger, availability is read from the
// product document itself.
func NewSnapshotBuilder(deps SnapshotBuilderDeps) (SnapshotBuilder, error) {
	if deps.Catalog == nil {
		return nil, errors.New("snapshot builder: catalog repository is required")
	}
	return &snapshotBuilder{catalog: deps.Catalog, ledger: deps.Ledger}, nil
}

// Build validates every line and prices it from the catalog. It never writes stock; the first bad
// line fails the whole snapshot.
func (b *snapshotBuilder) Build(ctx context.Context, lines []domain.CartSelectionLine) (domain.CartSnapshot, error) {
	if len(lines) == 0 {
		return domain.CartSnapshot{}, fmt.Errorf("%w: cart is empty", ErrOrderInvalidInput)
	}
	if len(lines) > maxSnapshotLines {
		return domain.CartSnapshot{}, fmt.Errorf("%w: cart exceeds %d lines", ErrOrderInvalidInput, maxSnapshotLines)
	}

	snapshot := domain.CartSnapshot{Lines: make([]domain.SnapshotLine, 0, len(lines))}
	products := make(map[string]domain.Product, len(lines))
	stocks := make(map[string]domain.ProductStock, len(lines))
	requested := make(map[domain.StockLine]int, len(lines))

	for i, raw := range lines {
		productID := strings.TrimSpace(raw.ProductID)
		size := strings.TrimSpace(raw.Size)
		switch {
		case productID == "":
			return domain.CartSnapshot{}, fmt.Errorf("%w: line %d: product id is required", ErrOrderInvalidInput, i)
		case size == "":
			return domain.CartSnapshot{}, fmt.Errorf("%w: line %d: size is required", ErrOrderInvalidInput, i)
		case raw.Quantity <= 0:
			return domain.CartSnapshot{}, fmt.Errorf("%w: line %d: quantity must be positive", ErrOrderInvalidInput, i)
		}

		product, ok := products[productID]
		if !ok {
			var err error
			product, err = b.loadProduct(ctx, productID, size)
			if err != nil {
				return domain.CartSnapshot{}, err
			}
			products[productID] = product
		}
		if !product.IsAvailable {
			return domain.CartSnapshot{}, &LineItemUnavailableError{ProductID: productID, Size: size, Reason: UnavailableProductInactive}
		}
		if !product.OffersSize(size) {
			return domain.CartSnapshot{}, &LineItemUnavailableError{ProductID: productID, Size: size, Reason: UnavailableSizeNotOffered}
		}

		stock, ok := stocks[productID]
		if !ok {
			var err error
			stock, err = b.loadStock(ctx, product, size)
			if err != nil {
				return domain.CartSnapshot{}, err
			}
			stocks[productID] = stock
		}
		key := domain.StockLine{ProductID: productID, Size: size}
		requested[key] += raw.Quantity
		if requested[key] > stock.Available(size) {
			return domain.CartSnapshot{}, &LineItemUnavailableError{ProductID: productID, Size: size, Reason: UnavailableOutOfStock}
		}

		currency := strings.ToUpper(strings.TrimSpace(product.Currency))
		if snapshot.Currency == "" {
			snapshot.Currency = currency
		} else if currency != snapshot.Currency {
			return domain.CartSnapshot{}, fmt.Errorf("%w: line %d: currency %s differs from %s", ErrOrderInvalidInput, i, currency, snapshot.Currency)
		}
		if product.Price < 0 {
			return domain.CartSnapshot{}, fmt.Errorf("%w: product %s has a negative price", ErrOrderInvalidInput, productID)
		}

		line := domain.SnapshotLine{
			ProductID: productID,
			Name:      product.Name,
			Image:     product.PrimaryImage(),
			Price:     product.Price,
			Size:      size,
			Quantity:  raw.Quantity,
		}
		snapshot.Lines = append(snapshot.Lines, line)
		snapshot.Subtotal += line.Total()
	}
	return snapshot, nil
}

func (b *snapshotBuilder) loadProduct(ctx context.Context, productID, size string) (domain.Product, error) {
	product, err := b.catalog.GetProduct(ctx, productID)
	if err == nil {
		return product, nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return domain.Product{}, &LineItemUnavailableError{ProductID: productID, Size: size, Reason: UnavailableProductMissing}
	}
	return domain.Product{}, mapRepositoryError(err)
}

// loadStock reads the product's counters; a missing stock record is reported against size.
func (b *snapshotBuilder) loadStock(ctx context.Context, product domain.Product, size string) (domain.ProductStock, error) {
	if b.ledger == nil {
		return domain.ProductStock{ProductID: product.ID, SizeStock: product.SizeStock}.Clone(), nil
	}
	stock, err := b.ledger.Get(ctx, product.ID)
	var lineErr *LineItemUnavailableError
	if errors.As(err, &lineErr) && lineErr.Size == "" {
		lineErr.Size = size
	}
	return stock, err
}
