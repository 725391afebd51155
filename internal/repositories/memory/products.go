// Package memory provides in-process repositories for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
)

// ProductStore holds products and serves as both the catalog and the stock ledger, mirroring the
// Firestore layout where stock lives on the product document.
type ProductStore struct {
	mu       sync.Mutex
	products map[string]domain.Product
	now      func() time.Time
}

var (
	_ repositories.CatalogRepository     = (*ProductStore)(nil)
	_ repositories.StockLedgerRepository = (*ProductStore)(nil)
	_ repositories.StockMirror           = (*ProductStore)(nil)
)

func NewProductStore(clock func() time.Time) *ProductStore {
	if clock == nil {
		clock = time.Now
	}
	return &ProductStore{products: make(map[string]domain.Product), now: clock}
}

// Put stores a product, recomputing its derived stock fields.
func (s *ProductStore) Put(product domain.Product) {
	stock := domain.ProductStock{SizeStock: product.SizeStock}.Clone()
	if stock.SizeStock == nil {
		stock.SizeStock = map[string]int{}
	}
	stock.Recalculate()
	product.SizeStock = stock.SizeStock
	product.TotalStock = stock.TotalStock
	product.InStock = stock.InStock

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

func (s *ProductStore) GetProduct(_ context.Context, productID string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, notFound("products.get", "product %s not found", productID)
	}
	product.SizeStock = domain.ProductStock{SizeStock: product.SizeStock}.Clone().SizeStock
	product.Images = append([]string(nil), product.Images...)
	product.AvailableSizes = append([]string(nil), product.AvailableSizes...)
	return product, nil
}

func (s *ProductStore) Get(_ context.Context, productID string) (domain.ProductStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[productID]
	if !ok {
		return domain.ProductStock{}, repositories.NewStockError("stock.get", repositories.StockErrorNotFound, productID, "")
	}
	return stockOf(product), nil
}

func (s *ProductStore) Reserve(_ context.Context, line domain.StockLine) (domain.ProductStock, error) {
	return s.adjust("stock.reserve", line, -1)
}

func (s *ProductStore) Release(_ context.Context, line domain.StockLine) (domain.ProductStock, error) {
	return s.adjust("stock.release", line, 1)
}

func (s *ProductStore) adjust(op string, line domain.StockLine, sign int) (domain.ProductStock, error) {
	productID := strings.TrimSpace(line.ProductID)
	size := strings.TrimSpace(line.Size)
	if productID == "" || size == "" || line.Quantity <= 0 {
		stockErr := repositories.NewStockError(op, repositories.StockErrorInvalidInput, productID, size)
		stockErr.Requested = line.Quantity
		return domain.ProductStock{}, stockErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.ProductStock{}, repositories.NewStockError(op, repositories.StockErrorNotFound, productID, size)
	}
	stock := stockOf(product)
	current := stock.Available(size)
	if sign < 0 && current < line.Quantity {
		stockErr := repositories.NewStockError(op, repositories.StockErrorInsufficient, productID, size)
		stockErr.Requested = line.Quantity
		stockErr.Available = current
		return domain.ProductStock{}, stockErr
	}

	stock.SizeStock[size] = current + sign*line.Quantity
	stock.Recalculate()
	stock.UpdatedAt = s.now().UTC()

	product.SizeStock = stock.SizeStock
	product.TotalStock = stock.TotalStock
	product.InStock = stock.InStock
	product.UpdatedAt = stock.UpdatedAt
	s.products[productID] = product
	return stock.Clone(), nil
}

// MirrorStock overwrites the product's counters with stock kept by an external ledger.
func (s *ProductStore) MirrorStock(_ context.Context, stock domain.ProductStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	product, ok := s.products[stock.ProductID]
	if !ok {
		return notFound("products.mirror_stock", "product %s not found", stock.ProductID)
	}
	if stock.Version <= product.StockVersion {
		return nil
	}
	mirrored := stock.Clone()
	mirrored.Recalculate()
	product.SizeStock = mirrored.SizeStock
	product.TotalStock = mirrored.TotalStock
	product.InStock = mirrored.InStock
	product.UpdatedAt = mirrored.UpdatedAt
	product.StockVersion = mirrored.Version
	s.products[product.ID] = product
	return nil
}

func stockOf(product domain.Product) domain.ProductStock {
	stock := domain.ProductStock{
		ProductID:  product.ID,
		SizeStock:  product.SizeStock,
		TotalStock: product.TotalStock,
		InStock:    product.InStock,
		UpdatedAt:  product.UpdatedAt,
	}.Clone()
	if stock.SizeStock == nil {
		stock.SizeStock = map[string]int{}
	}
	return stock
}

// Error implements repositories.RepositoryError.
type Error struct {
	msg      string
	notFound bool
	conflict bool
}

func (e *Error) Error() string       { return e.msg }
func (e *Error) IsNotFound() bool    { return e.notFound }
func (e *Error) IsConflict() bool    { return e.conflict }
func (e *Error) IsUnavailable() bool { return false }

func notFound(op, format string, args ...any) error {
	return &Error{msg: op + ": " + fmt.Sprintf(format, args...), notFound: true}
}

func conflict(op, format string, args ...any) error {
	return &Error{msg: op + ": " + fmt.Sprintf(format, args...), conflict: true}
}
