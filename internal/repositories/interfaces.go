package repositories

import (
	"context"
	"time"

	domain "github.com/solestore/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	StockLedger() StockLedgerRepository
	Catalog() CatalogRepository
	Orders() OrderRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// StockLedgerRepository mutates per-size stock counters. Reserve and Release must each be a single
// atomic step against the backing store, recomputing TotalStock and InStock alongside the size
// counter. Implementations return *StockError for domain failures.
type StockLedgerRepository interface {
	Reserve(ctx context.Context, line domain.StockLine) (domain.ProductStock, error)
	Release(ctx context.Context, line domain.StockLine) (domain.ProductStock, error)
	Get(ctx context.Context, productID string) (domain.ProductStock, error)
}

// CatalogRepository reads product documents needed at checkout.
type CatalogRepository interface {
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// StockMirror copies ledger counters onto the catalog record when the ledger lives in another
// store. Writes carrying a Version not newer than the stored one must be ignored.
type StockMirror interface {
	MirrorStock(ctx context.Context, stock domain.ProductStock) error
}

// OrderRepository persists order aggregates. ApplyTransition is the only mutation after Insert.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ApplyTransition(ctx context.Context, transition OrderTransition) (domain.Order, error)
	ListByStatus(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Stats(ctx context.Context) (domain.OrderStats, error)
}

// CounterRepository provides monotonically increasing sequences.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderTransition patches status fields and appends exactly one delivery event. The write must be
// rejected with a conflict when the stored status no longer equals ExpectedStatus.
type OrderTransition struct {
	OrderID            string
	ExpectedStatus     domain.OrderStatus
	Status             domain.OrderStatus
	UpdatedAt          time.Time
	Entry              domain.DeliveryEvent
	ShippedAt          *time.Time
	DeliveredAt        *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
}

// Apply returns a copy of order with the transition applied.
func (t OrderTransition) Apply(order domain.Order) domain.Order {
	order.Status = t.Status
	order.UpdatedAt = t.UpdatedAt
	details := make([]domain.DeliveryEvent, 0, len(order.DeliveryDetails)+1)
	details = append(details, order.DeliveryDetails...)
	order.DeliveryDetails = append(details, t.Entry)
	if t.ShippedAt != nil {
		order.ShippedAt = t.ShippedAt
	}
	if t.DeliveredAt != nil {
		order.DeliveredAt = t.DeliveredAt
	}
	if t.CancelledAt != nil {
		order.CancelledAt = t.CancelledAt
	}
	if t.CancellationReason != nil {
		order.CancellationReason = t.CancellationReason
	}
	return order
}

type OrderListFilter struct {
	Status     []domain.OrderStatus
	UserID     string
	Pagination domain.Pagination
}
