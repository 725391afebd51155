package services

import (
	"context"
	"time"

	domain "github.com/solestore/api/internal/domain"
)

// OrderService runs the order lifecycle: checkout, status transitions and reads.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (OrderResult, error)
	UpdateOrderStatus(ctx context.Context, cmd UpdateStatusCommand) (OrderResult, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (OrderResult, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOrdersByStatus(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	GetOrderStats(ctx context.Context) (domain.OrderStats, error)
}

// StockLedger reserves and releases per-size stock. ReserveAll and ReleaseAll either apply every
// line or none of them.
type StockLedger interface {
	Reserve(ctx context.Context, productID, size string, quantity int) (domain.ProductStock, error)
	Release(ctx context.Context, productID, size string, quantity int) (domain.ProductStock, error)
	Get(ctx context.Context, productID string) (domain.ProductStock, error)
	ReserveAll(ctx context.Context, lines []domain.StockLine) error
	ReleaseAll(ctx context.Context, lines []domain.StockLine) error
}

// SnapshotBuilder validates checkout lines against the catalog and freezes their prices.
type SnapshotBuilder interface {
	Build(ctx context.Context, lines []domain.CartSelectionLine) (domain.CartSnapshot, error)
}

// BulkTransitionCoordinator applies one status change to many orders independently.
type BulkTransitionCoordinator interface {
	BulkUpdateStatus(ctx context.Context, cmd BulkUpdateCommand) ([]BulkResult, error)
}

// OrderNotifier delivers lifecycle notifications after a change is committed.
type OrderNotifier interface {
	Notify(ctx context.Context, notification OrderNotification) error
}

// SystemService exposes health information for liveness and readiness checks.
type SystemService interface {
	HealthReport(ctx context.Context) (domain.SystemHealthReport, error)
}

// Metrics receives order lifecycle measurements.
type Metrics interface {
	OrderCreated()
	Transition(from, to domain.OrderStatus, result string)
	StockReservation(result string)
	Notification(kind NotificationKind, result string)
}

// FeeCalculator derives the charges added on top of the snapshot subtotal.
type FeeCalculator func(ctx context.Context, snapshot domain.CartSnapshot, shipping domain.ShippingDetails) (Fees, error)

// Fees are the non-merchandise amounts of an order, in minor units.
type Fees struct {
	Fees     int64
	Tax      int64
	Shipping int64
}

// CreateOrderCommand places an order from a set of cart lines.
type CreateOrderCommand struct {
	UserID   string
	Lines    []domain.CartSelectionLine
	Shipping domain.ShippingDetails
	Payment  domain.PaymentDetails
	ActorID  string
}

// UpdateStatusCommand requests one status transition.
type UpdateStatusCommand struct {
	OrderID  string
	Status   domain.OrderStatus
	ActorID  string
	Message  *string
	Location *string
	Reason   *string
}

// CancelOrderCommand cancels an order and returns its stock.
type CancelOrderCommand struct {
	OrderID string
	Reason  string
	ActorID string
}

// OrderResult is returned by mutating operations. Notified is true when a notification payload was
// handed to the notifier, regardless of delivery success.
type OrderResult struct {
	Order    domain.Order
	Notified bool
}

// OrderListFilter narrows order listings.
type OrderListFilter struct {
	Status     []domain.OrderStatus
	UserID     string
	Pagination domain.Pagination
}

// BulkUpdateCommand applies Status to every order in OrderIDs.
type BulkUpdateCommand struct {
	OrderIDs []string
	Status   domain.OrderStatus
	ActorID  string
	Message  *string
}

// BulkResult is the outcome for one order of a bulk update. Order is nil when Err is set.
type BulkResult struct {
	OrderID  string
	Order    *domain.Order
	Notified bool
	Err      error
}

// NotificationKind identifies the lifecycle event being announced.
type NotificationKind string

const (
	NotificationOrderPlaced    NotificationKind = "order_placed"
	NotificationStatusChanged  NotificationKind = "status_changed"
	NotificationOrderCancelled NotificationKind = "order_cancelled"
)

// OrderNotification carries a committed order snapshot.
type OrderNotification struct {
	Kind           NotificationKind
	Order          domain.Order
	PreviousStatus domain.OrderStatus
	ActorID        string
	OccurredAt     time.Time
}
