package domain

import (
	"slices"
	"time"
)

// OrderStatus enumerates lifecycle states of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// DeliveryStatusOrderPlaced is the ledger status recorded when an order is created.
const DeliveryStatusOrderPlaced = "order_placed"

// OrderStatuses lists every order status in lifecycle order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return slices.Contains(OrderStatuses, s)
}

// Terminal reports whether no further transitions are possible from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CartSelectionLine is one requested line of a checkout, either from the persisted cart or a
// buy-now selection.
type CartSelectionLine struct {
	ProductID string
	Size      string
	Quantity  int
}

// SnapshotLine freezes catalog data for one checkout line.
type SnapshotLine struct {
	ProductID string
	Name      string
	Image     string
	Price     int64
	Size      string
	Quantity  int
}

// Total returns price times quantity.
func (l SnapshotLine) Total() int64 {
	return l.Price * int64(l.Quantity)
}

// CartSnapshot is the validated, priced view of a checkout. It is never persisted.
type CartSnapshot struct {
	Lines    []SnapshotLine
	Currency string
	Subtotal int64
}

// StockLines converts the snapshot into stock ledger lines.
func (s CartSnapshot) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(s.Lines))
	for _, line := range s.Lines {
		lines = append(lines, StockLine{ProductID: line.ProductID, Size: line.Size, Quantity: line.Quantity})
	}
	return lines
}

// OrderItem is an immutable line of a placed order.
type OrderItem struct {
	ProductID string
	Name      string
	Image     string
	Price     int64
	Quantity  int
	Size      string
}

// ShippingDetails is the delivery address captured at checkout.
type ShippingDetails struct {
	Name       string
	Email      string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// PaymentDetails records the payment signal received from upstream.
type PaymentDetails struct {
	Amount        int64
	Currency      string
	Status        string
	Method        string
	PayerID       string
	PayerEmail    string
	TransactionID string
	PaidAt        *time.Time
}

// DeliveryEvent is one entry of the append-only delivery ledger.
type DeliveryEvent struct {
	Status    string
	Message   string
	Location  *string
	Timestamp time.Time
	UpdatedBy *string
}

// OrderTotals captures the amounts fixed at order creation.
type OrderTotals struct {
	Subtotal int64
	Fees     int64
	Tax      int64
	Shipping int64
	Total    int64
}

// Order is the persisted order aggregate.
type Order struct {
	ID                    string
	OrderNumber           string
	UserID                string
	Status                OrderStatus
	Currency              string
	Items                 []OrderItem
	Shipping              ShippingDetails
	Payment               PaymentDetails
	Totals                OrderTotals
	DeliveryDetails       []DeliveryEvent
	CancellationReason    *string
	EstimatedDeliveryDate *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
	ShippedAt             *time.Time
	DeliveredAt           *time.Time
	CancelledAt           *time.Time
}

// StockLines converts the order items into stock ledger lines.
func (o Order) StockLines() []StockLine {
	lines := make([]StockLine, 0, len(o.Items))
	for _, item := range o.Items {
		lines = append(lines, StockLine{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	return lines
}

// OrderStats aggregates order counts by status.
type OrderStats struct {
	Total       int
	ByStatus    map[OrderStatus]int
	Revenue     int64
	GeneratedAt time.Time
}

// Pagination carries the page size and opaque cursor of an order listing.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage is one page of results plus the token for the next one; the token is empty on the
// last page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
