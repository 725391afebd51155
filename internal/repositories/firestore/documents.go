package firestore

import (
	"maps"
	"time"

	domain "github.com/solestore/api/internal/domain"
)

const (
	productsCollection = "products"
	ordersCollection   = "orders"
	countersCollection = "counters"
)

// productDocument is the products/{id} shape. Catalog management owns every field except the stock
// block, which only the stock ledger writes.
type productDocument struct {
	Name           string         `firestore:"name"`
	Price          int64          `firestore:"price"`
	Currency       string         `firestore:"currency"`
	Images         []string       `firestore:"images"`
	AvailableSizes []string       `firestore:"availableSizes"`
	IsAvailable    bool           `firestore:"isAvailable"`
	SizeStock      map[string]int `firestore:"sizeStock"`
	TotalStock     int            `firestore:"totalStock"`
	InStock        bool           `firestore:"inStock"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
	StockVersion   int64          `firestore:"stockVersion,omitempty"`
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:             id,
		Name:           d.Name,
		Price:          d.Price,
		Currency:       d.Currency,
		Images:         append([]string(nil), d.Images...),
		AvailableSizes: append([]string(nil), d.AvailableSizes...),
		IsAvailable:    d.IsAvailable,
		SizeStock:      maps.Clone(d.SizeStock),
		TotalStock:     d.TotalStock,
		InStock:        d.InStock,
		UpdatedAt:      d.UpdatedAt,
		StockVersion:   d.StockVersion,
	}
}

func (d productDocument) stock(id string) domain.ProductStock {
	stock := domain.ProductStock{
		ProductID:  id,
		SizeStock:  maps.Clone(d.SizeStock),
		TotalStock: d.TotalStock,
		InStock:    d.InStock,
		UpdatedAt:  d.UpdatedAt,
	}
	if stock.SizeStock == nil {
		stock.SizeStock = map[string]int{}
	}
	return stock
}

type orderItemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Image     string `firestore:"image"`
	Price     int64  `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	Size      string `firestore:"size"`
}

type shippingDocument struct {
	Name       string `firestore:"name"`
	Email      string `firestore:"email"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type paymentDocument struct {
	Amount        int64      `firestore:"amount"`
	Currency      string     `firestore:"currency"`
	Status        string     `firestore:"status"`
	Method        string     `firestore:"method,omitempty"`
	PayerID       string     `firestore:"payerId,omitempty"`
	PayerEmail    string     `firestore:"payerEmail,omitempty"`
	TransactionID string     `firestore:"transactionId,omitempty"`
	PaidAt        *time.Time `firestore:"paidAt,omitempty"`
}

type deliveryEventDocument struct {
	Status    string    `firestore:"status"`
	Message   string    `firestore:"message"`
	Location  *string   `firestore:"location,omitempty"`
	Timestamp time.Time `firestore:"timestamp"`
	UpdatedBy *string   `firestore:"updatedBy,omitempty"`
}

type totalsDocument struct {
	Subtotal int64 `firestore:"subtotal"`
	Fees     int64 `firestore:"fees"`
	Tax      int64 `firestore:"tax"`
	Shipping int64 `firestore:"shipping"`
	Total    int64 `firestore:"total"`
}

type orderDocument struct {
	OrderNumber           string                  `firestore:"orderNumber"`
	UserID                string                  `firestore:"userId"`
	Status                string                  `firestore:"status"`
	Currency              string                  `firestore:"currency"`
	Items                 []orderItemDocument     `firestore:"items"`
	Shipping              shippingDocument        `firestore:"shippingDetails"`
	Payment               paymentDocument         `firestore:"paymentDetails"`
	Totals                totalsDocument          `firestore:"totals"`
	DeliveryDetails       []deliveryEventDocument `firestore:"deliveryDetails"`
	CancellationReason    *string                 `firestore:"cancellationReason,omitempty"`
	EstimatedDeliveryDate *time.Time              `firestore:"estimatedDeliveryDate,omitempty"`
	CreatedAt             time.Time               `firestore:"createdAt"`
	UpdatedAt             time.Time               `firestore:"updatedAt"`
	ShippedAt             *time.Time              `firestore:"shippedAt,omitempty"`
	DeliveredAt           *time.Time              `firestore:"deliveredAt,omitempty"`
	CancelledAt           *time.Time              `firestore:"cancelledAt,omitempty"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Items:       make([]orderItemDocument, 0, len(order.Items)),
		Shipping:    shippingDocument(order.Shipping),
		Payment:     paymentDocument(order.Payment),
		Totals:      totalsDocument(order.Totals),
		CreatedAt:   order.CreatedAt.UTC(),
		UpdatedAt:   order.UpdatedAt.UTC(),

		CancellationReason:    order.CancellationReason,
		EstimatedDeliveryDate: order.EstimatedDeliveryDate,
		ShippedAt:             order.ShippedAt,
		DeliveredAt:           order.DeliveredAt,
		CancelledAt:           order.CancelledAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument(item))
	}
	doc.DeliveryDetails = make([]deliveryEventDocument, 0, len(order.DeliveryDetails))
	for _, event := range order.DeliveryDetails {
		doc.DeliveryDetails = append(doc.DeliveryDetails, deliveryEventDocument(event))
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:                    id,
		OrderNumber:           d.OrderNumber,
		UserID:                d.UserID,
		Status:                domain.OrderStatus(d.Status),
		Currency:              d.Currency,
		Items:                 make([]domain.OrderItem, 0, len(d.Items)),
		Shipping:              domain.ShippingDetails(d.Shipping),
		Payment:               domain.PaymentDetails(d.Payment),
		Totals:                domain.OrderTotals(d.Totals),
		DeliveryDetails:       make([]domain.DeliveryEvent, 0, len(d.DeliveryDetails)),
		CancellationReason:    d.CancellationReason,
		EstimatedDeliveryDate: d.EstimatedDeliveryDate,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
		ShippedAt:             d.ShippedAt,
		DeliveredAt:           d.DeliveredAt,
		CancelledAt:           d.CancelledAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem(item))
	}
	for _, event := range d.DeliveryDetails {
		order.DeliveryDetails = append(order.DeliveryDetails, domain.DeliveryEvent(event))
	}
	return order
}
