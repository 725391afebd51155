package handlers

import (
	"sort"
	"time"

	domain "github.com/solestore/api/internal/domain"
)

type orderResponse struct {
	Order    orderPayload `json:"order"`
	Notified *bool        `json:"notified,omitempty"`
}

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderPayload struct {
	ID                    string                 `json:"id"`
	OrderNumber           string                 `json:"order_number"`
	UserID                string                 `json:"user_id"`
	Status                string                 `json:"status"`
	Currency              string                 `json:"currency"`
	Items                 []orderItemPayload     `json:"items"`
	Shipping              shippingPayload        `json:"shipping"`
	Payment               paymentPayload         `json:"payment"`
	Totals                orderTotalsPayload     `json:"totals"`
	DeliveryDetails       []deliveryEventPayload `json:"delivery_details"`
	CancellationReason    string                 `json:"cancellation_reason,omitempty"`
	EstimatedDeliveryDate string                 `json:"estimated_delivery_date,omitempty"`
	CreatedAt             string                 `json:"created_at"`
	UpdatedAt             string                 `json:"updated_at"`
	ShippedAt             string                 `json:"shipped_at,omitempty"`
	DeliveredAt           string                 `json:"delivered_at,omitempty"`
	CancelledAt           string                 `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Price     int64  `json:"price"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
}

type shippingPayload struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type paymentPayload struct {
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status,omitempty"`
	Method        string     `json:"method,omitempty"`
	PayerID       string     `json:"payer_id,omitempty"`
	PayerEmail    string     `json:"payer_email,omitempty"`
	TransactionID string     `json:"transaction_id,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

type orderTotalsPayload struct {
	Subtotal int64 `json:"subtotal"`
	Fees     int64 `json:"fees"`
	Tax      int64 `json:"tax"`
	Shipping int64 `json:"shipping"`
	Total    int64 `json:"total"`
}

type deliveryEventPayload struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	Location  *string `json:"location,omitempty"`
	Timestamp string  `json:"timestamp"`
	UpdatedBy *string `json:"updated_by,omitempty"`
}

type orderStatsResponse struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	Revenue     int64          `json:"revenue"`
	GeneratedAt string         `json:"generated_at"`
}

type bulkStatusResponse struct {
	Results []bulkResultPayload `json:"results"`
}

type bulkResultPayload struct {
	OrderID       string `json:"order_id"`
	Status        string `json:"status"`
	OrderStatus   string `json:"order_status,omitempty"`
	Notified      bool   `json:"notified,omitempty"`
	Error         string `json:"error,omitempty"`
	CurrentStatus string `json:"current_status,omitempty"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Name:      item.Name,
			Image:     item.Image,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Size:      item.Size,
		})
	}
	events := make([]deliveryEventPayload, 0, len(order.DeliveryDetails))
	for _, event := range order.DeliveryDetails {
		events = append(events, deliveryEventPayload{
			Status:    event.Status,
			Message:   event.Message,
			Location:  event.Location,
			Timestamp: formatTime(event.Timestamp),
			UpdatedBy: event.UpdatedBy,
		})
	}

	payload := orderPayload{
		ID:          order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		Currency:    order.Currency,
		Items:       items,
		Shipping: shippingPayload{
			Name:       order.Shipping.Name,
			Email:      order.Shipping.Email,
			Phone:      order.Shipping.Phone,
			Line1:      order.Shipping.Line1,
			Line2:      order.Shipping.Line2,
			City:       order.Shipping.City,
			State:      order.Shipping.State,
			PostalCode: order.Shipping.PostalCode,
			Country:    order.Shipping.Country,
		},
		Payment: paymentPayload{
			Amount:        order.Payment.Amount,
			Currency:      order.Payment.Currency,
			Status:        order.Payment.Status,
			Method:        order.Payment.Method,
			PayerID:       order.Payment.PayerID,
			PayerEmail:    order.Payment.PayerEmail,
			TransactionID: order.Payment.TransactionID,
			PaidAt:        order.Payment.PaidAt,
		},
		Totals: orderTotalsPayload{
			Subtotal: order.Totals.Subtotal,
			Fees:     order.Totals.Fees,
			Tax:      order.Totals.Tax,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		DeliveryDetails:       events,
		EstimatedDeliveryDate: formatTimePointer(order.EstimatedDeliveryDate),
		CreatedAt:             formatTime(order.CreatedAt),
		UpdatedAt:             formatTime(order.UpdatedAt),
		ShippedAt:             formatTimePointer(order.ShippedAt),
		DeliveredAt:           formatTimePointer(order.DeliveredAt),
		CancelledAt:           formatTimePointer(order.CancelledAt),
	}
	if order.CancellationReason != nil {
		payload.CancellationReason = *order.CancellationReason
	}
	return payload
}

func buildOrderStats(stats domain.OrderStats) orderStatsResponse {
	byStatus := make(map[string]int, len(domain.OrderStatuses))
	for _, status := range domain.OrderStatuses {
		byStatus[string(status)] = stats.ByStatus[status]
	}
	return orderStatsResponse{
		Total:       stats.Total,
		ByStatus:    byStatus,
		Revenue:     stats.Revenue,
		GeneratedAt: formatTime(stats.GeneratedAt),
	}
}

func buildHealthChecks(checks map[string]domain.SystemHealthCheck) []healthCheckPayload {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]healthCheckPayload, 0, len(names))
	for _, name := range names {
		check := checks[name]
		out = append(out, healthCheckPayload{
			Name:      name,
			Status:    check.Status,
			Critical:  check.Critical,
			Detail:    check.Detail,
			Error:     check.Error,
			LatencyMS: check.Latency.Milliseconds(),
			CheckedAt: formatTime(check.CheckedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePointer(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
