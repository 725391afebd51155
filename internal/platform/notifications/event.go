// Package notifications delivers order lifecycle events to external sinks.
package notifications

import (
	"encoding/json"
	"time"

	"github.com/solestore/api/internal/services"
)

// Event is the wire payload shared by every sink.
type Event struct {
	Kind           string      `json:"kind"`
	OrderID        string      `json:"orderId"`
	OrderNumber    string      `json:"orderNumber"`
	UserID         string      `json:"userId"`
	Status         string      `json:"status"`
	PreviousStatus string      `json:"previousStatus,omitempty"`
	ActorID        string      `json:"actorId,omitempty"`
	Currency       string      `json:"currency"`
	Total          int64       `json:"total"`
	Items          []EventItem `json:"items"`
	Message        string      `json:"message,omitempty"`
	OccurredAt     time.Time   `json:"occurredAt"`
}

type EventItem struct {
	ProductID string `json:"productId"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

// NewEvent flattens a notification into its wire form. Message is the latest ledger entry.
func NewEvent(n services.OrderNotification) Event {
	order := n.Order
	items := make([]EventItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, EventItem{ProductID: item.ProductID, Size: item.Size, Quantity: item.Quantity})
	}
	event := Event{
		Kind:        string(n.Kind),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      string(order.Status),
		ActorID:     n.ActorID,
		Currency:    order.Currency,
		Total:       order.Totals.Total,
		Items:       items,
		OccurredAt:  n.OccurredAt.UTC(),
	}
	if n.PreviousStatus != "" && n.PreviousStatus != order.Status {
		event.PreviousStatus = string(n.PreviousStatus)
	}
	if len(order.DeliveryDetails) > 0 {
		event.Message = order.DeliveryDetails[len(order.DeliveryDetails)-1].Message
	}
	return event
}

// Attributes are the routing attributes attached where the transport supports them.
func (e Event) Attributes() map[string]string {
	attrs := map[string]string{
		"orderId":     e.OrderID,
		"orderNumber": e.OrderNumber,
		"kind":        e.Kind,
		"status":      e.Status,
	}
	for key, value := range attrs {
		if value == "" {
			delete(attrs, key)
		}
	}
	return attrs
}

// RoutingKey is "order.<kind>".
func (e Event) RoutingKey() string {
	return "order." + e.Kind
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
