package services

import (
	"context"
	"slices"
	"time"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
)

var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending: {
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusConfirmed: {
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
	domain.OrderStatusShipped: {
		domain.OrderStatusDelivered,
		domain.OrderStatusCancelled,
	},
}

var defaultStatusMessages = map[domain.OrderStatus]string{
	domain.OrderStatusConfirmed: "Order confirmed",
	domain.OrderStatusShipped:   "Order shipped",
	domain.OrderStatusDelivered: "Order delivered",
	domain.OrderStatusCancelled: "Order cancelled",
}

// canTransition reports whether from may move to to. Same-status moves are never allowed.
func canTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

// transitionHook runs side effects for a target status. prepare executes before the transition is
// persisted and may enrich it; rollback undoes prepare when persisting fails.
type transitionHook struct {
	prepare  func(ctx context.Context, order domain.Order, transition *repositories.OrderTransition) error
	rollback func(ctx context.Context, order domain.Order, transition repositories.OrderTransition)
}

func (s *orderService) transitionHooks() map[domain.OrderStatus]transitionHook {
	return map[domain.OrderStatus]transitionHook{
		domain.OrderStatusCancelled: {prepare: s.releaseOnCancel, rollback: s.restockOnFailedCancel},
		domain.OrderStatusShipped:   {prepare: stampShipped},
		domain.OrderStatusDelivered: {prepare: stampDelivered},
	}
}

func (s *orderService) releaseOnCancel(ctx context.Context, order domain.Order, transition *repositories.OrderTransition) error {
	if err := s.ledger.ReleaseAll(ctx, order.StockLines()); err != nil {
		return err
	}
	transition.CancelledAt = valuePtr(transition.UpdatedAt)
	return nil
}

// restockOnFailedCancel takes back stock released for a cancellation that was not persisted. When
// another checkout already claimed the units the order keeps its status while the stock stays
// released; that case is counted as over_released and logged for reconciliation.
func (s *orderService) restockOnFailedCancel(ctx context.Context, order domain.Order, _ repositories.OrderTransition) {
	if err := s.ledger.ReserveAll(context.WithoutCancel(ctx), order.StockLines()); err != nil {
		s.metrics.StockReservation(resultOverReleased)
		s.logger(ctx, "order.cancel.restock_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}
}

func stampShipped(_ context.Context, order domain.Order, transition *repositories.OrderTransition) error {
	if order.ShippedAt == nil {
		transition.ShippedAt = valuePtr(transition.UpdatedAt)
	}
	return nil
}

func stampDelivered(ctx context.Context, order domain.Order, transition *repositories.OrderTransition) error {
	if order.DeliveredAt == nil {
		transition.DeliveredAt = valuePtr(transition.UpdatedAt)
	}
	return stampShipped(ctx, order, transition)
}

func statusMessage(status domain.OrderStatus, message, reason *string) string {
	if status == domain.OrderStatusCancelled && reason != nil {
		return *reason
	}
	if message != nil {
		return *message
	}
	return defaultStatusMessages[status]
}

func newDeliveryEvent(status domain.OrderStatus, message string, location *string, at time.Time, actorID string) domain.DeliveryEvent {
	return domain.DeliveryEvent{
		Status:    string(status),
		Message:   message,
		Location:  location,
		Timestamp: at,
		UpdatedBy: optionalString(actorID),
	}
}
