package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/solestore/api/internal/services"
)

// LogNotifier writes events to the log. It is the default sink for local runs.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notifications")}
}

func (l *LogNotifier) Notify(_ context.Context, n services.OrderNotification) error {
	event := NewEvent(n)
	l.logger.Info("order event",
		zap.String("kind", event.Kind),
		zap.String("order_id", event.OrderID),
		zap.String("order_number", event.OrderNumber),
		zap.String("status", event.Status),
		zap.String("previous_status", event.PreviousStatus),
		zap.String("actor_id", event.ActorID),
	)
	return nil
}
