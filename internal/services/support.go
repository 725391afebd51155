package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
)

const tracerName = "github.com/solestore/api/internal/services"

// Metric results shared by the services.
const (
	resultApplied      = "applied"
	resultRejected     = "rejected"
	resultFailed       = "failed"
	resultReserved     = "reserved"
	resultInsufficient = "insufficient"
	resultSent         = "sent"
	// resultOverReleased marks a failed cancellation whose released stock could not be taken back.
	resultOverReleased = "over_released"
)

type logFunc func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}

type noopMetrics struct{}

func (noopMetrics) OrderCreated()                                             {}
func (noopMetrics) Transition(domain.OrderStatus, domain.OrderStatus, string) {}
func (noopMetrics) StockReservation(string)                                   {}
func (noopMetrics) Notification(NotificationKind, string)                     {}

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return fmt.Errorf("order: repository error: %w", err)
}

func valuePtr[T any](value T) *T {
	return &value
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
