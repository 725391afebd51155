package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/solestore/api/internal/platform/httpx"
	"github.com/solestore/api/internal/services"
)

// Order error codes returned in the JSON envelope.
const (
	codeInsufficientStock   = "insufficient_stock"
	codeLineItemUnavailable = "line_item_unavailable"
	codeInvalidTransition   = "invalid_transition"
	codeOrderNotFound       = "order_not_found"
	codeOrderConflict       = "order_conflict"
	codeOrderNotCancellable = "order_not_cancellable"
	codeOrderUnavailable    = "order_service_unavailable"
	codeRateLimited         = "rate_limited"
)

// orderError maps service errors to the HTTP envelope, attaching the details clients need to react
// to stock and transition failures.
func orderError(err error) httpx.Error {
	var stockErr *services.InsufficientStockError
	var lineErr *services.LineItemUnavailableError
	var transitionErr *services.InvalidTransitionError

	switch {
	case errors.As(err, &stockErr):
		return httpx.NewError(codeInsufficientStock, "insufficient stock for requested size", http.StatusConflict).
			WithDetails(map[string]any{
				"product_id": stockErr.ProductID,
				"size":       stockErr.Size,
				"requested":  stockErr.Requested,
				"available":  stockErr.Available,
			})
	case errors.Is(err, services.ErrInsufficientStock):
		return httpx.NewError(codeInsufficientStock, "insufficient stock for requested size", http.StatusConflict)
	case errors.As(err, &lineErr):
		return httpx.NewError(codeLineItemUnavailable, "line item is not available", http.StatusConflict).
			WithDetails(map[string]any{
				"product_id": lineErr.ProductID,
				"size":       lineErr.Size,
				"reason":     lineErr.Reason,
			})
	case errors.Is(err, services.ErrLineItemUnavailable):
		return httpx.NewError(codeLineItemUnavailable, "line item is not available", http.StatusConflict)
	case errors.As(err, &transitionErr):
		return httpx.NewError(codeInvalidTransition, "status transition is not allowed", http.StatusConflict).
			WithDetails(map[string]any{
				"current_status":   string(transitionErr.Current),
				"requested_status": string(transitionErr.Requested),
			})
	case errors.Is(err, services.ErrInvalidTransition):
		return httpx.NewError(codeInvalidTransition, "status transition is not allowed", http.StatusConflict)
	case errors.Is(err, services.ErrOrderNotFound):
		return httpx.NewError(codeOrderNotFound, "order not found", http.StatusNotFound)
	case errors.Is(err, services.ErrOrderInvalidInput):
		return httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrOrderConflict):
		return httpx.NewError(codeOrderConflict, "order was modified concurrently, retry the request", http.StatusConflict)
	case errors.Is(err, context.DeadlineExceeded):
		return httpx.NewError(httpx.CodeUnavailable, "request timed out", http.StatusServiceUnavailable)
	default:
		return httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError)
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	httpx.WriteError(ctx, w, orderError(err))
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, message, http.StatusBadRequest))
}

func writeServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError(codeOrderUnavailable, "order service unavailable", http.StatusServiceUnavailable))
}
