package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/platform/auth"
	"github.com/solestore/api/internal/platform/idempotency"
	"github.com/solestore/api/internal/services"
)

type stubOrderService struct {
	createFn func(context.Context, services.CreateOrderCommand) (services.OrderResult, error)
	updateFn func(context.Context, services.UpdateStatusCommand) (services.OrderResult, error)
	cancelFn func(context.Context, services.CancelOrderCommand) (services.OrderResult, error)
	getFn    func(context.Context, string) (domain.Order, error)
	listFn   func(context.Context, services.OrderListFilter) (domain.CursorPage[domain.Order], error)
	statsFn  func(context.Context) (domain.OrderStats, error)
}

func (s *stubOrderService) CreateOrder(ctx context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.OrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) UpdateOrderStatus(ctx context.Context, cmd services.UpdateStatusCommand) (services.OrderResult, error) {
	if s.updateFn != nil {
		return s.updateFn(ctx, cmd)
	}
	return services.OrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.OrderResult, error) {
	if s.cancelFn != nil {
		return s.cancelFn(ctx, cmd)
	}
	return services.OrderResult{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, orderID)
	}
	return domain.Order{}, errors.New("not implemented")
}

func (s *stubOrderService) GetOrdersByStatus(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[domain.Order]{}, nil
}

func (s *stubOrderService) GetOrderStats(ctx context.Context) (domain.OrderStats, error) {
	if s.statsFn != nil {
		return s.statsFn(ctx)
	}
	return domain.OrderStats{}, nil
}

var testNow = time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)

func sampleOrder(id, userID string, status domain.OrderStatus) domain.Order {
	return domain.Order{
		ID:          id,
		OrderNumber: "SS-2024-000001",
		UserID:      userID,
		Status:      status,
		Currency:    "USD",
		Items: []domain.OrderItem{
			{ProductID: "prod_runner", Name: "Runner", Price: 12000, Quantity: 1, Size: "42"},
		},
		Totals: domain.OrderTotals{Subtotal: 12000, Total: 12000},
		DeliveryDetails: []domain.DeliveryEvent{
			{Status: domain.DeliveryStatusOrderPlaced, Message: "Order placed", Timestamp: testNow},
		},
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
}

// withIdentity stands in for the Firebase middleware.
func withIdentity(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity != nil {
				r = r.WithContext(auth.WithIdentity(r.Context(), identity))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func orderRouter(h *OrderHandlers, identity *auth.Identity) http.Handler {
	router := chi.NewRouter()
	router.Use(withIdentity(identity))
	router.Route("/orders", h.Routes)
	return router
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

const checkoutBody = `{
	"items": [{"product_id": "prod_runner", "size": "42", "quantity": 1}],
	"shipping": {"name": "Ada", "email": "ada@example.com", "line1": "1 Main St", "city": "Springfield", "postal_code": "12345", "country": "US"},
	"payment": {"amount": 12000, "currency": "USD", "status": "paid", "transaction_id": "txn_1"}
}`

func TestOrderHandlersCreateOrder(t *testing.T) {
	var captured services.CreateOrderCommand
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
			captured = cmd
			return services.OrderResult{Order: sampleOrder("ord_1", cmd.UserID, domain.OrderStatusPending), Notified: true}, nil
		},
	}
	router := orderRouter(NewOrderHandlers(nil, svc), &auth.Identity{UID: "user-1"})

	req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/v1/orders/ord_1", rec.Header().Get("Location"))
	assert.Equal(t, "user-1", captured.UserID)
	assert.Equal(t, "user-1", captured.ActorID)
	require.Len(t, captured.Lines, 1)
	assert.Equal(t, domain.CartSelectionLine{ProductID: "prod_runner", Size: "42", Quantity: 1}, captured.Lines[0])
	assert.Equal(t, "12345", captured.Shipping.PostalCode)
	assert.Equal(t, "txn_1", captured.Payment.TransactionID)

	body := decodeBody(t, rec)
	order := body["order"].(map[string]any)
	assert.Equal(t, "ord_1", order["id"])
	assert.Equal(t, "pending", order["status"])
	assert.Equal(t, true, body["notified"])
}

func TestOrderHandlersCreateOrderValidation(t *testing.T) {
	router := orderRouter(NewOrderHandlers(nil, &stubOrderService{}), &auth.Identity{UID: "user-1"})

	cases := map[string]string{
		"empty body":    ``,
		"no items":      `{"items": []}`,
		"unknown field": `{"items": [{"product_id": "p", "size": "42", "quantity": 1}], "coupon": "FREE"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(body)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "invalid_request", decodeBody(t, rec)["error"])
		})
	}
}

func TestOrderHandlersCreateOrderStockErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		reason string
	}{
		{
			name: "insufficient stock",
			err:  fmt.Errorf("reserve: %w", &services.InsufficientStockError{ProductID: "prod_runner", Size: "42", Requested: 2, Available: 1}),
			code: "insufficient_stock",
		},
		{
			name:   "line unavailable",
			err:    &services.LineItemUnavailableError{ProductID: "prod_runner", Size: "42", Reason: services.UnavailableSizeNotOffered},
			code:   "line_item_unavailable",
			reason: services.UnavailableSizeNotOffered,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubOrderService{
				createFn: func(context.Context, services.CreateOrderCommand) (services.OrderResult, error) {
					return services.OrderResult{}, tc.err
				},
			}
			router := orderRouter(NewOrderHandlers(nil, svc), &auth.Identity{UID: "user-1"})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody)))

			require.Equal(t, http.StatusConflict, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, tc.code, body["error"])
			assert.Equal(t, "prod_runner", body["product_id"])
			assert.Equal(t, "42", body["size"])
			if tc.reason != "" {
				assert.Equal(t, tc.reason, body["reason"])
			}
		})
	}
}

func TestOrderHandlersCreateOrderRateLimited(t *testing.T) {
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
			return services.OrderResult{Order: sampleOrder("ord_1", cmd.UserID, domain.OrderStatusPending)}, nil
		},
	}
	clock := func() time.Time { return testNow }
	router := orderRouter(NewOrderHandlers(nil, svc, WithCheckoutRateLimit(1, time.Minute, clock)), &auth.Identity{UID: "user-1"})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody)))
	require.Equal(t, http.StatusCreated, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody)))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limited", decodeBody(t, second)["error"])
}

func TestOrderHandlersCreateOrderIdempotent(t *testing.T) {
	calls := 0
	svc := &stubOrderService{
		createFn: func(_ context.Context, cmd services.CreateOrderCommand) (services.OrderResult, error) {
			calls++
			return services.OrderResult{Order: sampleOrder(fmt.Sprintf("ord_%d", calls), cmd.UserID, domain.OrderStatusPending)}, nil
		},
	}
	store := idempotency.NewMemoryStore()
	handlers := NewOrderHandlers(nil, svc, WithOrderIdempotency(idempotency.Middleware(store)))
	router := orderRouter(handlers, &auth.Identity{UID: "user-1"})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody))
		req.Header.Set("Idempotency-Key", "checkout-1")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusCreated, first.Code)
	second := send()
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replay"))
	assert.Equal(t, 1, calls)
	assert.JSONEq(t, first.Body.String(), second.Body.String())

	missing := httptest.NewRecorder()
	router.ServeHTTP(missing, httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(checkoutBody)))
	assert.Equal(t, http.StatusBadRequest, missing.Code)
}

func TestOrderHandlersGetOrderOwnership(t *testing.T) {
	svc := &stubOrderService{
		getFn: func(_ context.Context, id string) (domain.Order, error) {
			switch id {
			case "ord_mine":
				return sampleOrder(id, "user-1", domain.OrderStatusShipped), nil
			case "ord_theirs":
				return sampleOrder(id, "user-2", domain.OrderStatusShipped), nil
			default:
				return domain.Order{}, fmt.Errorf("%w: %s", services.ErrOrderNotFound, id)
			}
		},
	}
	router := orderRouter(NewOrderHandlers(nil, svc), &auth.Identity{UID: "user-1"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_mine", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	order := decodeBody(t, rec)["order"].(map[string]any)
	assert.Equal(t, "shipped", order["status"])
	events := order["delivery_details"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "order_placed", events[0].(map[string]any)["status"])

	for _, id := range []string{"ord_theirs", "ord_missing"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "order_not_found", decodeBody(t, rec)["error"])
	}
}

func TestOrderHandlersRequireIdentity(t *testing.T) {
	router := orderRouter(NewOrderHandlers(nil, &stubOrderService{}), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderHandlersCancelOrder(t *testing.T) {
	orders := map[string]domain.Order{
		"ord_pending":   sampleOrder("ord_pending", "user-1", domain.OrderStatusPending),
		"ord_confirmed": sampleOrder("ord_confirmed", "user-1", domain.OrderStatusConfirmed),
	}
	var captured services.CancelOrderCommand
	svc := &stubOrderService{
		getFn: func(_ context.Context, id string) (domain.Order, error) {
			return orders[id], nil
		},
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.OrderResult, error) {
			captured = cmd
			cancelled := orders[cmd.OrderID]
			cancelled.Status = domain.OrderStatusCancelled
			cancelled.CancellationReason = &cmd.Reason
			return services.OrderResult{Order: cancelled, Notified: true}, nil
		},
	}
	router := orderRouter(NewOrderHandlers(nil, svc), &auth.Identity{UID: "user-1"})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord_pending:cancel", strings.NewReader(`{"reason":"changed my mind"}`)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, services.CancelOrderCommand{OrderID: "ord_pending", Reason: "changed my mind", ActorID: "user-1"}, captured)
	order := decodeBody(t, rec)["order"].(map[string]any)
	assert.Equal(t, "cancelled", order["status"])
	assert.Equal(t, "changed my mind", order["cancellation_reason"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/orders/ord_confirmed:cancel", nil))
	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "order_not_cancellable", body["error"])
	assert.Equal(t, "confirmed", body["current_status"])
}
