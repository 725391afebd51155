package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/platform/auth"
	"github.com/solestore/api/internal/services"
)

type stubBulkCoordinator struct {
	fn func(context.Context, services.BulkUpdateCommand) ([]services.BulkResult, error)
}

func (s *stubBulkCoordinator) BulkUpdateStatus(ctx context.Context, cmd services.BulkUpdateCommand) ([]services.BulkResult, error) {
	if s.fn != nil {
		return s.fn(ctx, cmd)
	}
	return nil, errors.New("not implemented")
}

var staffIdentity = &auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}}

func adminRouter(h *AdminOrderHandlers) http.Handler {
	router := chi.NewRouter()
	router.Use(withIdentity(staffIdentity))
	router.Route("/admin", h.Routes)
	return router
}

func TestAdminOrderHandlersListOrders(t *testing.T) {
	var captured services.OrderListFilter
	svc := &stubOrderService{
		listFn: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[domain.Order], error) {
			captured = filter
			return domain.CursorPage[domain.Order]{
				Items:         []domain.Order{sampleOrder("ord_1", "user-1", domain.OrderStatusPending)},
				NextPageToken: "next",
			}, nil
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders?status=pending,confirmed&status=SHIPPED&page_size=500", nil))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusConfirmed, domain.OrderStatusShipped}, captured.Status)
	assert.Equal(t, 100, captured.Pagination.PageSize)
	body := decodeBody(t, rec)
	assert.Equal(t, "next", body["next_page_token"])
	assert.Len(t, body["items"], 1)
}

func TestAdminOrderHandlersListOrdersRejectsBadInput(t *testing.T) {
	router := adminRouter(NewAdminOrderHandlers(nil, &stubOrderService{}, nil))
	for _, query := range []string{"status=lost", "page_size=abc", "page_token=%21%21"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders?"+query, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}

func TestAdminOrderHandlersStats(t *testing.T) {
	svc := &stubOrderService{
		statsFn: func(context.Context) (domain.OrderStats, error) {
			return domain.OrderStats{
				Total:       3,
				ByStatus:    map[domain.OrderStatus]int{domain.OrderStatusPending: 2, domain.OrderStatusCancelled: 1},
				Revenue:     24000,
				GeneratedAt: testNow,
			}, nil
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 24000, body["revenue"])
	byStatus := body["by_status"].(map[string]any)
	assert.EqualValues(t, 2, byStatus["pending"])
	assert.EqualValues(t, 0, byStatus["shipped"])
}

func TestAdminOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateStatusCommand
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.OrderResult, error) {
			captured = cmd
			order := sampleOrder(cmd.OrderID, "user-1", cmd.Status)
			return services.OrderResult{Order: order, Notified: true}, nil
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, svc, nil))

	body := `{"status":"Shipped","message":"Left the warehouse","location":"Osaka"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1:status", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "ord_1", captured.OrderID)
	assert.Equal(t, domain.OrderStatusShipped, captured.Status)
	assert.Equal(t, "staff-1", captured.ActorID)
	require.NotNil(t, captured.Location)
	assert.Equal(t, "Osaka", *captured.Location)
	assert.Nil(t, captured.Reason)

	payload := decodeBody(t, rec)
	assert.Equal(t, true, payload["notified"])
	assert.Equal(t, "shipped", payload["order"].(map[string]any)["status"])
}

func TestAdminOrderHandlersUpdateStatusInvalidTransition(t *testing.T) {
	svc := &stubOrderService{
		updateFn: func(_ context.Context, cmd services.UpdateStatusCommand) (services.OrderResult, error) {
			return services.OrderResult{}, &services.InvalidTransitionError{
				OrderID:   cmd.OrderID,
				Current:   domain.OrderStatusDelivered,
				Requested: cmd.Status,
			}
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1:status", strings.NewReader(`{"status":"pending"}`)))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "invalid_transition", body["error"])
	assert.Equal(t, "delivered", body["current_status"])
	assert.Equal(t, "pending", body["requested_status"])

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/admin/orders/ord_1:status", strings.NewReader(`{"status":"lost"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOrderHandlersCancelAnyStatus(t *testing.T) {
	var captured services.CancelOrderCommand
	svc := &stubOrderService{
		cancelFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.OrderResult, error) {
			captured = cmd
			return services.OrderResult{Order: sampleOrder(cmd.OrderID, "user-1", domain.OrderStatusCancelled)}, nil
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, svc, nil))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders/ord_9:cancel", strings.NewReader(`{"reason":"fraud"}`)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.CancelOrderCommand{OrderID: "ord_9", Reason: "fraud", ActorID: "staff-1"}, captured)
}

func TestAdminOrderHandlersBulkStatus(t *testing.T) {
	var captured services.BulkUpdateCommand
	bulk := &stubBulkCoordinator{
		fn: func(_ context.Context, cmd services.BulkUpdateCommand) ([]services.BulkResult, error) {
			captured = cmd
			shipped := sampleOrder("ord_a", "user-1", domain.OrderStatusShipped)
			return []services.BulkResult{
				{OrderID: "ord_a", Order: &shipped, Notified: true},
				{OrderID: "ord_b", Err: &services.InvalidTransitionError{OrderID: "ord_b", Current: domain.OrderStatusDelivered, Requested: domain.OrderStatusShipped}},
				{OrderID: "ord_c", Err: fmt.Errorf("%w: ord_c", services.ErrOrderNotFound)},
			}, nil
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, &stubOrderService{}, bulk))

	body := `{"order_ids":["ord_a","ord_b","ord_c"],"status":"shipped","message":"Batch pickup"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders:bulk-status", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "staff-1", captured.ActorID)
	assert.Equal(t, []string{"ord_a", "ord_b", "ord_c"}, captured.OrderIDs)
	require.NotNil(t, captured.Message)

	results := decodeBody(t, rec)["results"].([]any)
	require.Len(t, results, 3)
	first := results[0].(map[string]any)
	assert.Equal(t, "updated", first["status"])
	assert.Equal(t, "shipped", first["order_status"])
	second := results[1].(map[string]any)
	assert.Equal(t, "failed", second["status"])
	assert.Equal(t, "invalid_transition", second["error"])
	assert.Equal(t, "delivered", second["current_status"])
	third := results[2].(map[string]any)
	assert.Equal(t, "order_not_found", third["error"])
}

func TestAdminOrderHandlersBulkStatusBatchErrors(t *testing.T) {
	bulk := &stubBulkCoordinator{
		fn: func(context.Context, services.BulkUpdateCommand) ([]services.BulkResult, error) {
			return nil, fmt.Errorf("%w: batch of 500 exceeds limit 200", services.ErrOrderInvalidInput)
		},
	}
	router := adminRouter(NewAdminOrderHandlers(nil, &stubOrderService{}, bulk))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/orders:bulk-status", strings.NewReader(`{"order_ids":["a"],"status":"shipped"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInternalOrderHandlersUseServiceSubject(t *testing.T) {
	var captured services.BulkUpdateCommand
	bulk := &stubBulkCoordinator{
		fn: func(_ context.Context, cmd services.BulkUpdateCommand) ([]services.BulkResult, error) {
			captured = cmd
			return []services.BulkResult{}, nil
		},
	}
	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithServiceIdentity(r.Context(), &auth.ServiceIdentity{Subject: "scheduler@project.iam.gserviceaccount.com"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Route("/internal", NewInternalOrderHandlers(bulk).Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/orders:bulk-status", strings.NewReader(`{"order_ids":["ord_a"],"status":"delivered"}`)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "service:scheduler@project.iam.gserviceaccount.com", captured.ActorID)
	assert.Equal(t, domain.OrderStatusDelivered, captured.Status)
}

func TestInternalOrderHandlersRequireServiceIdentity(t *testing.T) {
	router := chi.NewRouter()
	router.Route("/internal", NewInternalOrderHandlers(&stubBulkCoordinator{}).Routes)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/orders:bulk-status", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
