package handlers

import (
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
)

func TestNewRouterDefaultMounts(t *testing.T) {
	health := NewHealthHandlers(WithHealthSystemService(&stubSystemService{
		report: domain.SystemHealthReport{Status: domain.HealthStatusOK},
	}))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	router := NewRouter(WithHealthHandlers(health), WithMetricsHandler(metrics))

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/healthz", http.StatusOK},
		{http.MethodGet, "/readyz", http.StatusOK},
		{http.MethodGet, "/metrics", http.StatusOK},
		{http.MethodGet, "/api/v1/orders/ord_1", http.StatusNotImplemented},
		{http.MethodGet, "/api/v1/admin/orders", http.StatusNotImplemented},
		{http.MethodGet, "/api/v1/unknown", http.StatusNotFound},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestNewRouterMountsOrderGroups(t *testing.T) {
	svc := &stubOrderService{}
	orders := NewOrderHandlers(nil, svc)
	admin := NewAdminOrderHandlers(nil, svc, &stubBulkCoordinator{})
	internal := NewInternalOrderHandlers(&stubBulkCoordinator{})

	rejectInternal := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
	}

	router := NewRouter(
		WithMiddlewares(withIdentity(&auth.Identity{UID: "staff-1", Roles: []string{auth.RoleStaff}})),
		WithOrderRoutes(orders.Routes),
		WithAdminRoutes(admin.Routes),
		WithInternalRoutes(internal.Routes),
		WithInternalMiddlewares(rejectInternal),
	)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/internal/orders:bulk-status", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var routes []string
	require.NoError(t, chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes = append(routes, method+" "+route)
		return nil
	}))
	assert.Contains(t, routes, "PUT /api/v1/admin/orders/{orderID}:status")
	assert.Contains(t, routes, "POST /api/v1/orders/{orderID}:cancel")
}

func TestNewRouterRequestTimeout(t *testing.T) {
	slow := func(r chi.Router) {
		r.Get("/{orderID}", func(w http.ResponseWriter, req *http.Request) {
			<-req.Context().Done()
		})
	}
	router := NewRouter(WithRequestTimeout(10*time.Millisecond), WithOrderRoutes(slow))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/orders/ord_1", nil))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}
