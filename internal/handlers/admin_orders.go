package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/platform/auth"
	"github.com/solestore/api/internal/platform/httpx"
	"github.com/solestore/api/internal/platform/pagination"
	"github.com/solestore/api/internal/services"
)

type updateStatusRequest struct {
	Status   string  `json:"status"`
	Message  *string `json:"message"`
	Location *string `json:"location"`
	Reason   *string `json:"reason"`
}

type bulkStatusRequest struct {
	OrderIDs []string `json:"order_ids"`
	Status   string   `json:"status"`
	Message  *string  `json:"message"`
}

// AdminOrderHandlers exposes back-office order management for staff and admins.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
	bulk   services.BulkTransitionCoordinator
}

// NewAdminOrderHandlers wires the admin order endpoints.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService, bulk services.BulkTransitionCoordinator) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders, bulk: bulk}
}

// Routes registers the /admin endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/orders", h.listOrders)
	r.Get("/orders/stats", h.orderStats)
	r.Get("/orders/{orderID}", h.getOrder)
	r.Put("/orders/{orderID}:status", h.updateStatus)
	r.Post("/orders/{orderID}:cancel", h.cancelOrder)
	r.Post("/orders:bulk-status", h.bulkUpdateStatus)
}

func (h *AdminOrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	query := r.URL.Query()
	page, err := pagination.Parse(query)
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	statuses, err := parseStatusFilter(query["status"])
	if err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	result, err := h.orders.GetOrdersByStatus(ctx, services.OrderListFilter{
		Status: statuses,
		UserID: strings.TrimSpace(query.Get("user_id")),
		Pagination: domain.Pagination{
			PageSize:  page.PageSize,
			PageToken: page.PageToken,
		},
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(result.Items))
	for _, order := range result.Items {
		items = append(items, buildOrderPayload(order))
	}
	httpx.WriteJSON(w, http.StatusOK, orderListResponse{Items: items, NextPageToken: result.NextPageToken})
}

func (h *AdminOrderHandlers) orderStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	stats, err := h.orders.GetOrderStats(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, buildOrderStats(stats))
}

func (h *AdminOrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	order, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeBadRequest(ctx, w, "status must be one of pending, confirmed, shipped, delivered, cancelled")
		return
	}

	result, err := h.orders.UpdateOrderStatus(ctx, services.UpdateStatusCommand{
		OrderID:  chi.URLParam(r, "orderID"),
		Status:   status,
		ActorID:  identity.UID,
		Message:  req.Message,
		Location: req.Location,
		Reason:   req.Reason,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{
		Order:    buildOrderPayload(result.Order),
		Notified: &result.Notified,
	})
}

func (h *AdminOrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req cancelOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		writeBadRequest(ctx, w, err.Error())
		return
	}

	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Reason:  strings.TrimSpace(req.Reason),
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{
		Order:    buildOrderPayload(result.Order),
		Notified: &result.Notified,
	})
}

func (h *AdminOrderHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	serveBulkStatus(w, r, h.bulk, identity.UID)
}

// serveBulkStatus decodes a bulk request and reports one result per order. Per-order failures never
// fail the batch.
func serveBulkStatus(w http.ResponseWriter, r *http.Request, bulk services.BulkTransitionCoordinator, actorID string) {
	ctx := r.Context()
	if bulk == nil {
		writeServiceUnavailable(ctx, w)
		return
	}

	var req bulkStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	status, ok := parseStatus(req.Status)
	if !ok {
		writeBadRequest(ctx, w, "status must be one of pending, confirmed, shipped, delivered, cancelled")
		return
	}

	results, err := bulk.BulkUpdateStatus(ctx, services.BulkUpdateCommand{
		OrderIDs: req.OrderIDs,
		Status:   status,
		ActorID:  actorID,
		Message:  req.Message,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payload := make([]bulkResultPayload, 0, len(results))
	for _, result := range results {
		payload = append(payload, buildBulkResult(result))
	}
	httpx.WriteJSON(w, http.StatusOK, bulkStatusResponse{Results: payload})
}

func buildBulkResult(result services.BulkResult) bulkResultPayload {
	out := bulkResultPayload{OrderID: result.OrderID, Status: "updated", Notified: result.Notified}
	if result.Err == nil {
		if result.Order != nil {
			out.OrderStatus = string(result.Order.Status)
		}
		return out
	}
	out.Status = "failed"
	out.Error = orderError(result.Err).Code
	var transitionErr *services.InvalidTransitionError
	if errors.As(result.Err, &transitionErr) {
		out.CurrentStatus = string(transitionErr.Current)
	}
	return out
}

func parseStatus(raw string) (domain.OrderStatus, bool) {
	status := domain.OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// parseStatusFilter accepts repeated and comma separated status values.
func parseStatusFilter(values []string) ([]domain.OrderStatus, error) {
	var out []domain.OrderStatus
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			status, ok := parseStatus(part)
			if !ok {
				return nil, errors.New("status filter contains an unknown status")
			}
			out = append(out, status)
		}
	}
	return out, nil
}
