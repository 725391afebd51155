package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/platform/auth"
	"github.com/solestore/api/internal/platform/httpx"
	"github.com/solestore/api/internal/services"
)

const maxCheckoutLines = 50

type createOrderRequest struct {
	Items    []orderLineRequest `json:"items"`
	Shipping shippingRequest    `json:"shipping"`
	Payment  paymentRequest     `json:"payment"`
}

type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Size      string `json:"size"`
	Quantity  int    `json:"quantity"`
}

type shippingRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type paymentRequest struct {
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Method        string     `json:"method"`
	PayerID       string     `json:"payer_id"`
	PayerEmail    string     `json:"payer_email"`
	TransactionID string     `json:"transaction_id"`
	PaidAt        *time.Time `json:"paid_at"`
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderHandlers exposes checkout and order endpoints for signed-in shoppers.
type OrderHandlers struct {
	authn       *auth.Authenticator
	orders      services.OrderService
	idempotency func(http.Handler) http.Handler
	limiter     rateLimiter
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithOrderIdempotency guards order creation with the given middleware.
func WithOrderIdempotency(mw func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.idempotency = mw
	}
}

// WithCheckoutRateLimit throttles order creation per user. Non-positive values disable it.
func WithCheckoutRateLimit(limit int, window time.Duration, clock func() time.Time) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.limiter = newFixedWindowLimiter(limit, window, clock)
	}
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{authn: authn, orders: orders}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	create := http.Handler(http.HandlerFunc(h.createOrder))
	if h.idempotency != nil {
		create = h.idempotency(create)
	}
	r.Method(http.MethodPost, "/", create)
	r.Get("/{orderID}", h.getOrder)
	r.Post("/{orderID}:cancel", h.cancelOrder)
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	if h.limiter != nil {
		if allowed, wait := h.limiter.Allow(identity.UID); !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			httpx.WriteError(ctx, w, httpx.NewError(codeRateLimited, "too many checkout attempts", http.StatusTooManyRequests))
			return
		}
	}

	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeBadRequest(ctx, w, err.Error())
		return
	}
	if len(req.Items) == 0 {
		writeBadRequest(ctx, w, "items must not be empty")
		return
	}
	if len(req.Items) > maxCheckoutLines {
		writeBadRequest(ctx, w, "too many items in a single order")
		return
	}

	lines := make([]domain.CartSelectionLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, domain.CartSelectionLine{
			ProductID: strings.TrimSpace(item.ProductID),
			Size:      strings.TrimSpace(item.Size),
			Quantity:  item.Quantity,
		})
	}

	result, err := h.orders.CreateOrder(ctx, services.CreateOrderCommand{
		UserID:   identity.UID,
		Lines:    lines,
		Shipping: req.Shipping.toDomain(),
		Payment:  req.Payment.toDomain(),
		ActorID:  identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/orders/"+result.Order.ID)
	httpx.WriteJSON(w, http.StatusCreated, orderResponse{
		Order:    buildOrderPayload(result.Order),
		Notified: &result.Notified,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		writeServiceUnavailable(ctx, w)
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	order, ok := h.loadOwnedOrder(w, r, identity)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
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

	order, ok := h.loadOwnedOrder(w, r, identity)
	if !ok {
		return
	}
	// Shoppers may only withdraw orders that have not been confirmed yet.
	if order.Status != domain.OrderStatusPending {
		httpx.WriteError(ctx, w, httpx.NewError(codeOrderNotCancellable, "order can no longer be cancelled", http.StatusConflict).
			WithDetails(map[string]any{"current_status": string(order.Status)}))
		return
	}

	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		OrderID: order.ID,
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

// loadOwnedOrder fetches the order named in the path and hides orders owned by someone else.
func (h *OrderHandlers) loadOwnedOrder(w http.ResponseWriter, r *http.Request, identity *auth.Identity) (domain.Order, bool) {
	ctx := r.Context()
	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		writeBadRequest(ctx, w, "order id is required")
		return domain.Order{}, false
	}
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return domain.Order{}, false
	}
	if order.UserID != identity.UID {
		httpx.WriteError(ctx, w, httpx.NewError(codeOrderNotFound, "order not found", http.StatusNotFound))
		return domain.Order{}, false
	}
	return order, true
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError(httpx.CodeUnauthenticated, "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func (s shippingRequest) toDomain() domain.ShippingDetails {
	return domain.ShippingDetails{
		Name:       s.Name,
		Email:      s.Email,
		Phone:      s.Phone,
		Line1:      s.Line1,
		Line2:      s.Line2,
		City:       s.City,
		State:      s.State,
		PostalCode: s.PostalCode,
		Country:    s.Country,
	}
}

func (p paymentRequest) toDomain() domain.PaymentDetails {
	return domain.PaymentDetails{
		Amount:        p.Amount,
		Currency:      strings.TrimSpace(p.Currency),
		Status:        strings.TrimSpace(p.Status),
		Method:        strings.TrimSpace(p.Method),
		PayerID:       strings.TrimSpace(p.PayerID),
		PayerEmail:    strings.TrimSpace(p.PayerEmail),
		TransactionID: strings.TrimSpace(p.TransactionID),
		PaidAt:        p.PaidAt,
	}
}
