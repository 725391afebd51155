package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/platform/textutil"
	"github.com/solestore/api/internal/repositories"
)

const (
	orderIDPrefix            = "ord_"
	orderCounterID           = "orders"
	defaultOrderNumberPrefix = "SS"
	defaultEstimatedDelivery = 7 * 24 * time.Hour
	maxLedgerTextLength      = 500
	orderPlacedMessage       = "Order placed"
	defaultNotifyTimeout     = 5 * time.Second
)

// OrderServiceDeps bundles the collaborators required to construct an order service.
type OrderServiceDeps struct {
	Orders            repositories.OrderRepository
	Counters          repositories.CounterRepository
	Snapshots         SnapshotBuilder
	Ledger            StockLedger
	Notifier          OrderNotifier
	Fees              FeeCalculator
	UnitOfWork        repositories.UnitOfWork
	Metrics           Metrics
	Clock             func() time.Time
	IDGenerator       func() string
	Logger            func(ctx context.Context, event string, fields map[string]any)
	EstimatedDelivery time.Duration
	NumberPrefix      string
	NotifyTimeout     time.Duration
}

type orderService struct {
	orders            repositories.OrderRepository
	counters          repositories.CounterRepository
	snapshots         SnapshotBuilder
	ledger            StockLedger
	notifier          OrderNotifier
	fees              FeeCalculator
	unitOfWork        repositories.UnitOfWork
	metrics           Metrics
	clock             func() time.Time
	newID             func() string
	logger            logFunc
	estimatedDelivery time.Duration
	numberPrefix      string
	notifyTimeout     time.Duration
	hooks             map[domain.OrderStatus]transitionHook
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errors.New("order service: order repository is required")
	case deps.Counters == nil:
		return nil, errors.New("order service: counter repository is required")
	case deps.Snapshots == nil:
		return nil, errors.New("order service: snapshot builder is required")
	case deps.Ledger == nil:
		return nil, errors.New("order service: stock ledger is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	fees := deps.Fees
	if fees == nil {
		fees = noFees
	}
	unitOfWork := deps.UnitOfWork
	if unitOfWork == nil {
		unitOfWork = noopUnitOfWork{}
	}
	estimated := deps.EstimatedDelivery
	if estimated <= 0 {
		estimated = defaultEstimatedDelivery
	}
	notifyTimeout := deps.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = defaultNotifyTimeout
	}
	prefix := strings.TrimSpace(deps.NumberPrefix)
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}

	svc := &orderService{
		orders:     deps.Orders,
		counters:   deps.Counters,
		snapshots:  deps.Snapshots,
		ledger:     deps.Ledger,
		notifier:   deps.Notifier,
		fees:       fees,
		unitOfWork: unitOfWork,
		metrics:    metrics,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:             idGen,
		logger:            logger,
		estimatedDelivery: estimated,
		numberPrefix:      prefix,
		notifyTimeout:     notifyTimeout,
	}
	svc.hooks = svc.transitionHooks()
	return svc, nil
}

func (s *orderService) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (result OrderResult, err error) {
	ctx, span := tracer().Start(ctx, "orders.create", trace.WithAttributes(
		attribute.String("order.user_id", strings.TrimSpace(cmd.UserID)),
		attribute.Int("order.lines", len(cmd.Lines)),
	))
	defer func() { endSpan(span, err) }()

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return OrderResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	shipping, err := normaliseShipping(cmd.Shipping)
	if err != nil {
		return OrderResult{}, err
	}

	snapshot, err := s.snapshots.Build(ctx, cmd.Lines)
	if err != nil {
		return OrderResult{}, err
	}
	stockLines := snapshot.StockLines()
	if err := s.ledger.ReserveAll(ctx, stockLines); err != nil {
		return OrderResult{}, err
	}

	order, err := s.placeOrder(ctx, userID, cmd, snapshot, shipping)
	if err != nil {
		if releaseErr := s.ledger.ReleaseAll(context.WithoutCancel(ctx), stockLines); releaseErr != nil {
			s.logger(ctx, "order.create.release_failed", map[string]any{
				"userId": userID,
				"error":  releaseErr.Error(),
			})
		}
		return OrderResult{}, err
	}

	s.metrics.OrderCreated()
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.String("order.number", order.OrderNumber))
	notified := s.notify(ctx, NotificationOrderPlaced, order, "", strings.TrimSpace(cmd.ActorID))
	return OrderResult{Order: order, Notified: notified}, nil
}

// placeOrder assigns identifiers and persists the pending order. Stock is already reserved.
func (s *orderService) placeOrder(ctx context.Context, userID string, cmd CreateOrderCommand, snapshot domain.CartSnapshot, shipping domain.ShippingDetails) (domain.Order, error) {
	fees, err := s.fees(ctx, snapshot, shipping)
	if err != nil {
		return domain.Order{}, err
	}
	if fees.Fees < 0 || fees.Tax < 0 || fees.Shipping < 0 {
		return domain.Order{}, fmt.Errorf("%w: fees must not be negative", ErrOrderInvalidInput)
	}

	now := s.clock()
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		actorID = userID
	}
	order := domain.Order{
		ID:       ensureOrderID(s.newID()),
		UserID:   userID,
		Status:   domain.OrderStatusPending,
		Currency: snapshot.Currency,
		Items:    orderItems(snapshot),
		Shipping: shipping,
		Payment:  normalisePayment(cmd.Payment, snapshot.Currency),
		Totals: domain.OrderTotals{
			Subtotal: snapshot.Subtotal,
			Fees:     fees.Fees,
			Tax:      fees.Tax,
			Shipping: fees.Shipping,
			Total:    snapshot.Subtotal + fees.Fees + fees.Tax + fees.Shipping,
		},
		DeliveryDetails: []domain.DeliveryEvent{{
			Status:    domain.DeliveryStatusOrderPlaced,
			Message:   orderPlacedMessage,
			Timestamp: now,
			UpdatedBy: optionalString(actorID),
		}},
		EstimatedDeliveryDate: valuePtr(now.Add(s.estimatedDelivery)),
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		seq, err := s.counters.Next(txCtx, orderCounterID, 1)
		if err != nil {
			return err
		}
		order.OrderNumber = formatOrderNumber(s.numberPrefix, now.Year(), seq)
		return s.orders.Insert(txCtx, order)
	})
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, cmd UpdateStatusCommand) (result OrderResult, err error) {
	ctx, span := tracer().Start(ctx, "orders.update_status", trace.WithAttributes(
		attribute.String("order.id", strings.TrimSpace(cmd.OrderID)),
		attribute.String("order.requested_status", string(cmd.Status)),
	))
	defer func() { endSpan(span, err) }()

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return OrderResult{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	target := normaliseStatus(cmd.Status)
	if !target.Valid() {
		return OrderResult{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderResult{}, mapRepositoryError(err)
	}
	if !canTransition(order.Status, target) {
		s.metrics.Transition(order.Status, target, resultRejected)
		return OrderResult{}, &InvalidTransitionError{OrderID: orderID, Current: order.Status, Requested: target}
	}

	now := s.clock()
	message := sanitiseLedgerText(cmd.Message)
	reason := sanitiseLedgerText(cmd.Reason)
	transition := repositories.OrderTransition{
		OrderID:        orderID,
		ExpectedStatus: order.Status,
		Status:         target,
		UpdatedAt:      now,
		Entry: newDeliveryEvent(target, statusMessage(target, message, reason), sanitiseLedgerText(cmd.Location),
			now, cmd.ActorID),
	}
	if target == domain.OrderStatusCancelled {
		transition.CancellationReason = reason
	}

	hook := s.hooks[target]
	if hook.prepare != nil {
		if err := hook.prepare(ctx, order, &transition); err != nil {
			s.metrics.Transition(order.Status, target, resultFailed)
			return OrderResult{}, err
		}
	}

	updated, err := s.orders.ApplyTransition(ctx, transition)
	if err != nil {
		if hook.rollback != nil {
			hook.rollback(ctx, order, transition)
		}
		s.metrics.Transition(order.Status, target, resultFailed)
		return OrderResult{}, s.transitionFailure(ctx, orderID, target, err)
	}

	s.metrics.Transition(order.Status, target, resultApplied)
	kind := NotificationStatusChanged
	if target == domain.OrderStatusCancelled {
		kind = NotificationOrderCancelled
	}
	notified := s.notify(ctx, kind, updated, order.Status, strings.TrimSpace(cmd.ActorID))
	return OrderResult{Order: updated, Notified: notified}, nil
}

// transitionFailure reports a lost status guard as an invalid transition against the status that
// won the race.
func (s *orderService) transitionFailure(ctx context.Context, orderID string, target domain.OrderStatus, err error) error {
	mapped := mapRepositoryError(err)
	if !errors.Is(mapped, ErrOrderConflict) {
		return mapped
	}
	current, findErr := s.orders.FindByID(context.WithoutCancel(ctx), orderID)
	if findErr != nil || canTransition(current.Status, target) {
		return mapped
	}
	return &InvalidTransitionError{OrderID: orderID, Current: current.Status, Requested: target}
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (OrderResult, error) {
	return s.UpdateOrderStatus(ctx, UpdateStatusCommand{
		OrderID: cmd.OrderID,
		Status:  domain.OrderStatusCancelled,
		ActorID: cmd.ActorID,
		Reason:  optionalString(cmd.Reason),
	})
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err)
	}
	return order, nil
}

func (s *orderService) GetOrdersByStatus(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error) {
	statuses := make([]domain.OrderStatus, 0, len(filter.Status))
	for _, raw := range filter.Status {
		status := normaliseStatus(raw)
		if !status.Valid() {
			return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, raw)
		}
		statuses = append(statuses, status)
	}
	if filter.Pagination.PageSize < 0 {
		return domain.CursorPage[domain.Order]{}, fmt.Errorf("%w: page size must not be negative", ErrOrderInvalidInput)
	}

	page, err := s.orders.ListByStatus(ctx, repositories.OrderListFilter{
		Status:     statuses,
		UserID:     strings.TrimSpace(filter.UserID),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) GetOrderStats(ctx context.Context) (domain.OrderStats, error) {
	stats, err := s.orders.Stats(ctx)
	if err != nil {
		return domain.OrderStats{}, mapRepositoryError(err)
	}
	if stats.ByStatus == nil {
		stats.ByStatus = map[domain.OrderStatus]int{}
	}
	if stats.GeneratedAt.IsZero() {
		stats.GeneratedAt = s.clock()
	}
	return stats, nil
}

// notify hands a committed order to the notifier. Failures are logged and swallowed. Delivery
// survives cancellation of ctx but is bounded by the notify timeout and by ctx's deadline.
func (s *orderService) notify(ctx context.Context, kind NotificationKind, order domain.Order, previous domain.OrderStatus, actorID string) bool {
	if s.notifier == nil {
		return false
	}
	notification := OrderNotification{
		Kind:           kind,
		Order:          order,
		PreviousStatus: previous,
		ActorID:        actorID,
		OccurredAt:     order.UpdatedAt,
	}
	notifyCtx, cancel := s.notifyContext(ctx)
	defer cancel()
	if err := s.notifier.Notify(notifyCtx, notification); err != nil {
		s.metrics.Notification(kind, resultFailed)
		s.logger(ctx, "order.notification.failed", map[string]any{
			"orderId": order.ID,
			"kind":    string(kind),
			"status":  string(order.Status),
			"error":   err.Error(),
		})
		return true
	}
	s.metrics.Notification(kind, resultSent)
	return true
}

func (s *orderService) notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.notifyTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = min(timeout, time.Until(deadline))
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	return s.unitOfWork.RunInTx(ctx, fn)
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func noFees(context.Context, domain.CartSnapshot, domain.ShippingDetails) (Fees, error) {
	return Fees{}, nil
}

func ensureOrderID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, orderIDPrefix) {
		return id
	}
	return orderIDPrefix + id
}

func formatOrderNumber(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}

func normaliseStatus(status domain.OrderStatus) domain.OrderStatus {
	return domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(status))))
}

func orderItems(snapshot domain.CartSnapshot) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Image:     line.Image,
			Price:     line.Price,
			Quantity:  line.Quantity,
			Size:      line.Size,
		})
	}
	return items
}

func normaliseShipping(in domain.ShippingDetails) (domain.ShippingDetails, error) {
	out := domain.ShippingDetails{
		Name:       textutil.SanitizeText(in.Name),
		Email:      strings.ToLower(strings.TrimSpace(in.Email)),
		Phone:      strings.TrimSpace(in.Phone),
		Line1:      textutil.SanitizeText(in.Line1),
		Line2:      textutil.SanitizeText(in.Line2),
		City:       textutil.SanitizeText(in.City),
		State:      textutil.SanitizeText(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(in.Country)),
	}
	switch {
	case out.Name == "":
		return out, fmt.Errorf("%w: shipping name is required", ErrOrderInvalidInput)
	case out.Line1 == "":
		return out, fmt.Errorf("%w: shipping address is required", ErrOrderInvalidInput)
	case out.City == "":
		return out, fmt.Errorf("%w: shipping city is required", ErrOrderInvalidInput)
	case out.Country == "":
		return out, fmt.Errorf("%w: shipping country is required", ErrOrderInvalidInput)
	}
	return out, nil
}

func normalisePayment(in domain.PaymentDetails, currency string) domain.PaymentDetails {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = currency
	}
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	in.Method = strings.TrimSpace(in.Method)
	in.PayerEmail = strings.ToLower(strings.TrimSpace(in.PayerEmail))
	if in.PaidAt != nil {
		in.PaidAt = valuePtr(in.PaidAt.UTC())
	}
	return in
}

func sanitiseLedgerText(value *string) *string {
	cleaned := textutil.SanitizeOptional(value)
	if cleaned == nil {
		return nil
	}
	return valuePtr(textutil.Truncate(*cleaned, maxLedgerTextLength))
}
