package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
	"github.com/solestore/api/internal/repositories/memory"
)

var fixedNow = time.Date(2025, 5, 6, 9, 30, 0, 0, time.UTC)

type captureNotifier struct {
	mu            sync.Mutex
	notifications []OrderNotification
	err           error
}

func (c *captureNotifier) Notify(_ context.Context, notification OrderNotification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notifications = append(c.notifications, notification)
	return c.err
}

func (c *captureNotifier) kinds() []NotificationKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	kinds := make([]NotificationKind, 0, len(c.notifications))
	for _, n := range c.notifications {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}

type recordingMetrics struct {
	mu           sync.Mutex
	created      int
	transitions  map[string]int
	reservations map[string]int
	notified     map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		transitions:  map[string]int{},
		reservations: map[string]int{},
		notified:     map[string]int{},
	}
}

func (m *recordingMetrics) OrderCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) Transition(from, to domain.OrderStatus, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions[fmt.Sprintf("%s>%s:%s", from, to, result)]++
}

func (m *recordingMetrics) StockReservation(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[result]++
}

func (m *recordingMetrics) Notification(kind NotificationKind, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[string(kind)+":"+result]++
}

type logEntry struct {
	event  string
	fields map[string]any
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (c *captureLogger) log(_ context.Context, event string, fields map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, logEntry{event: event, fields: fields})
}

func (c *captureLogger) has(event string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.event == event {
			return true
		}
	}
	return false
}

// stubOrderRepo delegates to an in-memory store unless a function field overrides the call.
type stubOrderRepo struct {
	repositories.OrderRepository
	insertFn     func(context.Context, domain.Order) error
	transitionFn func(context.Context, repositories.OrderTransition) (domain.Order, error)
}

func (s *stubOrderRepo) Insert(ctx context.Context, order domain.Order) error {
	if s.insertFn != nil {
		return s.insertFn(ctx, order)
	}
	return s.OrderRepository.Insert(ctx, order)
}

func (s *stubOrderRepo) ApplyTransition(ctx context.Context, transition repositories.OrderTransition) (domain.Order, error) {
	if s.transitionFn != nil {
		return s.transitionFn(ctx, transition)
	}
	return s.OrderRepository.ApplyTransition(ctx, transition)
}

type stubCounterRepo struct {
	nextFn func(context.Context, string, int64) (int64, error)
}

func (s *stubCounterRepo) Next(ctx context.Context, counterID string, step int64) (int64, error) {
	if s.nextFn != nil {
		return s.nextFn(ctx, counterID, step)
	}
	return 0, nil
}

type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

type orderFixture struct {
	products *memory.ProductStore
	orders   *stubOrderRepo
	counters repositories.CounterRepository
	ledger   StockLedger
	notifier *captureNotifier
	metrics  *recordingMetrics
	logs     *captureLogger
	svc      OrderService
}

type fixtureOption func(*orderFixture, *OrderServiceDeps)

func newOrderFixture(t *testing.T, opts ...fixtureOption) *orderFixture {
	t.Helper()
	clock := func() time.Time { return fixedNow }

	fx := &orderFixture{
		products: memory.NewProductStore(clock),
		orders:   &stubOrderRepo{OrderRepository: memory.NewOrderStore(clock)},
		counters: memory.NewCounterStore(),
		notifier: &captureNotifier{},
		metrics:  newRecordingMetrics(),
		logs:     &captureLogger{},
	}
	fx.products.Put(domain.Product{
		ID:             "P1",
		Name:           "Runner One",
		Price:          12000,
		Currency:       "USD",
		Images:         []string{"https://cdn.example.com/p1.jpg"},
		AvailableSizes: []string{"9", "10"},
		IsAvailable:    true,
		SizeStock:      map[string]int{"9": 1, "10": 3},
	})
	fx.products.Put(domain.Product{
		ID:             "P2",
		Name:           "Trail Two",
		Price:          8500,
		Currency:       "USD",
		AvailableSizes: []string{"8.5"},
		IsAvailable:    true,
		SizeStock:      map[string]int{"8.5": 2},
	})

	ledger, err := NewStockLedger(StockLedgerDeps{Repository: fx.products, Metrics: fx.metrics, Logger: fx.logs.log})
	if err != nil {
		t.Fatalf("NewStockLedger: %v", err)
	}
	fx.ledger = ledger
	snapshots, err := NewSnapshotBuilder(SnapshotBuilderDeps{Catalog: fx.products, Ledger: ledger})
	if err != nil {
		t.Fatalf("NewSnapshotBuilder: %v", err)
	}

	var seq atomic.Int64
	deps := OrderServiceDeps{
		Orders:    fx.orders,
		Counters:  fx.counters,
		Snapshots: snapshots,
		Ledger:    ledger,
		Notifier:  fx.notifier,
		Metrics:   fx.metrics,
		Clock:     clock,
		IDGenerator: func() string {
			return fmt.Sprintf("01TEST%04d", seq.Add(1))
		},
		Logger: fx.logs.log,
	}
	for _, opt := range opts {
		opt(fx, &deps)
	}
	svc, err := NewOrderService(deps)
	if err != nil {
		t.Fatalf("NewOrderService: %v", err)
	}
	fx.svc = svc
	return fx
}

func (fx *orderFixture) stock(t *testing.T, productID string) map[string]int {
	t.Helper()
	stock, err := fx.products.Get(context.Background(), productID)
	if err != nil {
		t.Fatalf("get stock %s: %v", productID, err)
	}
	return stock.SizeStock
}

func (fx *orderFixture) place(t *testing.T, lines ...domain.CartSelectionLine) domain.Order {
	t.Helper()
	result, err := fx.svc.CreateOrder(context.Background(), createCommand(lines...))
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	return result.Order
}

func createCommand(lines ...domain.CartSelectionLine) CreateOrderCommand {
	return CreateOrderCommand{
		UserID: "user-1",
		Lines:  lines,
		Shipping: domain.ShippingDetails{
			Name:       "Aiko Tanaka",
			Email:      "Aiko@Example.com",
			Line1:      "1-2-3 Shibuya",
			City:       "Tokyo",
			PostalCode: "150-0002",
			Country:    "jp",
		},
		Payment: domain.PaymentDetails{Status: "PAID", Method: "card", TransactionID: "txn_1"},
	}
}

func cartLine(productID, size string, quantity int) domain.CartSelectionLine {
	return domain.CartSelectionLine{ProductID: productID, Size: size, Quantity: quantity}
}

func strPtr(value string) *string {
	return &value
}
