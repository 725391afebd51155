package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/platform/pagination"
	"github.com/solestore/api/internal/repositories"
)

// OrderStore keeps orders in a map guarded by a mutex.
type OrderStore struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
	now    func() time.Time
}

var _ repositories.OrderRepository = (*OrderStore)(nil)

func NewOrderStore(clock func() time.Time) *OrderStore {
	if clock == nil {
		clock = time.Now
	}
	return &OrderStore{orders: make(map[string]domain.Order), now: clock}
}

func (s *OrderStore) Insert(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.orders[order.ID]; exists {
		return conflict("orders.insert", "order %s already exists", order.ID)
	}
	s.orders[order.ID] = cloneOrder(order)
	return nil
}

func (s *OrderStore) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, notFound("orders.get", "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

func (s *OrderStore) ApplyTransition(_ context.Context, transition repositories.OrderTransition) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[transition.OrderID]
	if !ok {
		return domain.Order{}, notFound("orders.transition", "order %s not found", transition.OrderID)
	}
	if order.Status != transition.ExpectedStatus {
		return domain.Order{}, conflict("orders.transition", "order %s is %s, expected %s", order.ID, order.Status, transition.ExpectedStatus)
	}
	next := transition.Apply(order)
	s.orders[order.ID] = next
	return cloneOrder(next), nil
}

func (s *OrderStore) ListByStatus(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	limit := pagination.Normalize(filter.Pagination.PageSize)

	s.mu.RLock()
	matched := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if len(filter.Status) > 0 && !slices.Contains(filter.Status, order.Status) {
			continue
		}
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		matched = append(matched, order)
	}
	s.mu.RUnlock()

	slices.SortFunc(matched, newestFirst)

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, limit)}
	for _, order := range matched {
		if !cursor.IsZero() && newestFirst(order, domain.Order{ID: cursor.ID, CreatedAt: cursor.CreatedAt}) <= 0 {
			continue
		}
		if len(page.Items) == limit {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, cloneOrder(order))
	}
	return page, nil
}

func (s *OrderStore) Stats(_ context.Context) (domain.OrderStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := domain.OrderStats{
		ByStatus:    make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
		GeneratedAt: s.now().UTC(),
	}
	for _, status := range domain.OrderStatuses {
		stats.ByStatus[status] = 0
	}
	for _, order := range s.orders {
		stats.Total++
		stats.ByStatus[order.Status]++
		if order.Status != domain.OrderStatusCancelled {
			stats.Revenue += order.Totals.Total
		}
	}
	return stats, nil
}

// newestFirst orders by CreatedAt descending then ID descending.
func newestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(b.ID, a.ID)
}

func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	order.DeliveryDetails = slices.Clone(order.DeliveryDetails)
	return order
}
