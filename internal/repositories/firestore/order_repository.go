package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"golang.org/x/sync/errgroup"

	domain "github.com/solestore/api/internal/domain"
	pfirestore "github.com/solestore/api/internal/platform/firestore"
	"github.com/solestore/api/internal/platform/pagination"
	"github.com/solestore/api/internal/repositories"
)

// OrderRepository persists orders/{id} documents.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	now      func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

func NewOrderRepository(provider *pfirestore.Provider, clock func() time.Time) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if clock == nil {
		clock = time.Now
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection),
		now:      clock,
	}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("order repository: order id is required")
	}
	return r.orders.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	return doc.toDomain(orderID), nil
}

// ApplyTransition rewrites the order inside a transaction so the status guard, the status patch and
// the ledger append commit together.
func (r *OrderRepository) ApplyTransition(ctx context.Context, transition repositories.OrderTransition) (domain.Order, error) {
	var updated domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, doc, err := r.orders.TxGet(ctx, tx, transition.OrderID)
		if err != nil {
			return err
		}
		current := doc.toDomain(transition.OrderID)
		if current.Status != transition.ExpectedStatus {
			return pfirestore.Conflict("orders.transition", "order %s is %s, expected %s", transition.OrderID, current.Status, transition.ExpectedStatus)
		}
		next := transition.Apply(current)
		if err := tx.Set(ref, newOrderDocument(next)); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.transition", err)
	}
	return updated, nil
}

func (r *OrderRepository) ListByStatus(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	limit := pagination.Normalize(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		switch len(filter.Status) {
		case 0:
		case 1:
			q = q.Where("status", "==", string(filter.Status[0]))
		default:
			statuses := make([]string, 0, len(filter.Status))
			for _, status := range filter.Status {
				statuses = append(statuses, string(status))
			}
			q = q.Where("status", "in", statuses)
		}
		if filter.UserID != "" {
			q = q.Where("userId", "==", filter.UserID)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(limit + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}

	page := domain.CursorPage[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), limit))}
	for i, doc := range docs {
		if i == limit {
			last := page.Items[len(page.Items)-1]
			token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.Order]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Stats runs one count aggregation per status plus a revenue sum over non-cancelled orders.
func (r *OrderRepository) Stats(ctx context.Context) (domain.OrderStats, error) {
	coll, err := r.orders.Ref(ctx)
	if err != nil {
		return domain.OrderStats{}, err
	}

	counts := make([]int, len(domain.OrderStatuses))
	var revenue int64

	group, groupCtx := errgroup.WithContext(ctx)
	for i, status := range domain.OrderStatuses {
		group.Go(func() error {
			q := coll.Where("status", "==", string(status))
			result, err := q.NewAggregationQuery().WithCount("count").Get(groupCtx)
			if err != nil {
				return pfirestore.WrapError("orders.stats", err)
			}
			count, err := aggregateInt(result, "count")
			counts[i] = int(count)
			return err
		})
	}
	group.Go(func() error {
		q := coll.Where("status", "!=", string(domain.OrderStatusCancelled))
		result, err := q.NewAggregationQuery().WithSum("totals.total", "revenue").Get(groupCtx)
		if err != nil {
			return pfirestore.WrapError("orders.stats", err)
		}
		revenue, err = aggregateInt(result, "revenue")
		return err
	})
	if err := group.Wait(); err != nil {
		return domain.OrderStats{}, err
	}

	stats := domain.OrderStats{
		ByStatus:    make(map[domain.OrderStatus]int, len(domain.OrderStatuses)),
		Revenue:     revenue,
		GeneratedAt: r.now().UTC(),
	}
	for i, status := range domain.OrderStatuses {
		stats.ByStatus[status] = counts[i]
		stats.Total += counts[i]
	}
	return stats, nil
}

func aggregateInt(result firestore.AggregationResult, alias string) (int64, error) {
	value, ok := result[alias].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("orders.stats: aggregation %q missing", alias)
	}
	switch v := value.GetValueType().(type) {
	case *firestorepb.Value_IntegerValue:
		return v.IntegerValue, nil
	case *firestorepb.Value_DoubleValue:
		return int64(v.DoubleValue), nil
	case *firestorepb.Value_NullValue:
		return 0, nil
	default:
		return 0, fmt.Errorf("orders.stats: aggregation %q has unexpected type %T", alias, v)
	}
}
