package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	domain "github.com/solestore/api/internal/domain"
)

const (
	defaultBulkConcurrency = 8
	defaultBulkMax         = 200
)

// BulkTransitionCoordinatorDeps bundles the collaborators of the bulk coordinator.
type BulkTransitionCoordinatorDeps struct {
	Orders      OrderService
	Concurrency int
	MaxBatch    int
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type bulkCoordinator struct {
	orders      OrderService
	concurrency int
	maxBatch    int
	logger      logFunc
}

var _ BulkTransitionCoordinator = (*bulkCoordinator)(nil)

// NewBulkTransitionCoordinator constructs a coordinator that fans transitions out over a bounded
// worker group.
func NewBulkTransitionCoordinator(deps BulkTransitionCoordinatorDeps) (BulkTransitionCoordinator, error) {
	if deps.Orders == nil {
		return nil, errors.New("bulk coordinator: order service is required")
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}
	maxBatch := deps.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultBulkMax
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &bulkCoordinator{orders: deps.Orders, concurrency: concurrency, maxBatch: maxBatch, logger: logger}, nil
}

// BulkUpdateStatus applies the status to every order independently and returns one result per input
// ID, in input order. Repeated IDs are processed once and share the result. Only batch-level
// validation fails the call.
func (c *bulkCoordinator) BulkUpdateStatus(ctx context.Context, cmd BulkUpdateCommand) (results []BulkResult, err error) {
	ctx, span := tracer().Start(ctx, "orders.bulk_update_status", trace.WithAttributes(
		attribute.Int("bulk.size", len(cmd.OrderIDs)),
		attribute.String("order.requested_status", string(cmd.Status)),
	))
	defer func() { endSpan(span, err) }()

	switch {
	case len(cmd.OrderIDs) == 0:
		return nil, fmt.Errorf("%w: order ids are required", ErrOrderInvalidInput)
	case len(cmd.OrderIDs) > c.maxBatch:
		return nil, fmt.Errorf("%w: batch of %d exceeds limit %d", ErrOrderInvalidInput, len(cmd.OrderIDs), c.maxBatch)
	}
	status := normaliseStatus(cmd.Status)
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	unique := make([]string, 0, len(cmd.OrderIDs))
	index := make(map[string]int, len(cmd.OrderIDs))
	for _, raw := range cmd.OrderIDs {
		id := strings.TrimSpace(raw)
		if _, seen := index[id]; seen {
			continue
		}
		index[id] = len(unique)
		unique = append(unique, id)
	}

	outcomes := make([]BulkResult, len(unique))
	var group errgroup.Group
	group.SetLimit(c.concurrency)
	for i, orderID := range unique {
		group.Go(func() error {
			outcomes[i] = c.apply(ctx, orderID, status, cmd)
			return nil
		})
	}
	_ = group.Wait()

	results = make([]BulkResult, len(cmd.OrderIDs))
	failed := 0
	for i, raw := range cmd.OrderIDs {
		results[i] = outcomes[index[strings.TrimSpace(raw)]]
		if results[i].Err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("bulk.failed", failed))
	c.logger(ctx, "order.bulk_status.completed", map[string]any{
		"status":    string(status),
		"requested": len(cmd.OrderIDs),
		"processed": len(unique),
		"failed":    failed,
	})
	return results, nil
}

func (c *bulkCoordinator) apply(ctx context.Context, orderID string, status domain.OrderStatus, cmd BulkUpdateCommand) BulkResult {
	result := BulkResult{OrderID: orderID}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result
	}
	updated, err := c.orders.UpdateOrderStatus(ctx, UpdateStatusCommand{
		OrderID: orderID,
		Status:  status,
		ActorID: cmd.ActorID,
		Message: cmd.Message,
	})
	if err != nil {
		result.Err = err
		return result
	}
	result.Order = &updated.Order
	result.Notified = updated.Notified
	return result
}
