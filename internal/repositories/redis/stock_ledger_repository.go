// Package redis provides a Redis-backed stock ledger. Each product keeps one hash of size counters
// and one hash of derived fields; both keys share a hash tag so a single Lua script can update them
// atomically, including on a cluster. Products missing from Redis are hydrated from the catalog, and
// every write is mirrored back onto the catalog record with a monotonically increasing version.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "github.com/solestore/api/internal/domain"
	"github.com/solestore/api/internal/repositories"
)

const (
	resultOK           = 0
	resultNotFound     = -1
	resultInsufficient = -2

	defaultMirrorTimeout = 5 * time.Second
)

// adjustScript applies a signed delta to one size counter, recomputes totals and bumps the version.
// KEYS[1] size hash, KEYS[2] meta hash. ARGV[1] size, ARGV[2] delta, ARGV[3] updatedAt (unix ms).
var adjustScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {-1, 0, 0, 0}
end
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local delta = tonumber(ARGV[2])
if current + delta < 0 then
  return {-2, current, 0, 0}
end
redis.call('HSET', KEYS[1], ARGV[1], current + delta)
local total = 0
for _, v in ipairs(redis.call('HVALS', KEYS[1])) do
  total = total + tonumber(v)
end
local inStock = 0
if total > 0 then inStock = 1 end
redis.call('HSET', KEYS[2], 'totalStock', total, 'inStock', inStock, 'updatedAt', ARGV[3])
local version = redis.call('HINCRBY', KEYS[2], 'version', 1)
return {0, current + delta, total, version}
`)

// seedScript writes the counters only when the product has no ledger entry yet, so a hydration
// racing a reservation never overwrites it.
// ARGV[1] totalStock, ARGV[2] inStock, ARGV[3] updatedAt, ARGV[4] version, then size/count pairs.
var seedScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
for i = 5, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
redis.call('HSET', KEYS[2], 'totalStock', ARGV[1], 'inStock', ARGV[2], 'updatedAt', ARGV[3], 'version', ARGV[4])
return 1
`)

// StockLedgerRepository implements repositories.StockLedgerRepository on Redis.
type StockLedgerRepository struct {
	client        redis.UniversalClient
	now           func() time.Time
	source        repositories.CatalogRepository
	mirror        repositories.StockMirror
	mirrorTimeout time.Duration
	logger        *zap.Logger
}

var _ repositories.StockLedgerRepository = (*StockLedgerRepository)(nil)

// Option customises the Redis stock ledger.
type Option func(*StockLedgerRepository)

// WithCatalogSource hydrates products missing from Redis with the catalog's counters.
func WithCatalogSource(catalog repositories.CatalogRepository) Option {
	return func(r *StockLedgerRepository) {
		r.source = catalog
	}
}

// WithStockMirror copies every committed write onto the catalog record.
func WithStockMirror(mirror repositories.StockMirror) Option {
	return func(r *StockLedgerRepository) {
		r.mirror = mirror
	}
}

// WithMirrorTimeout bounds a single mirror write.
func WithMirrorTimeout(timeout time.Duration) Option {
	return func(r *StockLedgerRepository) {
		if timeout > 0 {
			r.mirrorTimeout = timeout
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *StockLedgerRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewStockLedgerRepository(client redis.UniversalClient, clock func() time.Time, opts ...Option) (*StockLedgerRepository, error) {
	if client == nil {
		return nil, errors.New("redis stock ledger requires a client")
	}
	if clock == nil {
		clock = time.Now
	}
	r := &StockLedgerRepository{
		client:        client,
		now:           clock,
		mirrorTimeout: defaultMirrorTimeout,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func (r *StockLedgerRepository) Reserve(ctx context.Context, line domain.StockLine) (domain.ProductStock, error) {
	return r.adjust(ctx, "stock.reserve", line, -line.Quantity)
}

func (r *StockLedgerRepository) Release(ctx context.Context, line domain.StockLine) (domain.ProductStock, error) {
	return r.adjust(ctx, "stock.release", line, line.Quantity)
}

func (r *StockLedgerRepository) adjust(ctx context.Context, op string, line domain.StockLine, delta int) (domain.ProductStock, error) {
	productID := strings.TrimSpace(line.ProductID)
	size := strings.TrimSpace(line.Size)
	if productID == "" || size == "" || line.Quantity <= 0 {
		stockErr := repositories.NewStockError(op, repositories.StockErrorInvalidInput, productID, size)
		stockErr.Requested = line.Quantity
		return domain.ProductStock{}, stockErr
	}

	res, err := r.runAdjust(ctx, op, productID, size, delta)
	if err == nil && res[0] == resultNotFound {
		var hydrated bool
		if hydrated, err = r.hydrate(ctx, productID); err == nil && hydrated {
			res, err = r.runAdjust(ctx, op, productID, size, delta)
		}
	}
	if err != nil {
		return domain.ProductStock{}, err
	}

	switch res[0] {
	case resultOK:
	case resultNotFound:
		return domain.ProductStock{}, repositories.NewStockError(op, repositories.StockErrorNotFound, productID, size)
	case resultInsufficient:
		stockErr := repositories.NewStockError(op, repositories.StockErrorInsufficient, productID, size)
		stockErr.Requested = line.Quantity
		stockErr.Available = int(res[1])
		return domain.ProductStock{}, stockErr
	default:
		return domain.ProductStock{}, fmt.Errorf("%s: unknown script status %d", op, res[0])
	}

	stock, found, err := r.read(ctx, productID)
	if err != nil {
		return domain.ProductStock{}, fmt.Errorf("%s: %w", op, err)
	}
	if found {
		r.mirrorStock(ctx, stock)
	}
	return stock, nil
}

func (r *StockLedgerRepository) runAdjust(ctx context.Context, op, productID, size string, delta int) ([]int64, error) {
	res, err := adjustScript.Run(ctx, r.client,
		[]string{sizesKey(productID), metaKey(productID)},
		size, delta, r.now().UTC().UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%s: redis script: %w", op, err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("%s: unexpected script result %v", op, res)
	}
	return res, nil
}

func (r *StockLedgerRepository) Get(ctx context.Context, productID string) (domain.ProductStock, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.ProductStock{}, repositories.NewStockError("stock.get", repositories.StockErrorInvalidInput, productID, "")
	}

	stock, found, err := r.read(ctx, id)
	if err == nil && !found {
		var hydrated bool
		if hydrated, err = r.hydrate(ctx, id); err == nil && hydrated {
			stock, found, err = r.read(ctx, id)
		}
	}
	if err != nil {
		return domain.ProductStock{}, fmt.Errorf("stock.get: %w", err)
	}
	if !found {
		return domain.ProductStock{}, repositories.NewStockError("stock.get", repositories.StockErrorNotFound, id, "")
	}
	return stock, nil
}

// read loads both hashes in one MULTI so the counters and version belong to the same write.
func (r *StockLedgerRepository) read(ctx context.Context, productID string) (domain.ProductStock, bool, error) {
	pipe := r.client.TxPipeline()
	sizesCmd := pipe.HGetAll(ctx, sizesKey(productID))
	metaCmd := pipe.HGetAll(ctx, metaKey(productID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.ProductStock{}, false, fmt.Errorf("redis: %w", err)
	}
	sizes := sizesCmd.Val()
	if len(sizes) == 0 {
		return domain.ProductStock{}, false, nil
	}

	stock := domain.ProductStock{ProductID: productID, SizeStock: make(map[string]int, len(sizes))}
	for size, raw := range sizes {
		count, err := strconv.Atoi(raw)
		if err != nil {
			return domain.ProductStock{}, false, fmt.Errorf("size %s has non-numeric count %q", size, raw)
		}
		stock.SizeStock[size] = count
	}
	stock.Recalculate()
	meta := metaCmd.Val()
	if ms, err := strconv.ParseInt(meta["updatedAt"], 10, 64); err == nil {
		stock.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	if version, err := strconv.ParseInt(meta["version"], 10, 64); err == nil {
		stock.Version = version
	}
	return stock, true, nil
}

// hydrate copies the catalog counters of productID into Redis. It reports false when there is no
// catalog source or the catalog has no stock for the product.
func (r *StockLedgerRepository) hydrate(ctx context.Context, productID string) (bool, error) {
	if r.source == nil {
		return false, nil
	}
	product, err := r.source.GetProduct(ctx, productID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return false, nil
		}
		return false, fmt.Errorf("stock.hydrate: catalog: %w", err)
	}
	if len(product.SizeStock) == 0 {
		return false, nil
	}

	stock := domain.ProductStock{ProductID: productID, SizeStock: product.SizeStock}.Clone()
	for size, count := range stock.SizeStock {
		stock.SizeStock[size] = max(count, 0)
	}
	stock.Recalculate()
	args := []any{stock.TotalStock, boolInt(stock.InStock), r.now().UTC().UnixMilli(), product.StockVersion}
	for size, count := range stock.SizeStock {
		args = append(args, size, count)
	}
	if err := seedScript.Run(ctx, r.client, []string{sizesKey(productID), metaKey(productID)}, args...).Err(); err != nil {
		return false, fmt.Errorf("stock.hydrate: redis script: %w", err)
	}
	return true, nil
}

// mirrorStock is best effort: the Redis write already committed, and a later write carries a newer
// version that repairs a missed mirror.
func (r *StockLedgerRepository) mirrorStock(ctx context.Context, stock domain.ProductStock) {
	if r.mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.MirrorStock(ctx, stock); err != nil {
		r.logger.Warn("stock mirror failed",
			zap.String("productId", stock.ProductID),
			zap.Int64("version", stock.Version),
			zap.Error(err),
		)
	}
}

// Seed replaces the stored counters for a product, typically when syncing from the catalog.
func (r *StockLedgerRepository) Seed(ctx context.Context, stock domain.ProductStock) error {
	id := strings.TrimSpace(stock.ProductID)
	if id == "" || len(stock.SizeStock) == 0 {
		return repositories.NewStockError("stock.seed", repositories.StockErrorInvalidInput, id, "")
	}
	stock = stock.Clone()
	stock.Recalculate()
	fields := make(map[string]any, len(stock.SizeStock))
	for size, count := range stock.SizeStock {
		if count < 0 {
			return repositories.NewStockError("stock.seed", repositories.StockErrorInvalidInput, id, size)
		}
		fields[size] = count
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, sizesKey(id))
		pipe.HSet(ctx, sizesKey(id), fields)
		pipe.HSet(ctx, metaKey(id), "totalStock", stock.TotalStock, "inStock", boolInt(stock.InStock), "updatedAt", r.now().UTC().UnixMilli())
		return nil
	})
	if err != nil {
		return fmt.Errorf("stock.seed: redis: %w", err)
	}
	return nil
}

// Ping checks connectivity for readiness checks.
func (r *StockLedgerRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func sizesKey(productID string) string {
	return fmt.Sprintf("stock:{%s}", productID)
}

func metaKey(productID string) string {
	return fmt.Sprintf("stock:{%s}:meta", productID)
}
