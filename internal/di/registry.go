package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/solestore/api/internal/platform/config"
	pfirestore "github.com/solestore/api/internal/platform/firestore"
	"github.com/solestore/api/internal/repositories"
	firestoreRepo "github.com/solestore/api/internal/repositories/firestore"
	"github.com/solestore/api/internal/repositories/memory"
	redisRepo "github.com/solestore/api/internal/repositories/redis"
)

const (
	firestoreCheckTimeout = 2 * time.Second
	redisCheckTimeout     = time.Second
)

// registry is the runtime repositories.Registry. Firestore repositories run their own transactions
// and cannot join an outer one, so RunInTx executes fn directly.
type registry struct {
	ledger   repositories.StockLedgerRepository
	catalog  repositories.CatalogRepository
	orders   repositories.OrderRepository
	counters repositories.CounterRepository
	health   repositories.HealthRepository

	closers []func(context.Context) error
}

var _ repositories.Registry = (*registry)(nil)

func (r *registry) StockLedger() repositories.StockLedgerRepository { return r.ledger }
func (r *registry) Catalog() repositories.CatalogRepository         { return r.catalog }
func (r *registry) Orders() repositories.OrderRepository            { return r.orders }
func (r *registry) Counters() repositories.CounterRepository        { return r.counters }
func (r *registry) Health() repositories.HealthRepository           { return r.health }

func (r *registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Close releases backend clients in reverse order of creation.
func (r *registry) Close(ctx context.Context) error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// backends holds the shared clients created for the configured drivers.
type backends struct {
	firestore *pfirestore.Provider
	redis     redis.UniversalClient
}

func openBackends(cfg config.Config) backends {
	var b backends
	if cfg.UsesFirestore() {
		b.firestore = pfirestore.NewProvider(cfg.Firestore)
	}
	if cfg.UsesRedis() {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return b
}

// buildRegistry assembles repositories for the configured drivers. The memory catalog is returned
// separately so local runs can seed products.
func buildRegistry(cfg config.Config, b backends, clock func() time.Time, logger *zap.Logger) (*registry, *memory.ProductStore, error) {
	reg := &registry{}
	if b.firestore != nil {
		provider := b.firestore
		reg.closers = append(reg.closers, provider.Close)
	}
	if b.redis != nil {
		client := b.redis
		reg.closers = append(reg.closers, func(context.Context) error { return client.Close() })
	}

	var products *memory.ProductStore
	switch cfg.Store.Driver {
	case config.DriverMemory:
		products = memory.NewProductStore(clock)
		reg.catalog = products
		reg.orders = memory.NewOrderStore(clock)
		reg.counters = memory.NewCounterStore()
	case config.DriverFirestore:
		catalog, err := firestoreRepo.NewCatalogRepository(b.firestore)
		if err != nil {
			return nil, nil, fmt.Errorf("build catalog repository: %w", err)
		}
		orders, err := firestoreRepo.NewOrderRepository(b.firestore, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("build order repository: %w", err)
		}
		counters, err := firestoreRepo.NewCounterRepository(b.firestore)
		if err != nil {
			return nil, nil, fmt.Errorf("build counter repository: %w", err)
		}
		reg.catalog, reg.orders, reg.counters = catalog, orders, counters
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	switch cfg.Store.StockLedgerDriver {
	case config.DriverMemory:
		if products == nil {
			return nil, nil, errors.New("memory stock ledger requires the memory store driver")
		}
		reg.ledger = products
	case config.DriverFirestore:
		if cfg.Store.Driver != config.DriverFirestore {
			return nil, nil, errors.New("firestore stock ledger requires the firestore store driver")
		}
		ledger, err := firestoreRepo.NewStockLedgerRepository(b.firestore, clock)
		if err != nil {
			return nil, nil, fmt.Errorf("build firestore stock ledger: %w", err)
		}
		reg.ledger = ledger
	case config.DriverRedis:
		mirror, ok := reg.catalog.(repositories.StockMirror)
		if !ok {
			return nil, nil, fmt.Errorf("store driver %q cannot mirror redis stock", cfg.Store.Driver)
		}
		ledger, err := redisRepo.NewStockLedgerRepository(b.redis, clock,
			redisRepo.WithCatalogSource(reg.catalog),
			redisRepo.WithStockMirror(mirror),
			redisRepo.WithLogger(logger.Named("stock_ledger")),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("build redis stock ledger: %w", err)
		}
		reg.ledger = ledger
	default:
		return nil, nil, fmt.Errorf("unsupported stock ledger driver %q", cfg.Store.StockLedgerDriver)
	}

	health, err := repositories.NewDependencyHealthRepository(dependencyChecks(cfg, b), repositories.WithDependencyClock(clock))
	if err != nil {
		return nil, nil, fmt.Errorf("build health repository: %w", err)
	}
	reg.health = health
	return reg, products, nil
}

// dependencyChecks covers every backend in use. A backend is critical when orders or stock depend
// on it; Redis used only for idempotency degrades readiness instead.
func dependencyChecks(cfg config.Config, b backends) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{
		Name:  "process",
		Check: func(ctx context.Context) error { return ctx.Err() },
	}}
	if b.firestore != nil {
		provider := b.firestore
		checks = append(checks, repositories.DependencyCheck{
			Name:     "firestore",
			Timeout:  firestoreCheckTimeout,
			Critical: true,
			Check:    provider.Ping,
		})
	}
	if b.redis != nil {
		client := b.redis
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Timeout:  redisCheckTimeout,
			Critical: cfg.Store.StockLedgerDriver == config.DriverRedis,
			Check:    func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
	}
	return checks
}
