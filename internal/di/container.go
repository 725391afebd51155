package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/solestore/api/internal/handlers"
	"github.com/solestore/api/internal/platform/auth"
	"github.com/solestore/api/internal/platform/config"
	"github.com/solestore/api/internal/platform/idempotency"
	"github.com/solestore/api/internal/platform/metrics"
	"github.com/solestore/api/internal/platform/notifications"
	"github.com/solestore/api/internal/platform/observability"
	"github.com/solestore/api/internal/repositories"
	"github.com/solestore/api/internal/repositories/memory"
	"github.com/solestore/api/internal/services"
)

const jwksTimeout = 5 * time.Second

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Ledger services.StockLedger
	Orders services.OrderService
	Bulk   services.BulkTransitionCoordinator
	System services.SystemService
}

// Container wires repositories, services and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Logger       *zap.Logger
	Repositories repositories.Registry
	Services     Services
	Metrics      *metrics.Recorder
	Router       http.Handler

	// Products is the in-memory catalog and ledger when the memory store driver is selected.
	Products *memory.ProductStore

	notifier   *notifications.MultiNotifier
	stopBg     context.CancelFunc
	background sync.WaitGroup
}

// Option customises container construction.
type Option func(*options)

type options struct {
	verifier auth.TokenVerifier
	notifier services.OrderNotifier
	build    services.BuildInfo
	clock    func() time.Time
}

// WithTokenVerifier replaces the Firebase verifier; tests pass a stub.
func WithTokenVerifier(verifier auth.TokenVerifier) Option {
	return func(o *options) {
		o.verifier = verifier
	}
}

// WithNotifier replaces the notifier built from configuration.
func WithNotifier(notifier services.OrderNotifier) Option {
	return func(o *options) {
		o.notifier = notifier
	}
}

// WithBuildInfo sets the metadata reported by health endpoints.
func WithBuildInfo(build services.BuildInfo) Option {
	return func(o *options) {
		o.build = build
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies for cfg. Partially built resources are released
// when construction fails.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *Container, err error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if o.build.StartedAt.IsZero() {
		o.build.StartedAt = o.clock().UTC()
	}
	if o.build.Environment == "" {
		o.build.Environment = cfg.Security.Environment
	}

	c := &Container{Config: cfg, Logger: logger, Metrics: metrics.NewRecorder()}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	b := openBackends(cfg)
	reg, products, err := buildRegistry(cfg, b, o.clock, logger)
	if err != nil {
		if b.firestore != nil {
			_ = b.firestore.Close(ctx)
		}
		if b.redis != nil {
			_ = b.redis.Close()
		}
		return nil, err
	}
	c.Repositories = reg
	c.Products = products

	notifier := o.notifier
	if notifier == nil {
		multi, err := notifications.Build(ctx, cfg.Notifier, logger.Named("notifications"))
		if err != nil {
			return nil, err
		}
		c.notifier = multi
		if multi.Len() > 0 {
			notifier = multi
		}
	}

	if c.Services, err = buildServices(cfg, reg, notifier, c.Metrics, logger, o); err != nil {
		return nil, err
	}

	verifier := o.verifier
	if verifier == nil && cfg.Firebase.ProjectID != "" {
		if verifier, err = auth.NewFirebaseVerifier(ctx, cfg.Firebase); err != nil {
			return nil, fmt.Errorf("build firebase verifier: %w", err)
		}
	}
	if verifier == nil {
		logger.Warn("firebase verifier not configured; authenticated routes will reject requests")
	}

	idempotencyStore, err := buildIdempotencyStore(cfg, b)
	if err != nil {
		return nil, err
	}
	bgCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	c.stopBg = stop
	if _, ok := idempotencyStore.(*idempotency.MemoryStore); ok {
		c.background.Add(1)
		go func() {
			defer c.background.Done()
			idempotency.RunCleanup(bgCtx, idempotencyStore, cfg.Idempotency.CleanupInterval, logger.Named("idempotency"))
		}()
	}

	c.Router = c.buildRouter(verifier, idempotencyStore, o)
	return c, nil
}

func buildServices(cfg config.Config, reg repositories.Registry, notifier services.OrderNotifier, recorder *metrics.Recorder, logger *zap.Logger, o options) (Services, error) {
	eventLogger := observability.EventLogger(logger.Named("orders"))

	ledger, err := services.NewStockLedger(services.StockLedgerDeps{
		Repository: reg.StockLedger(),
		Metrics:    recorder,
		Logger:     eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build stock ledger: %w", err)
	}

	snapshots, err := services.NewSnapshotBuilder(services.SnapshotBuilderDeps{
		Catalog: reg.Catalog(),
		Ledger:  ledger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build snapshot builder: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:            reg.Orders(),
		Counters:          reg.Counters(),
		Snapshots:         snapshots,
		Ledger:            ledger,
		Notifier:          notifier,
		UnitOfWork:        reg,
		Metrics:           recorder,
		Clock:             o.clock,
		Logger:            eventLogger,
		EstimatedDelivery: cfg.Orders.EstimatedDelivery,
		NumberPrefix:      cfg.Orders.NumberPrefix,
		NotifyTimeout:     cfg.Notifier.Timeout,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	bulk, err := services.NewBulkTransitionCoordinator(services.BulkTransitionCoordinatorDeps{
		Orders:      orders,
		Concurrency: cfg.Orders.BulkConcurrency,
		MaxBatch:    cfg.Orders.BulkMax,
		Logger:      eventLogger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build bulk coordinator: %w", err)
	}

	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		Clock:            o.clock,
		Build:            o.build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}

	return Services{Ledger: ledger, Orders: orders, Bulk: bulk, System: system}, nil
}

func buildIdempotencyStore(cfg config.Config, b backends) (idempotency.Store, error) {
	switch cfg.Idempotency.Driver {
	case config.DriverRedis:
		if b.redis == nil {
			return nil, errors.New("redis idempotency store requires a redis client")
		}
		store, err := idempotency.NewRedisStore(b.redis)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return idempotency.NewMemoryStore(), nil
	}
}

func (c *Container) buildRouter(verifier auth.TokenVerifier, store idempotency.Store, o options) http.Handler {
	cfg := c.Config
	authn := auth.NewAuthenticator(verifier)

	jwks := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, &http.Client{Timeout: jwksTimeout}, o.clock)
	oidc := auth.NewOIDCValidator(jwks, c.Logger.Named("oidc"), c.Metrics.Verification)

	orders := handlers.NewOrderHandlers(authn, c.Services.Orders,
		handlers.WithOrderIdempotency(idempotency.Middleware(store,
			idempotency.WithHeader(cfg.Idempotency.Header),
			idempotency.WithTTL(cfg.Idempotency.TTL),
			idempotency.WithClock(o.clock),
		)),
		handlers.WithCheckoutRateLimit(cfg.Orders.CheckoutRateLimit, cfg.Orders.CheckoutRateWindow, o.clock),
	)
	admin := handlers.NewAdminOrderHandlers(authn, c.Services.Orders, c.Services.Bulk)
	internal := handlers.NewInternalOrderHandlers(c.Services.Bulk)
	health := handlers.NewHealthHandlers(
		handlers.WithHealthSystemService(c.Services.System),
		handlers.WithHealthBuildInfo(o.build),
		handlers.WithHealthClock(o.clock),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.InjectLoggerMiddleware(c.Logger),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(c.Logger),
			c.Metrics.Middleware,
		),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(health),
		handlers.WithMetricsHandler(c.Metrics.Handler()),
		handlers.WithOrderRoutes(orders.Routes),
		handlers.WithAdminRoutes(admin.Routes),
		handlers.WithInternalRoutes(internal.Routes),
		handlers.WithInternalMiddlewares(oidc.RequireOIDC(cfg.Security.OIDC.Audience, cfg.Security.OIDC.Issuers)),
	)
}

// Close stops background workers, flushes notifier sinks and releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.stopBg != nil {
		c.stopBg()
		c.background.Wait()
	}
	var errs []error
	if c.notifier != nil {
		if err := c.notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close notifier: %w", err))
		}
	}
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close repositories: %w", err))
		}
	}
	return errors.Join(errs...)
}
