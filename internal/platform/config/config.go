package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

const (
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 20 * time.Second
	defaultSecurityEnvironment = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer      = "https://accounts.google.com"
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyInterval = time.Hour
	defaultBulkConcurrency     = 8
	defaultBulkMax             = 200
	defaultEstimatedDelivery   = 7 * 24 * time.Hour
	defaultOrderNumberPrefix   = "SS"
	defaultCheckoutRateLimit   = 10
	defaultCheckoutRateWindow  = time.Minute
	defaultRabbitMQExchange    = "orders"
	defaultKafkaTopic          = "order-events"
	defaultPubSubTopic         = "order-events"
	defaultNotifierTimeout     = 5 * time.Second
)

// Backend drivers.
const (
	DriverFirestore = "firestore"
	DriverRedis     = "redis"
	DriverMemory    = "memory"
)

// Notifier drivers.
const (
	NotifierPubSub   = "pubsub"
	NotifierRabbitMQ = "rabbitmq"
	NotifierKafka    = "kafka"
	NotifierLog      = "log"
	NotifierNone     = "none"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	Store       StoreConfig
	Notifier    NotifierConfig
	Orders      OrdersConfig
	Security    SecurityConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// RedisConfig addresses the Redis instance used by the redis stock ledger and idempotency store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig selects persistence backends.
type StoreConfig struct {
	// Driver backs orders, catalog reads and counters: firestore or memory.
	Driver string
	// StockLedgerDriver backs per-size stock counters: firestore, redis or memory. Firestore and
	// memory ledgers must match Driver; a redis ledger mirrors its counters onto the catalog.
	StockLedgerDriver string
}

// NotifierConfig selects and configures order notification sinks.
type NotifierConfig struct {
	Drivers  []string
	Timeout  time.Duration
	PubSub   PubSubConfig
	RabbitMQ RabbitMQConfig
	Kafka    KafkaConfig
}

type PubSubConfig struct {
	ProjectID string
	Topic     string
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// OrdersConfig tunes order engine behaviour.
type OrdersConfig struct {
	BulkConcurrency   int
	BulkMax           int
	EstimatedDelivery time.Duration
	NumberPrefix      string
	// CheckoutRateLimit caps order creations per user within CheckoutRateWindow. Zero disables it.
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Driver          string
	Header          string
	TTL             time.Duration
	CleanupInterval time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return slices.Clone(e.fields)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	env, err := options.source()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            env.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     env.duration("API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    env.duration("API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     env.duration("API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: env.duration("API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       env.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: env.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    env.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: env.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:     env.str("API_REDIS_ADDR", ""),
			Password: env.str("API_REDIS_PASSWORD", ""),
			DB:       env.integer("API_REDIS_DB", 0),
		},
		Store: StoreConfig{
			Driver:            strings.ToLower(env.str("API_STORE_DRIVER", DriverFirestore)),
			StockLedgerDriver: strings.ToLower(env.str("API_STOCK_LEDGER_DRIVER", DriverFirestore)),
		},
		Notifier: NotifierConfig{
			Drivers: lowerAll(env.csv("API_NOTIFIER_DRIVER", []string{NotifierLog})),
			Timeout: env.duration("API_NOTIFIER_TIMEOUT", defaultNotifierTimeout),
			PubSub: PubSubConfig{
				ProjectID: env.str("API_PUBSUB_PROJECT_ID", ""),
				Topic:     env.str("API_PUBSUB_ORDER_TOPIC", defaultPubSubTopic),
			},
			RabbitMQ: RabbitMQConfig{
				URL:      env.str("API_RABBITMQ_URL", ""),
				Exchange: env.str("API_RABBITMQ_EXCHANGE", defaultRabbitMQExchange),
			},
			Kafka: KafkaConfig{
				Brokers: env.csv("API_KAFKA_BROKERS", nil),
				Topic:   env.str("API_KAFKA_TOPIC", defaultKafkaTopic),
			},
		},
		Orders: OrdersConfig{
			BulkConcurrency:    env.integer("API_ORDERS_BULK_CONCURRENCY", defaultBulkConcurrency),
			BulkMax:            env.integer("API_ORDERS_BULK_MAX", defaultBulkMax),
			EstimatedDelivery:  env.duration("API_ORDERS_ESTIMATED_DELIVERY", defaultEstimatedDelivery),
			NumberPrefix:       env.str("API_ORDERS_NUMBER_PREFIX", defaultOrderNumberPrefix),
			CheckoutRateLimit:  env.integer("API_ORDERS_CHECKOUT_RATE_LIMIT", defaultCheckoutRateLimit),
			CheckoutRateWindow: env.duration("API_ORDERS_CHECKOUT_RATE_WINDOW", defaultCheckoutRateWindow),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(env.str("API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  env.str("API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: env.str("API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  env.csv("API_SECURITY_OIDC_ISSUERS", []string{defaultSecurityIssuer}),
			},
		},
		Idempotency: IdempotencyConfig{
			Driver:          strings.ToLower(env.str("API_IDEMPOTENCY_DRIVER", DriverMemory)),
			Header:          env.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:             env.duration("API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval: env.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Notifier.PubSub.ProjectID == "" {
		cfg.Notifier.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{
		&cfg.Redis.Password,
		&cfg.Notifier.RabbitMQ.URL,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// UsesFirestore reports whether any configured backend requires a Firestore client.
func (c Config) UsesFirestore() bool {
	return c.Store.Driver == DriverFirestore || c.Store.StockLedgerDriver == DriverFirestore
}

// UsesRedis reports whether any configured backend requires a Redis client.
func (c Config) UsesRedis() bool {
	return c.Store.StockLedgerDriver == DriverRedis || c.Idempotency.Driver == DriverRedis
}

func validateConfig(cfg Config) error {
	var invalid []string
	add := func(field string) { invalid = append(invalid, field) }

	if cfg.Server.Port == "" {
		add("Server.Port")
	}
	if !slices.Contains([]string{DriverFirestore, DriverMemory}, cfg.Store.Driver) {
		add("Store.Driver")
	}
	switch ledger := cfg.Store.StockLedgerDriver; {
	case !slices.Contains([]string{DriverFirestore, DriverRedis, DriverMemory}, ledger):
		add("Store.StockLedgerDriver")
	case ledger != DriverRedis && ledger != cfg.Store.Driver:
		// firestore and memory ledgers write the catalog record itself, so they must share its store
		add("Store.StockLedgerDriver")
	}
	if cfg.UsesFirestore() && cfg.Firestore.ProjectID == "" {
		add("Firestore.ProjectID")
	}
	if cfg.UsesRedis() && cfg.Redis.Addr == "" {
		add("Redis.Addr")
	}

	for _, driver := range cfg.Notifier.Drivers {
		switch driver {
		case NotifierPubSub:
			if cfg.Notifier.PubSub.ProjectID == "" || cfg.Notifier.PubSub.Topic == "" {
				add("Notifier.PubSub")
			}
		case NotifierRabbitMQ:
			if cfg.Notifier.RabbitMQ.URL == "" || cfg.Notifier.RabbitMQ.Exchange == "" {
				add("Notifier.RabbitMQ")
			}
		case NotifierKafka:
			if len(cfg.Notifier.Kafka.Brokers) == 0 || cfg.Notifier.Kafka.Topic == "" {
				add("Notifier.Kafka")
			}
		case NotifierLog, NotifierNone:
		default:
			add(fmt.Sprintf("Notifier.Drivers[%s]", driver))
		}
	}

	if cfg.Notifier.Timeout <= 0 {
		add("Notifier.Timeout")
	}

	if cfg.Orders.BulkConcurrency <= 0 {
		add("Orders.BulkConcurrency")
	}
	if cfg.Orders.BulkMax <= 0 {
		add("Orders.BulkMax")
	}
	if cfg.Orders.EstimatedDelivery < 0 {
		add("Orders.EstimatedDelivery")
	}
	if strings.TrimSpace(cfg.Orders.NumberPrefix) == "" {
		add("Orders.NumberPrefix")
	}
	if cfg.Orders.CheckoutRateLimit < 0 {
		add("Orders.CheckoutRateLimit")
	}

	if !slices.Contains([]string{DriverMemory, DriverRedis}, cfg.Idempotency.Driver) {
		add("Idempotency.Driver")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		add("Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		add("Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		add("Idempotency.CleanupInterval")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		out = append(out, strings.ToLower(value))
	}
	return out
}
