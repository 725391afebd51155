package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "solestore-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "solestore-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Store.Driver != DriverFirestore || cfg.Store.StockLedgerDriver != DriverFirestore {
		t.Errorf("unexpected store drivers: %+v", cfg.Store)
	}
	if !slices.Equal(cfg.Notifier.Drivers, []string{NotifierLog}) {
		t.Errorf("expected log notifier by default, got %v", cfg.Notifier.Drivers)
	}
	if cfg.Notifier.Timeout != 5*time.Second {
		t.Errorf("unexpected notifier timeout: %s", cfg.Notifier.Timeout)
	}
	if cfg.Orders.BulkConcurrency != 8 || cfg.Orders.BulkMax != 200 {
		t.Errorf("unexpected bulk defaults: %+v", cfg.Orders)
	}
	if cfg.Orders.EstimatedDelivery != 7*24*time.Hour {
		t.Errorf("unexpected estimated delivery: %s", cfg.Orders.EstimatedDelivery)
	}
	if cfg.Orders.CheckoutRateLimit != 10 || cfg.Orders.CheckoutRateWindow != time.Minute {
		t.Errorf("unexpected checkout throttle: %d per %s", cfg.Orders.CheckoutRateLimit, cfg.Orders.CheckoutRateWindow)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url, got %s", cfg.Security.OIDC.JWKSURL)
	}
	if !slices.Equal(cfg.Security.OIDC.Issuers, []string{defaultSecurityIssuer}) {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.Driver != DriverMemory {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":               "9090",
		"API_FIREBASE_PROJECT_ID":       "solestore-prod",
		"API_FIRESTORE_PROJECT_ID":      "solestore-db",
		"API_STOCK_LEDGER_DRIVER":       "Redis",
		"API_REDIS_ADDR":                "10.0.0.5:6379",
		"API_REDIS_PASSWORD":            "sm://redis/password",
		"API_REDIS_DB":                  "2",
		"API_NOTIFIER_DRIVER":           "pubsub, rabbitmq,kafka",
		"API_PUBSUB_ORDER_TOPIC":        "orders",
		"API_RABBITMQ_URL":              "secret://rabbitmq/url",
		"API_KAFKA_BROKERS":             "k1:9092, k2:9092",
		"API_ORDERS_BULK_CONCURRENCY":   "4",
		"API_ORDERS_BULK_MAX":           "50",
		"API_ORDERS_ESTIMATED_DELIVERY": "72h",
		"API_IDEMPOTENCY_DRIVER":        "redis",
		"API_SECURITY_ENVIRONMENT":      "PROD",
		"API_SECURITY_OIDC_AUDIENCE":    "https://api.example.com",
	}
	secrets := map[string]string{
		"secret://redis/password": "redis-pass",
		"secret://rabbitmq/url":   "amqp://user:pass@mq:5672/",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("unknown secret")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("unexpected port %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "solestore-db" {
		t.Errorf("unexpected firestore project %s", cfg.Firestore.ProjectID)
	}
	if cfg.Notifier.PubSub.ProjectID != "solestore-db" {
		t.Errorf("expected pubsub project to follow firestore, got %s", cfg.Notifier.PubSub.ProjectID)
	}
	if cfg.Store.StockLedgerDriver != DriverRedis {
		t.Errorf("expected redis ledger, got %s", cfg.Store.StockLedgerDriver)
	}
	if cfg.Redis.Password != "redis-pass" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if cfg.Notifier.RabbitMQ.URL != "amqp://user:pass@mq:5672/" {
		t.Errorf("expected resolved rabbitmq url, got %s", cfg.Notifier.RabbitMQ.URL)
	}
	if !slices.Equal(cfg.Notifier.Drivers, []string{NotifierPubSub, NotifierRabbitMQ, NotifierKafka}) {
		t.Errorf("unexpected notifier drivers %v", cfg.Notifier.Drivers)
	}
	if !slices.Equal(cfg.Notifier.Kafka.Brokers, []string{"k1:9092", "k2:9092"}) {
		t.Errorf("unexpected kafka brokers %v", cfg.Notifier.Kafka.Brokers)
	}
	if cfg.Orders.BulkConcurrency != 4 || cfg.Orders.BulkMax != 50 || cfg.Orders.EstimatedDelivery != 72*time.Hour {
		t.Errorf("unexpected orders config %+v", cfg.Orders)
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected lower-cased environment, got %s", cfg.Security.Environment)
	}
	if !cfg.UsesRedis() || !cfg.UsesFirestore() {
		t.Errorf("expected both firestore and redis in use")
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":               "postgres",
		"API_STOCK_LEDGER_DRIVER":        "redis",
		"API_NOTIFIER_DRIVER":            "kafka,smtp",
		"API_ORDERS_BULK_CONCURRENCY":    "0",
		"API_ORDERS_CHECKOUT_RATE_LIMIT": "-1",
		"API_NOTIFIER_TIMEOUT":           "0s",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"Store.Driver", "Redis.Addr", "Notifier.Kafka", "Notifier.Drivers[smtp]", "Orders.BulkConcurrency", "Orders.CheckoutRateLimit", "Notifier.Timeout"} {
		if !slices.Contains(validationErr.Fields(), field) {
			t.Errorf("expected %s in %v", field, validationErr.Fields())
		}
	}
}

func TestLoadMemoryDriversNeedNoProject(t *testing.T) {
	env := map[string]string{
		"API_STORE_DRIVER":        "memory",
		"API_STOCK_LEDGER_DRIVER": "memory",
	}
	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.UsesFirestore() || cfg.UsesRedis() {
		t.Fatalf("memory configuration should not require firestore or redis")
	}
}

func TestLoadStockLedgerStorePairs(t *testing.T) {
	tests := []struct {
		store, ledger string
		wantErr       bool
	}{
		{store: "memory", ledger: "memory"},
		{store: "memory", ledger: "redis"},
		{store: "firestore", ledger: "redis"},
		{store: "firestore", ledger: "firestore"},
		{store: "memory", ledger: "firestore", wantErr: true},
		{store: "firestore", ledger: "memory", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.store+"/"+tc.ledger, func(t *testing.T) {
			env := map[string]string{
				"API_FIRESTORE_PROJECT_ID": "solestore-dev",
				"API_REDIS_ADDR":           "localhost:6379",
				"API_STORE_DRIVER":         tc.store,
				"API_STOCK_LEDGER_DRIVER":  tc.ledger,
			}
			_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
			if !tc.wantErr {
				if err != nil {
					t.Fatalf("Load returned error: %v", err)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || !slices.Contains(validationErr.Fields(), "Store.StockLedgerDriver") {
				t.Fatalf("expected Store.StockLedgerDriver validation error, got %v", err)
			}
		})
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "solestore-dev",
		"API_REDIS_PASSWORD":      "sm://redis/password",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if secretErr.Ref != "secret://redis/password" {
		t.Fatalf("expected normalised ref, got %s", secretErr.Ref)
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nexport API_FIREBASE_PROJECT_ID=from-file\nAPI_SERVER_PORT=\"7070\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "6060"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" {
		t.Errorf("expected project from .env, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected explicit map to win, got %s", cfg.Server.Port)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["API_SERVER_PORT"] != "7070" {
		t.Errorf("expected unquoted port from .env, got %q", values["API_SERVER_PORT"])
	}
}
