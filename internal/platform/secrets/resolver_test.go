package secrets

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err, ok := f.errs[req.GetName()]; ok {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (f *fakeSecretClient) Close() error { return nil }

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestResolverCachesRemoteSecret(t *testing.T) {
	client := newFakeSecretClient()
	resource := "projects/solestore/secrets/redis-password/versions/latest"
	client.values[resource] = "s3cret"
	resolver := NewResolver(context.Background(), Options{ProjectID: "solestore", Client: client, FallbackFile: "/nonexistent"})

	for range 2 {
		got, err := resolver.ResolveSecret(context.Background(), "secret://redis-password")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", got)
	}
	assert.Equal(t, 1, client.calls[resource])
}

func TestResolverHonoursVersionAndProject(t *testing.T) {
	client := newFakeSecretClient()
	client.values["projects/shared/secrets/rabbitmq-url/versions/3"] = "amqp://mq"
	resolver := NewResolver(context.Background(), Options{ProjectID: "solestore", Client: client})

	got, err := resolver.ResolveSecret(context.Background(), "sm://rabbitmq-url?version=3&project=shared")
	require.NoError(t, err)
	assert.Equal(t, "amqp://mq", got)
}

func TestResolverFallsBackOnPermissionDenied(t *testing.T) {
	client := newFakeSecretClient()
	client.errs["projects/solestore/secrets/redis-password/versions/latest"] = status.Error(codes.PermissionDenied, "denied")
	path := writeFallback(t, "# local\nsm://redis-password=local-pass\n")
	resolver := NewResolver(context.Background(), Options{ProjectID: "solestore", Client: client, FallbackFile: path})

	got, err := resolver.ResolveSecret(context.Background(), "secret://redis-password")
	require.NoError(t, err)
	assert.Equal(t, "local-pass", got)
}

func TestResolverPropagatesHardErrors(t *testing.T) {
	client := newFakeSecretClient()
	client.errs["projects/solestore/secrets/redis-password/versions/latest"] = status.Error(codes.InvalidArgument, "bad name")
	path := writeFallback(t, "secret://redis-password=local-pass\n")
	resolver := NewResolver(context.Background(), Options{ProjectID: "solestore", Client: client, FallbackFile: path})

	_, err := resolver.ResolveSecret(context.Background(), "secret://redis-password")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestResolverWithoutProjectUsesFallbackOnly(t *testing.T) {
	path := writeFallback(t, "secret://rabbitmq-url=amqp://localhost\n")
	resolver := NewResolver(context.Background(), Options{FallbackFile: path})

	got, err := resolver.ResolveSecret(context.Background(), "secret://rabbitmq-url")
	require.NoError(t, err)
	assert.Equal(t, "amqp://localhost", got)

	_, err = resolver.ResolveSecret(context.Background(), "secret://unknown")
	assert.Error(t, err)

	_, err = resolver.ResolveSecret(context.Background(), "https://nope")
	assert.Error(t, err)
}
