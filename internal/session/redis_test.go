package session

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// redisClient connects to $REDIS_URL, or starts a throwaway redis container
// when GO_TEST_INTEGRATION is set. Otherwise the test is skipped.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		url = startRedis(t)
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	return client
}

func startRedis(t *testing.T) string {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("set REDIS_URL or GO_TEST_INTEGRATION=1 to run redis tests")
	}

	ctx := context.Background()
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestRedisStore(t *testing.T) {
	client := redisClient(t)
	store := NewRedisStore(client, "practicedesk:test", Namespace(t.Name()), time.Minute)
	t.Cleanup(func() {
		_ = store.Clear(context.Background())
		_ = store.Close()
	})

	exerciseStore(t, store)
}

func TestRedisStore_SetExtendsTTL(t *testing.T) {
	client := redisClient(t)
	store := NewRedisStore(client, "practicedesk:test", Namespace(t.Name()), time.Minute)
	ctx := context.Background()
	t.Cleanup(func() {
		_ = store.Clear(ctx)
		_ = store.Close()
	})

	require.NoError(t, store.Set(ctx, KeyAccessToken, "a"))
	ttl, err := client.TTL(ctx, store.HashKey()).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)
}

func TestNewRedisStoreDefaults(t *testing.T) {
	store := NewRedisStore(nil, "", "abc", 0)
	assert.Equal(t, "practicedesk:session:abc", store.HashKey())
	assert.Equal(t, DefaultRedisTTL, store.ttl)
}
