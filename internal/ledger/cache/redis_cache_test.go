package cache_test

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tablestack/tablestack-backend/internal/ledger/cache"
	"github.com/tablestack/tablestack-backend/pkg/testutil"
)

type totals struct {
	Revenue string `json:"revenue"`
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisReportCache_InvalidateIsPerRestaurant(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	c := cache.NewRedisReportCache(startRedis(t))

	var got totals
	slot1, found, err := c.Get(ctx, "r-1", "totals:2024-06-01", &got)
	require.NoError(t, err)
	require.False(t, found)
	slot2, _, err := c.Get(ctx, "r-2", "totals:2024-06-01", &got)
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, slot1, totals{Revenue: "100.00"}, time.Minute))
	require.NoError(t, c.Set(ctx, slot2, totals{Revenue: "7.00"}, time.Minute))

	_, found, err = c.Get(ctx, "r-1", "totals:2024-06-01", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "100.00", got.Revenue)

	require.NoError(t, c.Invalidate(ctx, "r-1"))

	_, found, err = c.Get(ctx, "r-1", "totals:2024-06-01", &got)
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = c.Get(ctx, "r-2", "totals:2024-06-01", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "7.00", got.Revenue)
}

func TestRedisReportCache_SetAfterInvalidateStaysHidden(t *testing.T) {
	testutil.SkipIfShort(t)
	ctx := context.Background()
	c := cache.NewRedisReportCache(startRedis(t))

	var got totals
	slot, found, err := c.Get(ctx, "r-1", "totals", &got)
	require.NoError(t, err)
	require.False(t, found)

	// the ledger changes while the report computed before it is in flight
	require.NoError(t, c.Invalidate(ctx, "r-1"))
	require.NoError(t, c.Set(ctx, slot, totals{Revenue: "10.00"}, time.Minute))

	_, found, err = c.Get(ctx, "r-1", "totals", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestNoopReportCache_NeverHits(t *testing.T) {
	ctx := context.Background()
	var c cache.ReportCache = cache.NoopReportCache{}

	slot, found, err := c.Get(ctx, "r-1", "k", &totals{})
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, c.Set(ctx, slot, totals{Revenue: "1"}, time.Minute))
	_, found, err = c.Get(ctx, "r-1", "k", &totals{})
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Invalidate(ctx, "r-1"))
}
