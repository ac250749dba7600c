//go:build integration

package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/bargom/hookrelay/internal/cache"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
)

func setupRedisHotCache(t *testing.T) (cache.Cache, func()) {
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)

	connStr, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	c, err := cache.NewRedisCache(cache.Config{
		Type:       "redis",
		URL:        connStr,
		DefaultTTL: time.Minute,
		Prefix:     "hookrelay-test",
	})
	require.NoError(t, err)

	cleanup := func() {
		c.Close()
		container.Terminate(ctx)
	}

	return c, cleanup
}

func TestStateCache_Integration_RedisHotLayer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	hot, cleanup := setupRedisHotCache(t)
	defer cleanup()
	ctx := context.Background()

	repo := repository.NewMemoryRepository()
	writer := NewStateCache(repo, WithHotCache(hot))

	require.NoError(t, writer.SetStatus(ctx, domain.WebhookID(42), domain.Retrying(time.Now())))

	// Simulate a second process instance sharing the same Redis hot layer:
	// a fresh StateCache with an empty in-process map still resolves the
	// status from Redis rather than the durable repo.
	require.NoError(t, repo.SetState(ctx, domain.WebhookID(42), domain.Disabled()))

	reader := NewStateCache(repo, WithHotCache(hot))
	status, err := reader.Get(ctx, domain.WebhookID(42))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, status.Kind)
}
