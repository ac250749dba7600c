package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hookrelay/internal/cache"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
)

func TestStateCache_GetFallsBackToRepo(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, domain.WebhookID(1), domain.Retrying(time.Now())))

	c := NewStateCache(repo)

	status, err := c.Get(ctx, domain.WebhookID(1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, status.Kind)

	// Second read must come from the in-process layer, not the repo again;
	// mutating the repo directly shouldn't be visible until the next SetStatus/Observe.
	require.NoError(t, repo.SetState(ctx, domain.WebhookID(1), domain.Disabled()))
	status, err = c.Get(ctx, domain.WebhookID(1))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, status.Kind)
}

func TestStateCache_GetMissing(t *testing.T) {
	repo := repository.NewMemoryRepository()
	c := NewStateCache(repo)

	_, err := c.Get(context.Background(), domain.WebhookID(99))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStateCache_SetStatusWritesThroughRepoAndRegistry(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	webhook := &domain.Webhook{ID: domain.WebhookID(1), URL: "https://example.com/hook"}
	require.NoError(t, repo.CreateWebhook(ctx, webhook))

	c := NewStateCache(repo, WithRegistry(repo))

	require.NoError(t, c.SetStatus(ctx, webhook.ID, domain.Disabled()))

	persisted, err := repo.GetState(ctx, webhook.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, persisted.Kind)

	fromRegistry, err := repo.GetWebhook(ctx, webhook.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisabled, fromRegistry.Status.Kind)

	cached, ok := c.Peek(webhook.ID)
	require.True(t, ok)
	assert.Equal(t, domain.StatusDisabled, cached.Kind)
}

func TestStateCache_Observe(t *testing.T) {
	repo := repository.NewMemoryRepository()
	c := NewStateCache(repo)

	c.Observe(domain.WebhookID(1), domain.Unavailable(time.Now()))

	status, ok := c.Peek(domain.WebhookID(1))
	require.True(t, ok)
	assert.Equal(t, domain.StatusUnavailable, status.Kind)

	// Observe never reaches the repo.
	_, err := repo.GetState(context.Background(), domain.WebhookID(1))
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestStateCache_HotCacheServesOnProcessRestart(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	hot := cache.NewMemoryCache(cache.Config{Type: "memory", DefaultTTL: time.Minute})
	defer hot.Close()

	writer := NewStateCache(repo, WithHotCache(hot))
	require.NoError(t, writer.SetStatus(ctx, domain.WebhookID(7), domain.Retrying(time.Now())))

	// A fresh StateCache (as if the process restarted) with an empty
	// in-process map still finds the status via the shared hot cache,
	// without touching the repo.
	require.NoError(t, repo.SetState(ctx, domain.WebhookID(7), domain.Disabled()))

	reader := NewStateCache(repo, WithHotCache(hot))
	status, err := reader.Get(ctx, domain.WebhookID(7))
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, status.Kind, "hot cache projection should win over the repo until it expires")
}
