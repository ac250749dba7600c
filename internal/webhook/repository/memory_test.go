package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

func TestMemoryRepository_CreateAndGetWebhook(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	webhook := &domain.Webhook{
		ID:        1,
		URL:       "https://example.com/hook",
		Label:     "billing",
		Status:    domain.Enabled(),
		Mode:      domain.SingleAtMostOnce,
		CreatedAt: time.Now(),
	}

	require.NoError(t, repo.CreateWebhook(ctx, webhook))

	got, err := repo.GetWebhook(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, webhook.URL, got.URL)
	assert.True(t, got.Status.IsEnabled())

	// Mutating the returned copy must not affect the stored record.
	got.URL = "https://mutated.example"
	reread, err := repo.GetWebhook(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/hook", reread.URL)
}

func TestMemoryRepository_CreateWebhook_Duplicate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	webhook := &domain.Webhook{ID: 1, URL: "https://example.com"}
	require.NoError(t, repo.CreateWebhook(ctx, webhook))

	err := repo.CreateWebhook(ctx, webhook)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryRepository_GetWebhook_NotFound(t *testing.T) {
	repo := NewMemoryRepository()
	_, err := repo.GetWebhook(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepository_ListWebhooks(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	for i := domain.WebhookID(0); i < 3; i++ {
		require.NoError(t, repo.CreateWebhook(ctx, &domain.Webhook{ID: i, URL: "https://example.com"}))
	}

	webhooks, err := repo.ListWebhooks(ctx)
	require.NoError(t, err)
	assert.Len(t, webhooks, 3)
}

func TestMemoryRepository_SetWebhookStatus_NotifiesSubscribers(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, repo.CreateWebhook(context.Background(), &domain.Webhook{ID: 1, URL: "https://example.com"}))

	updates, err := repo.SubscribeToWebhookUpdates(ctx)
	require.NoError(t, err)

	since := time.Now()
	require.NoError(t, repo.SetWebhookStatus(context.Background(), 1, domain.Retrying(since)))

	select {
	case change := <-updates:
		assert.Equal(t, domain.WebhookID(1), change.WebhookID)
		assert.Equal(t, domain.StatusRetrying, change.Status.Kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for webhook status change")
	}

	got, err := repo.GetWebhook(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, got.Status.Kind)
}

func TestMemoryRepository_SubscribeToWebhookUpdates_ClosesOnCancel(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())

	updates, err := repo.SubscribeToWebhookUpdates(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-updates:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel was not closed after cancel")
	}
}

func TestMemoryRepository_CreateEvent_EnforcesNewStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	key := domain.EventKey{EventID: 1, WebhookID: 1}
	event := &domain.WebhookEvent{Key: key, Status: domain.EventDelivered, Content: "payload"}

	require.NoError(t, repo.CreateEvent(ctx, event))

	got, err := repo.GetEvent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.EventNew, got.Status)
	assert.Equal(t, "payload", got.Content)
}

func TestMemoryRepository_CreateEvent_Duplicate(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	key := domain.EventKey{EventID: 1, WebhookID: 1}

	require.NoError(t, repo.CreateEvent(ctx, &domain.WebhookEvent{Key: key}))
	err := repo.CreateEvent(ctx, &domain.WebhookEvent{Key: key})
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestMemoryRepository_SetEventStatus_ValidTransitions(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	key := domain.EventKey{EventID: 1, WebhookID: 1}

	require.NoError(t, repo.CreateEvent(ctx, &domain.WebhookEvent{Key: key}))
	require.NoError(t, repo.SetEventStatus(ctx, key, domain.EventDelivering))
	require.NoError(t, repo.SetEventStatus(ctx, key, domain.EventFailed))
	// Failed -> Delivering is allowed for retries.
	require.NoError(t, repo.SetEventStatus(ctx, key, domain.EventDelivering))
	require.NoError(t, repo.SetEventStatus(ctx, key, domain.EventDelivered))
}

func TestMemoryRepository_SetEventStatus_RejectsInvalidTransition(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	key := domain.EventKey{EventID: 1, WebhookID: 1}

	require.NoError(t, repo.CreateEvent(ctx, &domain.WebhookEvent{Key: key}))

	err := repo.SetEventStatus(ctx, key, domain.EventDelivered)
	require.Error(t, err)

	var invalid *domain.InvalidStateChangeError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.EventNew, invalid.From)
	assert.Equal(t, domain.EventDelivered, invalid.To)
}

func TestMemoryRepository_SetEventStatus_RejectsAfterDelivered(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	key := domain.EventKey{EventID: 1, WebhookID: 1}

	require.NoError(t, repo.CreateEvent(ctx, &domain.WebhookEvent{Key: key}))
	require.NoError(t, repo.SetEventStatus(ctx, key, domain.EventDelivering))
	require.NoError(t, repo.SetEventStatus(ctx, key, domain.EventDelivered))

	err := repo.SetEventStatus(ctx, key, domain.EventDelivering)
	assert.Error(t, err)
}

func TestMemoryRepository_GetEventsByStatuses(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	keyA := domain.EventKey{EventID: 1, WebhookID: 1}
	keyB := domain.EventKey{EventID: 2, WebhookID: 1}
	require.NoError(t, repo.CreateEvent(ctx, &domain.WebhookEvent{Key: keyA}))
	require.NoError(t, repo.CreateEvent(ctx, &domain.WebhookEvent{Key: keyB}))
	require.NoError(t, repo.SetEventStatus(ctx, keyA, domain.EventDelivering))

	delivering, err := repo.GetEventsByStatuses(ctx, domain.EventDelivering)
	require.NoError(t, err)
	require.Len(t, delivering, 1)
	assert.Equal(t, keyA, delivering[0].Key)

	newAndDelivering, err := repo.GetEventsByStatuses(ctx, domain.EventNew, domain.EventDelivering)
	require.NoError(t, err)
	assert.Len(t, newAndDelivering, 2)
}

func TestMemoryRepository_SubscribeToNewEvents(t *testing.T) {
	repo := NewMemoryRepository()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := repo.SubscribeToNewEvents(ctx)
	require.NoError(t, err)

	key := domain.EventKey{EventID: 1, WebhookID: 1}
	require.NoError(t, repo.CreateEvent(context.Background(), &domain.WebhookEvent{Key: key, Content: "hello"}))

	select {
	case event := <-events:
		assert.Equal(t, key, event.Key)
		assert.Equal(t, "hello", event.Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for new event notification")
	}
}

func TestMemoryRepository_WebhookState(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.GetState(ctx, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	since := time.Now()
	require.NoError(t, repo.SetState(ctx, 1, domain.Retrying(since)))

	status, err := repo.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRetrying, status.Kind)

	// Last write wins.
	require.NoError(t, repo.SetState(ctx, 1, domain.Enabled()))
	status, err = repo.GetState(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusEnabled, status.Kind)
}
