package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hookrelay/internal/dispatch/httpclient"
	"github.com/bargom/hookrelay/internal/dispatch/httpclient/stub"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
)

func newTestEngine(t *testing.T, cfg Config, client domain.HTTPClient) (*Engine, *repository.MemoryRepository) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	eng := NewEngine(cfg, EngineDeps{
		Webhooks:   repo,
		Events:     repo,
		State:      repo,
		Deliveries: repo,
		Client:     client,
	})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, eng.Start(ctx))
	t.Cleanup(func() {
		eng.Shutdown(context.Background())
		cancel()
	})
	return eng, repo
}

func TestEngine_SingleDispatchHappyPath(t *testing.T) {
	server := stub.New(http.StatusOK)
	defer server.Close()

	cfg := DefaultConfig()
	_, repo := newTestEngine(t, cfg, httpclient.New(httpclient.DefaultConfig()))
	ctx := context.Background()

	wh := &domain.Webhook{ID: 0, URL: server.URL(), Status: domain.Enabled(), Mode: domain.SingleAtMostOnce}
	require.NoError(t, repo.CreateWebhook(ctx, wh))
	ev := &domain.WebhookEvent{
		Key:     domain.EventKey{WebhookID: 0, EventID: 0},
		Content: "event payload",
		Headers: domain.Headers{{Name: "Accept", Value: "*/*"}},
	}
	require.NoError(t, repo.CreateEvent(ctx, ev))

	require.Eventually(t, func() bool { return server.Count() == 1 }, time.Second, 5*time.Millisecond)
	req := server.Requests()[0]
	assert.Equal(t, "event payload", string(req.Body))
	assert.Equal(t, "*/*", req.Headers.Get("Accept"))

	require.Eventually(t, func() bool {
		got, err := repo.GetEvent(ctx, ev.Key)
		return err == nil && got.Status == domain.EventDelivered
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_FanOutOnePerWebhook(t *testing.T) {
	const n = 20
	responses := make([]int, n)
	for i := range responses {
		responses[i] = http.StatusOK
	}
	server := stub.New(responses...)
	defer server.Close()

	cfg := DefaultConfig()
	_, repo := newTestEngine(t, cfg, httpclient.New(httpclient.DefaultConfig()))
	ctx := context.Background()

	for i := 0; i < n; i++ {
		wh := &domain.Webhook{ID: domain.WebhookID(i), URL: server.URL(), Status: domain.Enabled(), Mode: domain.SingleAtMostOnce}
		require.NoError(t, repo.CreateWebhook(ctx, wh))
		ev := &domain.WebhookEvent{Key: domain.EventKey{WebhookID: domain.WebhookID(i), EventID: 0}, Content: "x"}
		require.NoError(t, repo.CreateEvent(ctx, ev))
	}

	require.Eventually(t, func() bool { return server.Count() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestEngine_DisabledWebhookDropsEvents(t *testing.T) {
	server := stub.New()
	defer server.Close()

	cfg := DefaultConfig()
	_, repo := newTestEngine(t, cfg, httpclient.New(httpclient.DefaultConfig()))
	ctx := context.Background()

	wh := &domain.Webhook{ID: 0, URL: server.URL(), Status: domain.Disabled(), Mode: domain.SingleAtMostOnce}
	require.NoError(t, repo.CreateWebhook(ctx, wh))
	require.NoError(t, repo.SetState(ctx, wh.ID, domain.Disabled()))

	for i := 0; i < 10; i++ {
		ev := &domain.WebhookEvent{Key: domain.EventKey{WebhookID: 0, EventID: domain.EventID(i)}, Content: "x"}
		require.NoError(t, repo.CreateEvent(ctx, ev))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, server.Count())

	for i := 0; i < 10; i++ {
		got, err := repo.GetEvent(ctx, domain.EventKey{WebhookID: 0, EventID: domain.EventID(i)})
		require.NoError(t, err)
		assert.Equal(t, domain.EventNew, got.Status)
	}
}

func TestEngine_BatchingBySize(t *testing.T) {
	responses := make([]int, 10)
	for i := range responses {
		responses[i] = http.StatusOK
	}
	server := stub.New(responses...)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.Batching = BatchingConfig{MaxSize: 10, MaxWait: 5 * time.Second}
	_, repo := newTestEngine(t, cfg, httpclient.New(httpclient.DefaultConfig()))
	ctx := context.Background()

	wh := &domain.Webhook{ID: 0, URL: server.URL(), Status: domain.Enabled(), Mode: domain.BatchedAtMostOnce}
	require.NoError(t, repo.CreateWebhook(ctx, wh))

	for i := 0; i < 100; i++ {
		ev := &domain.WebhookEvent{
			Key:     domain.EventKey{WebhookID: 0, EventID: domain.EventID(i)},
			Content: "x",
			Headers: domain.Headers{{Name: "Content-Type", Value: "application/json"}},
		}
		require.NoError(t, repo.CreateEvent(ctx, ev))
	}

	require.Eventually(t, func() bool { return server.Count() == 10 }, 2*time.Second, 5*time.Millisecond)
	for _, req := range server.Requests() {
		var arr []interface{}
		require.NoError(t, json.Unmarshal(req.Body, &arr))
		assert.Len(t, arr, 10)
	}
}

func TestEngine_MissingWebhookSurfacesError(t *testing.T) {
	cfg := DefaultConfig()
	eng, repo := newTestEngine(t, cfg, httpclient.New(httpclient.DefaultConfig()))
	ctx := context.Background()

	errCh := eng.Errors(ctx)

	ev := &domain.WebhookEvent{Key: domain.EventKey{WebhookID: 0, EventID: 404}, Content: "x"}
	require.NoError(t, repo.CreateEvent(ctx, ev))

	select {
	case err := <-errCh:
		var missing *domain.MissingWebhookError
		assert.ErrorAs(t, err, &missing)
		assert.Equal(t, domain.WebhookID(0), missing.WebhookID)
	case <-time.After(time.Second):
		t.Fatal("expected MissingWebhookError")
	}
}
