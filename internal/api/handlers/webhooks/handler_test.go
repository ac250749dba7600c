package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hookrelay/internal/api/types"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
)

func newRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	h.RegisterRoutes(r, func(next http.Handler) http.Handler { return next }, nil)
	return r
}

func TestHandler_CreateAndGet(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := NewHandler(repo, repo)
	r := newRouter(h)

	body, _ := json.Marshal(types.CreateWebhookRequest{
		URL:  "http://example.invalid/hook",
		Mode: "single-at-most-once",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created types.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "enabled", created.Status)
	assert.Equal(t, "single-at-most-once", created.Mode)

	getReq := httptest.NewRequest(http.MethodGet, "/webhooks/"+itoa(created.ID), nil)
	getRec := httptest.NewRecorder()
	r.ServeHTTP(getRec, getReq)
	require.Equal(t, http.StatusOK, getRec.Code)
}

func TestHandler_CreateRejectsInvalidURL(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := NewHandler(repo, repo)
	r := newRouter(h)

	body, _ := json.Marshal(types.CreateWebhookRequest{URL: "not-a-url", Mode: "single-at-most-once"})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Update_Disable(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	wh := &domain.Webhook{ID: 1, URL: "http://example.invalid", Status: domain.Enabled(), Mode: domain.SingleAtMostOnce}
	require.NoError(t, repo.CreateWebhook(ctx, wh))

	h := NewHandler(repo, repo)
	r := newRouter(h)

	body, _ := json.Marshal(types.UpdateWebhookRequest{Status: strPtr("disabled")})
	req := httptest.NewRequest(http.MethodPatch, "/webhooks/1", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.WebhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "disabled", resp.Status)
}

func TestHandler_Get_NotFound(t *testing.T) {
	repo := repository.NewMemoryRepository()
	h := NewHandler(repo, repo)
	r := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/999", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ListDeliveries(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()
	wh := &domain.Webhook{ID: 1, URL: "http://example.invalid", Status: domain.Enabled(), Mode: domain.SingleAtMostOnce}
	require.NoError(t, repo.CreateWebhook(ctx, wh))
	require.NoError(t, repo.SaveDelivery(ctx, &domain.DeliveryRecord{ID: "d1", WebhookID: 1, EventID: 1, StatusCode: 200, Success: true}))

	h := NewHandler(repo, repo)
	r := newRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/1/deliveries", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ListDeliveriesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Deliveries, 1)
	assert.Equal(t, "d1", resp.Deliveries[0].ID)
}

func strPtr(s string) *string { return &s }

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
