// Package webhooks implements the operator API's webhook and delivery
// endpoints.
package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bargom/hookrelay/internal/api/types"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"

	"github.com/bargom/hookrelay/internal/api/handlers"
)

// Handler serves the webhook registry and delivery-history endpoints.
type Handler struct {
	handlers.Base
	webhooks   repository.WebhookRepo
	deliveries repository.DeliveryRepo
	nextID     atomic.Int64
}

// NewHandler constructs a Handler, seeding its id allocator from the
// webhooks already registered so ids never collide across restarts.
func NewHandler(webhooks repository.WebhookRepo, deliveries repository.DeliveryRepo) *Handler {
	h := &Handler{
		Base:       handlers.NewBase(),
		webhooks:   webhooks,
		deliveries: deliveries,
	}

	existing, err := webhooks.ListWebhooks(context.Background())
	if err == nil {
		var max domain.WebhookID
		for _, w := range existing {
			if w.ID > max {
				max = w.ID
			}
		}
		h.nextID.Store(int64(max))
	}

	return h
}

// Create registers a new webhook.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req types.CreateWebhookRequest
	if err := h.DecodeAndValidate(r, &req); err != nil {
		h.RespondValidationError(w, err)
		return
	}

	mode, ok := types.ParseMode(req.Mode)
	if !ok {
		h.RespondError(w, http.StatusBadRequest, "invalid mode")
		return
	}

	var headers domain.Headers
	for _, hf := range req.Headers {
		headers = append(headers, domain.Header{Name: hf.Name, Value: hf.Value})
	}

	now := time.Now()
	webhook := &domain.Webhook{
		ID:        domain.WebhookID(h.nextID.Add(1)),
		URL:       req.URL,
		Label:     req.Label,
		Status:    domain.Enabled(),
		Mode:      mode,
		Secret:    req.Secret,
		Headers:   headers,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.webhooks.CreateWebhook(r.Context(), webhook); err != nil {
		h.RespondError(w, http.StatusInternalServerError, "failed to create webhook")
		return
	}

	h.RespondJSON(w, http.StatusCreated, types.FromWebhook(webhook))
}

// Get returns one webhook by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	webhook, err := h.webhooks.GetWebhook(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}

	h.RespondJSON(w, http.StatusOK, types.FromWebhook(webhook))
}

// List returns every registered webhook.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	webhooks, err := h.webhooks.ListWebhooks(r.Context())
	if err != nil {
		h.RespondError(w, http.StatusInternalServerError, "failed to list webhooks")
		return
	}

	resp := types.ListWebhooksResponse{Webhooks: make([]*types.WebhookResponse, 0, len(webhooks))}
	for _, wh := range webhooks {
		resp.Webhooks = append(resp.Webhooks, types.FromWebhook(wh))
	}
	h.RespondJSON(w, http.StatusOK, resp)
}

// Update applies the operator enable/disable mutation. This is the
// operator re-enable path that moves a webhook out of Unavailable.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	var req types.UpdateWebhookRequest
	if err := h.DecodeAndValidate(r, &req); err != nil {
		h.RespondValidationError(w, err)
		return
	}
	if req.Status == nil {
		h.RespondError(w, http.StatusBadRequest, "status is required")
		return
	}

	var status domain.WebhookStatus
	switch *req.Status {
	case "enabled":
		status = domain.Enabled()
	case "disabled":
		status = domain.Disabled()
	default:
		h.RespondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	if err := h.webhooks.SetWebhookStatus(r.Context(), id, status); err != nil {
		h.respondLookupError(w, err)
		return
	}

	webhook, err := h.webhooks.GetWebhook(r.Context(), id)
	if err != nil {
		h.respondLookupError(w, err)
		return
	}
	h.RespondJSON(w, http.StatusOK, types.FromWebhook(webhook))
}

// ListDeliveries returns recent delivery attempts for a webhook.
func (h *Handler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid webhook id")
		return
	}

	if _, err := h.webhooks.GetWebhook(r.Context(), id); err != nil {
		h.respondLookupError(w, err)
		return
	}

	limit, offset := handlers.PaginationParams(r)
	filter := repository.DeliveryFilter{Limit: limit, Offset: offset}
	if s := r.URL.Query().Get("success"); s != "" {
		ok := s == "true"
		filter.Success = &ok
	}

	deliveries, err := h.deliveries.ListDeliveries(r.Context(), id, filter)
	if err != nil {
		h.RespondError(w, http.StatusInternalServerError, "failed to list deliveries")
		return
	}

	resp := types.ListDeliveriesResponse{Deliveries: make([]*types.DeliveryResponse, 0, len(deliveries))}
	for _, d := range deliveries {
		resp.Deliveries = append(resp.Deliveries, types.FromDelivery(d))
	}
	h.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		h.RespondError(w, http.StatusNotFound, "webhook not found")
		return
	}
	h.RespondError(w, http.StatusInternalServerError, "repository error")
}

func parseID(r *http.Request) (domain.WebhookID, error) {
	raw := chi.URLParam(r, "id")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return domain.WebhookID(n), nil
}
