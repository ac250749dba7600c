// Package types defines the operator API's request and response bodies.
package types

import (
	"time"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

const (
	// DefaultLimit is applied to delivery listing when no limit is given.
	DefaultLimit = 20
	// DefaultMaxLimit caps the limit a caller may request.
	DefaultMaxLimit = 100
)

// ErrorResponse is the JSON body returned on any handler failure.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details,omitempty"`
}

// HeaderField mirrors domain.Header for JSON (un)marshalling.
type HeaderField struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value" validate:"required"`
}

// CreateWebhookRequest registers a new webhook.
type CreateWebhookRequest struct {
	URL     string        `json:"url" validate:"required,url"`
	Label   string        `json:"label" validate:"omitempty,max=255"`
	Mode    string        `json:"mode" validate:"required,oneof=single-at-most-once single-at-least-once batched-at-most-once batched-at-least-once"`
	Secret  string        `json:"secret" validate:"omitempty,min=16"`
	Headers []HeaderField `json:"headers" validate:"omitempty,dive"`
}

// UpdateWebhookRequest applies the operator re-enable/disable mutation.
// Status is the only mutable field; a pointer distinguishes "not supplied"
// from the zero value.
type UpdateWebhookRequest struct {
	Status *string `json:"status" validate:"omitempty,oneof=enabled disabled"`
}

// WebhookResponse represents a webhook in API responses.
type WebhookResponse struct {
	ID        int64         `json:"id"`
	URL       string        `json:"url"`
	Label     string        `json:"label,omitempty"`
	Status    string        `json:"status"`
	Mode      string        `json:"mode"`
	Headers   []HeaderField `json:"headers,omitempty"`
	HasSecret bool          `json:"has_secret"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FromWebhook converts a domain.Webhook to its API representation. The
// secret itself is never echoed back; only whether one is configured.
func FromWebhook(w *domain.Webhook) *WebhookResponse {
	resp := &WebhookResponse{
		ID:        int64(w.ID),
		URL:       w.URL,
		Label:     w.Label,
		Status:    w.Status.Kind.String(),
		Mode:      modeString(w.Mode),
		HasSecret: w.Secret != "",
		CreatedAt: w.CreatedAt,
		UpdatedAt: w.UpdatedAt,
	}
	for _, h := range w.Headers {
		resp.Headers = append(resp.Headers, HeaderField{Name: h.Name, Value: h.Value})
	}
	return resp
}

// ListWebhooksResponse wraps a webhook listing.
type ListWebhooksResponse struct {
	Webhooks []*WebhookResponse `json:"webhooks"`
}

// DeliveryResponse represents one delivery attempt.
type DeliveryResponse struct {
	ID          string    `json:"id"`
	WebhookID   int64     `json:"webhook_id"`
	EventID     int64     `json:"event_id"`
	StatusCode  int       `json:"status_code"`
	Success     bool      `json:"success"`
	Attempt     int       `json:"attempt"`
	DurationMS  int64     `json:"duration_ms"`
	Error       string    `json:"error,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// FromDelivery converts a domain.DeliveryRecord to its API representation.
func FromDelivery(d *domain.DeliveryRecord) *DeliveryResponse {
	return &DeliveryResponse{
		ID:          d.ID,
		WebhookID:   int64(d.WebhookID),
		EventID:     int64(d.EventID),
		StatusCode:  d.StatusCode,
		Success:     d.Success,
		Attempt:     d.Attempt,
		DurationMS:  d.Duration.Milliseconds(),
		Error:       d.Error,
		DeliveredAt: d.DeliveredAt,
	}
}

// ListDeliveriesResponse wraps a delivery listing.
type ListDeliveriesResponse struct {
	Deliveries []*DeliveryResponse `json:"deliveries"`
}

func modeString(m domain.DeliveryMode) string {
	return m.Batching.String() + "-" + m.Semantics.String()
}

// ParseMode maps the wire mode string back to a domain.DeliveryMode.
func ParseMode(s string) (domain.DeliveryMode, bool) {
	switch s {
	case "single-at-most-once":
		return domain.SingleAtMostOnce, true
	case "single-at-least-once":
		return domain.SingleAtLeastOnce, true
	case "batched-at-most-once":
		return domain.BatchedAtMostOnce, true
	case "batched-at-least-once":
		return domain.BatchedAtLeastOnce, true
	default:
		return domain.DeliveryMode{}, false
	}
}
