// Package repository defines and implements the storage interfaces consumed
// by the dispatch engine: the webhook registry, the event store, and the
// durable webhook-state store. The engine depends only on these interfaces;
// it never imports a concrete backend.
package repository

import (
	"context"
	"errors"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

// ErrNotFound is returned by lookups that find no matching record.
var ErrNotFound = errors.New("repository: not found")

// ErrAlreadyExists is returned by creates that collide on identity.
var ErrAlreadyExists = errors.New("repository: already exists")

// WebhookUpdate holds the re-enable mutation an operator may apply to a
// webhook. All other webhook fields are immutable after creation.
type WebhookUpdate struct {
	Status *domain.WebhookStatus
}

// WebhookStatusChange is emitted on the subscription returned by
// WebhookRepo.SubscribeToWebhookUpdates.
type WebhookStatusChange struct {
	WebhookID domain.WebhookID
	Status    domain.WebhookStatus
}

// WebhookRepo is the webhook registry consumed by the dispatch engine.
type WebhookRepo interface {
	// GetWebhook returns the webhook, or ErrNotFound.
	GetWebhook(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error)

	// CreateWebhook registers a new webhook. Returns ErrAlreadyExists on id collision.
	CreateWebhook(ctx context.Context, webhook *domain.Webhook) error

	// ListWebhooks returns all registered webhooks.
	ListWebhooks(ctx context.Context) ([]*domain.Webhook, error)

	// SetWebhookStatus applies a status transition. Implementations persist
	// the new status; they do not validate transition legality.
	SetWebhookStatus(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error

	// SubscribeToWebhookUpdates streams status changes, including operator
	// re-enables, so the dispatch engine can react without polling. The
	// channel is closed when ctx is cancelled.
	SubscribeToWebhookUpdates(ctx context.Context) (<-chan WebhookStatusChange, error)
}

// WebhookEventRepo is the event store consumed by the dispatch engine.
type WebhookEventRepo interface {
	// CreateEvent persists a new event in status New.
	CreateEvent(ctx context.Context, event *domain.WebhookEvent) error

	// GetEvent returns the event, or ErrNotFound.
	GetEvent(ctx context.Context, key domain.EventKey) (*domain.WebhookEvent, error)

	// SetEventStatus applies a status transition. Implementations enforce
	// the New -> Delivering -> {Delivered, Failed} invariant and return
	// *domain.InvalidStateChangeError on an illegal transition.
	SetEventStatus(ctx context.Context, key domain.EventKey, status domain.EventStatus) error

	// GetEventsByStatuses returns events currently in any of the given
	// statuses, used on startup to recover crash-interrupted deliveries.
	GetEventsByStatuses(ctx context.Context, statuses ...domain.EventStatus) ([]*domain.WebhookEvent, error)

	// SubscribeToNewEvents streams events as they transition into New. The
	// channel is closed when ctx is cancelled.
	SubscribeToNewEvents(ctx context.Context) (<-chan *domain.WebhookEvent, error)
}

// WebhookStateRepo is the durable (webhookId -> status) key/value store
// backing the Webhook State Cache. Last-write-wins.
type WebhookStateRepo interface {
	// GetState returns the persisted status, or ErrNotFound.
	GetState(ctx context.Context, id domain.WebhookID) (domain.WebhookStatus, error)

	// SetState persists the status for id, overwriting any prior value.
	SetState(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error
}

// DeliveryFilter narrows DeliveryRepo.ListDeliveries.
type DeliveryFilter struct {
	Success *bool
	Limit   int
	Offset  int
}

// DeliveryRepo records the audit trail of dispatch attempts, consumed by
// the operator API's delivery-history endpoint. It is not part of the
// core's consumed-capability interfaces; the dispatcher writes to it
// best-effort, after the event repo transition has already succeeded.
type DeliveryRepo interface {
	// SaveDelivery persists a completed delivery attempt.
	SaveDelivery(ctx context.Context, record *domain.DeliveryRecord) error

	// ListDeliveries returns recent delivery attempts for a webhook, newest first.
	ListDeliveries(ctx context.Context, webhookID domain.WebhookID, filter DeliveryFilter) ([]*domain.DeliveryRecord, error)
}
