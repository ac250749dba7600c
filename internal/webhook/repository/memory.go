package repository

import (
	"context"
	"sync"
	"time"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

// subscriberBuffer bounds each subscription channel so a slow consumer
// cannot block the writer; the oldest-standing behaviour documented for the
// error channel (drop-oldest is acceptable) is mirrored here by dropping
// the newest update instead, since these streams are re-derivable from
// GetEventsByStatuses/ListWebhooks on reconnect.
const subscriberBuffer = 256

// MemoryRepository is an in-memory WebhookRepo, WebhookEventRepo and
// WebhookStateRepo, guarded by a single mutex per concern. Every read and
// write copies the stored struct; slice fields such as Headers share their
// backing array with the stored record.
type MemoryRepository struct {
	mu       sync.RWMutex
	webhooks map[domain.WebhookID]*domain.Webhook

	eventsMu sync.RWMutex
	events   map[domain.EventKey]*domain.WebhookEvent

	stateMu sync.RWMutex
	state   map[domain.WebhookID]domain.WebhookStatus

	deliveriesMu sync.RWMutex
	deliveries   []*domain.DeliveryRecord

	webhookSubsMu sync.Mutex
	webhookSubs   map[int]chan WebhookStatusChange
	webhookSubSeq int

	eventSubsMu sync.Mutex
	eventSubs   map[int]chan *domain.WebhookEvent
	eventSubSeq int
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		webhooks:    make(map[domain.WebhookID]*domain.Webhook),
		events:      make(map[domain.EventKey]*domain.WebhookEvent),
		state:       make(map[domain.WebhookID]domain.WebhookStatus),
		webhookSubs: make(map[int]chan WebhookStatusChange),
		eventSubs:   make(map[int]chan *domain.WebhookEvent),
	}
}

// CreateWebhook registers a new webhook.
func (r *MemoryRepository) CreateWebhook(ctx context.Context, webhook *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.webhooks[webhook.ID]; exists {
		return ErrAlreadyExists
	}

	whCopy := *webhook
	r.webhooks[webhook.ID] = &whCopy
	return nil
}

// GetWebhook returns the webhook by id.
func (r *MemoryRepository) GetWebhook(ctx context.Context, id domain.WebhookID) (*domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	webhook, exists := r.webhooks[id]
	if !exists {
		return nil, ErrNotFound
	}

	whCopy := *webhook
	return &whCopy, nil
}

// ListWebhooks returns every registered webhook.
func (r *MemoryRepository) ListWebhooks(ctx context.Context) ([]*domain.Webhook, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Webhook, 0, len(r.webhooks))
	for _, webhook := range r.webhooks {
		whCopy := *webhook
		out = append(out, &whCopy)
	}
	return out, nil
}

// SetWebhookStatus applies a status transition and notifies subscribers.
func (r *MemoryRepository) SetWebhookStatus(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	r.mu.Lock()
	webhook, exists := r.webhooks[id]
	if !exists {
		r.mu.Unlock()
		return ErrNotFound
	}
	webhook.Status = status
	webhook.UpdatedAt = time.Now()
	r.mu.Unlock()

	r.broadcastWebhookChange(WebhookStatusChange{WebhookID: id, Status: status})
	return nil
}

// SubscribeToWebhookUpdates streams webhook status changes until ctx is cancelled.
func (r *MemoryRepository) SubscribeToWebhookUpdates(ctx context.Context) (<-chan WebhookStatusChange, error) {
	ch := make(chan WebhookStatusChange, subscriberBuffer)

	r.webhookSubsMu.Lock()
	id := r.webhookSubSeq
	r.webhookSubSeq++
	r.webhookSubs[id] = ch
	r.webhookSubsMu.Unlock()

	go func() {
		<-ctx.Done()
		r.webhookSubsMu.Lock()
		delete(r.webhookSubs, id)
		r.webhookSubsMu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (r *MemoryRepository) broadcastWebhookChange(change WebhookStatusChange) {
	r.webhookSubsMu.Lock()
	defer r.webhookSubsMu.Unlock()

	for _, ch := range r.webhookSubs {
		select {
		case ch <- change:
		default:
		}
	}
}

// CreateEvent persists a new event in status New and notifies subscribers.
func (r *MemoryRepository) CreateEvent(ctx context.Context, event *domain.WebhookEvent) error {
	r.eventsMu.Lock()
	if _, exists := r.events[event.Key]; exists {
		r.eventsMu.Unlock()
		return ErrAlreadyExists
	}

	evCopy := *event
	evCopy.Status = domain.EventNew
	r.events[event.Key] = &evCopy
	notify := evCopy
	r.eventsMu.Unlock()

	r.broadcastNewEvent(&notify)
	return nil
}

// GetEvent returns the event by key.
func (r *MemoryRepository) GetEvent(ctx context.Context, key domain.EventKey) (*domain.WebhookEvent, error) {
	r.eventsMu.RLock()
	defer r.eventsMu.RUnlock()

	event, exists := r.events[key]
	if !exists {
		return nil, ErrNotFound
	}

	evCopy := *event
	return &evCopy, nil
}

// validTransition enforces New -> Delivering -> {Delivered, Failed}, with
// Failed -> Delivering allowed for retries.
func validTransition(from, to domain.EventStatus) bool {
	switch from {
	case domain.EventNew:
		return to == domain.EventDelivering
	case domain.EventDelivering:
		return to == domain.EventDelivered || to == domain.EventFailed
	case domain.EventFailed:
		return to == domain.EventDelivering
	default:
		return false
	}
}

// SetEventStatus applies a status transition, enforcing the lifecycle invariant.
func (r *MemoryRepository) SetEventStatus(ctx context.Context, key domain.EventKey, status domain.EventStatus) error {
	r.eventsMu.Lock()
	defer r.eventsMu.Unlock()

	event, exists := r.events[key]
	if !exists {
		return ErrNotFound
	}

	if event.Status == status {
		return nil
	}

	if !validTransition(event.Status, status) {
		return &domain.InvalidStateChangeError{Key: key, From: event.Status, To: status}
	}

	event.Status = status
	return nil
}

// GetEventsByStatuses returns every event currently in one of the given statuses.
func (r *MemoryRepository) GetEventsByStatuses(ctx context.Context, statuses ...domain.EventStatus) ([]*domain.WebhookEvent, error) {
	want := make(map[domain.EventStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}

	r.eventsMu.RLock()
	defer r.eventsMu.RUnlock()

	var out []*domain.WebhookEvent
	for _, event := range r.events {
		if want[event.Status] {
			evCopy := *event
			out = append(out, &evCopy)
		}
	}
	return out, nil
}

// SubscribeToNewEvents streams events as they are created, until ctx is cancelled.
func (r *MemoryRepository) SubscribeToNewEvents(ctx context.Context) (<-chan *domain.WebhookEvent, error) {
	ch := make(chan *domain.WebhookEvent, subscriberBuffer)

	r.eventSubsMu.Lock()
	id := r.eventSubSeq
	r.eventSubSeq++
	r.eventSubs[id] = ch
	r.eventSubsMu.Unlock()

	go func() {
		<-ctx.Done()
		r.eventSubsMu.Lock()
		delete(r.eventSubs, id)
		r.eventSubsMu.Unlock()
		close(ch)
	}()

	return ch, nil
}

func (r *MemoryRepository) broadcastNewEvent(event *domain.WebhookEvent) {
	r.eventSubsMu.Lock()
	defer r.eventSubsMu.Unlock()

	for _, ch := range r.eventSubs {
		evCopy := *event
		select {
		case ch <- &evCopy:
		default:
		}
	}
}

// GetState returns the persisted status for id.
func (r *MemoryRepository) GetState(ctx context.Context, id domain.WebhookID) (domain.WebhookStatus, error) {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()

	status, exists := r.state[id]
	if !exists {
		return domain.WebhookStatus{}, ErrNotFound
	}
	return status, nil
}

// SetState persists the status for id, overwriting any prior value.
func (r *MemoryRepository) SetState(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	r.stateMu.Lock()
	defer r.stateMu.Unlock()

	r.state[id] = status
	return nil
}

// SaveDelivery appends a delivery record.
func (r *MemoryRepository) SaveDelivery(ctx context.Context, record *domain.DeliveryRecord) error {
	r.deliveriesMu.Lock()
	defer r.deliveriesMu.Unlock()

	recCopy := *record
	r.deliveries = append(r.deliveries, &recCopy)
	return nil
}

// ListDeliveries returns recent deliveries for a webhook, newest first.
func (r *MemoryRepository) ListDeliveries(ctx context.Context, webhookID domain.WebhookID, filter DeliveryFilter) ([]*domain.DeliveryRecord, error) {
	r.deliveriesMu.RLock()
	defer r.deliveriesMu.RUnlock()

	var matched []*domain.DeliveryRecord
	for i := len(r.deliveries) - 1; i >= 0; i-- {
		rec := r.deliveries[i]
		if rec.WebhookID != webhookID {
			continue
		}
		if filter.Success != nil && rec.Success != *filter.Success {
			continue
		}
		recCopy := *rec
		matched = append(matched, &recCopy)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

var (
	_ WebhookRepo      = (*MemoryRepository)(nil)
	_ WebhookEventRepo = (*MemoryRepository)(nil)
	_ WebhookStateRepo = (*MemoryRepository)(nil)
	_ DeliveryRepo     = (*MemoryRepository)(nil)
)
