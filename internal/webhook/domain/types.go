// Package domain defines the core entities of the webhook delivery server:
// webhooks, their delivery modes and status, and the events routed to them.
// It has no dependency on storage or transport so the dispatch engine and
// the repository implementations can share one vocabulary.
package domain

import (
	"context"
	"time"
)

// WebhookID identifies a registered webhook. Non-negative by convention.
type WebhookID int64

// EventID identifies an event, unique within its webhook.
type EventID int64

// EventKey is the globally unique identity of an event.
type EventKey struct {
	EventID   EventID
	WebhookID WebhookID
}

// Batching describes whether a webhook receives events singly or in batches.
type Batching int

const (
	// Single delivers one event per HTTP request.
	Single Batching = iota
	// Batched accumulates events into windowed batches before delivery.
	Batched
)

func (b Batching) String() string {
	if b == Batched {
		return "batched"
	}
	return "single"
}

// Semantics describes the delivery guarantee offered to a webhook.
type Semantics int

const (
	// AtMostOnce delivers zero or one time; failures are not retried.
	AtMostOnce Semantics = iota
	// AtLeastOnce retries on failure until success or the failure horizon.
	AtLeastOnce
)

func (s Semantics) String() string {
	if s == AtLeastOnce {
		return "at-least-once"
	}
	return "at-most-once"
}

// DeliveryMode is the (batching, semantics) contract chosen for a webhook.
// It is immutable for the webhook's lifetime.
type DeliveryMode struct {
	Batching  Batching
	Semantics Semantics
}

// The four delivery modes named in the data model.
var (
	SingleAtMostOnce   = DeliveryMode{Batching: Single, Semantics: AtMostOnce}
	SingleAtLeastOnce  = DeliveryMode{Batching: Single, Semantics: AtLeastOnce}
	BatchedAtMostOnce  = DeliveryMode{Batching: Batched, Semantics: AtMostOnce}
	BatchedAtLeastOnce = DeliveryMode{Batching: Batched, Semantics: AtLeastOnce}
)

// StatusKind is the variant tag of a WebhookStatus.
type StatusKind int

const (
	// StatusEnabled accepts and dispatches events normally.
	StatusEnabled StatusKind = iota
	// StatusDisabled drops incoming events silently.
	StatusDisabled
	// StatusRetrying has at least one in-flight or queued retry.
	StatusRetrying
	// StatusUnavailable has exceeded the failure horizon; operator must re-enable.
	StatusUnavailable
)

func (k StatusKind) String() string {
	switch k {
	case StatusEnabled:
		return "enabled"
	case StatusDisabled:
		return "disabled"
	case StatusRetrying:
		return "retrying"
	case StatusUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// WebhookStatus is a sum type with exactly one active variant. Since is
// meaningful only for Retrying and Unavailable and records when the webhook
// entered that variant.
type WebhookStatus struct {
	Kind  StatusKind
	Since time.Time
}

// Enabled returns the Enabled status.
func Enabled() WebhookStatus { return WebhookStatus{Kind: StatusEnabled} }

// Disabled returns the Disabled status.
func Disabled() WebhookStatus { return WebhookStatus{Kind: StatusDisabled} }

// Retrying returns the Retrying status, active since the given time.
func Retrying(since time.Time) WebhookStatus {
	return WebhookStatus{Kind: StatusRetrying, Since: since}
}

// Unavailable returns the Unavailable status, active since the given time.
func Unavailable(since time.Time) WebhookStatus {
	return WebhookStatus{Kind: StatusUnavailable, Since: since}
}

// IsEnabled reports whether the status is Enabled.
func (s WebhookStatus) IsEnabled() bool { return s.Kind == StatusEnabled }

// Webhook is an operator-registered HTTP callback.
type Webhook struct {
	ID      WebhookID
	URL     string
	Label   string
	Status  WebhookStatus
	Mode    DeliveryMode
	// Secret HMAC-signs outgoing requests when non-empty. See internal/webhook/security.
	Secret string
	// Headers are default headers merged into every event dispatched to this webhook.
	Headers   Headers
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Header is one entry of an ordered, possibly-repeating header multimap.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered list of header entries; a name may repeat.
type Headers []Header

// Get returns the first value for name, and whether it was found.
func (h Headers) Get(name string) (string, bool) {
	for _, e := range h {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Values returns all values for name in order.
func (h Headers) Values(name string) []string {
	var vals []string
	for _, e := range h {
		if e.Name == name {
			vals = append(vals, e.Value)
		}
	}
	return vals
}

// EventStatus is the lifecycle stage of a WebhookEvent.
type EventStatus int

const (
	// EventNew has not yet been picked up for dispatch.
	EventNew EventStatus = iota
	// EventDelivering is in flight to the webhook's endpoint.
	EventDelivering
	// EventDelivered completed with a 2xx response.
	EventDelivered
	// EventFailed completed with a non-2xx response or transport error.
	EventFailed
)

func (s EventStatus) String() string {
	switch s {
	case EventNew:
		return "new"
	case EventDelivering:
		return "delivering"
	case EventDelivered:
		return "delivered"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// WebhookEvent is a unit of data addressed to a webhook. Content is opaque
// to the dispatch engine; it is never parsed or transformed.
type WebhookEvent struct {
	Key     EventKey
	Status  EventStatus
	Content string
	Headers Headers
}

// BatchKey groups events for batched delivery: same webhook, same
// content-type and accept headers.
type BatchKey struct {
	WebhookID   WebhookID
	ContentType string
	Accept      string
}

// FingerprintEvent computes the BatchKey for an event given its webhook id.
func FingerprintEvent(webhookID WebhookID, headers Headers) BatchKey {
	ct, _ := headers.Get("Content-Type")
	accept, _ := headers.Get("Accept")
	return BatchKey{WebhookID: webhookID, ContentType: ct, Accept: accept}
}

// DeliveryRecord is the durable record of one dispatch attempt, used by the
// operator API's delivery-history endpoint.
type DeliveryRecord struct {
	ID          string
	WebhookID   WebhookID
	EventID     EventID
	StatusCode  int
	Success     bool
	Attempt     int
	Duration    time.Duration
	Error       string
	DeliveredAt time.Time
}

// Dispatch is the unit submitted to the Dispatcher: either a single event or
// an ordered batch of events sharing a BatchKey, plus the originating webhook.
type Dispatch struct {
	Webhook *Webhook
	Events  []*WebhookEvent
	// Batched marks this as a batched-webhook emission, regardless of how
	// many events it carries (a batch can legitimately hold just one event,
	// when the accumulator's wait timer fires before a second event
	// arrives). Single-webhook dispatches leave this false.
	Batched bool
	// Key is set for batched dispatches; zero value for single dispatches.
	Key BatchKey
}

// IsBatch reports whether this dispatch is a batched-webhook emission.
// It is not inferred from event count: a batch of one is still a batch.
func (d Dispatch) IsBatch() bool { return d.Batched }

// HTTPRequest is the ephemeral outbound request built by the dispatcher.
type HTTPRequest struct {
	URL     string
	Body    []byte
	Headers Headers
}

// HTTPResponse is the ephemeral response observed by the dispatcher.
type HTTPResponse struct {
	StatusCode int
}

// Success reports whether the response status is in [200, 299].
func (r HTTPResponse) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode <= 299
}

// HTTPClient is the single consumed capability the dispatcher drives to
// deliver a request. Implementations perform no retries of their own; the
// Retry Controller owns that policy. The context governs cancellation, used
// to enforce the shutdown drain deadline.
type HTTPClient interface {
	Post(ctx context.Context, req HTTPRequest) (HTTPResponse, error)
}
