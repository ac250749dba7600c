package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/bargom/hookrelay/internal/event/bus"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
	"github.com/bargom/hookrelay/internal/webhook/security"
	"github.com/bargom/hookrelay/pkg/logging"
	"github.com/bargom/hookrelay/pkg/metrics"
)

// Outcome is the result of one Dispatch submission, reported back to
// whichever caller needs to react to it: the Retry Controller enqueuing a
// failure, or the caller of Dispatcher.Dispatch awaiting a retry tick.
type Outcome struct {
	Webhook  *domain.Webhook
	Events   []*domain.WebhookEvent
	Response domain.HTTPResponse
	Err      error
	Success  bool
}

// DispatcherDeps are the capabilities the Dispatcher is constructed with.
// Client and Events are required; every other field is optional (nil-safe).
type DispatcherDeps struct {
	Client     domain.HTTPClient
	Events     repository.WebhookEventRepo
	Deliveries repository.DeliveryRepo
	Metrics    *metrics.Registry
	Logger     *logging.Logger
	Errors     *errorBus
	// Bus, if set, receives a webhook.delivered or webhook.delivery_failed
	// event after every attempt, for subscribers that only care about
	// lifecycle notifications (logging, in-process metrics) rather than the
	// durable event/delivery repositories.
	Bus *bus.EventBus
	// OnFailure is invoked after a fresh (non-retry-driven) dispatch fails for
	// an at-least-once webhook, to hand the failed events to the Retry
	// Controller. Nil for at-most-once-only deployments.
	OnFailure func(webhook *domain.Webhook, events []*domain.WebhookEvent)
}

// Dispatcher drives the HTTP client for both fresh dispatches (submitted
// asynchronously via Submit) and retry ticks (submitted synchronously via
// Dispatch, called directly by a Retry Controller so at most one attempt per
// webhook is ever in flight).
type Dispatcher struct {
	deps DispatcherDeps

	input chan domain.Dispatch
	done  chan struct{}
}

// NewDispatcher constructs a Dispatcher. Call Run to start processing Submit
// traffic; Dispatch may be called directly without Run.
func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	return &Dispatcher{
		deps:  deps,
		input: make(chan domain.Dispatch, 256),
		done:  make(chan struct{}),
	}
}

// Submit enqueues unit for asynchronous processing by Run's worker pool.
func (d *Dispatcher) Submit(unit domain.Dispatch) {
	d.input <- unit
}

// Run processes units submitted via Submit until ctx is cancelled or Stop is
// called, spawning one goroutine per unit so unrelated webhooks never block
// each other.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case unit, ok := <-d.input:
			if !ok {
				return
			}
			go d.handleSubmitted(ctx, unit)
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}

// Stop halts Run by closing its done channel; the submission channel stays
// open. In-flight goroutines already spawned are left to the caller's own
// context deadline.
func (d *Dispatcher) Stop() {
	close(d.done)
}

func (d *Dispatcher) handleSubmitted(ctx context.Context, unit domain.Dispatch) {
	outcome := d.Dispatch(ctx, unit)
	if !outcome.Success && d.deps.OnFailure != nil && unit.Webhook.Mode.Semantics == domain.AtLeastOnce {
		d.deps.OnFailure(unit.Webhook, outcome.Events)
	}
}

// Dispatch performs one synchronous delivery attempt for unit: marks every
// event Delivering, builds and sends the HTTP request, classifies the
// response, and updates event status accordingly. It never retries; the
// caller decides what to do with a failed Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, unit domain.Dispatch) Outcome {
	webhook := unit.Webhook
	webhookLabel := strconv.FormatInt(int64(webhook.ID), 10)

	for _, ev := range unit.Events {
		if err := d.deps.Events.SetEventStatus(ctx, ev.Key, domain.EventDelivering); err != nil {
			d.reportRepoError(err)
		}
	}

	req, err := d.buildRequest(unit)
	if err != nil {
		d.logger().Error("build request failed", "webhook_id", webhook.ID, "error", err)
		return d.finish(ctx, unit, domain.HTTPResponse{}, err, webhookLabel, time.Now())
	}

	var timer *metrics.AttemptTimer
	if d.deps.Metrics != nil {
		timer = d.deps.Metrics.Dispatch().NewAttemptTimer(webhookLabel)
	}
	start := time.Now()
	resp, err := d.deps.Client.Post(ctx, req)
	if timer != nil {
		switch {
		case err != nil && ctx.Err() != nil:
			timer.Cancelled()
		case err != nil:
			timer.Failure()
		case resp.Success():
			timer.Success()
		default:
			timer.Failure()
		}
	}

	return d.finish(ctx, unit, resp, err, webhookLabel, start)
}

func (d *Dispatcher) finish(ctx context.Context, unit domain.Dispatch, resp domain.HTTPResponse, err error, webhookLabel string, start time.Time) Outcome {
	success := err == nil && resp.Success()
	nextStatus := domain.EventDelivered
	if !success {
		nextStatus = domain.EventFailed
	}

	for _, ev := range unit.Events {
		if setErr := d.deps.Events.SetEventStatus(ctx, ev.Key, nextStatus); setErr != nil {
			d.reportRepoError(setErr)
		}
	}

	d.saveDeliveries(ctx, unit, resp, err, start)
	d.publishOutcome(ctx, unit, success, resp, err)

	return Outcome{
		Webhook:  unit.Webhook,
		Events:   unit.Events,
		Response: resp,
		Err:      err,
		Success:  success,
	}
}

func (d *Dispatcher) saveDeliveries(ctx context.Context, unit domain.Dispatch, resp domain.HTTPResponse, err error, start time.Time) {
	if d.deps.Deliveries == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	duration := time.Since(start)
	for _, ev := range unit.Events {
		record := &domain.DeliveryRecord{
			ID:          uuid.NewString(),
			WebhookID:   unit.Webhook.ID,
			EventID:     ev.Key.EventID,
			StatusCode:  resp.StatusCode,
			Success:     err == nil && resp.Success(),
			Attempt:     1,
			Duration:    duration,
			Error:       errMsg,
			DeliveredAt: start,
		}
		if saveErr := d.deps.Deliveries.SaveDelivery(ctx, record); saveErr != nil {
			d.logger().Warn("save delivery failed", "webhook_id", unit.Webhook.ID, "event_id", ev.Key.EventID, "error", saveErr)
		}
	}
}

// publishOutcome notifies any subscribed event bus of a completed attempt.
// Best-effort: publish errors are not surfaced, since the delivery and event
// repositories already hold the authoritative record of the attempt.
func (d *Dispatcher) publishOutcome(ctx context.Context, unit domain.Dispatch, success bool, resp domain.HTTPResponse, err error) {
	if d.deps.Bus == nil {
		return
	}

	eventType := bus.EventWebhookDelivered
	if !success {
		eventType = bus.EventWebhookDeliveryFailed
	}

	data := map[string]interface{}{
		"webhook_id":  int64(unit.Webhook.ID),
		"event_count": len(unit.Events),
		"status_code": resp.StatusCode,
	}
	if err != nil {
		data["error"] = err.Error()
	}

	_ = d.deps.Bus.Publish(ctx, bus.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "dispatch.dispatcher",
		Timestamp: time.Now(),
		Data:      data,
	})
}

// buildRequest constructs the outbound HTTP request for unit. Single
// dispatches use the event's own headers merged onto the webhook's
// defaults; batched dispatches use the webhook's defaults plus the
// batch key's shared content-type/accept and a JSON array body. The
// webhook's secret, if set, HMAC-signs the body.
func (d *Dispatcher) buildRequest(unit domain.Dispatch) (domain.HTTPRequest, error) {
	webhook := unit.Webhook

	var body []byte
	var headers domain.Headers
	headers = append(headers, webhook.Headers...)

	if unit.IsBatch() {
		contents := make([]json.RawMessage, len(unit.Events))
		for i, ev := range unit.Events {
			contents[i] = json.RawMessage(ev.Content)
		}
		encoded, err := json.Marshal(contents)
		if err != nil {
			return domain.HTTPRequest{}, fmt.Errorf("encode batch body: %w", err)
		}
		body = encoded
		if unit.Key.ContentType != "" {
			headers = append(headers, domain.Header{Name: "Content-Type", Value: unit.Key.ContentType})
		}
		if unit.Key.Accept != "" {
			headers = append(headers, domain.Header{Name: "Accept", Value: unit.Key.Accept})
		}
	} else {
		body = []byte(unit.Events[0].Content)
		headers = append(headers, unit.Events[0].Headers...)
	}

	if webhook.Secret != "" {
		sig := security.SignPayload(webhook.Secret, body)
		headers = append(headers, domain.Header{Name: security.SignatureHeader, Value: sig})
		headers = append(headers, domain.Header{Name: security.SignatureAlgorithmHeader, Value: security.DefaultAlgorithm})
	}

	return domain.HTTPRequest{URL: webhook.URL, Body: body, Headers: headers}, nil
}

func (d *Dispatcher) reportRepoError(err error) {
	if d.deps.Errors != nil {
		d.deps.Errors.publish(&domain.RepoError{Cause: err})
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.deps.Logger != nil {
		return d.deps.Logger.Logger
	}
	return slog.Default()
}
