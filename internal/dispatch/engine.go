// Package dispatch implements the webhook dispatch engine: the component
// that turns newly-created webhook events into HTTP deliveries, honouring
// each webhook's batching and retry semantics.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bargom/hookrelay/internal/cache"
	"github.com/bargom/hookrelay/internal/event/bus"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
	"github.com/bargom/hookrelay/pkg/logging"
	"github.com/bargom/hookrelay/pkg/metrics"
)

// EngineDeps are the capabilities an Engine is constructed with. Deliveries,
// Metrics, HotCache and Bus are optional.
type EngineDeps struct {
	Webhooks   repository.WebhookRepo
	Events     repository.WebhookEventRepo
	State      repository.WebhookStateRepo
	Deliveries repository.DeliveryRepo
	Client     domain.HTTPClient
	Logger     *logging.Logger
	Metrics    *metrics.Registry
	// HotCache, when set, backs the webhook state cache's shared hot layer
	// (Redis in production) sitting in front of State.
	HotCache cache.Cache
	// Bus, when set, receives delivery and webhook-state lifecycle events
	// alongside the durable repositories.
	Bus *bus.EventBus
}

// Engine is the top-level dispatch component: it recovers crash-interrupted
// work on Start, routes newly-created events to the batcher, dispatcher or
// retry manager according to each webhook's delivery mode, and exposes a
// structural-error stream via Errors.
type Engine struct {
	cfg  Config
	deps EngineDeps

	state      *StateCache
	dispatcher *Dispatcher
	batcher    *Batcher
	retry      *RetryManager
	errs       *errorBus

	batchOut chan domain.Dispatch

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine constructs an Engine. Start must be called before it processes
// any events.
func NewEngine(cfg Config, deps EngineDeps) *Engine {
	e := &Engine{
		cfg:      cfg,
		deps:     deps,
		errs:     newErrorBus(cfg.Errors.Buffer),
		batchOut: make(chan domain.Dispatch, 64),
	}

	stateOpts := []StateCacheOption{WithRegistry(deps.Webhooks)}
	if deps.HotCache != nil {
		stateOpts = append(stateOpts, WithHotCache(deps.HotCache))
	}
	e.state = NewStateCache(deps.State, stateOpts...)
	e.dispatcher = NewDispatcher(DispatcherDeps{
		Client:     deps.Client,
		Events:     deps.Events,
		Deliveries: deps.Deliveries,
		Metrics:    deps.Metrics,
		Logger:     deps.Logger,
		Errors:     e.errs,
		Bus:        deps.Bus,
		OnFailure:  e.onDispatchFailure,
	})
	e.batcher = NewBatcher(cfg.Batching, e.batchOut)
	e.retry = NewRetryManager(cfg.Retry, e.dispatcher, e.state, e.errs, deps.Logger)

	return e
}

// Errors returns a stream of structural errors (missing webhooks, invalid
// state transitions, repo failures, webhooks forced Unavailable). The
// stream is closed when ctx is cancelled.
func (e *Engine) Errors(ctx context.Context) <-chan error {
	return e.errs.subscribe(ctx)
}

// Retries exposes the engine's RetryManager for readiness reporting (e.g. a
// backlog-depth health check). It is set by NewEngine.
func (e *Engine) Retries() *RetryManager {
	return e.retry
}

// Start recovers crash-interrupted deliveries, then begins routing new
// events and webhook status changes until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	e.runCtx = runCtx
	e.cancel = cancel

	if err := e.recover(runCtx); err != nil {
		return err
	}

	eventCh, err := e.deps.Events.SubscribeToNewEvents(runCtx)
	if err != nil {
		return err
	}
	statusCh, err := e.deps.Webhooks.SubscribeToWebhookUpdates(runCtx)
	if err != nil {
		return err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.dispatcher.Run(runCtx)
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case unit, ok := <-e.batchOut:
				if !ok {
					return
				}
				e.dispatcher.Submit(unit)
			}
		}
	}()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev, ok := <-eventCh:
				if !ok {
					return
				}
				e.route(runCtx, ev)
			case change, ok := <-statusCh:
				if !ok {
					return
				}
				e.state.Observe(change.WebhookID, change.Status)
				e.publishStateChange(runCtx, change)
			}
		}
	}()

	return nil
}

// Shutdown stops accepting new routing decisions, flushes any partially
// filled batches immediately, halts retry scheduling (queues are preserved
// in the event repo as Failed events), and waits up to the configured drain
// deadline for in-flight goroutines to notice cancellation.
func (e *Engine) Shutdown(ctx context.Context) {
	if d := e.cfg.Shutdown.DrainDeadline; d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.batcher.Shutdown()
	e.retry.Shutdown()
	e.dispatcher.Stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

// publishStateChange notifies the event bus of a webhook status transition,
// if one is configured.
func (e *Engine) publishStateChange(ctx context.Context, change repository.WebhookStatusChange) {
	if e.deps.Bus == nil {
		return
	}
	_ = e.deps.Bus.Publish(ctx, bus.Event{
		ID:        uuid.NewString(),
		Type:      bus.EventWebhookStateChanged,
		Source:    "dispatch.engine",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"webhook_id": int64(change.WebhookID),
			"status":     change.Status.Kind.String(),
		},
	})
}

// recover moves every event left in Delivering by a prior crash to Failed,
// and hands them, together with the Failed events left by a previous
// shutdown, to the retry manager when their webhook is at-least-once.
// Failed events of Disabled or Unavailable webhooks are left as they are.
func (e *Engine) recover(ctx context.Context) error {
	stuck, err := e.deps.Events.GetEventsByStatuses(ctx, domain.EventDelivering, domain.EventFailed)
	if err != nil {
		return err
	}

	for _, ev := range stuck {
		if ev.Status == domain.EventDelivering {
			if err := e.deps.Events.SetEventStatus(ctx, ev.Key, domain.EventFailed); err != nil {
				e.errs.publish(&domain.RepoError{Cause: err})
				continue
			}
		}

		webhook, err := e.deps.Webhooks.GetWebhook(ctx, ev.Key.WebhookID)
		if err != nil {
			e.errs.publish(&domain.MissingWebhookError{WebhookID: ev.Key.WebhookID})
			continue
		}
		parked := webhook.Status.Kind == domain.StatusDisabled || webhook.Status.Kind == domain.StatusUnavailable
		if ev.Status == domain.EventFailed && parked {
			continue
		}
		if webhook.Mode.Semantics == domain.AtLeastOnce {
			e.retry.Enqueue(ctx, webhook, []*domain.WebhookEvent{ev})
		}
	}

	return nil
}

// route applies the routing table to a newly-created event: Disabled and
// Unavailable webhooks drop it silently, a Retrying webhook's event joins
// its existing retry queue, and otherwise it is dispatched fresh (batched
// webhooks via the Batcher, single webhooks via the Dispatcher).
func (e *Engine) route(ctx context.Context, ev *domain.WebhookEvent) {
	webhook, err := e.deps.Webhooks.GetWebhook(ctx, ev.Key.WebhookID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			e.errs.publish(&domain.MissingWebhookError{WebhookID: ev.Key.WebhookID})
			return
		}
		e.errs.publish(&domain.RepoError{Cause: err})
		return
	}

	if webhook.Mode.Batching == domain.Batched && !e.cfg.Batching.Enabled() {
		e.errs.publish(&domain.InvalidStateChangeError{
			Key:  ev.Key,
			From: domain.EventNew,
			To:   domain.EventNew,
		})
		return
	}

	status, err := e.state.Get(ctx, webhook.ID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		e.errs.publish(err)
		return
	}
	if errors.Is(err, repository.ErrNotFound) {
		status = webhook.Status
	}

	// status is read here and the retry queue (or dispatcher) is joined below
	// as two separate steps, not one atomic operation: a failure that hasn't
	// yet persisted StatusRetrying can race a concurrent route() for a new
	// event on the same webhook, which then dispatches fresh instead of
	// joining the queue. Single-in-flight is only guaranteed once the
	// Retrying status has actually landed.
	switch status.Kind {
	case domain.StatusDisabled, domain.StatusUnavailable:
		return

	case domain.StatusRetrying:
		if webhook.Mode.Semantics == domain.AtLeastOnce {
			e.retry.Enqueue(ctx, webhook, []*domain.WebhookEvent{ev})
			return
		}
	}

	if webhook.Mode.Batching == domain.Batched {
		e.batcher.Add(webhook, ev)
		return
	}

	e.dispatcher.Submit(domain.Dispatch{Webhook: webhook, Events: []*domain.WebhookEvent{ev}})
}

func (e *Engine) onDispatchFailure(webhook *domain.Webhook, events []*domain.WebhookEvent) {
	ctx := e.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	e.retry.Enqueue(ctx, webhook, events)
}
