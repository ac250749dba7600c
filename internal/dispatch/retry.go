package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/pkg/logging"
)

// RetryManager owns one RetryController per webhook currently in Retrying,
// creating them lazily on first failure and discarding them once a
// controller drains its queue or gives up. It is the single point through
// which the Dispatcher and the subscription loop hand events to retry.
type RetryManager struct {
	cfg        RetryConfig
	dispatcher *Dispatcher
	state      *StateCache
	errs       *errorBus
	logger     *logging.Logger

	mu          sync.Mutex
	controllers map[domain.WebhookID]*RetryController
	wg          sync.WaitGroup
}

// NewRetryManager constructs a RetryManager.
func NewRetryManager(cfg RetryConfig, dispatcher *Dispatcher, state *StateCache, errs *errorBus, logger *logging.Logger) *RetryManager {
	return &RetryManager{
		cfg:         cfg,
		dispatcher:  dispatcher,
		state:       state,
		errs:        errs,
		logger:      logger,
		controllers: make(map[domain.WebhookID]*RetryController),
	}
}

// Enqueue routes events to webhook's retry queue, creating a controller (and
// transitioning the webhook to Retrying) if one does not already exist.
func (m *RetryManager) Enqueue(ctx context.Context, webhook *domain.Webhook, events []*domain.WebhookEvent) {
	m.mu.Lock()
	c, ok := m.controllers[webhook.ID]
	if !ok {
		c = newRetryController(webhook, m.cfg, m.dispatcher, m.state, m.errs, m.logger, func() {
			m.remove(webhook.ID)
		})
		m.controllers[webhook.ID] = c
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			c.run(ctx)
		}()
	}
	m.mu.Unlock()

	c.enqueue(events)
}

// IsRetrying reports whether webhook currently has an active controller.
func (m *RetryManager) IsRetrying(id domain.WebhookID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.controllers[id]
	return ok
}

// RetryingCount reports how many webhooks currently have an active retry
// controller, used by the readiness custom check to flag a growing backlog.
func (m *RetryManager) RetryingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.controllers)
}

func (m *RetryManager) remove(id domain.WebhookID) {
	m.mu.Lock()
	delete(m.controllers, id)
	m.mu.Unlock()
}

// Shutdown stops every controller from scheduling further attempts. Their
// queues remain represented in the event repo as Failed events, which crash
// recovery will pick back up on the next start.
func (m *RetryManager) Shutdown() {
	m.mu.Lock()
	for _, c := range m.controllers {
		close(c.stop)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// RetryController schedules redelivery attempts for one webhook. Its queue
// is single-writer: only this controller's run goroutine ever reads or
// mutates it; external callers hand it events through enqueueCh.
type RetryController struct {
	webhook *domain.Webhook
	cfg     RetryConfig
	dispatcher *Dispatcher
	state   *StateCache
	errs    *errorBus
	logger  *logging.Logger
	onIdle  func()

	enqueueCh chan []*domain.WebhookEvent
	stop      chan struct{}
}

func newRetryController(webhook *domain.Webhook, cfg RetryConfig, dispatcher *Dispatcher, state *StateCache, errs *errorBus, logger *logging.Logger, onIdle func()) *RetryController {
	return &RetryController{
		webhook:    webhook,
		cfg:        cfg,
		dispatcher: dispatcher,
		state:      state,
		errs:       errs,
		logger:     logger,
		onIdle:     onIdle,
		enqueueCh:  make(chan []*domain.WebhookEvent, 16),
		stop:       make(chan struct{}),
	}
}

func (c *RetryController) enqueue(events []*domain.WebhookEvent) {
	c.enqueueCh <- events
}

func (c *RetryController) run(ctx context.Context) {
	firstFailureAt := time.Now()
	if err := c.state.SetStatus(ctx, c.webhook.ID, domain.Retrying(firstFailureAt)); err != nil {
		c.publishErr(err)
	}

	var queue []*domain.WebhookEvent
	attempts := 0
	wait := backoff(c.cfg, attempts)
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return

		case more := <-c.enqueueCh:
			queue = append(queue, more...)

		case <-timer.C:
			if len(queue) == 0 {
				timer.Reset(wait)
				continue
			}

			var toSend []*domain.WebhookEvent
			var key domain.BatchKey
			batched := c.webhook.Mode.Batching == domain.Batched
			if batched {
				toSend = queue
				queue = nil
				key = domain.FingerprintEvent(c.webhook.ID, toSend[0].Headers)
			} else {
				toSend = queue[:1]
				queue = queue[1:]
			}

			outcome := c.dispatcher.Dispatch(ctx, domain.Dispatch{Webhook: c.webhook, Events: toSend, Batched: batched, Key: key})

			if outcome.Success {
				attempts = 0
				if len(queue) == 0 {
					if err := c.state.SetStatus(ctx, c.webhook.ID, domain.Enabled()); err != nil {
						c.publishErr(err)
					}
					c.onIdle()
					return
				}
				wait = backoff(c.cfg, attempts)
				timer.Reset(0)
				continue
			}

			queue = append(toSend, queue...)
			attempts++

			if time.Since(firstFailureAt) >= c.cfg.FailureHorizon {
				if err := c.state.SetStatus(ctx, c.webhook.ID, domain.Unavailable(time.Now())); err != nil {
					c.publishErr(err)
				}
				c.errs.publish(&domain.WebhookUnavailableError{WebhookID: c.webhook.ID})
				c.onIdle()
				return
			}

			wait = backoff(c.cfg, attempts)
			timer.Reset(wait)
		}
	}
}

func (c *RetryController) publishErr(err error) {
	if c.errs != nil {
		c.errs.publish(&domain.RepoError{Cause: err})
	}
	if c.logger != nil {
		c.logger.Logger.Error("retry controller state update failed", "webhook_id", c.webhook.ID, "error", err)
	} else {
		slog.Default().Error("retry controller state update failed", "webhook_id", c.webhook.ID, "error", err)
	}
}

// backoff computes min(base * 2^attempts, max), guarding against overflow
// for pathologically long-running retry sequences.
func backoff(cfg RetryConfig, attempts int) time.Duration {
	if attempts > 32 {
		return cfg.Max
	}
	wait := cfg.Base * time.Duration(int64(1)<<uint(attempts))
	if wait <= 0 || wait > cfg.Max {
		return cfg.Max
	}
	return wait
}
