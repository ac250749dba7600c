package dispatch

import (
	"sync"
	"time"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

// Batcher accumulates events sharing a BatchKey and emits them as one
// domain.Dispatch once the window's size or wait trigger fires. Each key has
// its own accumulator goroutine, so keys never block each other; the
// accumulator is the single writer of its own pending slice.
type Batcher struct {
	cfg BatchingConfig
	out chan<- domain.Dispatch

	mu   sync.Mutex
	accs map[domain.BatchKey]*accumulator
	wg   sync.WaitGroup
}

// NewBatcher returns a Batcher that emits completed batches onto out.
func NewBatcher(cfg BatchingConfig, out chan<- domain.Dispatch) *Batcher {
	return &Batcher{
		cfg:  cfg,
		out:  out,
		accs: make(map[domain.BatchKey]*accumulator),
	}
}

// Add appends event to the accumulator for its BatchKey, creating one if
// this is the first event seen for that key.
func (b *Batcher) Add(webhook *domain.Webhook, event *domain.WebhookEvent) {
	key := domain.FingerprintEvent(webhook.ID, event.Headers)

	b.mu.Lock()
	acc, ok := b.accs[key]
	if !ok {
		acc = newAccumulator(webhook, key, b.cfg, b.out)
		b.accs[key] = acc
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			acc.run()
		}()
	}
	b.mu.Unlock()

	acc.input <- event
}

// FlushAll forces every live accumulator to emit its pending events
// immediately, used on shutdown to avoid stranding partial batches.
func (b *Batcher) FlushAll() {
	b.mu.Lock()
	accs := make([]*accumulator, 0, len(b.accs))
	for _, a := range b.accs {
		accs = append(accs, a)
	}
	b.mu.Unlock()

	for _, a := range accs {
		a.flush()
	}
}

// Shutdown flushes every accumulator and waits for their goroutines to exit.
func (b *Batcher) Shutdown() {
	b.FlushAll()

	b.mu.Lock()
	for _, a := range b.accs {
		close(a.input)
	}
	b.mu.Unlock()

	b.wg.Wait()
}

// accumulator buffers events for one BatchKey. It is single-writer: only its
// own run goroutine appends to or clears pending.
type accumulator struct {
	webhook *domain.Webhook
	key     domain.BatchKey
	cfg     BatchingConfig
	out     chan<- domain.Dispatch

	input   chan *domain.WebhookEvent
	flushCh chan chan struct{}
}

func newAccumulator(webhook *domain.Webhook, key domain.BatchKey, cfg BatchingConfig, out chan<- domain.Dispatch) *accumulator {
	return &accumulator{
		webhook: webhook,
		key:     key,
		cfg:     cfg,
		out:     out,
		input:   make(chan *domain.WebhookEvent, 64),
		flushCh: make(chan chan struct{}),
	}
}

func (a *accumulator) run() {
	var pending []*domain.WebhookEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	emit := func() {
		if len(pending) == 0 {
			return
		}
		batch := pending
		pending = nil
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		a.out <- domain.Dispatch{Webhook: a.webhook, Events: batch, Batched: true, Key: a.key}
	}

	for {
		select {
		case ev, ok := <-a.input:
			if !ok {
				emit()
				return
			}
			pending = append(pending, ev)
			if timer == nil {
				timer = time.NewTimer(a.cfg.MaxWait)
				timerC = timer.C
			}
			if len(pending) >= a.cfg.MaxSize {
				emit()
			}

		case <-timerC:
			emit()

		case ack := <-a.flushCh:
			emit()
			close(ack)
		}
	}
}

// flush requests an immediate emission and waits for it to complete, or
// gives up after a second if the accumulator has already exited.
func (a *accumulator) flush() {
	ack := make(chan struct{})
	select {
	case a.flushCh <- ack:
		<-ack
	case <-time.After(time.Second):
	}
}
