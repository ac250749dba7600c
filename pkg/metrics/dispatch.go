package metrics

import (
	"time"
)

// DispatchMetrics provides methods to record dispatch engine metrics.
type DispatchMetrics struct {
	registry *Registry
}

// Dispatch returns the dispatch metrics interface for the registry.
func (r *Registry) Dispatch() *DispatchMetrics {
	return &DispatchMetrics{registry: r}
}

// DispatchStatus represents the outcome of one dispatch attempt.
type DispatchStatus string

const (
	DispatchStatusSuccess   DispatchStatus = "success"
	DispatchStatusFailure   DispatchStatus = "failure"
	DispatchStatusCancelled DispatchStatus = "cancelled"
	DispatchStatusTimeout   DispatchStatus = "timeout"
)

// RecordAttempt records metrics for a completed dispatch attempt against a webhook.
func (d *DispatchMetrics) RecordAttempt(webhookID string, status DispatchStatus, duration time.Duration) {
	d.registry.dispatchAttemptsTotal.WithLabelValues(
		webhookID,
		string(status),
	).Inc()

	d.registry.dispatchAttemptDuration.WithLabelValues(webhookID).Observe(duration.Seconds())
}

// RecordBatchFlush records metrics for a batch flushed to a webhook.
func (d *DispatchMetrics) RecordBatchFlush(webhookID string, eventCount int, duration time.Duration) {
	d.registry.dispatchBatchSize.WithLabelValues(webhookID).Observe(float64(eventCount))
	d.registry.dispatchBatchFlushDuration.WithLabelValues(webhookID).Observe(duration.Seconds())
}

// IncInFlight increments the count of in-flight dispatches for a webhook.
func (d *DispatchMetrics) IncInFlight(webhookID string) {
	d.registry.dispatchInFlight.WithLabelValues(webhookID).Inc()
}

// DecInFlight decrements the count of in-flight dispatches for a webhook.
func (d *DispatchMetrics) DecInFlight(webhookID string) {
	d.registry.dispatchInFlight.WithLabelValues(webhookID).Dec()
}

// SetInFlight sets the in-flight dispatch count for a webhook to a specific value.
func (d *DispatchMetrics) SetInFlight(webhookID string, count int) {
	d.registry.dispatchInFlight.WithLabelValues(webhookID).Set(float64(count))
}

// AttemptTimer provides a convenient way to time a dispatch attempt.
type AttemptTimer struct {
	metrics   *DispatchMetrics
	webhookID string
	start     time.Time
}

// NewAttemptTimer creates a new dispatch attempt timer.
func (d *DispatchMetrics) NewAttemptTimer(webhookID string) *AttemptTimer {
	d.IncInFlight(webhookID)
	return &AttemptTimer{
		metrics:   d,
		webhookID: webhookID,
		start:     time.Now(),
	}
}

// Done records the attempt duration and status.
func (t *AttemptTimer) Done(status DispatchStatus) {
	duration := time.Since(t.start)
	t.metrics.DecInFlight(t.webhookID)
	t.metrics.RecordAttempt(t.webhookID, status, duration)
}

// Success records the dispatch attempt as successful.
func (t *AttemptTimer) Success() {
	t.Done(DispatchStatusSuccess)
}

// Failure records the dispatch attempt as failed.
func (t *AttemptTimer) Failure() {
	t.Done(DispatchStatusFailure)
}

// Cancelled records the dispatch attempt as cancelled (engine shutdown mid-flight).
func (t *AttemptTimer) Cancelled() {
	t.Done(DispatchStatusCancelled)
}

// Timeout records the dispatch attempt as timed out.
func (t *AttemptTimer) Timeout() {
	t.Done(DispatchStatusTimeout)
}

// BatchFlushTimer provides a convenient way to time a batch flush.
type BatchFlushTimer struct {
	metrics    *DispatchMetrics
	webhookID  string
	eventCount int
	start      time.Time
}

// NewBatchFlushTimer creates a new batch flush timer.
func (d *DispatchMetrics) NewBatchFlushTimer(webhookID string, eventCount int) *BatchFlushTimer {
	return &BatchFlushTimer{
		metrics:    d,
		webhookID:  webhookID,
		eventCount: eventCount,
		start:      time.Now(),
	}
}

// Done records the batch flush duration and size.
func (t *BatchFlushTimer) Done() {
	duration := time.Since(t.start)
	t.metrics.RecordBatchFlush(t.webhookID, t.eventCount, duration)
}

// AttemptsTotal returns the counter for total dispatch attempts (for testing).
func (d *DispatchMetrics) AttemptsTotal() interface{} {
	return d.registry.dispatchAttemptsTotal
}

// InFlight returns the gauge for in-flight dispatch count (for testing).
func (d *DispatchMetrics) InFlight() interface{} {
	return d.registry.dispatchInFlight
}
