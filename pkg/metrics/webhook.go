package metrics

import (
	"strconv"
	"time"
)

// WebhookMetrics provides methods to record metrics for outbound webhook calls.
type WebhookMetrics struct {
	registry *Registry
}

// Webhook returns the webhook metrics interface for the registry.
func (r *Registry) Webhook() *WebhookMetrics {
	return &WebhookMetrics{registry: r}
}

// WebhookState mirrors the dispatch engine's WebhookStatus variants.
type WebhookState string

const (
	WebhookStateEnabled     WebhookState = "enabled"
	WebhookStateDisabled    WebhookState = "disabled"
	WebhookStateRetrying    WebhookState = "retrying"
	WebhookStateUnavailable WebhookState = "unavailable"
)

// RecordCall records metrics for an outbound HTTP call to a webhook endpoint.
func (w *WebhookMetrics) RecordCall(webhookID, url string, statusCode int, duration time.Duration) {
	statusStr := strconv.Itoa(statusCode)

	w.registry.webhookCallsTotal.WithLabelValues(
		webhookID,
		url,
		statusStr,
	).Inc()

	w.registry.webhookCallDuration.WithLabelValues(
		webhookID,
		url,
	).Observe(duration.Seconds())
}

// RecordCallWithStatus is a convenience method that accepts a boolean for success/failure.
func (w *WebhookMetrics) RecordCallWithStatus(webhookID, url string, success bool, duration time.Duration) {
	statusCode := 200
	if !success {
		statusCode = 500
	}
	w.RecordCall(webhookID, url, statusCode, duration)
}

// RecordError records a delivery error for a webhook.
func (w *WebhookMetrics) RecordError(webhookID, errorType string) {
	w.registry.webhookErrors.WithLabelValues(
		webhookID,
		errorType,
	).Inc()
}

// RecordRetry records a retry attempt for a webhook's retry queue.
func (w *WebhookMetrics) RecordRetry(webhookID string) {
	w.registry.webhookRetryCount.WithLabelValues(webhookID).Inc()
}

// SetState sets the current WebhookStatus variant for a webhook.
func (w *WebhookMetrics) SetState(webhookID string, state WebhookState) {
	for _, s := range []WebhookState{WebhookStateEnabled, WebhookStateDisabled, WebhookStateRetrying, WebhookStateUnavailable} {
		val := 0.0
		if s == state {
			val = 1.0
		}
		w.registry.webhookState.WithLabelValues(webhookID, string(s)).Set(val)
	}
}

// CallTimer provides a convenient way to time outbound webhook calls.
type CallTimer struct {
	metrics    *WebhookMetrics
	webhookID  string
	url        string
	start      time.Time
	retryCount int
}

// NewCallTimer creates a new webhook call timer.
func (w *WebhookMetrics) NewCallTimer(webhookID, url string) *CallTimer {
	return &CallTimer{
		metrics:   w,
		webhookID: webhookID,
		url:       url,
		start:     time.Now(),
	}
}

// Retry records a retry attempt and resets the timer.
func (t *CallTimer) Retry() {
	t.metrics.RecordRetry(t.webhookID)
	t.retryCount++
	t.start = time.Now()
}

// Done records the call duration and status.
func (t *CallTimer) Done(statusCode int) {
	duration := time.Since(t.start)
	t.metrics.RecordCall(t.webhookID, t.url, statusCode, duration)
}

// Success records a successful call.
func (t *CallTimer) Success() {
	t.Done(200)
}

// Error records a failed call with error classification.
func (t *CallTimer) Error(errorType string) {
	duration := time.Since(t.start)
	t.metrics.RecordCall(t.webhookID, t.url, 500, duration)
	t.metrics.RecordError(t.webhookID, errorType)
}

// RetryCount returns the number of retry attempts made.
func (t *CallTimer) RetryCount() int {
	return t.retryCount
}

// ClassifyHTTPError classifies an HTTP status code into an error type.
func ClassifyHTTPError(statusCode int) string {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return "client_error"
	case statusCode >= 500 && statusCode < 600:
		return "server_error"
	case statusCode == 0:
		return "connection_error"
	default:
		return "unknown"
	}
}

// ClassifyError classifies an error into a type for metrics.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	switch {
	case contains(errStr, "timeout"):
		return "timeout"
	case contains(errStr, "connection refused"):
		return "connection_refused"
	case contains(errStr, "no such host"):
		return "dns_error"
	case contains(errStr, "tls", "certificate"):
		return "tls_error"
	case contains(errStr, "context canceled"):
		return "cancelled"
	default:
		return "unknown"
	}
}

// contains checks if the error string contains any of the substrings, case-insensitively.
func contains(errStr string, substrings ...string) bool {
	for _, sub := range substrings {
		if len(errStr) >= len(sub) {
			for i := 0; i <= len(errStr)-len(sub); i++ {
				match := true
				for j := 0; j < len(sub); j++ {
					if errStr[i+j] != sub[j] && errStr[i+j] != sub[j]-32 && errStr[i+j] != sub[j]+32 {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

// CallsTotal returns the counter for total webhook calls (for testing).
func (w *WebhookMetrics) CallsTotal() interface{} {
	return w.registry.webhookCallsTotal
}

// State returns the gauge for webhook status (for testing).
func (w *WebhookMetrics) State() interface{} {
	return w.registry.webhookState
}
