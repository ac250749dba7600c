package dispatch

import "time"

// Config holds the process-wide options recognised by the dispatch engine.
type Config struct {
	Batching BatchingConfig
	Retry    RetryConfig
	Shutdown ShutdownConfig
	Errors   ErrorsConfig
}

// BatchingConfig bounds a Batcher accumulator. A zero value (no batching
// section configured) disables Batched delivery modes: webhooks configured
// for a Batched mode are treated as an invariant violation and dropped with
// an InvalidStateChangeError.
type BatchingConfig struct {
	// MaxSize is the accumulator size that triggers emission. Must be >= 1.
	MaxSize int
	// MaxWait is the time since the first pending event that triggers emission. Must be > 0.
	MaxWait time.Duration
}

// Enabled reports whether a batching configuration was supplied.
func (c BatchingConfig) Enabled() bool {
	return c.MaxSize > 0 && c.MaxWait > 0
}

// RetryConfig parameterises the Retry Controller's backoff and failure horizon.
type RetryConfig struct {
	// Base is the initial backoff; next-wait = min(Base * 2^attempts, Max).
	Base time.Duration
	// Max caps the backoff.
	Max time.Duration
	// FailureHorizon is the maximum duration a webhook may remain
	// continuously in Retrying before being forced to Unavailable.
	FailureHorizon time.Duration
}

// ShutdownConfig parameterises the drain phase.
type ShutdownConfig struct {
	// DrainDeadline bounds how long in-flight dispatches are awaited before
	// being abandoned (their events remain Delivering and are recovered on restart).
	DrainDeadline time.Duration
}

// ErrorsConfig parameterises the error channel.
type ErrorsConfig struct {
	// Buffer is the channel capacity; beyond it, the oldest buffered error is
	// dropped to make room for the new one rather than blocking producers.
	Buffer int
}

// DefaultConfig returns the defaults named in the external interface
// documentation: batching.max-size=10, batching.max-wait=5s, retry.base=10s,
// retry.max=1h, retry.failure-horizon=7d, shutdown.drain-deadline=30s,
// errors.buffer=128.
func DefaultConfig() Config {
	return Config{
		Batching: BatchingConfig{
			MaxSize: 10,
			MaxWait: 5 * time.Second,
		},
		Retry: RetryConfig{
			Base:           10 * time.Second,
			Max:            time.Hour,
			FailureHorizon: 7 * 24 * time.Hour,
		},
		Shutdown: ShutdownConfig{
			DrainDeadline: 30 * time.Second,
		},
		Errors: ErrorsConfig{
			Buffer: 128,
		},
	}
}
