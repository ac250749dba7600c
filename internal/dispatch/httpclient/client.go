// Package httpclient is the default domain.HTTPClient implementation: a
// concurrency-limited, context-aware POST client. It performs exactly one
// attempt per call; the dispatch engine's Retry Controller owns retries.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bargom/hookrelay/internal/webhook/domain"
)

// Config holds configuration for the HTTP client.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	UserAgent     string
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Second,
		MaxConcurrent: 50,
		UserAgent:     "hookrelay/1.0",
	}
}

// Client implements domain.HTTPClient over net/http.
type Client struct {
	httpClient *http.Client
	config     Config
	semaphore  chan struct{}
}

// New creates a new Client with the given configuration.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConcurrent == 0 {
		cfg.MaxConcurrent = 50
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "hookrelay/1.0"
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		config:     cfg,
		semaphore:  make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Post sends req and returns the response, or a transport error. It blocks
// on the concurrency semaphore, not on any retry backoff: one call is one
// outbound HTTP request.
func (c *Client) Post(ctx context.Context, req domain.HTTPRequest) (domain.HTTPResponse, error) {
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return domain.HTTPResponse{}, ctx.Err()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return domain.HTTPResponse{}, &domain.HTTPError{Cause: fmt.Errorf("building request: %w", err)}
	}

	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	for _, h := range req.Headers {
		httpReq.Header.Add(h.Name, h.Value)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.HTTPResponse{}, &domain.HTTPError{Cause: err}
	}
	defer resp.Body.Close()

	// Drain and discard the body; the dispatcher only needs the status code.
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024)); err != nil {
		return domain.HTTPResponse{}, &domain.HTTPError{Cause: fmt.Errorf("reading response: %w", err)}
	}

	return domain.HTTPResponse{StatusCode: resp.StatusCode}, nil
}

var _ domain.HTTPClient = (*Client)(nil)
