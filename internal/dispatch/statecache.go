package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bargom/hookrelay/internal/cache"
	"github.com/bargom/hookrelay/internal/webhook/domain"
	"github.com/bargom/hookrelay/internal/webhook/repository"
)

// statusCacheTTL bounds how long a hot projection in an external cache
// (Redis in production) is trusted before falling back to the repo.
const statusCacheTTL = 5 * time.Minute

// StateCache is a write-through cache over a WebhookStateRepo. Reads prefer
// the in-memory value, then an optional external cache.Cache (the hot,
// possibly-shared projection backed by Redis in production), and finally
// fall back to the repo. Writes only update the cache layers after the repo
// write succeeds.
//
// When constructed with WithRegistry, every write is also mirrored onto the
// webhook registry's own Status field, so an operator listing webhooks
// through the registry sees the same status the engine is acting on.
type StateCache struct {
	repo     repository.WebhookStateRepo
	webhooks repository.WebhookRepo
	hot      cache.Cache

	mu    sync.RWMutex
	cache map[domain.WebhookID]domain.WebhookStatus
}

// StateCacheOption configures a StateCache at construction.
type StateCacheOption func(*StateCache)

// WithRegistry makes SetStatus mirror every write onto the webhook registry.
func WithRegistry(webhooks repository.WebhookRepo) StateCacheOption {
	return func(c *StateCache) { c.webhooks = webhooks }
}

// WithHotCache adds an external cache.Cache (Redis in production, in-memory
// in dev/tests) as the shared hot projection between process-local reads. A
// process restart repopulates its local map from the hot cache before
// falling all the way back to the repository.
func WithHotCache(hot cache.Cache) StateCacheOption {
	return func(c *StateCache) { c.hot = hot }
}

// NewStateCache wraps repo with an in-memory layer.
func NewStateCache(repo repository.WebhookStateRepo, opts ...StateCacheOption) *StateCache {
	c := &StateCache{
		repo:  repo,
		cache: make(map[domain.WebhookID]domain.WebhookStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func hotCacheKey(id domain.WebhookID) string {
	return fmt.Sprintf("webhook-state:%d", id)
}

// Get returns the cached status, falling back to the repo on a miss.
// repository.ErrNotFound is returned unwrapped; any other repo failure is
// wrapped as *domain.RepoError.
func (c *StateCache) Get(ctx context.Context, id domain.WebhookID) (domain.WebhookStatus, error) {
	c.mu.RLock()
	status, ok := c.cache[id]
	c.mu.RUnlock()
	if ok {
		return status, nil
	}

	if c.hot != nil {
		var hotStatus domain.WebhookStatus
		if err := c.hot.GetJSON(ctx, hotCacheKey(id), &hotStatus); err == nil {
			c.mu.Lock()
			c.cache[id] = hotStatus
			c.mu.Unlock()
			return hotStatus, nil
		}
	}

	status, err := c.repo.GetState(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.WebhookStatus{}, err
		}
		return domain.WebhookStatus{}, &domain.RepoError{Cause: err}
	}

	c.setLocal(ctx, id, status)
	return status, nil
}

// setLocal updates the in-process map and, if present, the shared hot cache.
func (c *StateCache) setLocal(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) {
	c.mu.Lock()
	c.cache[id] = status
	c.mu.Unlock()

	if c.hot != nil {
		_ = c.hot.SetJSON(ctx, hotCacheKey(id), status, statusCacheTTL)
	}
}

// SetStatus persists status through the repo, then updates the cache.
func (c *StateCache) SetStatus(ctx context.Context, id domain.WebhookID, status domain.WebhookStatus) error {
	if err := c.repo.SetState(ctx, id, status); err != nil {
		return &domain.RepoError{Cause: err}
	}

	if c.webhooks != nil {
		if err := c.webhooks.SetWebhookStatus(ctx, id, status); err != nil {
			return &domain.RepoError{Cause: err}
		}
	}

	c.setLocal(ctx, id, status)
	return nil
}

// Observe updates only the in-memory cache, without writing through to
// either repo. Used to absorb status changes the engine did not itself
// originate (an operator re-enable observed on the webhook update stream).
func (c *StateCache) Observe(id domain.WebhookID, status domain.WebhookStatus) {
	c.mu.Lock()
	c.cache[id] = status
	c.mu.Unlock()
}

// Peek returns the cached value without touching the repo, and whether it was present.
func (c *StateCache) Peek(id domain.WebhookID) (domain.WebhookStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	status, ok := c.cache[id]
	return status, ok
}
