// Package api wires the operator API: webhook registration and delivery
// inspection, health checks and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bargom/hookrelay/internal/api/handlers/webhooks"
	"github.com/bargom/hookrelay/internal/auth"
	"github.com/bargom/hookrelay/internal/cache"
	"github.com/bargom/hookrelay/internal/health"
	"github.com/bargom/hookrelay/pkg/metrics"
)

// deliveryCacheTTL bounds how stale a cached delivery-history page may be.
const deliveryCacheTTL = 5 * time.Second

// Config holds the optional pieces of the router.
type Config struct {
	WebhookHandler *webhooks.Handler
	HealthHandler  *health.Handler
	Metrics        *metrics.Registry
	// Auth validates bearer tokens on mutating webhook routes. If nil,
	// mutating routes are left unauthenticated (used in tests).
	Auth *auth.Validator
	// Cache, if set, backs a short-TTL response cache in front of the
	// delivery-history listing route.
	Cache cache.Cache
}

// NewRouter builds the operator API's chi router.
func NewRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(jsonContentType)

	mutating := func(next http.Handler) http.Handler { return next }
	if cfg.Auth != nil {
		mutating = auth.RequireBearer(cfg.Auth)
	}

	if cfg.WebhookHandler != nil {
		var deliveryCache func(http.Handler) http.Handler
		if cfg.Cache != nil {
			deliveryCache = cache.NewMiddleware(cfg.Cache).Handler(deliveryCacheTTL)
		}
		cfg.WebhookHandler.RegisterRoutes(r, mutating, deliveryCache)
	}

	if cfg.HealthHandler != nil {
		r.Get("/health/live", cfg.HealthHandler.LivenessHandler)
		r.Get("/health/ready", cfg.HealthHandler.ReadinessHandler)
	}

	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.PrometheusRegistry(), promhttp.HandlerOpts{}))
	}

	return r
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
