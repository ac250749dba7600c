package webhooks

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the webhook and delivery routes on r. mutating
// wraps the handlers that must sit behind the operator bearer-token
// middleware; read routes are passed through unwrapped. deliveryCache, if
// non-nil, wraps the delivery-history listing, the one read route expensive
// enough (a join against the delivery repository) to be worth a short-TTL
// response cache; pass a no-op middleware to disable it.
func (h *Handler) RegisterRoutes(r chi.Router, mutating, deliveryCache func(http.Handler) http.Handler) {
	if deliveryCache == nil {
		deliveryCache = func(next http.Handler) http.Handler { return next }
	}
	r.Route("/webhooks", func(r chi.Router) {
		r.With(mutating).Post("/", h.Create)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.With(mutating).Patch("/{id}", h.Update)
		r.With(deliveryCache).Get("/{id}/deliveries", h.ListDeliveries)
	})
}
