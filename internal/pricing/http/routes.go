package pricinghttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

const (
	quoteRateLimit  = 120
	importRateLimit = 10
	rateWindow      = time.Minute
)

// MountRoutes registers the public quote endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(limiter(quoteRateLimit))
		gr.Get("/pricing/services/{slug}/quote", h.handleQuote)
		gr.Get("/pricing/services/{slug}/options", h.handleOptions)
	})
}

// MountAdminRoutes registers the admin endpoints relative to the admin
// prefix. Authentication is applied by the caller.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Group(func(gr chi.Router) {
		gr.Use(limiter(importRateLimit))
		gr.Post("/import", h.handleImport)
	})
	r.Get("/services", h.handleListServices)
	r.Post("/services", h.handleUpsertService)
	r.Delete("/services/{id}", h.handleDeleteService)
	r.Get("/services/{slug}/history", h.handleHistory)
	r.Get("/services/{id}/rows", h.handleListRows)
	r.Post("/services/{id}/rows", h.handleCreateRow)
	r.Put("/rows/{id}", h.handleReplaceRow)
	r.Post("/rows/{id}/deactivate", h.handleDeactivateRow)
	r.Delete("/rows/{id}", h.handleDeleteRow)
}

func limiter(requests int) func(http.Handler) http.Handler {
	return httprate.Limit(requests, rateWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
}
