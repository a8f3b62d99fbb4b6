// Package web provides the public HTTP API: batch submission and
// status, billing webhooks, health, metrics and docs.
package web

import (
	"net/http"
	"time"

	"github.com/artpar/fetchvault/adapters/metrics"
	"github.com/artpar/fetchvault/app"
	"github.com/artpar/fetchvault/ports"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Handler provides the API endpoints.
type Handler struct {
	admission *app.AdmissionService
	billing   *app.BillingService
	tenants   ports.TenantStore
	rates     ports.RateLimitStore
	credits   ports.CreditStore
	hasher    ports.Hasher
	clock     ports.Clock
	metrics   *metrics.Collector
	logger    zerolog.Logger
	startTime time.Time
}

// Deps contains dependencies for the API handler.
type Deps struct {
	Admission *app.AdmissionService
	Billing   *app.BillingService
	Tenants   ports.TenantStore
	Rates     ports.RateLimitStore
	Credits   ports.CreditStore
	Hasher    ports.Hasher
	Clock     ports.Clock
	Metrics   *metrics.Collector
	Logger    zerolog.Logger
}

// NewHandler creates the API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		admission: deps.Admission,
		billing:   deps.Billing,
		tenants:   deps.Tenants,
		rates:     deps.Rates,
		credits:   deps.Credits,
		hasher:    deps.Hasher,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		startTime: time.Now(),
	}
}

// Router builds the route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(h.requestLogger)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Mount("/docs", h.docsRouter())

	r.Post("/webhooks/billing", h.handleBillingWebhook)

	r.Route("/v1", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Use(h.recordOutcome)
		r.Post("/batches", h.handleSubmitBatch)
		r.Get("/batches/{batchID}", h.handleGetBatch)
		r.Get("/usage", h.handleGetUsage)
	})

	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}
