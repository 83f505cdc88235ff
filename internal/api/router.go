package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/api/handler"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/api/middleware"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/auth"
	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/storage"
)

// Dependencies are the components served by the router.
type Dependencies struct {
	Store storage.Storage
	// Sweeper backs POST /api/v1/sweep. The route is omitted when nil.
	Sweeper       handler.SweepRunner
	QueueID       string
	WebhookSecret []byte
	// Verifiers authenticate admin API callers.
	Verifiers []auth.TokenVerifier
	Logger    *slog.Logger
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))

	// Health check and metrics (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// GitHub webhook ingress (authenticated by payload signature)
	webhookHandler := handler.NewWebhookHandler(deps.Store, deps.WebhookSecret)
	r.With(middleware.ContentType).Post("/webhooks/github", webhookHandler.Receive)

	// API routes (auth required, JSON Content-Type)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentType)
		r.Use(middleware.Auth(deps.Verifiers...))

		// Tickets
		ticketHandler := handler.NewTicketHandler(deps.Store, deps.QueueID)
		r.Get("/tickets", ticketHandler.List)
		r.Get("/tickets/{id}", ticketHandler.Get)

		// Queue
		queueHandler := handler.NewQueueHandler(deps.Store)
		r.Get("/queue/stats", queueHandler.Stats)

		// Sweep
		if deps.Sweeper != nil {
			sweepHandler := handler.NewSweepHandler(deps.Sweeper)
			r.Post("/sweep", sweepHandler.Run)
		}
	})

	return r
}
