package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prudhvinik1/possync/internal/metrics"
	"github.com/prudhvinik1/possync/internal/services"
	"github.com/rs/cors"
	"golang.org/x/exp/slog"
)

type RouterDeps struct {
	Syncer Syncer
	// Auth and WebhookSecretHash are optional; unset leaves the endpoint open.
	Auth              *services.DispatcherAuth
	WebhookSecretHash string
	Metrics           *metrics.Metrics
	Gatherer          prometheus.Gatherer
	AllowedOrigins    []string
	Status            StatusOptions
	Log               *slog.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	syncHandler := NewSyncHandler(deps.Syncer, deps.Metrics, log)
	statusHandler := NewStatusHandler(deps.Syncer, deps.Status, log)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	// Health check endpoints
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	router.Get("/api/health/nocodb", statusHandler.TableServiceHealth)

	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	router.Route("/api/sync", func(r chi.Router) {
		r.Get("/status", statusHandler.SyncStatus)

		r.Group(func(r chi.Router) {
			if deps.Auth != nil {
				r.Use(RequireDispatcherToken(deps.Auth, log))
			}
			r.Post("/mongo-change", syncHandler.DocumentChange)
		})
		r.Group(func(r chi.Router) {
			if deps.WebhookSecretHash != "" {
				r.Use(RequireWebhookSecret(deps.WebhookSecretHash, log))
			}
			r.Post("/nocodb-webhook", syncHandler.TableWebhook)
		})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type", WebhookSecretHeader},
	})
	return c.Handler(router)
}
