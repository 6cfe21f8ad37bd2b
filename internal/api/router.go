package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chris-hendrix/tripful-sub006/internal/api/handler"
	apimw "github.com/chris-hendrix/tripful-sub006/internal/api/middleware"
	"github.com/chris-hendrix/tripful-sub006/internal/jobqueue"
	"github.com/chris-hendrix/tripful-sub006/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc *service.NotificationService,
	queue *jobqueue.Client,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)            // recover panics, return 500
	r.Use(chimw.RealIP)               // trust X-Forwarded-For / X-Real-IP
	r.Use(chimw.RequestSize(1 << 20)) // 1 MB max request body
	r.Use(apimw.CorrelationID)        // X-Correlation-ID inject / echo
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	nh := handler.NewNotificationHandler(svc, logger)
	qh := handler.NewQueueHandler(queue)
	hh := handler.NewHealthHandler()

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint (for Prometheus server / Grafana)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Notifications — note: /read-all must be registered before
		// /{id}/read so chi does not treat "read-all" as an ID.
		r.Get("/notifications", nh.List)
		r.Post("/notifications/read-all", nh.MarkAllRead)
		r.Post("/notifications/{id}/read", nh.MarkRead)

		r.Get("/trips/{tripID}/preferences", nh.GetPreferences)
		r.Put("/trips/{tripID}/preferences", nh.UpdatePreferences)
		r.Post("/trips/{tripID}/messages", nh.PostMessage)

		r.Post("/invitations", nh.SendInvitation)

		// JSON queue depth snapshot
		r.Get("/queues", qh.GetQueues)
	})

	return r
}
