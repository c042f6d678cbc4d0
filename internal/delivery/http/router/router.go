package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/legalcode-service/internal/delivery/http/handler"
	"github.com/user/legalcode-service/internal/delivery/http/middleware"
)

func New(h *handler.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics)
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// Synchronous runs outlive the read timeout.
		r.Post("/runs", h.HandleStartRun)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(30 * time.Second))
			r.Get("/health", h.HandleHealthCheck)
			r.Get("/runs/latest", h.HandleLatestRun)
			r.Get("/runs/{id}", h.HandleGetRun)
			r.Get("/failures", h.HandleListFailures)
		})
	})

	return r
}
