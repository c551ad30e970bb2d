package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keeper.share/internal/sharing"
	"keeper.share/internal/store"
)

func SetupRouter(service *sharing.Service, records store.RecordStore, jwtSecret string, gatherer prometheus.Gatherer) *chi.Mux {
	h := NewHandler(service, records)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// API routes; every caller is an authenticated principal
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticator(jwtSecret))

		r.Route("/records", func(r chi.Router) {
			r.Post("/", h.CreateRecord)
			r.Get("/{id}", h.GetRecord)
			r.Post("/{id}/share", h.ShareRecord)
		})

		r.Get("/shared/{token}", h.RedeemShared)
	})

	return r
}
