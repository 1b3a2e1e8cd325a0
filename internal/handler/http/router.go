package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vendure-ecommerce/vendure-sub026/internal/health"
	"github.com/vendure-ecommerce/vendure-sub026/internal/middleware"
	"github.com/vendure-ecommerce/vendure-sub026/internal/service"
)

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	searchService *service.SearchService,
	indexService *service.IndexService,
	defaults ContextDefaults,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics("search"))
	r.Use(middleware.Tracing("search"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	searchHandler := NewSearchHandler(searchService, defaults, logger)
	indexHandler := NewIndexHandler(indexService, defaults, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(ContentTypeJSON)
			r.Post("/search", searchHandler.Search)
		})

		r.Route("/admin/search", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(ContentTypeJSON)
				r.Post("/", searchHandler.AdminSearch)
				r.Post("/reindex/variants", indexHandler.ReindexVariants)
			})
			// Bodyless operations skip the content-type check.
			r.Post("/reindex", indexHandler.Reindex)
			r.Delete("/products/{id}", indexHandler.RemoveProduct)
		})
	})

	return r
}
