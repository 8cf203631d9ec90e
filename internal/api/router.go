package api

import (
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/stridelab/warehouse/internal/api/handlers"
	"github.com/stridelab/warehouse/internal/api/middleware"
	"github.com/stridelab/warehouse/internal/config"
	"github.com/stridelab/warehouse/internal/domain/analytics"
	"github.com/stridelab/warehouse/internal/domain/inventory"
	"github.com/stridelab/warehouse/internal/domain/runs"
	"github.com/stridelab/warehouse/internal/metrics"
	"github.com/stridelab/warehouse/internal/storage"
)

// NewRouter wires the HTTP surface over an already-connected repository.
func NewRouter(cfg config.Config, logger zerolog.Logger, repo storage.Repository, pool *pgxpool.Pool) http.Handler {
	runsService := runs.NewService(repo.Runs(), logger, runs.ServiceConfig{
		MaxBatchRows:    cfg.Ingest.MaxBatchRows,
		StepTimeout:     cfg.Ingest.StepTimeout,
		BackfillTimeout: cfg.Ingest.BackfillTimeout,
	})
	analyticsService := analytics.NewService(repo.Analytics())
	inventoryService := inventory.NewService(repo.Inventory())

	ingestHandler := handlers.NewIngestHandler(runsService, cfg.Environment)
	maintenanceHandler := handlers.NewMaintenanceHandler(runsService, cfg.Environment)
	analyticsHandler := handlers.NewAnalyticsHandler(analyticsService, cfg.Environment)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService, cfg.Environment)

	// The tier wrapper must run before the limiter so the limiter sees it.
	limit := middleware.RateLimit(cfg.RateLimit)
	ingestTier := func(h http.Handler) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierIngest)(limit(h))
	}
	queryTier := func(h http.Handler) http.Handler {
		return middleware.WithRateLimitTierHandler(middleware.TierQuery)(limit(h))
	}

	mux := http.NewServeMux()
	mux.Handle("/healthz", handlers.Healthz())
	mux.Handle("/readyz", handlers.Readyz(pool))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("/api/v1/ingest/runs", methodMux(map[string]http.Handler{
		http.MethodPost: ingestTier(http.HandlerFunc(ingestHandler.Create)),
	}))
	mux.Handle("/api/v1/maintenance/backfill-dimensions", methodMux(map[string]http.Handler{
		http.MethodPost: ingestTier(http.HandlerFunc(maintenanceHandler.Backfill)),
	}))

	mux.Handle("GET /api/v1/analytics/overview", queryTier(http.HandlerFunc(analyticsHandler.Overview)))
	mux.Handle("GET /api/v1/analytics/pace-by-demo", queryTier(http.HandlerFunc(analyticsHandler.PaceByDemo)))
	mux.Handle("GET /api/v1/analytics/top-countries", queryTier(http.HandlerFunc(analyticsHandler.TopCountries)))
	mux.Handle("GET /api/v1/analytics/major-distance-by-year", queryTier(http.HandlerFunc(analyticsHandler.MajorDistanceByYear)))
	mux.Handle("GET /api/v1/analytics/distance-by-gender", queryTier(http.HandlerFunc(analyticsHandler.DistanceByGender)))
	mux.Handle("GET /api/v1/analytics/major-gender-distribution", queryTier(http.HandlerFunc(analyticsHandler.MajorGenderDistribution)))
	mux.Handle("GET /api/v1/analytics/athlete-pace", queryTier(http.HandlerFunc(analyticsHandler.AthletePace)))

	mux.Handle("/api/v1/inventory", methodMux(map[string]http.Handler{
		http.MethodGet:  queryTier(http.HandlerFunc(inventoryHandler.List)),
		http.MethodPost: queryTier(http.HandlerFunc(inventoryHandler.Create)),
	}))

	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.RequestID(handler)
	return handler
}

func methodMux(handlers map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Allow", allowedMethods(handlers))
		w.WriteHeader(http.StatusMethodNotAllowed)
	})
}

func allowedMethods(handlers map[string]http.Handler) string {
	methods := make([]string, 0, len(handlers))
	for method := range handlers {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return strings.Join(methods, ", ")
}
