package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/SachikoNitta/factnet/internal/api/handlers"
	mw "github.com/SachikoNitta/factnet/internal/api/middleware"
	"github.com/SachikoNitta/factnet/internal/buildconfig"
	"github.com/SachikoNitta/factnet/internal/config"
	"github.com/SachikoNitta/factnet/internal/detector"
	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/SachikoNitta/factnet/internal/embedding"
	"github.com/SachikoNitta/factnet/internal/service"
	"github.com/SachikoNitta/factnet/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// App holds the router and the knowledge graph for lifecycle management.
type App struct {
	Router *chi.Mux
	Graph  *service.KnowledgeGraph

	ping         func(context.Context) error
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewApp wires the HTTP surface over an already composed knowledge graph.
// ping checks backend liveness for /health; nil means always healthy.
func NewApp(graph *service.KnowledgeGraph, ping func(context.Context) error, logger *zap.Logger) *App {
	factHandler := handlers.NewFactHandler(graph)
	relHandler := handlers.NewRelationshipHandler(graph)
	networkHandler := handlers.NewNetworkHandler(graph)

	r := chi.NewRouter()

	app := &App{
		Router:    r,
		Graph:     graph,
		ping:      ping,
		startTime: time.Now(),
	}

	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", app.healthHandler())
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/facts", func(r chi.Router) {
			r.Post("/", factHandler.Create)
			r.Get("/", factHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", factHandler.GetByID)
				r.Get("/supporting", factHandler.GetSupporting)
				r.Get("/contradicting", factHandler.GetContradicting)
				r.Get("/job", factHandler.GetJob)
			})
		})

		r.Route("/relationships", func(r chi.Router) {
			r.Post("/", relHandler.Create)
			r.Get("/", relHandler.List)
		})

		r.Route("/network", func(r chi.Router) {
			r.Post("/flush", networkHandler.Flush)
			r.Get("/stats", networkHandler.Stats)
		})
	})

	return app
}

func (app *App) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if app.ping != nil {
			if err := app.ping(r.Context()); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)
		sched := app.Graph.SchedulerStats()

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"detection": map[string]any{
				"jobs_submitted": sched.Submitted,
				"jobs_done":      sched.Done,
				"jobs_failed":    sched.Failed,
				"jobs_in_flight": sched.InFlight,
			},
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
			"build":      buildconfig.VersionInfo(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.FactStore       = (*store.MemoryStore)(nil)
	_ domain.FactStore       = (*store.PostgresStore)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ domain.Detector        = (*detector.OpenAIDetector)(nil)
	_ domain.Detector        = (*detector.MockDetector)(nil)
)
