package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SachikoNitta/factnet/internal/api"
	"github.com/SachikoNitta/factnet/internal/config"
	"github.com/SachikoNitta/factnet/internal/detector"
	"github.com/SachikoNitta/factnet/internal/domain"
	"github.com/SachikoNitta/factnet/internal/embedding"
	"github.com/SachikoNitta/factnet/internal/service"
	"github.com/SachikoNitta/factnet/internal/store"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	factStore, ping, err := newStore(ctx, logger)
	if err != nil {
		logger.Fatal("failed to open fact store", zap.Error(err))
	}

	det, err := detector.New(config.DetectorProvider(), detector.Options{
		APIKey: config.DetectorAPIKey(),
		Model:  config.DetectorModel(),
	})
	if err != nil {
		logger.Fatal("failed to init detector", zap.String("provider", config.DetectorProvider()), zap.Error(err))
	}
	logger.Info("detector initialized", zap.String("provider", config.DetectorProvider()))

	var embedder domain.EmbeddingClient
	if provider := config.EmbeddingProvider(); provider != "none" {
		embedder, err = embedding.NewClient(provider, config.EmbeddingAPIKey())
		if err != nil {
			logger.Warn("embedding client initialization failed", zap.String("provider", provider), zap.Error(err))
		} else {
			logger.Info("embedding client initialized", zap.String("provider", provider))
		}
	}

	graph := service.NewKnowledgeGraph(factStore, det, service.GraphOptions{
		Workers:  config.DetectorWorkers(),
		Embedder: embedder,
	}, logger)

	app := api.NewApp(graph, ping, logger)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Drain outstanding detection jobs, then release storage.
	if err := graph.WaitForProcessing(shutdownCtx); err != nil {
		logger.Warn("detection jobs still pending at shutdown", zap.Error(err))
	}
	if err := graph.Close(); err != nil {
		logger.Error("failed to close knowledge graph", zap.Error(err))
	}

	logger.Info("server stopped")
}

// newStore opens the configured backend and returns it with a ping function
// for the health endpoint.
func newStore(ctx context.Context, logger *zap.Logger) (domain.FactStore, func(context.Context) error, error) {
	switch backend := config.StorageBackend(); backend {
	case "postgres":
		pg, err := store.NewPostgresStore(ctx, store.PostgresOptions{
			URI:      config.DatabaseURL(),
			Username: config.DatabaseUser(),
			Password: config.DatabasePassword(),
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("connected to database")
		return pg, pg.Ping, nil
	default:
		logger.Info("using in-memory fact store", zap.String("backend", backend))
		return store.NewMemoryStore(), nil, nil
	}
}
