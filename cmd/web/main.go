package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"retail-pulse/internal/config"
	"retail-pulse/internal/forecast"
	"retail-pulse/internal/middleware"
	"retail-pulse/internal/observability"
	"retail-pulse/internal/provider"
	"retail-pulse/internal/server"
	"retail-pulse/internal/services"
	"retail-pulse/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	warmupTimeout = 30 * time.Second
	cacheMaxAge   = "public, max-age=300"
)

func dashboardHandler(defaultHorizon int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheMaxAge)
		if err := templates.Dashboard(defaultHorizon).Render(ctx, w); err != nil {
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func newProvider(cfg config.DataConfig, logger *slog.Logger) provider.HistoricalProvider {
	if cfg.Source == config.SourceCSV {
		return provider.NewCSVProvider(cfg.CSVFile, cfg.CacheDir, logger)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	logger.Info("using mock historical data", "seed", seed)
	return provider.NewSeededGenerator(seed)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"config", cfg,
	)

	params, err := forecast.LoadParams(cfg.Forecast.ParamsFile)
	if err != nil {
		logger.Error("failed to load forecast parameters", "error", err)
		os.Exit(1)
	}

	analytics := services.NewAnalytics(newProvider(cfg.Data, logger), params, logger)
	ctx, cancel := context.WithTimeout(context.Background(), warmupTimeout)
	defer cancel()

	start := time.Now()
	if _, err := analytics.Refresh(ctx); err != nil {
		logger.Error("failed to load historical data", "error", err)
		os.Exit(1)
	}
	logger.Info("historical data loaded", "duration", time.Since(start))

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(cfg.Forecast.DefaultHorizon),
	}

	srv := server.NewServer(analytics, cfg.Forecast.DefaultHorizon, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.CSRF(cfg.Security, logger),
		middleware.RateLimit(rateLimiter, logger),
	)

	handler := middlewareChain(srv)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("shutting down analytics service", "stats", analytics.Stats())
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(context.Background()); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
