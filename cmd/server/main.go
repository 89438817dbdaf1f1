package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"clearvue/backend/internal/cache"
	"clearvue/backend/internal/config"
	"clearvue/backend/internal/httpapi"
	"clearvue/backend/internal/metrics"
	"clearvue/backend/internal/pricing"
	"clearvue/backend/internal/service"
	"clearvue/backend/internal/store"
	"clearvue/backend/internal/store/memory"
	pgstore "clearvue/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("invalid configuration")
	}

	logger := newLogger(cfg.LogLevel)
	pricer := pricing.NewCalculator(cfg.TaxRate)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL, pricer)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded(pricer)
		logger.Warn().Msg("repository: in-memory (DATABASE_URL not set)")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, using noop report cache")
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info().Msg("report cache: redis")
		}
	} else {
		logger.Info().Msg("report cache: noop")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	saleMetrics := metrics.NewSaleMetrics(registry)

	svc := service.New(repo, reports, saleMetrics, logger, time.Duration(cfg.ReportCacheTTLSeconds)*time.Second)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo, logger)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger, registry)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

func newLogger(level string) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Logger()
}
