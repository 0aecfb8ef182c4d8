package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/wind-widget-service/internal/cache"
	"github.com/kjstillabower/wind-widget-service/internal/client"
	"github.com/kjstillabower/wind-widget-service/internal/config"
	"github.com/kjstillabower/wind-widget-service/internal/demo"
	httphandler "github.com/kjstillabower/wind-widget-service/internal/http"
	"github.com/kjstillabower/wind-widget-service/internal/observability"
	"github.com/kjstillabower/wind-widget-service/internal/scheduler"
	"github.com/kjstillabower/wind-widget-service/internal/service"
	"github.com/kjstillabower/wind-widget-service/internal/store"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = observability.FlushLogs(logger) }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	secure, err := store.OpenSecure(store.SecureOptions{
		Path:   cfg.StoragePath,
		Secret: cfg.StorageSecret,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal("secure storage", zap.Error(err))
	}

	cacheKV, cachePing, err := openCacheStore(cfg, secure)
	if err != nil {
		logger.Fatal("cache store", zap.Error(err))
	}
	logger.Info("cache backend", zap.String("backend", cfg.CacheBackend))

	transport := client.NewRetryTransport(
		&http.Client{Timeout: cfg.EcowittAPITimeout},
		client.RetryPolicy{MaxRetries: cfg.RetryMaxRetries, Backoff: cfg.RetryBackoff},
		client.WithLogger(logger),
	)
	ecowitt, err := client.NewEcowittClient(cfg.EcowittAPIURL, transport,
		client.BreakerConfig{Threshold: cfg.BreakerThreshold, Timeout: cfg.BreakerTimeout}, logger)
	if err != nil {
		logger.Fatal("ecowitt client", zap.Error(err))
	}
	if cfg.BreakerThreshold > 0 {
		logger.Info("circuit breaker enabled", zap.Int("failure_threshold", cfg.BreakerThreshold), zap.Duration("timeout", cfg.BreakerTimeout))
	}

	registry := service.NewRegistry(ecowitt,
		service.Stores{Credentials: secure, Cache: cacheKV},
		demo.NewGenerator(),
		service.Config{MaxAge: cfg.CacheMaxAge, HistoryWindow: cfg.HistoryWindow, Location: cfg.Location},
		nil, logger)

	// Register configured widgets up front so they migrate now and join the refresh.
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	for _, id := range cfg.Widgets {
		registry.Register(bootCtx, id)
	}
	bootCancel()

	refresher := cache.NewRefresher(registry, logger)
	sched := scheduler.New(refresher, registry.Instances, cfg.RefreshInterval, cfg.RefreshTimeout, logger)
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler", zap.Error(err))
	}

	healthConfig := &httphandler.HealthConfig{
		CachePing:        cachePing,
		StorageEncrypted: secure.Encrypted(),
		StartTime:        time.Now(),
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(registry, healthConfig, logger)
	router := httphandler.NewRouter(handler, logger, limiter)

	// WriteTimeout covers a forced refresh that exhausts its retries.
	writeTimeout := cfg.EcowittAPITimeout*time.Duration(cfg.RetryMaxRetries+1) + backoffTotal(cfg) + 10*time.Second
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	handler.BeginShutdown()
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("waiting for in-flight requests", zap.Int64("count", httphandler.InFlightCount()))
	if err := httphandler.WaitForInFlight(shutdownCtx, 100*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if cacheKV != store.Store(secure) {
		if err := cacheKV.Close(); err != nil {
			logger.Error("cache store close", zap.Error(err))
		}
	}
	if err := secure.Close(); err != nil {
		logger.Error("secure storage close", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// openCacheStore returns the key-value store for cached readings and, for
// remote backends, a ping for the health check.
func openCacheStore(cfg *config.Config, secure store.Store) (store.Store, func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendSecure:
		return secure, nil, nil
	case config.CacheBackendMemory:
		return store.NewMemoryStore(), nil, nil
	case config.CacheBackendMemcached:
		mc := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		return mc, mc.Ping, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

func backoffTotal(cfg *config.Config) time.Duration {
	policy := client.RetryPolicy{MaxRetries: cfg.RetryMaxRetries, Backoff: cfg.RetryBackoff}
	return policy.TotalBackoff()
}
