package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/weather-forecast-service/internal/config"
	httphandler "github.com/kjstillabower/weather-forecast-service/internal/http"
	"github.com/kjstillabower/weather-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/weather-forecast-service/internal/observability"
	"github.com/kjstillabower/weather-forecast-service/internal/service"
	"github.com/kjstillabower/weather-forecast-service/internal/store"
	"github.com/kjstillabower/weather-forecast-service/internal/upstream"
)

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	provider, err := upstream.NewMetNoClient(cfg.UpstreamURL, cfg.UserAgent(), cfg.UpstreamTimeout)
	if err != nil {
		logger.Fatal("upstream client", zap.Error(err))
	}

	var forecastStore store.Store
	var storePing func() error
	var storeClose func() error
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := store.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached store", zap.Error(err))
		}
		forecastStore = mc
		storePing = mc.Ping
		storeClose = mc.Close
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	case "redis":
		rc := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		forecastStore = rc
		storePing = rc.Ping
		storeClose = rc.Close
		logger.Info("cache backend: redis", zap.String("addr", cfg.RedisAddr))
	default:
		forecastStore = store.NewInMemoryStore()
		logger.Info("cache backend: in_memory")
	}

	requests := cfg.Requests()
	forecastService := service.NewForecastService(provider, forecastStore, cfg.CacheTTL, cfg.InterCallDelay, requests)

	if cfg.WarmCache {
		warmer := store.NewWarmer(forecastService, logger, cfg.InterCallDelay)
		warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := warmer.Warm(warmCtx, requests); err != nil {
			logger.Warn("cache warming failed", zap.Error(err))
		}
		warmCancel()
		if cfg.WarmInterval > 0 {
			go func() {
				if err := warmer.WarmPeriodic(context.Background(), requests, cfg.WarmInterval); err != nil && err != context.Canceled {
					logger.Error("periodic cache warming stopped", zap.Error(err))
				}
			}()
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(forecastService, cfg.AppName, cfg.Version, logger, storePing)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	// The forecast payload is public read-only data; any origin may embed it.
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	forecastRouter := router.PathPrefix("/forecast").Subrouter()
	forecastRouter.Use(httphandler.RateLimitMiddleware(limiter))
	forecastRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	forecastRouter.HandleFunc("", handler.GetForecast).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", ":"+cfg.ServerPort),
			zap.Int("cities", len(requests)),
			zap.Duration("cache_ttl", cfg.CacheTTL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if storeClose != nil {
		if err := storeClose(); err != nil {
			logger.Error("store close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
