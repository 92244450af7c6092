// Command poller periodically fetches the aggregate forecast through the
// resilient fetch channel and logs each result. Useful as a smoke consumer
// and as a liveness probe against a deployed service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-service/internal/fetchclient"
	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/observability"
)

func main() {
	_ = godotenv.Load()

	endpoint := flag.String("endpoint", envOr("FORECAST_ENDPOINT", "http://localhost:8080"), "forecast service base URL")
	interval := flag.Duration("interval", 5*time.Minute, "auto-refresh interval")
	once := flag.Bool("once", false, "fetch once and exit")
	force := flag.Bool("force", false, "skip client-side safeguards on the initial fetch")
	flag.Parse()

	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	channel := fetchclient.New(fetchclient.Config{Endpoint: *endpoint}, logger)
	defer channel.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	resp, err := channel.FetchForecasts(ctx, *force)
	logResult(logger, resp, err)
	if *once {
		if err != nil {
			os.Exit(1)
		}
		return
	}

	channel.Start(*interval, func(resp models.AggregateResponse, err error) {
		logResult(logger, resp, err)
	})

	<-ctx.Done()
	logger.Info("poller stopping")
}

func logResult(logger *zap.Logger, resp models.AggregateResponse, err error) {
	if err != nil {
		var fe *fetchclient.Error
		if errors.As(err, &fe) {
			logger.Warn("fetch failed",
				zap.String("kind", string(fe.Kind)),
				zap.Int("status", fe.Status),
				zap.Duration("retry_after", fe.RetryAfter),
				zap.Error(err))
			return
		}
		logger.Warn("fetch failed", zap.Error(err))
		return
	}
	logger.Info("forecast received",
		zap.Bool("success", resp.Success),
		zap.Int("cities", len(resp.Cities)),
		zap.String("request_id", resp.RequestID))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
