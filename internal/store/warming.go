package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/observability"
)

// ForecastFetcher is implemented by the service layer to fetch one city's
// forecast. Used by Warmer to avoid a circular dependency on the service
// package.
type ForecastFetcher interface {
	GetForecastForCity(ctx context.Context, req models.ForecastRequest) (models.CacheEntry, error)
}

// Warmer prefetches forecasts for the configured cities so the first real
// request hits a warm cache. Cities are warmed sequentially with a delay
// between them, matching the provider's rate expectations.
type Warmer struct {
	fetcher ForecastFetcher
	logger  *zap.Logger
	delay   time.Duration
}

// NewWarmer creates a Warmer that uses the given fetcher and logger.
func NewWarmer(fetcher ForecastFetcher, logger *zap.Logger, delay time.Duration) *Warmer {
	return &Warmer{fetcher: fetcher, logger: logger, delay: delay}
}

// Warm fetches the forecast for each city in order, populating the cache via
// the fetcher. Returns an aggregated error if any city failed.
func (w *Warmer) Warm(ctx context.Context, reqs []models.ForecastRequest) error {
	start := time.Now()
	observability.CacheWarmingTotal.Inc()
	if w.logger != nil {
		w.logger.Info("warming forecast cache", zap.Int("cities", len(reqs)))
	}
	var errs []error
	for i, req := range reqs {
		if i > 0 && w.delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.delay):
			}
		}
		if _, err := w.fetcher.GetForecastForCity(ctx, req); err != nil {
			errs = append(errs, fmt.Errorf("warm %s: %w", req.CityID, err))
		}
	}
	duration := time.Since(start).Seconds()
	observability.CacheWarmingDurationSeconds.Observe(duration)
	if w.logger != nil {
		w.logger.Info("forecast cache warming complete", zap.Int("cities", len(reqs)), zap.Int("errors", len(errs)), zap.Float64("duration_seconds", duration))
	}
	if len(errs) > 0 {
		observability.CacheWarmingErrorsTotal.Inc()
		return fmt.Errorf("cache warming: %v", errs)
	}
	return nil
}

// WarmPeriodic runs an initial Warm, then refreshes at the given interval
// until ctx is done.
func (w *Warmer) WarmPeriodic(ctx context.Context, reqs []models.ForecastRequest, interval time.Duration) error {
	if err := w.Warm(ctx, reqs); err != nil && w.logger != nil {
		w.logger.Warn("initial cache warm failed", zap.Error(err))
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Warm(ctx, reqs); err != nil && w.logger != nil {
				w.logger.Warn("periodic cache warm failed", zap.Error(err))
			}
		}
	}
}
