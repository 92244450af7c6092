package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-service/internal/forecast"
	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/observability"
	"github.com/kjstillabower/weather-forecast-service/internal/store"
	"github.com/kjstillabower/weather-forecast-service/internal/upstream"
)

// ForecastService orchestrates forecast retrieval using the cache-aside
// pattern: the store is consulted first, upstream is called on a miss, and
// results are written back. Store failures never fail a response; caching is
// an optimization, not a correctness dependency.
//
// Concurrent requests for the same expired city may both call upstream; there
// is deliberately no per-key flight lock given the small city count and low
// expected request rate.
type ForecastService struct {
	provider       upstream.Provider
	store          store.Store
	ttl            time.Duration
	interCallDelay time.Duration
	requests       []models.ForecastRequest

	now func() time.Time
}

// NewForecastService creates a ForecastService. ttl is the cache entry
// lifetime; interCallDelay is the fixed sleep between consecutive upstream
// calls inside one aggregate request. requests is the configured city list in
// presentation order.
func NewForecastService(provider upstream.Provider, st store.Store, ttl, interCallDelay time.Duration, requests []models.ForecastRequest) *ForecastService {
	return &ForecastService{
		provider:       provider,
		store:          st,
		ttl:            ttl,
		interCallDelay: interCallDelay,
		requests:       requests,
		now:            time.Now,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// GetForecastForCity returns tomorrow's forecast for one configured city,
// serving a valid cache entry when present and calling upstream otherwise.
// Idempotent per city within a TTL window.
func (s *ForecastService) GetForecastForCity(ctx context.Context, req models.ForecastRequest) (models.CacheEntry, error) {
	entry, _, err := s.getForecastForCity(ctx, req)
	return entry, err
}

// getForecastForCity additionally reports whether an upstream call was made,
// so the aggregate loop can space out consecutive provider calls.
func (s *ForecastService) getForecastForCity(ctx context.Context, req models.ForecastRequest) (models.CacheEntry, bool, error) {
	logger := loggerFromContext(ctx)
	now := s.now()

	getStart := time.Now()
	cached, ok, err := s.store.Get(ctx, req.CityID)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeStoreError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		if logger != nil {
			logger.Warn("cache read failed, treating as miss", zap.String("city", req.CityID), zap.Error(err))
		}
	} else if ok && cached.Valid(now) {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues(req.CityID).Inc()
		if logger != nil {
			logger.Debug("cache hit", zap.String("city", req.CityID))
		}
		return cached, false, nil
	}

	observability.CacheMissesTotal.WithLabelValues(req.CityID).Inc()
	if logger != nil {
		logger.Debug("cache miss, fetching upstream", zap.String("city", req.CityID))
	}

	doc, err := s.provider.GetLocationForecast(ctx, req.Coordinates)
	if err != nil {
		return models.CacheEntry{}, true, fmt.Errorf("fetch forecast for %s: %w", req.CityID, err)
	}

	entry, err := forecast.BuildEntry(req, doc, now, s.ttl)
	if err != nil {
		return models.CacheEntry{}, true, err
	}

	setStart := time.Now()
	if setErr := s.store.Put(ctx, req.CityID, entry); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("put", categorizeStoreError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("put", "error").Observe(time.Since(setStart).Seconds())
		if logger != nil {
			logger.Warn("cache write failed", zap.String("city", req.CityID), zap.Error(setErr))
		}
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("put", "success").Observe(time.Since(setStart).Seconds())
	}

	return entry, true, nil
}

// GetAggregate builds the forecast envelope for every configured city.
// Cities are processed independently and sequentially; a failed city is
// omitted from the result. Only when every city fails does the response
// report success=false.
func (s *ForecastService) GetAggregate(ctx context.Context) models.AggregateResponse {
	logger := loggerFromContext(ctx)

	cities := make([]models.CityForecast, 0, len(s.requests))
	var lastUpdated time.Time
	var lastErr error
	calledUpstream := false

	for _, req := range s.requests {
		// Space out consecutive provider calls to stay under the published
		// rate ceiling. Cache hits don't count against it.
		if calledUpstream && s.interCallDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.interCallDelay):
			}
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}

		entry, wentUpstream, err := s.getForecastForCity(ctx, req)
		if wentUpstream {
			calledUpstream = true
		}
		if err != nil {
			observability.ForecastCityFailuresTotal.WithLabelValues(req.CityID).Inc()
			if logger != nil {
				logger.Warn("city forecast failed, omitting", zap.String("city", req.CityID), zap.Error(err))
			}
			lastErr = err
			continue
		}

		cities = append(cities, entry.CityForecast)
		if entry.LastUpdated.After(lastUpdated) {
			lastUpdated = entry.LastUpdated
		}
	}

	if len(cities) == 0 {
		observability.ForecastRequestsTotal.WithLabelValues("failure").Inc()
		msg := fmt.Sprintf("failed to fetch forecasts for all %d cities", len(s.requests))
		if lastErr != nil {
			msg = fmt.Sprintf("%s: %v", msg, lastErr)
		}
		return models.AggregateResponse{
			Success: false,
			Cities:  []models.CityForecast{},
			Error:   msg,
		}
	}

	observability.ForecastRequestsTotal.WithLabelValues("success").Inc()
	return models.AggregateResponse{
		Success:     true,
		Cities:      cities,
		LastUpdated: &lastUpdated,
	}
}

// categorizeStoreError returns a stable label for cache error metrics
// (timeout, connection, unknown).
func categorizeStoreError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
