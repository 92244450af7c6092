package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/observability"
)

// Provider fetches a raw forecast document for a coordinate pair.
type Provider interface {
	GetLocationForecast(ctx context.Context, coords models.Coordinates) (ForecastDocument, error)
}

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrRateLimited         = errors.New("upstream rate limited")
	ErrMalformedResponse   = errors.New("malformed upstream response")
)

// ForecastDocument is the subset of the locationforecast compact payload the
// service consumes. Missing and extra fields are tolerated.
type ForecastDocument struct {
	Properties struct {
		Meta struct {
			UpdatedAt string `json:"updated_at"`
		} `json:"meta"`
		Timeseries []TimeStep `json:"timeseries"`
	} `json:"properties"`
}

// TimeStep is one entry in the upstream time series.
type TimeStep struct {
	Time time.Time `json:"time"`
	Data struct {
		Instant struct {
			Details struct {
				AirTemperature   *float64 `json:"air_temperature"`
				RelativeHumidity *float64 `json:"relative_humidity"`
				WindSpeed        *float64 `json:"wind_speed"`
			} `json:"details"`
		} `json:"instant"`
		Next6Hours struct {
			Summary struct {
				SymbolCode string `json:"symbol_code"`
			} `json:"summary"`
		} `json:"next_6_hours"`
	} `json:"data"`
}

// UpdatedAt returns the provider-supplied document timestamp, if present and
// parseable.
func (d ForecastDocument) UpdatedAt() (time.Time, bool) {
	raw := d.Properties.Meta.UpdatedAt
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// MetNoClient talks to the Norwegian Meteorological Institute's
// locationforecast endpoint. The provider's terms require an identifying
// User-Agent; requests without one are rejected.
type MetNoClient struct {
	baseURL        string
	userAgent      string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
}

// NewMetNoClient creates a client with the default retry policy.
func NewMetNoClient(baseURL, userAgent string, timeout time.Duration) (*MetNoClient, error) {
	return NewMetNoClientWithRetry(baseURL, userAgent, timeout, 3, 1*time.Second, 8*time.Second)
}

// NewMetNoClientWithRetry creates a client with an explicit retry policy.
func NewMetNoClientWithRetry(baseURL, userAgent string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*MetNoClient, error) {
	if userAgent == "" {
		return nil, fmt.Errorf("user agent is required by the upstream usage policy")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	return &MetNoClient{
		baseURL:        baseURL,
		userAgent:      userAgent,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GetLocationForecast fetches the forecast document for the coordinates,
// retrying transient failures with exponential backoff.
func (c *MetNoClient) GetLocationForecast(ctx context.Context, coords models.Coordinates) (ForecastDocument, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.UpstreamRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ForecastDocument{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		doc, err := c.callAPI(ctx, coords)
		if err == nil {
			return doc, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return ForecastDocument{}, err
		}
	}

	return ForecastDocument{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *MetNoClient) callAPI(ctx context.Context, coords models.Coordinates) (ForecastDocument, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, coords)
	if err != nil {
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		return ForecastDocument{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.UpstreamCallsTotal.WithLabelValues("error").Inc()
		observability.UpstreamDuration.WithLabelValues("error").Observe(duration)

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ForecastDocument{}, fmt.Errorf("%w: request timeout: %v", ErrUpstreamUnavailable, err)
		}
		return ForecastDocument{}, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.UpstreamCallsTotal.WithLabelValues(status).Inc()
	observability.UpstreamDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return ForecastDocument{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ForecastDocument{}, fmt.Errorf("%w: read response body: %v", ErrUpstreamUnavailable, err)
	}

	var doc ForecastDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return ForecastDocument{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(doc.Properties.Timeseries) == 0 {
		return ForecastDocument{}, fmt.Errorf("%w: empty timeseries", ErrMalformedResponse)
	}

	return doc, nil
}

func (c *MetNoClient) buildRequest(ctx context.Context, coords models.Coordinates) (*http.Request, error) {
	baseURL, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}

	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', 4, 64))
	params.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', 4, 64))
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: HTTP 429", ErrRateLimited)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: HTTP %d", ErrUpstreamUnavailable, resp.StatusCode)
	}
	return nil
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrMalformedResponse) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable)
}

func (c *MetNoClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
