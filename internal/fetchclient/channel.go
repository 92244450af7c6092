// Package fetchclient implements a resilient client for the aggregate
// forecast endpoint. Every fetch passes through layered safeguards before it
// is allowed to reach the network:
//
//   - a circuit breaker that trips after consecutive failures and backs off
//     multiplicatively,
//   - a sliding-window rate limiter with burst and sustained ceilings,
//   - an auto-retry suppressor that pauses scheduled retries after a run of
//     errors.
//
// A forced fetch skips the checks but still updates all bookkeeping, so
// operator-initiated calls keep the state machine honest.
package fetchclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-service/internal/circuitbreaker"
	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/observability"
)

const breakerComponent = "forecast_fetch"

// Config tunes the channel's safeguards. Zero fields fall back to the
// defaults documented per field.
type Config struct {
	// Endpoint is the base URL of the forecast service, e.g.
	// "https://api.example.com". The channel appends /forecast.
	Endpoint string

	// HTTPTimeout bounds each individual HTTP call. Default 10s.
	HTTPTimeout time.Duration

	// Breaker is the circuit breaker tuning. Zero fields use
	// circuitbreaker.DefaultConfig.
	Breaker circuitbreaker.Config

	// BurstLimit/BurstWindow and SustainedLimit/SustainedWindow are the two
	// rate-limit ceilings. Defaults: 4 per 5s and 20 per 60s.
	BurstLimit      int
	BurstWindow     time.Duration
	SustainedLimit  int
	SustainedWindow time.Duration

	// ErrorThreshold consecutive failures pause automatic retries for
	// ErrorCooldown. Defaults: 3 and 2m.
	ErrorThreshold int
	ErrorCooldown  time.Duration

	// RetryDelays are the waits before each inline follow-up attempt after a
	// retryable failure. Default {2s, 5s}.
	RetryDelays []time.Duration
}

func (c *Config) applyDefaults() {
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = 4
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = 5 * time.Second
	}
	if c.SustainedLimit <= 0 {
		c.SustainedLimit = 20
	}
	if c.SustainedWindow <= 0 {
		c.SustainedWindow = time.Minute
	}
	if c.ErrorThreshold <= 0 {
		c.ErrorThreshold = 3
	}
	if c.ErrorCooldown <= 0 {
		c.ErrorCooldown = 2 * time.Minute
	}
	if c.RetryDelays == nil {
		c.RetryDelays = []time.Duration{2 * time.Second, 5 * time.Second}
	}
}

// FetchChannel fetches the aggregate forecast with safeguards around every
// call. One channel instance owns one logical stream of requests: a new
// fetch supersedes any in-flight one.
type FetchChannel struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger

	mu              sync.Mutex
	breaker         *circuitbreaker.CircuitBreaker
	limiter         *slidingWindowLimiter
	consecutiveErrs int
	suppressedUntil time.Time
	inflightCancel  context.CancelFunc
	inflightGen     uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now func() time.Time
}

// New creates a FetchChannel. The channel is ready immediately; Start is only
// needed for background auto-refresh.
func New(cfg Config, logger *zap.Logger) *FetchChannel {
	cfg.applyDefaults()

	userHook := cfg.Breaker.OnStateChange
	cfg.Breaker.OnStateChange = func(from, to circuitbreaker.State) {
		observability.RecordCircuitBreakerTransition(breakerComponent, from.String(), to.String())
		observability.SetCircuitBreakerStateGauge(breakerComponent, float64(to))
		if logger != nil {
			logger.Info("circuit breaker transition",
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
		if userHook != nil {
			userHook(from, to)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &FetchChannel{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		logger:  logger,
		breaker: circuitbreaker.New(cfg.Breaker),
		limiter: newSlidingWindowLimiter(cfg.BurstLimit, cfg.BurstWindow, cfg.SustainedLimit, cfg.SustainedWindow),
		ctx:     ctx,
		cancel:  cancel,
		now:     time.Now,
	}
}

// SetClock overrides the channel's time source, propagating it to the
// breaker and limiter. Test hook.
func (fc *FetchChannel) SetClock(now func() time.Time) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.now = now
	fc.breaker.SetClock(now)
	fc.limiter.now = now
}

// FetchForecasts fetches the aggregate forecast. When force is false the
// call is subject to the circuit breaker and rate limiter, and retryable
// failures get bounded inline retries. When force is true the call always
// reaches the network, but its outcome still feeds the breaker and its
// timestamp still counts against the rate-limit windows.
//
// Starting a fetch cancels any fetch still in flight on this channel; the
// superseded caller receives ErrSuperseded and does not retry.
func (fc *FetchChannel) FetchForecasts(ctx context.Context, force bool) (models.AggregateResponse, error) {
	if fc.ctx.Err() != nil {
		return models.AggregateResponse{}, &Error{Kind: KindNetwork, Err: errors.New("fetch channel closed")}
	}

	attempts := 1
	if !force {
		attempts += len(fc.cfg.RetryDelays)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := fc.cfg.RetryDelays[attempt-1]
			select {
			case <-ctx.Done():
				return models.AggregateResponse{}, &Error{Kind: KindTimeout, Err: ctx.Err()}
			case <-fc.ctx.Done():
				return models.AggregateResponse{}, &Error{Kind: KindNetwork, Err: errors.New("fetch channel closed")}
			case <-time.After(delay):
			}
		}

		if !force {
			if err := fc.checkSafeguards(); err != nil {
				return models.AggregateResponse{}, err
			}
		}

		resp, err := fc.doFetch(ctx, force)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		fe, _ := err.(*Error)
		if force || fe == nil || !fe.Retryable() {
			return models.AggregateResponse{}, err
		}
		if fc.suppressionActive() {
			// The failure run just crossed the threshold; stop scheduling
			// follow-ups until the cooldown passes.
			break
		}
	}
	return models.AggregateResponse{}, lastErr
}

// checkSafeguards enforces breaker and limiter gates. Rejections here never
// touch the network and never count as breaker failures.
func (fc *FetchChannel) checkSafeguards() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	if err := fc.breaker.Allow(); err != nil {
		var open *circuitbreaker.ErrOpen
		retryAfter := time.Duration(0)
		if errors.As(err, &open) {
			retryAfter = open.RetryAfter
		}
		return &Error{Kind: KindCircuitOpen, RetryAfter: retryAfter, Err: err}
	}
	if wait, ok := fc.limiter.allow(); !ok {
		return &Error{Kind: KindRateLimited, RetryAfter: wait}
	}
	return nil
}

// doFetch performs one HTTP attempt and updates all bookkeeping with its
// outcome.
func (fc *FetchChannel) doFetch(ctx context.Context, force bool) (models.AggregateResponse, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fc.mu.Lock()
	if fc.inflightCancel != nil {
		// Supersede: the newer request wins.
		fc.inflightCancel()
	}
	fc.inflightCancel = cancel
	fc.inflightGen++
	gen := fc.inflightGen
	fc.limiter.record()
	fc.mu.Unlock()

	resp, err := fc.request(callCtx)

	fc.mu.Lock()
	if fc.inflightGen != gen {
		// A newer request superseded this one and cancelled its context.
		// Its outcome says nothing about the backend, so it must not feed
		// the breaker or the retry-pause counter, and the stale caller must
		// not keep retrying against the winner.
		fc.mu.Unlock()
		if err != nil {
			return models.AggregateResponse{}, ErrSuperseded
		}
		return resp, nil
	}
	fc.inflightCancel = nil
	if err == nil {
		fc.breaker.RecordSuccess()
		fc.consecutiveErrs = 0
		fc.suppressedUntil = time.Time{}
	} else {
		fc.breaker.RecordFailure()
		if !force {
			fc.consecutiveErrs++
			if fc.consecutiveErrs >= fc.cfg.ErrorThreshold && fc.suppressedUntil.IsZero() {
				fc.suppressedUntil = fc.now().Add(fc.cfg.ErrorCooldown)
				if fc.logger != nil {
					fc.logger.Warn("pausing automatic retries after repeated failures",
						zap.Int("consecutive_errors", fc.consecutiveErrs),
						zap.Duration("cooldown", fc.cfg.ErrorCooldown))
				}
			}
		}
	}
	fc.mu.Unlock()

	return resp, err
}

// request issues the GET and classifies any failure.
func (fc *FetchChannel) request(ctx context.Context) (models.AggregateResponse, error) {
	url := fc.cfg.Endpoint + "/forecast"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.AggregateResponse{}, &Error{Kind: KindValidation, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := fc.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return models.AggregateResponse{}, &Error{Kind: KindTimeout, Err: err}
		}
		return models.AggregateResponse{}, &Error{Kind: KindNetwork, Err: err}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return models.AggregateResponse{}, &Error{Kind: KindHTTP, Status: httpResp.StatusCode}
	}

	var resp models.AggregateResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return models.AggregateResponse{}, &Error{Kind: KindValidation, Err: fmt.Errorf("decode response: %w", err)}
	}
	if resp.Cities == nil {
		return models.AggregateResponse{}, &Error{Kind: KindValidation, Err: errors.New("response missing cities")}
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// suppressionActive reports whether automatic retries are currently paused.
// The pause clears itself once the cooldown elapses.
func (fc *FetchChannel) suppressionActive() bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.suppressionActiveLocked()
}

func (fc *FetchChannel) suppressionActiveLocked() bool {
	if fc.suppressedUntil.IsZero() {
		return false
	}
	if fc.now().Before(fc.suppressedUntil) {
		return true
	}
	fc.suppressedUntil = time.Time{}
	fc.consecutiveErrs = 0
	return false
}

// BreakerState returns the breaker's current state.
func (fc *FetchChannel) BreakerState() circuitbreaker.State {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.breaker.State()
}

// ResetBreaker forces the breaker closed and clears the retry pause.
// Operator escape hatch for when the upstream is known to be healthy again.
func (fc *FetchChannel) ResetBreaker() {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.breaker.Reset()
	fc.consecutiveErrs = 0
	fc.suppressedUntil = time.Time{}
}

// Start launches background auto-refresh at the given interval. Each result
// is delivered to onResult. Ticks are skipped while automatic retries are
// paused. Call Stop to halt.
func (fc *FetchChannel) Start(interval time.Duration, onResult func(models.AggregateResponse, error)) {
	fc.wg.Add(1)
	go func() {
		defer fc.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-fc.ctx.Done():
				return
			case <-ticker.C:
				if fc.suppressionActive() {
					if fc.logger != nil {
						fc.logger.Debug("skipping auto-refresh, retries paused")
					}
					continue
				}
				resp, err := fc.FetchForecasts(fc.ctx, false)
				if onResult != nil {
					onResult(resp, err)
				}
			}
		}
	}()
}

// Stop tears the channel down: cancels any in-flight request, halts the
// auto-refresh loop and releases its timer. The channel cannot be reused.
func (fc *FetchChannel) Stop() {
	fc.cancel()
	fc.mu.Lock()
	if fc.inflightCancel != nil {
		fc.inflightCancel()
		fc.inflightCancel = nil
	}
	fc.mu.Unlock()
	fc.wg.Wait()
}
