package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-forecast-service/internal/lifecycle"
	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/service"
	"github.com/kjstillabower/weather-forecast-service/internal/store"
	"github.com/kjstillabower/weather-forecast-service/internal/upstream"
)

// stubProvider serves one fixed document or error for every coordinate.
type stubProvider struct {
	doc upstream.ForecastDocument
	err error
}

func (p *stubProvider) GetLocationForecast(ctx context.Context, coords models.Coordinates) (upstream.ForecastDocument, error) {
	return p.doc, p.err
}

func stubDoc() upstream.ForecastDocument {
	var doc upstream.ForecastDocument
	temp := -2.0
	var step upstream.TimeStep
	step.Time = time.Now().UTC().AddDate(0, 0, 1).Truncate(24 * time.Hour).Add(12 * time.Hour)
	step.Data.Instant.Details.AirTemperature = &temp
	step.Data.Next6Hours.Summary.SymbolCode = "partlycloudy_day"
	doc.Properties.Timeseries = []upstream.TimeStep{step}
	return doc
}

var handlerTestRequests = []models.ForecastRequest{
	{CityID: "oslo", CityName: "Oslo", Country: "Norway", Coordinates: models.Coordinates{Latitude: 59.9139, Longitude: 10.7522}},
}

func newTestHandler(provider upstream.Provider, storePing func() error) *Handler {
	svc := service.NewForecastService(provider, store.NewInMemoryStore(), time.Hour, 0, handlerTestRequests)
	return NewHandler(svc, "weather-forecast-service", "1.0.0", zap.NewNop(), storePing)
}

func TestGetForecastSuccess(t *testing.T) {
	h := newTestHandler(&stubProvider{doc: stubDoc()}, nil)

	req := httptest.NewRequest(http.MethodGet, "/forecast", nil)
	req = req.WithContext(context.WithValue(req.Context(), "correlation_id", "test-corr-id"))
	rec := httptest.NewRecorder()
	h.GetForecast(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "public, max-age=60" {
		t.Errorf("Cache-Control = %q, want public, max-age=60", got)
	}

	var resp models.AggregateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success {
		t.Errorf("Success = false, want true: %s", resp.Error)
	}
	if len(resp.Cities) != 1 || resp.Cities[0].CityID != "oslo" {
		t.Errorf("Cities = %+v, want single oslo entry", resp.Cities)
	}
	if resp.RequestID != "test-corr-id" {
		t.Errorf("RequestID = %q, want correlation id", resp.RequestID)
	}
	if resp.Service != "weather-forecast-service" || resp.Version != "1.0.0" {
		t.Errorf("envelope = %s/%s, want service name and version", resp.Service, resp.Version)
	}
}

func TestGetForecastAllCitiesFailed(t *testing.T) {
	h := newTestHandler(&stubProvider{err: upstream.ErrUpstreamUnavailable}, nil)

	req := httptest.NewRequest(http.MethodGet, "/forecast", nil)
	rec := httptest.NewRecorder()
	h.GetForecast(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "max-age=0" {
		t.Errorf("Cache-Control = %q, want max-age=0", got)
	}

	var resp models.AggregateResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success {
		t.Error("Success = true, want false")
	}
	if len(resp.Cities) != 0 {
		t.Errorf("len(Cities) = %d, want 0", len(resp.Cities))
	}
	if resp.Error == "" {
		t.Error("Error empty, want message")
	}
}

func TestGetHealth(t *testing.T) {
	h := newTestHandler(&stubProvider{doc: stubDoc()}, func() error { return nil })

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Checks["cache"] != "healthy" {
		t.Errorf("cache check = %q, want healthy", resp.Checks["cache"])
	}
}

func TestGetHealthShuttingDown(t *testing.T) {
	lifecycle.SetShuttingDown(true)
	defer lifecycle.SetShuttingDown(false)

	h := newTestHandler(&stubProvider{doc: stubDoc()}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.GetHealth(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503 while shutting down", rec.Code)
	}
}
