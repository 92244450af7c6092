package forecast

import (
	"errors"
	"testing"
	"time"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/upstream"
)

func TestMapSymbolCode(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		want   models.Condition
	}{
		{"clear sky day", "clearsky_day", models.ConditionClearSky},
		{"fair maps to partly cloudy", "fair_night", models.ConditionPartlyCloudy},
		{"partly cloudy", "partlycloudy_day", models.ConditionPartlyCloudy},
		{"cloudy", "cloudy", models.ConditionCloudy},
		{"light rain showers", "lightrainshowers_day", models.ConditionLightRain},
		{"heavy rain", "heavyrain", models.ConditionHeavyRain},
		{"thunder variants", "snowandthunder", models.ConditionThunderstorm},
		{"fog", "fog", models.ConditionFog},
		{"variant suffix stripped", "rain_2", models.ConditionRain},
		{"variant suffix on showers", "rainshowers_day_1", models.ConditionRain},
		{"unknown symbol", "volcanic_ash", models.ConditionUnknown},
		{"empty symbol", "", models.ConditionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapSymbolCode(tt.symbol); got != tt.want {
				t.Errorf("MapSymbolCode(%q) = %q, want %q", tt.symbol, got, tt.want)
			}
		})
	}
}

func makeStep(ts time.Time, temp, humidity, wind *float64, symbol string) upstream.TimeStep {
	var step upstream.TimeStep
	step.Time = ts
	step.Data.Instant.Details.AirTemperature = temp
	step.Data.Instant.Details.RelativeHumidity = humidity
	step.Data.Instant.Details.WindSpeed = wind
	step.Data.Next6Hours.Summary.SymbolCode = symbol
	return step
}

func f(v float64) *float64 { return &v }

func TestSelectTomorrow(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	tomorrow := func(hour int) time.Time {
		return time.Date(2026, 3, 11, hour, 0, 0, 0, time.UTC)
	}

	t.Run("prefers midday entry", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(tomorrow(6), f(1), nil, nil, "cloudy"),
			makeStep(tomorrow(12), f(5), nil, nil, "clearsky_day"),
			makeStep(tomorrow(18), f(3), nil, nil, "rain"),
		}
		step, ok := SelectTomorrow(doc, now)
		if !ok {
			t.Fatal("SelectTomorrow() found no entry")
		}
		if step.Time.Hour() != 12 {
			t.Errorf("selected hour = %d, want 12", step.Time.Hour())
		}
	})

	t.Run("falls back to first entry of the day", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(tomorrow(3), f(1), nil, nil, "cloudy"),
			makeStep(tomorrow(21), f(2), nil, nil, "rain"),
		}
		step, ok := SelectTomorrow(doc, now)
		if !ok {
			t.Fatal("SelectTomorrow() found no entry")
		}
		if step.Time.Hour() != 3 {
			t.Errorf("selected hour = %d, want 3", step.Time.Hour())
		}
	})

	t.Run("ignores today and the day after", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(now, f(1), nil, nil, "cloudy"),
			makeStep(time.Date(2026, 3, 12, 12, 0, 0, 0, time.UTC), f(2), nil, nil, "rain"),
		}
		if _, ok := SelectTomorrow(doc, now); ok {
			t.Error("SelectTomorrow() found an entry, want none")
		}
	})
}

func TestBuildEntry(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	req := models.ForecastRequest{
		CityID:      "oslo",
		CityName:    "Oslo",
		Country:     "Norway",
		Coordinates: models.Coordinates{Latitude: 59.9139, Longitude: 10.7522},
	}
	ttl := time.Hour

	t.Run("maps a complete entry", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Meta.UpdatedAt = "2026-03-10T08:00:00Z"
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), f(-2), f(81.4), f(3.6), "partlycloudy_day"),
		}

		entry, err := BuildEntry(req, doc, now, ttl)
		if err != nil {
			t.Fatalf("BuildEntry() error = %v", err)
		}
		if entry.Forecast.Date != "2026-03-11" {
			t.Errorf("Date = %q, want 2026-03-11", entry.Forecast.Date)
		}
		if entry.Forecast.Temperature.Value != -2 || entry.Forecast.Temperature.Unit != "celsius" {
			t.Errorf("Temperature = %+v, want -2 celsius", entry.Forecast.Temperature)
		}
		if entry.Forecast.Condition != models.ConditionPartlyCloudy {
			t.Errorf("Condition = %q, want partlycloudy", entry.Forecast.Condition)
		}
		if entry.Forecast.Description != "Partly cloudy" {
			t.Errorf("Description = %q, want Partly cloudy", entry.Forecast.Description)
		}
		if entry.Forecast.Humidity == nil || *entry.Forecast.Humidity != 81 {
			t.Errorf("Humidity = %v, want 81", entry.Forecast.Humidity)
		}
		if entry.Forecast.WindSpeed == nil || *entry.Forecast.WindSpeed != 3.6 {
			t.Errorf("WindSpeed = %v, want 3.6", entry.Forecast.WindSpeed)
		}
		wantUpdated := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
		if !entry.LastUpdated.Equal(wantUpdated) {
			t.Errorf("LastUpdated = %v, want %v", entry.LastUpdated, wantUpdated)
		}
		if !entry.ExpiresAt.Equal(now.Add(ttl)) {
			t.Errorf("ExpiresAt = %v, want %v", entry.ExpiresAt, now.Add(ttl))
		}
	})

	t.Run("no tomorrow entry", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(now, f(1), nil, nil, "cloudy"),
		}
		_, err := BuildEntry(req, doc, now, ttl)
		if !errors.Is(err, ErrNoForecastAvailable) {
			t.Errorf("BuildEntry() error = %v, want ErrNoForecastAvailable", err)
		}
	})

	t.Run("missing temperature is a mapping error", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), nil, nil, nil, "cloudy"),
		}
		_, err := BuildEntry(req, doc, now, ttl)
		if !errors.Is(err, ErrMapping) {
			t.Errorf("BuildEntry() error = %v, want ErrMapping", err)
		}
	})

	t.Run("missing symbol yields unknown condition", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), f(4), nil, nil, ""),
		}
		entry, err := BuildEntry(req, doc, now, ttl)
		if err != nil {
			t.Fatalf("BuildEntry() error = %v", err)
		}
		if entry.Forecast.Condition != models.ConditionUnknown {
			t.Errorf("Condition = %q, want unknown", entry.Forecast.Condition)
		}
	})

	t.Run("unparseable updated_at falls back to now", func(t *testing.T) {
		var doc upstream.ForecastDocument
		doc.Properties.Meta.UpdatedAt = "not-a-timestamp"
		doc.Properties.Timeseries = []upstream.TimeStep{
			makeStep(time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC), f(4), nil, nil, "cloudy"),
		}
		entry, err := BuildEntry(req, doc, now, ttl)
		if err != nil {
			t.Fatalf("BuildEntry() error = %v", err)
		}
		if !entry.LastUpdated.Equal(now) {
			t.Errorf("LastUpdated = %v, want %v", entry.LastUpdated, now)
		}
	})
}
