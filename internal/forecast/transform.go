// Package forecast normalizes upstream locationforecast documents into the
// service's own forecast records: tomorrow-entry selection, symbol-code
// mapping and cache entry construction.
package forecast

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
	"github.com/kjstillabower/weather-forecast-service/internal/upstream"
)

var (
	// ErrNoForecastAvailable means the time series contained no entry for
	// tomorrow's date. Not a crash; callers degrade per city.
	ErrNoForecastAvailable = errors.New("no forecast available for tomorrow")

	// ErrMapping means the payload had an unexpected shape (e.g. a matching
	// entry without a temperature reading).
	ErrMapping = errors.New("mapping error")
)

// symbolConditions maps met.no symbol codes (suffix digits stripped) to the
// service's condition vocabulary. Unknown codes map to ConditionUnknown.
var symbolConditions = map[string]models.Condition{
	"clearsky_day":                   models.ConditionClearSky,
	"clearsky_night":                 models.ConditionClearSky,
	"clearsky_polartwilight":         models.ConditionClearSky,
	"fair_day":                       models.ConditionPartlyCloudy,
	"fair_night":                     models.ConditionPartlyCloudy,
	"fair_polartwilight":             models.ConditionPartlyCloudy,
	"partlycloudy_day":               models.ConditionPartlyCloudy,
	"partlycloudy_night":             models.ConditionPartlyCloudy,
	"partlycloudy_polartwilight":     models.ConditionPartlyCloudy,
	"cloudy":                         models.ConditionCloudy,
	"lightrain":                      models.ConditionLightRain,
	"lightrainshowers_day":           models.ConditionLightRain,
	"lightrainshowers_night":         models.ConditionLightRain,
	"lightrainshowers_polartwilight": models.ConditionLightRain,
	"rain":                           models.ConditionRain,
	"rainshowers_day":                models.ConditionRain,
	"rainshowers_night":              models.ConditionRain,
	"rainshowers_polartwilight":      models.ConditionRain,
	"heavyrain":                      models.ConditionHeavyRain,
	"heavyrainshowers_day":           models.ConditionHeavyRain,
	"heavyrainshowers_night":         models.ConditionHeavyRain,
	"heavyrainshowers_polartwilight": models.ConditionHeavyRain,
	"lightsnow":                      models.ConditionLightSnow,
	"lightsnowshowers_day":           models.ConditionLightSnow,
	"lightsnowshowers_night":         models.ConditionLightSnow,
	"lightsnowshowers_polartwilight": models.ConditionLightSnow,
	"snow":                           models.ConditionSnow,
	"snowshowers_day":                models.ConditionSnow,
	"snowshowers_night":              models.ConditionSnow,
	"snowshowers_polartwilight":      models.ConditionSnow,
	"heavysnow":                      models.ConditionHeavySnow,
	"heavysnowshowers_day":           models.ConditionHeavySnow,
	"heavysnowshowers_night":         models.ConditionHeavySnow,
	"heavysnowshowers_polartwilight": models.ConditionHeavySnow,
	"lightrainandthunder":            models.ConditionThunderstorm,
	"rainandthunder":                 models.ConditionThunderstorm,
	"heavyrainandthunder":            models.ConditionThunderstorm,
	"lightsnowandthunder":            models.ConditionThunderstorm,
	"snowandthunder":                 models.ConditionThunderstorm,
	"heavysnowandthunder":            models.ConditionThunderstorm,
	"fog":                            models.ConditionFog,
}

var conditionDescriptions = map[models.Condition]string{
	models.ConditionClearSky:     "Clear sky",
	models.ConditionPartlyCloudy: "Partly cloudy",
	models.ConditionCloudy:       "Cloudy",
	models.ConditionLightRain:    "Light rain",
	models.ConditionRain:         "Rain",
	models.ConditionHeavyRain:    "Heavy rain",
	models.ConditionLightSnow:    "Light snow",
	models.ConditionSnow:         "Snow",
	models.ConditionHeavySnow:    "Heavy snow",
	models.ConditionFog:          "Fog",
	models.ConditionThunderstorm: "Thunderstorm",
	models.ConditionUnknown:      "Unknown conditions",
}

// conditionIcons are the icon names the frontend renders.
var conditionIcons = map[models.Condition]string{
	models.ConditionClearSky:     "clear_day",
	models.ConditionPartlyCloudy: "partly_cloudy_day",
	models.ConditionCloudy:       "cloudy",
	models.ConditionLightRain:    "light_rain",
	models.ConditionRain:         "rain",
	models.ConditionHeavyRain:    "heavy_rain",
	models.ConditionLightSnow:    "light_snow",
	models.ConditionSnow:         "snow",
	models.ConditionHeavySnow:    "heavy_snow",
	models.ConditionFog:          "fog",
	models.ConditionThunderstorm: "thunderstorm",
	models.ConditionUnknown:      "unknown",
}

// MapSymbolCode maps a met.no symbol code to a condition. Variant suffixes
// like "rain_2" are stripped before lookup.
func MapSymbolCode(symbolCode string) models.Condition {
	base := symbolCode
	if idx := strings.LastIndex(symbolCode, "_"); idx > 0 {
		if suffix := symbolCode[idx+1:]; suffix != "" && isDigits(suffix) {
			base = symbolCode[:idx]
		}
	}
	if cond, ok := symbolConditions[base]; ok {
		return cond
	}
	return models.ConditionUnknown
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Description returns the human description for a condition.
func Description(cond models.Condition) string {
	if d, ok := conditionDescriptions[cond]; ok {
		return d
	}
	return conditionDescriptions[models.ConditionUnknown]
}

// Icon returns the frontend icon name for a condition.
func Icon(cond models.Condition) string {
	if i, ok := conditionIcons[cond]; ok {
		return i
	}
	return conditionIcons[models.ConditionUnknown]
}

// SelectTomorrow picks the time-series entry representing tomorrow. Entries
// between 10:00 and 14:59 UTC are preferred as the most representative;
// otherwise the first entry on tomorrow's date wins.
func SelectTomorrow(doc upstream.ForecastDocument, now time.Time) (upstream.TimeStep, bool) {
	tomorrow := now.UTC().AddDate(0, 0, 1).Format("2006-01-02")

	var first upstream.TimeStep
	found := false
	for _, step := range doc.Properties.Timeseries {
		t := step.Time.UTC()
		if t.Format("2006-01-02") != tomorrow {
			continue
		}
		if t.Hour() >= 10 && t.Hour() <= 14 {
			return step, true
		}
		if !found {
			first = step
			found = true
		}
	}
	return first, found
}

// BuildEntry converts an upstream document into a whole-record cache entry
// for the given city. lastUpdated comes from the provider's own document
// timestamp when present, otherwise now; expiresAt is now + ttl.
func BuildEntry(req models.ForecastRequest, doc upstream.ForecastDocument, now time.Time, ttl time.Duration) (models.CacheEntry, error) {
	step, ok := SelectTomorrow(doc, now)
	if !ok {
		return models.CacheEntry{}, fmt.Errorf("%w: city %s", ErrNoForecastAvailable, req.CityID)
	}

	details := step.Data.Instant.Details
	if details.AirTemperature == nil {
		return models.CacheEntry{}, fmt.Errorf("%w: missing air_temperature for city %s", ErrMapping, req.CityID)
	}

	symbolCode := step.Data.Next6Hours.Summary.SymbolCode
	if symbolCode == "" {
		symbolCode = "unknown"
	}
	cond := MapSymbolCode(symbolCode)

	var humidity *int
	if details.RelativeHumidity != nil {
		h := int(*details.RelativeHumidity)
		humidity = &h
	}

	lastUpdated, ok := doc.UpdatedAt()
	if !ok {
		lastUpdated = now
	}

	return models.CacheEntry{
		CityForecast: models.CityForecast{
			CityID:      req.CityID,
			CityName:    req.CityName,
			Country:     req.Country,
			Coordinates: req.Coordinates,
			Forecast: models.Forecast{
				Date:        now.UTC().AddDate(0, 0, 1).Format("2006-01-02"),
				Temperature: models.Temperature{Value: *details.AirTemperature, Unit: "celsius"},
				Condition:   cond,
				Description: Description(cond),
				Icon:        Icon(cond),
				Humidity:    humidity,
				WindSpeed:   details.WindSpeed,
			},
			LastUpdated: lastUpdated,
		},
		ExpiresAt: now.Add(ttl),
	}, nil
}
