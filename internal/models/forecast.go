package models

import "time"

// Condition is the service's own weather condition vocabulary. Upstream
// symbol codes are mapped onto these values; anything unrecognized becomes
// ConditionUnknown.
type Condition string

const (
	ConditionClearSky     Condition = "clearsky"
	ConditionPartlyCloudy Condition = "partlycloudy"
	ConditionCloudy       Condition = "cloudy"
	ConditionLightRain    Condition = "lightrain"
	ConditionRain         Condition = "rain"
	ConditionHeavyRain    Condition = "heavyrain"
	ConditionLightSnow    Condition = "lightsnow"
	ConditionSnow         Condition = "snow"
	ConditionHeavySnow    Condition = "heavysnow"
	ConditionFog          Condition = "fog"
	ConditionThunderstorm Condition = "thunderstorm"
	ConditionUnknown      Condition = "unknown"
)

// Coordinates identifies a point on the globe. Validated at configuration
// load time (lat in [-90,90], lon in [-180,180]); not re-validated per call.
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// ForecastRequest identifies one configured city. Immutable; built from
// config at startup.
type ForecastRequest struct {
	CityID      string
	CityName    string
	Country     string
	Coordinates Coordinates
}

type Temperature struct {
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Forecast is the normalized tomorrow's-forecast payload.
type Forecast struct {
	Date        string      `json:"date"` // YYYY-MM-DD
	Temperature Temperature `json:"temperature"`
	Condition   Condition   `json:"condition"`
	Description string      `json:"description"`
	Icon        string      `json:"icon"`
	Humidity    *int        `json:"humidity"`
	WindSpeed   *float64    `json:"windSpeed"`
}

// CityForecast is one per-city record in the aggregate response.
type CityForecast struct {
	CityID      string      `json:"cityId"`
	CityName    string      `json:"cityName"`
	Country     string      `json:"country"`
	Coordinates Coordinates `json:"coordinates"`
	Forecast    Forecast    `json:"forecast"`
	LastUpdated time.Time   `json:"lastUpdated"`
}

// CacheEntry is the whole-record value stored per city. Writes always
// replace the full entry; there are no partial updates.
type CacheEntry struct {
	CityForecast
	ExpiresAt time.Time `json:"expiresAt"`
}

// Valid reports whether the entry may be served at the given instant. An
// expired entry is treated as absent regardless of what the backing store's
// own TTL sweep has done.
func (e CacheEntry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// AggregateResponse is the envelope returned by GET /forecast. Success=false
// implies Cities is empty and the response carries a do-not-cache directive.
type AggregateResponse struct {
	Success     bool           `json:"success"`
	Cities      []CityForecast `json:"cities"`
	LastUpdated *time.Time     `json:"lastUpdated"`
	Error       string         `json:"error,omitempty"`
	RequestID   string         `json:"requestId,omitempty"`
	Service     string         `json:"service,omitempty"`
	Version     string         `json:"version,omitempty"`
}
