package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
)

// MaxCities bounds the configured city list. The aggregate handler calls
// upstream sequentially with a fixed inter-call delay, so the list must stay
// small.
const MaxCities = 10

// City is one configured forecast target.
type City struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Country     string             `yaml:"country"`
	Coordinates models.Coordinates `yaml:"coordinates"`
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	AppName       string
	Version       string
	ContactDomain string

	ServerPort string

	UpstreamURL     string
	UpstreamTimeout time.Duration
	InterCallDelay  time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory", "memcached" or "redis"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimitRPS   int
	RateLimitBurst int

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	WarmCache    bool
	WarmInterval time.Duration

	Cities []City
}

type fileConfig struct {
	App struct {
		Name          string `yaml:"name"`
		Version       string `yaml:"version"`
		ContactDomain string `yaml:"contact_domain"`
	} `yaml:"app"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Upstream struct {
		URL            string `yaml:"url"`
		Timeout        string `yaml:"timeout"`
		InterCallDelay string `yaml:"inter_call_delay"`
	} `yaml:"upstream"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Warming struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"warming"`

	Cities []City `yaml:"cities"`
}

// defaultCities mirrors the shipped four-city configuration. Used when
// neither the config file nor CITIES_CONFIG provides a list.
func defaultCities() []City {
	return []City{
		{ID: "oslo", Name: "Oslo", Country: "Norway", Coordinates: models.Coordinates{Latitude: 59.9139, Longitude: 10.7522}},
		{ID: "paris", Name: "Paris", Country: "France", Coordinates: models.Coordinates{Latitude: 48.8566, Longitude: 2.3522}},
		{ID: "london", Name: "London", Country: "United Kingdom", Coordinates: models.Coordinates{Latitude: 51.5074, Longitude: -0.1278}},
		{ID: "barcelona", Name: "Barcelona", Country: "Spain", Coordinates: models.Coordinates{Latitude: 41.3851, Longitude: 2.1734}},
	}
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) when the
// file exists, then applies env overrides and defaults. A missing config file
// is not an error; the defaults describe a fully working service.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.AppName = fc.App.Name
	if cfg.AppName == "" {
		cfg.AppName = "weather-forecast-app"
	}
	cfg.Version = fc.App.Version
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	cfg.ContactDomain = strings.TrimSpace(os.Getenv("COMPANY_WEBSITE"))
	if cfg.ContactDomain == "" {
		cfg.ContactDomain = strings.TrimSpace(fc.App.ContactDomain)
	}
	if cfg.ContactDomain == "" {
		cfg.ContactDomain = "example.com"
	}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.UpstreamURL = strings.TrimSpace(os.Getenv("UPSTREAM_URL"))
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = fc.Upstream.URL
	}
	if cfg.UpstreamURL == "" {
		cfg.UpstreamURL = "https://api.met.no/weatherapi/locationforecast/2.0/compact"
	}
	cfg.UpstreamTimeout = parseDuration(fc.Upstream.Timeout, 10*time.Second)
	cfg.InterCallDelay = parseDurationOrZero(fc.Upstream.InterCallDelay, time.Second)
	if cfg.InterCallDelay < 0 {
		cfg.InterCallDelay = time.Second
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 30*time.Second)

	cfg.CacheTTL = parseDuration(fc.Cache.TTL, time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = strings.TrimSpace(fc.Cache.Redis.Addr)
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisPassword == "" {
		cfg.RedisPassword = fc.Cache.Redis.Password
	}
	cfg.RedisDB = fc.Cache.Redis.DB

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 100
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 250
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.WarmCache = false
	if fc.Warming.Enabled != nil {
		cfg.WarmCache = *fc.Warming.Enabled
	}
	cfg.WarmInterval = parseDurationOrZero(fc.Warming.Interval, 0)

	cities, err := loadCities(fc.Cities)
	if err != nil {
		return nil, err
	}
	cfg.Cities = cities

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCities resolves the city list: CITIES_CONFIG env JSON wins, then the
// YAML list, then the built-in defaults.
func loadCities(fromFile []City) ([]City, error) {
	if raw := strings.TrimSpace(os.Getenv("CITIES_CONFIG")); raw != "" {
		var envCities []struct {
			ID          string             `json:"id"`
			Name        string             `json:"name"`
			Country     string             `json:"country"`
			Coordinates models.Coordinates `json:"coordinates"`
		}
		if err := json.Unmarshal([]byte(raw), &envCities); err != nil {
			return nil, fmt.Errorf("parse CITIES_CONFIG: %w", err)
		}
		cities := make([]City, 0, len(envCities))
		for _, c := range envCities {
			cities = append(cities, City{ID: c.ID, Name: c.Name, Country: c.Country, Coordinates: c.Coordinates})
		}
		return cities, nil
	}
	if len(fromFile) > 0 {
		return fromFile, nil
	}
	return defaultCities(), nil
}

// Requests converts the configured cities into immutable forecast requests,
// preserving configuration order.
func (c *Config) Requests() []models.ForecastRequest {
	reqs := make([]models.ForecastRequest, 0, len(c.Cities))
	for _, city := range c.Cities {
		reqs = append(reqs, models.ForecastRequest{
			CityID:      city.ID,
			CityName:    city.Name,
			Country:     city.Country,
			Coordinates: city.Coordinates,
		})
	}
	return reqs
}

// UserAgent builds the identifying header required by the upstream provider's
// usage policy.
func (c *Config) UserAgent() string {
	return fmt.Sprintf("%s/%s (+https://%s)", c.AppName, c.Version, c.ContactDomain)
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation: backend value, city list shape and
// coordinate ranges. Coordinates are range-checked once here; the service
// layer does not re-validate per request.
func validate(cfg *Config) error {
	switch cfg.CacheBackend {
	case "in_memory", "memcached", "redis":
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if len(cfg.Cities) == 0 {
		return fmt.Errorf("at least one city must be configured")
	}
	if len(cfg.Cities) > MaxCities {
		return fmt.Errorf("at most %d cities may be configured, got %d", MaxCities, len(cfg.Cities))
	}
	seen := make(map[string]struct{}, len(cfg.Cities))
	for _, city := range cfg.Cities {
		if strings.TrimSpace(city.ID) == "" {
			return fmt.Errorf("city id cannot be empty")
		}
		if strings.TrimSpace(city.Name) == "" {
			return fmt.Errorf("city %q: name cannot be empty", city.ID)
		}
		if strings.TrimSpace(city.Country) == "" {
			return fmt.Errorf("city %q: country cannot be empty", city.ID)
		}
		if _, dup := seen[city.ID]; dup {
			return fmt.Errorf("duplicate city id %q", city.ID)
		}
		seen[city.ID] = struct{}{}
		lat, lon := city.Coordinates.Latitude, city.Coordinates.Longitude
		if lat < -90 || lat > 90 {
			return fmt.Errorf("city %q: latitude must be between -90 and 90, got %v", city.ID, lat)
		}
		if lon < -180 || lon > 180 {
			return fmt.Errorf("city %q: longitude must be between -180 and 180, got %v", city.ID, lon)
		}
	}
	return nil
}
