package config

import (
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
)

func TestLoadDefaults(t *testing.T) {
	// No config file in the test working directory and no env overrides.
	t.Setenv("ENV_NAME", "nonexistent-env")
	t.Setenv("CITIES_CONFIG", "")
	t.Setenv("CACHE_BACKEND", "")
	t.Setenv("UPSTREAM_URL", "")
	t.Setenv("COMPANY_WEBSITE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", cfg.CacheTTL)
	}
	if cfg.CacheBackend != "in_memory" {
		t.Errorf("CacheBackend = %q, want in_memory", cfg.CacheBackend)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if !strings.Contains(cfg.UpstreamURL, "api.met.no") {
		t.Errorf("UpstreamURL = %q, want met.no default", cfg.UpstreamURL)
	}
	if len(cfg.Cities) != 4 {
		t.Fatalf("len(Cities) = %d, want 4 defaults", len(cfg.Cities))
	}
	wantIDs := []string{"oslo", "paris", "london", "barcelona"}
	for i, want := range wantIDs {
		if cfg.Cities[i].ID != want {
			t.Errorf("Cities[%d].ID = %q, want %q", i, cfg.Cities[i].ID, want)
		}
	}
}

func TestLoadCitiesFromEnv(t *testing.T) {
	t.Setenv("ENV_NAME", "nonexistent-env")
	t.Setenv("CITIES_CONFIG", `[{"id":"tromso","name":"Tromsø","country":"Norway","coordinates":{"latitude":69.6492,"longitude":18.9553}}]`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Cities) != 1 || cfg.Cities[0].ID != "tromso" {
		t.Fatalf("Cities = %+v, want single tromso entry", cfg.Cities)
	}
	if cfg.Cities[0].Coordinates.Latitude != 69.6492 {
		t.Errorf("Latitude = %v, want 69.6492", cfg.Cities[0].Coordinates.Latitude)
	}
}

func TestLoadInvalidCitiesConfig(t *testing.T) {
	t.Setenv("ENV_NAME", "nonexistent-env")
	t.Setenv("CITIES_CONFIG", "{broken")

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want parse failure")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ENV_NAME", "nonexistent-env")
	t.Setenv("CITIES_CONFIG", "")
	t.Setenv("CACHE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("UPSTREAM_URL", "https://upstream.test/forecast")
	t.Setenv("COMPANY_WEBSITE", "weather.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheBackend != "redis" {
		t.Errorf("CacheBackend = %q, want redis", cfg.CacheBackend)
	}
	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("RedisAddr = %q, want redis.internal:6380", cfg.RedisAddr)
	}
	if cfg.UpstreamURL != "https://upstream.test/forecast" {
		t.Errorf("UpstreamURL = %q, want override", cfg.UpstreamURL)
	}
	if cfg.ContactDomain != "weather.example.org" {
		t.Errorf("ContactDomain = %q, want weather.example.org", cfg.ContactDomain)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	t.Setenv("ENV_NAME", "nonexistent-env")
	t.Setenv("CACHE_BACKEND", "dynamo")

	if _, err := Load(); err == nil {
		t.Error("Load() error = nil, want invalid backend failure")
	}
}

func TestUserAgent(t *testing.T) {
	cfg := &Config{AppName: "weather-forecast-service", Version: "1.2.3", ContactDomain: "example.com"}
	want := "weather-forecast-service/1.2.3 (+https://example.com)"
	if got := cfg.UserAgent(); got != want {
		t.Errorf("UserAgent() = %q, want %q", got, want)
	}
}

func TestRequestsPreservesOrder(t *testing.T) {
	cfg := &Config{Cities: defaultCities()}
	reqs := cfg.Requests()
	if len(reqs) != 4 {
		t.Fatalf("len(Requests()) = %d, want 4", len(reqs))
	}
	if reqs[0].CityID != "oslo" || reqs[3].CityID != "barcelona" {
		t.Errorf("order = %q..%q, want oslo..barcelona", reqs[0].CityID, reqs[3].CityID)
	}
	if reqs[0].Coordinates.Latitude != 59.9139 {
		t.Errorf("oslo latitude = %v, want 59.9139", reqs[0].Coordinates.Latitude)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{CacheBackend: "in_memory", Cities: defaultCities()}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid defaults", func(c *Config) {}, false},
		{"no cities", func(c *Config) { c.Cities = nil }, true},
		{"too many cities", func(c *Config) {
			for i := 0; i < MaxCities; i++ {
				c.Cities = append(c.Cities, City{ID: string(rune('a' + i)), Name: "X", Country: "Y"})
			}
		}, true},
		{"duplicate id", func(c *Config) { c.Cities = append(c.Cities, c.Cities[0]) }, true},
		{"empty id", func(c *Config) { c.Cities[0].ID = " " }, true},
		{"empty name", func(c *Config) { c.Cities[0].Name = "" }, true},
		{"empty country", func(c *Config) { c.Cities[0].Country = "" }, true},
		{"latitude out of range", func(c *Config) { c.Cities[0].Coordinates.Latitude = 91 }, true},
		{"longitude out of range", func(c *Config) { c.Cities[0].Coordinates.Longitude = -181 }, true},
		{"boundary coordinates ok", func(c *Config) {
			c.Cities[0].Coordinates = models.Coordinates{Latitude: -90, Longitude: 180}
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validate(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
