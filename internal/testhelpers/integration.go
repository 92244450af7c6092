//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/kjstillabower/weather-forecast-service/internal/store"
)

// IntegrationStoreConfig holds cache backend settings for integration tests.
type IntegrationStoreConfig struct {
	Backend       string // "in_memory", "memcached" or "redis"
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationStoreConfig loads backend settings from the environment.
// Skips the test unless INTEGRATION_CACHE_BACKEND is set.
func GetIntegrationStoreConfig(t *testing.T) IntegrationStoreConfig {
	backend := os.Getenv("INTEGRATION_CACHE_BACKEND")
	if backend == "" {
		t.Skip("INTEGRATION_CACHE_BACKEND not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	return IntegrationStoreConfig{
		Backend:       backend,
		MemcachedAddr: memcachedAddr,
		RedisAddr:     redisAddr,
	}
}

// SetupIntegrationStore creates the configured store backend, skipping the
// test when the backend is unreachable. Returns the store and a cleanup
// function.
func SetupIntegrationStore(t *testing.T, cfg IntegrationStoreConfig) (store.Store, func()) {
	switch cfg.Backend {
	case "memcached":
		mc, err := store.NewMemcachedStore(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err != nil {
			t.Skipf("memcached store setup failed: %v", err)
		}
		if err := mc.Ping(); err != nil {
			t.Skipf("memcached not reachable at %s: %v", cfg.MemcachedAddr, err)
		}
		return mc, func() { _ = mc.Close() }
	case "redis":
		rc := store.NewRedisStore(cfg.RedisAddr, "", 0)
		if err := rc.Ping(); err != nil {
			t.Skipf("redis not reachable at %s: %v", cfg.RedisAddr, err)
		}
		return rc, func() { _ = rc.Close() }
	default:
		return store.NewInMemoryStore(), func() {}
	}
}
