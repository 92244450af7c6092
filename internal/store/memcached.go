package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
)

const keyPrefix = "forecast:"

// MemcachedStore implements Store using memcached. The item expiration is
// derived from the entry's own expiresAt, so store-level eviction and the
// caller's validity check agree.
type MemcachedStore struct {
	client *memcache.Client
}

// NewMemcachedStore creates a MemcachedStore. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and
// maxIdleConns configure the client; both use package defaults if zero.
func NewMemcachedStore(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedStore, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedStore{client: client}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (s *MemcachedStore) key(cityID string) string {
	return keyPrefix + cityID
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on
// backend error. Expiry is re-checked against the entry's expiresAt.
func (s *MemcachedStore) Get(ctx context.Context, cityID string) (models.CacheEntry, bool, error) {
	if ctx.Err() != nil {
		return models.CacheEntry{}, false, ctx.Err()
	}
	item, err := s.client.Get(s.key(cityID))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return models.CacheEntry{}, false, err
	}
	if !entry.Valid(time.Now()) {
		return models.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.Put.
func (s *MemcachedStore) Put(ctx context.Context, cityID string, entry models.CacheEntry) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	expSec := int32(time.Until(entry.ExpiresAt).Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 3600 // fallback 1h if invalid
	}
	return s.client.Set(&memcache.Item{
		Key:        s.key(cityID),
		Value:      raw,
		Expiration: expSec,
	})
}

// Ping checks if memcached is reachable. Used for health checks.
func (s *MemcachedStore) Ping() error {
	return s.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (s *MemcachedStore) Close() error {
	return s.client.Close()
}
