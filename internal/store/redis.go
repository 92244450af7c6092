package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
)

// RedisStore implements Store using redis. Entries are stored as JSON with a
// key TTL matching the entry's expiresAt.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore for the given address.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get implements Store.Get. Returns false, nil on cache miss; false, err on
// backend error. Expiry is re-checked against the entry's expiresAt.
func (s *RedisStore) Get(ctx context.Context, cityID string) (models.CacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, keyPrefix+cityID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, err
	}
	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return models.CacheEntry{}, false, err
	}
	if !entry.Valid(time.Now()) {
		return models.CacheEntry{}, false, nil
	}
	return entry, true, nil
}

// Put implements Store.Put.
func (s *RedisStore) Put(ctx context.Context, cityID string, entry models.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return s.client.Set(ctx, keyPrefix+cityID, raw, ttl).Err()
}

// Ping checks if redis is reachable. Used for health checks.
func (s *RedisStore) Ping() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client connections. Call during shutdown.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
