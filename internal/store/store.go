package store

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-forecast-service/internal/models"
)

// Store is the key-value interface for forecast cache entries, keyed by city
// ID. Backends may evict on their own TTL sweep, but callers must still check
// entry.Valid (a backend sweep is not guaranteed to be instantaneous).
type Store interface {
	Get(ctx context.Context, cityID string) (models.CacheEntry, bool, error)
	Put(ctx context.Context, cityID string, entry models.CacheEntry) error
}

// InMemoryStore implements Store with a map guarded by a mutex. Expired
// entries are removed on access.
type InMemoryStore struct {
	mu   sync.Mutex
	data map[string]models.CacheEntry
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		data: make(map[string]models.CacheEntry),
	}
}

// Get returns the entry for cityID if present and not expired. Returns
// (entry, true, nil) on hit, (zero, false, nil) on miss or expiry.
func (s *InMemoryStore) Get(ctx context.Context, cityID string) (models.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.data[cityID]
	if !ok {
		return models.CacheEntry{}, false, nil
	}

	if !entry.Valid(time.Now()) {
		delete(s.data, cityID)
		return models.CacheEntry{}, false, nil
	}

	return entry, true, nil
}

// Put stores a whole-record replacement for cityID.
func (s *InMemoryStore) Put(ctx context.Context, cityID string, entry models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[cityID] = entry
	return nil
}
