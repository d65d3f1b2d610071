package domain

import (
	"context"
	"time"
)

// Cache defines the caching interface used to keep account histories hot.
// Keys are namespaced by tenant; implementations must not leak entries
// across tenants.
type Cache interface {
	// Get retrieves a raw value. The second return is false on a miss.
	Get(ctx context.Context, tenantID, key string) ([]byte, bool, error)

	// Set stores a raw value with a TTL. A zero TTL uses the default.
	Set(ctx context.Context, tenantID, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, tenantID, key string) error

	// GetHistory retrieves a cached account history. The second return is
	// false on a miss or when the cached entry cannot be decoded.
	GetHistory(ctx context.Context, tenantID, accountID, bankID string) (*AccountHistory, bool, error)

	// SetHistory caches an account history.
	SetHistory(ctx context.Context, tenantID string, history *AccountHistory, ttl time.Duration) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// CacheConfig holds cache settings.
type CacheConfig struct {
	// Type is "memory" or "redis".
	Type string `json:"type"`

	RedisAddr     string `json:"redisAddr,omitempty"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redisDb,omitempty"`

	// EnableTwoPhase layers the local LRU in front of Redis.
	EnableTwoPhase bool `json:"enableTwoPhase,omitempty"`

	LocalMaxSize int           `json:"localMaxSize"`
	LocalTTL     time.Duration `json:"localTtl"`
}
