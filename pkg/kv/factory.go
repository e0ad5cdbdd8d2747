package kv

import "fmt"

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

// Config holds configuration for creating a Store instance
type Config struct {
	// Backend specifies which storage backend to use
	Backend Backend

	// RedisURL is the connection string for Redis (required when Backend is "redis")
	// Format: redis://localhost:6379/0 or a bare host:port address
	RedisURL string
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

// factories holds registered store factories
var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend.
// Backends register themselves from their package init via a blank import.
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig creates a new Store instance based on the provided configuration
func NewStoreFromConfig(cfg Config) (Store, error) {
	factory, exists := factories[cfg.Backend]
	if !exists {
		return nil, fmt.Errorf("unsupported backend: %q (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
	if cfg.Backend == BackendRedis && cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is %q", BackendRedis)
	}
	return factory(cfg)
}
