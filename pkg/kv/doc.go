// Package kv provides a Redis-like key-value store abstraction with in-memory
// and Redis-backed implementations.
//
// The interface is deliberately narrow: strings with optional TTL plus sets,
// which is everything the WalletConnect session store needs. The in-memory
// implementation gives tests and development a zero-dependency backend; the
// Redis adapter wraps go-redis/v9 for production use behind the same interface.
//
// Example usage:
//
//	store, err := kv.NewStoreFromConfig(kv.Config{Backend: kv.BackendMemory})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.Set(ctx, "key", []byte("value"), 10*time.Second)
//	value, err := store.Get(ctx, "key")
//	if errors.Is(err, kv.ErrNotFound) {
//		// key missing or expired
//	}
package kv
