package memory

import (
	"time"

	"github.com/harborwallet/walletkit-backend/pkg/kv"
)

func init() {
	kv.RegisterBackend(kv.BackendMemory, func(cfg kv.Config) (kv.Store, error) {
		return New(30 * time.Second), nil
	})
}

// NewStore creates a new in-memory store with the default janitor interval
func NewStore() kv.Store {
	return New(30 * time.Second)
}
