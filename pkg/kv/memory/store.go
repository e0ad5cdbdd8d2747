package memory

import (
	"context"
	"sync"
	"time"

	"github.com/harborwallet/walletkit-backend/pkg/kv"
)

// Store is an in-memory implementation of the kv.Store interface
type Store struct {
	mu          sync.RWMutex
	strings     map[string][]byte
	sets        map[string]map[string]struct{}
	expirations map[string]time.Time

	janitorInterval time.Duration
	janitorStop     chan struct{}
	janitorDone     chan struct{}
	closeOnce       sync.Once
}

// New creates a new in-memory store with an optional janitor for TTL cleanup.
// A janitorInterval of 0 disables background cleanup; expired keys are still
// hidden from reads lazily.
func New(janitorInterval time.Duration) *Store {
	s := &Store{
		strings:         make(map[string][]byte),
		sets:            make(map[string]map[string]struct{}),
		expirations:     make(map[string]time.Time),
		janitorInterval: janitorInterval,
		janitorStop:     make(chan struct{}),
		janitorDone:     make(chan struct{}),
	}

	if janitorInterval > 0 {
		go s.janitor()
	} else {
		close(s.janitorDone)
	}

	return s
}

func (s *Store) janitor() {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.janitorStop:
			return
		}
	}
}

func (s *Store) evictExpired() {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, exp := range s.expirations {
		if now.After(exp) {
			s.deleteKeyLocked(key)
		}
	}
}

// isExpiredLocked reports whether key has an elapsed TTL (must hold lock)
func (s *Store) isExpiredLocked(key string) bool {
	exp, ok := s.expirations[key]
	return ok && time.Now().After(exp)
}

func (s *Store) deleteKeyLocked(key string) {
	delete(s.strings, key)
	delete(s.sets, key)
	delete(s.expirations, key)
}

// keyExistsLocked reports whether a live value exists under key (must hold lock)
func (s *Store) keyExistsLocked(key string) bool {
	if s.isExpiredLocked(key) {
		s.deleteKeyLocked(key)
		return false
	}
	if _, ok := s.strings[key]; ok {
		return true
	}
	if _, ok := s.sets[key]; ok {
		return true
	}
	return false
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(value))
	copy(cp, value)
	s.strings[key] = cp
	delete(s.expirations, key)
	if len(ttl) > 0 && ttl[0] > 0 {
		s.expirations[key] = time.Now().Add(ttl[0])
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isExpiredLocked(key) {
		s.deleteKeyLocked(key)
		return nil, kv.ErrNotFound
	}
	val, ok := s.strings[key]
	if !ok {
		return nil, kv.ErrNotFound
	}
	cp := make([]byte, len(val))
	copy(cp, val)
	return cp, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, key := range keys {
		if s.keyExistsLocked(key) {
			s.deleteKeyLocked(key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for _, key := range keys {
		if s.keyExistsLocked(key) {
			count++
		}
	}
	return count, nil
}

func (s *Store) SAdd(ctx context.Context, key string, members ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isExpiredLocked(key) {
		s.deleteKeyLocked(key)
	}
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}

	var added int64
	for _, m := range members {
		if _, exists := set[string(m)]; !exists {
			set[string(m)] = struct{}{}
			added++
		}
	}
	return added, nil
}

func (s *Store) SRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.sets[key]
	if !ok || s.isExpiredLocked(key) {
		return 0, nil
	}

	var removed int64
	for _, m := range members {
		if _, exists := set[string(m)]; exists {
			delete(set, string(m))
			removed++
		}
	}
	if len(set) == 0 {
		delete(s.sets, key)
	}
	return removed, nil
}

func (s *Store) SMembers(ctx context.Context, key string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[key]
	if !ok {
		return [][]byte{}, nil
	}
	members := make([][]byte, 0, len(set))
	for m := range set {
		members = append(members, []byte(m))
	}
	return members, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.janitorStop)
	})
	if s.janitorInterval > 0 {
		<-s.janitorDone
	}
	return nil
}
