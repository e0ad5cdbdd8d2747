package redis

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/harborwallet/walletkit-backend/pkg/kv"
)

// Store is a Redis-backed implementation of the kv.Store interface
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed store. Accepts either a full redis:// URL or
// a bare host:port address.
func New(redisURL string) (*Store, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		// Fallback for simple address format
		u, parseErr := url.Parse("redis://" + redisURL)
		if parseErr != nil {
			return nil, err // Return original error
		}

		db := 0
		if u.Path != "" && u.Path != "/" {
			if dbNum, dbErr := strconv.Atoi(u.Path[1:]); dbErr == nil {
				db = dbNum
			}
		}

		opt = &redis.Options{
			Addr: u.Host,
			DB:   db,
		}
		if pw, ok := u.User.Password(); ok {
			opt.Password = pw
		}
	}

	return &Store{client: redis.NewClient(opt)}, nil
}

// NewWithClient wraps an existing client, mainly for tests.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl ...time.Duration) error {
	var expiration time.Duration
	if len(ttl) > 0 {
		expiration = ttl[0]
	}
	return s.client.Set(ctx, key, value, expiration).Err()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	return s.client.Del(ctx, keys...).Result()
}

func (s *Store) Exists(ctx context.Context, keys ...string) (int64, error) {
	return s.client.Exists(ctx, keys...).Result()
}

func (s *Store) SAdd(ctx context.Context, key string, members ...[]byte) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, key, args...).Result()
}

func (s *Store) SRem(ctx context.Context, key string, members ...[]byte) (int64, error) {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SRem(ctx, key, args...).Result()
}

func (s *Store) SMembers(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	members := make([][]byte, len(vals))
	for i, v := range vals {
		members[i] = []byte(v)
	}
	return members, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
