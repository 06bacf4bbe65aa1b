// Package redisstate implements out.StateStore over Redis, grounded on
// adapter/out/persistence/worker_oauth_state.go's GETDEL-based, single-
// use state pattern, generalized from its userID-typed OAuth CSRF guard
// into the plain string key/value store the port needs for both the
// OAuth CSRF state and the JWT revocation blacklist.
package redisstate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mailmirror/core/port/out"
)

type Store struct {
	client *redis.Client
	prefix string
}

func New(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

var _ out.StateStore = (*Store)(nil)

func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}

// GetAndDelete uses GETDEL so a state value is consumed exactly once,
// closing the CSRF replay window.
func (s *Store) GetAndDelete(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.GetDel(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
