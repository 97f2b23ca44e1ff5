package redisstore

import (
	"context"
	"time"

	"ratehub/internal/application"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "ratehub:refresh:"

// Store reserves refresh idempotency keys with SET NX and a TTL.
type Store struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
}

var _ application.IdempotencyStore = (*Store)(nil)

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{Client: client, TTL: ttl, Prefix: DefaultPrefix}
}

func (s *Store) TryReserve(ctx context.Context, key string) (bool, error) {
	ok, err := s.Client.SetNX(ctx, s.Prefix+key, time.Now().UTC().Format(time.RFC3339Nano), s.TTL).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.Client.Ping(ctx).Err() }
