package redisstore_test

import (
	"context"
	"testing"
	"time"

	redisstore "ratehub/internal/infrastructure/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, ttl time.Duration) (*redisstore.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.New(client, ttl), mr
}

func TestTryReserve(t *testing.T) {
	store, mr := newStore(t, time.Hour)
	ctx := context.Background()

	ok, err := store.TryReserve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists(redisstore.DefaultPrefix+"k1"))

	ok, err = store.TryReserve(ctx, "k1")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.TryReserve(ctx, "k2")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryReserve_ExpiresAfterTTL(t *testing.T) {
	store, mr := newStore(t, time.Minute)
	ctx := context.Background()

	ok, err := store.TryReserve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = store.TryReserve(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestTryReserve_ServerDown(t *testing.T) {
	store, mr := newStore(t, time.Minute)
	require.NoError(t, store.Ping(context.Background()))
	mr.Close()

	_, err := store.TryReserve(context.Background(), "k1")
	require.Error(t, err)
	require.Error(t, store.Ping(context.Background()))
}
