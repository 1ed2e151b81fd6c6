package challenge

import (
	"context"
	"os"
	"testing"
	"time"

	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// redisStore levanta un store contra el Redis de TEST_REDIS_ADDR, o saltea
// el test si no hay instancia disponible.
func redisStore(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR no definido")
	}
	client := rdb.NewClient(&rdb.Options{Addr: addr, DB: 9})
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return NewRedis(client, "t:"+t.Name()+":")
}

func TestRedisPutGetConsume(t *testing.T) {
	ctx := context.Background()
	s := redisStore(t)

	id, err := s.Put(ctx, &Challenge{IdentityID: "u1", Kind: KindSidechannelOTP}, time.Minute)
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "u1", got.IdentityID)

	_, err = s.Consume(ctx, id)
	require.NoError(t, err)

	// el tombstone distingue "consumido" de "nunca existió"
	_, err = s.Consume(ctx, id)
	require.ErrorIs(t, err, ErrAlreadyConsumed)
	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestRedisFailLockout(t *testing.T) {
	ctx := context.Background()
	s := redisStore(t)

	id, err := s.Put(ctx, &Challenge{IdentityID: "u1", Kind: KindSidechannelOTP, MaxAttempts: 3}, time.Minute)
	require.NoError(t, err)

	n, err := s.Fail(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.Fail(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	_, err = s.Fail(ctx, id)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// el lockout persiste y se reporta como tal, igual que en memoria:
	// ni Get, ni Consume, ni otro Fail lo degradan a NotFound
	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, ErrTooManyAttempts)
	_, err = s.Consume(ctx, id)
	require.ErrorIs(t, err, ErrTooManyAttempts)
	_, err = s.Fail(ctx, id)
	require.ErrorIs(t, err, ErrTooManyAttempts)
}
