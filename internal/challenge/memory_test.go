package challenge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryPutGetConsume(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	id, err := s.Put(ctx, &Challenge{IdentityID: "u1", Kind: KindSidechannelOTP}, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "u1", got.IdentityID)
	require.False(t, got.Consumed)

	c, err := s.Consume(ctx, id)
	require.NoError(t, err)
	require.True(t, c.Consumed)

	_, err = s.Consume(ctx, id)
	require.ErrorIs(t, err, ErrAlreadyConsumed)

	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestMemoryConsumeIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	id, err := s.Put(ctx, &Challenge{IdentityID: "u1", Kind: KindPossessionAssertion}, time.Minute)
	require.NoError(t, err)

	const callers = 32
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Consume(ctx, id); err == nil {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	require.Equal(t, 1, count, "exactly one concurrent Consume must succeed")
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	s := NewMemoryAt(clock)

	id, err := s.Put(ctx, &Challenge{IdentityID: "u1", Kind: KindTimecodeEnrollment}, 2*time.Minute)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, id)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, ErrNotFound, "expired behaves as not found on Get")

	_, err = s.Consume(ctx, id)
	require.ErrorIs(t, err, ErrNotFound, "lazy expiry removed the entry")
}

func TestMemoryConsumeChecksFreshnessItself(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryAt(func() time.Time { return now })

	id, err := s.Put(ctx, &Challenge{IdentityID: "u1", Kind: KindSidechannelOTP}, time.Minute)
	require.NoError(t, err)

	// Get ve el challenge vivo, pero el tiempo avanza antes del Consume.
	_, err = s.Get(ctx, id)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.Consume(ctx, id)
	require.ErrorIs(t, err, ErrExpired)
}

func TestMemoryFailLockout(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

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

	// Incluso la prueba correcta queda bloqueada tras agotar los intentos.
	_, err = s.Consume(ctx, id)
	require.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestMemorySweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryAt(func() time.Time { return now })

	_, err := s.Put(ctx, &Challenge{IdentityID: "a", Kind: KindSidechannelOTP}, time.Minute)
	require.NoError(t, err)
	liveID, err := s.Put(ctx, &Challenge{IdentityID: "b", Kind: KindSidechannelOTP}, time.Hour)
	require.NoError(t, err)

	now = now.Add(5 * time.Minute)
	removed, err := s.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, liveID)
	require.NoError(t, err)
}
