package sidechannel

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/secondjohn/internal/cache"
	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/dispatch"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
)

// captureSender retiene la última entrega para que el test conozca el código.
type captureSender struct {
	mu    sync.Mutex
	last  dispatch.Delivery
	fail  int // cantidad de Deliver que fallan antes de funcionar
	calls int
}

func (s *captureSender) Deliver(ctx context.Context, d dispatch.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fail {
		return errors.New("smtp down")
	}
	s.last = d
	return nil
}

type staticDirectory map[string]string

func (d staticDirectory) Address(ctx context.Context, identityID, channel string) (string, error) {
	addr, ok := d[identityID+"/"+channel]
	if !ok {
		return "", repository.ErrNotFound
	}
	return addr, nil
}

func newManager(t *testing.T, cfg Config) (*Manager, *captureSender, challenge.Store) {
	t.Helper()
	sender := &captureSender{}
	reg := dispatch.NewRegistry()
	reg.Register(dispatch.ChannelMail, sender)

	challenges := challenge.NewMemory()
	dir := staticDirectory{"idp-1/mail": "ada@example.com"}
	m := New(cfg, challenges, cache.New(cache.Config{Driver: "memory"}), dir, reg)
	return m, sender, challenges
}

func TestSendAndVerify(t *testing.T) {
	ctx := context.Background()
	m, sender, _ := newManager(t, Config{})

	res, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	require.NoError(t, err)
	require.NotEmpty(t, res.ChallengeID)
	assert.Empty(t, res.EchoCode)

	require.Len(t, sender.last.Code, codeDigits)
	assert.Equal(t, "ada@example.com", sender.last.Destination)

	out, err := m.Verify(ctx, res.ChallengeID, sender.last.Code)
	require.NoError(t, err)
	assert.Equal(t, factor.KindSidechannel, out.Kind)
	assert.Equal(t, "idp-1", out.IdentityID)

	// el código es de un solo uso
	_, err = m.Verify(ctx, res.ChallengeID, sender.last.Code)
	assert.ErrorIs(t, err, factor.ErrInvalidProof)
}

func TestSendCooldown(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newManager(t, Config{Cooldown: time.Minute})

	res, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	require.NoError(t, err)
	// el cliente sabe cuánto esperar antes de pedir un reenvío
	assert.Equal(t, 60, res.CooldownSeconds)

	_, err = m.Send(ctx, "idp-1", dispatch.ChannelMail)
	assert.ErrorIs(t, err, factor.ErrRateLimited)
}

func TestResendInvalidatesPriorChallenge(t *testing.T) {
	ctx := context.Background()
	// cooldown mínimo para poder reenviar en el test
	m, sender, _ := newManager(t, Config{Cooldown: time.Nanosecond})

	first, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	require.NoError(t, err)
	firstCode := sender.last.Code

	time.Sleep(5 * time.Millisecond)

	second, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	require.NoError(t, err)

	// el challenge anterior quedó invalidado aunque el código fuera correcto
	_, err = m.Verify(ctx, first.ChallengeID, firstCode)
	assert.ErrorIs(t, err, factor.ErrInvalidProof)

	_, err = m.Verify(ctx, second.ChallengeID, sender.last.Code)
	require.NoError(t, err)
}

func TestVerifyAttemptBudget(t *testing.T) {
	ctx := context.Background()
	m, sender, _ := newManager(t, Config{})

	res, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	require.NoError(t, err)

	for i := 0; i < maxAttempts-1; i++ {
		_, err = m.Verify(ctx, res.ChallengeID, "000000")
		assert.ErrorIs(t, err, factor.ErrInvalidProof)
	}
	_, err = m.Verify(ctx, res.ChallengeID, "000000")
	assert.ErrorIs(t, err, factor.ErrRateLimited)

	// agotado el presupuesto, ni el código correcto entra
	_, err = m.Verify(ctx, res.ChallengeID, sender.last.Code)
	assert.ErrorIs(t, err, factor.ErrRateLimited)
}

func TestSendUnknownAddress(t *testing.T) {
	m, _, _ := newManager(t, Config{})
	_, err := m.Send(context.Background(), "desconocido", dispatch.ChannelMail)
	assert.ErrorIs(t, err, factor.ErrNoCredentialEnrolled)
}

func TestSendDispatchFailure(t *testing.T) {
	ctx := context.Background()
	m, sender, challenges := newManager(t, Config{})
	sender.fail = 99

	_, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	assert.ErrorIs(t, err, factor.ErrUpstreamUnavailable)

	// sin entrega no queda challenge vivo
	mem := challenges.(*challenge.Memory)
	assert.Equal(t, 0, mem.Len())
}

func TestSendDebugEchoCodes(t *testing.T) {
	ctx := context.Background()
	m, sender, _ := newManager(t, Config{DebugEchoCodes: true})

	res, err := m.Send(ctx, "idp-1", dispatch.ChannelMail)
	require.NoError(t, err)
	assert.Equal(t, sender.last.Code, res.EchoCode)
}
