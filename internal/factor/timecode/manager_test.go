package timecode

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/security/secretbox"
	"github.com/dropDatabas3/secondjohn/internal/security/totp"
	"github.com/dropDatabas3/secondjohn/internal/store/memory"
)

func newManager(t *testing.T) (*Manager, *memory.Store) {
	t.Helper()
	box, err := secretbox.New(bytes.Repeat([]byte{0x11}, 32), "timecode-secret")
	require.NoError(t, err)
	vault := memory.New()
	m := New(Config{Issuer: "SecondJohn"}, challenge.NewMemory(), vault.Identities(), vault.Secrets(), box)
	return m, vault
}

func TestEnrollmentLifecycle(t *testing.T) {
	ctx := context.Background()
	m, vault := newManager(t)
	_, err := vault.Identities().Create(ctx, "idp-1", "Ada")
	require.NoError(t, err)

	enr, err := m.BeginEnrollment(ctx, "idp-1")
	require.NoError(t, err)
	assert.NotEmpty(t, enr.SecretB32)
	assert.Contains(t, enr.OTPAuthURL, "otpauth://totp/")

	// todavía no hay secreto activo
	_, err = m.Verify(ctx, "idp-1", "000000")
	assert.ErrorIs(t, err, factor.ErrNoCredentialEnrolled)

	raw, err := totp.DecodeSecret(enr.SecretB32)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, m.CompleteEnrollment(ctx, enr.ChallengeID, totp.Generate(raw, totp.Counter(now))))

	ident, err := vault.Identities().Get(ctx, "idp-1")
	require.NoError(t, err)
	assert.True(t, ident.HasFactor(repository.FactorTimecode))

	// el step usado en la activación no se puede reusar
	_, err = m.Verify(ctx, "idp-1", totp.Generate(raw, totp.Counter(now)))
	assert.ErrorIs(t, err, factor.ErrInvalidProof)
}

func TestCompleteEnrollmentWrongCodeDiscardsPending(t *testing.T) {
	ctx := context.Background()
	m, vault := newManager(t)
	_, err := vault.Identities().Create(ctx, "idp-2", "Grace")
	require.NoError(t, err)

	enr, err := m.BeginEnrollment(ctx, "idp-2")
	require.NoError(t, err)

	err = m.CompleteEnrollment(ctx, enr.ChallengeID, "000000")
	assert.ErrorIs(t, err, factor.ErrInvalidProof)

	// el secreto pendiente quedó descartado: ni el código correcto lo revive
	raw, err := totp.DecodeSecret(enr.SecretB32)
	require.NoError(t, err)
	err = m.CompleteEnrollment(ctx, enr.ChallengeID, totp.Generate(raw, totp.Counter(time.Now())))
	assert.ErrorIs(t, err, factor.ErrInvalidProof)

	// el cliente reinicia el enrolamiento y recibe un secreto nuevo
	enr2, err := m.BeginEnrollment(ctx, "idp-2")
	require.NoError(t, err)
	assert.NotEqual(t, enr.SecretB32, enr2.SecretB32)

	raw2, err := totp.DecodeSecret(enr2.SecretB32)
	require.NoError(t, err)
	require.NoError(t, m.CompleteEnrollment(ctx, enr2.ChallengeID, totp.Generate(raw2, totp.Counter(time.Now()))))

	ident, err := vault.Identities().Get(ctx, "idp-2")
	require.NoError(t, err)
	assert.True(t, ident.HasFactor(repository.FactorTimecode))
}

func TestVerifyAcceptsAdjacentStepOnce(t *testing.T) {
	ctx := context.Background()
	m, vault := newManager(t)
	_, err := vault.Identities().Create(ctx, "idp-4", "Barbara")
	require.NoError(t, err)

	now := time.Now()
	m.now = func() time.Time { return now }

	enr, err := m.BeginEnrollment(ctx, "idp-4")
	require.NoError(t, err)
	raw, err := totp.DecodeSecret(enr.SecretB32)
	require.NoError(t, err)
	require.NoError(t, m.CompleteEnrollment(ctx, enr.ChallengeID, totp.Generate(raw, totp.Counter(now))))

	// avanzamos un step: el código nuevo entra, y solo una vez
	now = now.Add(30 * time.Second)
	code := totp.Generate(raw, totp.Counter(now))
	out, err := m.Verify(ctx, "idp-4", code)
	require.NoError(t, err)
	assert.Equal(t, factor.KindTimecode, out.Kind)
	assert.Equal(t, "idp-4", out.IdentityID)

	_, err = m.Verify(ctx, "idp-4", code)
	assert.ErrorIs(t, err, factor.ErrInvalidProof)
}

func TestUnenroll(t *testing.T) {
	ctx := context.Background()
	m, vault := newManager(t)
	_, err := vault.Identities().Create(ctx, "idp-5", "Edsger")
	require.NoError(t, err)

	enr, err := m.BeginEnrollment(ctx, "idp-5")
	require.NoError(t, err)
	raw, err := totp.DecodeSecret(enr.SecretB32)
	require.NoError(t, err)
	require.NoError(t, m.CompleteEnrollment(ctx, enr.ChallengeID, totp.Generate(raw, totp.Counter(time.Now()))))

	require.NoError(t, m.Unenroll(ctx, "idp-5"))
	_, err = m.Verify(ctx, "idp-5", "123456")
	assert.ErrorIs(t, err, factor.ErrNoCredentialEnrolled)

	ident, err := vault.Identities().Get(ctx, "idp-5")
	require.NoError(t, err)
	assert.False(t, ident.HasFactor(repository.FactorTimecode))
}
