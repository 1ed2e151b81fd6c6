// Package timecode implements the time-based code factor (TOTP).
//
// Enrollment is two-step: BeginEnrollment hands the secret to the client and
// parks it (encrypted) in a pending challenge; nothing touches the vault until
// CompleteEnrollment proves the client actually captured the secret. The
// active secret, if any, stays valid throughout.
package timecode

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/security/secretbox"
	"github.com/dropDatabas3/secondjohn/internal/security/totp"
)

const (
	defaultEnrollTTL   = 10 * time.Minute
	defaultWindowSteps = 1
)

// Config ajusta la ventana de verificación y el enrolamiento.
type Config struct {
	Issuer      string
	EnrollTTL   time.Duration
	WindowSteps int
}

// Enrollment es lo que el cliente necesita para cargar su autenticador.
type Enrollment struct {
	ChallengeID string
	SecretB32   string
	OTPAuthURL  string
}

type Manager struct {
	cfg        Config
	challenges challenge.Store
	identities repository.IdentityRepository
	secrets    repository.SecretRepository
	box        *secretbox.Box

	now func() time.Time
}

func New(cfg Config, challenges challenge.Store, identities repository.IdentityRepository, secrets repository.SecretRepository, box *secretbox.Box) *Manager {
	if cfg.EnrollTTL <= 0 {
		cfg.EnrollTTL = defaultEnrollTTL
	}
	if cfg.WindowSteps <= 0 {
		cfg.WindowSteps = defaultWindowSteps
	}
	return &Manager{
		cfg:        cfg,
		challenges: challenges,
		identities: identities,
		secrets:    secrets,
		box:        box,
		now:        time.Now,
	}
}

// BeginEnrollment generates a fresh secret and parks it in a pending
// challenge. The plaintext secret leaves the server exactly once, here.
func (m *Manager) BeginEnrollment(ctx context.Context, identityID string) (*Enrollment, error) {
	if _, err := m.identities.Get(ctx, identityID); err != nil {
		if repository.IsUnavailable(err) {
			return nil, factor.ErrUpstreamUnavailable
		}
		return nil, err
	}

	raw, b32, err := totp.GenerateSecret()
	if err != nil {
		return nil, err
	}
	enc, err := m.box.Encrypt(raw)
	if err != nil {
		return nil, err
	}

	ch := &challenge.Challenge{
		ID:          challenge.NewID(),
		IdentityID:  identityID,
		Kind:        challenge.KindTimecodeEnrollment,
		Payload:     []byte(enc),
		MaxAttempts: 1,
	}
	if _, err := m.challenges.Put(ctx, ch, m.cfg.EnrollTTL); err != nil {
		return nil, err
	}

	logger.From(ctx).Debug("timecode: enrolamiento iniciado",
		logger.IdentityID(identityID), logger.ChallengeID(ch.ID))
	return &Enrollment{
		ChallengeID: ch.ID,
		SecretB32:   b32,
		OTPAuthURL:  totp.OTPAuthURL(m.cfg.Issuer, identityID, b32),
	}, nil
}

// CompleteEnrollment activates the pending secret once the client proves it
// with a valid code. A wrong code discards the pending secret outright: the
// client restarts enrollment and gets a fresh one.
func (m *Manager) CompleteEnrollment(ctx context.Context, challengeID, code string) error {
	ch, err := m.challenges.Get(ctx, challengeID)
	if err != nil {
		return mapChallengeErr(err)
	}
	if ch.Kind != challenge.KindTimecodeEnrollment {
		return factor.ErrInvalidProof
	}

	raw, err := m.box.Decrypt(string(ch.Payload))
	if err != nil {
		return err
	}

	ok, counter := totp.Verify(raw, code, m.now(), m.cfg.WindowSteps, nil)
	if !ok {
		_ = m.challenges.Delete(ctx, challengeID)
		logger.From(ctx).Info("timecode: código de enrolamiento errado, secreto pendiente descartado",
			logger.IdentityID(ch.IdentityID), logger.ChallengeID(challengeID))
		return factor.ErrInvalidProof
	}

	// Consume decide el ganador si dos completions corren en paralelo.
	if _, err := m.challenges.Consume(ctx, challengeID); err != nil {
		return mapChallengeErr(err)
	}

	if err := m.secrets.UpsertTimecode(ctx, ch.IdentityID, string(ch.Payload)); err != nil {
		if repository.IsUnavailable(err) {
			return factor.ErrUpstreamUnavailable
		}
		return err
	}
	if err := m.secrets.SetTimecodeCounter(ctx, ch.IdentityID, counter); err != nil {
		return err
	}
	if err := m.identities.AddFactor(ctx, ch.IdentityID, repository.FactorTimecode); err != nil {
		return err
	}

	logger.From(ctx).Info("timecode: enrolamiento activado",
		logger.IdentityID(ch.IdentityID), logger.Factor(string(factor.KindTimecode)))
	return nil
}

// Verify checks a code against the active secret. The accepted time step is
// persisted so the same code cannot be replayed within its window.
func (m *Manager) Verify(ctx context.Context, identityID, code string) (*factor.Outcome, error) {
	sec, err := m.secrets.GetTimecode(ctx, identityID)
	if err != nil {
		switch {
		case repository.IsNotFound(err):
			return nil, factor.ErrNoCredentialEnrolled
		case repository.IsUnavailable(err):
			return nil, factor.ErrUpstreamUnavailable
		default:
			return nil, err
		}
	}

	raw, err := m.box.Decrypt(sec.SecretEncrypted)
	if err != nil {
		return nil, err
	}

	ok, counter := totp.Verify(raw, code, m.now(), m.cfg.WindowSteps, sec.LastCounter)
	if !ok {
		return nil, factor.ErrInvalidProof
	}

	if err := m.secrets.SetTimecodeCounter(ctx, identityID, counter); err != nil {
		if repository.IsUnavailable(err) {
			return nil, factor.ErrUpstreamUnavailable
		}
		return nil, err
	}

	return &factor.Outcome{
		IdentityID: identityID,
		Kind:       factor.KindTimecode,
		VerifiedAt: m.now().UTC(),
	}, nil
}

// Unenroll elimina el factor timecode de la identidad.
func (m *Manager) Unenroll(ctx context.Context, identityID string) error {
	if err := m.secrets.DeleteTimecode(ctx, identityID); err != nil {
		return err
	}
	return m.identities.RemoveFactor(ctx, identityID, repository.FactorTimecode)
}

func mapChallengeErr(err error) error {
	switch {
	case errors.Is(err, challenge.ErrExpired),
		errors.Is(err, challenge.ErrNotFound),
		errors.Is(err, challenge.ErrAlreadyConsumed):
		return factor.ErrInvalidProof
	case errors.Is(err, challenge.ErrTooManyAttempts):
		return factor.ErrRateLimited
	default:
		return err
	}
}
