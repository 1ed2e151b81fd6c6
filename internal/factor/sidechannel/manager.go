// Package sidechannel implements the OTP-over-side-channel factor: a short
// numeric code delivered out of band (mail, message) and verified against a
// hash parked in the challenge store. The plaintext code never touches disk.
package sidechannel

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/cache"
	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/dispatch"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/security/token"
)

const (
	codeDigits      = 6
	maxAttempts     = 5
	defaultCodeTTL  = 5 * time.Minute
	defaultCooldown = 60 * time.Second
)

// Directory resuelve la dirección de entrega de una identidad por canal.
// Lo implementa el colaborador de lookup contra el IdP externo.
type Directory interface {
	Address(ctx context.Context, identityID, channel string) (string, error)
}

// Config ajusta TTL, cooldown y el modo eco de desarrollo.
type Config struct {
	CodeTTL  time.Duration
	Cooldown time.Duration

	// DebugEchoCodes devuelve el código en la respuesta de Send.
	// SOLO desarrollo; jamás habilitar en producción.
	DebugEchoCodes bool
}

// SendResult es el resultado de emitir un código.
type SendResult struct {
	ChallengeID string
	Channel     string
	// CooldownSeconds informa cuánto debe esperar el cliente antes de
	// pedir un reenvío.
	CooldownSeconds int
	// EchoCode solo viene poblado con DebugEchoCodes activo.
	EchoCode string `json:"-"`
}

type Manager struct {
	cfg        Config
	challenges challenge.Store
	cooldowns  cache.Client
	directory  Directory
	dispatch   *dispatch.Registry
}

func New(cfg Config, challenges challenge.Store, cooldowns cache.Client, directory Directory, reg *dispatch.Registry) *Manager {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = defaultCodeTTL
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Manager{
		cfg:        cfg,
		challenges: challenges,
		cooldowns:  cooldowns,
		directory:  directory,
		dispatch:   reg,
	}
}

func cooldownKey(identityID, channel string) string {
	return "sidechannel:cooldown:" + identityID + ":" + channel
}

func activeKey(identityID, channel string) string {
	return "sidechannel:active:" + identityID + ":" + channel
}

// Send emite un código nuevo para (identidad, canal). Un código anterior sin
// consumir queda invalidado; reenvíos dentro del cooldown se rechazan.
func (m *Manager) Send(ctx context.Context, identityID, channel string) (*SendResult, error) {
	log := logger.From(ctx).With(
		logger.IdentityID(identityID), logger.Channel(channel))

	d, ok := m.dispatch.For(channel)
	if !ok {
		return nil, fmt.Errorf("sidechannel: canal desconocido %q", channel)
	}

	if exists, err := m.cooldowns.Exists(ctx, cooldownKey(identityID, channel)); err == nil && exists {
		log.Info("sidechannel: reenvío dentro del cooldown")
		return nil, factor.ErrRateLimited
	}

	dest, err := m.directory.Address(ctx, identityID, channel)
	if err != nil {
		switch {
		case repository.IsNotFound(err):
			return nil, factor.ErrNoCredentialEnrolled
		default:
			log.Warn("sidechannel: lookup de dirección falló", logger.Err(err))
			return nil, factor.ErrUpstreamUnavailable
		}
	}

	code, err := token.GenerateNumericCode(codeDigits)
	if err != nil {
		return nil, err
	}

	// un código nuevo mata al anterior del mismo canal
	if prev, err := m.cooldowns.Get(ctx, activeKey(identityID, channel)); err == nil && prev != "" {
		_ = m.challenges.Delete(ctx, prev)
	}

	ch := &challenge.Challenge{
		ID:          challenge.NewID(),
		IdentityID:  identityID,
		Kind:        challenge.KindSidechannelOTP,
		Payload:     []byte(token.SHA256Base64URL(code)),
		Channel:     channel,
		MaxAttempts: maxAttempts,
	}
	if _, err := m.challenges.Put(ctx, ch, m.cfg.CodeTTL); err != nil {
		return nil, err
	}

	if err := d.Deliver(ctx, dispatch.Delivery{
		Channel:     channel,
		Destination: dest,
		Code:        code,
	}); err != nil {
		// sin entrega no hay challenge utilizable
		_ = m.challenges.Delete(ctx, ch.ID)
		return nil, factor.ErrUpstreamUnavailable
	}

	_ = m.cooldowns.Set(ctx, cooldownKey(identityID, channel), "1", m.cfg.Cooldown)
	_ = m.cooldowns.Set(ctx, activeKey(identityID, channel), ch.ID, m.cfg.CodeTTL)

	log.Info("sidechannel: código emitido", logger.ChallengeID(ch.ID))

	res := &SendResult{
		ChallengeID:     ch.ID,
		Channel:         channel,
		CooldownSeconds: int(m.cfg.Cooldown.Seconds()),
	}
	if m.cfg.DebugEchoCodes {
		log.Warn("sidechannel: debug_echo_codes activo, el código viaja en la respuesta")
		res.EchoCode = code
	}
	return res, nil
}

// Verify compara el código contra el hash del challenge. El código correcto
// consume el challenge exactamente una vez; los errados gastan intentos.
func (m *Manager) Verify(ctx context.Context, challengeID, code string) (*factor.Outcome, error) {
	ch, err := m.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeErr(err)
	}
	if ch.Kind != challenge.KindSidechannelOTP {
		return nil, factor.ErrInvalidProof
	}

	hash := token.SHA256Base64URL(code)
	if subtle.ConstantTimeCompare([]byte(hash), ch.Payload) != 1 {
		if _, ferr := m.challenges.Fail(ctx, challengeID); ferr != nil {
			return nil, mapChallengeErr(ferr)
		}
		return nil, factor.ErrInvalidProof
	}

	if _, err := m.challenges.Consume(ctx, challengeID); err != nil {
		return nil, mapChallengeErr(err)
	}

	_ = m.cooldowns.Delete(ctx, activeKey(ch.IdentityID, ch.Channel))

	logger.From(ctx).Info("sidechannel: código verificado",
		logger.IdentityID(ch.IdentityID), logger.Channel(ch.Channel))
	return &factor.Outcome{
		IdentityID: ch.IdentityID,
		Kind:       factor.KindSidechannel,
		VerifiedAt: time.Now().UTC(),
	}, nil
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
