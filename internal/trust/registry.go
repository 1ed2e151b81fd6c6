// Package trust mantiene el registro de dispositivos confiables.
//
// Un dispositivo se identifica por un fingerprint: SHA-256 de origin más la
// cadena de firma del cliente. El registro solo ve el hash; la cadena cruda
// nunca se persiste ni se loguea.
package trust

import (
	"context"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/security/token"
)

// Registry envuelve el repositorio con la política de expiración y el
// hashing del fingerprint.
type Registry struct {
	repo repository.TrustRepository
	ttl  time.Duration // 0 = los records no expiran
	now  func() time.Time
}

func NewRegistry(repo repository.TrustRepository, ttl time.Duration) *Registry {
	return &Registry{repo: repo, ttl: ttl, now: time.Now}
}

// Fingerprint deriva el identificador de dispositivo a partir del origin y
// la cadena de firma del cliente.
func Fingerprint(origin, clientSignature string) string {
	return token.SHA256Hex(origin + "|" + clientSignature)
}

// Establish registra (o refresca) la confianza de un dispositivo. Solo debe
// llamarse tras una verificación de factor exitosa en ese fingerprint.
func (r *Registry) Establish(ctx context.Context, identityID, fingerprint string) error {
	var expiresAt *time.Time
	if r.ttl > 0 {
		e := r.now().UTC().Add(r.ttl)
		expiresAt = &e
	}
	if err := r.repo.Upsert(ctx, identityID, fingerprint, expiresAt); err != nil {
		return err
	}
	logger.From(ctx).Info("trust: dispositivo registrado",
		logger.IdentityID(identityID), logger.Fingerprint(fingerprint))
	return nil
}

// IsTrusted indica si el dispositivo tiene un trust record vivo.
// Cada uso aceptado refresca LastSeenAt.
func (r *Registry) IsTrusted(ctx context.Context, identityID, fingerprint string) (bool, error) {
	_, err := r.repo.Get(ctx, identityID, fingerprint)
	switch {
	case err == nil:
		// best-effort: la marca de último uso no condiciona la respuesta
		_ = r.repo.Touch(ctx, identityID, fingerprint, r.now().UTC())
		return true, nil
	case repository.IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// RevokeAll elimina todos los dispositivos confiables de la identidad.
func (r *Registry) RevokeAll(ctx context.Context, identityID string) error {
	if err := r.repo.RevokeAll(ctx, identityID); err != nil {
		return err
	}
	logger.From(ctx).Warn("trust: todos los dispositivos revocados",
		logger.IdentityID(identityID))
	return nil
}
