package repository

import (
	"context"
	"time"
)

// TrustRecord vincula una identidad con un device fingerprint verificado.
// Solo se crea tras una verificación de segundo factor exitosa en ese
// fingerprint; su existencia permite saltear MFA en logins posteriores.
type TrustRecord struct {
	IdentityID    string
	Fingerprint   string // hash, nunca la cadena de firma cruda
	EstablishedAt time.Time
	LastSeenAt    time.Time
	ExpiresAt     *time.Time // NULL = nunca expira (política externa)
}

// TrustRepository define el bookkeeping de dispositivos confiables.
// Sin lógica de verificación: tabla de lookup pura.
type TrustRepository interface {
	// Upsert crea o refresca el trust record.
	Upsert(ctx context.Context, identityID, fingerprint string, expiresAt *time.Time) error

	// Get obtiene el record vivo para (identidad, fingerprint).
	// Retorna ErrNotFound si no existe o ya expiró.
	Get(ctx context.Context, identityID, fingerprint string) (*TrustRecord, error)

	// Touch actualiza LastSeenAt en cada uso aceptado.
	Touch(ctx context.Context, identityID, fingerprint string, at time.Time) error

	// RevokeAll elimina todos los devices confiables de una identidad
	// (respuesta a compromiso de cuenta).
	RevokeAll(ctx context.Context, identityID string) error
}
