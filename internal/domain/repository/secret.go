package repository

import (
	"context"
	"time"
)

// TimecodeSecret es el secreto compartido TOTP de una identidad.
// SecretEncrypted va cifrado con secretbox; LastCounter es el último step
// aceptado (anti-replay dentro de la misma ventana).
type TimecodeSecret struct {
	IdentityID      string
	SecretEncrypted string
	LastCounter     *int64
	EnrolledAt      time.Time
	UpdatedAt       time.Time
}

// Credential es el descriptor público de una credencial de posesión
// (WebAuthn). El servidor nunca guarda la clave privada. Data es el blob
// JSON con el descriptor completo (public key, AAGUID, flags).
type Credential struct {
	IdentityID   string
	CredentialID string // base64url del credential ID
	Data         []byte
	SignCount    uint32
	EnrolledAt   time.Time
	UpdatedAt    time.Time
}

// SecretRepository es el vault de material secreto enrolado.
type SecretRepository interface {
	// ─── Timecode (TOTP) ───

	// UpsertTimecode activa el secreto TOTP de una identidad.
	// Resetea LastCounter: un secreto nuevo no hereda historial.
	UpsertTimecode(ctx context.Context, identityID, secretEnc string) error

	// GetTimecode obtiene el secreto TOTP activo.
	// Retorna ErrNotFound si la identidad no tiene timecode enrolado.
	GetTimecode(ctx context.Context, identityID string) (*TimecodeSecret, error)

	// SetTimecodeCounter persiste el último step aceptado.
	SetTimecodeCounter(ctx context.Context, identityID string, counter int64) error

	// DeleteTimecode des-enrola el factor timecode.
	DeleteTimecode(ctx context.Context, identityID string) error

	// ─── Possession (WebAuthn) ───

	// InsertCredential registra una credencial de posesión nueva.
	InsertCredential(ctx context.Context, cred *Credential) error

	// ListCredentials lista las credenciales de una identidad.
	// Slice vacío (sin error) si no hay ninguna.
	ListCredentials(ctx context.Context, identityID string) ([]*Credential, error)

	// UpdateCredential reescribe el descriptor y el sign counter tras una
	// assertion aceptada.
	UpdateCredential(ctx context.Context, cred *Credential) error
}
