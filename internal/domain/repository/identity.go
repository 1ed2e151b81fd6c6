package repository

import (
	"context"
	"time"
)

// FactorKind identifica un segundo factor enrolable.
type FactorKind string

const (
	FactorPossession  FactorKind = "possession"
	FactorTimecode    FactorKind = "timecode"
	FactorSidechannel FactorKind = "sidechannel"
)

// Identity es el espejo local de una identidad del IdP externo.
// Se crea en el primer login externo exitoso; este subsistema nunca la borra.
type Identity struct {
	ID          string // id opaco del IdP externo
	DisplayName string
	Factors     []FactorKind // factores enrolados
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasFactor indica si la identidad tiene el factor enrolado.
func (i *Identity) HasFactor(k FactorKind) bool {
	for _, f := range i.Factors {
		if f == k {
			return true
		}
	}
	return false
}

// IdentityRepository define operaciones sobre identidades locales.
type IdentityRepository interface {
	// Get obtiene una identidad. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, id string) (*Identity, error)

	// Create registra una identidad nueva (primer login externo).
	// Retorna ErrConflict si ya existe.
	Create(ctx context.Context, id, displayName string) (*Identity, error)

	// AddFactor marca un factor como enrolado. Idempotente.
	AddFactor(ctx context.Context, id string, kind FactorKind) error

	// RemoveFactor des-enrola un factor.
	RemoveFactor(ctx context.Context, id string, kind FactorKind) error
}
