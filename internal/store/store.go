// Package store provee los adapters del vault persistente.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/store/memory"
	"github.com/dropDatabas3/secondjohn/internal/store/pg"
)

// Store agrupa los repositorios del vault detrás de un único handle.
type Store interface {
	Identities() repository.IdentityRepository
	Secrets() repository.SecretRepository
	Trust() repository.TrustRepository

	// Ping verifica que el vault esté alcanzable (readiness).
	Ping(ctx context.Context) error
	Close()
}

// Config selecciona e inicializa el backend.
type Config struct {
	Driver  string // "postgres" | "memory"
	DSN     string
	Migrate bool // aplicar migraciones embebidas al iniciar (solo postgres)
}

// New crea el Store según la configuración.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		s, err := pg.New(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("store: postgres: %w", err)
		}
		if cfg.Migrate {
			if err := s.Migrate(ctx); err != nil {
				s.Close()
				return nil, fmt.Errorf("store: migrate: %w", err)
			}
		}
		return s, nil
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Driver)
	}
}
