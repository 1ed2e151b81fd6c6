package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type identityRepo struct {
	pool *pgxpool.Pool
}

func (r *identityRepo) Get(ctx context.Context, id string) (*repository.Identity, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_name, factors, created_at, updated_at
		FROM identity WHERE id = $1
	`, id)

	var ident repository.Identity
	var factors []string
	if err := row.Scan(&ident.ID, &ident.DisplayName, &factors, &ident.CreatedAt, &ident.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	for _, f := range factors {
		ident.Factors = append(ident.Factors, repository.FactorKind(f))
	}
	return &ident, nil
}

func (r *identityRepo) Create(ctx context.Context, id, displayName string) (*repository.Identity, error) {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identity (id, display_name, factors, created_at, updated_at)
		VALUES ($1, $2, '{}', $3, $3)
	`, id, displayName, now)
	if err != nil {
		return nil, mapErr(err)
	}
	return &repository.Identity{ID: id, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}, nil
}

func (r *identityRepo) AddFactor(ctx context.Context, id string, kind repository.FactorKind) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE identity
		SET factors = array_append(factors, $2), updated_at = now()
		WHERE id = $1 AND NOT ($2 = ANY(factors))
	`, id, string(kind))
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		// o la identidad no existe, o el factor ya estaba (idempotente)
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM identity WHERE id = $1)`, id).Scan(&exists); err != nil {
			return mapErr(err)
		}
		if !exists {
			return repository.ErrNotFound
		}
	}
	return nil
}

func (r *identityRepo) RemoveFactor(ctx context.Context, id string, kind repository.FactorKind) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE identity
		SET factors = array_remove(factors, $2), updated_at = now()
		WHERE id = $1
	`, id, string(kind))
	return mapErr(err)
}
