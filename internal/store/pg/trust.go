package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type trustRepo struct {
	pool *pgxpool.Pool
}

func (r *trustRepo) Upsert(ctx context.Context, identityID, fingerprint string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO trusted_device (identity_id, fingerprint, established_at, last_seen_at, expires_at)
		VALUES ($1, $2, now(), now(), $3)
		ON CONFLICT (identity_id, fingerprint)
		DO UPDATE SET last_seen_at = now(), expires_at = EXCLUDED.expires_at
	`, identityID, fingerprint, expiresAt)
	return mapErr(err)
}

func (r *trustRepo) Get(ctx context.Context, identityID, fingerprint string) (*repository.TrustRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity_id, fingerprint, established_at, last_seen_at, expires_at
		FROM trusted_device
		WHERE identity_id = $1 AND fingerprint = $2
		  AND (expires_at IS NULL OR expires_at > now())
	`, identityID, fingerprint)

	var t repository.TrustRecord
	if err := row.Scan(&t.IdentityID, &t.Fingerprint, &t.EstablishedAt, &t.LastSeenAt, &t.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *trustRepo) Touch(ctx context.Context, identityID, fingerprint string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE trusted_device SET last_seen_at = $3
		WHERE identity_id = $1 AND fingerprint = $2
	`, identityID, fingerprint, at)
	return mapErr(err)
}

func (r *trustRepo) RevokeAll(ctx context.Context, identityID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM trusted_device WHERE identity_id = $1`, identityID)
	return mapErr(err)
}
