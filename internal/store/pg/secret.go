package pg

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type secretRepo struct {
	pool *pgxpool.Pool
}

// ====================== Timecode (TOTP) ======================

func (r *secretRepo) UpsertTimecode(ctx context.Context, identityID, secretEnc string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO timecode_secret (identity_id, secret_encrypted, enrolled_at, updated_at)
		VALUES ($1, $2, now(), now())
		ON CONFLICT (identity_id)
		DO UPDATE SET secret_encrypted = EXCLUDED.secret_encrypted,
					  last_counter = NULL,
					  updated_at = now()
	`, identityID, secretEnc)
	return mapErr(err)
}

func (r *secretRepo) GetTimecode(ctx context.Context, identityID string) (*repository.TimecodeSecret, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity_id, secret_encrypted, last_counter, enrolled_at, updated_at
		FROM timecode_secret WHERE identity_id = $1
	`, identityID)

	var s repository.TimecodeSecret
	if err := row.Scan(&s.IdentityID, &s.SecretEncrypted, &s.LastCounter, &s.EnrolledAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *secretRepo) SetTimecodeCounter(ctx context.Context, identityID string, counter int64) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE timecode_secret SET last_counter = $2, updated_at = now()
		WHERE identity_id = $1
	`, identityID, counter)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *secretRepo) DeleteTimecode(ctx context.Context, identityID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM timecode_secret WHERE identity_id = $1`, identityID)
	return mapErr(err)
}

// ====================== Possession (WebAuthn) ======================

func (r *secretRepo) InsertCredential(ctx context.Context, cred *repository.Credential) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO possession_credential (identity_id, credential_id, data, sign_count, enrolled_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, cred.IdentityID, cred.CredentialID, cred.Data, cred.SignCount, now)
	return mapErr(err)
}

func (r *secretRepo) ListCredentials(ctx context.Context, identityID string) ([]*repository.Credential, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT identity_id, credential_id, data, sign_count, enrolled_at, updated_at
		FROM possession_credential WHERE identity_id = $1
		ORDER BY enrolled_at
	`, identityID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*repository.Credential
	for rows.Next() {
		var c repository.Credential
		if err := rows.Scan(&c.IdentityID, &c.CredentialID, &c.Data, &c.SignCount, &c.EnrolledAt, &c.UpdatedAt); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (r *secretRepo) UpdateCredential(ctx context.Context, cred *repository.Credential) error {
	ct, err := r.pool.Exec(ctx, `
		UPDATE possession_credential
		SET data = $3, sign_count = $4, updated_at = now()
		WHERE identity_id = $1 AND credential_id = $2
	`, cred.IdentityID, cred.CredentialID, cred.Data, cred.SignCount)
	if err != nil {
		return mapErr(err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
