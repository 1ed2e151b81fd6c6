// Package pg implementa el vault sobre PostgreSQL (pgx).
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	pgmigrations "github.com/dropDatabas3/secondjohn/migrations/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implementa store.Store sobre un pool pgx.
type Store struct {
	pool *pgxpool.Pool
}

// New abre el pool y verifica la conexión.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pg: pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Identities() repository.IdentityRepository { return &identityRepo{pool: s.pool} }
func (s *Store) Secrets() repository.SecretRepository      { return &secretRepo{pool: s.pool} }
func (s *Store) Trust() repository.TrustRepository         { return &trustRepo{pool: s.pool} }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }
func (s *Store) Close()                         { s.pool.Close() }

// Migrate aplica las migraciones embebidas (orden lexicográfico de los .up.sql).
func (s *Store) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(pgmigrations.FS, ".")
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := fs.ReadFile(pgmigrations.FS, f)
		if err != nil {
			return err
		}
		if _, err := s.pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("pg: apply %s: %w", f, err)
		}
	}
	return nil
}

// mapErr traduce errores de pgx a los sentinelas del dominio.
// Errores de conexión se reportan como vault no disponible: la capa de
// emisión de sesión aborta ante eso, nunca emite best-effort.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" { // unique_violation
			return repository.ErrConflict
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %v", repository.ErrUnavailable, err)
	}
	return err
}
