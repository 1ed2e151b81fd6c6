// Package memory implementa el vault in-process (desarrollo y tests).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
)

// Store implementa store.Store con mapas protegidos por un mutex.
type Store struct {
	mu          sync.RWMutex
	identities  map[string]*repository.Identity
	timecodes   map[string]*repository.TimecodeSecret
	credentials map[string][]*repository.Credential // identityID -> creds
	trusted     map[string]*repository.TrustRecord  // identityID|fingerprint
}

func New() *Store {
	return &Store{
		identities:  make(map[string]*repository.Identity),
		timecodes:   make(map[string]*repository.TimecodeSecret),
		credentials: make(map[string][]*repository.Credential),
		trusted:     make(map[string]*repository.TrustRecord),
	}
}

func (s *Store) Identities() repository.IdentityRepository { return (*identityRepo)(s) }
func (s *Store) Secrets() repository.SecretRepository      { return (*secretRepo)(s) }
func (s *Store) Trust() repository.TrustRepository         { return (*trustRepo)(s) }

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

func trustKey(identityID, fingerprint string) string { return identityID + "|" + fingerprint }

// ====================== identities ======================

type identityRepo Store

func (r *identityRepo) Get(ctx context.Context, id string) (*repository.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ident, ok := r.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *ident
	cp.Factors = append([]repository.FactorKind(nil), ident.Factors...)
	return &cp, nil
}

func (r *identityRepo) Create(ctx context.Context, id, displayName string) (*repository.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.identities[id]; ok {
		return nil, repository.ErrConflict
	}
	now := time.Now().UTC()
	ident := &repository.Identity{ID: id, DisplayName: displayName, CreatedAt: now, UpdatedAt: now}
	r.identities[id] = ident
	cp := *ident
	return &cp, nil
}

func (r *identityRepo) AddFactor(ctx context.Context, id string, kind repository.FactorKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	if !ident.HasFactor(kind) {
		ident.Factors = append(ident.Factors, kind)
		ident.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *identityRepo) RemoveFactor(ctx context.Context, id string, kind repository.FactorKind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ident, ok := r.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	out := ident.Factors[:0]
	for _, f := range ident.Factors {
		if f != kind {
			out = append(out, f)
		}
	}
	ident.Factors = out
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

// ====================== secrets ======================

type secretRepo Store

func (r *secretRepo) UpsertTimecode(ctx context.Context, identityID, secretEnc string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.timecodes[identityID] = &repository.TimecodeSecret{
		IdentityID:      identityID,
		SecretEncrypted: secretEnc,
		EnrolledAt:      now,
		UpdatedAt:       now,
	}
	return nil
}

func (r *secretRepo) GetTimecode(ctx context.Context, identityID string) (*repository.TimecodeSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.timecodes[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	if s.LastCounter != nil {
		c := *s.LastCounter
		cp.LastCounter = &c
	}
	return &cp, nil
}

func (r *secretRepo) SetTimecodeCounter(ctx context.Context, identityID string, counter int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.timecodes[identityID]
	if !ok {
		return repository.ErrNotFound
	}
	s.LastCounter = &counter
	s.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *secretRepo) DeleteTimecode(ctx context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timecodes, identityID)
	return nil
}

func (r *secretRepo) InsertCredential(ctx context.Context, cred *repository.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	cp := *cred
	cp.EnrolledAt = now
	cp.UpdatedAt = now
	r.credentials[cred.IdentityID] = append(r.credentials[cred.IdentityID], &cp)
	return nil
}

func (r *secretRepo) ListCredentials(ctx context.Context, identityID string) ([]*repository.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	creds := r.credentials[identityID]
	out := make([]*repository.Credential, 0, len(creds))
	for _, c := range creds {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *secretRepo) UpdateCredential(ctx context.Context, cred *repository.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.credentials[cred.IdentityID] {
		if c.CredentialID == cred.CredentialID {
			c.Data = append([]byte(nil), cred.Data...)
			c.SignCount = cred.SignCount
			c.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return repository.ErrNotFound
}

// ====================== trusted devices ======================

type trustRepo Store

func (r *trustRepo) Upsert(ctx context.Context, identityID, fingerprint string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	k := trustKey(identityID, fingerprint)
	if t, ok := r.trusted[k]; ok {
		t.LastSeenAt = now
		t.ExpiresAt = expiresAt
		return nil
	}
	r.trusted[k] = &repository.TrustRecord{
		IdentityID:    identityID,
		Fingerprint:   fingerprint,
		EstablishedAt: now,
		LastSeenAt:    now,
		ExpiresAt:     expiresAt,
	}
	return nil
}

func (r *trustRepo) Get(ctx context.Context, identityID, fingerprint string) (*repository.TrustRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.trusted[trustKey(identityID, fingerprint)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(time.Now()) {
		return nil, repository.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *trustRepo) Touch(ctx context.Context, identityID, fingerprint string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trusted[trustKey(identityID, fingerprint)]; ok {
		t.LastSeenAt = at
	}
	return nil
}

func (r *trustRepo) RevokeAll(ctx context.Context, identityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.trusted {
		if t.IdentityID == identityID {
			delete(r.trusted, k)
		}
	}
	return nil
}
