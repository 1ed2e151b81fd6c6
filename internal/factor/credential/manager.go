// Package credential implements the possession factor on top of
// WebAuthn ceremonies. Ceremony state lives in the challenge store so a
// restart (or another replica) can finish what this one began.
package credential

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
)

// Config define la relying party frente a los autenticadores.
type Config struct {
	RPDisplayName string
	RPID          string
	RPOrigins     []string
	CeremonyTTL   time.Duration
}

// Manager orquesta registro y aserción de credenciales de posesión.
type Manager struct {
	wa         *webauthn.WebAuthn
	challenges challenge.Store
	identities repository.IdentityRepository
	secrets    repository.SecretRepository
	ttl        time.Duration
}

func New(cfg Config, challenges challenge.Store, identities repository.IdentityRepository, secrets repository.SecretRepository) (*Manager, error) {
	wa, err := webauthn.New(&webauthn.Config{
		RPDisplayName: cfg.RPDisplayName,
		RPID:          cfg.RPID,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: webauthn.New: %w", err)
	}
	ttl := cfg.CeremonyTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Manager{wa: wa, challenges: challenges, identities: identities, secrets: secrets, ttl: ttl}, nil
}

// credentialData is the JSON blob persisted per credential.
type credentialData struct {
	CredentialID    []byte `json:"credential_id"`
	PublicKey       []byte `json:"public_key"`
	AttestationType string `json:"attestation_type"`
	AAGUID          []byte `json:"aaguid"`
	SignCount       uint32 `json:"sign_count"`
	CloneWarning    bool   `json:"clone_warning"`
	BackupEligible  bool   `json:"backup_eligible"`
	BackupState     bool   `json:"backup_state"`
}

// webauthnUser adapts an identity to the webauthn.User interface.
type webauthnUser struct {
	id          []byte
	name        string
	displayName string
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return u.id }
func (u *webauthnUser) WebAuthnName() string                       { return u.name }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.displayName }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }
func (u *webauthnUser) WebAuthnIcon() string                       { return "" }

func (m *Manager) loadUser(ctx context.Context, identityID string) (*webauthnUser, []*repository.Credential, error) {
	ident, err := m.identities.Get(ctx, identityID)
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, nil, factor.ErrUpstreamUnavailable
		}
		return nil, nil, err
	}
	stored, err := m.secrets.ListCredentials(ctx, identityID)
	if err != nil && !repository.IsNotFound(err) {
		if repository.IsUnavailable(err) {
			return nil, nil, factor.ErrUpstreamUnavailable
		}
		return nil, nil, err
	}
	var creds []webauthn.Credential
	for _, c := range stored {
		var data credentialData
		if err := json.Unmarshal(c.Data, &data); err != nil {
			logger.From(ctx).Warn("credential: blob ilegible, se omite",
				logger.IdentityID(identityID), logger.Err(err))
			continue
		}
		creds = append(creds, webauthn.Credential{
			ID:              data.CredentialID,
			PublicKey:       data.PublicKey,
			AttestationType: data.AttestationType,
			Authenticator: webauthn.Authenticator{
				AAGUID:       data.AAGUID,
				SignCount:    data.SignCount,
				CloneWarning: data.CloneWarning,
			},
			Flags: webauthn.CredentialFlags{
				BackupEligible: data.BackupEligible,
				BackupState:    data.BackupState,
			},
		})
	}
	name := ident.DisplayName
	if name == "" {
		name = ident.ID
	}
	return &webauthnUser{
		id:          []byte(ident.ID),
		name:        name,
		displayName: name,
		credentials: creds,
	}, stored, nil
}

// ====== Registro ======

// BeginRegistration starts a registration ceremony. The returned options go
// verbatim to the client; the challenge ID references the pending ceremony.
func (m *Manager) BeginRegistration(ctx context.Context, identityID string) (*protocol.CredentialCreation, string, error) {
	user, _, err := m.loadUser(ctx, identityID)
	if err != nil {
		return nil, "", err
	}

	options, session, err := m.wa.BeginRegistration(user)
	if err != nil {
		return nil, "", fmt.Errorf("credential: begin registration: %w", err)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, "", fmt.Errorf("credential: marshal session: %w", err)
	}

	ch := &challenge.Challenge{
		ID:          challenge.NewID(),
		IdentityID:  identityID,
		Kind:        challenge.KindPossessionRegistration,
		Payload:     payload,
		MaxAttempts: 1,
	}
	if _, err := m.challenges.Put(ctx, ch, m.ttl); err != nil {
		return nil, "", err
	}

	logger.From(ctx).Debug("credential: registro iniciado",
		logger.IdentityID(identityID), logger.ChallengeID(ch.ID))
	return options, ch.ID, nil
}

// CompleteRegistration consumes the ceremony and persists the new credential.
func (m *Manager) CompleteRegistration(ctx context.Context, challengeID string, response *protocol.ParsedCredentialCreationData) error {
	ch, err := m.challenges.Consume(ctx, challengeID)
	if err != nil {
		return mapChallengeErr(err)
	}
	if ch.Kind != challenge.KindPossessionRegistration {
		return factor.ErrInvalidProof
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(ch.Payload, &session); err != nil {
		return fmt.Errorf("credential: unmarshal session: %w", err)
	}

	user, _, err := m.loadUser(ctx, ch.IdentityID)
	if err != nil {
		return err
	}

	cred, err := m.wa.CreateCredential(user, session, response)
	if err != nil {
		logger.From(ctx).Info("credential: attestation rechazada",
			logger.IdentityID(ch.IdentityID), logger.Err(err))
		return factor.ErrInvalidProof
	}

	blob, err := json.Marshal(credentialData{
		CredentialID:    cred.ID,
		PublicKey:       cred.PublicKey,
		AttestationType: cred.AttestationType,
		AAGUID:          cred.Authenticator.AAGUID,
		SignCount:       cred.Authenticator.SignCount,
		CloneWarning:    cred.Authenticator.CloneWarning,
		BackupEligible:  cred.Flags.BackupEligible,
		BackupState:     cred.Flags.BackupState,
	})
	if err != nil {
		return fmt.Errorf("credential: marshal blob: %w", err)
	}

	rec := &repository.Credential{
		IdentityID:   ch.IdentityID,
		CredentialID: base64.RawURLEncoding.EncodeToString(cred.ID),
		Data:         blob,
		SignCount:    cred.Authenticator.SignCount,
	}
	if err := m.secrets.InsertCredential(ctx, rec); err != nil {
		if repository.IsUnavailable(err) {
			return factor.ErrUpstreamUnavailable
		}
		return err
	}
	if err := m.identities.AddFactor(ctx, ch.IdentityID, repository.FactorPossession); err != nil {
		return err
	}

	logger.From(ctx).Info("credential: registro completado",
		logger.IdentityID(ch.IdentityID), logger.Factor(string(factor.KindPossession)))
	return nil
}

// ====== Aserción ======

// BeginAssertion starts a login ceremony against the enrolled credentials.
func (m *Manager) BeginAssertion(ctx context.Context, identityID string) (*protocol.CredentialAssertion, string, error) {
	user, _, err := m.loadUser(ctx, identityID)
	if err != nil {
		return nil, "", err
	}
	if len(user.credentials) == 0 {
		return nil, "", factor.ErrNoCredentialEnrolled
	}

	options, session, err := m.wa.BeginLogin(user)
	if err != nil {
		return nil, "", fmt.Errorf("credential: begin login: %w", err)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return nil, "", fmt.Errorf("credential: marshal session: %w", err)
	}

	ch := &challenge.Challenge{
		ID:          challenge.NewID(),
		IdentityID:  identityID,
		Kind:        challenge.KindPossessionAssertion,
		Payload:     payload,
		MaxAttempts: 1,
	}
	if _, err := m.challenges.Put(ctx, ch, m.ttl); err != nil {
		return nil, "", err
	}
	return options, ch.ID, nil
}

// CompleteAssertion validates the assertion, enforces the sign counter and
// returns the verification outcome for the resolver.
func (m *Manager) CompleteAssertion(ctx context.Context, challengeID string, response *protocol.ParsedCredentialAssertionData) (*factor.Outcome, error) {
	ch, err := m.challenges.Consume(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeErr(err)
	}
	if ch.Kind != challenge.KindPossessionAssertion {
		return nil, factor.ErrInvalidProof
	}

	var session webauthn.SessionData
	if err := json.Unmarshal(ch.Payload, &session); err != nil {
		return nil, fmt.Errorf("credential: unmarshal session: %w", err)
	}

	user, stored, err := m.loadUser(ctx, ch.IdentityID)
	if err != nil {
		return nil, err
	}

	cred, err := m.wa.ValidateLogin(user, session, response)
	if err != nil {
		logger.From(ctx).Info("credential: aserción rechazada",
			logger.IdentityID(ch.IdentityID), logger.Err(err))
		return nil, factor.ErrInvalidProof
	}

	// Un contador que no avanza delata una credencial clonada. La librería
	// marca CloneWarning pero exime el par (0, 0); acá se chequea aparte
	// contra el contador guardado para que la regresión siempre rechace.
	prior := priorSignCount(user.credentials, cred.ID)
	received := response.Response.AuthenticatorData.Counter
	if cred.Authenticator.CloneWarning || signCounterRegressed(prior, received) {
		logger.From(ctx).Warn("credential: posible clon detectado",
			logger.IdentityID(ch.IdentityID),
			logger.Int("stored_sign_count", int(prior)),
			logger.Int("received_sign_count", int(received)))
		return nil, factor.ErrInvalidProof
	}

	if err := m.persistSignCount(ctx, ch.IdentityID, stored, cred); err != nil {
		return nil, err
	}

	return &factor.Outcome{
		IdentityID: ch.IdentityID,
		Kind:       factor.KindPossession,
		VerifiedAt: time.Now().UTC(),
	}, nil
}

// signCounterRegressed reporta si el contador de uso no superó al guardado.
// Los autenticadores sin contador reportan siempre 0; el par (0, 0) queda
// exento porque ahí el contador no aporta señal.
func signCounterRegressed(stored, received uint32) bool {
	if stored == 0 && received == 0 {
		return false
	}
	return received <= stored
}

func priorSignCount(creds []webauthn.Credential, id []byte) uint32 {
	for _, c := range creds {
		if bytes.Equal(c.ID, id) {
			return c.Authenticator.SignCount
		}
	}
	return 0
}

func (m *Manager) persistSignCount(ctx context.Context, identityID string, stored []*repository.Credential, cred *webauthn.Credential) error {
	id := base64.RawURLEncoding.EncodeToString(cred.ID)
	for _, c := range stored {
		if c.CredentialID != id {
			continue
		}
		var data credentialData
		if err := json.Unmarshal(c.Data, &data); err != nil {
			return fmt.Errorf("credential: unmarshal blob: %w", err)
		}
		data.SignCount = cred.Authenticator.SignCount
		data.CloneWarning = cred.Authenticator.CloneWarning
		blob, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("credential: marshal blob: %w", err)
		}
		c.Data = blob
		c.SignCount = cred.Authenticator.SignCount
		if err := m.secrets.UpdateCredential(ctx, c); err != nil {
			if repository.IsUnavailable(err) {
				return factor.ErrUpstreamUnavailable
			}
			return err
		}
		return nil
	}
	return factor.ErrInvalidProof
}

func mapChallengeErr(err error) error {
	switch {
	case errors.Is(err, challenge.ErrExpired),
		errors.Is(err, challenge.ErrNotFound),
		errors.Is(err, challenge.ErrAlreadyConsumed):
		// indistinguibles hacia afuera
		return factor.ErrInvalidProof
	case errors.Is(err, challenge.ErrTooManyAttempts):
		return factor.ErrRateLimited
	default:
		return err
	}
}
