package resolver

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/secondjohn/internal/cache"
	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/dispatch"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/factor/credential"
	"github.com/dropDatabas3/secondjohn/internal/factor/sidechannel"
	"github.com/dropDatabas3/secondjohn/internal/factor/timecode"
	"github.com/dropDatabas3/secondjohn/internal/security/secretbox"
	"github.com/dropDatabas3/secondjohn/internal/security/totp"
	"github.com/dropDatabas3/secondjohn/internal/session"
	"github.com/dropDatabas3/secondjohn/internal/store/memory"
	"github.com/dropDatabas3/secondjohn/internal/trust"
)

// fakeLookup simula al IdP externo.
type fakeLookup struct {
	mu    sync.Mutex
	known map[string]*ExternalIdentity
	down  bool
	calls int
}

func (f *fakeLookup) Lookup(ctx context.Context, identityID string) (*ExternalIdentity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.down {
		return nil, errors.New("idp timeout")
	}
	ext, ok := f.known[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ext, nil
}

type capturingSender struct {
	mu   sync.Mutex
	last dispatch.Delivery
}

func (s *capturingSender) Deliver(ctx context.Context, d dispatch.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = d
	return nil
}

type fixture struct {
	resolver *Resolver
	lookup   *fakeLookup
	vault    *memory.Store
	sender   *capturingSender
	issuer   *session.Issuer
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	vault := memory.New()
	challenges := challenge.NewMemory()
	box, err := secretbox.New(bytes.Repeat([]byte{0x07}, 32), "timecode-secret")
	require.NoError(t, err)

	lookup := &fakeLookup{known: map[string]*ExternalIdentity{
		"idp-1": {ID: "idp-1", DisplayName: "Ada", Addresses: map[string]string{"mail": "ada@example.com"}},
	}}

	sender := &capturingSender{}
	reg := dispatch.NewRegistry()
	reg.Register(dispatch.ChannelMail, sender)

	creds, err := credential.New(credential.Config{
		RPDisplayName: "SecondJohn", RPID: "localhost", RPOrigins: []string{"http://localhost"},
	}, challenges, vault.Identities(), vault.Secrets())
	require.NoError(t, err)

	codes := timecode.New(timecode.Config{Issuer: "SecondJohn"}, challenges, vault.Identities(), vault.Secrets(), box)
	sc := sidechannel.New(sidechannel.Config{Cooldown: time.Nanosecond}, challenges, cache.New(cache.Config{Driver: "memory"}), NewDirectory(lookup), reg)

	keys, err := session.GenerateKeypair()
	require.NoError(t, err)
	issuer := session.NewIssuer("https://mfa.example.com", "dashboard", keys, 10*time.Minute)

	r := New(cfg, lookup, vault.Identities(), trust.NewRegistry(vault.Trust(), 0),
		challenges, creds, codes, sc, issuer, cache.New(cache.Config{Driver: "memory"}))

	return &fixture{resolver: r, lookup: lookup, vault: vault, sender: sender, issuer: issuer}
}

func TestResolveCreatesIdentityOnFirstLogin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	res, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)
	assert.Empty(t, res.EnrolledFactors)

	ident, err := f.vault.Identities().Get(ctx, "idp-1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", ident.DisplayName)
}

func TestResolveUnknownIdentity(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.resolver.Resolve(context.Background(), "fantasma", "fp-1")
	assert.ErrorIs(t, err, ErrUnknownIdentity)
}

func TestResolveStates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	// sin factores: NEW
	res, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StateNew, res.State)

	// con factor pero sin trust record: MFA_REQUIRED
	require.NoError(t, f.vault.Identities().AddFactor(ctx, "idp-1", repository.FactorTimecode))
	res, err = f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StateMFARequired, res.State)
	assert.Contains(t, res.EnrolledFactors, repository.FactorTimecode)

	// con trust record vivo en ese fingerprint: TRUSTED
	tr := trust.NewRegistry(f.vault.Trust(), 0)
	require.NoError(t, tr.Establish(ctx, "idp-1", "fp-1"))
	res, err = f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StateTrusted, res.State)

	// otro fingerprint sigue exigiendo MFA
	res, err = f.resolver.Resolve(ctx, "idp-1", "fp-2")
	require.NoError(t, err)
	assert.Equal(t, StateMFARequired, res.State)
}

func TestResolveLookupFailureDefaultsToMFARequired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})
	f.lookup.down = true

	res, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StateMFARequired, res.State)
	assert.True(t, res.Degraded)
}

func TestResolveLookupFailureExplicitFailOpen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{OnLookupFailure: OnLookupFailureTrusted})
	f.lookup.down = true

	res, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	assert.Equal(t, StateTrusted, res.State)
	assert.True(t, res.Degraded)
}

func TestResolveLookupCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{LookupCacheTTL: time.Minute})

	for i := 0; i < 3; i++ {
		_, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.lookup.calls)
}

func TestSidechannelFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	// primer login crea la identidad
	_, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)

	begin, err := f.resolver.Begin(ctx, BeginRequest{
		IdentityID: "idp-1",
		Factor:     factor.KindSidechannel,
		Channel:    dispatch.ChannelMail,
	})
	require.NoError(t, err)
	require.NotEmpty(t, begin.ChallengeID)
	require.NotEmpty(t, f.sender.last.Code)

	dev := Device{Origin: "https://dash.example.com", ClientSignature: "ua-firma"}
	out, err := f.resolver.Complete(ctx, begin.ChallengeID, Proof{Code: f.sender.last.Code}, dev, true)
	require.NoError(t, err)
	assert.Equal(t, factor.KindSidechannel, out.Outcome.Kind)
	require.NotNil(t, out.Session)

	claims, err := f.issuer.Verify(out.Session.Token)
	require.NoError(t, err)
	assert.Equal(t, "idp-1", claims["sub"])
	assert.Equal(t, trust.Fingerprint(dev.Origin, dev.ClientSignature), claims["fph"])

	// la verificación enroló el factor y remember=true estableció confianza
	res, err := f.resolver.Resolve(ctx, "idp-1", trust.Fingerprint(dev.Origin, dev.ClientSignature))
	require.NoError(t, err)
	assert.Equal(t, StateTrusted, res.State)
	assert.Contains(t, res.EnrolledFactors, repository.FactorSidechannel)

	// la prueba consumida no puede reusarse
	_, err = f.resolver.Complete(ctx, begin.ChallengeID, Proof{Code: f.sender.last.Code}, dev, false)
	assert.ErrorIs(t, err, factor.ErrInvalidProof)
}

func TestTimecodeEnrollmentFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)

	begin, err := f.resolver.Begin(ctx, BeginRequest{IdentityID: "idp-1", Factor: factor.KindTimecode})
	require.NoError(t, err)
	require.NotNil(t, begin.Timecode)

	raw, err := totp.DecodeSecret(begin.Timecode.SecretB32)
	require.NoError(t, err)
	code := totp.Generate(raw, totp.Counter(time.Now()))

	dev := Device{Origin: "https://dash.example.com", ClientSignature: "ua-firma"}
	out, err := f.resolver.Complete(ctx, begin.ChallengeID, Proof{Code: code}, dev, true)
	require.NoError(t, err)
	require.NotNil(t, out.Session)

	// el enrolamiento quedó activo y el dispositivo es confiable
	res, err := f.resolver.Resolve(ctx, "idp-1", trust.Fingerprint(dev.Origin, dev.ClientSignature))
	require.NoError(t, err)
	assert.Equal(t, StateTrusted, res.State)
	assert.Contains(t, res.EnrolledFactors, repository.FactorTimecode)

	// emisión directa por dispositivo confiable
	sess, err := f.resolver.IssueTrusted(ctx, "idp-1", dev)
	require.NoError(t, err)
	claims, err := f.issuer.Verify(sess.Token)
	require.NoError(t, err)
	amr := claims["amr"].([]any)
	assert.Equal(t, "trusted-device", amr[0])
}

func TestIssueTrustedRejectsUntrustedDevice(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, f.vault.Identities().AddFactor(ctx, "idp-1", repository.FactorTimecode))

	_, err = f.resolver.IssueTrusted(ctx, "idp-1", Device{Origin: "https://dash.example.com", ClientSignature: "nuevo"})
	assert.ErrorIs(t, err, ErrNotTrusted)
}

func TestRevokeAllForcesMFA(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)
	require.NoError(t, f.vault.Identities().AddFactor(ctx, "idp-1", repository.FactorPossession))

	tr := trust.NewRegistry(f.vault.Trust(), 0)
	require.NoError(t, tr.Establish(ctx, "idp-1", "fp-1"))
	require.NoError(t, tr.Establish(ctx, "idp-1", "fp-2"))

	require.NoError(t, f.resolver.RevokeAll(ctx, "idp-1"))

	for _, fp := range []string{"fp-1", "fp-2"} {
		res, err := f.resolver.Resolve(ctx, "idp-1", fp)
		require.NoError(t, err)
		assert.Equal(t, StateMFARequired, res.State)
	}
}

func TestBeginUnknownFactor(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.resolver.Begin(context.Background(), BeginRequest{IdentityID: "idp-1", Factor: "voz"})
	assert.ErrorIs(t, err, ErrUnknownFactor)
}

func TestBeginPossessionAssertWithoutCredential(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Config{})

	_, err := f.resolver.Resolve(ctx, "idp-1", "fp-1")
	require.NoError(t, err)

	_, err = f.resolver.Begin(ctx, BeginRequest{IdentityID: "idp-1", Factor: factor.KindPossession})
	assert.ErrorIs(t, err, factor.ErrNoCredentialEnrolled)
}
