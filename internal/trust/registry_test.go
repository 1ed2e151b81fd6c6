package trust

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/secondjohn/internal/store/memory"
)

func TestEstablishAndIsTrusted(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(memory.New().Trust(), 0)

	fp := Fingerprint("https://dash.example.com", "ua-firma")

	ok, err := reg.IsTrusted(ctx, "idp-1", fp)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, reg.Establish(ctx, "idp-1", fp))

	ok, err = reg.IsTrusted(ctx, "idp-1", fp)
	require.NoError(t, err)
	assert.True(t, ok)

	// otro fingerprint de la misma identidad no hereda confianza
	ok, err = reg.IsTrusted(ctx, "idp-1", Fingerprint("https://dash.example.com", "otra-firma"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTrustTTL(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(memory.New().Trust(), time.Hour)
	fp := Fingerprint("https://dash.example.com", "ua-firma")

	// establecido "hace dos horas": con TTL de una hora ya venció
	reg.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	require.NoError(t, reg.Establish(ctx, "idp-1", fp))

	reg.now = time.Now
	ok, err := reg.IsTrusted(ctx, "idp-1", fp)
	require.NoError(t, err)
	assert.False(t, ok)

	// refrescado ahora vuelve a estar vivo
	require.NoError(t, reg.Establish(ctx, "idp-1", fp))
	ok, err = reg.IsTrusted(ctx, "idp-1", fp)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRevokeAll(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry(memory.New().Trust(), 0)

	fpA := Fingerprint("https://dash.example.com", "firma-a")
	fpB := Fingerprint("https://dash.example.com", "firma-b")
	require.NoError(t, reg.Establish(ctx, "idp-1", fpA))
	require.NoError(t, reg.Establish(ctx, "idp-1", fpB))
	require.NoError(t, reg.Establish(ctx, "idp-2", fpA))

	require.NoError(t, reg.RevokeAll(ctx, "idp-1"))

	for _, fp := range []string{fpA, fpB} {
		ok, err := reg.IsTrusted(ctx, "idp-1", fp)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	// la revocación es por identidad, no global
	ok, err := reg.IsTrusted(ctx, "idp-2", fpA)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFingerprintIsStableAndOpaque(t *testing.T) {
	a := Fingerprint("https://dash.example.com", "ua-firma")
	b := Fingerprint("https://dash.example.com", "ua-firma")
	c := Fingerprint("https://otro.example.com", "ua-firma")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex de SHA-256
	assert.NotContains(t, a, "ua-firma")
}
