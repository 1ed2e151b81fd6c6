package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndVerify(t *testing.T) {
	keys, err := GenerateKeypair()
	require.NoError(t, err)

	iss := NewIssuer("https://mfa.example.com", "dashboard", keys, 10*time.Minute)

	sess, err := iss.Issue("idp-1", "fp-abc", []string{"possession"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), sess.ExpiresAt, 5*time.Second)

	claims, err := iss.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, "idp-1", claims["sub"])
	assert.Equal(t, "fp-abc", claims["fph"])

	amr, ok := claims["amr"].([]any)
	require.True(t, ok)
	require.Len(t, amr, 1)
	assert.Equal(t, "possession", amr[0])
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	keysA, err := GenerateKeypair()
	require.NoError(t, err)
	keysB, err := GenerateKeypair()
	require.NoError(t, err)

	issA := NewIssuer("https://mfa.example.com", "dashboard", keysA, time.Minute)
	issB := NewIssuer("https://mfa.example.com", "dashboard", keysB, time.Minute)

	sess, err := issA.Issue("idp-1", "fp", nil)
	require.NoError(t, err)

	_, err = issB.Verify(sess.Token)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	keys, err := GenerateKeypair()
	require.NoError(t, err)

	iss := NewIssuer("https://mfa.example.com", "dashboard", keys, time.Minute)
	iss.now = func() time.Time { return time.Now().Add(-time.Hour) }

	sess, err := iss.Issue("idp-1", "fp", nil)
	require.NoError(t, err)

	iss.now = time.Now
	_, err = iss.Verify(sess.Token)
	assert.Error(t, err)
}

func TestIssueRequiresIdentity(t *testing.T) {
	keys, err := GenerateKeypair()
	require.NoError(t, err)
	iss := NewIssuer("https://mfa.example.com", "dashboard", keys, time.Minute)

	_, err = iss.Issue("", "fp", nil)
	assert.Error(t, err)
}

func TestKeypairRoundTrip(t *testing.T) {
	keys, err := GenerateKeypair()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "session.key")
	require.NoError(t, keys.Save(path))

	loaded, err := LoadKeypair(path)
	require.NoError(t, err)
	assert.Equal(t, keys.KID, loaded.KID)
	assert.Equal(t, keys.Public, loaded.Public)
}
