package secretbox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte { return bytes.Repeat([]byte{0x5a}, 32) }

func TestEncryptDecryptRoundTrip(t *testing.T) {
	box, err := New(testKey(), "timecode-secret")
	require.NoError(t, err)

	plain := []byte("JBSWY3DPEHPK3PXP")
	enc, err := box.Encrypt(plain)
	require.NoError(t, err)
	assert.NotContains(t, enc, string(plain))

	got, err := box.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}

func TestPurposeSeparation(t *testing.T) {
	a, err := New(testKey(), "timecode-secret")
	require.NoError(t, err)
	b, err := New(testKey(), "otro-proposito")
	require.NoError(t, err)

	enc, err := a.Encrypt([]byte("dato"))
	require.NoError(t, err)

	// misma master key, propósito distinto: la clave derivada difiere
	_, err = b.Decrypt(enc)
	assert.Error(t, err)
}

func TestDecryptRejectsTampering(t *testing.T) {
	box, err := New(testKey(), "timecode-secret")
	require.NoError(t, err)

	enc, err := box.Encrypt([]byte("dato"))
	require.NoError(t, err)

	tampered := enc[:len(enc)-2] + "AA"
	_, err = box.Decrypt(tampered)
	assert.Error(t, err)

	_, err = box.Decrypt("sin-separador")
	assert.Error(t, err)
}

func TestNewValidatesInput(t *testing.T) {
	_, err := New([]byte("corta"), "p")
	assert.Error(t, err)

	_, err = New(testKey(), "")
	assert.Error(t, err)
}
