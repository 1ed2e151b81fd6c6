package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskAddress(t *testing.T) {
	assert.Equal(t, "a…@e….com", MaskAddress("ada@example.com"))
	assert.Equal(t, "a…@e….com", MaskAddress("  ADA@Example.com "))
	assert.Equal(t, "***", MaskAddress("+54"))
	assert.Equal(t, "+5…67", MaskAddress("+5491122334567"))
	assert.Equal(t, "", MaskAddress(""))
}

func TestAtomicWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "f.txt")

	require.NoError(t, AtomicWriteFile(path, []byte("uno"), 0o600))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "uno", string(b))

	// sobreescritura reemplaza completo, nunca trunca parcial
	require.NoError(t, AtomicWriteFile(path, []byte("dos"), 0o600))
	b, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "dos", string(b))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// no quedan temporales colgando
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
