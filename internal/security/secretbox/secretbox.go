// Package secretbox cifra material secreto en reposo (AES-256-GCM).
//
// La clave de cifrado no es la clave maestra directa: se deriva con
// HKDF-SHA256 usando un rótulo de propósito, así una misma master key puede
// proteger dominios distintos (secretos TOTP, claves de firma) sin reuso.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	envMasterKey      = "SECRETBOX_MASTER_KEY"
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // base64(nonce)|base64(ciphertext)
)

// Box cifra y descifra con una clave derivada para un propósito fijo.
type Box struct {
	key []byte
}

// New deriva la clave de un propósito a partir de la master key (32 bytes).
func New(masterKey []byte, purpose string) (*Box, error) {
	if len(masterKey) != requiredKeyLength {
		return nil, fmt.Errorf("secretbox: master key debe ser de %d bytes, obtuvo %d", requiredKeyLength, len(masterKey))
	}
	if purpose == "" {
		return nil, errors.New("secretbox: purpose requerido")
	}
	key := make([]byte, requiredKeyLength)
	r := hkdf.New(sha256.New, masterKey, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("secretbox: hkdf: %w", err)
	}
	return &Box{key: key}, nil
}

// FromEnv crea un Box leyendo SECRETBOX_MASTER_KEY (base64) del entorno.
func FromEnv(purpose string) (*Box, error) {
	kb64 := strings.TrimSpace(os.Getenv(envMasterKey))
	if kb64 == "" {
		return nil, fmt.Errorf("secretbox: %s no seteada; genere una con: openssl rand -base64 32", envMasterKey)
	}
	k, err := base64.StdEncoding.DecodeString(kb64)
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode %s: %w", envMasterKey, err)
	}
	return New(k, purpose)
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plainText []byte) (string, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ct := aesgcm.Seal(nil, nonce, plainText, nil)
	return base64.StdEncoding.EncodeToString(nonce) + sep + base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt revierte Encrypt.
func (b *Box) Decrypt(enc string) ([]byte, error) {
	parts := strings.SplitN(enc, sep, 2)
	if len(parts) != 2 {
		return nil, errors.New("secretbox: formato inválido")
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode nonce: %w", err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("secretbox: decode ciphertext: %w", err)
	}
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, errors.New("secretbox: nonce inválido")
	}
	return aesgcm.Open(nil, nonce, ct, nil)
}
