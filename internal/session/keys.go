package session

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/dropDatabas3/secondjohn/internal/util"
)

// Keypair es la clave de firma activa. El KID se deriva de la pública, así
// un verificador puede seleccionar la clave correcta por header.
type Keypair struct {
	KID     string
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
}

func kidFor(pub ed25519.PublicKey) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:8])
}

// GenerateKeypair crea una clave Ed25519 nueva.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("session: generate key: %w", err)
	}
	return &Keypair{KID: kidFor(pub), Private: priv, Public: pub}, nil
}

// LoadKeypair lee la seed (base64) desde un archivo.
func LoadKeypair(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read key file: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("session: decode key file: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("session: seed debe ser de %d bytes, obtuvo %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Keypair{KID: kidFor(pub), Private: priv, Public: pub}, nil
}

// Save persiste la seed (base64) con permisos restrictivos. Escritura
// atómica: una clave a medio escribir invalida todas las sesiones.
func (k *Keypair) Save(path string) error {
	seed := k.Private.Seed()
	enc := base64.StdEncoding.EncodeToString(seed) + "\n"
	if err := util.AtomicWriteFile(path, []byte(enc), 0o600); err != nil {
		return fmt.Errorf("session: write key file: %w", err)
	}
	return nil
}
