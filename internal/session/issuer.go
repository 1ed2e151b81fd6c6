// Package session emite las sesiones firmadas que consume el dashboard.
//
// El token es un JWT EdDSA con claims estándar más dos propios: fph (hash
// del device fingerprint sobre el que se resolvió la sesión) y amr (los
// mecanismos que la respaldan). Solo el resolver invoca al issuer, y solo
// tras una resolución TRUSTED o una verificación de factor exitosa.
package session

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

const defaultTTL = 15 * time.Minute

// SignedSession es el resultado de Issue.
type SignedSession struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Issuer firma sesiones con la clave activa.
type Issuer struct {
	iss  string
	aud  string
	keys *Keypair
	ttl  time.Duration

	now func() time.Time
}

func NewIssuer(iss, aud string, keys *Keypair, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Issuer{iss: iss, aud: aud, keys: keys, ttl: ttl, now: time.Now}
}

// Issue firma una sesión para la identidad sobre el fingerprint dado.
// amr lista los mecanismos de autenticación que la respaldan
// (ej: ["trusted-device"] o ["possession"]).
func (i *Issuer) Issue(identityID, fingerprint string, amr []string) (*SignedSession, error) {
	if identityID == "" {
		return nil, errors.New("session: identityID requerido")
	}
	now := i.now().UTC()
	exp := now.Add(i.ttl)

	claims := jwtv5.MapClaims{
		"iss": i.iss,
		"sub": identityID,
		"aud": i.aud,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": exp.Unix(),
		"fph": fingerprint,
		"amr": amr,
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodEdDSA, claims)
	tk.Header["kid"] = i.keys.KID
	tk.Header["typ"] = "JWT"

	signed, err := tk.SignedString(i.keys.Private)
	if err != nil {
		return nil, fmt.Errorf("session: sign: %w", err)
	}
	return &SignedSession{Token: signed, ExpiresAt: exp}, nil
}

// Keyfunc permite a un verificador validar tokens emitidos por este issuer.
func (i *Issuer) Keyfunc() jwtv5.Keyfunc {
	return func(t *jwtv5.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != "" && kid != i.keys.KID {
			return nil, fmt.Errorf("session: kid desconocido %q", kid)
		}
		return ed25519.PublicKey(i.keys.Public), nil
	}
}

// Verify parsea y valida un token emitido por este issuer. Retorna los
// claims si la firma, el issuer y la ventana temporal son válidos.
func (i *Issuer) Verify(tokenStr string) (jwtv5.MapClaims, error) {
	tk, err := jwtv5.Parse(tokenStr, i.Keyfunc(),
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodEdDSA.Alg()}),
		jwtv5.WithIssuer(i.iss),
		jwtv5.WithAudience(i.aud),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := tk.Claims.(jwtv5.MapClaims)
	if !ok || !tk.Valid {
		return nil, errors.New("session: token inválido")
	}
	return claims, nil
}
