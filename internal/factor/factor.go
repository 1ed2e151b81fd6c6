// Package factor define el contrato común de los verificadores de segundo
// factor. Cada mecanismo (posesión, código temporal, canal lateral) vive en
// su subpaquete; este paquete sólo aporta los errores y el resultado
// compartido que el resolver consume.
package factor

import (
	"errors"
	"time"
)

// ====== Errores de verificación ======

var (
	// ErrInvalidProof: la prueba presentada no corresponde al desafío.
	// Nunca se distingue del desafío expirado de cara al cliente.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrRateLimited: demasiados intentos o reenvíos para esta identidad.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoCredentialEnrolled: la identidad no tiene credencial del tipo pedido.
	ErrNoCredentialEnrolled = errors.New("no credential enrolled")

	// ErrUpstreamUnavailable: un colaborador externo (IdP, SMTP) no responde.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ====== Resultado ======

// Kind identifica el mecanismo que produjo una verificación.
type Kind string

const (
	KindPossession  Kind = "possession"
	KindTimecode    Kind = "timecode"
	KindSidechannel Kind = "sidechannel"
)

// Outcome es el resultado de una verificación exitosa. El resolver lo usa
// para poblar el claim amr y decidir la confianza del dispositivo.
type Outcome struct {
	IdentityID string
	Kind       Kind
	VerifiedAt time.Time
}
