// Package challenge provee el storage de challenges en vuelo (registro/assertion
// de credenciales, enrolamientos pendientes y códigos OTP de canal lateral).
//
// Un challenge es estado de corta vida, de un solo uso: se crea al iniciar un
// flujo de factor, se consume exactamente una vez al verificar, y expira solo.
// Consume es la única primitiva sensible a concurrencia del orquestador: debe
// ser un check-and-set atómico para que una prueba robada/duplicada no pueda
// usarse dos veces, ni siquiera desde dos conexiones en paralelo.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind identifica el tipo de challenge.
type Kind string

const (
	KindPossessionRegistration Kind = "possession-registration"
	KindPossessionAssertion    Kind = "possession-assertion"
	KindTimecodeEnrollment     Kind = "timecode-enrollment"
	KindSidechannelOTP         Kind = "sidechannel-otp"
)

// Challenge es el estado server-side de un flujo de factor en curso.
// Payload es opaco para el store: cada manager guarda ahí lo que necesita
// (session data de WebAuthn, secreto pendiente cifrado, hash del código OTP).
type Challenge struct {
	ID          string    `json:"id"`
	IdentityID  string    `json:"identity_id"`
	Kind        Kind      `json:"kind"`
	Payload     []byte    `json:"payload,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Attempts    int       `json:"attempts,omitempty"`
	MaxAttempts int       `json:"max_attempts,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}

// Expired indica si el challenge ya venció respecto a now.
func (c *Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// Errores del store. Para el cliente HTTP, NotFound y Expired se reportan
// igual que una prueba inválida (no filtrar existencia).
var (
	ErrNotFound        = errors.New("challenge: not found")
	ErrExpired         = errors.New("challenge: expired")
	ErrAlreadyConsumed = errors.New("challenge: already consumed")
	ErrTooManyAttempts = errors.New("challenge: too many attempts")
)

// Store define el storage de challenges con TTL.
//
// Consume es atómico: para un mismo id, a lo sumo una llamada obtiene el
// challenge; las demás reciben ErrAlreadyConsumed. Consume hace su propio
// chequeo de frescura, nunca confía en un Get previo.
type Store interface {
	// Put guarda el challenge con el TTL dado y retorna su id.
	// Si el challenge no trae ID, se le asigna uno.
	Put(ctx context.Context, ch *Challenge, ttl time.Duration) (string, error)

	// Get obtiene un challenge vivo. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, id string) (*Challenge, error)

	// Consume marca el challenge como consumido y lo retorna, exactamente una vez.
	// Retorna ErrAlreadyConsumed si otro caller lo consumió, ErrExpired si venció,
	// ErrNotFound si nunca existió (o ya fue barrido).
	Consume(ctx context.Context, id string) (*Challenge, error)

	// Fail registra un intento fallido y retorna los intentos acumulados.
	// Cuando se alcanza MaxAttempts el challenge queda invalidado y las llamadas
	// siguientes (incluido Consume) retornan ErrTooManyAttempts.
	Fail(ctx context.Context, id string) (int, error)

	// Delete invalida un challenge sin consumirlo (ej: reenvío de OTP).
	Delete(ctx context.Context, id string) error
}

// Sweeper es implementado por backends que requieren barrido proactivo de
// challenges vencidos (el backend de memoria; Redis expira por TTL nativo).
type Sweeper interface {
	Sweep(ctx context.Context) (removed int, err error)
}

// NewID genera un id de challenge.
func NewID() string { return uuid.NewString() }
