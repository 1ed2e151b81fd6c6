// Package resolver es el orquestador: dado un login externo ya autenticado
// decide {new, trusted, mfa_required}, dirige el flujo hacia el manager del
// factor elegido y, con la verificación a favor, registra la confianza del
// dispositivo y dispara la emisión de sesión.
package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/secondjohn/internal/audit"
	"github.com/dropDatabas3/secondjohn/internal/cache"
	"github.com/dropDatabas3/secondjohn/internal/challenge"
	"github.com/dropDatabas3/secondjohn/internal/domain/repository"
	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/factor/credential"
	"github.com/dropDatabas3/secondjohn/internal/factor/sidechannel"
	"github.com/dropDatabas3/secondjohn/internal/factor/timecode"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/session"
	"github.com/dropDatabas3/secondjohn/internal/trust"
)

// ====== Estado resuelto ======

// State es el estado de autenticación de un login externo. Una variante
// etiquetada: los call sites comparan contra las constantes, nunca contra
// strings sueltos.
type State string

const (
	// StateNew: la identidad no tiene factores enrolados.
	StateNew State = "new"
	// StateTrusted: hay factor enrolado y el dispositivo tiene confianza viva.
	StateTrusted State = "trusted"
	// StateMFARequired: hay factor enrolado y este dispositivo no es confiable.
	StateMFARequired State = "mfa_required"
)

// Resolution es la respuesta de Resolve.
type Resolution struct {
	State           State                   `json:"state"`
	IdentityID      string                  `json:"identity_id"`
	EnrolledFactors []repository.FactorKind `json:"enrolled_factors"`
	// Degraded marca que el lookup externo falló y el estado salió de la
	// política configurada, no de una respuesta del IdP.
	Degraded bool `json:"degraded,omitempty"`
}

// ====== Colaborador de lookup ======

// ExternalIdentity es lo que el IdP externo sabe de la identidad.
type ExternalIdentity struct {
	ID          string
	DisplayName string
	// Addresses mapea canal de despacho -> destino (ej: "mail" -> email).
	Addresses map[string]string
}

// Lookup consulta la existencia de la identidad en el IdP externo.
// Retorna repository.ErrNotFound si el IdP no la conoce.
type Lookup interface {
	Lookup(ctx context.Context, identityID string) (*ExternalIdentity, error)
}

// Políticas ante lookup inalcanzable. Nunca un fallback implícito.
const (
	OnLookupFailureMFARequired = "mfa_required"
	OnLookupFailureTrusted     = "trusted"
)

// ====== Errores propios ======

var (
	// ErrUnknownIdentity: el IdP externo no conoce la identidad.
	ErrUnknownIdentity = errors.New("resolver: unknown identity")
	// ErrNotTrusted: se pidió una sesión sin confianza establecida.
	ErrNotTrusted = errors.New("resolver: device not trusted")
	// ErrUnknownFactor: se pidió un factor que este servicio no maneja.
	ErrUnknownFactor = errors.New("resolver: unknown factor")
)

// ====== Resolver ======

// Config gobierna la política del resolver.
type Config struct {
	// OnLookupFailure: "mfa_required" (default) o "trusted". Con "trusted"
	// el servicio queda abierto ante caída del IdP; solo para despliegues
	// que lo acepten explícitamente, y cada uso queda logueado.
	OnLookupFailure string
	// LookupCacheTTL acota el cacheo del lookup externo (0 = sin cache).
	LookupCacheTTL time.Duration
}

type Resolver struct {
	cfg Config

	lookup      Lookup
	identities  repository.IdentityRepository
	trust       *trust.Registry
	challenges  challenge.Store
	credentials *credential.Manager
	timecodes   *timecode.Manager
	sidechannel *sidechannel.Manager
	sessions    *session.Issuer

	lookupCache cache.Client
	flight      singleflight.Group
}

func New(
	cfg Config,
	lookup Lookup,
	identities repository.IdentityRepository,
	trustReg *trust.Registry,
	challenges challenge.Store,
	credentials *credential.Manager,
	timecodes *timecode.Manager,
	sidechannels *sidechannel.Manager,
	sessions *session.Issuer,
	lookupCache cache.Client,
) *Resolver {
	if cfg.OnLookupFailure == "" {
		cfg.OnLookupFailure = OnLookupFailureMFARequired
	}
	return &Resolver{
		cfg:         cfg,
		lookup:      lookup,
		identities:  identities,
		trust:       trustReg,
		challenges:  challenges,
		credentials: credentials,
		timecodes:   timecodes,
		sidechannel: sidechannels,
		sessions:    sessions,
		lookupCache: lookupCache,
	}
}

// lookupExternal consulta al IdP colapsando llamadas concurrentes por
// identidad y cacheando el resultado un rato corto.
func (r *Resolver) lookupExternal(ctx context.Context, identityID string) (*ExternalIdentity, error) {
	key := "resolver:lookup:" + identityID
	if r.cfg.LookupCacheTTL > 0 {
		if raw, err := r.lookupCache.Get(ctx, key); err == nil {
			var ext ExternalIdentity
			if json.Unmarshal([]byte(raw), &ext) == nil {
				return &ext, nil
			}
		}
	}

	v, err, _ := r.flight.Do(identityID, func() (any, error) {
		return r.lookup.Lookup(ctx, identityID)
	})
	if err != nil {
		return nil, err
	}
	ext := v.(*ExternalIdentity)

	if r.cfg.LookupCacheTTL > 0 {
		if raw, err := json.Marshal(ext); err == nil {
			_ = r.lookupCache.Set(ctx, key, string(raw), r.cfg.LookupCacheTTL)
		}
	}
	return ext, nil
}

// Directory adapta el Lookup externo al contrato de dirección que consume
// el manager de canal lateral.
type Directory struct {
	lookup Lookup
}

func NewDirectory(lookup Lookup) *Directory { return &Directory{lookup: lookup} }

func (d *Directory) Address(ctx context.Context, identityID, channel string) (string, error) {
	ext, err := d.lookup.Lookup(ctx, identityID)
	if err != nil {
		return "", err
	}
	addr, ok := ext.Addresses[channel]
	if !ok || addr == "" {
		return "", repository.ErrNotFound
	}
	return addr, nil
}

// Resolve decide el estado de autenticación para (identidad, fingerprint).
// Crea el espejo local de la identidad en su primer login externo.
func (r *Resolver) Resolve(ctx context.Context, identityID, fingerprint string) (*Resolution, error) {
	log := logger.From(ctx).With(
		logger.Layer("resolver"), logger.Op("resolve"),
		logger.IdentityID(identityID), logger.Fingerprint(fingerprint))

	ext, err := r.lookupExternal(ctx, identityID)
	switch {
	case err == nil:
		// sigue abajo
	case repository.IsNotFound(err):
		return nil, ErrUnknownIdentity
	default:
		return r.resolveDegraded(ctx, identityID, err)
	}

	ident, err := r.identities.Get(ctx, identityID)
	if repository.IsNotFound(err) {
		ident, err = r.identities.Create(ctx, identityID, ext.DisplayName)
		if repository.IsConflict(err) {
			// otro request ganó la carrera del primer login
			ident, err = r.identities.Get(ctx, identityID)
		}
		if err == nil {
			log.Info("identidad local creada en primer login")
		}
	}
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, factor.ErrUpstreamUnavailable
		}
		return nil, err
	}

	if len(ident.Factors) == 0 {
		log.Debug("resuelto", logger.State(string(StateNew)))
		return &Resolution{State: StateNew, IdentityID: identityID, EnrolledFactors: []repository.FactorKind{}}, nil
	}

	trusted, err := r.trust.IsTrusted(ctx, identityID, fingerprint)
	if err != nil {
		if repository.IsUnavailable(err) {
			return nil, factor.ErrUpstreamUnavailable
		}
		return nil, err
	}

	state := StateMFARequired
	if trusted {
		state = StateTrusted
	}
	log.Debug("resuelto", logger.State(string(state)))
	return &Resolution{State: state, IdentityID: identityID, EnrolledFactors: ident.Factors}, nil
}

// resolveDegraded aplica la política configurada cuando el IdP no responde.
func (r *Resolver) resolveDegraded(ctx context.Context, identityID string, cause error) (*Resolution, error) {
	switch r.cfg.OnLookupFailure {
	case OnLookupFailureTrusted:
		// fail-open explícito por configuración; queda registrado fuerte
		logger.From(ctx).Warn("resolver: IdP inalcanzable, FAIL-OPEN a trusted por política explícita",
			logger.IdentityID(identityID), logger.Err(cause))
		return &Resolution{State: StateTrusted, IdentityID: identityID, Degraded: true}, nil
	default:
		logger.From(ctx).Warn("resolver: IdP inalcanzable, se exige MFA por política",
			logger.IdentityID(identityID), logger.Err(cause))
		return &Resolution{State: StateMFARequired, IdentityID: identityID, Degraded: true}, nil
	}
}

// ====== Begin / Complete ======

// BeginRequest elige el flujo de factor a iniciar.
type BeginRequest struct {
	IdentityID string
	Factor     factor.Kind
	// Enroll distingue registro de verificación para el factor de posesión
	// y es implícito para timecode (enroll/begin) y sidechannel (send).
	Enroll  bool
	Channel string // solo sidechannel
}

// BeginResult devuelve el challenge y el payload específico del factor.
type BeginResult struct {
	ChallengeID string `json:"challenge_id"`
	// Possession: opciones de la ceremonia WebAuthn para el cliente.
	Possession any `json:"possession,omitempty"`
	// Timecode: secreto en base32 + URL otpauth (solo enrolamiento).
	Timecode *timecode.Enrollment `json:"timecode,omitempty"`
	// Sidechannel: canal y cooldown informativo.
	Sidechannel *sidechannel.SendResult `json:"sidechannel,omitempty"`
}

// Begin delega el arranque del flujo al manager del factor elegido.
func (r *Resolver) Begin(ctx context.Context, req BeginRequest) (*BeginResult, error) {
	switch req.Factor {
	case factor.KindPossession:
		if req.Enroll {
			opts, chID, err := r.credentials.BeginRegistration(ctx, req.IdentityID)
			if err != nil {
				return nil, err
			}
			return &BeginResult{ChallengeID: chID, Possession: opts}, nil
		}
		opts, chID, err := r.credentials.BeginAssertion(ctx, req.IdentityID)
		if err != nil {
			return nil, err
		}
		return &BeginResult{ChallengeID: chID, Possession: opts}, nil

	case factor.KindTimecode:
		enr, err := r.timecodes.BeginEnrollment(ctx, req.IdentityID)
		if err != nil {
			return nil, err
		}
		return &BeginResult{ChallengeID: enr.ChallengeID, Timecode: enr}, nil

	case factor.KindSidechannel:
		res, err := r.sidechannel.Send(ctx, req.IdentityID, req.Channel)
		if err != nil {
			return nil, err
		}
		return &BeginResult{ChallengeID: res.ChallengeID, Sidechannel: res}, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFactor, req.Factor)
	}
}

// Proof es la prueba presentada para completar un challenge: la respuesta
// del autenticador (posesión) o un código numérico (timecode, sidechannel).
type Proof struct {
	ClientResponse json.RawMessage `json:"client_response,omitempty"`
	Code           string          `json:"code,omitempty"`
}

// Device identifica al dispositivo que completa el flujo.
type Device struct {
	Origin          string
	ClientSignature string
}

// CompleteResult es el cierre exitoso de un flujo de factor.
type CompleteResult struct {
	Outcome *factor.Outcome
	Session *session.SignedSession
}

// Complete despacha la verificación según el tipo del challenge y, con la
// prueba aceptada, registra la confianza del dispositivo (si remember) y
// emite la sesión. Cualquier fallo del vault aborta: jamás sesión parcial.
func (r *Resolver) Complete(ctx context.Context, challengeID string, proof Proof, dev Device, remember bool) (*CompleteResult, error) {
	ch, err := r.challenges.Get(ctx, challengeID)
	if err != nil {
		return nil, mapChallengeErr(err)
	}

	var out *factor.Outcome
	switch ch.Kind {
	case challenge.KindPossessionRegistration:
		resp, perr := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(proof.ClientResponse))
		if perr != nil {
			return nil, factor.ErrInvalidProof
		}
		if err := r.credentials.CompleteRegistration(ctx, challengeID, resp); err != nil {
			return nil, err
		}
		out = &factor.Outcome{IdentityID: ch.IdentityID, Kind: factor.KindPossession, VerifiedAt: time.Now().UTC()}

	case challenge.KindPossessionAssertion:
		resp, perr := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(proof.ClientResponse))
		if perr != nil {
			return nil, factor.ErrInvalidProof
		}
		out, err = r.credentials.CompleteAssertion(ctx, challengeID, resp)
		if err != nil {
			return nil, err
		}

	case challenge.KindTimecodeEnrollment:
		if err := r.timecodes.CompleteEnrollment(ctx, challengeID, proof.Code); err != nil {
			return nil, err
		}
		out = &factor.Outcome{IdentityID: ch.IdentityID, Kind: factor.KindTimecode, VerifiedAt: time.Now().UTC()}

	case challenge.KindSidechannelOTP:
		out, err = r.sidechannel.Verify(ctx, challengeID, proof.Code)
		if err != nil {
			return nil, err
		}
		// la primera verificación por canal lateral enrola el factor
		if err := r.identities.AddFactor(ctx, out.IdentityID, repository.FactorSidechannel); err != nil {
			if repository.IsUnavailable(err) {
				return nil, factor.ErrUpstreamUnavailable
			}
			return nil, err
		}

	default:
		return nil, fmt.Errorf("%w: challenge kind %q", ErrUnknownFactor, ch.Kind)
	}

	return r.finish(ctx, out, dev, remember)
}

// VerifyTimecode cubre el camino sin challenge: un código contra el secreto
// activo de una identidad ya enrolada.
func (r *Resolver) VerifyTimecode(ctx context.Context, identityID, code string, dev Device, remember bool) (*CompleteResult, error) {
	out, err := r.timecodes.Verify(ctx, identityID, code)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, out, dev, remember)
}

func (r *Resolver) finish(ctx context.Context, out *factor.Outcome, dev Device, remember bool) (*CompleteResult, error) {
	fp := trust.Fingerprint(dev.Origin, dev.ClientSignature)

	if remember {
		if err := r.trust.Establish(ctx, out.IdentityID, fp); err != nil {
			if repository.IsUnavailable(err) {
				return nil, factor.ErrUpstreamUnavailable
			}
			return nil, err
		}
	}

	sess, err := r.sessions.Issue(out.IdentityID, fp, []string{string(out.Kind)})
	if err != nil {
		return nil, err
	}

	audit.Log(ctx, audit.EventFactorVerified,
		logger.IdentityID(out.IdentityID), logger.Factor(string(out.Kind)))
	if remember {
		audit.Log(ctx, audit.EventTrustGranted,
			logger.IdentityID(out.IdentityID), logger.Fingerprint(fp))
	}
	audit.Log(ctx, audit.EventSessionIssued,
		logger.IdentityID(out.IdentityID), logger.Fingerprint(fp), logger.Factor(string(out.Kind)))

	logger.From(ctx).Info("factor verificado, sesión emitida",
		logger.IdentityID(out.IdentityID),
		logger.Factor(string(out.Kind)),
		logger.Fingerprint(fp))
	return &CompleteResult{Outcome: out, Session: sess}, nil
}

// IssueTrusted emite sesión sin segundo factor, solo si la resolución actual
// es TRUSTED para ese dispositivo.
func (r *Resolver) IssueTrusted(ctx context.Context, identityID string, dev Device) (*session.SignedSession, error) {
	fp := trust.Fingerprint(dev.Origin, dev.ClientSignature)

	res, err := r.Resolve(ctx, identityID, fp)
	if err != nil {
		return nil, err
	}
	if res.State != StateTrusted {
		return nil, ErrNotTrusted
	}

	sess, err := r.sessions.Issue(identityID, fp, []string{"trusted-device"})
	if err != nil {
		return nil, err
	}
	audit.Log(ctx, audit.EventSessionIssued,
		logger.IdentityID(identityID), logger.Fingerprint(fp), logger.Factor("trusted-device"))
	return sess, nil
}

// RevokeAll responde a un compromiso de cuenta: elimina toda la confianza
// de dispositivos de la identidad.
func (r *Resolver) RevokeAll(ctx context.Context, identityID string) error {
	if err := r.trust.RevokeAll(ctx, identityID); err != nil {
		return err
	}
	audit.Log(ctx, audit.EventTrustRevoked, logger.IdentityID(identityID))
	return nil
}

func mapChallengeErr(err error) error {
	switch {
	case errors.Is(err, challenge.ErrExpired),
		errors.Is(err, challenge.ErrNotFound),
		errors.Is(err, challenge.ErrAlreadyConsumed):
		return factor.ErrInvalidProof
	case errors.Is(err, challenge.ErrTooManyAttempts):
		return factor.ErrRateLimited
	default:
		return err
	}
}
