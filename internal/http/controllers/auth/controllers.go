// Package auth contiene los controllers de resolución y factores.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	dto "github.com/dropDatabas3/secondjohn/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/secondjohn/internal/http/errors"
	"github.com/dropDatabas3/secondjohn/internal/resolver"
	"github.com/dropDatabas3/secondjohn/internal/session"
)

const maxBodyBytes = 64 << 10 // alcanza para una respuesta WebAuthn

// Controllers agrupa los controllers del dominio auth.
type Controllers struct {
	Resolve     *ResolveController
	Possession  *PossessionController
	Timecode    *TimecodeController
	Sidechannel *SidechannelController
}

// NewControllers crea el aggregator con el resolver inyectado.
func NewControllers(res *resolver.Resolver) *Controllers {
	return &Controllers{
		Resolve:     NewResolveController(res),
		Possession:  NewPossessionController(res),
		Timecode:    NewTimecodeController(res),
		Sidechannel: NewSidechannelController(res),
	}
}

// decodeJSON lee y parsea el body con tope de tamaño.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return httperrors.ErrBodyTooLarge
		}
		return httperrors.ErrInvalidJSON
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeSensitiveJSON agrega no-store para respuestas con material sensible
// (secretos de enrolamiento, tokens de sesión).
func writeSensitiveJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	writeJSON(w, status, v)
}

func toDevice(d dto.DeviceInfo) resolver.Device {
	return resolver.Device{Origin: d.Origin, ClientSignature: d.ClientSignature}
}

func toSessionPayload(s *session.SignedSession) *dto.SessionPayload {
	if s == nil {
		return nil
	}
	return &dto.SessionPayload{
		Token:     s.Token,
		TokenType: "Bearer",
		ExpiresAt: s.ExpiresAt.Unix(),
	}
}

func toVerified(res *resolver.CompleteResult) dto.VerifiedResponse {
	return dto.VerifiedResponse{
		Verified: true,
		Factor:   string(res.Outcome.Kind),
		Session:  toSessionPayload(res.Session),
	}
}
