package errors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dropDatabas3/secondjohn/internal/factor"
	"github.com/dropDatabas3/secondjohn/internal/resolver"
)

// errorResponse estructura interna para la serialización JSON.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe una respuesta HTTP basada en el error proporcionado.
// Maneja *AppError, los errores de dominio de los managers y errores genéricos.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	resp := errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}

// FromError convierte cualquier error en un AppError. Los sentinels de
// dominio se mapean a su entrada del catálogo; lo desconocido es un 500
// genérico que conserva la causa para los logs.
func FromError(err error) *AppError {
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	switch {
	case errors.Is(err, factor.ErrInvalidProof):
		return ErrInvalidProof
	case errors.Is(err, factor.ErrRateLimited):
		return ErrRateLimitExceeded
	case errors.Is(err, factor.ErrNoCredentialEnrolled):
		return ErrNoCredentialEnrolled
	case errors.Is(err, factor.ErrUpstreamUnavailable):
		return ErrUpstreamUnavailable
	case errors.Is(err, resolver.ErrUnknownIdentity):
		return ErrUnknownIdentity
	case errors.Is(err, resolver.ErrNotTrusted):
		return ErrNotTrusted
	case errors.Is(err, resolver.ErrUnknownFactor):
		return ErrUnknownFactor
	default:
		return ErrInternalServerError.WithCause(err)
	}
}
