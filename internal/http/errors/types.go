package errors

import (
	"fmt"
	"net/http"
)

// AppError define la estructura estándar para errores de la aplicación.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"` // No se serializa, usado para el header
	Err        error  `json:"-"` // Causa original, útil para logs, no se expone al cliente
}

// Error implementa la interfaz error.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap permite acceder al error original.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail agrega detalles adicionales al error.
// Devuelve una COPIA para no mutar las variables globales base.
func (e *AppError) WithDetail(detail string) *AppError {
	newErr := *e
	newErr.Detail = detail
	return &newErr
}

// WithCause agrega el error original (causa). Devuelve una COPIA.
func (e *AppError) WithCause(err error) *AppError {
	newErr := *e
	newErr.Err = err
	return &newErr
}

// =================================================================================
// LISTA DE ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrBadRequest = &AppError{
		Code:       "BAD_REQUEST",
		Message:    "La solicitud contiene sintaxis inválida o parámetros faltantes.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidJSON = &AppError{
		Code:       "INVALID_JSON",
		Message:    "El cuerpo de la solicitud no es un JSON válido.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingFields = &AppError{
		Code:       "MISSING_FIELDS",
		Message:    "Faltan campos requeridos en la solicitud.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrBodyTooLarge = &AppError{
		Code:       "BODY_TOO_LARGE",
		Message:    "El cuerpo de la solicitud excede el tamaño máximo permitido.",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	// ErrInvalidProof cubre prueba inválida, challenge expirado, consumido o
	// inexistente: un único mensaje hacia afuera, sin oráculo de existencia.
	ErrInvalidProof = &AppError{
		Code:       "INVALID_OR_EXPIRED_CODE",
		Message:    "El código o la prueba presentada es inválida o expiró.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrUnknownIdentity = &AppError{
		Code:       "UNKNOWN_IDENTITY",
		Message:    "La identidad no es reconocida por el proveedor externo.",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrNotTrusted = &AppError{
		Code:       "DEVICE_NOT_TRUSTED",
		Message:    "El dispositivo no tiene confianza establecida; se requiere segundo factor.",
		HTTPStatus: http.StatusForbidden,
	}

	ErrNoCredentialEnrolled = &AppError{
		Code:       "NO_CREDENTIAL_ENROLLED",
		Message:    "La identidad no tiene una credencial de este tipo enrolada.",
		HTTPStatus: http.StatusConflict,
	}

	ErrUnknownFactor = &AppError{
		Code:       "UNKNOWN_FACTOR",
		Message:    "El factor solicitado no existe.",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrRateLimitExceeded = &AppError{
		Code:       "RATE_LIMIT_EXCEEDED",
		Message:    "Ha excedido el límite de intentos. Intente más tarde.",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrRouteNotFound = &AppError{
		Code:       "ROUTE_NOT_FOUND",
		Message:    "La ruta solicitada no existe.",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    "El método HTTP no está permitido para este recurso.",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrInternalServerError = &AppError{
		Code:       "INTERNAL_SERVER_ERROR",
		Message:    "Ocurrió un error interno en el servidor.",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrUpstreamUnavailable = &AppError{
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    "Un servicio externo no está disponible temporalmente.",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)
