// Package audit emite el rastro de eventos de seguridad del servicio:
// verificaciones de factor, confianza establecida o revocada, sesiones
// emitidas. Hoy sale por el logger estructurado con marca "audit"; el sink
// puede cambiar sin tocar a los emisores.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
)

// Eventos conocidos.
const (
	EventFactorVerified = "factor.verified"
	EventTrustGranted   = "trust.granted"
	EventTrustRevoked   = "trust.revoked"
	EventSessionIssued  = "session.issued"
)

// Log registra un evento de auditoría con sus campos.
func Log(ctx context.Context, event string, fields ...zap.Field) {
	logger.From(ctx).With(logger.String("audit_event", event)).
		Info("audit", fields...)
}
