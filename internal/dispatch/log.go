package dispatch

import (
	"context"

	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/util"
)

// LogSender escribe el código al log en lugar de entregarlo. Sirve como
// dispatcher del canal "message" mientras el gateway real es externo, y
// para desarrollo local.
//
// Nunca loguea el código: solo el hecho de la entrega.
type LogSender struct{}

func NewLogSender() *LogSender { return &LogSender{} }

func (s *LogSender) Deliver(ctx context.Context, d Delivery) error {
	logger.From(ctx).Info("otp dispatch (log-only sender)",
		logger.Component("LogSender"),
		logger.Channel(d.Channel),
		logger.String("destination", util.MaskAddress(d.Destination)),
	)
	return nil
}
