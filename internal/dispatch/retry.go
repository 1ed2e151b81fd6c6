package dispatch

import (
	"context"
	"time"

	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
)

// Retry envuelve un dispatcher y reintenta una vez con backoff ante un
// fallo transitorio. Un solo reintento: el que pidió el código puede
// reenviar, no queremos duplicar entregas por nuestra cuenta.
type Retry struct {
	next    Dispatcher
	backoff time.Duration
}

func WithRetry(next Dispatcher, backoff time.Duration) *Retry {
	if backoff <= 0 {
		backoff = 2 * time.Second
	}
	return &Retry{next: next, backoff: backoff}
}

func (r *Retry) Deliver(ctx context.Context, d Delivery) error {
	err := r.next.Deliver(ctx, d)
	if err == nil {
		return nil
	}

	logger.From(ctx).Warn("dispatch falló, reintentando",
		logger.Channel(d.Channel), logger.Err(err))

	select {
	case <-time.After(r.backoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return r.next.Deliver(ctx, d)
}
