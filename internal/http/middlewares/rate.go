package middlewares

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/secondjohn/internal/http/errors"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/rate"
)

// RateKeyFunc deriva la key de rate limiting de un request.
type RateKeyFunc func(r *http.Request) string

// IPOnlyRateKey limita por IP del cliente tomada de RemoteAddr. El header
// X-Forwarded-For solo se honra con trustProxy activo: un cliente directo
// puede rotarlo a voluntad y esquivar el límite.
func IPOnlyRateKey(trustProxy bool) RateKeyFunc {
	return func(r *http.Request) string {
		return "ip:" + rateClientIP(r, trustProxy)
	}
}

// IPAndPathRateKey limita por (IP, path): presupuestos independientes para
// send y verify.
func IPAndPathRateKey(trustProxy bool) RateKeyFunc {
	ipKey := IPOnlyRateKey(trustProxy)
	return func(r *http.Request) string {
		return ipKey(r) + ":" + r.URL.Path
	}
}

func rateClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// el primer hop es el cliente según el proxy de confianza
			if i := strings.Index(xff, ","); i >= 0 {
				xff = xff[:i]
			}
			return strings.TrimSpace(xff)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitConfig configura el middleware de rate limiting.
type RateLimitConfig struct {
	Limiter rate.Limiter
	KeyFunc RateKeyFunc
}

// WithRateLimit aplica el limiter por key. Si el limiter falla, el request
// pasa: preferimos degradar el límite antes que tirar autenticaciones.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	keyFn := cfg.KeyFunc
	if keyFn == nil {
		keyFn = IPOnlyRateKey(false)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			res, err := cfg.Limiter.Allow(r.Context(), keyFn(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter no disponible, request pasa",
					logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds())+1))
				errors.WriteError(w, errors.ErrRateLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
