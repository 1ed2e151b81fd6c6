// Package router arma la tabla de rutas del servicio.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authctrl "github.com/dropDatabas3/secondjohn/internal/http/controllers/auth"
	healthctrl "github.com/dropDatabas3/secondjohn/internal/http/controllers/health"
	httperrors "github.com/dropDatabas3/secondjohn/internal/http/errors"
	mw "github.com/dropDatabas3/secondjohn/internal/http/middlewares"
	"github.com/dropDatabas3/secondjohn/internal/rate"
)

// Deps son las dependencias del router.
type Deps struct {
	Auth   *authctrl.Controllers
	Health *healthctrl.HealthController

	// GlobalLimiter acota requests por IP en todo el servicio (opcional).
	GlobalLimiter rate.Limiter
	// VerifyLimiter acota los endpoints de envío/verificación por IP+path.
	VerifyLimiter rate.Limiter
	// TrustProxyHeaders habilita X-Forwarded-For como IP del cliente.
	// Solo detrás de un proxy propio que pise el header.
	TrustProxyHeaders bool
}

// New construye el handler raíz con la cadena de middlewares aplicada.
// Orden: Recover > RequestID > SecurityHeaders > NoStore > RateLimit > Logging.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	// los endpoints de prueba de factor llevan un límite más agresivo
	strict := func(h http.HandlerFunc) http.Handler {
		return mw.Chain(h, mw.WithRateLimit(mw.RateLimitConfig{
			Limiter: deps.VerifyLimiter,
			KeyFunc: mw.IPAndPathRateKey(deps.TrustProxyHeaders),
		}))
	}

	r.Route("/v2", func(r chi.Router) {
		r.Post("/auth/resolve", deps.Auth.Resolve.Resolve)

		r.Route("/factor", func(r chi.Router) {
			r.Post("/possession/register/begin", deps.Auth.Possession.RegisterBegin)
			r.Method(http.MethodPost, "/possession/register/complete", strict(deps.Auth.Possession.RegisterComplete))
			r.Post("/possession/assert/begin", deps.Auth.Possession.AssertBegin)
			r.Method(http.MethodPost, "/possession/assert/complete", strict(deps.Auth.Possession.AssertComplete))

			r.Post("/timecode/enroll/begin", deps.Auth.Timecode.EnrollBegin)
			r.Method(http.MethodPost, "/timecode/enroll/complete", strict(deps.Auth.Timecode.EnrollComplete))
			r.Method(http.MethodPost, "/timecode/verify", strict(deps.Auth.Timecode.Verify))

			r.Method(http.MethodPost, "/sidechannel/send", strict(deps.Auth.Sidechannel.Send))
			r.Method(http.MethodPost, "/sidechannel/verify", strict(deps.Auth.Sidechannel.Verify))
		})

		r.Post("/session/issue", deps.Auth.Resolve.IssueSession)
		r.Post("/trust/revoke", deps.Auth.Resolve.RevokeTrust)
	})

	if deps.Health != nil {
		r.Get("/readyz", deps.Health.Readyz)
	}
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return mw.Chain(r,
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithSecurityHeaders(),
		mw.WithNoStore(),
		mw.WithRateLimit(mw.RateLimitConfig{Limiter: deps.GlobalLimiter, KeyFunc: mw.IPOnlyRateKey(deps.TrustProxyHeaders)}),
		mw.WithLogging(),
	)
}
