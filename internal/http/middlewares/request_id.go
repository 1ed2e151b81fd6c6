package middlewares

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
)

// WithRequestID asigna (o propaga) un X-Request-Id y deja en el contexto un
// logger scoped con ese ID, para que cualquier capa loguee correlacionado.
func WithRequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-Id")
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-Id", reqID)

			ctx := setRequestID(r.Context(), reqID)
			ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.RequestID(reqID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
