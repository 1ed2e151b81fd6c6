// Package metrics define las métricas Prometheus del servicio. Paquete
// separado para evitar ciclos de import entre HTTP y los managers.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Requests HTTP por método, path y status",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duración de requests HTTP",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	FactorVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "factor_verifications_total",
		Help: "Verificaciones de segundo factor por tipo y resultado",
	}, []string{"factor", "outcome"})

	SessionsIssued = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sessions_issued_total",
		Help: "Sesiones emitidas por mecanismo (amr)",
	}, []string{"amr"})

	ChallengesSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "challenges_swept_total",
		Help: "Challenges vencidos removidos por el barrido periódico",
	})

	OTPDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otp_dispatched_total",
		Help: "Códigos OTP despachados por canal",
	}, []string{"channel"})
)

// ObserveHTTPRequest alimenta contador e histograma de una pasada.
func ObserveHTTPRequest(method, path string, status int, dur time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(dur.Seconds())
}

// Register registra todas las métricas en el registry dado (o el default).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		HTTPRequestsTotal,
		HTTPRequestDuration,
		FactorVerifications,
		SessionsIssued,
		ChallengesSwept,
		OTPDispatched,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
