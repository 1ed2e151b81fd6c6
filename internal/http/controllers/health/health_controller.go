// Package health contiene el controller de readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	dto "github.com/dropDatabas3/secondjohn/internal/http/dto/health"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
)

// Pinger es lo mínimo que un componente debe exponer para el readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthController reporta el estado de los componentes críticos.
type HealthController struct {
	components  map[string]Pinger
	activeKeyID string
	version     string
}

// NewHealthController crea el controller. Los componentes nil se ignoran.
func NewHealthController(components map[string]Pinger, activeKeyID, version string) *HealthController {
	clean := make(map[string]Pinger, len(components))
	for name, p := range components {
		if p != nil {
			clean[name] = p
		}
	}
	return &HealthController{components: clean, activeKeyID: activeKeyID, version: version}
}

// Readyz maneja GET /readyz
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("health.readyz"))

	resp := dto.HealthResponse{
		Status:      "ready",
		Components:  make(map[string]string, len(c.components)),
		ActiveKeyID: c.activeKeyID,
		Version:     c.version,
	}

	failed := 0
	for name, p := range c.components {
		if err := p.Ping(ctx); err != nil {
			resp.Components[name] = "unavailable"
			failed++
			log.Warn("component unavailable", logger.Component(name), logger.Err(err))
			continue
		}
		resp.Components[name] = "ok"
	}

	status := http.StatusOK
	switch {
	case failed == len(c.components) && len(c.components) > 0:
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	case failed > 0:
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if c.activeKeyID != "" {
		w.Header().Set("X-Session-KID", c.activeKeyID)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
