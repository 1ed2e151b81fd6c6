// Package health contains DTOs for health check endpoints.
package health

// HealthResponse is the response for GET /readyz
type HealthResponse struct {
	Status      string            `json:"status"` // ready | degraded | unavailable
	Components  map[string]string `json:"components"`
	ActiveKeyID string            `json:"active_key_id,omitempty"`
	Version     string            `json:"version,omitempty"`
}
