// Package auth contains DTOs for the auth resolution and factor endpoints.
package auth

// DeviceInfo identifies the device completing a flow. Sent by the
// dashboard on every call that can establish trust or issue a session.
type DeviceInfo struct {
	Origin          string `json:"origin"`
	ClientSignature string `json:"client_signature"`
}

// ResolveRequest is the request for POST /v2/auth/resolve
type ResolveRequest struct {
	IdentityID string     `json:"identity_id"`
	Device     DeviceInfo `json:"device"`
}

// ResolveResponse is the response for POST /v2/auth/resolve
type ResolveResponse struct {
	State           string   `json:"state"`
	IdentityID      string   `json:"identity_id"`
	EnrolledFactors []string `json:"enrolled_factors"`
	Degraded        bool     `json:"degraded,omitempty"`
}

// SessionPayload is the signed session returned after a successful
// verification or a trusted issuance.
type SessionPayload struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt int64  `json:"expires_at"`
}
