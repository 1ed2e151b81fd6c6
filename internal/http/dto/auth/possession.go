package auth

import "encoding/json"

// BeginPossessionRequest is the request for
// POST /v2/factor/possession/{register,assert}/begin
type BeginPossessionRequest struct {
	IdentityID string `json:"identity_id"`
}

// BeginPossessionResponse carries the WebAuthn ceremony options the
// dashboard forwards verbatim to the authenticator API.
type BeginPossessionResponse struct {
	ChallengeID string `json:"challenge_id"`
	Options     any    `json:"options"`
}

// CompletePossessionRequest is the request for
// POST /v2/factor/possession/{register,assert}/complete
type CompletePossessionRequest struct {
	ChallengeID    string          `json:"challenge_id"`
	ClientResponse json.RawMessage `json:"client_response"`
	Device         DeviceInfo      `json:"device"`
	Remember       bool            `json:"remember,omitempty"`
}

// VerifiedResponse is the common success response for factor completion.
type VerifiedResponse struct {
	Verified bool            `json:"verified"`
	Factor   string          `json:"factor"`
	Session  *SessionPayload `json:"session,omitempty"`
}
