package auth

// IssueSessionRequest is the request for POST /v2/session/issue.
// Only succeeds when the device resolves as trusted.
type IssueSessionRequest struct {
	IdentityID string     `json:"identity_id"`
	Device     DeviceInfo `json:"device"`
}

// RevokeTrustRequest is the request for POST /v2/trust/revoke
type RevokeTrustRequest struct {
	IdentityID string `json:"identity_id"`
}

// RevokeTrustResponse is the response for POST /v2/trust/revoke
type RevokeTrustResponse struct {
	Revoked bool `json:"revoked"`
}
