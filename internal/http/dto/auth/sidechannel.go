package auth

// SendCodeRequest is the request for POST /v2/factor/sidechannel/send
type SendCodeRequest struct {
	IdentityID string `json:"identity_id"`
	Channel    string `json:"channel"`
}

// SendCodeResponse is the response for POST /v2/factor/sidechannel/send.
// DebugCode only appears when debug echo is enabled (never in prod).
type SendCodeResponse struct {
	ChallengeID     string `json:"challenge_id"`
	Channel         string `json:"channel"`
	CooldownSeconds int    `json:"cooldown_seconds"`
	DebugCode       string `json:"debug_code,omitempty"`
}

// VerifyCodeRequest is the request for POST /v2/factor/sidechannel/verify
type VerifyCodeRequest struct {
	ChallengeID string     `json:"challenge_id"`
	Code        string     `json:"code"`
	Device      DeviceInfo `json:"device"`
	Remember    bool       `json:"remember,omitempty"`
}
