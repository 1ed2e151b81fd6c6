package auth

// BeginTimecodeEnrollRequest is the request for POST /v2/factor/timecode/enroll/begin
type BeginTimecodeEnrollRequest struct {
	IdentityID string `json:"identity_id"`
}

// BeginTimecodeEnrollResponse is the response for POST /v2/factor/timecode/enroll/begin
type BeginTimecodeEnrollResponse struct {
	ChallengeID  string `json:"challenge_id"`
	SecretBase32 string `json:"secret_base32"`
	OTPAuthURL   string `json:"otpauth_url"`
}

// CompleteTimecodeEnrollRequest is the request for POST /v2/factor/timecode/enroll/complete
type CompleteTimecodeEnrollRequest struct {
	ChallengeID string     `json:"challenge_id"`
	Code        string     `json:"code"`
	Device      DeviceInfo `json:"device"`
	Remember    bool       `json:"remember,omitempty"`
}

// VerifyTimecodeRequest is the request for POST /v2/factor/timecode/verify
type VerifyTimecodeRequest struct {
	IdentityID string     `json:"identity_id"`
	Code       string     `json:"code"`
	Device     DeviceInfo `json:"device"`
	Remember   bool       `json:"remember,omitempty"`
}
