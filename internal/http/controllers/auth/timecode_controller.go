package auth

import (
	"net/http"
	"strings"

	"github.com/dropDatabas3/secondjohn/internal/factor"
	dto "github.com/dropDatabas3/secondjohn/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/secondjohn/internal/http/errors"
	"github.com/dropDatabas3/secondjohn/internal/metrics"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/resolver"
)

// TimecodeController maneja el enrolamiento y la verificación TOTP.
type TimecodeController struct {
	resolver *resolver.Resolver
}

func NewTimecodeController(res *resolver.Resolver) *TimecodeController {
	return &TimecodeController{resolver: res}
}

// EnrollBegin maneja POST /v2/factor/timecode/enroll/begin
func (c *TimecodeController) EnrollBegin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("timecode.enroll.begin"))

	var req dto.BeginTimecodeEnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.IdentityID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("identity_id is required"))
		return
	}

	res, err := c.resolver.Begin(ctx, resolver.BeginRequest{
		IdentityID: req.IdentityID,
		Factor:     factor.KindTimecode,
		Enroll:     true,
	})
	if err != nil {
		log.Warn("enrollment start failed", logger.IdentityID(req.IdentityID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	// el secreto viaja una única vez, jamás cacheable
	writeSensitiveJSON(w, http.StatusOK, dto.BeginTimecodeEnrollResponse{
		ChallengeID:  res.ChallengeID,
		SecretBase32: res.Timecode.SecretB32,
		OTPAuthURL:   res.Timecode.OTPAuthURL,
	})
}

// EnrollComplete maneja POST /v2/factor/timecode/enroll/complete
func (c *TimecodeController) EnrollComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("timecode.enroll.complete"))

	var req dto.CompleteTimecodeEnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.ChallengeID) == "" || strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("challenge_id and code are required"))
		return
	}

	res, err := c.resolver.Complete(ctx, req.ChallengeID,
		resolver.Proof{Code: req.Code}, toDevice(req.Device), req.Remember)
	if err != nil {
		metrics.FactorVerifications.WithLabelValues(string(factor.KindTimecode), "rejected").Inc()
		log.Warn("enrollment rejected", logger.ChallengeID(req.ChallengeID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	metrics.FactorVerifications.WithLabelValues(string(factor.KindTimecode), "verified").Inc()
	metrics.SessionsIssued.WithLabelValues(string(factor.KindTimecode)).Inc()
	writeSensitiveJSON(w, http.StatusOK, toVerified(res))
}

// Verify maneja POST /v2/factor/timecode/verify
func (c *TimecodeController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("timecode.verify"))

	var req dto.VerifyTimecodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.IdentityID) == "" || strings.TrimSpace(req.Code) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("identity_id and code are required"))
		return
	}

	res, err := c.resolver.VerifyTimecode(ctx, req.IdentityID, req.Code, toDevice(req.Device), req.Remember)
	if err != nil {
		metrics.FactorVerifications.WithLabelValues(string(factor.KindTimecode), "rejected").Inc()
		log.Warn("code rejected", logger.IdentityID(req.IdentityID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	metrics.FactorVerifications.WithLabelValues(string(factor.KindTimecode), "verified").Inc()
	metrics.SessionsIssued.WithLabelValues(string(factor.KindTimecode)).Inc()
	writeSensitiveJSON(w, http.StatusOK, toVerified(res))
}
