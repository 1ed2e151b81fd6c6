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

// SidechannelController maneja el envío y la verificación de códigos OTP
// por canal lateral (mail, mensajería).
type SidechannelController struct {
	resolver *resolver.Resolver
}

func NewSidechannelController(res *resolver.Resolver) *SidechannelController {
	return &SidechannelController{resolver: res}
}

// Send maneja POST /v2/factor/sidechannel/send
func (c *SidechannelController) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("sidechannel.send"))

	var req dto.SendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.IdentityID) == "" || strings.TrimSpace(req.Channel) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("identity_id and channel are required"))
		return
	}

	res, err := c.resolver.Begin(ctx, resolver.BeginRequest{
		IdentityID: req.IdentityID,
		Factor:     factor.KindSidechannel,
		Channel:    req.Channel,
	})
	if err != nil {
		log.Warn("code dispatch failed",
			logger.IdentityID(req.IdentityID), logger.Channel(req.Channel), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	metrics.OTPDispatched.WithLabelValues(res.Sidechannel.Channel).Inc()
	writeSensitiveJSON(w, http.StatusOK, dto.SendCodeResponse{
		ChallengeID:     res.ChallengeID,
		Channel:         res.Sidechannel.Channel,
		CooldownSeconds: res.Sidechannel.CooldownSeconds,
		DebugCode:       res.Sidechannel.EchoCode,
	})
}

// Verify maneja POST /v2/factor/sidechannel/verify
func (c *SidechannelController) Verify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("sidechannel.verify"))

	var req dto.VerifyCodeRequest
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
		metrics.FactorVerifications.WithLabelValues(string(factor.KindSidechannel), "rejected").Inc()
		log.Warn("code rejected", logger.ChallengeID(req.ChallengeID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	metrics.FactorVerifications.WithLabelValues(string(res.Outcome.Kind), "verified").Inc()
	metrics.SessionsIssued.WithLabelValues(string(res.Outcome.Kind)).Inc()
	writeSensitiveJSON(w, http.StatusOK, toVerified(res))
}
