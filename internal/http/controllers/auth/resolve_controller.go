package auth

import (
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/secondjohn/internal/http/dto/auth"
	httperrors "github.com/dropDatabas3/secondjohn/internal/http/errors"
	"github.com/dropDatabas3/secondjohn/internal/metrics"
	"github.com/dropDatabas3/secondjohn/internal/observability/logger"
	"github.com/dropDatabas3/secondjohn/internal/resolver"
	"github.com/dropDatabas3/secondjohn/internal/trust"
)

// ResolveController maneja la resolución de estado, la emisión por
// dispositivo confiable y la revocación de confianza.
type ResolveController struct {
	resolver *resolver.Resolver
}

func NewResolveController(res *resolver.Resolver) *ResolveController {
	return &ResolveController{resolver: res}
}

// Resolve maneja POST /v2/auth/resolve
func (c *ResolveController) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("auth.resolve"))

	var req dto.ResolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.IdentityID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("identity_id is required"))
		return
	}

	fp := trust.Fingerprint(req.Device.Origin, req.Device.ClientSignature)
	res, err := c.resolver.Resolve(ctx, req.IdentityID, fp)
	if err != nil {
		log.Warn("resolve failed", logger.IdentityID(req.IdentityID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	factors := make([]string, 0, len(res.EnrolledFactors))
	for _, f := range res.EnrolledFactors {
		factors = append(factors, string(f))
	}
	writeJSON(w, http.StatusOK, dto.ResolveResponse{
		State:           string(res.State),
		IdentityID:      res.IdentityID,
		EnrolledFactors: factors,
		Degraded:        res.Degraded,
	})
}

// IssueSession maneja POST /v2/session/issue
func (c *ResolveController) IssueSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("session.issue"))

	var req dto.IssueSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.IdentityID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("identity_id is required"))
		return
	}

	sess, err := c.resolver.IssueTrusted(ctx, req.IdentityID, toDevice(req.Device))
	if err != nil {
		log.Warn("trusted issuance rejected", logger.IdentityID(req.IdentityID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	metrics.SessionsIssued.WithLabelValues("trusted-device").Inc()
	writeSensitiveJSON(w, http.StatusOK, toSessionPayload(sess))
}

// RevokeTrust maneja POST /v2/trust/revoke
func (c *ResolveController) RevokeTrust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("trust.revoke"))

	var req dto.RevokeTrustRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.IdentityID) == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("identity_id is required"))
		return
	}

	if err := c.resolver.RevokeAll(ctx, req.IdentityID); err != nil {
		log.Error("revoke failed", logger.IdentityID(req.IdentityID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	log.Info("device trust revoked", logger.IdentityID(req.IdentityID))
	writeJSON(w, http.StatusOK, dto.RevokeTrustResponse{Revoked: true})
}
