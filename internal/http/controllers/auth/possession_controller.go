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

// PossessionController maneja las ceremonias WebAuthn de registro y aserción.
type PossessionController struct {
	resolver *resolver.Resolver
}

func NewPossessionController(res *resolver.Resolver) *PossessionController {
	return &PossessionController{resolver: res}
}

// RegisterBegin maneja POST /v2/factor/possession/register/begin
func (c *PossessionController) RegisterBegin(w http.ResponseWriter, r *http.Request) {
	c.begin(w, r, true, "possession.register.begin")
}

// AssertBegin maneja POST /v2/factor/possession/assert/begin
func (c *PossessionController) AssertBegin(w http.ResponseWriter, r *http.Request) {
	c.begin(w, r, false, "possession.assert.begin")
}

func (c *PossessionController) begin(w http.ResponseWriter, r *http.Request, enroll bool, op string) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op(op))

	var req dto.BeginPossessionRequest
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
		Factor:     factor.KindPossession,
		Enroll:     enroll,
	})
	if err != nil {
		log.Warn("ceremony start failed", logger.IdentityID(req.IdentityID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	writeSensitiveJSON(w, http.StatusOK, dto.BeginPossessionResponse{
		ChallengeID: res.ChallengeID,
		Options:     res.Possession,
	})
}

// RegisterComplete maneja POST /v2/factor/possession/register/complete
func (c *PossessionController) RegisterComplete(w http.ResponseWriter, r *http.Request) {
	c.complete(w, r, "possession.register.complete")
}

// AssertComplete maneja POST /v2/factor/possession/assert/complete
func (c *PossessionController) AssertComplete(w http.ResponseWriter, r *http.Request) {
	c.complete(w, r, "possession.assert.complete")
}

func (c *PossessionController) complete(w http.ResponseWriter, r *http.Request, op string) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op(op))

	var req dto.CompletePossessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.ChallengeID) == "" || len(req.ClientResponse) == 0 {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("challenge_id and client_response are required"))
		return
	}

	res, err := c.resolver.Complete(ctx, req.ChallengeID,
		resolver.Proof{ClientResponse: req.ClientResponse},
		toDevice(req.Device), req.Remember)
	if err != nil {
		metrics.FactorVerifications.WithLabelValues(string(factor.KindPossession), "rejected").Inc()
		log.Warn("ceremony completion rejected", logger.ChallengeID(req.ChallengeID), logger.Err(err))
		httperrors.WriteError(w, err)
		return
	}

	metrics.FactorVerifications.WithLabelValues(string(res.Outcome.Kind), "verified").Inc()
	metrics.SessionsIssued.WithLabelValues(string(res.Outcome.Kind)).Inc()
	writeSensitiveJSON(w, http.StatusOK, toVerified(res))
}
