package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickdesk/internal/authz"
	"pickdesk/internal/models"
	"pickdesk/internal/policy"
	"pickdesk/internal/repository"
	"pickdesk/internal/service"
	"pickdesk/internal/stream"
)

// Per-operation allow-lists. Membership is exact; a role not listed is
// denied even when it outranks every listed role.
var (
	rolesAll = []authz.Role{
		authz.RoleObserver, authz.RoleUser, authz.RoleSupport,
		authz.RoleOpsAdmin, authz.RoleAdmin,
	}
	rolesOperator  = []authz.Role{authz.RoleOpsAdmin, authz.RoleAdmin}
	rolesGuardrail = []authz.Role{authz.RoleSupport, authz.RoleOpsAdmin, authz.RoleAdmin}
	rolesAudit     = []authz.Role{authz.RoleAdmin}
)

type DecisionHandler struct {
	Repo      repository.Repository
	Evaluator *service.Evaluator
	Hub       *stream.Hub
	Authz     *authz.Authorizer
	Logger    *zap.Logger
}

func (h *DecisionHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/decisions")
	group.GET("", h.list)
	group.GET("/stream", h.streamDecisions)
	group.GET("/:id", h.get)
	group.POST("/evaluate", h.evaluate)
}

// @Summary List decisions
// @Tags decisions
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param status query string false "pick|no_bet|blocked"
// @Param match_id query string false "match id"
// @Param owner query string false "owner filter (support and above)"
// @Param since query string false "RFC3339 lower bound on created_at"
// @Success 200 {object} apiResponse
// @Router /api/v1/decisions [get]
func (h *DecisionHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesAll, "decisions:list", traceID)) {
		return
	}

	limit, offset := pageParams(c)
	params := repository.ListDecisionsParams{
		Limit:   limit,
		Offset:  offset,
		Status:  strQueryPtr(c, "status"),
		MatchID: strQueryPtr(c, "match_id"),
		Since:   timeQueryPtr(c, "since"),
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	var ownerFilter *string
	switch {
	case ident.Role == authz.RoleUser:
		// Regular users are scoped to their own rows at the query level.
		own := ident.UserID
		params.OwnerUserID = &own
	case ident.Role >= authz.RoleSupport:
		ownerFilter = strQueryPtr(c, "owner")
		params.OwnerUserID = ownerFilter
	}

	rows, err := h.Repo.ListDecisions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountDecisions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}

	if ident.Role >= authz.RoleSupport && authz.ContainsNonOwned(ident, rows) {
		h.Authz.AuditPrivilegedRead(c.Request.Context(), ident, "decisions:list", traceID)
	}
	scoped := authz.ScopeRead(ident, rows, ownerFilter)
	meta := paginationMeta(limit, offset, total)
	meta["trace_id"] = traceID
	Ok(c, scoped, meta)
}

// @Summary Get one decision
// @Tags decisions
// @Param id path string true "decision id"
// @Success 200 {object} apiResponse
// @Router /api/v1/decisions/{id} [get]
func (h *DecisionHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesAll, "decisions:get", traceID)) {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	decision, err := h.Repo.GetDecisionByID(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if decision == nil {
		Error(c, http.StatusNotFound, "decision not found", nil)
		return
	}

	switch {
	case ident.Role == authz.RoleUser && decision.OwnerUserID != ident.UserID:
		// Audited as a denial, surfaced as absence: users cannot probe for
		// other users' decision ids.
		_ = h.Authz.CheckOwnership(c.Request.Context(), ident, decision.OwnerUserID, "decisions:get", traceID)
		Error(c, http.StatusNotFound, "decision not found", nil)
		return
	case ident.Role == authz.RoleObserver:
		anon := authz.Anonymize(*decision)
		decision = &anon
	case ident.Role >= authz.RoleSupport && decision.OwnerUserID != ident.UserID:
		h.Authz.AuditPrivilegedRead(c.Request.Context(), ident, "decisions:get", traceID)
	}
	Ok(c, decision, map[string]any{"trace_id": traceID})
}

type evaluateRequest struct {
	MatchID     string               `json:"match_id"`
	OwnerUserID string               `json:"owner_user_id"`
	MarketType  string               `json:"market_type"`
	Quality     policy.QualityVector `json:"quality"`
	Edge        float64              `json:"edge"`
	Confidence  float64              `json:"confidence"`
	Drift       float64              `json:"drift"`
}

// @Summary Evaluate one match signal
// @Tags decisions
// @Param body body evaluateRequest true "signal"
// @Success 200 {object} apiResponse
// @Router /api/v1/decisions/evaluate [post]
func (h *DecisionHandler) evaluate(c *gin.Context) {
	if h.Evaluator == nil {
		Error(c, http.StatusInternalServerError, "evaluator unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesOperator, "decisions:evaluate", traceID)) {
		return
	}

	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.MatchID = strings.TrimSpace(req.MatchID)
	req.MarketType = strings.ToLower(strings.TrimSpace(req.MarketType))
	if req.MatchID == "" {
		Error(c, http.StatusBadRequest, "match_id required", nil)
		return
	}
	if req.MarketType != models.MarketTypeWinner && req.MarketType != models.MarketTypeOverUnder {
		Error(c, http.StatusBadRequest, "market_type must be winner or over_under", nil)
		return
	}

	decision, err := h.Evaluator.Evaluate(c.Request.Context(), service.SignalInput{
		MatchID:     req.MatchID,
		OwnerUserID: strings.TrimSpace(req.OwnerUserID),
		MarketType:  req.MarketType,
		Quality:     req.Quality,
		Edge:        req.Edge,
		Confidence:  req.Confidence,
		Drift:       req.Drift,
	}, traceID)
	if err != nil {
		if errors.Is(err, policy.ErrSignalRejected) {
			Error(c, http.StatusUnprocessableEntity, err.Error(), nil)
			return
		}
		if h.Logger != nil {
			h.Logger.Warn("evaluate failed", zap.String("match_id", req.MatchID), zap.Error(err))
		}
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, decision, nil)
}

// @Summary Stream decisions as they are created
// @Tags decisions
// @Router /api/v1/decisions/stream [get]
func (h *DecisionHandler) streamDecisions(c *gin.Context) {
	if h.Hub == nil {
		Error(c, http.StatusInternalServerError, "stream unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesAll, "decisions:stream", traceID)) {
		return
	}
	if err := h.Hub.Serve(c.Writer, c.Request, *ident); err != nil && h.Logger != nil {
		h.Logger.Info("stream closed", zap.String("user_id", ident.UserID), zap.Error(err))
	}
}
