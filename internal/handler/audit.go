package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"pickdesk/internal/authz"
	"pickdesk/internal/repository"
)

type AuditHandler struct {
	Repo  repository.Repository
	Authz *authz.Authorizer
}

func (h *AuditHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/audit", h.list)
}

// @Summary List audit events
// @Tags audit
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param action query string false "action filter"
// @Param requester_id query string false "requester filter"
// @Param since query string false "RFC3339 lower bound on created_at"
// @Success 200 {object} apiResponse
// @Router /api/v1/audit [get]
func (h *AuditHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesAudit, "audit:list", traceID)) {
		return
	}

	limit, offset := pageParams(c)
	params := repository.ListAuditEventsParams{
		Limit:       limit,
		Offset:      offset,
		Action:      strQueryPtr(c, "action"),
		RequesterID: strQueryPtr(c, "requester_id"),
		Since:       timeQueryPtr(c, "since"),
		OrderBy:     "created_at",
		Asc:         boolPtr(false),
	}
	rows, err := h.Repo.ListAuditEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountAuditEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, rows, paginationMeta(limit, offset, total))
}
