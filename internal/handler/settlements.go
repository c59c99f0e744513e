package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pickdesk/internal/authz"
	"pickdesk/internal/service"
)

type SettlementHandler struct {
	Service *service.SettlementService
	Authz   *authz.Authorizer
	Logger  *zap.Logger
}

func (h *SettlementHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/settlements", h.record)
}

type recordSettlementRequest struct {
	Outcome           string `json:"outcome"` // win|loss
	Amount            string `json:"amount"`
	OccurredAtRFC3339 string `json:"occurred_at"`
}

// @Summary Record a settlement outcome
// @Tags settlements
// @Param body body recordSettlementRequest true "settlement"
// @Success 200 {object} apiResponse
// @Router /api/v1/settlements [post]
func (h *SettlementHandler) record(c *gin.Context) {
	if h.Service == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesOperator, "settlements:record", traceID)) {
		return
	}

	var req recordSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	outcome := strings.ToLower(strings.TrimSpace(req.Outcome))
	amount, err := decimal.NewFromString(strings.TrimSpace(req.Amount))
	if err != nil {
		Error(c, http.StatusBadRequest, "amount must be a decimal string", nil)
		return
	}
	occurredAt := time.Now().UTC()
	if strings.TrimSpace(req.OccurredAtRFC3339) != "" {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(req.OccurredAtRFC3339))
		if err != nil {
			Error(c, http.StatusBadRequest, "occurred_at must be RFC3339", nil)
			return
		}
		occurredAt = ts.UTC()
	}

	snap, err := h.Service.Record(c.Request.Context(), outcome, amount, occurredAt)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("settlement record failed", zap.Error(err))
		}
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, snap, nil)
}
