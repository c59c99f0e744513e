package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pickdesk/internal/authz"
	"pickdesk/internal/guardrail"
)

type GuardrailHandler struct {
	Machine *guardrail.Machine
	Authz   *authz.Authorizer
	Logger  *zap.Logger
}

func (h *GuardrailHandler) Register(r *gin.Engine) {
	group := r.Group("/api/v1/guardrail")
	group.GET("", h.get)
	group.PUT("/manual-halt", h.setManualHalt)
}

// @Summary Current guardrail state
// @Tags guardrail
// @Success 200 {object} apiResponse
// @Router /api/v1/guardrail [get]
func (h *GuardrailHandler) get(c *gin.Context) {
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesGuardrail, "guardrail:get", traceID)) {
		return
	}
	Ok(c, h.Machine.Snapshot(), nil)
}

type manualHaltRequest struct {
	Enabled bool `json:"enabled"`
}

// @Summary Engage or release the manual halt
// @Tags guardrail
// @Param body body manualHaltRequest true "manual halt"
// @Success 200 {object} apiResponse
// @Router /api/v1/guardrail/manual-halt [put]
func (h *GuardrailHandler) setManualHalt(c *gin.Context) {
	if h.Machine == nil {
		Error(c, http.StatusInternalServerError, "guardrail unavailable", nil)
		return
	}
	ident := requestIdentity(c)
	traceID := requestTraceID(c)
	if denied(c, h.Authz.Authorize(c.Request.Context(), ident, rolesOperator, "guardrail:manual_halt", traceID)) {
		return
	}

	var req manualHaltRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	snap := h.Machine.SetManualHalt(req.Enabled)
	if err := h.Machine.Checkpoint(c.Request.Context()); err != nil && h.Logger != nil {
		h.Logger.Warn("guardrail checkpoint failed", zap.Error(err))
	}
	if h.Logger != nil {
		h.Logger.Info("manual halt updated",
			zap.Bool("enabled", req.Enabled),
			zap.Bool("halted", snap.Halted),
			zap.String("requester_id", ident.UserID),
			zap.String("trace_id", traceID),
		)
	}
	Ok(c, snap, nil)
}
