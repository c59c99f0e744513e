package handler

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"pickdesk/internal/authz"
)

const (
	headerUserID  = "X-User-Id"
	headerRole    = "X-User-Role"
	headerTraceID = "X-Trace-Id"

	ctxIdentityKey = "pickdesk.identity"
	ctxTraceIDKey  = "pickdesk.trace_id"
)

// IdentityMiddleware resolves the caller from the gateway-injected identity
// headers and assigns the request a trace id. A request with no or malformed
// identity headers proceeds with a nil identity; the authorization layer
// turns that into a 401 per operation.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(headerTraceID))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(ctxTraceIDKey, traceID)
		c.Header(headerTraceID, traceID)

		userID := strings.TrimSpace(c.GetHeader(headerUserID))
		role, err := authz.ParseRole(c.GetHeader(headerRole))
		if userID != "" && err == nil {
			c.Set(ctxIdentityKey, &authz.Identity{UserID: userID, Role: role})
		}
		c.Next()
	}
}

func requestIdentity(c *gin.Context) *authz.Identity {
	if v, ok := c.Get(ctxIdentityKey); ok {
		if ident, ok := v.(*authz.Identity); ok {
			return ident
		}
	}
	return nil
}

func requestTraceID(c *gin.Context) string {
	if v, ok := c.Get(ctxTraceIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
