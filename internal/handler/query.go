package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pickdesk/internal/authz"
)

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func strQueryPtr(c *gin.Context, key string) *string {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		return &val
	}
	return nil
}

func timeQueryPtr(c *gin.Context, key string) *time.Time {
	if val := strings.TrimSpace(c.Query(key)); val != "" {
		if ts, err := time.Parse(time.RFC3339, val); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }

// pageParams reads and normalizes limit/offset with the same bounds the
// store applies, so pagination meta describes the page actually returned.
func pageParams(c *gin.Context) (int, int) {
	limit := intQuery(c, "limit", 50)
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func paginationMeta(limit, offset int, total int64) map[string]any {
	if limit <= 0 {
		limit = 0
	}
	if offset < 0 {
		offset = 0
	}
	hasNext := int64(offset+limit) < total
	return map[string]any{
		"limit":    limit,
		"offset":   offset,
		"total":    total,
		"has_next": hasNext,
	}
}

// denied maps an authorization error onto the response and reports whether
// the request must stop.
func denied(c *gin.Context, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, authz.ErrUnauthorized):
		Error(c, http.StatusUnauthorized, "identity required", nil)
	case errors.Is(err, authz.ErrForbidden):
		Error(c, http.StatusForbidden, "insufficient role", nil)
	default:
		Error(c, http.StatusInternalServerError, err.Error(), nil)
	}
	return true
}
