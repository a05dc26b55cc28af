// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file resolves the caller's identity. The service trusts the gateway in
// front of it: the authenticated user id arrives in the X-User-ID header and
// is never read from request bodies.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// userIDHeader carries the authenticated user id, set by the gateway.
	userIDHeader = "X-User-ID"
	// userIDKey is the Gin context key holding the parsed id.
	userIDKey = "userID"
)

// RequireUser parses X-User-ID into an int64 and stores it in the context.
// Requests without a usable id are rejected with 401 before any handler runs.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(userIDHeader))
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "missing or invalid " + userIDHeader + " header",
			})
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// UserID returns the authenticated user id stored by RequireUser.
// The second return is false on routes that did not pass through it.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
