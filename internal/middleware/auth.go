package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-core/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID = "userID"
	ContextRoleID = "roleID"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (auth.Identity, error)
}

// AuthMiddleware validates the bearer token from the Authorization header or the token
// query parameter (browsers cannot set headers on a websocket upgrade). When required is
// false, a request without a token may identify itself through X-User-ID.
func AuthMiddleware(tokens TokenParser, required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if token == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
				return
			}
			if raw := c.GetHeader("X-User-ID"); raw != "" {
				userID, err := strconv.Atoi(raw)
				if err != nil || userID <= 0 {
					c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid X-User-ID"})
					return
				}
				c.Set(ContextUserID, userID)
			}
			c.Next()
			return
		}

		if tokens == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token verification unavailable"})
			return
		}
		identity, err := tokens.Parse(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(ContextUserID, identity.UserID)
		c.Set(ContextRoleID, identity.RoleID)
		c.Next()
	}
}

type authError string

func (e authError) Error() string { return string(e) }

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return c.Query("token"), nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", authError("invalid authorization header")
	}
	return strings.TrimSpace(parts[1]), nil
}

// RequireUser rejects requests that did not establish a user.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
		c.Next()
	}
}

// RequireRole restricts a route group to one role.
func RequireRole(roleID int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, ok := c.Get(ContextRoleID); !ok || role.(int) != roleID {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (int, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int)
	return id, ok && id > 0
}
