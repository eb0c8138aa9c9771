package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	bettorIDKey = "bettor_id"
	roleKey     = "role"
)

// Middleware validates bearer tokens and stores the caller in the context
func (m *TokenManager) Middleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Authorization header required",
			})
			return
		}

		// Extract token from "Bearer <token>" format
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid authorization header format. Expected: Bearer <token>",
			})
			return
		}

		claims, err := m.ValidateToken(parts[1])
		if err != nil {
			log.WithError(err).Debug("Token validation failed")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid or expired token",
			})
			return
		}

		c.Set(bettorIDKey, claims.BettorID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// AdminOnly rejects callers whose token does not carry the admin role.
// It must run after Middleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(roleKey); role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Admin role required",
			})
			return
		}
		c.Next()
	}
}

// GetBettorID retrieves the bettor ID from the context
func GetBettorID(c *gin.Context) (string, bool) {
	v, exists := c.Get(bettorIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
