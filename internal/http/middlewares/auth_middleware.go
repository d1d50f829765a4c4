package middlewares

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nutriscan/nutriscan/internal/auth"
)

// Keep this small interface so tests can fake it easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type AuthMiddleware struct {
	jwt TokenVerifier
}

func NewAuthMiddleware(jwt TokenVerifier) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

const (
	ctxUserIDKey   = "auth.userID"
	ctxEmailKey    = "auth.email"
	ctxVerifiedKey = "auth.emailVerified"
)

func abortAuth(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error": gin.H{
			"code":      code,
			"message":   message,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")

		if !strings.HasPrefix(authHeader, "Bearer ") {
			abortAuth(c, "UNAUTHORIZED", "Missing or invalid Authorization header")
			return
		}

		raw := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))

		if raw == "" {
			abortAuth(c, "UNAUTHORIZED", "Missing or invalid access token")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)

		if err != nil {
			abortAuth(c, "UNAUTHORIZED", "Invalid or expired access token")
			return
		}

		// Stash useful bits of identity on the context
		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxEmailKey, claims.Email)
		c.Set(ctxVerifiedKey, claims.EmailVerified)

		c.Next()
	}
}

// RequireVerified gates routes that need a confirmed email address. Must run
// after RequireAuth.
func (m *AuthMiddleware) RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		verified, ok := EmailVerifiedFromContext(c)

		if !ok || !verified {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error": gin.H{
					"code":      "EMAIL_NOT_VERIFIED",
					"message":   "Please verify your email address first",
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				},
			})

			return
		}

		c.Next()
	}
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)

	if !ok {
		return "", false
	}

	id, ok := v.(string)

	return id, ok
}

func EmailFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxEmailKey)

	if !ok {
		return "", false
	}

	email, ok := v.(string)

	return email, ok
}

func EmailVerifiedFromContext(c *gin.Context) (bool, bool) {
	v, ok := c.Get(ctxVerifiedKey)

	if !ok {
		return false, false
	}

	verified, ok := v.(bool)

	return verified, ok
}
