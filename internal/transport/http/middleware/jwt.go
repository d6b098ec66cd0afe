package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ollamachat/internal/model"
	"ollamachat/internal/pkg/jwtutil"
	"ollamachat/internal/transport/http/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextUserKey   = "user"

	accessTokenCookie = "accessToken"
)

// UserResolver maps an authenticated user id to a live account. nil with a
// nil error means the account no longer exists.
type UserResolver interface {
	GetUserByID(id uint) (*model.User, error)
}

// AuthJWT accepts a bearer token or the accessToken cookie, verifies the
// signature, and re-resolves the user on every request so tokens for deleted
// users stop working immediately.
func AuthJWT(secret string, users UserResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token")
			c.Abort()
			return
		}

		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil || claims.UserID == 0 {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		user, err := users.GetUserByID(claims.UserID)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, "resolve user failed")
			c.Abort()
			return
		}
		if user == nil {
			response.Error(c, http.StatusUnauthorized, "user no longer exists")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if strings.HasPrefix(authHeader, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	}
	if cookie, err := c.Cookie(accessTokenCookie); err == nil {
		return strings.TrimSpace(cookie)
	}
	return ""
}
