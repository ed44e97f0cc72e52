package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/users"
)

const UserIDKey = "user_id"

type TokenVerifier interface {
	Verify(token string) (string, error)
}

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

// AuthRequired resolves the caller once per request. A missing or invalid
// token, or a token whose user no longer exists, ends the request with 401.
func AuthRequired(tokens TokenVerifier, finder UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := tokenFromRequest(c)
		if raw == "" {
			common.Fail(c, http.StatusUnauthorized, "missing token")
			return
		}

		userID, err := tokens.Verify(raw)
		if err != nil {
			common.Fail(c, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		if _, err := finder.FindByID(c.Request.Context(), userID); err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				common.Fail(c, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			common.Fail(c, http.StatusInternalServerError, "internal error")
			return
		}

		c.Set(UserIDKey, userID)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), userID))
		c.Next()
	}
}

// tokenFromRequest accepts "Authorization: Bearer <t>" and the older bare
// "token: <t>" header.
func tokenFromRequest(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	return strings.TrimSpace(c.GetHeader("token"))
}

// UserID returns the id AuthRequired stored on the context.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
