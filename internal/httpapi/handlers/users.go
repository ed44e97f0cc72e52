package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/store/redisstore"
	"github.com/suPer8Hu/ai-chat/internal/users"
)

const (
	msgInvalidCredentials = "invalid credentials"
	maxPasswordBytes      = 72
)

type credentialsReq struct {
	Email    string `json:"email" binding:"required,max=255"`
	Password string `json:"password" binding:"required"`
}

type tokenResp struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// dummyHash is compared against when the email is unknown so both login
// failures cost one bcrypt comparison.
var (
	dummyHashOnce sync.Once
	dummyHash     string
)

func timingHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("not-a-real-password")
	})
	return dummyHash
}

func bindCredentials(c *gin.Context) (credentialsReq, bool) {
	var req credentialsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "email and password required")
		return req, false
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || strings.TrimSpace(req.Password) == "" {
		common.Fail(c, http.StatusBadRequest, "email and password required")
		return req, false
	}
	// bcrypt only looks at the first 72 bytes
	if len(req.Password) > maxPasswordBytes {
		common.Fail(c, http.StatusBadRequest, "password too long")
		return req, false
	}
	return req, true
}

func (h *Handler) Signup(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.Log.WithContext(ctx).Error("hash password failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	u, err := h.Users.Create(ctx, req.Email, hash)
	if err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			common.Fail(c, http.StatusConflict, "email already registered")
			return
		}
		h.Log.WithContext(ctx).Error("create user failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	h.Log.WithContext(ctx).Info("user signed up", "user_id", u.ID)
	h.issueToken(c, u.ID)
}

func (h *Handler) Login(c *gin.Context) {
	req, ok := bindCredentials(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	log := h.Log.WithContext(ctx)

	if err := h.Throttle.CheckLogin(ctx, req.Email); err != nil {
		if errors.Is(err, redisstore.ErrTooManyAttempts) {
			common.Fail(c, http.StatusTooManyRequests, "too many failed login attempts, try again later")
			return
		}
		// throttling is best effort; a Redis outage must not block logins
		log.Warn("login throttle check failed", "error", err)
	}

	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, users.ErrUserNotFound) {
		log.Error("find user failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}

	if u == nil {
		auth.CheckPassword(timingHash(), req.Password)
		h.loginFailed(c, req.Email)
		return
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		h.loginFailed(c, req.Email)
		return
	}

	if err := h.Throttle.ResetLogin(ctx, req.Email); err != nil {
		log.Warn("reset login throttle failed", "error", err)
	}
	h.issueToken(c, u.ID)
}

func (h *Handler) loginFailed(c *gin.Context, email string) {
	ctx := c.Request.Context()
	if err := h.Throttle.RecordLoginFailure(ctx, email); err != nil {
		h.Log.WithContext(ctx).Warn("record login failure failed", "error", err)
	}
	common.Fail(c, http.StatusUnauthorized, msgInvalidCredentials)
}

func (h *Handler) issueToken(c *gin.Context, userID string) {
	token, err := h.Tokens.Issue(userID)
	if err != nil {
		h.Log.WithContext(c.Request.Context()).Error("issue token failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	common.OK(c, tokenResp{UserID: userID, AccessToken: token, TokenType: "bearer"})
}
