package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/db"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-chat/internal/logger"
)

type chatResp struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

type messageResp struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toChatResp(c chat.Chat) chatResp {
	return chatResp{ID: c.ID, Title: c.Title, CreatedAt: formatTime(c.CreatedAt)}
}

func callerID(c *gin.Context) (string, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
	}
	return uid, ok
}

type createChatReq struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	var req createChatReq
	// an empty body means a default title; anything else must be valid JSON
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			common.Fail(c, http.StatusBadRequest, "invalid json")
			return
		}
	}

	created, err := h.ChatSvc.CreateChat(c.Request.Context(), uid, req.Title)
	if err != nil {
		h.Log.WithContext(c.Request.Context()).Error("create chat failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	common.OK(c, toChatResp(*created))
}

func (h *Handler) ListChats(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}

	chats, err := h.ChatSvc.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.Log.WithContext(c.Request.Context()).Error("list chats failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]chatResp, 0, len(chats))
	for _, ch := range chats {
		out = append(out, toChatResp(ch))
	}
	common.OK(c, out)
}

func (h *Handler) GetMessages(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")
	ctx := logger.WithChatID(c.Request.Context(), chatID)

	msgs, err := h.ChatSvc.GetMessages(ctx, chatID, uid)
	if err != nil {
		h.failChat(ctx, c, err)
		return
	}
	out := make([]messageResp, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageResp{
			ID:        m.ID,
			ChatID:    m.ChatID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: formatTime(m.CreatedAt),
		})
	}
	common.OK(c, out)
}

type sendMessageReq struct {
	Content string `json:"content"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	uid, ok := callerID(c)
	if !ok {
		return
	}
	chatID := c.Param("chat_id")
	ctx := logger.WithChatID(c.Request.Context(), chatID)

	var req sendMessageReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		common.Fail(c, http.StatusBadRequest, "content required")
		return
	}

	reply, _, err := h.ChatSvc.SendMessage(ctx, uid, chatID, req.Content)
	if err != nil {
		h.failChat(ctx, c, err)
		return
	}
	common.OK(c, gin.H{"reply": reply})
}

// failChat maps chat-route errors. Missing and foreign chats both answer 403
// so ids cannot be enumerated.
func (h *Handler) failChat(ctx context.Context, c *gin.Context, err error) {
	var upstream *ai.UpstreamError
	switch {
	case errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrChatNotFound):
		common.Fail(c, http.StatusForbidden, "forbidden")
	case errors.As(err, &upstream):
		h.Log.WithContext(ctx).Error("completion failed",
			"provider", upstream.Provider, "attempts", upstream.Attempts, "error", upstream.Err)
		common.Fail(c, http.StatusBadGateway, "completion provider failed")
	default:
		h.Log.WithContext(ctx).Error("chat request failed", "error", err)
		common.Fail(c, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := db.Ping(ctx, h.DB); err != nil {
		h.Log.WithContext(ctx).Error("health check failed", "error", err)
		common.Fail(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	common.OK(c, gin.H{"status": "ok"})
}
