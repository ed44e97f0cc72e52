package handlers

import (
	"context"

	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/users"
	"gorm.io/gorm"
)

// LoginThrottle limits repeated failed logins for one email.
type LoginThrottle interface {
	CheckLogin(ctx context.Context, email string) error
	RecordLoginFailure(ctx context.Context, email string) error
	ResetLogin(ctx context.Context, email string) error
}

type Handler struct {
	DB       *gorm.DB
	Users    *users.Store
	Tokens   *auth.TokenService
	ChatSvc  *chat.Service
	Throttle LoginThrottle
	Log      *logger.Logger
}

type noThrottle struct{}

func (noThrottle) CheckLogin(context.Context, string) error         { return nil }
func (noThrottle) RecordLoginFailure(context.Context, string) error { return nil }
func (noThrottle) ResetLogin(context.Context, string) error         { return nil }

func NewHandler(db *gorm.DB, userStore *users.Store, tokens *auth.TokenService, chatSvc *chat.Service, throttle LoginThrottle, log *logger.Logger) *Handler {
	if throttle == nil {
		throttle = noThrottle{}
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Handler{
		DB:       db,
		Users:    userStore,
		Tokens:   tokens,
		ChatSvc:  chatSvc,
		Throttle: throttle,
		Log:      log.WithComponent("handlers"),
	}
}
