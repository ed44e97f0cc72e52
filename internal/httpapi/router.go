package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/common"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-chat/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/users"
	"gorm.io/gorm"
)

type Deps struct {
	DB       *gorm.DB
	Users    *users.Store
	Tokens   *auth.TokenService
	ChatSvc  *chat.Service
	Throttle handlers.LoginThrottle
	Log      *logger.Logger
}

func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(d.DB, d.Users, d.Tokens, d.ChatSvc, d.Throttle, log)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// auth
	r.POST("/signup", h.Signup)
	r.POST("/login", h.Login)

	// chats (token required)
	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(d.Tokens, d.Users))
	authGroup.POST("/chats", h.CreateChat)
	authGroup.GET("/chats", h.ListChats)
	authGroup.GET("/chats/:chat_id", h.GetMessages)
	authGroup.POST("/chats/:chat_id", h.SendMessage)
	return r
}
