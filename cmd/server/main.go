package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/suPer8Hu/ai-chat/internal/ai"
	"github.com/suPer8Hu/ai-chat/internal/auth"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/db"
	"github.com/suPer8Hu/ai-chat/internal/httpapi"
	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/store/rabbitmq"
	"github.com/suPer8Hu/ai-chat/internal/store/redisstore"
	"github.com/suPer8Hu/ai-chat/internal/users"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat, cfg.IsProduction()))
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, lg); err != nil {
		lg.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens; returning unwinds their Close calls.
func run(cfg config.Config, lg *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("database connect (%s): %w", cfg.DBDriver, err)
	}
	if err := db.Migrate(gdb, &users.User{}, &chat.Chat{}, &chat.Message{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	// Provider registry; one provider is built for the process.
	reg := ai.NewRegistry()
	reg.Register("gemini", func(ctx context.Context, model string) (ai.Provider, error) {
		return ai.NewGeminiProvider(ctx, cfg.GeminiAPIKey, model)
	})
	reg.Register("openai", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, model), nil
	})
	reg.Register("ollama", func(_ context.Context, model string) (ai.Provider, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	provider, err := reg.Get(ctx, cfg.CompletionProvider, providerModel(cfg))
	if err != nil {
		return fmt.Errorf("completion provider %q (available: %s): %w", cfg.CompletionProvider, strings.Join(reg.Names(), ","), err)
	}
	if closer, ok := provider.(io.Closer); ok {
		defer closer.Close()
	}
	gateway := ai.NewGateway(cfg.CompletionProvider, provider, ai.GatewayOptions{
		Timeout:     cfg.CompletionTimeout,
		MaxAttempts: cfg.CompletionMaxAttempts,
	}, lg)

	// optional: login throttling
	var throttle *redisstore.Store
	if cfg.RedisAddr != "" {
		rdb, err := redisstore.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return err
		}
		throttle = redisstore.NewStore(rdb, cfg.LoginMaxFailures, cfg.LoginLockout)
		defer throttle.Close()
		lg.Info("login throttling enabled", "max_failures", cfg.LoginMaxFailures, "lockout", cfg.LoginLockout)
	}

	// optional: turn events
	var publisher chat.TurnPublisher
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			return fmt.Errorf("rabbitmq connect: %w", err)
		}
		defer pub.Close()
		publisher = pub
		lg.Info("turn events enabled", "queue", cfg.RabbitQueue)
	}

	chatSvc := chat.NewService(chat.NewRepo(gdb), gateway, publisher, lg, cfg.ChatContextWindowSize)

	deps := httpapi.Deps{
		DB:      gdb,
		Users:   users.NewStore(gdb),
		Tokens:  tokens,
		ChatSvc: chatSvc,
		Log:     lg,
	}
	if throttle != nil {
		deps.Throttle = throttle
	}
	r := httpapi.NewRouter(deps)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 10 * time.Second,
		// completions can take a while; leave room for retries
		WriteTimeout: cfg.CompletionTimeout*time.Duration(max(cfg.CompletionMaxAttempts, 1)) + 30*time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("server listening", "addr", srv.Addr, "provider", cfg.CompletionProvider, "db", cfg.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func providerModel(cfg config.Config) string {
	switch cfg.CompletionProvider {
	case "openai":
		return cfg.OpenAIModel
	case "ollama":
		return cfg.OllamaModel
	default:
		return cfg.GeminiModel
	}
}
