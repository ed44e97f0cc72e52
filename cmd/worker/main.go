package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/suPer8Hu/ai-chat/internal/chat"
	"github.com/suPer8Hu/ai-chat/internal/config"
	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/metrics"
	"github.com/suPer8Hu/ai-chat/internal/store/rabbitmq"
)

// The worker drains the turn-event queue: every completed or failed turn is
// logged and counted. Malformed events are dead-lettered.
func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	lg := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat, cfg.IsProduction())).WithComponent("worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, cfg.Concurrency, lg)
	if err != nil {
		lg.Error("rabbitmq connect failed", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server failed", "error", err)
		}
	}()

	lg.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", cfg.Concurrency)

	err = consumer.Run(ctx, func(ctx context.Context, ev chat.TurnEvent) error {
		metrics.ObserveTurnEvent(string(ev.Status))
		l := lg.WithContext(logger.WithChatID(ctx, ev.ChatID))
		if ev.Status == chat.TurnFailed {
			l.Warn("turn failed", "user_id", ev.UserID, "user_message_id", ev.UserMessageID, "error", ev.Error, "at", ev.At)
			return nil
		}
		l.Info("turn completed", "user_id", ev.UserID, "assistant_message_id", ev.AssistantMessageID, "at", ev.At)
		return nil
	})
	if err != nil {
		lg.Error("consumer stopped", "error", err)
	}

	lg.Info("worker shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
