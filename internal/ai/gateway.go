package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-chat/internal/logger"
	"github.com/suPer8Hu/ai-chat/internal/metrics"
)

type GatewayOptions struct {
	// Timeout bounds each attempt. Zero means only the caller's context applies.
	Timeout time.Duration
	// MaxAttempts counts the first call; values below 1 mean 1.
	MaxAttempts int
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

// Gateway is the single entry point for completions. It owns the timeout and
// retry policy so providers stay plain API adapters.
type Gateway struct {
	name     string
	provider Provider
	opts     GatewayOptions
	log      *logger.Logger
}

func NewGateway(name string, provider Provider, opts GatewayOptions, log *logger.Logger) *Gateway {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Gateway{name: name, provider: provider, opts: opts, log: log.WithComponent("completion_gateway")}
}

func (g *Gateway) Name() string { return g.name }

// Complete sends the ordered history (ending with the new user message) and
// returns the reply. Every failure comes back as *UpstreamError.
func (g *Gateway) Complete(ctx context.Context, history []Message) (string, error) {
	if len(history) == 0 || history[len(history)-1].Role != RoleUser {
		return "", &UpstreamError{Provider: g.name, Err: errors.New("history must end with a user message")}
	}

	start := time.Now()
	var lastErr error
	attempt := 0
	for attempt < g.opts.MaxAttempts {
		attempt++
		reply, err := g.call(ctx, history)
		if err == nil {
			metrics.ObserveCompletion(g.name, "ok", time.Since(start))
			return reply, nil
		}
		lastErr = err

		if !retryable(err) || attempt >= g.opts.MaxAttempts {
			break
		}
		g.log.WithContext(ctx).Warn("completion attempt failed, retrying",
			"provider", g.name, "attempt", attempt, "error", err)

		select {
		case <-time.After(time.Duration(attempt) * g.opts.Backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
			metrics.ObserveCompletion(g.name, "error", time.Since(start))
			return "", &UpstreamError{Provider: g.name, Attempts: attempt, Err: lastErr}
		}
	}

	metrics.ObserveCompletion(g.name, "error", time.Since(start))
	return "", &UpstreamError{Provider: g.name, Attempts: attempt, Err: lastErr}
}

func (g *Gateway) call(ctx context.Context, history []Message) (string, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	reply, err := g.provider.Chat(ctx, history)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
