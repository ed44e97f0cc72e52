package chat

import (
	"context"
	"time"
)

type TurnStatus string

const (
	TurnCompleted TurnStatus = "completed"
	TurnFailed    TurnStatus = "failed"
)

// TurnEvent describes the outcome of one SendMessage call.
type TurnEvent struct {
	ChatID             string     `json:"chat_id"`
	UserID             string     `json:"user_id"`
	UserMessageID      string     `json:"user_message_id"`
	AssistantMessageID string     `json:"assistant_message_id,omitempty"`
	Status             TurnStatus `json:"status"`
	Error              string     `json:"error,omitempty"`
	At                 time.Time  `json:"at"`
}

type TurnPublisher interface {
	PublishTurn(ctx context.Context, ev TurnEvent) error
}

type noopPublisher struct{}

func (noopPublisher) PublishTurn(context.Context, TurnEvent) error { return nil }
