package ai

import "context"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of history in store vocabulary. Providers translate
// Role into whatever their API expects.
type Message struct {
	Role    string
	Content string
}

// Provider turns an ordered history whose last entry is the new user message
// into the assistant's reply.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}
