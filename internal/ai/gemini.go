package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const geminiRoleModel = "model"

// GeminiProvider replays the stored history into a fresh chat session and
// sends the newest user message.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: client.GenerativeModel(model)}, nil
}

func (p *GeminiProvider) Close() error {
	return p.client.Close()
}

// toGeminiContents maps assistant to Gemini's "model" role. Adjacent turns
// with the same role are merged; a failed turn can leave two user messages
// in a row.
func toGeminiContents(messages []Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := RoleUser
		if m.Role == RoleAssistant {
			role = geminiRoleModel
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text(m.Content))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	contents := toGeminiContents(messages)
	if len(contents) == 0 {
		return "", errors.New("gemini: empty history")
	}
	last := contents[len(contents)-1]
	if last.Role != RoleUser {
		return "", errors.New("gemini: history must end with a user message")
	}

	cs := p.model.StartChat()
	cs.History = contents[:len(contents)-1]

	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			return "", &StatusError{Provider: "gemini", StatusCode: gErr.Code, Message: gErr.Message}
		}
		return "", fmt.Errorf("gemini: %w", err)
	}
	return extractText(resp), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// first candidate only
		break
	}
	return b.String()
}
