package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
)

var mixedHistory = []Message{
	{Role: RoleUser, Content: "hi"},
	{Role: RoleAssistant, Content: "hello"},
	{Role: RoleUser, Content: "how are you"},
}

func TestOllamaProvider_Chat(t *testing.T) {
	var got ollamaChatReq
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResp{Message: ollamaMsg{Role: "assistant", Content: "fine"}})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "llama3")
	reply, err := p.Chat(context.Background(), mixedHistory)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "fine" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "llama3" || got.Stream {
		t.Fatalf("unexpected request: %+v", got)
	}
	if len(got.Messages) != 3 || got.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
}

func TestOllamaProvider_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "").Chat(context.Background(), mixedHistory)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 StatusError, got %v", err)
	}
	if !retryable(err) {
		t.Fatal("503 should be retryable")
	}
}

func TestOpenAIProvider_Chat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer key")
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"doing well"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("sk-test", srv.URL+"/v1", "gpt-test")
	reply, err := p.Chat(context.Background(), mixedHistory)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "doing well" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 3 || got.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected request: %+v", got)
	}
}

func TestOpenAIProvider_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIProvider("sk-test", srv.URL, "gpt-test").Chat(context.Background(), mixedHistory)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
}

func TestToGeminiContents_MapsAssistantToModel(t *testing.T) {
	contents := toGeminiContents(mixedHistory)
	if len(contents) != 3 {
		t.Fatalf("expected 3 contents, got %d", len(contents))
	}
	roles := []string{contents[0].Role, contents[1].Role, contents[2].Role}
	if roles[0] != "user" || roles[1] != "model" || roles[2] != "user" {
		t.Fatalf("unexpected roles %v", roles)
	}
	if txt, ok := contents[1].Parts[0].(genai.Text); !ok || string(txt) != "hello" {
		t.Fatalf("unexpected part %#v", contents[1].Parts[0])
	}
}

func TestToGeminiContents_MergesAdjacentUserTurns(t *testing.T) {
	contents := toGeminiContents([]Message{
		{Role: RoleUser, Content: "first try"},
		{Role: RoleUser, Content: "second try"},
	})
	if len(contents) != 1 || len(contents[0].Parts) != 2 {
		t.Fatalf("expected one merged content with two parts, got %+v", contents)
	}
}

func TestExtractText(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Text("b")}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("ignored")}}},
	}}
	if got := extractText(resp); got != "ab" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := extractText(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		return &scriptedProvider{}, nil
	})

	if _, err := reg.Get(context.Background(), "FAKE", ""); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, err := reg.Get(context.Background(), "missing", ""); err == nil {
		t.Fatal("expected unknown provider error")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "fake" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestStatusErrorFromGemini(t *testing.T) {
	err := &StatusError{Provider: "gemini", StatusCode: http.StatusServiceUnavailable, Message: "overloaded"}
	if !retryable(fmt.Errorf("wrapped: %w", err)) {
		t.Fatal("wrapped 503 should be retryable")
	}
}
