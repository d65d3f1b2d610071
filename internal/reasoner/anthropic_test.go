package reasoner

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestNewAnthropicClient_RequiresAPIKey(t *testing.T) {
	if _, err := NewAnthropicClient(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestAnthropicClient_Chat(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": `{"decision":"REVIEW"}`}},
		})
	}))
	defer srv.Close()

	c, err := NewAnthropicClient("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("NewAnthropicClient() error: %v", err)
	}

	out, err := c.Chat(context.Background(), domain.ChatRequest{
		UserMessage:  "analyze this",
		SystemPrompt: "you are an expert",
		Model:        "claude-sonnet-4-20250514",
		MaxTokens:    1500,
		Temperature:  0,
	})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if out != `{"decision":"REVIEW"}` {
		t.Errorf("Chat() = %q", out)
	}

	if gotBody["system"] != "you are an expert" {
		t.Errorf("system prompt = %v", gotBody["system"])
	}
	if gotBody["model"] != "claude-sonnet-4-20250514" {
		t.Errorf("model = %v", gotBody["model"])
	}
}

func TestAnthropicClient_Chat_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, _ := NewAnthropicClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), domain.ChatRequest{UserMessage: "x", Model: "m", MaxTokens: 10})
	if !errors.Is(err, domain.ErrExternalUnavailable) {
		t.Errorf("expected ErrExternalUnavailable, got %v", err)
	}
}

func TestAnthropicClient_Chat_Unreachable(t *testing.T) {
	c, _ := NewAnthropicClient("test-key", WithBaseURL("http://127.0.0.1:1"))
	_, err := c.Chat(context.Background(), domain.ChatRequest{UserMessage: "x", Model: "m", MaxTokens: 10})
	if !errors.Is(err, domain.ErrExternalUnavailable) {
		t.Errorf("expected ErrExternalUnavailable, got %v", err)
	}
}

func TestAnthropicClient_Chat_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"content": []any{}})
	}))
	defer srv.Close()

	c, _ := NewAnthropicClient("test-key", WithBaseURL(srv.URL))
	_, err := c.Chat(context.Background(), domain.ChatRequest{UserMessage: "x", Model: "m", MaxTokens: 10})
	if !errors.Is(err, domain.ErrExternalUnavailable) {
		t.Errorf("expected ErrExternalUnavailable, got %v", err)
	}
}
