// Package reasoner provides clients for the language-model reasoning
// service used by the verdict adjudicator.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const anthropicMessagesURL = "https://api.anthropic.com/v1/messages"

// AnthropicClient implements domain.Reasoner against the Anthropic
// Messages API.
type AnthropicClient struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// AnthropicOption customizes the client.
type AnthropicOption func(*AnthropicClient)

// WithBaseURL overrides the API endpoint. Used by tests and proxies.
func WithBaseURL(url string) AnthropicOption {
	return func(c *AnthropicClient) { c.baseURL = url }
}

// WithTimeout sets the request timeout.
func WithTimeout(timeout time.Duration) AnthropicOption {
	return func(c *AnthropicClient) { c.httpClient.Timeout = timeout }
}

// NewAnthropicClient creates a reasoning client.
func NewAnthropicClient(apiKey string, opts ...AnthropicOption) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	c := &AnthropicClient{
		apiKey:  apiKey,
		baseURL: anthropicMessagesURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type anthropicResponse struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Role       string `json:"role"`
	Model      string `json:"model"`
	StopReason string `json:"stop_reason"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends one user message with a system prompt and returns the text of
// the reply. Connectivity and non-200 responses are reported as
// ErrExternalUnavailable.
func (c *AnthropicClient) Chat(ctx context.Context, req domain.ChatRequest) (string, error) {
	requestBody := map[string]any{
		"model":       req.Model,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"system":      req.SystemPrompt,
		"messages": []map[string]string{
			{
				"role":    "user",
				"content": req.UserMessage,
			},
		},
	}

	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(string(jsonBody)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: reasoning request failed: %v", domain.ErrExternalUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read reasoning response: %v", domain.ErrExternalUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: reasoning API error (status %d): %s", domain.ErrExternalUnavailable, resp.StatusCode, string(body))
	}

	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("%w: failed to parse reasoning response: %v", domain.ErrExternalUnavailable, err)
	}

	if len(response.Content) == 0 {
		return "", fmt.Errorf("%w: no content in reasoning response", domain.ErrExternalUnavailable)
	}

	return response.Content[0].Text, nil
}
