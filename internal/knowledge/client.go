package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Client is an HTTP client for the vector-search knowledge-base service.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a knowledge-base client for the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit"`
	Source string `json:"source,omitempty"`
}

type searchResponse struct {
	Results []domain.SearchResult `json:"results"`
}

// Search queries the knowledge base. Connectivity failures are reported as
// ErrExternalUnavailable.
func (c *Client) Search(ctx context.Context, query string, limit int, sourceFilter string) ([]domain.SearchResult, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit, Source: sourceFilter})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: knowledge base search: %v", domain.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: knowledge base returned status %d", domain.ErrExternalUnavailable, resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode search response: %v", domain.ErrExternalUnavailable, err)
	}

	return out.Results, nil
}

// Noop is a knowledge base that returns no results. Used when no
// knowledge-base service is configured; adjudication proceeds with an
// empty regulatory context.
type Noop struct{}

// Search always returns an empty result set.
func (Noop) Search(ctx context.Context, query string, limit int, sourceFilter string) ([]domain.SearchResult, error) {
	return nil, nil
}
