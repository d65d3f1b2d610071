package gates

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// analyzeRequest is the wire format shared by both remote gate services.
type analyzeRequest struct {
	Transaction *domain.Transaction    `json:"transaction"`
	History     *domain.AccountHistory `json:"history"`
}

// RemoteStatisticalGate calls an external clustering/Z-score service.
type RemoteStatisticalGate struct {
	url  string
	http *http.Client
}

// NewRemoteStatisticalGate creates a client for a remote statistical
// scorer. The timeout should match the layer's latency budget.
func NewRemoteStatisticalGate(url string, timeout time.Duration) *RemoteStatisticalGate {
	return &RemoteStatisticalGate{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Analyze posts the transaction and history to the remote scorer.
func (g *RemoteStatisticalGate) Analyze(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.StatisticalResult, error) {
	var out domain.StatisticalResult
	if err := postAnalyze(ctx, g.http, g.url, tx, history, &out); err != nil {
		return nil, err
	}
	if out.Score < 0 || out.Score > 10 {
		return nil, fmt.Errorf("%w: statistical score %.2f outside [0,10]", domain.ErrInvalidInput, out.Score)
	}
	return &out, nil
}

// RemoteNarrativeGate calls an external embedding-similarity service.
type RemoteNarrativeGate struct {
	url  string
	http *http.Client
}

// NewRemoteNarrativeGate creates a client for a remote narrative scorer.
func NewRemoteNarrativeGate(url string, timeout time.Duration) *RemoteNarrativeGate {
	return &RemoteNarrativeGate{
		url:  url,
		http: &http.Client{Timeout: timeout},
	}
}

// Analyze posts the transaction and history to the remote scorer.
func (g *RemoteNarrativeGate) Analyze(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.NarrativeResult, error) {
	var out domain.NarrativeResult
	if err := postAnalyze(ctx, g.http, g.url, tx, history, &out); err != nil {
		return nil, err
	}
	if out.Score < 0 || out.Score > 1 {
		return nil, fmt.Errorf("%w: narrative score %.2f outside [0,1]", domain.ErrInvalidInput, out.Score)
	}
	return &out, nil
}

func postAnalyze(ctx context.Context, client *http.Client, url string, tx *domain.Transaction, history *domain.AccountHistory, out any) error {
	body, err := json.Marshal(analyzeRequest{Transaction: tx, History: history})
	if err != nil {
		return fmt.Errorf("failed to marshal analyze request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/analyze", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: gate request failed: %v", domain.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: gate returned status %d", domain.ErrExternalUnavailable, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode gate response: %v", domain.ErrExternalUnavailable, err)
	}
	return nil
}
