package domain

import "context"

// StatisticalGate scores a transaction against behavioral peer-group
// baselines. Implementations are network-bound and must honor the context
// deadline; an unreachable scorer returns an error wrapping
// ErrExternalUnavailable.
type StatisticalGate interface {
	Analyze(ctx context.Context, tx *Transaction, history *AccountHistory) (*StatisticalResult, error)
}

// NarrativeGate scores how well a transaction fits the account's behavioral
// narrative.
type NarrativeGate interface {
	Analyze(ctx context.Context, tx *Transaction, history *AccountHistory) (*NarrativeResult, error)
}

// SearchResult is one hit from the regulatory knowledge base.
type SearchResult struct {
	Text     string         `json:"text"`
	Metadata SearchMetadata `json:"metadata"`
	Score    float64        `json:"score"`
}

// SearchMetadata identifies the document a search hit came from.
type SearchMetadata struct {
	Source   string `json:"source"`
	Filename string `json:"filename"`
}

// KnowledgeBase is the regulatory-document vector search service.
// sourceFilter restricts results to one source (e.g. "FATF"); empty means
// no filter.
type KnowledgeBase interface {
	Search(ctx context.Context, query string, limit int, sourceFilter string) ([]SearchResult, error)
}

// ChatRequest is one call to the reasoning service.
type ChatRequest struct {
	UserMessage  string
	SystemPrompt string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Reasoner is the external language-model reasoning service.
type Reasoner interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}
