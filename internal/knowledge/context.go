// Package knowledge retrieves regulatory guidance and formats it as context
// for the adjudication reasoning call.
package knowledge

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ContextBuilder turns knowledge-base search results into the regulatory
// context blob embedded in the adjudication prompt.
type ContextBuilder struct {
	kb       domain.KnowledgeBase
	maxChars int
}

// NewContextBuilder creates a context builder. maxChars caps each retrieved
// passage; zero uses the 1500-character default.
func NewContextBuilder(kb domain.KnowledgeBase, maxChars int) *ContextBuilder {
	if maxChars <= 0 {
		maxChars = 1500
	}
	return &ContextBuilder{kb: kb, maxChars: maxChars}
}

// RegulatoryContext assembles the full context blob for one adjudication:
// typology-specific guidance when a typology was detected, threshold guidance
// for near-threshold amounts, and general SAR filing requirements.
//
// An unreachable knowledge base fails the adjudication; a degraded context
// could bias the reasoning call toward approval.
func (b *ContextBuilder) RegulatoryContext(ctx context.Context, input *domain.AdjudicationInput, primary *domain.TypologyMatch) (string, error) {
	var contexts []string

	if primary != nil {
		guidance, err := b.TypologyGuidance(ctx, primary.Name)
		if err != nil {
			return "", err
		}
		if guidance != "" {
			contexts = append(contexts, fmt.Sprintf("TYPOLOGY GUIDANCE (%s):\n%s", primary.Name, guidance))
		}
	}

	amount := input.Transaction.AmountSent()
	if amount >= 9000 && amount < 10000 {
		results, err := b.kb.Search(ctx, "structuring reporting threshold $10000", 3, "")
		if err != nil {
			return "", err
		}
		if len(results) > 0 {
			contexts = append(contexts, "THRESHOLD GUIDANCE:\n"+b.Format(results))
		}
	}

	results, err := b.kb.Search(ctx, "suspicious activity report filing requirements", 3, "")
	if err != nil {
		return "", err
	}
	if len(results) > 0 {
		contexts = append(contexts, "SAR REQUIREMENTS:\n"+b.Format(results))
	}

	return strings.Join(contexts, "\n\n"), nil
}

// TypologyGuidance retrieves guidance for one typology by running several
// phrasings of the query and deduplicating the merged results.
func (b *ContextBuilder) TypologyGuidance(ctx context.Context, typology string) (string, error) {
	queries := []string{
		typology + " money laundering typology red flags",
		typology + " suspicious activity indicators",
		typology + " detection methods AML",
	}

	var all []domain.SearchResult
	for _, q := range queries {
		results, err := b.kb.Search(ctx, q, 3, "")
		if err != nil {
			return "", err
		}
		all = append(all, results...)
	}

	unique := dedupe(all)
	if len(unique) > 6 {
		unique = unique[:6]
	}
	return b.Format(unique), nil
}

// SARRequirements retrieves general SAR filing guidance.
func (b *ContextBuilder) SARRequirements(ctx context.Context) (string, error) {
	results, err := b.kb.Search(ctx, "Suspicious Activity Report filing requirements thresholds", 5, "")
	if err != nil {
		return "", err
	}
	return b.Format(results), nil
}

// Format renders search results as numbered, source-attributed blocks, each
// passage truncated to the configured character budget.
func (b *ContextBuilder) Format(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		text := r.Text
		if len(text) > b.maxChars {
			text = text[:b.maxChars]
		}
		parts = append(parts, fmt.Sprintf("---\nSOURCE %d: [%s] %s (relevance: %.2f)\n%s\n---",
			i+1, r.Metadata.Source, r.Metadata.Filename, r.Score, text))
	}
	return strings.Join(parts, "\n")
}

// dedupe removes results whose leading text duplicates an earlier result.
// Passages are compared on their first 100 characters, mirroring how the
// knowledge base chunks overlapping documents.
func dedupe(results []domain.SearchResult) []domain.SearchResult {
	seen := make(map[string]struct{}, len(results))
	unique := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		key := r.Text
		if len(key) > 100 {
			key = key[:100]
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, r)
	}
	return unique
}
