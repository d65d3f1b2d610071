package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// fakeKB returns canned results keyed by query substring.
type fakeKB struct {
	results map[string][]domain.SearchResult
	err     error
	queries []string
}

func (f *fakeKB) Search(ctx context.Context, query string, limit int, sourceFilter string) ([]domain.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	for key, results := range f.results {
		if strings.Contains(query, key) {
			if len(results) > limit {
				return results[:limit], nil
			}
			return results, nil
		}
	}
	return nil, nil
}

func result(source, filename, text string, score float64) domain.SearchResult {
	return domain.SearchResult{
		Text:     text,
		Metadata: domain.SearchMetadata{Source: source, Filename: filename},
		Score:    score,
	}
}

func adjudicationInput(amount float64) *domain.AdjudicationInput {
	return &domain.AdjudicationInput{
		Transaction: domain.Transaction{
			ID:        "tx-1",
			Sender:    domain.Party{AccountID: "a", BankID: "b"},
			Receiver:  domain.Party{AccountID: "c", BankID: "d"},
			Amount:    domain.Amount{Sent: amount, Received: amount},
			Timestamp: time.Now(),
		},
		StatisticalScore: 5,
		NarrativeScore:   0.4,
		TriggeredBy:      domain.TriggeredByBoth,
	}
}

func TestContextBuilder_Format(t *testing.T) {
	b := NewContextBuilder(&fakeKB{}, 20)

	out := b.Format([]domain.SearchResult{
		result("FATF", "rec20.pdf", "This passage is much longer than twenty characters.", 0.91),
		result("EU", "amld6.pdf", "Short text.", 0.85),
	})

	if !strings.Contains(out, "SOURCE 1: [FATF] rec20.pdf (relevance: 0.91)") {
		t.Errorf("missing first source header: %s", out)
	}
	if !strings.Contains(out, "SOURCE 2: [EU] amld6.pdf (relevance: 0.85)") {
		t.Errorf("missing second source header: %s", out)
	}
	if !strings.Contains(out, "This passage is much") || strings.Contains(out, "twenty characters") {
		t.Errorf("expected passage truncated to 20 chars: %s", out)
	}
}

func TestContextBuilder_TypologyGuidance_Dedupe(t *testing.T) {
	dup := result("FATF", "a.pdf", "Structuring guidance text shared across chunks.", 0.9)
	kb := &fakeKB{results: map[string][]domain.SearchResult{
		"red flags":  {dup, result("FATF", "b.pdf", "Unique passage one.", 0.8)},
		"indicators": {dup},
		"detection":  {result("EU", "c.pdf", "Unique passage two.", 0.7)},
	}}
	b := NewContextBuilder(kb, 1500)

	out, err := b.TypologyGuidance(context.Background(), "Structuring")
	if err != nil {
		t.Fatalf("TypologyGuidance() error: %v", err)
	}
	if got := strings.Count(out, "Structuring guidance text"); got != 1 {
		t.Errorf("duplicate passage appears %d times, want 1", got)
	}
	if !strings.Contains(out, "SOURCE 3") || strings.Contains(out, "SOURCE 4") {
		t.Errorf("expected exactly 3 unique sources: %s", out)
	}
	if len(kb.queries) != 3 {
		t.Errorf("expected 3 query phrasings, got %d", len(kb.queries))
	}
}

func TestContextBuilder_RegulatoryContext(t *testing.T) {
	kb := &fakeKB{results: map[string][]domain.SearchResult{
		"red flags":  {result("FATF", "a.pdf", "Typology guidance.", 0.9)},
		"threshold":  {result("FinCEN", "ctr.pdf", "Threshold guidance.", 0.8)},
		"suspicious": {result("FinCEN", "sar.pdf", "SAR guidance.", 0.7)},
	}}
	b := NewContextBuilder(kb, 1500)

	t.Run("near-threshold with typology includes all sections", func(t *testing.T) {
		primary := &domain.TypologyMatch{Name: "Structuring", Confidence: 0.8, SignalsMatched: []string{"x"}}
		out, err := b.RegulatoryContext(context.Background(), adjudicationInput(9500), primary)
		if err != nil {
			t.Fatalf("RegulatoryContext() error: %v", err)
		}
		for _, section := range []string{"TYPOLOGY GUIDANCE (Structuring):", "THRESHOLD GUIDANCE:", "SAR REQUIREMENTS:"} {
			if !strings.Contains(out, section) {
				t.Errorf("missing section %q", section)
			}
		}
	})

	t.Run("no typology and normal amount yields SAR section only", func(t *testing.T) {
		out, err := b.RegulatoryContext(context.Background(), adjudicationInput(500), nil)
		if err != nil {
			t.Fatalf("RegulatoryContext() error: %v", err)
		}
		if strings.Contains(out, "TYPOLOGY GUIDANCE") || strings.Contains(out, "THRESHOLD GUIDANCE") {
			t.Errorf("unexpected section in context: %s", out)
		}
		if !strings.Contains(out, "SAR REQUIREMENTS:") {
			t.Error("missing SAR requirements section")
		}
	})

	t.Run("search failure propagates", func(t *testing.T) {
		down := &fakeKB{err: fmt.Errorf("%w: connection refused", domain.ErrExternalUnavailable)}
		_, err := NewContextBuilder(down, 1500).RegulatoryContext(context.Background(), adjudicationInput(500), nil)
		if !errors.Is(err, domain.ErrExternalUnavailable) {
			t.Errorf("expected ErrExternalUnavailable, got %v", err)
		}
	})
}
