package adjudicator

import (
	"encoding/json"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// reasonerDecision is the schema the reasoning service is asked to return.
type reasonerDecision struct {
	Decision            string   `json:"decision"`
	Confidence          float64  `json:"confidence"`
	Typology            string   `json:"typology"`
	Reasoning           string   `json:"reasoning"`
	KeyRiskFactors      []string `json:"key_risk_factors"`
	RegulatoryCitations []string `json:"regulatory_citations"`
}

// parsedResponse is the tagged result of decoding the reasoning reply.
// When Malformed is true, Decision carries the REVIEW fallback and Raw
// preserves the full response text for audit.
type parsedResponse struct {
	Decision  reasonerDecision
	Malformed bool
	Raw       string
}

// parseResponse extracts the JSON object between the first '{' and last '}'
// and decodes it against the expected schema. A reply with no such object,
// unparseable JSON, an unknown decision value, or an out-of-range confidence
// is tagged malformed and falls back to REVIEW at confidence 0.5 with the
// raw text as reasoning.
func parseResponse(raw string) parsedResponse {
	malformed := parsedResponse{
		Decision: reasonerDecision{
			Decision:   string(domain.DecisionReview),
			Confidence: 0.5,
			Reasoning:  raw,
		},
		Malformed: true,
		Raw:       raw,
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return malformed
	}

	var decision reasonerDecision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decision); err != nil {
		return malformed
	}

	switch domain.Decision(decision.Decision) {
	case domain.DecisionBlock, domain.DecisionApprove, domain.DecisionReview:
	default:
		return malformed
	}
	if decision.Confidence < 0 || decision.Confidence > 1 {
		return malformed
	}

	return parsedResponse{Decision: decision, Raw: raw}
}

// buildCitations converts the reasoning service's cited reference strings
// into citation records. The first whitespace-delimited token is treated as
// the source.
func buildCitations(citations []string) []domain.RegulatoryReference {
	refs := make([]domain.RegulatoryReference, 0, len(citations))
	for _, c := range citations {
		source := "Unknown"
		if fields := strings.Fields(c); len(fields) > 0 {
			source = fields[0]
		}
		refs = append(refs, domain.RegulatoryReference{
			Source:    source,
			Reference: c,
			Relevance: "Cited by adjudication reasoning",
		})
	}
	return refs
}
