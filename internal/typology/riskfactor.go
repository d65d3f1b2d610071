package typology

import (
	"fmt"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SynthesizeRiskFactors converts the raw gate scores, the primary typology
// match, and the transaction amount into discrete severity-tagged risk
// factors. Pure function: same input, same output. Rules are independent
// except where a band pair is mutually exclusive (highest band wins).
func SynthesizeRiskFactors(input *domain.AdjudicationInput, primary *domain.TypologyMatch) []domain.RiskFactor {
	var factors []domain.RiskFactor

	if input.StatisticalScore > 7.0 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "Extreme Statistical Anomaly",
			Severity:    domain.SeverityCritical,
			Description: fmt.Sprintf("Transaction has statistical anomaly score of %.1f (threshold: 3.0)", input.StatisticalScore),
			Evidence:    []string{fmt.Sprintf("Z-score: %.2f", input.StatisticalScore)},
		})
	} else if input.StatisticalScore > 5.0 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "High Statistical Anomaly",
			Severity:    domain.SeverityHigh,
			Description: "Transaction deviates significantly from peer group baseline",
			Evidence:    []string{fmt.Sprintf("Z-score: %.2f", input.StatisticalScore)},
		})
	}

	if input.NarrativeScore < 0.3 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "Severe Narrative Break",
			Severity:    domain.SeverityCritical,
			Description: "Transaction is highly inconsistent with customer's behavioral history",
			Evidence:    []string{fmt.Sprintf("Coherence score: %.2f", input.NarrativeScore)},
		})
	} else if input.NarrativeScore < 0.5 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "Narrative Inconsistency",
			Severity:    domain.SeverityHigh,
			Description: "Transaction does not fit customer's typical pattern",
			Evidence:    []string{fmt.Sprintf("Coherence score: %.2f", input.NarrativeScore)},
		})
	}

	if primary != nil {
		severity := domain.SeverityHigh
		if primary.Confidence > 0.7 {
			severity = domain.SeverityCritical
		}
		factors = append(factors, domain.RiskFactor{
			Factor:      primary.Name + " Pattern Detected",
			Severity:    severity,
			Description: primary.Description,
			Evidence:    primary.SignalsMatched,
		})
	}

	amount := input.Transaction.AmountSent()
	if amount >= 9000 && amount < 10000 {
		factors = append(factors, domain.RiskFactor{
			Factor:      "Near-Threshold Amount",
			Severity:    domain.SeverityMedium,
			Description: "Transaction amount is just below $10,000 reporting threshold",
			Evidence:    []string{fmt.Sprintf("Amount: $%.2f", amount)},
		})
	}

	return factors
}
