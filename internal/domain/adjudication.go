package domain

import (
	"fmt"
	"time"
)

// TriggerReason records which gate(s) escalated a transaction.
type TriggerReason string

const (
	TriggeredByStatistical TriggerReason = "statistical"
	TriggeredByNarrative   TriggerReason = "narrative"
	TriggeredByBoth        TriggerReason = "both"
)

// AdjudicationInput combines everything the adjudicator needs for one
// escalated transaction. Built exactly once per escalation by the gate
// pipeline; consumed read-only.
type AdjudicationInput struct {
	Transaction Transaction `json:"transaction"`

	// StatisticalScore is the anomaly score from the statistical gate, 0-10.
	StatisticalScore float64 `json:"statisticalScore"`

	// NarrativeScore is the coherence score from the narrative gate, 0-1.
	NarrativeScore float64 `json:"narrativeScore"`

	AccountHistory AccountHistory `json:"accountHistory"`
	TriggeredBy    TriggerReason  `json:"triggeredBy"`
}

// Validate rejects inputs that would violate adjudication invariants.
func (in *AdjudicationInput) Validate() error {
	if err := in.Transaction.Validate(); err != nil {
		return err
	}
	if in.StatisticalScore < 0 || in.StatisticalScore > 10 {
		return fmt.Errorf("%w: statistical score %.2f outside [0,10]", ErrInvalidInput, in.StatisticalScore)
	}
	if in.NarrativeScore < 0 || in.NarrativeScore > 1 {
		return fmt.Errorf("%w: narrative score %.2f outside [0,1]", ErrInvalidInput, in.NarrativeScore)
	}
	return in.AccountHistory.Stats.Validate()
}

// TypologyMatch is a detected money-laundering pattern with its evidence.
// Never mutated after creation; confidence is clamped to 1.0 at construction.
type TypologyMatch struct {
	Name           string   `json:"name"`
	Confidence     float64  `json:"confidence"`
	SignalsMatched []string `json:"signalsMatched"`
	Description    string   `json:"description"`
}

// Severity bands for risk factors.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RiskFactor is a discrete, severity-tagged risk finding.
type RiskFactor struct {
	Factor      string   `json:"factor"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Evidence    []string `json:"evidence,omitempty"`
}

// RegulatoryReference cites a regulatory document or requirement.
type RegulatoryReference struct {
	Source    string `json:"source"`
	Reference string `json:"reference"`
	Relevance string `json:"relevance"`
}

// Decision is the terminal outcome for a transaction.
type Decision string

const (
	DecisionBlock   Decision = "BLOCK"
	DecisionApprove Decision = "APPROVE"
	DecisionReview  Decision = "REVIEW"
)

// RecommendedAction is the compliance follow-up a SAR draft recommends.
type RecommendedAction string

const (
	ActionFileSAR              RecommendedAction = "file_sar"
	ActionEnhancedMonitoring   RecommendedAction = "enhanced_monitoring"
	ActionEscalateToCompliance RecommendedAction = "escalate_to_compliance"
)

// SARDraft is a structured Suspicious Activity Report draft prepared for
// compliance review. Immutable after creation.
type SARDraft struct {
	SubjectAccount     string `json:"subjectAccount"`
	SubjectName        string `json:"subjectName,omitempty"`
	FilingInstitution  string `json:"filingInstitution"`

	ActivityType       string    `json:"activityType"`
	ActivityDateStart  time.Time `json:"activityDateStart"`
	ActivityDateEnd    time.Time `json:"activityDateEnd"`
	TotalAmountInvolved float64  `json:"totalAmountInvolved"`

	Summary             string `json:"summary"`
	DetailedDescription string `json:"detailedDescription"`

	TransactionIDs       []string              `json:"transactionIds,omitempty"`
	RedFlags             []string              `json:"redFlags,omitempty"`
	RegulatoryReferences []RegulatoryReference `json:"regulatoryReferences,omitempty"`

	RecommendedAction RecommendedAction `json:"recommendedAction"`
}

// Verdict is the adjudicator's final decision with supporting evidence.
type Verdict struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`

	// Typology is the primary detected typology, empty when none matched.
	Typology           string  `json:"typology,omitempty"`
	TypologyConfidence float64 `json:"typologyConfidence,omitempty"`

	RiskFactors []RiskFactor `json:"riskFactors,omitempty"`
	RiskScore   float64      `json:"riskScore"`

	Citations []RegulatoryReference `json:"citations,omitempty"`

	// SARDraft is present iff Decision is BLOCK or REVIEW.
	SARDraft *SARDraft `json:"sarDraft,omitempty"`

	Reasoning string `json:"reasoning"`

	// Malformed is true when the reasoning service returned unusable JSON
	// and the verdict fell back to REVIEW with the raw text as reasoning.
	Malformed bool `json:"malformed,omitempty"`

	ProcessingMs int64  `json:"processingMs"`
	ModelUsed    string `json:"modelUsed,omitempty"`
}
