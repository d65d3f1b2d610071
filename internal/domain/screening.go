package domain

import "time"

// Layer names for the staged pipeline.
type Layer string

const (
	LayerStatistical Layer = "statistical"
	LayerNarrative   Layer = "narrative"
	LayerExpert      Layer = "expert"
)

// LayerResult records the outcome of one pipeline layer.
type LayerResult struct {
	Layer     Layer          `json:"layer"`
	Score     float64        `json:"score"`
	Passed    bool           `json:"passed"`
	ProcessMs int64          `json:"processMs"`
	Details   map[string]any `json:"details,omitempty"`
}

// PipelineResult is the complete record of one screening run: which layers
// ran, their scores, and the final decision. Created once per transaction.
type PipelineResult struct {
	ID            string `json:"id"`
	TenantID      string `json:"tenantId"`
	TransactionID string `json:"transactionId"`

	Statistical LayerResult  `json:"statistical"`
	Narrative   *LayerResult `json:"narrative,omitempty"`
	Expert      *Verdict     `json:"expert,omitempty"`

	FinalDecision   Decision `json:"finalDecision"`
	FinalConfidence float64  `json:"finalConfidence"`

	TotalMs       int64     `json:"totalMs"`
	LayersInvoked []Layer   `json:"layersInvoked"`
	Timestamp     time.Time `json:"timestamp"`
}

// StatisticalResult is the statistical gate's output contract.
type StatisticalResult struct {
	// Score is the anomaly score, 0-10.
	Score     float64        `json:"score"`
	Passed    bool           `json:"passed"`
	ClusterID int            `json:"clusterId"`
	ZScore    float64        `json:"zScore"`
	Details   map[string]any `json:"details,omitempty"`
}

// NarrativeResult is the narrative gate's output contract.
type NarrativeResult struct {
	// Score is the coherence score, 0-1. Higher means more consistent
	// with the account's behavioral history.
	Score   float64        `json:"score"`
	Passed  bool           `json:"passed"`
	Details map[string]any `json:"details,omitempty"`
}
