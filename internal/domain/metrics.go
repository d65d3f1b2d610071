package domain

// EvaluationMetrics summarizes screening quality against labeled ground
// truth. A BLOCK or REVIEW on a laundering transaction counts as a true
// positive; an APPROVE on one is a false negative.
type EvaluationMetrics struct {
	TruePositives  int `json:"truePositives"`
	FalsePositives int `json:"falsePositives"`
	TrueNegatives  int `json:"trueNegatives"`
	FalseNegatives int `json:"falseNegatives"`

	// Layer invocation counts, for cost accounting.
	StatisticalOnly int `json:"statisticalOnly"`
	NarrativeRuns   int `json:"narrativeRuns"`
	ExpertRuns      int `json:"expertRuns"`
}

// Record updates counts for one screening outcome against its label.
func (m *EvaluationMetrics) Record(decision Decision, isLaundering bool) {
	flagged := decision == DecisionBlock || decision == DecisionReview
	switch {
	case flagged && isLaundering:
		m.TruePositives++
	case flagged && !isLaundering:
		m.FalsePositives++
	case !flagged && isLaundering:
		m.FalseNegatives++
	default:
		m.TrueNegatives++
	}
}

// Precision is TP / (TP + FP), or 0 when nothing was flagged.
func (m *EvaluationMetrics) Precision() float64 {
	denom := m.TruePositives + m.FalsePositives
	if denom == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(denom)
}

// Recall is TP / (TP + FN), or 0 when nothing was labeled positive.
func (m *EvaluationMetrics) Recall() float64 {
	denom := m.TruePositives + m.FalseNegatives
	if denom == 0 {
		return 0
	}
	return float64(m.TruePositives) / float64(denom)
}

// F1 is the harmonic mean of precision and recall.
func (m *EvaluationMetrics) F1() float64 {
	p, r := m.Precision(), m.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

// Accuracy is the fraction of all screenings classified correctly.
func (m *EvaluationMetrics) Accuracy() float64 {
	total := m.TruePositives + m.FalsePositives + m.TrueNegatives + m.FalseNegatives
	if total == 0 {
		return 0
	}
	return float64(m.TruePositives+m.TrueNegatives) / float64(total)
}
