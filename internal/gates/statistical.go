// Package gates provides the two fast screening layers in front of the
// adjudicator: statistical anomaly scoring and narrative coherence scoring.
// Each ships a local implementation and an HTTP client for a remote scorer.
package gates

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LocalStatisticalGate scores transactions by log Z-score deviation from
// the account's own baseline. A clustering service can replace it through
// the domain.StatisticalGate interface without touching pipeline code.
type LocalStatisticalGate struct {
	threshold float64
}

// NewLocalStatisticalGate creates a local statistical gate. Scores at or
// above the threshold fail the gate and escalate.
func NewLocalStatisticalGate(threshold float64) *LocalStatisticalGate {
	return &LocalStatisticalGate{threshold: threshold}
}

// Analyze computes the anomaly score for one transaction. The score is the
// absolute log Z-score of the amount against the account baseline, clamped
// to [0,10]. Accounts with no usable history score on raw magnitude instead.
func (g *LocalStatisticalGate) Analyze(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.StatisticalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &history.Stats
	amount := tx.AmountSent()

	var zScore float64
	switch {
	case stats.TotalTransactions > 1 && stats.StdTransactionAmount > 0:
		// Log-space comparison keeps heavy-tailed amounts comparable.
		z := (math.Log1p(amount) - math.Log1p(stats.AvgTransactionAmount)) /
			math.Log1p(stats.StdTransactionAmount)
		zScore = math.Abs(z)
	case stats.AvgTransactionAmount > 0:
		// No variance baseline: score on relative deviation from the mean.
		zScore = math.Abs(math.Log1p(amount) - math.Log1p(stats.AvgTransactionAmount))
	default:
		// Unseen account: large first transactions are mildly anomalous.
		zScore = math.Log1p(amount) / 4
	}

	score := min(zScore, 10.0)

	clusterID := 0
	if history.ClusterID != nil {
		clusterID = *history.ClusterID
	}

	return &domain.StatisticalResult{
		Score:     score,
		Passed:    score < g.threshold,
		ClusterID: clusterID,
		ZScore:    zScore,
		Details: map[string]any{
			"baseline_avg": stats.AvgTransactionAmount,
			"baseline_std": stats.StdTransactionAmount,
			"threshold":    g.threshold,
		},
	}, nil
}
