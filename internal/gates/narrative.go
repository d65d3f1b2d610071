package gates

import (
	"context"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// LocalNarrativeGate scores how well a transaction fits the account's
// behavioral story using its payment-format and hour-of-day histograms and
// its amount profile. An embedding-based scorer can replace it through the
// domain.NarrativeGate interface.
type LocalNarrativeGate struct {
	threshold float64
}

// NewLocalNarrativeGate creates a local narrative gate. Scores below the
// threshold fail the gate and escalate.
func NewLocalNarrativeGate(threshold float64) *LocalNarrativeGate {
	return &LocalNarrativeGate{threshold: threshold}
}

// Analyze computes a coherence score in [0,1] as the weighted blend of
// three components: how often the account uses this payment format, how
// active it usually is at this hour, and how close the amount is to the
// account's typical range. Accounts with no history are fully coherent by
// definition; there is no story to break.
func (g *LocalNarrativeGate) Analyze(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.NarrativeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats := &history.Stats
	if stats.TotalTransactions == 0 {
		return &domain.NarrativeResult{
			Score:  1.0,
			Passed: 1.0 >= g.threshold,
			Details: map[string]any{
				"reason": "no history",
			},
		}, nil
	}

	formatScore := histogramScore(stats.PaymentFormatDistribution, tx.PaymentFormat)
	hourScore := hourHistogramScore(stats.HourDistribution, tx.Timestamp.UTC().Hour())
	amountScore := amountCoherence(tx.AmountSent(), stats.AvgTransactionAmount, stats.StdTransactionAmount)

	score := 0.4*formatScore + 0.2*hourScore + 0.4*amountScore

	return &domain.NarrativeResult{
		Score:  score,
		Passed: score >= g.threshold,
		Details: map[string]any{
			"format_score": formatScore,
			"hour_score":   hourScore,
			"amount_score": amountScore,
			"threshold":    g.threshold,
		},
	}, nil
}

// histogramScore maps an observed share in [0,1] to a coherence component.
// A format the account has never used scores 0; a dominant format scores
// close to 1. The square root softens the penalty for rare but seen formats.
func histogramScore(dist map[string]float64, key string) float64 {
	if len(dist) == 0 {
		return 1.0
	}
	return math.Sqrt(dist[key])
}

func hourHistogramScore(dist map[int]float64, hour int) float64 {
	if len(dist) == 0 {
		return 1.0
	}
	// Adjacent hours count at half weight so shift boundaries don't spike.
	share := dist[hour] + 0.5*dist[(hour+23)%24] + 0.5*dist[(hour+1)%24]
	return math.Min(math.Sqrt(share*4), 1.0)
}

// amountCoherence decays from 1 to 0 as the amount moves away from the
// account's typical range, measured in standard deviations.
func amountCoherence(amount, avg, std float64) float64 {
	if avg <= 0 {
		return 1.0
	}
	if std <= 0 {
		std = avg / 2
	}
	deviations := math.Abs(amount-avg) / std
	return math.Exp(-deviations / 2)
}
