// Package pipeline sequences the staged screening of one transaction:
// statistical gate, narrative gate, then adjudication for whatever neither
// gate could clear.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var tracer = otel.Tracer("kestrel-pipeline")

// Adjudicator is the final decision layer for escalated transactions.
type Adjudicator interface {
	Adjudicate(ctx context.Context, input *domain.AdjudicationInput) (*domain.Verdict, error)
}

// Pipeline routes transactions through the staged gates. Stateless apart
// from injected collaborators; safe for concurrent use.
type Pipeline struct {
	statistical domain.StatisticalGate
	narrative   domain.NarrativeGate
	adjudicator Adjudicator
	budgets     domain.LatencyBudgets
	logger      *slog.Logger
}

// New creates a Pipeline with explicit dependencies.
func New(
	statistical domain.StatisticalGate,
	narrative domain.NarrativeGate,
	adjudicator Adjudicator,
	budgets domain.LatencyBudgets,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		statistical: statistical,
		narrative:   narrative,
		adjudicator: adjudicator,
		budgets:     budgets,
		logger:      logger,
	}
}

// Process screens one transaction. The sequence is linear with no branching
// back: a passing statistical gate approves immediately; a passing narrative
// gate approves next; otherwise the adjudicator decides. A gate or
// adjudicator connectivity failure is returned to the caller; the pipeline
// never approves on error.
func (p *Pipeline) Process(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.PipelineResult, error) {
	start := time.Now()

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if err := history.Stats.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "pipeline.process",
		trace.WithAttributes(attribute.String("tx.id", tx.ID)))
	defer span.End()

	result := &domain.PipelineResult{
		ID:            uuid.New().String(),
		TenantID:      tx.TenantID,
		TransactionID: tx.ID,
		Timestamp:     start.UTC(),
	}

	// Layer 1: statistical gate.
	statResult, statLayer, err := p.runStatistical(ctx, tx, history)
	if err != nil {
		return nil, fmt.Errorf("statistical gate: %w", err)
	}
	result.Statistical = *statLayer
	result.LayersInvoked = append(result.LayersInvoked, domain.LayerStatistical)

	if statResult.Passed {
		result.FinalDecision = domain.DecisionApprove
		result.FinalConfidence = 1.0 - statResult.Score/10.0
		result.TotalMs = time.Since(start).Milliseconds()
		p.logResult(result)
		return result, nil
	}

	// Layer 2: narrative gate.
	narrResult, narrLayer, err := p.runNarrative(ctx, tx, history)
	if err != nil {
		return nil, fmt.Errorf("narrative gate: %w", err)
	}
	result.Narrative = narrLayer
	result.LayersInvoked = append(result.LayersInvoked, domain.LayerNarrative)

	if narrResult.Passed {
		result.FinalDecision = domain.DecisionApprove
		result.FinalConfidence = narrResult.Score
		result.TotalMs = time.Since(start).Milliseconds()
		p.logResult(result)
		return result, nil
	}

	// Layer 3: adjudication.
	input := &domain.AdjudicationInput{
		Transaction:      *tx,
		StatisticalScore: statResult.Score,
		NarrativeScore:   narrResult.Score,
		AccountHistory:   *history,
		TriggeredBy:      TriggerReason(statResult.Passed, narrResult.Passed),
	}

	adjCtx := ctx
	if p.budgets.Adjudication > 0 {
		var cancel context.CancelFunc
		adjCtx, cancel = context.WithTimeout(ctx, p.budgets.Adjudication)
		defer cancel()
	}

	verdict, err := p.adjudicator.Adjudicate(adjCtx, input)
	if err != nil {
		return nil, fmt.Errorf("adjudication: %w", err)
	}

	result.Expert = verdict
	result.LayersInvoked = append(result.LayersInvoked, domain.LayerExpert)
	result.FinalDecision = verdict.Decision
	result.FinalConfidence = verdict.Confidence
	result.TotalMs = time.Since(start).Milliseconds()
	p.logResult(result)
	return result, nil
}

// TriggerReason attributes an escalation to the gate(s) that failed. The
// pipeline only escalates when both fail, but the attribution is computed
// generically so single-gate callers get correct labels.
func TriggerReason(statPassed, narrativePassed bool) domain.TriggerReason {
	switch {
	case !statPassed && !narrativePassed:
		return domain.TriggeredByBoth
	case !statPassed:
		return domain.TriggeredByStatistical
	default:
		return domain.TriggeredByNarrative
	}
}

func (p *Pipeline) runStatistical(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.StatisticalResult, *domain.LayerResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.statistical_gate")
	defer span.End()

	if p.budgets.Statistical > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.budgets.Statistical)
		defer cancel()
	}

	start := time.Now()
	res, err := p.statistical.Analyze(ctx, tx, history)
	if err != nil {
		return nil, nil, err
	}
	if res.Score < 0 || res.Score > 10 {
		return nil, nil, fmt.Errorf("%w: statistical score %.2f outside [0,10]", domain.ErrInvalidInput, res.Score)
	}

	span.SetAttributes(
		attribute.Float64("gate.score", res.Score),
		attribute.Bool("gate.passed", res.Passed),
	)

	return res, &domain.LayerResult{
		Layer:     domain.LayerStatistical,
		Score:     res.Score,
		Passed:    res.Passed,
		ProcessMs: time.Since(start).Milliseconds(),
		Details:   res.Details,
	}, nil
}

func (p *Pipeline) runNarrative(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.NarrativeResult, *domain.LayerResult, error) {
	ctx, span := tracer.Start(ctx, "pipeline.narrative_gate")
	defer span.End()

	if p.budgets.Narrative > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.budgets.Narrative)
		defer cancel()
	}

	start := time.Now()
	res, err := p.narrative.Analyze(ctx, tx, history)
	if err != nil {
		return nil, nil, err
	}
	if res.Score < 0 || res.Score > 1 {
		return nil, nil, fmt.Errorf("%w: narrative score %.2f outside [0,1]", domain.ErrInvalidInput, res.Score)
	}

	span.SetAttributes(
		attribute.Float64("gate.score", res.Score),
		attribute.Bool("gate.passed", res.Passed),
	)

	return res, &domain.LayerResult{
		Layer:     domain.LayerNarrative,
		Score:     res.Score,
		Passed:    res.Passed,
		ProcessMs: time.Since(start).Milliseconds(),
		Details:   res.Details,
	}, nil
}

func (p *Pipeline) logResult(result *domain.PipelineResult) {
	p.logger.Info("screening complete",
		"screening_id", result.ID,
		"tx_id", result.TransactionID,
		"decision", result.FinalDecision,
		"confidence", result.FinalConfidence,
		"layers", len(result.LayersInvoked),
		"total_ms", result.TotalMs,
	)
}
