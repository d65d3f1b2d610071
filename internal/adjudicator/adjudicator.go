// Package adjudicator implements the final decision layer for escalated
// transactions: typology detection, risk synthesis, regulatory retrieval,
// the reasoning call, and confidence-floor downgrades.
package adjudicator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/knowledge"
	"github.com/opensource-finance/kestrel/internal/sar"
	"github.com/opensource-finance/kestrel/internal/typology"
)

// Adjudicator produces a Verdict for one escalated transaction. Safe for
// concurrent use; no mutable state is shared between adjudications.
type Adjudicator struct {
	detector   *typology.Detector
	contextBld *knowledge.ContextBuilder
	reasoner   domain.Reasoner
	drafter    *sar.Drafter
	thresholds domain.Thresholds
	reasonerCfg domain.ReasonerConfig
	logger     *slog.Logger
}

// New creates an Adjudicator with explicit dependencies.
func New(
	detector *typology.Detector,
	contextBld *knowledge.ContextBuilder,
	reasoner domain.Reasoner,
	drafter *sar.Drafter,
	thresholds domain.Thresholds,
	reasonerCfg domain.ReasonerConfig,
	logger *slog.Logger,
) *Adjudicator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adjudicator{
		detector:    detector,
		contextBld:  contextBld,
		reasoner:    reasoner,
		drafter:     drafter,
		thresholds:  thresholds,
		reasonerCfg: reasonerCfg,
		logger:      logger,
	}
}

// Adjudicate runs the full decision sequence for one escalated transaction.
// Connectivity failures of the knowledge base or reasoning service are
// returned to the caller; a malformed reasoning reply is recovered locally
// as a REVIEW verdict with the raw text preserved.
func (a *Adjudicator) Adjudicate(ctx context.Context, input *domain.AdjudicationInput) (*domain.Verdict, error) {
	start := time.Now()

	if err := input.Validate(); err != nil {
		return nil, err
	}

	matches := a.detector.DetectAll(input)
	var primary *domain.TypologyMatch
	if len(matches) > 0 {
		primary = &matches[0]
	}

	riskFactors := typology.SynthesizeRiskFactors(input, primary)

	regulatoryContext, err := a.contextBld.RegulatoryContext(ctx, input, primary)
	if err != nil {
		return nil, fmt.Errorf("regulatory context retrieval: %w", err)
	}

	raw, err := a.reasoner.Chat(ctx, domain.ChatRequest{
		UserMessage:  buildPrompt(input, primary, regulatoryContext),
		SystemPrompt: systemPrompt,
		Model:        a.reasonerCfg.Model,
		MaxTokens:    a.reasonerCfg.MaxTokens,
		Temperature:  a.reasonerCfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("reasoning call: %w", err)
	}

	parsed := parseResponse(raw)
	if parsed.Malformed {
		a.logger.Warn("malformed reasoning response, falling back to REVIEW",
			"tx_id", input.Transaction.ID,
			"response_len", len(raw))
	}

	decision := domain.Decision(parsed.Decision.Decision)
	confidence := parsed.Decision.Confidence

	// Confidence-floor downgrades: never BLOCK or APPROVE on a shaky call.
	if decision == domain.DecisionBlock && confidence < a.thresholds.ExpertConfidenceBlock {
		decision = domain.DecisionReview
	} else if decision == domain.DecisionApprove && confidence < a.thresholds.ExpertConfidenceReview {
		decision = domain.DecisionReview
	}

	var draft *domain.SARDraft
	if decision == domain.DecisionBlock || decision == domain.DecisionReview {
		draft = a.drafter.Draft(input, primary, riskFactors, parsed.Decision.Reasoning)
	}

	verdict := &domain.Verdict{
		Decision:     decision,
		Confidence:   confidence,
		RiskFactors:  riskFactors,
		RiskScore:    input.StatisticalScore,
		Citations:    buildCitations(parsed.Decision.RegulatoryCitations),
		SARDraft:     draft,
		Reasoning:    parsed.Decision.Reasoning,
		Malformed:    parsed.Malformed,
		ProcessingMs: time.Since(start).Milliseconds(),
		ModelUsed:    a.reasonerCfg.Model,
	}
	if primary != nil {
		verdict.Typology = primary.Name
		verdict.TypologyConfidence = primary.Confidence
	}

	a.logger.Info("adjudication complete",
		"tx_id", input.Transaction.ID,
		"decision", verdict.Decision,
		"confidence", verdict.Confidence,
		"typology", verdict.Typology,
		"risk_factors", len(verdict.RiskFactors),
		"malformed", verdict.Malformed,
		"process_ms", verdict.ProcessingMs)

	return verdict, nil
}
