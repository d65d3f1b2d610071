// Package typology provides the CEL-based money-laundering pattern detectors.
package typology

import (
	"fmt"
	"sort"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Detector evaluates the typology rule set against escalated transactions.
// Signal expressions are compiled once at construction; evaluation is
// read-only and safe for concurrent use.
type Detector struct {
	env      *cel.Env
	compiled []compiledTypology
}

type compiledTypology struct {
	def     Definition
	signals []compiledSignal
}

type compiledSignal struct {
	rule    SignalRule
	program cel.Program
}

// NewDetector compiles the built-in typology rule set.
func NewDetector() (*Detector, error) {
	return NewDetectorWithRules(BuiltinDefinitions())
}

// NewDetectorWithRules compiles an explicit rule set. Used by tests and by
// deployments that ship a tuned table.
func NewDetectorWithRules(defs []Definition) (*Detector, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("stat_score", cel.DoubleType),
		cel.Variable("narrative_score", cel.DoubleType),
		cel.Variable("frequency_per_day", cel.DoubleType),
		cel.Variable("unique_counterparties", cel.IntType),
		cel.Variable("total_transactions", cel.IntType),
		cel.Variable("total_sent", cel.DoubleType),
		cel.Variable("total_received", cel.DoubleType),
		cel.Variable("avg_amount", cel.DoubleType),
		cel.Variable("std_amount", cel.DoubleType),
		cel.Variable("payment_format", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	d := &Detector{env: env, compiled: make([]compiledTypology, 0, len(defs))}

	for _, def := range defs {
		ct := compiledTypology{def: def, signals: make([]compiledSignal, 0, len(def.Signals))}
		for _, sig := range def.Signals {
			ast, issues := env.Compile(sig.Expr)
			if issues != nil && issues.Err() != nil {
				return nil, fmt.Errorf("failed to compile signal %s/%s: %w", def.Name, sig.Name, issues.Err())
			}
			if ast.OutputType() != cel.BoolType {
				return nil, fmt.Errorf("signal %s/%s: expression must return bool, got %s", def.Name, sig.Name, ast.OutputType())
			}
			program, err := env.Program(ast)
			if err != nil {
				return nil, fmt.Errorf("failed to create program for signal %s/%s: %w", def.Name, sig.Name, err)
			}
			ct.signals = append(ct.signals, compiledSignal{rule: sig, program: program})
		}
		d.compiled = append(d.compiled, ct)
	}

	return d, nil
}

// DetectAll runs every detector and returns the matches sorted by confidence
// descending. The sort is stable, so ties keep declaration order. The first
// element is the primary typology used downstream.
func (d *Detector) DetectAll(input *domain.AdjudicationInput) []domain.TypologyMatch {
	activation := buildActivation(input)

	matches := make([]domain.TypologyMatch, 0, len(d.compiled))
	for i := range d.compiled {
		if m := d.evaluate(&d.compiled[i], activation); m != nil {
			matches = append(matches, *m)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	return matches
}

// Detect runs a single named detector. The second return is false when the
// typology did not activate or the name is unknown.
func (d *Detector) Detect(name string, input *domain.AdjudicationInput) (*domain.TypologyMatch, bool) {
	activation := buildActivation(input)
	for i := range d.compiled {
		if d.compiled[i].def.Name == name {
			m := d.evaluate(&d.compiled[i], activation)
			return m, m != nil
		}
	}
	return nil, false
}

// Names returns the detector names in declaration order.
func (d *Detector) Names() []string {
	names := make([]string, 0, len(d.compiled))
	for i := range d.compiled {
		names = append(names, d.compiled[i].def.Name)
	}
	return names
}

// evaluate accumulates signal weights for one typology. A match is emitted
// only when the pre-clamp accumulated confidence reaches the activation
// floor; the emitted confidence is clamped to 1.0.
func (d *Detector) evaluate(ct *compiledTypology, activation map[string]any) *domain.TypologyMatch {
	var confidence float64
	var signals []string

	for i := range ct.signals {
		sig := &ct.signals[i]
		out, _, err := sig.program.Eval(activation)
		if err != nil {
			// A signal that cannot be evaluated simply does not match.
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			signals = append(signals, sig.rule.Name)
			confidence += sig.rule.Weight
		}
	}

	if confidence < ct.def.Floor || len(signals) == 0 {
		return nil
	}

	return &domain.TypologyMatch{
		Name:           ct.def.Name,
		Confidence:     min(confidence, 1.0),
		SignalsMatched: signals,
		Description:    ct.def.Description,
	}
}

func buildActivation(input *domain.AdjudicationInput) map[string]any {
	stats := input.AccountHistory.Stats
	return map[string]any{
		"amount":                input.Transaction.AmountSent(),
		"stat_score":            input.StatisticalScore,
		"narrative_score":       input.NarrativeScore,
		"frequency_per_day":     stats.TransactionFrequencyPerDay,
		"unique_counterparties": int64(stats.UniqueCounterparties),
		"total_transactions":    int64(stats.TotalTransactions),
		"total_sent":            stats.TotalSent,
		"total_received":        stats.TotalReceived,
		"avg_amount":            stats.AvgTransactionAmount,
		"std_amount":            stats.StdTransactionAmount,
		"payment_format":        input.Transaction.PaymentFormat,
	}
}
