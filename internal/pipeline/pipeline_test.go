package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type stubStatGate struct {
	result *domain.StatisticalResult
	err    error
	calls  int
}

func (s *stubStatGate) Analyze(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.StatisticalResult, error) {
	s.calls++
	return s.result, s.err
}

type stubNarrGate struct {
	result *domain.NarrativeResult
	err    error
	calls  int
}

func (s *stubNarrGate) Analyze(ctx context.Context, tx *domain.Transaction, history *domain.AccountHistory) (*domain.NarrativeResult, error) {
	s.calls++
	return s.result, s.err
}

type stubAdjudicator struct {
	verdict *domain.Verdict
	err     error
	calls   int
	lastIn  *domain.AdjudicationInput
}

func (s *stubAdjudicator) Adjudicate(ctx context.Context, input *domain.AdjudicationInput) (*domain.Verdict, error) {
	s.calls++
	s.lastIn = input
	return s.verdict, s.err
}

func validTx() *domain.Transaction {
	return &domain.Transaction{
		ID:            "tx-pipe-1",
		TenantID:      "tenant-a",
		Sender:        domain.Party{AccountID: "acct-1", BankID: "bank-1"},
		Receiver:      domain.Party{AccountID: "acct-2", BankID: "bank-2"},
		Amount:        domain.Amount{Sent: 9800, Received: 9800},
		PaymentFormat: "Wire",
		Timestamp:     time.Now(),
	}
}

func validHistory() *domain.AccountHistory {
	return &domain.AccountHistory{
		AccountID: "acct-1",
		BankID:    "bank-1",
		Stats: domain.AccountStats{
			TotalTransactions:          20,
			TotalSent:                  50000,
			TotalReceived:              30000,
			AvgTransactionAmount:       2500,
			UniqueCounterparties:       6,
			TransactionFrequencyPerDay: 1.5,
		},
	}
}

func TestPipeline_StatisticalPassApproves(t *testing.T) {
	stat := &stubStatGate{result: &domain.StatisticalResult{Score: 1.2, Passed: true}}
	narr := &stubNarrGate{result: &domain.NarrativeResult{Score: 0.9, Passed: true}}
	adj := &stubAdjudicator{}

	p := New(stat, narr, adj, domain.DefaultBudgets(), nil)
	res, err := p.Process(context.Background(), validTx(), validHistory())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if res.FinalDecision != domain.DecisionApprove {
		t.Errorf("decision = %s, want APPROVE", res.FinalDecision)
	}
	if want := 1.0 - 1.2/10.0; res.FinalConfidence != want {
		t.Errorf("confidence = %.3f, want %.3f", res.FinalConfidence, want)
	}
	if narr.calls != 0 {
		t.Error("narrative gate must not run when statistical gate passes")
	}
	if adj.calls != 0 {
		t.Error("adjudicator must not run when statistical gate passes")
	}
	if len(res.LayersInvoked) != 1 || res.LayersInvoked[0] != domain.LayerStatistical {
		t.Errorf("layers invoked = %v", res.LayersInvoked)
	}
	if res.Narrative != nil || res.Expert != nil {
		t.Error("only the statistical layer result should be populated")
	}
	if res.ID == "" {
		t.Error("pipeline result must carry an id")
	}
}

func TestPipeline_NarrativePassApproves(t *testing.T) {
	stat := &stubStatGate{result: &domain.StatisticalResult{Score: 4.5, Passed: false}}
	narr := &stubNarrGate{result: &domain.NarrativeResult{Score: 0.82, Passed: true}}
	adj := &stubAdjudicator{}

	p := New(stat, narr, adj, domain.DefaultBudgets(), nil)
	res, err := p.Process(context.Background(), validTx(), validHistory())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if res.FinalDecision != domain.DecisionApprove {
		t.Errorf("decision = %s, want APPROVE", res.FinalDecision)
	}
	if res.FinalConfidence != 0.82 {
		t.Errorf("confidence = %.2f, want the narrative score 0.82", res.FinalConfidence)
	}
	if adj.calls != 0 {
		t.Error("adjudicator must not run when narrative gate passes")
	}
	if len(res.LayersInvoked) != 2 {
		t.Errorf("layers invoked = %v", res.LayersInvoked)
	}
	if res.Narrative == nil {
		t.Fatal("narrative layer result missing")
	}
}

func TestPipeline_BothFailEscalates(t *testing.T) {
	stat := &stubStatGate{result: &domain.StatisticalResult{Score: 6.8, Passed: false}}
	narr := &stubNarrGate{result: &domain.NarrativeResult{Score: 0.3, Passed: false}}
	adj := &stubAdjudicator{verdict: &domain.Verdict{Decision: domain.DecisionBlock, Confidence: 0.9}}

	p := New(stat, narr, adj, domain.DefaultBudgets(), nil)
	res, err := p.Process(context.Background(), validTx(), validHistory())
	if err != nil {
		t.Fatalf("Process() error: %v", err)
	}

	if res.FinalDecision != domain.DecisionBlock {
		t.Errorf("decision = %s, want verdict decision BLOCK", res.FinalDecision)
	}
	if res.FinalConfidence != 0.9 {
		t.Errorf("confidence = %.2f, want verdict confidence 0.9", res.FinalConfidence)
	}
	if len(res.LayersInvoked) != 3 {
		t.Errorf("layers invoked = %v", res.LayersInvoked)
	}
	if adj.lastIn == nil {
		t.Fatal("adjudicator input missing")
	}
	if adj.lastIn.TriggeredBy != domain.TriggeredByBoth {
		t.Errorf("triggered by = %s, want both", adj.lastIn.TriggeredBy)
	}
	if adj.lastIn.StatisticalScore != 6.8 || adj.lastIn.NarrativeScore != 0.3 {
		t.Errorf("adjudication input scores = %.1f/%.1f", adj.lastIn.StatisticalScore, adj.lastIn.NarrativeScore)
	}
	if res.Expert == nil {
		t.Error("expert layer result missing")
	}
}

func TestPipeline_GateFailuresPropagate(t *testing.T) {
	unavailable := fmt.Errorf("%w: dial refused", domain.ErrExternalUnavailable)

	t.Run("statistical gate down", func(t *testing.T) {
		p := New(&stubStatGate{err: unavailable}, &stubNarrGate{}, &stubAdjudicator{}, domain.DefaultBudgets(), nil)
		_, err := p.Process(context.Background(), validTx(), validHistory())
		if !errors.Is(err, domain.ErrExternalUnavailable) {
			t.Errorf("expected ErrExternalUnavailable, got %v", err)
		}
	})

	t.Run("narrative gate down", func(t *testing.T) {
		stat := &stubStatGate{result: &domain.StatisticalResult{Score: 5, Passed: false}}
		p := New(stat, &stubNarrGate{err: unavailable}, &stubAdjudicator{}, domain.DefaultBudgets(), nil)
		_, err := p.Process(context.Background(), validTx(), validHistory())
		if !errors.Is(err, domain.ErrExternalUnavailable) {
			t.Errorf("expected ErrExternalUnavailable, got %v", err)
		}
	})

	t.Run("adjudicator down", func(t *testing.T) {
		stat := &stubStatGate{result: &domain.StatisticalResult{Score: 5, Passed: false}}
		narr := &stubNarrGate{result: &domain.NarrativeResult{Score: 0.2, Passed: false}}
		p := New(stat, narr, &stubAdjudicator{err: unavailable}, domain.DefaultBudgets(), nil)
		_, err := p.Process(context.Background(), validTx(), validHistory())
		if !errors.Is(err, domain.ErrExternalUnavailable) {
			t.Errorf("expected ErrExternalUnavailable, got %v", err)
		}
	})
}

func TestPipeline_RejectsOutOfRangeScores(t *testing.T) {
	t.Run("statistical", func(t *testing.T) {
		stat := &stubStatGate{result: &domain.StatisticalResult{Score: 11.5, Passed: false}}
		p := New(stat, &stubNarrGate{}, &stubAdjudicator{}, domain.DefaultBudgets(), nil)
		_, err := p.Process(context.Background(), validTx(), validHistory())
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("narrative", func(t *testing.T) {
		stat := &stubStatGate{result: &domain.StatisticalResult{Score: 5, Passed: false}}
		narr := &stubNarrGate{result: &domain.NarrativeResult{Score: 1.3, Passed: false}}
		p := New(stat, narr, &stubAdjudicator{}, domain.DefaultBudgets(), nil)
		_, err := p.Process(context.Background(), validTx(), validHistory())
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestPipeline_RejectsInvalidBoundaryInput(t *testing.T) {
	p := New(&stubStatGate{}, &stubNarrGate{}, &stubAdjudicator{}, domain.DefaultBudgets(), nil)

	t.Run("invalid transaction", func(t *testing.T) {
		tx := validTx()
		tx.Amount.Sent = -50
		if _, err := p.Process(context.Background(), tx, validHistory()); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("negative history counts", func(t *testing.T) {
		h := validHistory()
		h.Stats.TotalTransactions = -1
		if _, err := p.Process(context.Background(), validTx(), h); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})
}

func TestTriggerReason(t *testing.T) {
	tests := []struct {
		statPassed, narrPassed bool
		want                   domain.TriggerReason
	}{
		{false, false, domain.TriggeredByBoth},
		{false, true, domain.TriggeredByStatistical},
		{true, false, domain.TriggeredByNarrative},
		{true, true, domain.TriggeredByNarrative},
	}

	for _, tt := range tests {
		if got := TriggerReason(tt.statPassed, tt.narrPassed); got != tt.want {
			t.Errorf("TriggerReason(%v, %v) = %s, want %s", tt.statPassed, tt.narrPassed, got, tt.want)
		}
	}
}
