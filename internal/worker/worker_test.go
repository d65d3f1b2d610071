package worker

import (
	"context"
	"encoding/json"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/gates"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
)

type stubAdjudicator struct {
	verdict *domain.Verdict
	calls   atomic.Int32
}

func (a *stubAdjudicator) Adjudicate(ctx context.Context, input *domain.AdjudicationInput) (*domain.Verdict, error) {
	a.calls.Add(1)
	return a.verdict, nil
}

func newTestWorker(t *testing.T, eventBus domain.EventBus, adj pipeline.Adjudicator) (*Worker, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	hist := history.NewService(repo, cache.NewLRUCache(100), time.Minute, nil)

	thresholds := domain.DefaultThresholds()
	pl := pipeline.New(
		gates.NewLocalStatisticalGate(thresholds.StatisticalGate),
		gates.NewLocalNarrativeGate(thresholds.NarrativeGate),
		adj,
		domain.DefaultBudgets(),
		nil,
	)

	return NewWorker(eventBus, repo, hist, pl, nil), repo
}

func TestWorkerStartStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, _ := newTestWorker(t, eventBus, &stubAdjudicator{})

	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 1 {
		t.Errorf("expected 1 subscription, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	stats = w.GetStats()
	if stats.SubscriptionCount != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", stats.SubscriptionCount)
	}
}

func TestWorkerScreensIngestedTransaction(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, repo := newTestWorker(t, eventBus, &stubAdjudicator{})
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	var completedPayload atomic.Pointer[domain.Message]
	eventBus.Subscribe(context.Background(), domain.TopicScreeningCompleted, func(ctx context.Context, msg *domain.Message) error {
		completedPayload.Store(msg)
		return nil
	})

	time.Sleep(50 * time.Millisecond)

	// An unremarkable first transaction for a fresh account passes the
	// statistical gate and is approved without deeper layers.
	tx := domain.Transaction{
		ID:       "tx-worker-001",
		Sender:   domain.Party{AccountID: "acc-100", BankID: "bank-001"},
		Receiver: domain.Party{AccountID: "acc-200", BankID: "bank-001"},
		Amount: domain.Amount{
			Sent: 250, Received: 250,
			CurrencySent: "USD", CurrencyReceived: "USD",
		},
		PaymentFormat: "ACH",
		Timestamp:     time.Now().UTC(),
	}

	payload, _ := json.Marshal(tx)
	if err := eventBus.Publish(context.Background(), "tenant-001", domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for completedPayload.Load() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	msg := completedPayload.Load()
	if msg == nil {
		t.Fatal("timeout waiting for screening completion")
	}

	var result domain.PipelineResult
	if err := json.Unmarshal(msg.Payload, &result); err != nil {
		t.Fatalf("failed to parse result: %v", err)
	}
	if result.TransactionID != "tx-worker-001" {
		t.Errorf("expected transaction tx-worker-001, got %s", result.TransactionID)
	}
	if result.FinalDecision != domain.DecisionApprove {
		t.Errorf("expected APPROVE for unremarkable transaction, got %s", result.FinalDecision)
	}

	// The screening and the transaction should both be persisted
	saved, err := repo.GetTransaction(context.Background(), "tenant-001", "tx-worker-001")
	if err != nil {
		t.Fatalf("transaction was not persisted: %v", err)
	}
	if saved.Amount.Sent != 250 {
		t.Errorf("expected persisted amount 250, got %v", saved.Amount.Sent)
	}

	screenings, err := repo.ListScreenings(context.Background(), "tenant-001", 10, 0)
	if err != nil {
		t.Fatalf("ListScreenings failed: %v", err)
	}
	if len(screenings) != 1 {
		t.Errorf("expected 1 persisted screening, got %d", len(screenings))
	}
}

func TestWorkerPublishesAlerts(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	adj := &stubAdjudicator{verdict: &domain.Verdict{
		Decision:   domain.DecisionBlock,
		Confidence: 0.9,
	}}
	w, _ := newTestWorker(t, eventBus, adj)

	var alerted atomic.Bool
	eventBus.Subscribe(context.Background(), domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerted.Store(true)
		return nil
	})

	time.Sleep(10 * time.Millisecond)

	ctx := context.Background()
	tenantID := "tenant-alerts"

	// Seed history so the extreme follow-up registers as anomalous
	base := time.Now().UTC().Add(-10 * 24 * time.Hour)
	for i, amt := range []float64{1000, 1010, 990, 1005, 995} {
		seed := domain.Transaction{
			Sender:   domain.Party{AccountID: "acc-anom", BankID: "bank-001"},
			Receiver: domain.Party{AccountID: "acc-other", BankID: "bank-001"},
			Amount: domain.Amount{
				Sent: amt, Received: amt,
				CurrencySent: "USD", CurrencyReceived: "USD",
			},
			PaymentFormat: "ACH",
			Timestamp:     base.Add(time.Duration(i) * 24 * time.Hour),
		}
		if _, err := w.Screen(ctx, tenantID, &seed); err != nil {
			t.Fatalf("seed screening failed: %v", err)
		}
	}

	spike := domain.Transaction{
		Sender:   domain.Party{AccountID: "acc-anom", BankID: "bank-001"},
		Receiver: domain.Party{AccountID: "acc-shell", BankID: "bank-002"},
		Amount: domain.Amount{
			Sent: 5_000_000, Received: 5_000_000,
			CurrencySent: "USD", CurrencyReceived: "USD",
		},
		PaymentFormat: "Wire",
		Timestamp:     time.Now().UTC(),
	}
	if _, err := w.Screen(ctx, tenantID, &spike); err != nil {
		t.Fatalf("spike screening failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if !alerted.Load() {
		t.Error("expected an alert for a blocked transaction")
	}
	if adj.calls.Load() == 0 {
		t.Error("expected the adjudicator to be invoked for the spike")
	}
}

func TestWorkerMetrics(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w, _ := newTestWorker(t, eventBus, &stubAdjudicator{})

	ctx := context.Background()
	labeled := false
	tx := domain.Transaction{
		Sender:   domain.Party{AccountID: "acc-m1", BankID: "bank-001"},
		Receiver: domain.Party{AccountID: "acc-m2", BankID: "bank-001"},
		Amount: domain.Amount{
			Sent: 100, Received: 100,
			CurrencySent: "USD", CurrencyReceived: "USD",
		},
		PaymentFormat: "ACH",
		Timestamp:     time.Now().UTC(),
		IsLaundering:  &labeled,
	}

	if _, err := w.Screen(ctx, "tenant-metrics", &tx); err != nil {
		t.Fatalf("Screen failed: %v", err)
	}

	m := w.Metrics()
	if m.TrueNegatives != 1 {
		t.Errorf("expected 1 true negative, got %d", m.TrueNegatives)
	}
	if m.StatisticalOnly != 1 {
		t.Errorf("expected 1 statistical-only screening, got %d", m.StatisticalOnly)
	}
}
