// Package worker provides async screening of ingested transactions.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/history"
	"github.com/opensource-finance/kestrel/internal/pipeline"
)

// Worker consumes ingested transactions from the event bus, runs them
// through the screening pipeline, persists the result, and publishes
// completion and alert events.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	history  *history.Service
	pipeline *pipeline.Pipeline
	logger   *slog.Logger

	mu      sync.Mutex
	metrics domain.EvaluationMetrics

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new async screening worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, hist *history.Service, pl *pipeline.Pipeline, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		history:  hist,
		pipeline: pl,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingestion topic and begins processing.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicTransactionIngested, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("screening worker started", "topic", domain.TopicTransactionIngested)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe", "error", err)
		}
	}
	w.subscriptions = nil

	w.logger.Info("screening worker stopped")
	return nil
}

// Metrics returns a snapshot of screening quality counters.
func (w *Worker) Metrics() domain.EvaluationMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var tx domain.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		w.logger.Error("failed to parse transaction message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	_, err := w.Screen(ctx, msg.TenantID, &tx)
	return err
}

// Screen runs one transaction through the full flow: record, profile,
// screen, persist, publish. Exposed for synchronous callers.
func (w *Worker) Screen(ctx context.Context, tenantID string, tx *domain.Transaction) (*domain.PipelineResult, error) {
	start := time.Now()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	// Screen against the baseline as it stood before this transaction,
	// then record it so it counts toward future baselines.
	senderHistory, err := w.history.GetHistory(ctx, tenantID, tx.Sender.AccountID, tx.Sender.BankID)
	if err != nil {
		w.logger.Error("failed to load sender history",
			"tx_id", tx.ID,
			"account_id", tx.Sender.AccountID,
			"error", err,
		)
		return nil, err
	}

	if err := w.history.RecordTransaction(ctx, tenantID, tx); err != nil {
		w.logger.Error("failed to record transaction",
			"tx_id", tx.ID,
			"error", err,
		)
		return nil, err
	}

	result, err := w.pipeline.Process(ctx, tx, senderHistory)
	if err != nil {
		w.logger.Error("screening failed",
			"tx_id", tx.ID,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	result.ID = uuid.New().String()
	result.TenantID = tenantID

	if w.repo != nil {
		if err := w.repo.SaveScreening(ctx, tenantID, result); err != nil {
			w.logger.Error("failed to save screening",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	w.recordMetrics(result, tx.IsLaundering)

	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicScreeningCompleted, resultPayload); err != nil {
		w.logger.Error("failed to publish screening result",
			"tx_id", tx.ID,
			"error", err,
		)
	}

	if result.FinalDecision != domain.DecisionApprove {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, resultPayload); err != nil {
			w.logger.Error("failed to publish alert",
				"tx_id", tx.ID,
				"error", err,
			)
		}
	}

	w.logger.Info("transaction screened",
		"tx_id", tx.ID,
		"tenant_id", tenantID,
		"decision", result.FinalDecision,
		"layers", len(result.LayersInvoked),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

func (w *Worker) recordMetrics(result *domain.PipelineResult, label *bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch len(result.LayersInvoked) {
	case 1:
		w.metrics.StatisticalOnly++
	case 2:
		w.metrics.NarrativeRuns++
	default:
		w.metrics.NarrativeRuns++
		w.metrics.ExpertRuns++
	}

	if label != nil {
		w.metrics.Record(result.FinalDecision, *label)
	}
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int                      `json:"subscriptionCount"`
	Metrics           domain.EvaluationMetrics `json:"metrics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Metrics:           w.Metrics(),
	}
}
