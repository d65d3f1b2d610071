// Package history builds the behavioral account profiles consumed by the
// screening gates and detectors.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// recentTransactionLimit bounds how many transactions back the profile
// computation looks.
const recentTransactionLimit = 500

// Service computes and caches account histories. Reads go through the cache
// first; a miss falls back to stored stats and finally to recomputation
// from the transaction log.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// NewService creates a history service.
func NewService(repo domain.Repository, cache domain.Cache, cacheTTL time.Duration, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &Service{repo: repo, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// GetHistory returns the behavioral profile for an account. An account with
// no recorded transactions gets an empty profile, not an error.
func (s *Service) GetHistory(ctx context.Context, tenantID, accountID, bankID string) (*domain.AccountHistory, error) {
	if s.cache != nil {
		if cached, ok, err := s.cache.GetHistory(ctx, tenantID, accountID, bankID); err == nil && ok {
			return cached, nil
		} else if err != nil {
			s.logger.Warn("history cache read failed", "account_id", accountID, "error", err)
		}
	}

	history, err := s.build(ctx, tenantID, accountID, bankID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetHistory(ctx, tenantID, history, s.cacheTTL); err != nil {
			s.logger.Warn("history cache write failed", "account_id", accountID, "error", err)
		}
	}

	return history, nil
}

// RecordTransaction persists a transaction, refreshes the stored profile,
// and invalidates the cached history for both parties.
func (s *Service) RecordTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}
	if err := s.repo.SaveTransaction(ctx, tenantID, tx); err != nil {
		return fmt.Errorf("failed to save transaction: %w", err)
	}

	for _, party := range []domain.Party{tx.Sender, tx.Receiver} {
		if s.cache != nil {
			if err := s.cache.Delete(ctx, tenantID, historyKey(party.AccountID, party.BankID)); err != nil {
				s.logger.Warn("history cache invalidation failed",
					"account_id", party.AccountID, "error", err)
			}
		}
	}
	return nil
}

// RefreshStats recomputes and persists the stored profile for an account.
func (s *Service) RefreshStats(ctx context.Context, tenantID, accountID, bankID string) (*domain.AccountStats, error) {
	txs, err := s.repo.GetTransactionsByAccount(ctx, tenantID, accountID, bankID, recentTransactionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	stats := ComputeStats(accountID, bankID, txs)
	if err := s.repo.SaveAccountStats(ctx, tenantID, stats); err != nil {
		return nil, fmt.Errorf("failed to save account stats: %w", err)
	}
	return stats, nil
}

func (s *Service) build(ctx context.Context, tenantID, accountID, bankID string) (*domain.AccountHistory, error) {
	txs, err := s.repo.GetTransactionsByAccount(ctx, tenantID, accountID, bankID, recentTransactionLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load transactions: %w", err)
	}

	var stats *domain.AccountStats
	stored, err := s.repo.GetAccountStats(ctx, tenantID, accountID, bankID)
	switch {
	case err == nil:
		stats = stored
	case errors.Is(err, domain.ErrNotFound):
		stats = ComputeStats(accountID, bankID, txs)
	default:
		return nil, fmt.Errorf("failed to load account stats: %w", err)
	}

	recent := make([]domain.Transaction, 0, min(len(txs), 20))
	for _, tx := range txs {
		if len(recent) == 20 {
			break
		}
		recent = append(recent, *tx)
	}

	return &domain.AccountHistory{
		AccountID:          accountID,
		BankID:             bankID,
		Stats:              *stats,
		RecentTransactions: recent,
	}, nil
}

// ComputeStats aggregates a transaction slice into a behavioral profile.
// The average transaction amount is total sent over total transaction
// count, so the figure stays comparable across accounts that mostly
// receive.
func ComputeStats(accountID, bankID string, txs []*domain.Transaction) *domain.AccountStats {
	stats := &domain.AccountStats{AccountID: accountID, BankID: bankID}
	if len(txs) == 0 {
		return stats
	}

	counterparties := make(map[string]struct{})
	formatCounts := make(map[string]int)
	hourCounts := make(map[int]int)
	var outgoing []float64

	first, last := txs[0].Timestamp, txs[0].Timestamp
	for _, tx := range txs {
		stats.TotalTransactions++

		if tx.Sender.AccountID == accountID {
			stats.TotalSent += tx.Amount.Sent
			outgoing = append(outgoing, tx.Amount.Sent)
			counterparties[tx.Receiver.AccountID] = struct{}{}
		}
		if tx.Receiver.AccountID == accountID {
			stats.TotalReceived += tx.Amount.Received
			counterparties[tx.Sender.AccountID] = struct{}{}
		}

		formatCounts[tx.PaymentFormat]++
		hourCounts[tx.Timestamp.UTC().Hour()]++

		if tx.Timestamp.Before(first) {
			first = tx.Timestamp
		}
		if tx.Timestamp.After(last) {
			last = tx.Timestamp
		}
	}

	stats.UniqueCounterparties = len(counterparties)
	stats.FirstTransaction = first
	stats.LastTransaction = last
	stats.AvgTransactionAmount = stats.TotalSent / float64(stats.TotalTransactions)

	if len(outgoing) > 1 {
		var sumSq float64
		for _, amt := range outgoing {
			d := amt - stats.AvgTransactionAmount
			sumSq += d * d
		}
		stats.StdTransactionAmount = math.Sqrt(sumSq / float64(len(outgoing)))
	}

	total := float64(stats.TotalTransactions)
	stats.PaymentFormatDistribution = make(map[string]float64, len(formatCounts))
	for format, n := range formatCounts {
		stats.PaymentFormatDistribution[format] = float64(n) / total
	}
	stats.HourDistribution = make(map[int]float64, len(hourCounts))
	for hour, n := range hourCounts {
		stats.HourDistribution[hour] = float64(n) / total
	}

	days := last.Sub(first).Hours() / 24
	if days < 1 {
		days = 1
	}
	stats.TransactionFrequencyPerDay = total / days

	return stats
}

// historyKey is the cache key for one account's history entry.
func historyKey(accountID, bankID string) string {
	return "history:" + accountID + ":" + bankID
}
