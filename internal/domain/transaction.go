// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"fmt"
	"time"
)

// Party identifies one side of a transaction.
type Party struct {
	AccountID string `json:"accountId"`
	BankID    string `json:"bankId"`
}

// Amount holds the monetary details of a transaction.
// Sent and received can differ for cross-currency payments.
type Amount struct {
	Sent             float64 `json:"sent"`
	Received         float64 `json:"received"`
	CurrencySent     string  `json:"currencySent"`
	CurrencyReceived string  `json:"currencyReceived"`
}

// Transaction is a single financial transaction under screening.
// Instances are created by ingestion and treated as read-only by the core.
type Transaction struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	Sender   Party  `json:"sender"`
	Receiver Party  `json:"receiver"`
	Amount   Amount `json:"amount"`

	// PaymentFormat: "Wire", "Cheque", "ACH", "Reinvestment", "Credit Card"
	PaymentFormat string `json:"paymentFormat"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`

	// IsLaundering is the ground-truth label when known (labeled datasets).
	IsLaundering *bool `json:"isLaundering,omitempty"`
}

// AmountSent returns the sent amount.
func (t *Transaction) AmountSent() float64 {
	return t.Amount.Sent
}

// Validate rejects transactions that would violate core invariants.
func (t *Transaction) Validate() error {
	if t.Sender.AccountID == "" || t.Receiver.AccountID == "" {
		return fmt.Errorf("%w: sender and receiver accounts are required", ErrInvalidInput)
	}
	if t.Amount.Sent < 0 || t.Amount.Received < 0 {
		return fmt.Errorf("%w: transaction amounts must be non-negative", ErrInvalidInput)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("%w: transaction timestamp is required", ErrInvalidInput)
	}
	return nil
}

// AccountStats is the aggregated behavioral summary of an account's history.
// Computed by the history service or supplied by an upstream profiler.
type AccountStats struct {
	AccountID string `json:"accountId,omitempty"`
	BankID    string `json:"bankId,omitempty"`

	TotalTransactions    int     `json:"totalTransactions"`
	TotalSent            float64 `json:"totalSent"`
	TotalReceived        float64 `json:"totalReceived"`
	AvgTransactionAmount float64 `json:"avgTransactionAmount"`
	StdTransactionAmount float64 `json:"stdTransactionAmount"`
	UniqueCounterparties int     `json:"uniqueCounterparties"`

	PaymentFormatDistribution map[string]float64 `json:"paymentFormatDistribution,omitempty"`
	HourDistribution          map[int]float64    `json:"hourDistribution,omitempty"`

	FirstTransaction time.Time `json:"firstTransaction"`
	LastTransaction  time.Time `json:"lastTransaction"`

	TransactionFrequencyPerDay float64 `json:"transactionFrequencyPerDay"`
}

// Validate rejects stats that would violate core invariants.
func (s *AccountStats) Validate() error {
	if s.TotalTransactions < 0 || s.UniqueCounterparties < 0 {
		return fmt.Errorf("%w: account stats counts must be non-negative", ErrInvalidInput)
	}
	if s.TotalSent < 0 || s.TotalReceived < 0 {
		return fmt.Errorf("%w: account totals must be non-negative", ErrInvalidInput)
	}
	if s.TransactionFrequencyPerDay < 0 {
		return fmt.Errorf("%w: transaction frequency must be non-negative", ErrInvalidInput)
	}
	return nil
}

// AccountHistory is the full behavioral context for an account.
type AccountHistory struct {
	AccountID string       `json:"accountId"`
	BankID    string       `json:"bankId"`
	Stats     AccountStats `json:"stats"`

	RecentTransactions []Transaction `json:"recentTransactions,omitempty"`

	// ClusterID is the behavioral peer group assigned by the statistical
	// engine, when available.
	ClusterID *int `json:"clusterId,omitempty"`

	// ProfileNarrative is an upstream-generated behavioral profile.
	ProfileNarrative string `json:"profileNarrative,omitempty"`
}
