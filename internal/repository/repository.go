// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveTransaction stores a transaction with tenant isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tenantID string, tx *domain.Transaction) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	var labeled sql.NullInt64
	if tx.IsLaundering != nil {
		labeled.Valid = true
		if *tx.IsLaundering {
			labeled.Int64 = 1
		}
	}

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (
			id, tenant_id, sender_account_id, sender_bank_id,
			receiver_account_id, receiver_bank_id,
			amount_sent, amount_received, currency_sent, currency_received,
			payment_format, timestamp, created_at, is_laundering
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, tenantID,
		tx.Sender.AccountID, tx.Sender.BankID,
		tx.Receiver.AccountID, tx.Receiver.BankID,
		tx.Amount.Sent, tx.Amount.Received,
		tx.Amount.CurrencySent, tx.Amount.CurrencyReceived,
		tx.PaymentFormat, tx.Timestamp, createdAt, labeled,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with tenant isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, tenantID, id string) (*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, sender_account_id, sender_bank_id,
			   receiver_account_id, receiver_bank_id,
			   amount_sent, amount_received, currency_sent, currency_received,
			   payment_format, timestamp, created_at, is_laundering
		FROM transactions
		WHERE tenant_id = ? AND id = ?
	`

	tx, err := scanTransaction(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return tx, err
}

// GetTransactionsByAccount retrieves the most recent transactions where the
// account appears as sender or receiver, newest first.
func (r *SQLRepository) GetTransactionsByAccount(ctx context.Context, tenantID, accountID, bankID string, limit int) ([]*domain.Transaction, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, tenant_id, sender_account_id, sender_bank_id,
			   receiver_account_id, receiver_bank_id,
			   amount_sent, amount_received, currency_sent, currency_received,
			   payment_format, timestamp, created_at, is_laundering
		FROM transactions
		WHERE tenant_id = ?
		  AND ((sender_account_id = ? AND sender_bank_id = ?)
		    OR (receiver_account_id = ? AND receiver_bank_id = ?))
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query),
		tenantID, accountID, bankID, accountID, bankID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	return transactions, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var tx domain.Transaction
	var labeled sql.NullInt64

	if err := row.Scan(
		&tx.ID, &tx.TenantID,
		&tx.Sender.AccountID, &tx.Sender.BankID,
		&tx.Receiver.AccountID, &tx.Receiver.BankID,
		&tx.Amount.Sent, &tx.Amount.Received,
		&tx.Amount.CurrencySent, &tx.Amount.CurrencyReceived,
		&tx.PaymentFormat, &tx.Timestamp, &tx.CreatedAt, &labeled,
	); err != nil {
		return nil, err
	}

	if labeled.Valid {
		v := labeled.Int64 == 1
		tx.IsLaundering = &v
	}
	return &tx, nil
}

// SaveAccountStats upserts the behavioral profile for an account.
func (r *SQLRepository) SaveAccountStats(ctx context.Context, tenantID string, stats *domain.AccountStats) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if stats.AccountID == "" {
		return fmt.Errorf("%w: accountID is required", domain.ErrInvalidInput)
	}

	formats, _ := json.Marshal(stats.PaymentFormatDistribution)
	hours, _ := json.Marshal(stats.HourDistribution)

	query := `
		INSERT INTO account_stats (
			tenant_id, account_id, bank_id,
			total_transactions, total_sent, total_received,
			avg_transaction_amount, std_transaction_amount, unique_counterparties,
			payment_format_distribution, hour_distribution,
			first_transaction, last_transaction, frequency_per_day, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, account_id, bank_id) DO UPDATE SET
			total_transactions = excluded.total_transactions,
			total_sent = excluded.total_sent,
			total_received = excluded.total_received,
			avg_transaction_amount = excluded.avg_transaction_amount,
			std_transaction_amount = excluded.std_transaction_amount,
			unique_counterparties = excluded.unique_counterparties,
			payment_format_distribution = excluded.payment_format_distribution,
			hour_distribution = excluded.hour_distribution,
			first_transaction = excluded.first_transaction,
			last_transaction = excluded.last_transaction,
			frequency_per_day = excluded.frequency_per_day,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tenantID, stats.AccountID, stats.BankID,
		stats.TotalTransactions, stats.TotalSent, stats.TotalReceived,
		stats.AvgTransactionAmount, stats.StdTransactionAmount, stats.UniqueCounterparties,
		string(formats), string(hours),
		stats.FirstTransaction, stats.LastTransaction,
		stats.TransactionFrequencyPerDay, time.Now().UTC(),
	)
	return err
}

// GetAccountStats retrieves the behavioral profile for an account with
// tenant isolation.
func (r *SQLRepository) GetAccountStats(ctx context.Context, tenantID, accountID, bankID string) (*domain.AccountStats, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT account_id, bank_id,
			   total_transactions, total_sent, total_received,
			   avg_transaction_amount, std_transaction_amount, unique_counterparties,
			   payment_format_distribution, hour_distribution,
			   first_transaction, last_transaction, frequency_per_day
		FROM account_stats
		WHERE tenant_id = ? AND account_id = ? AND bank_id = ?
	`

	var stats domain.AccountStats
	var formats, hours string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, accountID, bankID).Scan(
		&stats.AccountID, &stats.BankID,
		&stats.TotalTransactions, &stats.TotalSent, &stats.TotalReceived,
		&stats.AvgTransactionAmount, &stats.StdTransactionAmount, &stats.UniqueCounterparties,
		&formats, &hours,
		&stats.FirstTransaction, &stats.LastTransaction, &stats.TransactionFrequencyPerDay,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if formats != "" {
		json.Unmarshal([]byte(formats), &stats.PaymentFormatDistribution)
	}
	if hours != "" {
		json.Unmarshal([]byte(hours), &stats.HourDistribution)
	}

	return &stats, nil
}

// SaveScreening stores a completed pipeline result with tenant isolation.
// Layer outputs are stored as JSON documents.
func (r *SQLRepository) SaveScreening(ctx context.Context, tenantID string, result *domain.PipelineResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	statistical, _ := json.Marshal(result.Statistical)
	layers, _ := json.Marshal(result.LayersInvoked)

	var narrative, expert sql.NullString
	if result.Narrative != nil {
		b, _ := json.Marshal(result.Narrative)
		narrative = sql.NullString{String: string(b), Valid: true}
	}
	if result.Expert != nil {
		b, _ := json.Marshal(result.Expert)
		expert = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO screenings (
			id, tenant_id, transaction_id, final_decision, final_confidence,
			statistical, narrative, expert, layers_invoked, total_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		result.ID, tenantID, result.TransactionID,
		string(result.FinalDecision), result.FinalConfidence,
		string(statistical), narrative, expert,
		string(layers), result.TotalMs, result.Timestamp,
	)
	return err
}

// GetScreening retrieves a screening result by ID with tenant isolation.
func (r *SQLRepository) GetScreening(ctx context.Context, tenantID, id string) (*domain.PipelineResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, transaction_id, final_decision, final_confidence,
			   statistical, narrative, expert, layers_invoked, total_ms, timestamp
		FROM screenings
		WHERE tenant_id = ? AND id = ?
	`

	result, err := scanScreening(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return result, err
}

// ListScreenings retrieves recent screenings for a tenant, newest first.
func (r *SQLRepository) ListScreenings(ctx context.Context, tenantID string, limit, offset int) ([]*domain.PipelineResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, tenant_id, transaction_id, final_decision, final_confidence,
			   statistical, narrative, expert, layers_invoked, total_ms, timestamp
		FROM screenings
		WHERE tenant_id = ?
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.PipelineResult
	for rows.Next() {
		result, err := scanScreening(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

func scanScreening(row rowScanner) (*domain.PipelineResult, error) {
	var result domain.PipelineResult
	var decision, statistical, layers string
	var narrative, expert sql.NullString

	if err := row.Scan(
		&result.ID, &result.TenantID, &result.TransactionID,
		&decision, &result.FinalConfidence,
		&statistical, &narrative, &expert,
		&layers, &result.TotalMs, &result.Timestamp,
	); err != nil {
		return nil, err
	}

	result.FinalDecision = domain.Decision(decision)
	if err := json.Unmarshal([]byte(statistical), &result.Statistical); err != nil {
		return nil, fmt.Errorf("failed to parse statistical layer result: %w", err)
	}
	json.Unmarshal([]byte(layers), &result.LayersInvoked)

	if narrative.Valid {
		var lr domain.LayerResult
		if err := json.Unmarshal([]byte(narrative.String), &lr); err != nil {
			return nil, fmt.Errorf("failed to parse narrative layer result: %w", err)
		}
		result.Narrative = &lr
	}
	if expert.Valid {
		var v domain.Verdict
		if err := json.Unmarshal([]byte(expert.String), &v); err != nil {
			return nil, fmt.Errorf("failed to parse expert verdict: %w", err)
		}
		result.Expert = &v
	}

	return &result, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
