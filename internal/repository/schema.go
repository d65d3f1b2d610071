package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    sender_account_id TEXT NOT NULL,
    sender_bank_id TEXT NOT NULL,
    receiver_account_id TEXT NOT NULL,
    receiver_bank_id TEXT NOT NULL,
    amount_sent REAL NOT NULL,
    amount_received REAL NOT NULL,
    currency_sent TEXT NOT NULL,
    currency_received TEXT NOT NULL,
    payment_format TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL,
    is_laundering INTEGER,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_tenant ON transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(tenant_id, sender_account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(tenant_id, receiver_account_id);
CREATE INDEX IF NOT EXISTS idx_transactions_timestamp ON transactions(tenant_id, timestamp);
`

const schemaAccountStats = `
CREATE TABLE IF NOT EXISTS account_stats (
    tenant_id TEXT NOT NULL,
    account_id TEXT NOT NULL,
    bank_id TEXT NOT NULL,
    total_transactions INTEGER NOT NULL,
    total_sent REAL NOT NULL,
    total_received REAL NOT NULL,
    avg_transaction_amount REAL NOT NULL,
    std_transaction_amount REAL NOT NULL,
    unique_counterparties INTEGER NOT NULL,
    payment_format_distribution TEXT,
    hour_distribution TEXT,
    first_transaction TIMESTAMP NOT NULL,
    last_transaction TIMESTAMP NOT NULL,
    frequency_per_day REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (tenant_id, account_id, bank_id)
);
`

const schemaScreenings = `
CREATE TABLE IF NOT EXISTS screenings (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    transaction_id TEXT NOT NULL,
    final_decision TEXT NOT NULL,
    final_confidence REAL NOT NULL,
    statistical TEXT NOT NULL,
    narrative TEXT,
    expert TEXT,
    layers_invoked TEXT NOT NULL,
    total_ms INTEGER NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_screenings_tenant ON screenings(tenant_id);
CREATE INDEX IF NOT EXISTS idx_screenings_tx ON screenings(tenant_id, transaction_id);
CREATE INDEX IF NOT EXISTS idx_screenings_decision ON screenings(tenant_id, final_decision);
CREATE INDEX IF NOT EXISTS idx_screenings_timestamp ON screenings(tenant_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAccountStats,
		schemaScreenings,
	}
}
