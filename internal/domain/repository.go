package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the persistence interface. Every method takes a
// tenantID; implementations must scope all reads and writes to it.
type Repository interface {
	// SaveTransaction persists an ingested transaction.
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error

	// GetTransaction retrieves a transaction by ID.
	// Returns ErrNotFound if it does not exist.
	GetTransaction(ctx context.Context, tenantID, id string) (*Transaction, error)

	// GetTransactionsByAccount returns the most recent transactions where the
	// account appears as sender or receiver, newest first, up to limit.
	GetTransactionsByAccount(ctx context.Context, tenantID, accountID, bankID string, limit int) ([]*Transaction, error)

	// SaveAccountStats upserts the behavioral profile for an account.
	SaveAccountStats(ctx context.Context, tenantID string, stats *AccountStats) error

	// GetAccountStats retrieves the behavioral profile for an account.
	// Returns ErrNotFound if no profile has been computed yet.
	GetAccountStats(ctx context.Context, tenantID, accountID, bankID string) (*AccountStats, error)

	// SaveScreening persists a completed pipeline result.
	SaveScreening(ctx context.Context, tenantID string, result *PipelineResult) error

	// GetScreening retrieves a screening result by ID.
	// Returns ErrNotFound if it does not exist.
	GetScreening(ctx context.Context, tenantID, id string) (*PipelineResult, error)

	// ListScreenings returns recent screenings for a tenant, newest first.
	ListScreenings(ctx context.Context, tenantID string, limit, offset int) ([]*PipelineResult, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// RepositoryConfig holds repository settings for both supported drivers.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `json:"driver"`

	SQLitePath string `json:"sqlitePath,omitempty"`

	PostgresHost     string `json:"postgresHost,omitempty"`
	PostgresPort     int    `json:"postgresPort,omitempty"`
	PostgresDB       string `json:"postgresDb,omitempty"`
	PostgresUser     string `json:"postgresUser,omitempty"`
	PostgresPassword string `json:"-"`
	PostgresSSLMode  string `json:"postgresSslMode,omitempty"`

	MaxOpenConns    int           `json:"maxOpenConns,omitempty"`
	MaxIdleConns    int           `json:"maxIdleConns,omitempty"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime,omitempty"`
}
