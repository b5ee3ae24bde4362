// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. All methods require
// tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Transaction operations. History retrieval backs the velocity
	// aggregator and must return rows sorted ascending by timestamp.
	SaveTransaction(ctx context.Context, tenantID string, tx *Transaction) error
	GetTransaction(ctx context.Context, tenantID string, txID string) (*Transaction, error)
	GetTransactionsByAccount(ctx context.Context, tenantID string, accountID string, since time.Time) ([]*Transaction, error)

	// Alert operations. The in-memory alert store is authoritative for the
	// process lifetime; the repository keeps an append-only audit copy.
	SaveAlert(ctx context.Context, tenantID string, alert *Alert) error
	UpdateAlertStatus(ctx context.Context, tenantID string, alertID string, status string) error
	ListAlerts(ctx context.Context, tenantID string, severity string, limit int) ([]*Alert, error)

	// Custom point-rule configuration.
	SavePointRule(ctx context.Context, tenantID string, rule *PointRule) error
	ListPointRules(ctx context.Context, tenantID string) ([]*PointRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
