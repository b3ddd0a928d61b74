// Package domain defines the core interfaces and types for Mlinzi.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence. Every write issued
// from the scoring path is best-effort: the engine logs failures and keeps
// its in-memory state authoritative.
type Repository interface {
	// Transaction operations
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransaction(ctx context.Context, txID string) (*Transaction, error)
	ListTransactionsSince(ctx context.Context, since time.Time) ([]*Transaction, error)

	// Risk assessment operations
	SaveAssessment(ctx context.Context, a *RiskAssessment) error
	GetAssessment(ctx context.Context, assessmentID string) (*RiskAssessment, error)

	// Fraud alert operations
	SaveAlert(ctx context.Context, alert *FraudAlert) error
	UpdateAlert(ctx context.Context, alert *FraudAlert) error
	ListAlerts(ctx context.Context, limit int) ([]*FraudAlert, error)
	CountAlerts(ctx context.Context) (total, critical int, err error)

	// Screening rule operations
	SaveScreeningRule(ctx context.Context, rule *ScreeningRule) error
	GetScreeningRule(ctx context.Context, ruleID string) (*ScreeningRule, error)
	ListScreeningRules(ctx context.Context) ([]*ScreeningRule, error)
	DeleteScreeningRule(ctx context.Context, ruleID string) error

	// Document operations (flat JSON documents under well-known keys;
	// the behavior profile lives at ProfileDocumentKey)
	GetDocument(ctx context.Context, key string) ([]byte, error)
	PutDocument(ctx context.Context, key string, doc []byte) error

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
