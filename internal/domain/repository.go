package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Event operations
	SaveEvent(ctx context.Context, tenantID string, event *Event) error
	GetEvent(ctx context.Context, tenantID string, eventID string) (*Event, error)

	// Velocity queries over the stored event stream
	CountEventsSince(ctx context.Context, tenantID, customerID string, since time.Time) (int64, error)
	SumAmountSince(ctx context.Context, tenantID, customerID string, since time.Time) (float64, error)
	CountDistinctSince(ctx context.Context, tenantID, customerID, column string, since time.Time) (int64, error)

	// Customer history
	GetCustomerStats(ctx context.Context, tenantID, customerID string) (*CustomerContext, error)
	UpsertCustomerStats(ctx context.Context, tenantID string, stats *CustomerContext) error

	// Assessment results
	SaveAssessment(ctx context.Context, tenantID string, assessment *RiskAssessment) error
	GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*RiskAssessment, error)
	ListAssessmentsByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]*RiskAssessment, error)
	SummarizeAssessments(ctx context.Context, tenantID string, from, to time.Time) (*AnalyticsSummary, error)

	// Risk rule configuration
	SaveRiskRule(ctx context.Context, tenantID string, rule *RiskRule) error
	GetRiskRule(ctx context.Context, tenantID string, ruleID string) (*RiskRule, error)
	ListRiskRules(ctx context.Context, tenantID string) ([]*RiskRule, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// AnalyticsSummary aggregates assessment outcomes over a period.
type AnalyticsSummary struct {
	From              time.Time `json:"from"`
	To                time.Time `json:"to"`
	TotalAssessed     int64     `json:"totalAssessed"`
	Approved          int64     `json:"approved"`
	Reviewed          int64     `json:"reviewed"`
	Declined          int64     `json:"declined"`
	AvgRiskScore      float64   `json:"avgRiskScore"`
	TotalExpectedLoss float64   `json:"totalExpectedLoss"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `json:"driver" yaml:"driver"`

	// SQLite specific
	SQLitePath string `json:"sqlitePath" yaml:"sqlite_path"`

	// PostgreSQL specific
	PostgresHost     string `json:"postgresHost" yaml:"postgres_host"`
	PostgresPort     int    `json:"postgresPort" yaml:"postgres_port"`
	PostgresUser     string `json:"postgresUser" yaml:"postgres_user"`
	PostgresPassword string `json:"postgresPassword" yaml:"postgres_password"`
	PostgresDB       string `json:"postgresDb" yaml:"postgres_db"`
	PostgresSSLMode  string `json:"postgresSslMode" yaml:"postgres_ssl_mode"`

	// Connection pool settings
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"conn_max_lifetime"`
}
