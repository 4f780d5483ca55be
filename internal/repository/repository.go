// Package repository persists events, customer profiles, assessments,
// and risk rules behind the domain.Repository interface, over either
// SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// distinctColumns whitelists event columns usable in distinct-count
// velocity queries. Anything else is rejected before reaching SQL.
var distinctColumns = map[string]bool{
	"ip_address":         true,
	"device_fingerprint": true,
	"email":              true,
	"currency":           true,
}

// SQLRepository is the database/sql implementation of domain.Repository.
// Queries are written with ? placeholders and rewritten for PostgreSQL.
type SQLRepository struct {
	db      *sql.DB
	dialect string
}

// New opens the configured database, applies the schema, and returns
// a ready repository.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var open func(domain.RepositoryConfig) (*sql.DB, error)
	switch cfg.Driver {
	case "sqlite":
		open = openSQLite
	case "postgres":
		open = openPostgres
	default:
		return nil, fmt.Errorf("unknown repository driver %q", cfg.Driver)
	}

	db, err := open(cfg)
	if err != nil {
		return nil, err
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

	repo := &SQLRepository{db: db, dialect: cfg.Driver}
	if err := repo.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) createTables() error {
	for _, ddl := range AllSchemas() {
		if _, err := r.db.Exec(ddl); err != nil {
			return err
		}
	}
	return nil
}

// checkTenant rejects calls without a tenant before any SQL runs.
// Every table is keyed by tenant_id; an empty tenant would silently
// read or write an empty partition.
func checkTenant(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: empty tenant id", ErrInvalidInput)
	}
	return nil
}

// SaveEvent stores an event under the given tenant. Address and item
// details are serialized to JSON columns.
func (r *SQLRepository) SaveEvent(ctx context.Context, tenantID string, event *domain.Event) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}

	shipping, _ := json.Marshal(event.ShippingAddress)
	billing, _ := json.Marshal(event.BillingAddress)
	items, _ := json.Marshal(event.Items)

	const query = `
		INSERT INTO events (
			id, tenant_id, customer_id, amount, currency, email,
			ip_address, device_fingerprint, user_agent,
			shipping_address, billing_address, items,
			timestamp, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.bind(query),
		event.ID, tenantID, event.CustomerID,
		event.Amount, event.Currency, event.Email,
		event.IPAddress, event.DeviceFingerprint, event.UserAgent,
		string(shipping), string(billing), string(items),
		event.Timestamp, event.CreatedAt,
	)
	return err
}

// GetEvent retrieves a single event by ID within the tenant.
func (r *SQLRepository) GetEvent(ctx context.Context, tenantID string, eventID string) (*domain.Event, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, tenant_id, customer_id, amount, currency, email,
			   ip_address, device_fingerprint, user_agent,
			   shipping_address, billing_address, items,
			   timestamp, created_at
		FROM events
		WHERE tenant_id = ? AND id = ?
	`

	var event domain.Event
	var shipping, billing, items string

	err := r.db.QueryRowContext(ctx, r.bind(query), tenantID, eventID).Scan(
		&event.ID, &event.TenantID, &event.CustomerID,
		&event.Amount, &event.Currency, &event.Email,
		&event.IPAddress, &event.DeviceFingerprint, &event.UserAgent,
		&shipping, &billing, &items,
		&event.Timestamp, &event.CreatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}

	decodeJSONColumn(shipping, &event.ShippingAddress)
	decodeJSONColumn(billing, &event.BillingAddress)
	decodeJSONColumn(items, &event.Items)

	return &event, nil
}

// CountEventsSince counts a customer's events newer than the cutoff.
func (r *SQLRepository) CountEventsSince(ctx context.Context, tenantID, customerID string, since time.Time) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	const query = `
		SELECT COUNT(*)
		FROM events
		WHERE tenant_id = ? AND customer_id = ? AND timestamp >= ?
	`

	var n int64
	err := r.db.QueryRowContext(ctx, r.bind(query), tenantID, customerID, since).Scan(&n)
	return n, err
}

// SumAmountSince sums a customer's event amounts newer than the cutoff.
func (r *SQLRepository) SumAmountSince(ctx context.Context, tenantID, customerID string, since time.Time) (float64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}

	const query = `
		SELECT COALESCE(SUM(amount), 0)
		FROM events
		WHERE tenant_id = ? AND customer_id = ? AND timestamp >= ?
	`

	var total float64
	err := r.db.QueryRowContext(ctx, r.bind(query), tenantID, customerID, since).Scan(&total)
	return total, err
}

// CountDistinctSince counts distinct values of a whitelisted event
// column for a customer newer than the cutoff. Empty values never
// count toward the total.
func (r *SQLRepository) CountDistinctSince(ctx context.Context, tenantID, customerID, column string, since time.Time) (int64, error) {
	if err := checkTenant(tenantID); err != nil {
		return 0, err
	}
	if !distinctColumns[column] {
		return 0, fmt.Errorf("%w: column %q not allowed in distinct query", ErrInvalidInput, column)
	}

	query := fmt.Sprintf(`
		SELECT COUNT(DISTINCT %s)
		FROM events
		WHERE tenant_id = ? AND customer_id = ? AND timestamp >= ? AND %s != ''
	`, column, column)

	var n int64
	err := r.db.QueryRowContext(ctx, r.bind(query), tenantID, customerID, since).Scan(&n)
	return n, err
}

// GetCustomerStats retrieves a customer behavior profile within the tenant.
func (r *SQLRepository) GetCustomerStats(ctx context.Context, tenantID, customerID string) (*domain.CustomerContext, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	const query = `
		SELECT customer_id, age_days, total_orders, total_spent, avg_order_value,
			   return_rate, chargeback_count, days_since_last_order,
			   order_frequency, lifetime_value, risk_score
		FROM customers
		WHERE tenant_id = ? AND customer_id = ?
	`

	var cc domain.CustomerContext
	err := r.db.QueryRowContext(ctx, r.bind(query), tenantID, customerID).Scan(
		&cc.CustomerID, &cc.AgeDays, &cc.TotalOrders, &cc.TotalSpent, &cc.AvgOrderValue,
		&cc.ReturnRate, &cc.ChargebackCount, &cc.DaysSinceLastOrder,
		&cc.OrderFrequency, &cc.LifetimeValue, &cc.RiskScore,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, err
	}
	return &cc, nil
}

// UpsertCustomerStats inserts or replaces a customer behavior profile.
func (r *SQLRepository) UpsertCustomerStats(ctx context.Context, tenantID string, stats *domain.CustomerContext) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}

	const query = `
		INSERT INTO customers (
			customer_id, tenant_id, age_days, total_orders, total_spent,
			avg_order_value, return_rate, chargeback_count,
			days_since_last_order, order_frequency, lifetime_value,
			risk_score, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id, tenant_id) DO UPDATE SET
			age_days = excluded.age_days,
			total_orders = excluded.total_orders,
			total_spent = excluded.total_spent,
			avg_order_value = excluded.avg_order_value,
			return_rate = excluded.return_rate,
			chargeback_count = excluded.chargeback_count,
			days_since_last_order = excluded.days_since_last_order,
			order_frequency = excluded.order_frequency,
			lifetime_value = excluded.lifetime_value,
			risk_score = excluded.risk_score,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.bind(query),
		stats.CustomerID, tenantID, stats.AgeDays, stats.TotalOrders, stats.TotalSpent,
		stats.AvgOrderValue, stats.ReturnRate, stats.ChargebackCount,
		stats.DaysSinceLastOrder, stats.OrderFrequency, stats.LifetimeValue,
		stats.RiskScore, time.Now().UTC(),
	)
	return err
}

// SaveAssessment stores a completed risk assessment. Factors, actions,
// per-model scores, and metadata are serialized to JSON columns.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, assessment *domain.RiskAssessment) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}

	factors, _ := json.Marshal(assessment.Factors)
	actions, _ := json.Marshal(assessment.Actions)
	modelScores, _ := json.Marshal(assessment.ModelScores)
	metadata, _ := json.Marshal(assessment.Metadata)

	const query = `
		INSERT INTO assessments (
			id, tenant_id, event_id, customer_id, risk_score, probability,
			tier, decision, confidence, expected_loss, currency,
			factors, actions, explanation, model_scores, timestamp, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.bind(query),
		assessment.ID, tenantID, assessment.EventID, assessment.CustomerID,
		assessment.RiskScore, assessment.Probability,
		assessment.Tier, assessment.Decision, assessment.Confidence,
		assessment.ExpectedLoss, assessment.Currency,
		string(factors), string(actions), assessment.Explanation,
		string(modelScores), assessment.Timestamp, string(metadata),
	)
	return err
}

// GetAssessment retrieves an assessment by ID within the tenant.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, assessmentID string) (*domain.RiskAssessment, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, tenant_id, event_id, customer_id, risk_score, probability,
			   tier, decision, confidence, expected_loss, currency,
			   factors, actions, explanation, model_scores, timestamp, metadata
		FROM assessments
		WHERE tenant_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.bind(query), tenantID, assessmentID)
	assessment, err := readAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return assessment, err
}

// ListAssessmentsByCustomer retrieves recent assessments for a customer,
// newest first.
func (r *SQLRepository) ListAssessmentsByCustomer(ctx context.Context, tenantID, customerID string, limit int) ([]*domain.RiskAssessment, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT id, tenant_id, event_id, customer_id, risk_score, probability,
			   tier, decision, confidence, expected_loss, currency,
			   factors, actions, explanation, model_scores, timestamp, metadata
		FROM assessments
		WHERE tenant_id = ? AND customer_id = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.bind(query), tenantID, customerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RiskAssessment
	for rows.Next() {
		a, err := readAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// SummarizeAssessments aggregates assessment outcomes over [from, to).
func (r *SQLRepository) SummarizeAssessments(ctx context.Context, tenantID string, from, to time.Time) (*domain.AnalyticsSummary, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	const query = `
		SELECT COUNT(*),
			   COALESCE(SUM(CASE WHEN decision = 'APPROVE' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN decision = 'REVIEW' THEN 1 ELSE 0 END), 0),
			   COALESCE(SUM(CASE WHEN decision = 'DECLINE' THEN 1 ELSE 0 END), 0),
			   COALESCE(AVG(risk_score), 0),
			   COALESCE(SUM(expected_loss), 0)
		FROM assessments
		WHERE tenant_id = ? AND timestamp >= ? AND timestamp < ?
	`

	summary := &domain.AnalyticsSummary{From: from, To: to}
	err := r.db.QueryRowContext(ctx, r.bind(query), tenantID, from, to).Scan(
		&summary.TotalAssessed, &summary.Approved, &summary.Reviewed,
		&summary.Declined, &summary.AvgRiskScore, &summary.TotalExpectedLoss,
	)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// SaveRiskRule stores a risk rule. Rules are versioned: writing an
// existing (id, version) pair updates it, a new version inserts
// alongside the old ones.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, tenantID string, rule *domain.RiskRule) error {
	if err := checkTenant(tenantID); err != nil {
		return err
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	const query = `
		INSERT INTO risk_rules (
			id, tenant_id, name, description, version, expression,
			factor, severity, impact, force_decision, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			factor = excluded.factor,
			severity = excluded.severity,
			impact = excluded.impact,
			force_decision = excluded.force_decision,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.bind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression,
		rule.Factor, rule.Severity, rule.Impact, rule.ForceDecision, enabled,
		now, now,
	)
	return err
}

// GetRiskRule retrieves the latest enabled version of a rule.
func (r *SQLRepository) GetRiskRule(ctx context.Context, tenantID string, ruleID string) (*domain.RiskRule, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, tenant_id, name, description, version, expression,
			   factor, severity, impact, force_decision, enabled
		FROM risk_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
		ORDER BY version DESC
		LIMIT 1
	`

	rule, err := readRule(r.db.QueryRowContext(ctx, r.bind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListRiskRules retrieves every enabled risk rule for a tenant,
// ordered by name.
func (r *SQLRepository) ListRiskRules(ctx context.Context, tenantID string) ([]*domain.RiskRule, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}

	const query = `
		SELECT id, tenant_id, name, description, version, expression,
			   factor, severity, impact, force_decision, enabled
		FROM risk_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, r.bind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RiskRule
	for rows.Next() {
		rule, err := readRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Ping reports whether the database is reachable.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// sqlRow is satisfied by both *sql.Row and *sql.Rows.
type sqlRow interface {
	Scan(dest ...any) error
}

func readAssessment(row sqlRow) (*domain.RiskAssessment, error) {
	var a domain.RiskAssessment
	var factors, actions, modelScores, metadata string

	err := row.Scan(
		&a.ID, &a.TenantID, &a.EventID, &a.CustomerID,
		&a.RiskScore, &a.Probability,
		&a.Tier, &a.Decision, &a.Confidence,
		&a.ExpectedLoss, &a.Currency,
		&factors, &actions, &a.Explanation,
		&modelScores, &a.Timestamp, &metadata,
	)
	if err != nil {
		return nil, err
	}

	decodeJSONColumn(factors, &a.Factors)
	decodeJSONColumn(actions, &a.Actions)
	decodeJSONColumn(modelScores, &a.ModelScores)
	decodeJSONColumn(metadata, &a.Metadata)

	return &a, nil
}

func readRule(row sqlRow) (*domain.RiskRule, error) {
	var rule domain.RiskRule
	var enabled int

	err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression,
		&rule.Factor, &rule.Severity, &rule.Impact, &rule.ForceDecision, &enabled,
	)
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// decodeJSONColumn unmarshals a JSON text column, tolerating empty and
// NULL-marshaled values. Rows written by older builds may hold either.
func decodeJSONColumn(raw string, dest any) {
	if raw == "" || raw == "null" {
		return
	}
	json.Unmarshal([]byte(raw), dest)
}

// bind rewrites ? placeholders as $1..$n when talking to PostgreSQL.
// SQLite takes the query as written.
func (r *SQLRepository) bind(query string) string {
	if r.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	arg := 0
	for _, ch := range []byte(query) {
		if ch != '?' {
			b.WriteByte(ch)
			continue
		}
		arg++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(arg))
	}
	return b.String()
}
