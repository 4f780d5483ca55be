package repository

// Schema definitions for the Shrike database.
// Compatible with both SQLite and PostgreSQL.

const schemaEvents = `
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT NOT NULL,
    email TEXT NOT NULL,
    ip_address TEXT NOT NULL,
    device_fingerprint TEXT,
    user_agent TEXT,
    shipping_address TEXT,
    billing_address TEXT,
    items TEXT,
    timestamp TIMESTAMP NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id);
CREATE INDEX IF NOT EXISTS idx_events_customer ON events(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(tenant_id, customer_id, timestamp);
`

const schemaCustomers = `
CREATE TABLE IF NOT EXISTS customers (
    customer_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    age_days REAL NOT NULL DEFAULT 0,
    total_orders REAL NOT NULL DEFAULT 0,
    total_spent REAL NOT NULL DEFAULT 0,
    avg_order_value REAL NOT NULL DEFAULT 0,
    return_rate REAL NOT NULL DEFAULT 0,
    chargeback_count REAL NOT NULL DEFAULT 0,
    days_since_last_order REAL NOT NULL DEFAULT 999,
    order_frequency REAL NOT NULL DEFAULT 0,
    lifetime_value REAL NOT NULL DEFAULT 0,
    risk_score REAL NOT NULL DEFAULT 50,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (customer_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_customers_tenant ON customers(tenant_id);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    event_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    risk_score INTEGER NOT NULL,
    probability REAL NOT NULL,
    tier TEXT NOT NULL,
    decision TEXT NOT NULL,
    confidence REAL NOT NULL,
    expected_loss REAL NOT NULL,
    currency TEXT NOT NULL,
    factors TEXT NOT NULL,
    actions TEXT NOT NULL,
    explanation TEXT,
    model_scores TEXT,
    timestamp TIMESTAMP NOT NULL,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_event ON assessments(tenant_id, event_id);
CREATE INDEX IF NOT EXISTS idx_assessments_customer ON assessments(tenant_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_assessments_decision ON assessments(tenant_id, decision);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(tenant_id, timestamp);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    factor TEXT NOT NULL,
    severity TEXT NOT NULL,
    impact REAL NOT NULL DEFAULT 0.1,
    force_decision TEXT NOT NULL DEFAULT '',
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_tenant ON risk_rules(tenant_id);
CREATE INDEX IF NOT EXISTS idx_risk_rules_enabled ON risk_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaEvents,
		schemaCustomers,
		schemaAssessments,
		schemaRiskRules,
	}
}
