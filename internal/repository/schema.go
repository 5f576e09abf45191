package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaCases = `
CREATE TABLE IF NOT EXISTS cases (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    decision_type TEXT NOT NULL,
    status TEXT NOT NULL,
    submission_id TEXT,
    decision_trace_id TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    metadata TEXT,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_cases_tenant ON cases(tenant_id);
CREATE INDEX IF NOT EXISTS idx_cases_status ON cases(tenant_id, status);
`

const schemaSubmissions = `
CREATE TABLE IF NOT EXISTS submissions (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    fields TEXT NOT NULL,
    submitted_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_submissions_case ON submissions(tenant_id, case_id);
`

const schemaAttachments = `
CREATE TABLE IF NOT EXISTS attachments (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    file_name TEXT NOT NULL,
    content_type TEXT,
    size_bytes INTEGER NOT NULL DEFAULT 0,
    deleted INTEGER NOT NULL DEFAULT 0,
    redacted INTEGER NOT NULL DEFAULT 0,
    uploaded_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_attachments_case ON attachments(tenant_id, case_id);
`

// schemaCaseEvents is the append-only audit log. Immutability is part of
// the contract: the repository exposes no update or delete for events.
const schemaCaseEvents = `
CREATE TABLE IF NOT EXISTS case_events (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    actor TEXT,
    payload TEXT,
    occurred_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_case_events_case ON case_events(tenant_id, case_id, occurred_at);
CREATE INDEX IF NOT EXISTS idx_case_events_type ON case_events(tenant_id, case_id, event_type);
`

// schemaIntelligence keys the current record by case so a recompute is a
// plain upsert: last writer wins, readers never block.
const schemaIntelligence = `
CREATE TABLE IF NOT EXISTS decision_intelligence (
    case_id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    decision_type TEXT NOT NULL,
    completeness_score REAL NOT NULL,
    confidence_score REAL NOT NULL,
    confidence_band TEXT NOT NULL,
    gap_severity_score REAL NOT NULL,
    signals TEXT NOT NULL,
    gaps TEXT NOT NULL,
    bias_flags TEXT NOT NULL,
    explanation_factors TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (case_id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_intelligence_tenant ON decision_intelligence(tenant_id);
CREATE INDEX IF NOT EXISTS idx_intelligence_band ON decision_intelligence(tenant_id, confidence_band);
`

const schemaIntelligenceHistory = `
CREATE TABLE IF NOT EXISTS intelligence_history (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    case_id TEXT NOT NULL,
    payload TEXT NOT NULL,
    computed_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_intel_history_case ON intelligence_history(tenant_id, case_id, computed_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCases,
		schemaSubmissions,
		schemaAttachments,
		schemaCaseEvents,
		schemaIntelligence,
		schemaIntelligenceHistory,
	}
}
