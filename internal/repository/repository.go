// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
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

	// Configure connection pool
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

	// Run migrations
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

// SaveCase stores a case record with tenant isolation.
func (r *SQLRepository) SaveCase(ctx context.Context, tenantID string, c *domain.Case) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	metadata, _ := json.Marshal(c.Metadata)

	query := `
		INSERT INTO cases (
			id, tenant_id, decision_type, status, submission_id,
			decision_trace_id, created_at, updated_at, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			decision_type = excluded.decision_type,
			status = excluded.status,
			submission_id = excluded.submission_id,
			decision_trace_id = excluded.decision_trace_id,
			updated_at = excluded.updated_at,
			metadata = excluded.metadata
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.DecisionType, c.Status,
		c.SubmissionID, c.DecisionTraceID,
		c.CreatedAt, c.UpdatedAt, string(metadata),
	)
	return err
}

// GetCase retrieves a case by ID with tenant isolation.
func (r *SQLRepository) GetCase(ctx context.Context, tenantID string, caseID string) (*domain.Case, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, decision_type, status,
			   COALESCE(submission_id, ''), COALESCE(decision_trace_id, ''),
			   created_at, updated_at, COALESCE(metadata, '')
		FROM cases
		WHERE tenant_id = ? AND id = ?
	`

	var c domain.Case
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID).Scan(
		&c.ID, &c.TenantID, &c.DecisionType, &c.Status,
		&c.SubmissionID, &c.DecisionTraceID,
		&c.CreatedAt, &c.UpdatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		json.Unmarshal([]byte(metadata), &c.Metadata)
	}

	return &c, nil
}

// UpdateCaseStatus updates a case's status with tenant isolation.
func (r *SQLRepository) UpdateCaseStatus(ctx context.Context, tenantID string, caseID string, status string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		UPDATE cases
		SET status = ?, updated_at = ?
		WHERE tenant_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), status, time.Now().UTC(), tenantID, caseID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// SaveSubmission stores a submission and links it to its case.
func (r *SQLRepository) SaveSubmission(ctx context.Context, tenantID string, sub *domain.Submission) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	fields, _ := json.Marshal(sub.Fields)

	query := `
		INSERT INTO submissions (
			id, tenant_id, case_id, fields, submitted_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			fields = excluded.fields,
			updated_at = excluded.updated_at
	`

	if _, err := r.db.ExecContext(ctx, r.rebind(query),
		sub.ID, tenantID, sub.CaseID, string(fields),
		sub.SubmittedAt, sub.UpdatedAt,
	); err != nil {
		return err
	}

	// Keep the case's submission link current.
	link := `UPDATE cases SET submission_id = ?, updated_at = ? WHERE tenant_id = ? AND id = ?`
	_, err := r.db.ExecContext(ctx, r.rebind(link), sub.ID, time.Now().UTC(), tenantID, sub.CaseID)
	return err
}

// GetSubmissionByCase retrieves the submission linked to a case.
func (r *SQLRepository) GetSubmissionByCase(ctx context.Context, tenantID string, caseID string) (*domain.Submission, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, case_id, fields, submitted_at, updated_at
		FROM submissions
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`

	var sub domain.Submission
	var fields string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID).Scan(
		&sub.ID, &sub.TenantID, &sub.CaseID, &fields,
		&sub.SubmittedAt, &sub.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if fields != "" {
		json.Unmarshal([]byte(fields), &sub.Fields)
	}

	return &sub, nil
}

// SaveAttachment stores an attachment record with tenant isolation.
func (r *SQLRepository) SaveAttachment(ctx context.Context, tenantID string, att *domain.Attachment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	deleted := 0
	if att.Deleted {
		deleted = 1
	}
	redacted := 0
	if att.Redacted {
		redacted = 1
	}

	query := `
		INSERT INTO attachments (
			id, tenant_id, case_id, file_name, content_type,
			size_bytes, deleted, redacted, uploaded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			deleted = excluded.deleted,
			redacted = excluded.redacted
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		att.ID, tenantID, att.CaseID, att.FileName, att.ContentType,
		att.SizeBytes, deleted, redacted, att.UploadedAt,
	)
	return err
}

// ListAttachments retrieves all attachment records for a case, including
// deleted and redacted ones. Callers filter via CaseState.LiveAttachments.
func (r *SQLRepository) ListAttachments(ctx context.Context, tenantID string, caseID string) ([]*domain.Attachment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, case_id, file_name, COALESCE(content_type, ''),
			   size_bytes, deleted, redacted, uploaded_at
		FROM attachments
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY uploaded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attachments []*domain.Attachment
	for rows.Next() {
		var att domain.Attachment
		var deleted, redacted int

		if err := rows.Scan(
			&att.ID, &att.TenantID, &att.CaseID, &att.FileName, &att.ContentType,
			&att.SizeBytes, &deleted, &redacted, &att.UploadedAt,
		); err != nil {
			return nil, err
		}

		att.Deleted = deleted == 1
		att.Redacted = redacted == 1
		attachments = append(attachments, &att)
	}

	return attachments, rows.Err()
}

// AppendCaseEvent appends an event to the case's audit log.
// Events are insert-only; there is no update or delete path.
func (r *SQLRepository) AppendCaseEvent(ctx context.Context, tenantID string, ev *domain.CaseEvent) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	payload, _ := json.Marshal(ev.Payload)

	query := `
		INSERT INTO case_events (
			id, tenant_id, case_id, event_type, actor, payload, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		ev.ID, tenantID, ev.CaseID, ev.EventType, ev.Actor,
		string(payload), ev.OccurredAt,
	)
	return err
}

// ListCaseEvents retrieves a case's event log in occurrence order.
func (r *SQLRepository) ListCaseEvents(ctx context.Context, tenantID string, caseID string) ([]*domain.CaseEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, case_id, event_type, COALESCE(actor, ''),
			   COALESCE(payload, ''), occurred_at
		FROM case_events
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.CaseEvent
	for rows.Next() {
		var ev domain.CaseEvent
		var payload string

		if err := rows.Scan(
			&ev.ID, &ev.TenantID, &ev.CaseID, &ev.EventType, &ev.Actor,
			&payload, &ev.OccurredAt,
		); err != nil {
			return nil, err
		}

		if payload != "" {
			json.Unmarshal([]byte(payload), &ev.Payload)
		}
		events = append(events, &ev)
	}

	return events, rows.Err()
}

// CountCaseEventsSince counts events for a case within a time window.
func (r *SQLRepository) CountCaseEventsSince(ctx context.Context, tenantID string, caseID string, since time.Time) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*) FROM case_events
		WHERE tenant_id = ? AND case_id = ? AND occurred_at >= ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID, since).Scan(&count)
	if err != nil {
		return 0, err
	}

	return count, nil
}

// GetCaseState loads the full case state for signal generation.
// Only a missing case record is an error; absent optional artifacts are
// returned as nil or empty.
func (r *SQLRepository) GetCaseState(ctx context.Context, tenantID string, caseID string) (*domain.CaseState, error) {
	c, err := r.GetCase(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	state := &domain.CaseState{Case: c}

	sub, err := r.GetSubmissionByCase(ctx, tenantID, caseID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	state.Submission = sub

	state.Attachments, err = r.ListAttachments(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	state.Events, err = r.ListCaseEvents(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	return state, nil
}

// UpsertIntelligence persists the computed result. The current record is
// upserted by (case_id, tenant_id) so concurrent recomputes resolve to
// last-writer-wins; a history row is appended and pruned to historyLimit.
func (r *SQLRepository) UpsertIntelligence(ctx context.Context, tenantID string, intel *domain.DecisionIntelligence, historyLimit int) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	signals, _ := json.Marshal(intel.Signals)
	gaps, _ := json.Marshal(intel.Gaps)
	biasFlags, _ := json.Marshal(intel.BiasFlags)
	factors, _ := json.Marshal(intel.ExplanationFactors)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO decision_intelligence (
			case_id, tenant_id, decision_type, completeness_score,
			confidence_score, confidence_band, gap_severity_score,
			signals, gaps, bias_flags, explanation_factors, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id, tenant_id) DO UPDATE SET
			decision_type = excluded.decision_type,
			completeness_score = excluded.completeness_score,
			confidence_score = excluded.confidence_score,
			confidence_band = excluded.confidence_band,
			gap_severity_score = excluded.gap_severity_score,
			signals = excluded.signals,
			gaps = excluded.gaps,
			bias_flags = excluded.bias_flags,
			explanation_factors = excluded.explanation_factors,
			computed_at = excluded.computed_at
	`

	if _, err := tx.ExecContext(ctx, r.rebind(upsert),
		intel.CaseID, tenantID, intel.DecisionType, intel.CompletenessScore,
		intel.ConfidenceScore, intel.ConfidenceBand, intel.GapSeverityScore,
		string(signals), string(gaps), string(biasFlags), string(factors),
		intel.ComputedAt,
	); err != nil {
		return err
	}

	if historyLimit > 0 {
		payload, _ := json.Marshal(intel)

		insert := `
			INSERT INTO intelligence_history (id, tenant_id, case_id, payload, computed_at)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, r.rebind(insert),
			uuid.New().String(), tenantID, intel.CaseID, string(payload), intel.ComputedAt,
		); err != nil {
			return err
		}

		prune := `
			DELETE FROM intelligence_history
			WHERE tenant_id = ? AND case_id = ? AND id NOT IN (
				SELECT id FROM intelligence_history
				WHERE tenant_id = ? AND case_id = ?
				ORDER BY computed_at DESC
				LIMIT ?
			)
		`
		if _, err := tx.ExecContext(ctx, r.rebind(prune),
			tenantID, intel.CaseID, tenantID, intel.CaseID, historyLimit,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetIntelligence retrieves the current intelligence record for a case.
func (r *SQLRepository) GetIntelligence(ctx context.Context, tenantID string, caseID string) (*domain.DecisionIntelligence, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT case_id, tenant_id, decision_type, completeness_score,
			   confidence_score, confidence_band, gap_severity_score,
			   signals, gaps, bias_flags, explanation_factors, computed_at
		FROM decision_intelligence
		WHERE tenant_id = ? AND case_id = ?
	`

	var intel domain.DecisionIntelligence
	var signals, gaps, biasFlags, factors string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, caseID).Scan(
		&intel.CaseID, &intel.TenantID, &intel.DecisionType, &intel.CompletenessScore,
		&intel.ConfidenceScore, &intel.ConfidenceBand, &intel.GapSeverityScore,
		&signals, &gaps, &biasFlags, &factors, &intel.ComputedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(signals), &intel.Signals)
	json.Unmarshal([]byte(gaps), &intel.Gaps)
	json.Unmarshal([]byte(biasFlags), &intel.BiasFlags)
	json.Unmarshal([]byte(factors), &intel.ExplanationFactors)

	return &intel, nil
}

// ListIntelligenceHistory retrieves a case's bounded result history,
// newest first.
func (r *SQLRepository) ListIntelligenceHistory(ctx context.Context, tenantID string, caseID string, limit int) ([]*domain.DecisionIntelligence, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT payload FROM intelligence_history
		WHERE tenant_id = ? AND case_id = ?
		ORDER BY computed_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []*domain.DecisionIntelligence
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var intel domain.DecisionIntelligence
		if err := json.Unmarshal([]byte(payload), &intel); err != nil {
			return nil, fmt.Errorf("failed to parse history record: %w", err)
		}
		history = append(history, &intel)
	}

	return history, rows.Err()
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
