package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/claim"
)

// ExecutionRepo implements automation.Ledger. History rows live in
// automation_executions; claims go through the configured Claimer.
type ExecutionRepo struct {
	db      *sql.DB
	claimer claim.Claimer
}

// NewExecutionRepo creates a Postgres-backed ledger. A nil claimer uses the
// automation_claims table on the same database.
func NewExecutionRepo(db *sql.DB, claimer claim.Claimer) *ExecutionRepo {
	if claimer == nil {
		claimer = claim.NewPGClaimer(db)
	}
	return &ExecutionRepo{db: db, claimer: claimer}
}

func (r *ExecutionRepo) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := r.claimer.Claim(ctx, key)
	if err != nil {
		return false, fmt.Errorf("claim: %w", err)
	}
	return ok, nil
}

func (r *ExecutionRepo) Append(ctx context.Context, rec *domain.ExecutionRecord) error {
	var errorKind, dedupe sql.NullString
	if rec.ErrorKind != nil {
		errorKind = sql.NullString{String: string(*rec.ErrorKind), Valid: true}
	}
	if rec.DedupeKey != "" {
		dedupe = sql.NullString{String: rec.DedupeKey, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO automation_executions (
			id, automation_id, record_id, executed_at, success, error_kind, error_message,
			recipient_email, recipient_role, cc_email, template_name, subject_sent,
			is_test_mode, dedupe_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, rec.ID, rec.AutomationID, rec.RecordID, rec.ExecutedAt, rec.Success, errorKind, rec.ErrorMessage,
		rec.RecipientEmail, string(rec.RecipientRole), rec.CCEmail, rec.TemplateName, rec.Subject,
		rec.IsTestMode, dedupe)
	if err != nil {
		return fmt.Errorf("append execution: %w", err)
	}
	return nil
}

func (r *ExecutionRepo) Query(ctx context.Context, automationID string, limit, offset int) ([]domain.ExecutionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, automation_id, record_id, executed_at, success, error_kind, error_message,
		       recipient_email, recipient_role, cc_email, template_name, subject_sent,
		       is_test_mode, dedupe_key
		FROM automation_executions
		WHERE automation_id = $1
		ORDER BY executed_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, automationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	out := []domain.ExecutionRecord{}
	for rows.Next() {
		var (
			rec                          domain.ExecutionRecord
			recordID, errorKind, ccEmail sql.NullString
			dedupe                       sql.NullString
			role                         string
		)
		if err := rows.Scan(&rec.ID, &rec.AutomationID, &recordID, &rec.ExecutedAt, &rec.Success,
			&errorKind, &rec.ErrorMessage, &rec.RecipientEmail, &role, &ccEmail,
			&rec.TemplateName, &rec.Subject, &rec.IsTestMode, &dedupe); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		rec.RecipientRole = domain.Role(role)
		if recordID.Valid {
			id := recordID.String
			rec.RecordID = &id
		}
		if errorKind.Valid {
			k := domain.ErrorKind(errorKind.String)
			rec.ErrorKind = &k
		}
		if ccEmail.Valid {
			cc := ccEmail.String
			rec.CCEmail = &cc
		}
		rec.DedupeKey = nullString(dedupe)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *ExecutionRepo) BumpRuleStats(ctx context.Context, automationID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE automations
		SET last_run_at = GREATEST(COALESCE(last_run_at, $2), $2),
		    execution_count = execution_count + 1,
		    updated_at = NOW()
		WHERE id = $1
	`, automationID, at)
	if err != nil {
		return fmt.Errorf("bump automation stats: %w", err)
	}
	return nil
}
