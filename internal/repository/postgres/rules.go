package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

// RuleRepo implements automation.RuleStore against PostgreSQL.
type RuleRepo struct{ db *sql.DB }

// NewRuleRepo creates a Postgres-backed rule repository.
func NewRuleRepo(db *sql.DB) *RuleRepo { return &RuleRepo{db: db} }

const ruleColumns = `
	id, name, trigger_type, trigger_config, pipeline_group, recipient_role,
	cc_role, template_id, conditions, is_active, last_run_at, execution_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanRule decodes one row, validating the trigger payload at the boundary.
func scanRule(s rowScanner) (*domain.AutomationRule, error) {
	var (
		rule                  domain.AutomationRule
		triggerType, role     string
		triggerCfg, condsJSON []byte
		ccRole, templateID    sql.NullString
		lastRun               sql.NullTime
	)
	if err := s.Scan(&rule.ID, &rule.Name, &triggerType, &triggerCfg, &rule.PipelineGroup, &role,
		&ccRole, &templateID, &condsJSON, &rule.IsActive, &lastRun, &rule.ExecutionCount); err != nil {
		return nil, err
	}

	trig, err := domain.ParseTrigger(triggerType, triggerCfg)
	if err != nil {
		return &rule, err
	}
	rule.Trigger = trig

	if rule.RecipientRole, err = domain.ParseRole(role); err != nil {
		return &rule, err
	}
	if ccRole.Valid && ccRole.String != "" {
		cc, err := domain.ParseRole(ccRole.String)
		if err != nil {
			return &rule, err
		}
		rule.CCRole = &cc
	}
	if templateID.Valid && templateID.String != "" {
		id := templateID.String
		rule.TemplateID = &id
	}
	if len(condsJSON) > 0 {
		if err := json.Unmarshal(condsJSON, &rule.Conditions); err != nil {
			return &rule, fmt.Errorf("conditions: %w", err)
		}
		for _, c := range rule.Conditions {
			if err := c.Validate(); err != nil {
				return &rule, err
			}
		}
	}
	if lastRun.Valid {
		t := lastRun.Time
		rule.LastRunAt = &t
	}
	return &rule, nil
}

// ListActiveRules returns every active rule. Rules whose stored trigger or
// conditions fail validation are skipped and logged, never matched.
func (r *RuleRepo) ListActiveRules(ctx context.Context) ([]domain.AutomationRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+ruleColumns+` FROM automations WHERE is_active = true ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list automations: %w", err)
	}
	defer rows.Close()

	var rules []domain.AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			if rule == nil {
				return nil, fmt.Errorf("scan automation: %w", err)
			}
			logger.Warn("skipping invalid automation", "automation_id", rule.ID, "error", err)
			continue
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// GetRule returns a rule regardless of its active flag. A row that fails
// validation is returned alongside an error wrapping automation.ErrInvalidRule.
func (r *RuleRepo) GetRule(ctx context.Context, id string) (*domain.AutomationRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+ruleColumns+` FROM automations WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, automation.ErrRuleNotFound
	}
	if err != nil && rule != nil {
		// Decoded far enough to identify; the caller records the failure.
		return rule, fmt.Errorf("%w: %s: %w", automation.ErrInvalidRule, id, err)
	}
	if err != nil {
		return nil, fmt.Errorf("get automation %s: %w", id, err)
	}
	return rule, nil
}
