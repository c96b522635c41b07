package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

// TemplateRepo implements automation.TemplateStore against PostgreSQL.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

func (r *TemplateRepo) GetTemplate(ctx context.Context, id string) (*domain.Template, error) {
	t := &domain.Template{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, subject, body, is_archived
		FROM email_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Subject, &t.Body, &t.Archived)
	if err == sql.ErrNoRows {
		return nil, automation.ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return t, nil
}
