package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// SettingsRepo implements automation.SettingsStore against the
// automation_test_settings singleton row.
type SettingsRepo struct{ db *sql.DB }

// NewSettingsRepo creates a Postgres-backed settings repository.
func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// TestModeSettings returns the singleton. A missing row means test mode is
// off.
func (r *SettingsRepo) TestModeSettings(ctx context.Context) (domain.TestModeSettings, error) {
	var s domain.TestModeSettings
	var borrower, buyerAgent, listing, lender, tm string
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, borrower_email, buyer_agent_email, listing_agent_email,
		       lender_email, team_member_email
		FROM automation_test_settings WHERE id = 1
	`).Scan(&s.Enabled, &borrower, &buyerAgent, &listing, &lender, &tm)
	if err == sql.ErrNoRows {
		return domain.TestModeSettings{}, nil
	}
	if err != nil {
		return domain.TestModeSettings{}, fmt.Errorf("get test settings: %w", err)
	}

	s.Addresses = make(map[domain.Role]string)
	for role, addr := range map[domain.Role]string{
		domain.RoleBorrower:     borrower,
		domain.RoleBuyerAgent:   buyerAgent,
		domain.RoleListingAgent: listing,
		domain.RoleLender:       lender,
		domain.RoleTeamMember:   tm,
	} {
		if addr != "" {
			s.Addresses[role] = addr
		}
	}
	return s, nil
}
