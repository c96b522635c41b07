package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

var ruleCols = []string{"id", "name", "trigger_type", "trigger_config", "pipeline_group", "recipient_role",
	"cc_role", "template_id", "conditions", "is_active", "last_run_at", "execution_count"}

func TestListActiveRulesSkipsInvalid(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows(ruleCols).
		AddRow("a1", "CTC", "field_changed", []byte(`{"field":"loan_status","target_value":"Clear to Close"}`),
			"purchase", "borrower", "buyer_agent", "tpl-1", []byte(`[]`), true, nil, 3).
		AddRow("a2", "Broken", "webhook", []byte(`{}`),
			"", "borrower", nil, nil, []byte(`[]`), true, nil, 0).
		AddRow("a3", "Close soon", "date_offset", []byte(`{"date_field":"close_date","days_offset":-3}`),
			"", "lender", nil, nil, []byte(`[{"field":"loan_type","op":"eq","value":"FHA"}]`), true, nil, 0)
	mock.ExpectQuery("SELECT .* FROM automations WHERE is_active = true").WillReturnRows(rows)

	rules, err := NewRuleRepo(db).ListActiveRules(context.Background())
	require.NoError(t, err)
	require.Len(t, rules, 2)

	assert.Equal(t, "a1", rules[0].ID)
	assert.Equal(t, domain.FieldChanged{Field: "loan_status", TargetValue: "Clear to Close"}, rules[0].Trigger)
	require.NotNil(t, rules[0].CCRole)
	assert.Equal(t, domain.RoleBuyerAgent, *rules[0].CCRole)
	require.NotNil(t, rules[0].TemplateID)
	assert.Equal(t, "tpl-1", *rules[0].TemplateID)
	assert.Equal(t, 3, rules[0].ExecutionCount)

	assert.Equal(t, domain.DateOffset{DateField: "close_date", DaysOffset: -3}, rules[1].Trigger)
	assert.Nil(t, rules[1].CCRole)
	assert.Nil(t, rules[1].TemplateID)
	assert.Len(t, rules[1].Conditions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRuleNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("SELECT .* FROM automations WHERE id").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := NewRuleRepo(db).GetRule(context.Background(), "nope")
	assert.ErrorIs(t, err, automation.ErrRuleNotFound)
}

func TestGetRuleInvalidTrigger(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows(ruleCols).
		AddRow("a1", "Bad", "field_changed", []byte(`{"field":"loan_status"}`),
			"", "borrower", nil, nil, []byte(`[]`), false, nil, 0)
	mock.ExpectQuery("SELECT .* FROM automations WHERE id").WithArgs("a1").WillReturnRows(rows)

	rule, err := NewRuleRepo(db).GetRule(context.Background(), "a1")
	assert.ErrorIs(t, err, domain.ErrInvalidTrigger)
	assert.ErrorIs(t, err, automation.ErrInvalidRule)
	require.NotNil(t, rule)
	assert.Equal(t, "a1", rule.ID)
	assert.Equal(t, "Bad", rule.Name)
}

func TestGetRuleInvalidRole(t *testing.T) {
	db, mock := newMock(t)
	rows := sqlmock.NewRows(ruleCols).
		AddRow("a2", "Bad role", "field_changed", []byte(`{"field":"loan_status","target_value":"Clear to Close"}`),
			"", "landlord", nil, nil, []byte(`[]`), true, nil, 0)
	mock.ExpectQuery("SELECT .* FROM automations WHERE id").WithArgs("a2").WillReturnRows(rows)

	rule, err := NewRuleRepo(db).GetRule(context.Background(), "a2")
	assert.ErrorIs(t, err, automation.ErrInvalidRule)
	require.NotNil(t, rule)
	assert.Equal(t, "a2", rule.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

var recordCols = []string{"id", "stage_id", "fields", "borrower_id", "buyer_agent_id",
	"listing_agent_id", "lender_id", "team_member_id", "created_at", "updated_at"}

func TestListByDate(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	rows := sqlmock.NewRows(recordCols).
		AddRow("r1", "uw", []byte(`{"close_date":"2026-03-14","loan_amount":450000,"escrow":true,"note":null}`),
			"c1", "c2", "", "", "", now, now)
	mock.ExpectQuery(`SELECT .* FROM loan_records WHERE LEFT\(fields->>\$1, 10\) = \$2`).
		WithArgs("close_date", "2026-03-14").
		WillReturnRows(rows)

	day := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	recs, err := NewRecordRepo(db).ListByDate(context.Background(), "close_date", day)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "450000", recs[0].Fields["loan_amount"])
	assert.Equal(t, "true", recs[0].Fields["escrow"])
	assert.Equal(t, "", recs[0].Fields["note"])
	assert.Equal(t, "c2", recs[0].BuyerAgentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRandomRecordEmpty(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("ORDER BY random\\(\\) LIMIT 1").WillReturnRows(sqlmock.NewRows(recordCols))

	_, err := NewRecordRepo(db).RandomRecord(context.Background())
	assert.ErrorIs(t, err, automation.ErrRecordNotFound)
}

func TestGetTemplate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM email_templates").WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "subject", "body", "is_archived"}).
			AddRow("tpl-1", "CTC", "Clear!", "Body", true))

	tpl, err := NewTemplateRepo(db).GetTemplate(context.Background(), "tpl-1")
	require.NoError(t, err)
	assert.True(t, tpl.Archived)

	mock.ExpectQuery("FROM email_templates").WithArgs("gone").WillReturnError(sql.ErrNoRows)
	_, err = NewTemplateRepo(db).GetTemplate(context.Background(), "gone")
	assert.ErrorIs(t, err, automation.ErrTemplateNotFound)
}

func TestTestModeSettings(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM automation_test_settings").
		WillReturnRows(sqlmock.NewRows([]string{"enabled", "borrower_email", "buyer_agent_email",
			"listing_agent_email", "lender_email", "team_member_email"}).
			AddRow(true, "qa+borrower@example.com", "", "", "qa+lender@example.com", ""))

	s, err := NewSettingsRepo(db).TestModeSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, s.Enabled)
	addr, ok := s.AddressFor(domain.RoleBorrower)
	assert.True(t, ok)
	assert.Equal(t, "qa+borrower@example.com", addr)
	_, ok = s.AddressFor(domain.RoleBuyerAgent)
	assert.False(t, ok)
}

func TestTestModeSettingsMissingRow(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery("FROM automation_test_settings").WillReturnError(sql.ErrNoRows)

	s, err := NewSettingsRepo(db).TestModeSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, s.Enabled)
}

func TestExecutionRepoClaimUsesTable(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec("INSERT INTO automation_claims").WithArgs("key-1").WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := NewExecutionRepo(db, nil).Claim(context.Background(), "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

type failingClaimer struct{}

func (failingClaimer) Claim(context.Context, string) (bool, error) { return false, errors.New("down") }

func TestExecutionRepoClaimError(t *testing.T) {
	db, _ := newMock(t)
	_, err := NewExecutionRepo(db, failingClaimer{}).Claim(context.Background(), "k")
	assert.ErrorContains(t, err, "down")
}

func TestExecutionRepoAppendAndQuery(t *testing.T) {
	db, mock := newMock(t)
	repo := NewExecutionRepo(db, nil)
	now := time.Now().UTC()
	kind := domain.ErrDispatch
	recID := "r1"

	mock.ExpectExec("INSERT INTO automation_executions").
		WithArgs("e1", "a1", sqlmock.AnyArg(), now, false, "DispatchError", "timeout",
			"dana@example.com", "borrower", nil, "CTC", "Clear!", false, "dk").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Append(context.Background(), &domain.ExecutionRecord{
		ID: "e1", AutomationID: "a1", RecordID: &recID, ExecutedAt: now, ErrorKind: &kind,
		ErrorMessage: "timeout", RecipientEmail: "dana@example.com", RecipientRole: domain.RoleBorrower,
		TemplateName: "CTC", Subject: "Clear!", DedupeKey: "dk",
	})
	require.NoError(t, err)

	cols := []string{"id", "automation_id", "record_id", "executed_at", "success", "error_kind", "error_message",
		"recipient_email", "recipient_role", "cc_email", "template_name", "subject_sent", "is_test_mode", "dedupe_key"}
	mock.ExpectQuery("FROM automation_executions").WithArgs("a1", 10, 0).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e2", "a1", nil, now, true, nil, "", "qa@example.com", "borrower", "cc@example.com", "CTC", "Clear!", true, nil).
			AddRow("e1", "a1", "r1", now.Add(-time.Minute), false, "DispatchError", "timeout", "dana@example.com", "borrower", nil, "CTC", "Clear!", false, "dk"))

	recs, err := repo.Query(context.Background(), "a1", 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Nil(t, recs[0].RecordID)
	assert.True(t, recs[0].IsTestMode)
	require.NotNil(t, recs[0].CCEmail)
	assert.Equal(t, "cc@example.com", *recs[0].CCEmail)
	require.NotNil(t, recs[1].ErrorKind)
	assert.Equal(t, domain.ErrDispatch, *recs[1].ErrorKind)
	assert.Equal(t, "dk", recs[1].DedupeKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBumpRuleStats(t *testing.T) {
	db, mock := newMock(t)
	at := time.Now()
	mock.ExpectExec("UPDATE automations").WithArgs("a1", at).WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewExecutionRepo(db, nil).BumpRuleStats(context.Background(), "a1", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}
