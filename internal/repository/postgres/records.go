package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

// RecordRepo implements automation.RecordStore against PostgreSQL.
type RecordRepo struct{ db *sql.DB }

// NewRecordRepo creates a Postgres-backed record repository.
func NewRecordRepo(db *sql.DB) *RecordRepo { return &RecordRepo{db: db} }

const recordColumns = `
	id, stage_id, fields, COALESCE(borrower_id,''), COALESCE(buyer_agent_id,''),
	COALESCE(listing_agent_id,''), COALESCE(lender_id,''), COALESCE(team_member_id,''),
	created_at, updated_at`

func scanRecord(s rowScanner) (*domain.Record, error) {
	var (
		rec    domain.Record
		fields []byte
	)
	if err := s.Scan(&rec.ID, &rec.StageID, &fields, &rec.BorrowerID, &rec.BuyerAgentID,
		&rec.ListingAgentID, &rec.LenderID, &rec.TeamMemberID, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	m, err := decodeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("record %s fields: %w", rec.ID, err)
	}
	rec.Fields = m
	return &rec, nil
}

// decodeFields flattens a JSONB object to string values. Numbers keep their
// literal form; null becomes empty.
func decodeFields(data []byte) (map[string]string, error) {
	out := make(map[string]string)
	if len(data) == 0 {
		return out, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		var n json.Number
		if err := json.Unmarshal(v, &n); err == nil {
			out[k] = n.String()
			continue
		}
		var b bool
		if err := json.Unmarshal(v, &b); err == nil {
			out[k] = strconv.FormatBool(b)
			continue
		}
		if string(v) == "null" {
			out[k] = ""
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

func (r *RecordRepo) GetRecord(ctx context.Context, id string) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+recordColumns+` FROM loan_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, automation.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// ListByDate matches on the calendar-date prefix of the stored value so
// both "2026-03-14" and timestamp strings qualify.
func (r *RecordRepo) ListByDate(ctx context.Context, dateField string, date time.Time) ([]domain.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT`+recordColumns+` FROM loan_records WHERE LEFT(fields->>$1, 10) = $2 ORDER BY id`,
		dateField, date.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list records by %s: %w", dateField, err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *RecordRepo) RandomRecord(ctx context.Context) (*domain.Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+recordColumns+` FROM loan_records ORDER BY random() LIMIT 1`)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, automation.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("random record: %w", err)
	}
	return rec, nil
}

func (r *RecordRepo) GetContact(ctx context.Context, id string) (*domain.Contact, error) {
	c := &domain.Contact{}
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, role, first_name, last_name, email, phone, company
		FROM contacts WHERE id = $1
	`, id).Scan(&c.ID, &role, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Company)
	if err == sql.ErrNoRows {
		return nil, automation.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	c.Role = domain.Role(role)
	return c, nil
}
