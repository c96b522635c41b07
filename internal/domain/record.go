package domain

import (
	"strings"
	"time"
)

// Well-known record field names.
const (
	FieldID        = "id"
	FieldStageID   = "stage_id"
	FieldLoanState = "loan_status"
	FieldCloseDate = "close_date"
)

// Record is a loan/lead in the pipeline. Related parties are referenced by
// id only; they are resolved through the record store when needed.
type Record struct {
	ID             string            `json:"id" db:"id"`
	StageID        string            `json:"stage_id" db:"stage_id"`
	Fields         map[string]string `json:"fields" db:"fields"`
	BorrowerID     string            `json:"borrower_id,omitempty" db:"borrower_id"`
	BuyerAgentID   string            `json:"buyer_agent_id,omitempty" db:"buyer_agent_id"`
	ListingAgentID string            `json:"listing_agent_id,omitempty" db:"listing_agent_id"`
	LenderID       string            `json:"lender_id,omitempty" db:"lender_id"`
	TeamMemberID   string            `json:"team_member_id,omitempty" db:"team_member_id"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// Value returns the current value of a field. "id" and "stage_id" (or the
// "stage" marker) address the fixed columns; anything else reads Fields.
func (r *Record) Value(field string) (string, bool) {
	switch field {
	case FieldID:
		return r.ID, true
	case FieldStageID, StageMarker:
		return r.StageID, r.StageID != ""
	}
	v, ok := r.Fields[field]
	return v, ok
}

// ContactID returns the foreign key for the contact filling the given role.
func (r *Record) ContactID(role Role) string {
	switch role {
	case RoleBorrower:
		return r.BorrowerID
	case RoleBuyerAgent:
		return r.BuyerAgentID
	case RoleListingAgent:
		return r.ListingAgentID
	case RoleLender:
		return r.LenderID
	case RoleTeamMember:
		return r.TeamMemberID
	}
	return ""
}

// Contact is a person related to a record (borrower, agent, lender, staff).
type Contact struct {
	ID        string `json:"id" db:"id"`
	Role      Role   `json:"role" db:"role"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
	Company   string `json:"company" db:"company"`
}

// FullName joins first and last name, skipping blanks.
func (c *Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Template is a named message template.
type Template struct {
	ID       string `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Subject  string `json:"subject" db:"subject"`
	Body     string `json:"body" db:"body"`
	Archived bool   `json:"archived" db:"is_archived"`
}

// Message is the fully-rendered payload handed to the dispatcher.
type Message struct {
	To        string `json:"to"`
	CC        string `json:"cc,omitempty"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	FromName  string `json:"from_name,omitempty"`
	FromEmail string `json:"from_email,omitempty"`
}

// Related holds the contacts attached to a record, keyed by role. Missing
// roles are simply absent.
type Related map[Role]*Contact
