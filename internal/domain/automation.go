package domain

import (
	"errors"
	"fmt"
	"time"
)

// Role identifies which party on a loan a message is addressed to.
type Role string

const (
	RoleBorrower     Role = "borrower"
	RoleBuyerAgent   Role = "buyer_agent"
	RoleListingAgent Role = "listing_agent"
	RoleLender       Role = "lender"
	RoleTeamMember   Role = "team_member"
)

// Roles lists every recipient role in display order.
var Roles = []Role{RoleBorrower, RoleBuyerAgent, RoleListingAgent, RoleLender, RoleTeamMember}

// ErrInvalidRole is returned by ParseRole for values outside the enum.
var ErrInvalidRole = errors.New("invalid recipient role")

// ParseRole validates a persisted or user-supplied role string.
func ParseRole(s string) (Role, error) {
	for _, r := range Roles {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// AutomationRule is an operator-configured rule. It is created and edited only
// by the admin surface; the engine treats it as read-only apart from run stats.
type AutomationRule struct {
	ID            string      `json:"id" db:"id"`
	Name          string      `json:"name" db:"name"`
	Trigger       Trigger     `json:"-" db:"-"`
	PipelineGroup string      `json:"pipeline_group" db:"pipeline_group"`
	RecipientRole Role        `json:"recipient_role" db:"recipient_role"`
	CCRole        *Role       `json:"cc_role,omitempty" db:"cc_role"`
	TemplateID    *string     `json:"template_id,omitempty" db:"template_id"`
	Conditions    []Condition `json:"conditions,omitempty" db:"conditions"`
	IsActive      bool        `json:"is_active" db:"is_active"`

	// Stats (written only through the execution ledger)
	LastRunAt      *time.Time `json:"last_run_at" db:"last_run_at"`
	ExecutionCount int        `json:"execution_count" db:"execution_count"`
}

// ConditionOp enumerates the comparison operators allowed in extra conditions.
type ConditionOp string

const (
	OpEquals    ConditionOp = "eq"
	OpNotEquals ConditionOp = "neq"
	OpIn        ConditionOp = "in"
	OpNotIn     ConditionOp = "not_in"
	OpContains  ConditionOp = "contains"
	OpEmpty     ConditionOp = "empty"
	OpNotEmpty  ConditionOp = "not_empty"
	OpGT        ConditionOp = "gt"
	OpGTE       ConditionOp = "gte"
	OpLT        ConditionOp = "lt"
	OpLTE       ConditionOp = "lte"
)

// Condition is a single predicate evaluated against the current record.
// For in/not_in, Values holds the candidate set; every other op uses Value.
type Condition struct {
	Field  string      `json:"field"`
	Op     ConditionOp `json:"op"`
	Value  string      `json:"value,omitempty"`
	Values []string    `json:"values,omitempty"`
}

// Validate checks that the condition is well-formed.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition: field is required")
	}
	switch c.Op {
	case OpEquals, OpNotEquals, OpContains, OpGT, OpGTE, OpLT, OpLTE:
		return nil
	case OpIn, OpNotIn:
		if len(c.Values) == 0 {
			return fmt.Errorf("condition %s: %s needs values", c.Field, c.Op)
		}
		return nil
	case OpEmpty, OpNotEmpty:
		return nil
	default:
		return fmt.Errorf("condition %s: unknown op %q", c.Field, c.Op)
	}
}

// TestModeSettings is the singleton test-mode configuration. When Enabled,
// every dispatch is redirected to the address configured for its role.
type TestModeSettings struct {
	Enabled   bool            `json:"enabled"`
	Addresses map[Role]string `json:"addresses"`
}

// AddressFor returns the configured test address for a role, if any.
func (s TestModeSettings) AddressFor(r Role) (string, bool) {
	addr, ok := s.Addresses[r]
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}
