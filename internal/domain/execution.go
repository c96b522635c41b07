package domain

import "time"

// ErrorKind classifies a failed run.
type ErrorKind string

const (
	ErrConfiguration       ErrorKind = "ConfigurationError"
	ErrRecipientResolution ErrorKind = "RecipientResolutionError"
	ErrDispatch            ErrorKind = "DispatchError"
)

// ExecutionRecord is one row of the audit ledger. It is immutable once
// written. RecordID is nil only for an ad hoc test without a record.
type ExecutionRecord struct {
	ID             string     `json:"id" db:"id"`
	AutomationID   string     `json:"automation_id" db:"automation_id"`
	RecordID       *string    `json:"record_id" db:"record_id"`
	ExecutedAt     time.Time  `json:"executed_at" db:"executed_at"`
	Success        bool       `json:"success" db:"success"`
	ErrorKind      *ErrorKind `json:"error_kind" db:"error_kind"`
	ErrorMessage   string     `json:"error_message,omitempty" db:"error_message"`
	RecipientEmail string     `json:"recipient_email" db:"recipient_email"`
	RecipientRole  Role       `json:"recipient_role" db:"recipient_role"`
	CCEmail        *string    `json:"cc_email" db:"cc_email"`
	TemplateName   string     `json:"template_name" db:"template_name"`
	Subject        string     `json:"subject_sent" db:"subject_sent"`
	IsTestMode     bool       `json:"is_test_mode" db:"is_test_mode"`
	DedupeKey      string     `json:"-" db:"dedupe_key"`
}

// OutcomeStatus is the terminal state of one (rule, event) evaluation.
type OutcomeStatus string

const (
	OutcomeSent      OutcomeStatus = "sent"
	OutcomeFailed    OutcomeStatus = "failed"
	OutcomeDuplicate OutcomeStatus = "duplicate_suppressed"
)

// Outcome reports what happened for one matched rule. Record is nil for
// duplicate-suppressed attempts.
type Outcome struct {
	AutomationID string           `json:"automation_id"`
	Status       OutcomeStatus    `json:"status"`
	Record       *ExecutionRecord `json:"record,omitempty"`
}
