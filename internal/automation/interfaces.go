package automation

import (
	"context"
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// RecordStore reads loan/lead records and their related contacts.
// Implementations must be safe for concurrent use.
type RecordStore interface {
	// GetRecord returns ErrRecordNotFound if the record doesn't exist.
	GetRecord(ctx context.Context, id string) (*domain.Record, error)

	// ListByDate returns records whose dateField holds the given calendar date.
	ListByDate(ctx context.Context, dateField string, date time.Time) ([]domain.Record, error)

	// RandomRecord picks one record uniformly at random. Returns
	// ErrRecordNotFound when the store is empty.
	RandomRecord(ctx context.Context) (*domain.Record, error)

	// GetContact returns ErrContactNotFound if the contact doesn't exist.
	GetContact(ctx context.Context, id string) (*domain.Contact, error)
}

// RuleStore reads persisted automation rules. The engine never writes rules.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]domain.AutomationRule, error)

	// GetRule returns ErrRuleNotFound if the rule doesn't exist. Inactive
	// rules are returned too. A stored rule that fails validation comes back
	// with as much as decoded and an error wrapping ErrInvalidRule.
	GetRule(ctx context.Context, id string) (*domain.AutomationRule, error)
}

// TemplateStore reads message templates.
type TemplateStore interface {
	// GetTemplate returns ErrTemplateNotFound if the template doesn't exist.
	// Archived templates are returned with Archived set.
	GetTemplate(ctx context.Context, id string) (*domain.Template, error)
}

// SettingsStore reads the test-mode singleton.
type SettingsStore interface {
	TestModeSettings(ctx context.Context) (domain.TestModeSettings, error)
}

// Ledger is the append-only execution history plus the dedupe claim table.
type Ledger interface {
	// Claim atomically records key if absent. It returns false when the key
	// was already claimed. Must be race-safe across processes.
	Claim(ctx context.Context, key string) (bool, error)

	Append(ctx context.Context, rec *domain.ExecutionRecord) error

	// Query returns records for one automation ordered by executed_at DESC.
	Query(ctx context.Context, automationID string, limit, offset int) ([]domain.ExecutionRecord, error)

	// BumpRuleStats sets last_run_at and increments execution_count.
	BumpRuleStats(ctx context.Context, automationID string, at time.Time) error
}

// Dispatcher delivers one rendered message. Implementations must honor ctx
// cancellation so the engine's dispatch timeout is effective.
type Dispatcher interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Renderer substitutes merge tags in a template. Unresolved tags render
// empty; an error means the template itself is unusable.
type Renderer interface {
	RenderMessage(tpl *domain.Template, rec *domain.Record, related domain.Related) (subject, body string, err error)
}
