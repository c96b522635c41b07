package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

const (
	DefaultDispatchTimeout = 15 * time.Second
	DefaultHistoryLimit    = 50
	MaxHistoryLimit        = 500
)

// Deps are the collaborators the engine reads from and writes to.
type Deps struct {
	Rules      RuleStore
	Records    RecordStore
	Templates  TemplateStore
	Settings   SettingsStore
	Ledger     Ledger
	Renderer   Renderer
	Dispatcher Dispatcher
}

// Options tune the engine. Zero values fall back to defaults.
type Options struct {
	DispatchTimeout time.Duration
	HistoryLimit    int
	Location        *time.Location // business calendar for date sweeps
	FromName        string
	FromEmail       string
}

// AdHocOptions control a "send test" run.
type AdHocOptions struct {
	RecordID        string `json:"record_id,omitempty"`
	UseRandomRecord bool   `json:"use_random_record"`
	TestMode        bool   `json:"test_mode"`
}

// Engine is the execution coordinator: match -> claim -> render -> resolve
// -> overlay -> dispatch -> log. All methods are safe for concurrent use;
// the only cross-caller synchronization is the ledger claim.
type Engine struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(deps Deps, opts Options) *Engine {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Engine{deps: deps, opts: opts, now: time.Now}
}

// SetClock overrides the engine's time source.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// Location returns the business calendar used for date sweeps.
func (e *Engine) Location() *time.Location { return e.opts.Location }

// run is everything one (rule, event) execution needs. settings is read
// once by the caller and never re-read mid-run.
type run struct {
	rule      domain.AutomationRule
	record    *domain.Record
	related   domain.Related
	settings  domain.TestModeSettings
	dedupeKey string
	adHoc     bool
	forceTest bool
	// invalid is set when the stored rule failed validation; the run
	// fails as a configuration error before rendering.
	invalid error
}

// Evaluate runs every active rule matching ev. It is called after a record
// mutation commits. Per-rule failures are recorded in the ledger and do not
// stop other rules; the returned error covers infrastructure problems only.
func (e *Engine) Evaluate(ctx context.Context, ev domain.TransitionEvent) ([]domain.Outcome, error) {
	if err := ev.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	rules, err := e.deps.Rules.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active rules: %w", err)
	}
	candidates := MatchTransition(ev, rules)
	if len(candidates) == 0 {
		return nil, nil
	}
	settings, err := e.deps.Settings.TestModeSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read test mode settings: %w", err)
	}
	return e.evaluate(ctx, ev, candidates, nil, settings)
}

// evaluate executes the transition-matched candidates for ev. rec may be
// nil, in which case it is loaded from the record store.
func (e *Engine) evaluate(ctx context.Context, ev domain.TransitionEvent, candidates []domain.AutomationRule, rec *domain.Record, settings domain.TestModeSettings) ([]domain.Outcome, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if rec == nil {
		var err error
		rec, err = e.deps.Records.GetRecord(ctx, ev.RecordID)
		if err != nil {
			return nil, fmt.Errorf("load record %s: %w", ev.RecordID, err)
		}
	}
	matched := MatchRecord(ev, candidates, rec)
	if len(matched) == 0 {
		return nil, nil
	}
	related, err := e.loadRelated(ctx, rec)
	if err != nil {
		return nil, err
	}

	// One goroutine per rule: a slow dispatch for one rule must not hold up
	// the others.
	outcomes := make([]domain.Outcome, len(matched))
	errs := make([]error, len(matched))
	var wg sync.WaitGroup
	for i, rule := range matched {
		wg.Add(1)
		go func(i int, rule domain.AutomationRule) {
			defer wg.Done()
			outcomes[i], errs[i] = e.runTriggered(ctx, run{
				rule:      rule,
				record:    rec,
				related:   related,
				settings:  settings,
				dedupeKey: DedupeKey(rule.ID, rec.ID, ev),
			})
		}(i, rule)
	}
	wg.Wait()

	var out []domain.Outcome
	for _, o := range outcomes {
		if o.AutomationID != "" {
			out = append(out, o)
		}
	}
	return out, errors.Join(errs...)
}

func (e *Engine) runTriggered(ctx context.Context, r run) (domain.Outcome, error) {
	claimed, err := e.deps.Ledger.Claim(ctx, r.dedupeKey)
	if err != nil {
		logger.Error("automation claim failed", "automation_id", r.rule.ID, "record_id", r.record.ID, "error", err)
		return domain.Outcome{}, fmt.Errorf("claim %s: %w", r.rule.ID, err)
	}
	if !claimed {
		logger.Info("automation duplicate suppressed", "automation_id", r.rule.ID, "record_id", r.record.ID)
		return domain.Outcome{AutomationID: r.rule.ID, Status: domain.OutcomeDuplicate}, nil
	}

	rec, err := e.execute(ctx, r)
	if rec == nil {
		return domain.Outcome{}, err
	}
	if rec.Success {
		return domain.Outcome{AutomationID: r.rule.ID, Status: domain.OutcomeSent, Record: rec}, nil
	}
	// Classified failures are local to this rule and already in the ledger.
	return domain.Outcome{AutomationID: r.rule.ID, Status: domain.OutcomeFailed, Record: rec}, nil
}

// RunAdHoc is the admin "send test" path. It bypasses matching and the
// claim, always records IsTestMode, and never touches rule stats. A stored
// rule that fails validation still yields a failed ConfigurationError record.
func (e *Engine) RunAdHoc(ctx context.Context, automationID string, opts AdHocOptions) (*domain.ExecutionRecord, error) {
	rule, err := e.deps.Rules.GetRule(ctx, automationID)
	var invalid error
	if errors.Is(err, ErrInvalidRule) && rule != nil {
		invalid, err = err, nil
	}
	if err != nil {
		return nil, err
	}

	var rec *domain.Record
	switch {
	case opts.RecordID != "":
		rec, err = e.deps.Records.GetRecord(ctx, opts.RecordID)
	case opts.UseRandomRecord:
		rec, err = e.deps.Records.RandomRecord(ctx)
	}
	if err != nil {
		return nil, err
	}

	settings, err := e.deps.Settings.TestModeSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("read test mode settings: %w", err)
	}
	related, err := e.loadRelated(ctx, rec)
	if err != nil {
		return nil, err
	}

	exec, err := e.execute(ctx, run{
		rule:      *rule,
		record:    rec,
		related:   related,
		settings:  settings,
		adHoc:     true,
		forceTest: opts.TestMode,
		invalid:   invalid,
	})
	if exec == nil {
		return nil, err
	}
	// Any failure is in the ledger; the caller sees it through the record.
	return exec, nil
}

// ListExecutionHistory returns the newest executions of one automation.
func (e *Engine) ListExecutionHistory(ctx context.Context, automationID string, limit, offset int) ([]domain.ExecutionRecord, error) {
	if limit <= 0 {
		limit = e.opts.HistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return e.deps.Ledger.Query(ctx, automationID, limit, offset)
}

// execute runs render -> resolve -> overlay -> dispatch and writes exactly
// one ExecutionRecord. It returns nil only if that write itself failed.
func (e *Engine) execute(ctx context.Context, r run) (*domain.ExecutionRecord, error) {
	exec := &domain.ExecutionRecord{
		ID:            uuid.NewString(),
		AutomationID:  r.rule.ID,
		RecipientRole: r.rule.RecipientRole,
		IsTestMode:    r.adHoc || r.settings.Enabled || r.forceTest,
		DedupeKey:     r.dedupeKey,
	}
	if r.record != nil {
		id := r.record.ID
		exec.RecordID = &id
	}

	runErr := e.deliver(ctx, r, exec)
	exec.ExecutedAt = e.now().UTC()
	if runErr != nil {
		exec.Success = false
		if kind, ok := KindOf(runErr); ok {
			exec.ErrorKind = &kind
		}
		exec.ErrorMessage = runErr.Error()
	} else {
		exec.Success = true
	}

	// The ledger write must survive caller cancellation: every attempted
	// run leaves exactly one record.
	writeCtx := context.WithoutCancel(ctx)
	if err := e.deps.Ledger.Append(writeCtx, exec); err != nil {
		logger.Error("automation ledger append failed", "automation_id", exec.AutomationID, "execution_id", exec.ID, "error", err)
		return nil, fmt.Errorf("append execution: %w", err)
	}

	if exec.Success && !exec.IsTestMode {
		if err := e.deps.Ledger.BumpRuleStats(writeCtx, exec.AutomationID, exec.ExecutedAt); err != nil {
			logger.Warn("automation stats update failed", "automation_id", exec.AutomationID, "error", err)
		}
	}

	if exec.Success {
		logger.Info("automation sent", "automation_id", exec.AutomationID, "recipient", exec.RecipientEmail, "test_mode", exec.IsTestMode)
	} else {
		logger.Warn("automation failed", "automation_id", exec.AutomationID, "error_kind", kindString(exec.ErrorKind), "error", runErr)
	}
	return exec, runErr
}

// deliver fills exec's snapshot fields as it progresses so a failure at any
// stage still records what was known.
func (e *Engine) deliver(ctx context.Context, r run, exec *domain.ExecutionRecord) error {
	if r.invalid != nil {
		return configError(r.invalid)
	}

	// Rendering
	tpl, err := e.loadTemplate(ctx, r.rule)
	if err != nil {
		return err
	}
	exec.TemplateName = tpl.Name
	subject, body, err := e.deps.Renderer.RenderMessage(tpl, r.record, r.related)
	if err != nil {
		return configError(fmt.Errorf("render template %s: %w", tpl.ID, err))
	}
	exec.Subject = subject

	// RecipientResolved. The overlay only rewrites addresses that resolved,
	// except for an ad hoc run without a record.
	rcpt, resolveErr := ResolveRecipients(r.rule, r.related)
	noRecord := r.adHoc && r.record == nil
	if resolveErr != nil && !noRecord {
		return recipientError(resolveErr)
	}
	rcpt, overlaid, err := ApplyTestMode(r.settings, r.forceTest, rcpt)
	if err != nil {
		return recipientError(err)
	}
	if resolveErr != nil && !overlaid {
		return recipientError(resolveErr)
	}
	exec.RecipientEmail = rcpt.To
	if rcpt.CC != "" {
		cc := rcpt.CC
		exec.CCEmail = &cc
	}

	// Dispatching
	dctx, cancel := context.WithTimeout(ctx, e.opts.DispatchTimeout)
	defer cancel()
	err = e.deps.Dispatcher.Send(dctx, domain.Message{
		To:        rcpt.To,
		CC:        rcpt.CC,
		Subject:   subject,
		Body:      body,
		FromName:  e.opts.FromName,
		FromEmail: e.opts.FromEmail,
	})
	// A nil error means the relay accepted the message, even past the deadline.
	if err != nil {
		return dispatchError(err)
	}
	return nil
}

func (e *Engine) loadTemplate(ctx context.Context, rule domain.AutomationRule) (*domain.Template, error) {
	if rule.TemplateID == nil || *rule.TemplateID == "" {
		return nil, configError(ErrNoTemplate)
	}
	tpl, err := e.deps.Templates.GetTemplate(ctx, *rule.TemplateID)
	if errors.Is(err, ErrTemplateNotFound) {
		return nil, configError(fmt.Errorf("%w: %s", ErrTemplateNotFound, *rule.TemplateID))
	}
	if err != nil {
		return nil, configError(fmt.Errorf("load template %s: %w", *rule.TemplateID, err))
	}
	if tpl.Archived {
		return nil, configError(fmt.Errorf("%w: %s", ErrTemplateArchived, tpl.Name))
	}
	return tpl, nil
}

// loadRelated resolves every contact the record references. A dangling
// foreign key is treated as an absent contact.
func (e *Engine) loadRelated(ctx context.Context, rec *domain.Record) (domain.Related, error) {
	related := make(domain.Related)
	if rec == nil {
		return related, nil
	}
	for _, role := range domain.Roles {
		id := rec.ContactID(role)
		if id == "" {
			continue
		}
		c, err := e.deps.Records.GetContact(ctx, id)
		if errors.Is(err, ErrContactNotFound) {
			logger.Warn("automation dangling contact", "record_id", rec.ID, "role", role, "contact_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load %s contact for record %s: %w", role, rec.ID, err)
		}
		related[role] = c
	}
	return related, nil
}

func kindString(k *domain.ErrorKind) string {
	if k == nil {
		return ""
	}
	return string(*k)
}
