package automation_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/mailing"
	"github.com/ignite/pipeline-automation/internal/repository/memory"
)

var chicago, _ = time.LoadLocation("America/Chicago")

// fakeDispatcher records sent messages. block makes Send wait for ctx.
type fakeDispatcher struct {
	mu    sync.Mutex
	sent  []domain.Message
	err   error
	block bool
	delay time.Duration
}

func (d *fakeDispatcher) Send(ctx context.Context, msg domain.Message) error {
	if d.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.err != nil {
		return d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return nil
}

func (d *fakeDispatcher) Sent() []domain.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.Message(nil), d.sent...)
}

var errRelayDown = errors.New("relay unavailable")

type harness struct {
	store  *memory.Store
	disp   *fakeDispatcher
	engine *automation.Engine
}

func strPtr(s string) *string { return &s }

func rolePtr(r domain.Role) *domain.Role { return &r }

// newHarness seeds one CTC loan with a borrower and a buyer's agent, plus
// the "Clear to Close" template.
func newHarness() *harness {
	store := memory.NewStore()
	store.PutContact(domain.Contact{ID: "c-borrower", Role: domain.RoleBorrower, FirstName: "Dana", LastName: "Reyes", Email: "dana@example.com"})
	store.PutContact(domain.Contact{ID: "c-agent", Role: domain.RoleBuyerAgent, FirstName: "Sam", LastName: "Ortiz", Email: "sam@agency.com"})
	store.PutRecord(domain.Record{
		ID:           "loan-1",
		StageID:      "processing",
		BorrowerID:   "c-borrower",
		BuyerAgentID: "c-agent",
		Fields: map[string]string{
			"loan_status": "Processing",
			"loan_amount": "450000",
			"loan_type":   "Conventional",
			"close_date":  "2026-03-14",
		},
	})
	store.PutTemplate(domain.Template{
		ID:      "tpl-ctc",
		Name:    "Clear to Close",
		Subject: "Clear to close for {{ borrower_first_name }}",
		Body:    "Hi {{ borrower_first_name }}, your {{ loan_amount | currency }} loan is clear to close. Agent: {{ agent_name }}",
	})

	disp := &fakeDispatcher{}
	engine := automation.NewEngine(automation.Deps{
		Rules:      store,
		Records:    store,
		Templates:  store,
		Settings:   store,
		Ledger:     store,
		Renderer:   mailing.NewTemplateService(chicago),
		Dispatcher: disp,
	}, automation.Options{
		DispatchTimeout: 50 * time.Millisecond,
		Location:        chicago,
		FromEmail:       "closings@example.com",
	})
	return &harness{store: store, disp: disp, engine: engine}
}

func ctcRule(id string) domain.AutomationRule {
	return domain.AutomationRule{
		ID:            id,
		Name:          "CTC notice",
		Trigger:       domain.FieldChanged{Field: "loan_status", TargetValue: "Clear to Close"},
		RecipientRole: domain.RoleBorrower,
		CCRole:        rolePtr(domain.RoleBuyerAgent),
		TemplateID:    strPtr("tpl-ctc"),
		IsActive:      true,
	}
}

func closeDateRule(id string, offset int) domain.AutomationRule {
	return domain.AutomationRule{
		ID:            id,
		Name:          "Closing reminder",
		Trigger:       domain.DateOffset{DateField: "close_date", DaysOffset: offset},
		RecipientRole: domain.RoleBorrower,
		TemplateID:    strPtr("tpl-ctc"),
		IsActive:      true,
	}
}

func ctcEvent() domain.TransitionEvent {
	return domain.FieldTransition("loan-1", "loan_status", "Processing", "Clear to Close", time.Now())
}
