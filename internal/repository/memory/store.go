// Package memory is an in-process implementation of every automation store.
// It backs tests and local runs without PostgreSQL.
package memory

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

// Store implements automation.RecordStore, RuleStore, TemplateStore,
// SettingsStore and Ledger. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	records    map[string]domain.Record
	contacts   map[string]domain.Contact
	rules      map[string]domain.AutomationRule
	templates  map[string]domain.Template
	settings   domain.TestModeSettings
	claims     map[string]struct{}
	executions []domain.ExecutionRecord
	rng        *rand.Rand
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		records:   make(map[string]domain.Record),
		contacts:  make(map[string]domain.Contact),
		rules:     make(map[string]domain.AutomationRule),
		templates: make(map[string]domain.Template),
		claims:    make(map[string]struct{}),
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// PutRecord inserts or replaces a record.
func (s *Store) PutRecord(r domain.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.ID] = cloneRecord(r)
}

// UpdateRecord applies fn to a copy of the record and stores the result,
// returning the before and after snapshots.
func (s *Store) UpdateRecord(id string, fn func(*domain.Record)) (before, after *domain.Record, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return nil, nil, automation.ErrRecordNotFound
	}
	b := cloneRecord(cur)
	a := cloneRecord(cur)
	fn(&a)
	a.UpdatedAt = time.Now()
	s.records[id] = cloneRecord(a)
	return &b, &a, nil
}

// PutContact inserts or replaces a contact.
func (s *Store) PutContact(c domain.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts[c.ID] = c
}

// PutRule inserts or replaces a rule.
func (s *Store) PutRule(r domain.AutomationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[r.ID] = r
}

// PutTemplate inserts or replaces a template.
func (s *Store) PutTemplate(t domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.ID] = t
}

// SetTestMode replaces the test-mode singleton.
func (s *Store) SetTestMode(ts domain.TestModeSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = ts
}

// Executions returns every ledger row in append order.
func (s *Store) Executions() []domain.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ExecutionRecord(nil), s.executions...)
}

// Rule returns a snapshot of a stored rule, including its stats.
func (s *Store) Rule(id string) (domain.AutomationRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	return r, ok
}

func (s *Store) GetRecord(_ context.Context, id string) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, automation.ErrRecordNotFound
	}
	c := cloneRecord(r)
	return &c, nil
}

func (s *Store) ListByDate(_ context.Context, dateField string, date time.Time) ([]domain.Record, error) {
	want := date.Format(domain.DateLayout)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Record
	for _, r := range s.records {
		if v, ok := r.Value(dateField); ok && automation.NormalizeDate(v) == want {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) RandomRecord(_ context.Context) (*domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil, automation.ErrRecordNotFound
	}
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	r := cloneRecord(s.records[ids[s.rng.Intn(len(ids))]])
	return &r, nil
}

func (s *Store) GetContact(_ context.Context, id string) (*domain.Contact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contacts[id]
	if !ok {
		return nil, automation.ErrContactNotFound
	}
	return &c, nil
}

func (s *Store) ListActiveRules(_ context.Context) ([]domain.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.AutomationRule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetRule(_ context.Context, id string) (*domain.AutomationRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, automation.ErrRuleNotFound
	}
	return &r, nil
}

func (s *Store) GetTemplate(_ context.Context, id string) (*domain.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[id]
	if !ok {
		return nil, automation.ErrTemplateNotFound
	}
	return &t, nil
}

func (s *Store) TestModeSettings(_ context.Context) (domain.TestModeSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := domain.TestModeSettings{Enabled: s.settings.Enabled, Addresses: make(map[domain.Role]string)}
	for k, v := range s.settings.Addresses {
		out.Addresses[k] = v
	}
	return out, nil
}

func (s *Store) Claim(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claims[key]; ok {
		return false, nil
	}
	s.claims[key] = struct{}{}
	return true, nil
}

func (s *Store) Append(_ context.Context, rec *domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions = append(s.executions, *rec)
	return nil
}

// Query returns newest first. Ties keep reverse append order.
func (s *Store) Query(_ context.Context, automationID string, limit, offset int) ([]domain.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ExecutionRecord{}
	for i := len(s.executions) - 1; i >= 0; i-- {
		if s.executions[i].AutomationID == automationID {
			out = append(out, s.executions[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ExecutedAt.After(out[j].ExecutedAt) })
	if offset >= len(out) {
		return []domain.ExecutionRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) BumpRuleStats(_ context.Context, automationID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[automationID]
	if !ok {
		return automation.ErrRuleNotFound
	}
	if r.LastRunAt == nil || at.After(*r.LastRunAt) {
		t := at
		r.LastRunAt = &t
	}
	r.ExecutionCount++
	s.rules[automationID] = r
	return nil
}

func cloneRecord(r domain.Record) domain.Record {
	fields := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}
