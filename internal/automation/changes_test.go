package automation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

type recordingEvaluator struct {
	mu     sync.Mutex
	events []domain.TransitionEvent
	err    error
	panics bool
}

func (r *recordingEvaluator) Evaluate(ctx context.Context, ev domain.TransitionEvent) ([]domain.Outcome, error) {
	if r.panics {
		panic("boom")
	}
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil, r.err
}

func TestDiff(t *testing.T) {
	at := time.Now()
	before := &domain.Record{ID: "loan-1", StageID: "uw", Fields: map[string]string{
		"loan_status": "Processing", "loan_amount": "450000", "notes": "x",
	}}
	after := &domain.Record{ID: "loan-1", StageID: "ctc", Fields: map[string]string{
		"loan_status": "Clear to Close", "loan_amount": "450000", "close_date": "2026-03-14",
	}}

	events := automation.Diff(before, after, at)
	require.Len(t, events, 4)
	assert.Equal(t, domain.StageTransition("loan-1", "uw", "ctc", at), events[0])
	assert.Equal(t, domain.FieldTransition("loan-1", "close_date", "", "2026-03-14", at), events[1])
	assert.Equal(t, domain.FieldTransition("loan-1", "loan_status", "Processing", "Clear to Close", at), events[2])
	assert.Equal(t, domain.FieldTransition("loan-1", "notes", "x", "", at), events[3])

	assert.Empty(t, automation.Diff(after, after, at))
	assert.Nil(t, automation.Diff(before, nil, at))
	assert.Len(t, automation.Diff(nil, after, at), 4)
}

func TestChangeSourcePublishes(t *testing.T) {
	eval := &recordingEvaluator{}
	src := automation.NewChangeSource(eval)

	before := &domain.Record{ID: "loan-1", Fields: map[string]string{"loan_status": "Processing"}}
	after := &domain.Record{ID: "loan-1", Fields: map[string]string{"loan_status": "Clear to Close"}}

	ctx, cancel := context.WithCancel(context.Background())
	n := src.RecordChanged(ctx, before, after)
	cancel() // the caller finishing must not abort evaluation
	src.Wait()

	assert.Equal(t, 1, n)
	require.Len(t, eval.events, 1)
	assert.Equal(t, "Clear to Close", eval.events[0].NewValue)
	assert.False(t, eval.events[0].OccurredAt.IsZero())
}

func TestChangeSourceSwallowsFailures(t *testing.T) {
	ev := domain.FieldTransition("loan-1", "loan_status", "a", "b", time.Time{})

	failing := automation.NewChangeSource(&recordingEvaluator{err: errors.New("ledger down")})
	failing.Publish(context.Background(), ev)
	failing.Wait()

	panicking := automation.NewChangeSource(&recordingEvaluator{panics: true})
	assert.NotPanics(t, func() {
		panicking.Publish(context.Background(), ev)
		panicking.Wait()
	})
}

func TestChangeSourceEndToEnd(t *testing.T) {
	h := newHarness()
	h.store.PutRule(ctcRule("a-ctc"))
	src := automation.NewChangeSource(h.engine)

	before, after, err := h.store.UpdateRecord("loan-1", func(r *domain.Record) {
		r.Fields["loan_status"] = "Clear to Close"
	})
	require.NoError(t, err)
	src.RecordChanged(context.Background(), before, after)
	src.Wait()

	assert.Len(t, h.disp.Sent(), 1)
}
