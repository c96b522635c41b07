package automation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

// Evaluator is the engine entry point the change source feeds.
type Evaluator interface {
	Evaluate(ctx context.Context, ev domain.TransitionEvent) ([]domain.Outcome, error)
}

// Diff turns a committed record mutation into transition events: one for a
// stage change plus one per field whose value changed. A field that
// appears or disappears counts as a change from/to the empty string.
func Diff(before, after *domain.Record, at time.Time) []domain.TransitionEvent {
	if after == nil {
		return nil
	}
	var prev domain.Record
	if before != nil {
		prev = *before
	}

	var events []domain.TransitionEvent
	if prev.StageID != after.StageID {
		events = append(events, domain.StageTransition(after.ID, prev.StageID, after.StageID, at))
	}

	keys := make(map[string]struct{}, len(after.Fields)+len(prev.Fields))
	for k := range prev.Fields {
		keys[k] = struct{}{}
	}
	for k := range after.Fields {
		keys[k] = struct{}{}
	}
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, k := range names {
		oldV, newV := prev.Fields[k], after.Fields[k]
		if oldV != newV {
			events = append(events, domain.FieldTransition(after.ID, k, oldV, newV, at))
		}
	}
	return events
}

// ChangeSource hands transition events to the engine without making the
// mutation path wait on it. A failing engine (mail relay down, ledger
// unreachable) is logged and never surfaces to the record write.
type ChangeSource struct {
	eval Evaluator
	now  func() time.Time
	wg   sync.WaitGroup
}

// NewChangeSource creates a change source feeding eval.
func NewChangeSource(eval Evaluator) *ChangeSource {
	return &ChangeSource{eval: eval, now: time.Now}
}

// RecordChanged publishes every transition between before and after.
func (c *ChangeSource) RecordChanged(ctx context.Context, before, after *domain.Record) int {
	events := Diff(before, after, c.now())
	for _, ev := range events {
		c.Publish(ctx, ev)
	}
	return len(events)
}

// Publish evaluates ev in the background. ctx values are kept but its
// cancellation is not: the caller's request finishing must not abort the
// evaluation.
func (c *ChangeSource) Publish(ctx context.Context, ev domain.TransitionEvent) {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = c.now()
	}
	detached := context.WithoutCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("transition evaluation panicked", "record_id", ev.RecordID, "field", ev.Field, "panic", r)
			}
		}()
		outcomes, err := c.eval.Evaluate(detached, ev)
		if err != nil {
			logger.Error("transition evaluation failed", "record_id", ev.RecordID, "field", ev.Field, "error", err)
			return
		}
		if len(outcomes) > 0 {
			logger.Debug("transition evaluated", "record_id", ev.RecordID, "field", ev.Field, "outcomes", len(outcomes))
		}
	}()
}

// Wait blocks until every published evaluation has finished.
func (c *ChangeSource) Wait() { c.wg.Wait() }
