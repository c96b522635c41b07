package automation

import (
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// Match returns the rules that fire for ev against the current record.
// It is pure: rules are expected to be pre-filtered to active ones, and
// inactive rules are skipped again here.
func Match(ev domain.TransitionEvent, rules []domain.AutomationRule, rec *domain.Record) []domain.AutomationRule {
	return MatchRecord(ev, MatchTransition(ev, rules), rec)
}

// MatchTransition applies only the trigger half of matching. It lets the
// engine skip the record read when nothing could fire.
func MatchTransition(ev domain.TransitionEvent, rules []domain.AutomationRule) []domain.AutomationRule {
	var out []domain.AutomationRule
	for _, r := range rules {
		if r.IsActive && triggerMatches(r.Trigger, ev) {
			out = append(out, r)
		}
	}
	return out
}

// MatchRecord keeps the rules whose extra conditions all hold for rec. Date
// events are also dropped when the record's date no longer equals the
// matched date.
func MatchRecord(ev domain.TransitionEvent, rules []domain.AutomationRule, rec *domain.Record) []domain.AutomationRule {
	var out []domain.AutomationRule
	for _, r := range rules {
		if ev.Kind == domain.EventDateArrived && rec != nil {
			current, ok := rec.Value(ev.Field)
			if !ok || NormalizeDate(current) != ev.MatchedDate {
				continue
			}
		}
		if ConditionsHold(r.Conditions, rec) {
			out = append(out, r)
		}
	}
	return out
}

func triggerMatches(t domain.Trigger, ev domain.TransitionEvent) bool {
	switch tr := t.(type) {
	case domain.FieldChanged:
		return ev.Kind == domain.EventFieldChanged &&
			ev.Field == tr.Field &&
			ev.NewValue == tr.TargetValue &&
			ev.OldValue != tr.TargetValue

	case domain.StageChanged:
		return ev.Kind == domain.EventStageChanged &&
			ev.NewValue == tr.TargetStageID &&
			ev.OldValue != tr.TargetStageID

	case domain.DateOffset:
		if ev.Kind != domain.EventDateArrived || ev.Field != tr.DateField {
			return false
		}
		stored, err := time.Parse(domain.DateLayout, ev.MatchedDate)
		if err != nil {
			return false
		}
		return stored.AddDate(0, 0, tr.DaysOffset).Format(domain.DateLayout) == ev.AsOf
	}
	return false
}

// NormalizeDate reduces a stored date or timestamp to YYYY-MM-DD. Values
// that are not dates are returned unchanged.
func NormalizeDate(v string) string {
	if len(v) >= len(domain.DateLayout) {
		if _, err := time.Parse(domain.DateLayout, v[:len(domain.DateLayout)]); err == nil {
			return v[:len(domain.DateLayout)]
		}
	}
	return v
}
