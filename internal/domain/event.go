package domain

import (
	"fmt"
	"time"
)

// StageMarker is the field name used by stage transition events.
const StageMarker = "stage"

// DateLayout is the calendar-date format used for date fields and sweeps.
const DateLayout = "2006-01-02"

// EventKind distinguishes the three transition event shapes.
type EventKind string

const (
	EventFieldChanged EventKind = "field"
	EventStageChanged EventKind = "stage"
	EventDateArrived  EventKind = "date"
)

// TransitionEvent is an old -> new change on one record, or a synthesized
// "date arrived" event from the scheduler.
type TransitionEvent struct {
	RecordID   string    `json:"record_id"`
	Kind       EventKind `json:"kind"`
	Field      string    `json:"field"`
	OldValue   string    `json:"old_value"`
	NewValue   string    `json:"new_value"`
	OccurredAt time.Time `json:"occurred_at"`

	// Date events only: the date field's stored value and the business day
	// the sweep ran for.
	MatchedDate string `json:"matched_date,omitempty"`
	AsOf        string `json:"as_of,omitempty"`
}

// FieldTransition builds a field mutation event.
func FieldTransition(recordID, field, oldValue, newValue string, at time.Time) TransitionEvent {
	return TransitionEvent{RecordID: recordID, Kind: EventFieldChanged, Field: field, OldValue: oldValue, NewValue: newValue, OccurredAt: at}
}

// StageTransition builds a stage change event.
func StageTransition(recordID, oldStage, newStage string, at time.Time) TransitionEvent {
	return TransitionEvent{RecordID: recordID, Kind: EventStageChanged, Field: StageMarker, OldValue: oldStage, NewValue: newStage, OccurredAt: at}
}

// DateArrived builds a scheduler event for a record whose dateField holds
// matchedDate, evaluated on business day asOf.
func DateArrived(recordID, dateField string, matchedDate, asOf time.Time) TransitionEvent {
	return TransitionEvent{
		RecordID:    recordID,
		Kind:        EventDateArrived,
		Field:       dateField,
		MatchedDate: matchedDate.Format(DateLayout),
		AsOf:        asOf.Format(DateLayout),
		OccurredAt:  asOf,
	}
}

// Identity returns the transition part of the dedupe key: (field, newValue)
// for field/stage events and (dateField, matchedDate) for date events.
func (e TransitionEvent) Identity() (string, string) {
	if e.Kind == EventDateArrived {
		return e.Field, e.MatchedDate
	}
	return e.Field, e.NewValue
}

// Validate rejects events that cannot be matched.
func (e TransitionEvent) Validate() error {
	if e.RecordID == "" {
		return fmt.Errorf("event: record_id is required")
	}
	switch e.Kind {
	case EventFieldChanged:
		if e.Field == "" {
			return fmt.Errorf("event: field is required")
		}
	case EventStageChanged:
		if e.Field != "" && e.Field != StageMarker {
			return fmt.Errorf("event: stage events use field %q", StageMarker)
		}
	case EventDateArrived:
		if e.Field == "" {
			return fmt.Errorf("event: date field is required")
		}
		if _, err := time.Parse(DateLayout, e.MatchedDate); err != nil {
			return fmt.Errorf("event: matched_date: %w", err)
		}
		if _, err := time.Parse(DateLayout, e.AsOf); err != nil {
			return fmt.Errorf("event: as_of: %w", err)
		}
	default:
		return fmt.Errorf("event: unknown kind %q", e.Kind)
	}
	return nil
}
