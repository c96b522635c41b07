package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// TriggerKind is the persisted discriminator of a rule's trigger.
type TriggerKind string

const (
	TriggerStageChanged TriggerKind = "stage_changed"
	TriggerFieldChanged TriggerKind = "field_changed"
	TriggerDateOffset   TriggerKind = "date_offset"
)

// ErrInvalidTrigger is returned when a trigger_type/trigger_config pair does
// not describe a valid trigger.
var ErrInvalidTrigger = errors.New("invalid trigger")

// Trigger is the condition a rule watches for. Exactly one of StageChanged,
// FieldChanged or DateOffset.
type Trigger interface {
	Kind() TriggerKind
}

// StageChanged fires when a record enters TargetStageID.
type StageChanged struct {
	TargetStageID string `json:"target_stage_id"`
}

// FieldChanged fires when Field transitions to TargetValue.
type FieldChanged struct {
	Field       string `json:"field"`
	TargetValue string `json:"target_value"`
}

// DateOffset fires on the day DateField + DaysOffset arrives. A negative
// offset means "days before" the date.
type DateOffset struct {
	DateField  string `json:"date_field"`
	DaysOffset int    `json:"days_offset"`
}

func (StageChanged) Kind() TriggerKind { return TriggerStageChanged }
func (FieldChanged) Kind() TriggerKind { return TriggerFieldChanged }
func (DateOffset) Kind() TriggerKind   { return TriggerDateOffset }

// ParseTrigger converts the loosely-typed admin payload into a Trigger.
// Unknown kinds and payloads missing required keys are rejected. Scalar
// target values may arrive as JSON strings, numbers or booleans.
func ParseTrigger(kind string, config []byte) (Trigger, error) {
	var raw map[string]json.RawMessage
	if len(bytes.TrimSpace(config)) > 0 {
		if err := json.Unmarshal(config, &raw); err != nil {
			return nil, fmt.Errorf("%w: %s config: %v", ErrInvalidTrigger, kind, err)
		}
	}

	switch TriggerKind(kind) {
	case TriggerStageChanged:
		stage, err := requiredScalar(raw, "target_stage_id")
		if err != nil {
			return nil, fmt.Errorf("%w: stage_changed: %v", ErrInvalidTrigger, err)
		}
		return StageChanged{TargetStageID: stage}, nil

	case TriggerFieldChanged:
		field, err := requiredScalar(raw, "field")
		if err != nil {
			return nil, fmt.Errorf("%w: field_changed: %v", ErrInvalidTrigger, err)
		}
		target, ok, err := scalar(raw, "target_value")
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: field_changed: target_value is required", ErrInvalidTrigger)
		}
		return FieldChanged{Field: field, TargetValue: target}, nil

	case TriggerDateOffset:
		field, err := requiredScalar(raw, "date_field")
		if err != nil {
			return nil, fmt.Errorf("%w: date_offset: %v", ErrInvalidTrigger, err)
		}
		offset, ok, err := scalar(raw, "days_offset")
		if err != nil || !ok {
			return nil, fmt.Errorf("%w: date_offset: days_offset is required", ErrInvalidTrigger)
		}
		days, err := strconv.Atoi(offset)
		if err != nil {
			return nil, fmt.Errorf("%w: date_offset: days_offset %q is not an integer", ErrInvalidTrigger, offset)
		}
		return DateOffset{DateField: field, DaysOffset: days}, nil

	default:
		return nil, fmt.Errorf("%w: unknown trigger type %q", ErrInvalidTrigger, kind)
	}
}

// MarshalTrigger is the inverse of ParseTrigger.
func MarshalTrigger(t Trigger) (TriggerKind, []byte, error) {
	if t == nil {
		return "", nil, fmt.Errorf("%w: nil trigger", ErrInvalidTrigger)
	}
	data, err := json.Marshal(t)
	if err != nil {
		return "", nil, err
	}
	return t.Kind(), data, nil
}

func requiredScalar(raw map[string]json.RawMessage, key string) (string, error) {
	v, ok, err := scalar(raw, key)
	if err != nil {
		return "", err
	}
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

// scalar reads raw[key] as a string. ok is false when the key is absent or null.
func scalar(raw map[string]json.RawMessage, key string) (string, bool, error) {
	msg, ok := raw[key]
	if !ok {
		return "", false, nil
	}
	var v interface{}
	if err := json.Unmarshal(msg, &v); err != nil {
		return "", false, err
	}
	switch x := v.(type) {
	case nil:
		return "", false, nil
	case string:
		return x, true, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true, nil
	case bool:
		return strconv.FormatBool(x), true, nil
	default:
		return "", false, fmt.Errorf("%s must be a scalar", key)
	}
}
