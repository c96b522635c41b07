package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

// ChangePublisher receives committed record changes.
type ChangePublisher interface {
	RecordChanged(ctx context.Context, before, after *domain.Record) int
}

// TransitionChannel is the channel notify_record_transition() publishes on
// (migrations/001_automation.sql). Changing it means changing both.
const TransitionChannel = "record_transitions"

// TransitionListener consumes pg_notify payloads emitted by the
// loan_records trigger and forwards them as before/after pairs.
type TransitionListener struct {
	dsn       string
	publisher ChangePublisher
}

// NewTransitionListener creates a listener on TransitionChannel.
func NewTransitionListener(dsn string, publisher ChangePublisher) *TransitionListener {
	return &TransitionListener{dsn: dsn, publisher: publisher}
}

// Run blocks until ctx is cancelled. Reconnects are handled by pq.
func (l *TransitionListener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, 5*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("record listener event", "event", int(ev), "error", err)
		}
	})
	defer listener.Close()

	if err := listener.Listen(TransitionChannel); err != nil {
		return fmt.Errorf("listen %s: %w", TransitionChannel, err)
	}
	logger.Info("record listener started", "channel", TransitionChannel)

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect. Changes committed while
			// disconnected are not replayed.
			if n == nil {
				logger.Warn("record listener reconnected", "channel", TransitionChannel)
				continue
			}
			l.handle(ctx, n.Extra)
		case <-time.After(90 * time.Second):
			go listener.Ping()
		}
	}
}

func (l *TransitionListener) handle(ctx context.Context, payload string) {
	before, after, err := parseNotification(payload)
	if err != nil {
		logger.Error("bad record notification", "error", err)
		return
	}
	l.publisher.RecordChanged(ctx, before, after)
}

type notifiedRecord struct {
	ID      string          `json:"id"`
	StageID string          `json:"stage_id"`
	Fields  json.RawMessage `json:"fields"`
}

func (n notifiedRecord) record() (*domain.Record, error) {
	fields, err := decodeFields(n.Fields)
	if err != nil {
		return nil, err
	}
	return &domain.Record{ID: n.ID, StageID: n.StageID, Fields: fields}, nil
}

func parseNotification(payload string) (*domain.Record, *domain.Record, error) {
	var msg struct {
		Before notifiedRecord `json:"before"`
		After  notifiedRecord `json:"after"`
	}
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		return nil, nil, fmt.Errorf("decode notification: %w", err)
	}
	if msg.After.ID == "" {
		return nil, nil, fmt.Errorf("notification without record id")
	}
	before, err := msg.Before.record()
	if err != nil {
		return nil, nil, fmt.Errorf("before fields: %w", err)
	}
	after, err := msg.After.record()
	if err != nil {
		return nil, nil, fmt.Errorf("after fields: %w", err)
	}
	return before, after, nil
}
