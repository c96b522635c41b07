package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/migrations"
)

type capturePublisher struct {
	before, after *domain.Record
	calls         int
}

func (c *capturePublisher) RecordChanged(_ context.Context, before, after *domain.Record) int {
	c.before, c.after = before, after
	c.calls++
	return 1
}

func TestParseNotification(t *testing.T) {
	payload := `{"before":{"id":"r1","stage_id":"uw","fields":{"loan_status":"Processing","loan_amount":300000}},
		"after":{"id":"r1","stage_id":"ctc","fields":{"loan_status":"Clear to Close","loan_amount":300000}}}`

	before, after, err := parseNotification(payload)
	require.NoError(t, err)
	assert.Equal(t, "uw", before.StageID)
	assert.Equal(t, "ctc", after.StageID)
	assert.Equal(t, "Clear to Close", after.Fields["loan_status"])
	assert.Equal(t, "300000", after.Fields["loan_amount"])
}

func TestParseNotificationRejectsGarbage(t *testing.T) {
	_, _, err := parseNotification(`not json`)
	assert.Error(t, err)

	_, _, err = parseNotification(`{"before":{},"after":{}}`)
	assert.Error(t, err)
}

func TestListenerHandleForwards(t *testing.T) {
	pub := &capturePublisher{}
	l := NewTransitionListener("", pub)

	l.handle(context.Background(), `{"before":{"id":"r1","stage_id":"a","fields":{}},"after":{"id":"r1","stage_id":"b","fields":{}}}`)
	assert.Equal(t, 1, pub.calls)
	assert.Equal(t, "b", pub.after.StageID)

	l.handle(context.Background(), `{`)
	assert.Equal(t, 1, pub.calls)
}

func TestParseNotificationChangedKeysOnly(t *testing.T) {
	// The trigger sends only keys whose values differ; added keys carry
	// null on the before side.
	payload := `{"before":{"id":"r1","stage_id":"uw","fields":{"loan_status":"Processing","appraisal_date":null}},
		"after":{"id":"r1","stage_id":"uw","fields":{"loan_status":"Clear to Close","appraisal_date":"2026-03-02"}}}`

	before, after, err := parseNotification(payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"loan_status": "Processing", "appraisal_date": ""}, before.Fields)
	assert.Equal(t, map[string]string{"loan_status": "Clear to Close", "appraisal_date": "2026-03-02"}, after.Fields)

	before, after, err = parseNotification(`{"before":{"id":"r1","stage_id":"uw","fields":{}},"after":{"id":"r1","stage_id":"ctc","fields":{}}}`)
	require.NoError(t, err)
	assert.Equal(t, "uw", before.StageID)
	assert.Equal(t, "ctc", after.StageID)
	assert.Empty(t, after.Fields)
}

func TestTransitionChannelMatchesTrigger(t *testing.T) {
	data, err := migrations.FS.ReadFile("001_automation.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "pg_notify('"+TransitionChannel+"'")
}
