package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/pipeline-automation/internal/automation"
	"github.com/ignite/pipeline-automation/internal/domain"
)

var (
	_ automation.RecordStore   = (*Store)(nil)
	_ automation.RuleStore     = (*Store)(nil)
	_ automation.TemplateStore = (*Store)(nil)
	_ automation.SettingsStore = (*Store)(nil)
	_ automation.Ledger        = (*Store)(nil)
)

func TestListByDateNormalizes(t *testing.T) {
	s := NewStore()
	s.PutRecord(domain.Record{ID: "r1", Fields: map[string]string{"close_date": "2026-03-14"}})
	s.PutRecord(domain.Record{ID: "r2", Fields: map[string]string{"close_date": "2026-03-14T17:00:00Z"}})
	s.PutRecord(domain.Record{ID: "r3", Fields: map[string]string{"close_date": "2026-03-15"}})

	recs, err := s.ListByDate(context.Background(), "close_date", time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r1", recs[0].ID)
	assert.Equal(t, "r2", recs[1].ID)
}

func TestClaimOnce(t *testing.T) {
	s := NewStore()
	ok, _ := s.Claim(context.Background(), "k")
	assert.True(t, ok)
	ok, _ = s.Claim(context.Background(), "k")
	assert.False(t, ok)
}

func TestQueryOrderAndPaging(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append(context.Background(), &domain.ExecutionRecord{
			ID: string(rune('a' + i)), AutomationID: "a1", ExecutedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.Append(context.Background(), &domain.ExecutionRecord{ID: "x", AutomationID: "other", ExecutedAt: base}))

	page, err := s.Query(context.Background(), "a1", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "d", page[0].ID)
	assert.Equal(t, "c", page[1].ID)

	empty, err := s.Query(context.Background(), "a1", 10, 50)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateRecordSnapshots(t *testing.T) {
	s := NewStore()
	s.PutRecord(domain.Record{ID: "r1", StageID: "uw", Fields: map[string]string{"loan_status": "Processing"}})

	before, after, err := s.UpdateRecord("r1", func(r *domain.Record) {
		r.Fields["loan_status"] = "Clear to Close"
	})
	require.NoError(t, err)
	assert.Equal(t, "Processing", before.Fields["loan_status"])
	assert.Equal(t, "Clear to Close", after.Fields["loan_status"])

	_, _, err = s.UpdateRecord("missing", func(*domain.Record) {})
	assert.ErrorIs(t, err, automation.ErrRecordNotFound)
}

func TestRandomRecordEmpty(t *testing.T) {
	_, err := NewStore().RandomRecord(context.Background())
	assert.ErrorIs(t, err, automation.ErrRecordNotFound)
}

func TestRandomRecordCoversAll(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"loan-a", "loan-b", "loan-c"} {
		s.PutRecord(domain.Record{ID: id, StageID: "processing"})
	}

	seen := map[string]int{}
	for i := 0; i < 300; i++ {
		rec, err := s.RandomRecord(context.Background())
		require.NoError(t, err)
		seen[rec.ID]++
	}
	assert.Len(t, seen, 3)
	for id, n := range seen {
		assert.Greater(t, n, 0, id)
	}
}
