package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
	"github.com/ignite/pipeline-automation/internal/pkg/logger"
)

// SweepReport summarizes one date-trigger sweep.
type SweepReport struct {
	Date       string `json:"date"`
	Rules      int    `json:"rules"`
	Candidates int    `json:"candidates"`
	Sent       int    `json:"sent"`
	Failed     int    `json:"failed"`
	Duplicates int    `json:"duplicates"`
	Errors     int    `json:"errors"`
}

// BusinessDay truncates t to midnight of its calendar day in loc.
func BusinessDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

type dateTarget struct {
	field string
	date  string
}

// SweepDateTriggers synthesizes DateArrived events for every record whose
// date field plus a DateOffset rule's offset equals asOf's business day,
// and runs them through the coordinator.
//
// A sweep holds no locks. Re-running it for the same day (after a crash or
// an overlap) is harmless: the ledger claim absorbs repeats.
func (e *Engine) SweepDateTriggers(ctx context.Context, asOf time.Time) (*SweepReport, error) {
	day := BusinessDay(asOf, e.opts.Location)
	report := &SweepReport{Date: day.Format(domain.DateLayout)}

	rules, err := e.deps.Rules.ListActiveRules(ctx)
	if err != nil {
		return report, fmt.Errorf("list active rules: %w", err)
	}

	var targets []dateTarget
	seenTarget := make(map[dateTarget]bool)
	for _, r := range rules {
		t, ok := r.Trigger.(domain.DateOffset)
		if !ok || !r.IsActive {
			continue
		}
		report.Rules++
		// record[dateField] + offset == today  =>  record[dateField] == today - offset
		dt := dateTarget{field: t.DateField, date: day.AddDate(0, 0, -t.DaysOffset).Format(domain.DateLayout)}
		if !seenTarget[dt] {
			seenTarget[dt] = true
			targets = append(targets, dt)
		}
	}
	if len(targets) == 0 {
		return report, nil
	}

	settings, err := e.deps.Settings.TestModeSettings(ctx)
	if err != nil {
		return report, fmt.Errorf("read test mode settings: %w", err)
	}

	for _, dt := range targets {
		stored, _ := time.ParseInLocation(domain.DateLayout, dt.date, e.opts.Location)
		records, err := e.deps.Records.ListByDate(ctx, dt.field, stored)
		if err != nil {
			return report, fmt.Errorf("scan %s = %s: %w", dt.field, dt.date, err)
		}
		for i := range records {
			if err := ctx.Err(); err != nil {
				logger.Warn("date sweep interrupted", "date", report.Date, "field", dt.field)
				return report, err
			}
			rec := &records[i]
			report.Candidates++
			ev := domain.DateArrived(rec.ID, dt.field, stored, day)
			outcomes, err := e.evaluate(ctx, ev, MatchTransition(ev, rules), rec, settings)
			if err != nil {
				report.Errors++
				logger.Error("date sweep evaluation failed", "record_id", rec.ID, "field", dt.field, "error", err)
			}
			for _, o := range outcomes {
				switch o.Status {
				case domain.OutcomeSent:
					report.Sent++
				case domain.OutcomeFailed:
					report.Failed++
				case domain.OutcomeDuplicate:
					report.Duplicates++
				}
			}
		}
	}

	logger.Info("date sweep complete", "date", report.Date, "rules", report.Rules,
		"candidates", report.Candidates, "sent", report.Sent, "failed", report.Failed, "duplicates", report.Duplicates)
	return report, nil
}
