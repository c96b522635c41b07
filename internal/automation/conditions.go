package automation

import (
	"strconv"
	"strings"
	"time"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// ConditionsHold reports whether every condition is satisfied by rec
// (logical AND). An empty list always holds. Without a record, only an
// empty list holds.
func ConditionsHold(conds []domain.Condition, rec *domain.Record) bool {
	if len(conds) == 0 {
		return true
	}
	if rec == nil {
		return false
	}
	for _, c := range conds {
		if !conditionHolds(c, rec) {
			return false
		}
	}
	return true
}

func conditionHolds(c domain.Condition, rec *domain.Record) bool {
	v, present := rec.Value(c.Field)
	v = strings.TrimSpace(v)

	switch c.Op {
	case domain.OpEmpty:
		return !present || v == ""
	case domain.OpNotEmpty:
		return present && v != ""
	case domain.OpEquals:
		return strings.EqualFold(v, c.Value)
	case domain.OpNotEquals:
		return !strings.EqualFold(v, c.Value)
	case domain.OpContains:
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	case domain.OpIn:
		return containsFold(c.Values, v)
	case domain.OpNotIn:
		return !containsFold(c.Values, v)
	case domain.OpGT, domain.OpGTE, domain.OpLT, domain.OpLTE:
		if !present || v == "" {
			return false
		}
		cmp, ok := compare(v, c.Value)
		if !ok {
			return false
		}
		switch c.Op {
		case domain.OpGT:
			return cmp > 0
		case domain.OpGTE:
			return cmp >= 0
		case domain.OpLT:
			return cmp < 0
		default:
			return cmp <= 0
		}
	}
	return false
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(strings.TrimSpace(s), v) {
			return true
		}
	}
	return false
}

// compare orders a and b numerically, then as calendar dates, then as
// strings. ok is false only when the two sides are of mixed types.
func compare(a, b string) (int, bool) {
	af, aErr := strconv.ParseFloat(strings.ReplaceAll(a, ",", ""), 64)
	bf, bErr := strconv.ParseFloat(strings.ReplaceAll(b, ",", ""), 64)
	if aErr == nil && bErr == nil {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	if aErr == nil || bErr == nil {
		return 0, false
	}

	ad, aErr := time.Parse(domain.DateLayout, NormalizeDate(a))
	bd, bErr := time.Parse(domain.DateLayout, NormalizeDate(b))
	if aErr == nil && bErr == nil {
		return ad.Compare(bd), true
	}
	if aErr == nil || bErr == nil {
		return 0, false
	}
	return strings.Compare(a, b), true
}
