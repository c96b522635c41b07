// Package mailing renders automation templates using the Liquid template
// language. Unresolved merge tags render as empty strings.
package mailing

import (
	"crypto/md5"
	"fmt"
	"html"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/pipeline-automation/internal/domain"
)

// TemplateService handles Liquid template rendering with caching
type TemplateService struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
	loc    *time.Location
	now    func() time.Time
}

// NewTemplateService creates a new template service with custom filters.
// loc controls the "today" merge tag; nil means UTC.
func NewTemplateService(loc *time.Location) *TemplateService {
	if loc == nil {
		loc = time.UTC
	}
	ts := &TemplateService{
		engine: liquid.NewEngine(),
		loc:    loc,
		now:    time.Now,
	}
	ts.registerCustomFilters()
	return ts
}

// SetClock overrides the time source (tests).
func (ts *TemplateService) SetClock(now func() time.Time) {
	ts.now = now
}

// registerCustomFilters adds domain-specific Liquid filters
func (ts *TemplateService) registerCustomFilters() {
	// Default value filter: {{ borrower_first_name | default: "there" }}
	ts.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	ts.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	ts.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})

	ts.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// Currency formatting: {{ loan_amount | currency }} -> $450,000.00
	ts.engine.RegisterFilter("currency", func(value interface{}) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		neg := f < 0
		if neg {
			f = -f
		}
		whole := int64(f)
		cents := int64((f-float64(whole))*100 + 0.5)
		if cents == 100 {
			whole++
			cents = 0
		}
		out := fmt.Sprintf("$%s.%02d", delimit(whole), cents)
		if neg {
			return "-" + out
		}
		return out
	})

	// Number with commas: {{ loan_amount | number_with_delimiter }}
	ts.engine.RegisterFilter("number_with_delimiter", func(value interface{}) string {
		f, ok := toFloat(value)
		if !ok {
			return fmt.Sprintf("%v", value)
		}
		n := int64(f)
		if n < 0 {
			return "-" + delimit(-n)
		}
		return delimit(n)
	})

	// Date from a stored YYYY-MM-DD value: {{ close_date | us_date }} -> 03/14/2026
	ts.engine.RegisterFilter("us_date", func(value interface{}) string {
		s := fmt.Sprintf("%v", value)
		if value == nil || s == "" {
			return ""
		}
		if len(s) > len(domain.DateLayout) {
			s = s[:len(domain.DateLayout)]
		}
		t, err := time.Parse(domain.DateLayout, s)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return t.Format("01/02/2006")
	})
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(v), "$"), ",", ""), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
	return 0, false
}

func delimit(n int64) string {
	str := strconv.FormatInt(n, 10)
	var result strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// Parse compiles a template string and returns any syntax errors
func (ts *TemplateService) Parse(templateStr string) error {
	_, err := ts.engine.ParseString(templateStr)
	return err
}

// Render processes a template with the given context.
// Uses caching for repeated renders of the same template.
func (ts *TemplateService) Render(cacheKey string, templateStr string, ctx map[string]interface{}) (string, error) {
	if cacheKey != "" {
		if cached, ok := ts.cache.Load(cacheKey); ok {
			return cached.(*liquid.Template).RenderString(ctx)
		}
	}

	tpl, err := ts.engine.ParseString(templateStr)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	if cacheKey != "" {
		ts.cache.Store(cacheKey, tpl)
	}

	out, err := tpl.RenderString(ctx)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// RenderMessage renders a template's subject and body against a record and
// its related contacts.
func (ts *TemplateService) RenderMessage(tpl *domain.Template, rec *domain.Record, related domain.Related) (string, string, error) {
	if tpl == nil {
		return "", "", fmt.Errorf("nil template")
	}
	ctx := BuildMergeContext(rec, related, ts.now().In(ts.loc))

	subject, err := ts.Render(cacheKey(tpl.ID, "subject", tpl.Subject), tpl.Subject, ctx)
	if err != nil {
		return "", "", fmt.Errorf("subject: %w", err)
	}
	body, err := ts.Render(cacheKey(tpl.ID, "body", tpl.Body), tpl.Body, ctx)
	if err != nil {
		return "", "", fmt.Errorf("body: %w", err)
	}
	return strings.TrimSpace(subject), body, nil
}

// ClearCache removes all cached templates
func (ts *TemplateService) ClearCache() {
	ts.cache.Range(func(k, _ interface{}) bool {
		ts.cache.Delete(k)
		return true
	})
}

// cacheKey includes a content digest so an edited template never renders
// from a stale parse.
func cacheKey(id, part, source string) string {
	if id == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%x", id, part, md5.Sum([]byte(source)))
}
