package cron

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/artpar/flowgate/domain/flow"
	"github.com/gorhill/cronexpr"
)

// Expression returns the cron expression configured by a flow's settings.
// CRON_EXPRESSION wins; otherwise all five field settings must be present.
func Expression(s flow.Settings) (string, bool) {
	if expr := strings.TrimSpace(s.String(SettingExpression)); expr != "" {
		return expr, true
	}

	fields := make([]string, 0, len(fieldSettings))
	for _, fs := range fieldSettings {
		v, ok := fieldValue(s[fs.setting], fs.field)
		if !ok {
			return "", false
		}
		fields = append(fields, v)
	}
	return strings.Join(fields, " "), true
}

func fieldValue(v any, field string) (string, bool) {
	switch val := v.(type) {
	case string:
		val = strings.TrimSpace(val)
		return val, val != ""
	case float64:
		if val != float64(int64(val)) {
			return "", false
		}
		return strconv.FormatInt(int64(val), 10), true
	case int:
		return strconv.Itoa(val), true
	case map[string]any:
		return fieldValue(val[field], field)
	}
	return "", false
}

// ExpressionCache caches parsed cron expressions. Expressions that fail to
// parse are cached as nil.
type ExpressionCache struct {
	m sync.Map // string -> *cronexpr.Expression
}

// Get returns the parsed expression, or nil when it is invalid.
func (c *ExpressionCache) Get(expr string) *cronexpr.Expression {
	if v, ok := c.m.Load(expr); ok {
		return v.(*cronexpr.Expression)
	}
	parsed, err := cronexpr.Parse(expr)
	if err != nil {
		parsed = nil
	}
	c.m.Store(expr, parsed)
	return parsed
}

// Due reports whether expr schedules the minute containing at.
func (c *ExpressionCache) Due(expr string, at time.Time) bool {
	parsed := c.Get(expr)
	if parsed == nil {
		return false
	}
	minute := at.Truncate(time.Minute)
	return parsed.Next(minute.Add(-time.Second)).Equal(minute)
}
