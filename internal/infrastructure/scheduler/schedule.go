package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorhill/cronexpr"
)

// CronSchedule runs a job on a cron expression. Five to seven fields and the
// @hourly/@daily style shorthands are accepted.
type CronSchedule struct {
	raw  string
	expr *cronexpr.Expression
}

// ParseCron parses a cron expression.
func ParseCron(spec string) (*CronSchedule, error) {
	spec = strings.TrimSpace(spec)
	expr, err := cronexpr.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, spec, err)
	}
	return &CronSchedule{raw: spec, expr: expr}, nil
}

// Next returns the first matching time after t.
func (s *CronSchedule) Next(t time.Time) time.Time {
	return s.expr.Next(t)
}

func (s *CronSchedule) String() string {
	return s.raw
}

// ParseSchedule accepts either "@every <duration>" or a cron expression.
func ParseSchedule(spec string) (Schedule, error) {
	spec = strings.TrimSpace(spec)
	if rest, ok := strings.CutPrefix(spec, "@every "); ok {
		d, err := time.ParseDuration(strings.TrimSpace(rest))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSchedule, spec)
		}
		return NewIntervalSchedule(d), nil
	}
	return ParseCron(spec)
}
