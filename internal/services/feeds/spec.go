package feeds

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// refreshSpec is a parsed refresh schedule for one feed: either a fixed
// interval or a cron expression.
type refreshSpec struct {
	every time.Duration
	cron  cron.Schedule
}

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// parseRefreshSpec accepts either a Go duration ("15m", "1h30m") or a
// five-field cron expression ("*/10 * * * *", "@hourly").
func parseRefreshSpec(raw string) (refreshSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return refreshSpec{}, fmt.Errorf("refresh spec required")
	}

	if strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@") {
		sched, err := cronParser.Parse(s)
		if err != nil {
			return refreshSpec{}, fmt.Errorf("invalid cron spec %q: %w", raw, err)
		}
		return refreshSpec{cron: sched}, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return refreshSpec{}, fmt.Errorf("invalid refresh spec %q (use a duration like '15m' or cron like '*/10 * * * *')", raw)
	}
	if d <= 0 {
		return refreshSpec{}, fmt.Errorf("refresh interval must be > 0, got %q", raw)
	}
	return refreshSpec{every: d}, nil
}

// ValidateSpec reports whether raw is a well-formed refresh spec. Used by
// config validation so a bad hot-reload is rejected before commit.
func ValidateSpec(raw string) error {
	_, err := parseRefreshSpec(raw)
	return err
}

// next returns the next due time strictly after from.
func (r refreshSpec) next(from time.Time) time.Time {
	if r.cron != nil {
		return r.cron.Next(from)
	}
	return from.Add(r.every)
}
