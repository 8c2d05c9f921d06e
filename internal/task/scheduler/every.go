package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// everySchedule fires one period after t. Unlike cron.Every it keeps
// sub-second periods intact.
type everySchedule struct {
	period time.Duration
}

var _ cron.Schedule = everySchedule{}

func (s everySchedule) Next(t time.Time) time.Time {
	return t.Add(s.period)
}
