package queue

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule computes when a periodic task should next run.
type Schedule interface {
	// Next returns the first activation time after the given time.
	Next(after time.Time) time.Time
	// String returns a human-readable description for logs.
	String() string
}

// Every returns a fixed-interval schedule. Intervals below one second are
// rounded up to one second to keep the scheduler check loop meaningful.
func Every(interval time.Duration) Schedule {
	if interval < time.Second {
		interval = time.Second
	}
	return intervalSchedule{interval: interval}
}

type intervalSchedule struct {
	interval time.Duration
}

func (s intervalSchedule) Next(after time.Time) time.Time {
	return after.Add(s.interval)
}

func (s intervalSchedule) String() string {
	return fmt.Sprintf("every %s", s.interval)
}

// DailyAt returns a schedule that activates once per day at the given
// hour and minute in the local time zone.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour, minute: minute}
}

type dailySchedule struct {
	hour   int
	minute int
}

func (s dailySchedule) Next(after time.Time) time.Time {
	next := time.Date(after.Year(), after.Month(), after.Day(), s.hour, s.minute, 0, 0, after.Location())
	if !next.After(after) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string {
	return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute)
}

// Cron parses a standard five-field cron expression (minute, hour, day of
// month, month, day of week) into a Schedule. Descriptors like "@hourly"
// are also accepted.
func Cron(expr string) (Schedule, error) {
	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, expr, err)
	}
	return cronSchedule{expr: expr, schedule: parsed}, nil
}

// MustCron is like Cron but panics on parse errors. Intended for schedules
// defined as package-level constants.
func MustCron(expr string) Schedule {
	s, err := Cron(expr)
	if err != nil {
		panic(err)
	}
	return s
}

type cronSchedule struct {
	expr     string
	schedule cron.Schedule
}

func (s cronSchedule) Next(after time.Time) time.Time {
	return s.schedule.Next(after)
}

func (s cronSchedule) String() string {
	return fmt.Sprintf("cron %q", s.expr)
}
