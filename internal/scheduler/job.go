package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/crmsync/internal/reconciliation/domain"
)

var (
	ErrInvalidConfig    = errors.New("invalid_scheduler_config")
	ErrInvalidTimeOfDay = errors.New("invalid_time_of_day")
	ErrDuplicateJob     = errors.New("duplicate_job")
	ErrAlreadyStarted   = errors.New("scheduler_already_started")
)

// JobFunc runs one pass of a job and reports what it did.
type JobFunc func(ctx context.Context) (domain.SyncRunResult, error)

// Job is one registry entry. Ticks land on Anchor (offset from UTC midnight)
// plus whole multiples of Interval.
type Job struct {
	Name     string
	Interval time.Duration
	Anchor   time.Duration
	Run      JobFunc
}

// NextRun returns the first tick strictly after now.
func (j Job) NextRun(now time.Time) time.Time {
	now = now.UTC()
	base := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(j.Anchor)
	elapsed := now.Sub(base)
	steps := elapsed / j.Interval
	if elapsed < 0 && elapsed%j.Interval != 0 {
		steps--
	}
	return base.Add((steps + 1) * j.Interval)
}
