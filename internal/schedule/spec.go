package schedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/hivebot/hivebot/internal/store"
)

// Accepted layouts for "once" schedule values, tried in order. Layouts
// without a zone are interpreted in the scheduler's configured timezone.
var onceLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// ValidateSpec checks a scheduleType/scheduleValue pair. Invalid specs are
// rejected before any record is persisted.
func ValidateSpec(scheduleType, value string, loc *time.Location) error {
	_, err := firstRun(scheduleType, value, time.Now(), loc)
	return err
}

// firstRun computes the initial NextRun for a new task: cron → next
// occurrence strictly after now, interval → now + period, once → the
// literal timestamp (which may be in the past, firing on the next tick).
func firstRun(scheduleType, value string, now time.Time, loc *time.Location) (time.Time, error) {
	switch scheduleType {
	case store.ScheduleCron:
		expr, err := ParseCron(value)
		if err != nil {
			return time.Time{}, err
		}
		next := expr.Next(now.In(loc))
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("cron %q has no future occurrence", value)
		}
		return next, nil

	case store.ScheduleInterval:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil || ms <= 0 {
			return time.Time{}, fmt.Errorf("interval must be a positive integer of milliseconds, got %q", value)
		}
		return now.Add(time.Duration(ms) * time.Millisecond), nil

	case store.ScheduleOnce:
		for _, layout := range onceLayouts {
			if t, err := time.ParseInLocation(layout, value, loc); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("once value %q is not a recognized timestamp", value)

	default:
		return time.Time{}, fmt.Errorf("unknown schedule type %q", scheduleType)
	}
}

// nextAfterFire recomputes NextRun after a task fires. Recurrence is
// anchored at the actual fire time, not the missed slot, so downtime never
// produces a burst of catch-up runs. Once tasks return nil: they complete.
func nextAfterFire(t *store.ScheduledTask, now time.Time, loc *time.Location) (*time.Time, error) {
	switch t.ScheduleType {
	case store.ScheduleOnce:
		return nil, nil
	case store.ScheduleCron, store.ScheduleInterval:
		next, err := firstRun(t.ScheduleType, t.ScheduleValue, now, loc)
		if err != nil {
			return nil, err
		}
		return &next, nil
	default:
		return nil, fmt.Errorf("unknown schedule type %q", t.ScheduleType)
	}
}
