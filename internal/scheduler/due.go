package scheduler

import (
	"time"

	"github.com/friendsincode/airwave/internal/models"
)

// IsDue reports whether task should fire at now, read as wall-clock time in now's location.
//
// Time windows are checked as same-day ranges only: a window whose end is before its start
// is never due. Periodic triggers follow the same two-half rule as CompilePeriodic, so IsDue
// agrees with the compiled firing times.
func IsDue(task models.ScheduledTask, now time.Time) bool {
	tod := models.TimeOfDayOf(now)
	day := now.Weekday()

	switch trig := task.Trigger.(type) {
	case models.OnceTrigger:
		return trig.Weekdays.Contains(day) && tod == trig.Start

	case models.TimeWindowTrigger:
		return trig.Weekdays.Contains(day) && !tod.Before(trig.Start) && !tod.After(trig.End)

	case models.PeriodicTrigger:
		if trig.IntervalMinutes <= 0 || !trig.Weekdays.Contains(day) {
			return false
		}
		if !trig.CrossesMidnight() {
			if tod.Before(trig.Start) || tod.After(trig.End) {
				return false
			}
			return (tod.Minutes()-trig.Start.Minutes())%trig.IntervalMinutes == 0
		}
		if !tod.Before(trig.Start) {
			return (tod.Minutes()-trig.Start.Minutes())%trig.IntervalMinutes == 0
		}
		if !tod.After(trig.End) {
			return tod.Minutes()%trig.IntervalMinutes == 0
		}
		return false
	}
	return false
}

// WindowActive reports whether now falls inside the task's window, the test used to recover
// a window that opened before the task was scheduled. Unlike IsDue it follows windows across
// midnight; the part after midnight belongs to the previous day's weekday. ONCE tasks are
// active for their duration.
func WindowActive(task models.ScheduledTask, now time.Time) bool {
	tod := models.TimeOfDayOf(now)
	today := now.Weekday()
	yesterday := now.AddDate(0, 0, -1).Weekday()

	inWindow := func(start, end models.TimeOfDay, days models.WeekdaySet) bool {
		if !end.Before(start) {
			return days.Contains(today) && !tod.Before(start) && !tod.After(end)
		}
		if !tod.Before(start) {
			return days.Contains(today)
		}
		return !tod.After(end) && days.Contains(yesterday)
	}

	switch trig := task.Trigger.(type) {
	case models.TimeWindowTrigger:
		return inWindow(trig.Start, trig.End, trig.Weekdays)
	case models.PeriodicTrigger:
		return inWindow(trig.Start, trig.End, trig.Weekdays)
	case models.OnceTrigger:
		if trig.Duration <= 0 {
			return false
		}
		start := trig.Start.On(now, now.Location())
		if now.Before(start) {
			start = start.AddDate(0, 0, -1)
		}
		return trig.Weekdays.Contains(start.Weekday()) && now.Before(start.Add(trig.Duration))
	}
	return false
}
