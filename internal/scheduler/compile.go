/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/friendsincode/airwave/internal/models"
)

// MaxTriggers bounds how many firing times one task may compile to.
const MaxTriggers = 1000

// WarningLead is how long before a time window closes the warning job fires.
const WarningLead = 7 * time.Minute

var ErrTriggerLimit = errors.New("trigger limit exceeded")

// TriggerSet is a list of wall-clock firing times repeated on a set of weekdays in one location.
type TriggerSet struct {
	Times    []models.TimeOfDay
	Weekdays models.WeekdaySet
	Location *time.Location
}

// Len returns the number of firing times per applicable day.
func (s TriggerSet) Len() int { return len(s.Times) }

func countTriggers(sets []TriggerSet) int {
	n := 0
	for _, s := range sets {
		n += s.Len()
	}
	return n
}

// stepTimes lists from, from+step, ... while not after to. It stops when the next value would
// leave the day or fail to advance, and fails as soon as budget values are reached.
func stepTimes(from, to models.TimeOfDay, step time.Duration, budget int) ([]models.TimeOfDay, error) {
	var out []models.TimeOfDay
	for t := from; !t.After(to); {
		out = append(out, t)
		if len(out) >= budget {
			return nil, fmt.Errorf("%w: reached %d firings", ErrTriggerLimit, MaxTriggers)
		}
		next, ok := t.Add(step)
		if !ok || !next.After(t) {
			break
		}
		t = next
	}
	return out, nil
}

// CompilePeriodic expands a periodic trigger into firing times. A window whose end is before
// its start crosses midnight and compiles to two sets: start through 23:59 and 00:00 through end,
// both fired on the trigger's weekdays.
func CompilePeriodic(trig models.PeriodicTrigger, loc *time.Location) ([]TriggerSet, error) {
	if trig.IntervalMinutes <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidInterval, trig.IntervalMinutes)
	}
	if loc == nil {
		loc = time.UTC
	}
	step := trig.Interval()

	if !trig.CrossesMidnight() {
		times, err := stepTimes(trig.Start, trig.End, step, MaxTriggers)
		if err != nil {
			return nil, err
		}
		return []TriggerSet{{Times: times, Weekdays: trig.Weekdays, Location: loc}}, nil
	}

	late, err := stepTimes(trig.Start, models.LastMinute, step, MaxTriggers)
	if err != nil {
		return nil, err
	}
	early, err := stepTimes(models.Midnight, trig.End, step, MaxTriggers-len(late))
	if err != nil {
		return nil, err
	}
	return []TriggerSet{
		{Times: late, Weekdays: trig.Weekdays, Location: loc},
		{Times: early, Weekdays: trig.Weekdays, Location: loc},
	}, nil
}

// WindowTriggers are the three firings compiled from a time window.
type WindowTriggers struct {
	Start   TriggerSet
	Stop    TriggerSet
	Warning *TriggerSet
}

// CompileTimeWindow compiles a window into start, stop and warning firings. The stop of a
// cross-midnight window fires on the day after each start day. The warning fires WarningLead
// before the stop and is omitted for windows shorter than that.
func CompileTimeWindow(trig models.TimeWindowTrigger, loc *time.Location) WindowTriggers {
	if loc == nil {
		loc = time.UTC
	}
	startDays := trig.Weekdays
	stopDays := startDays
	if trig.CrossesMidnight() {
		stopDays = shiftDays(startDays, 1)
	}

	wt := WindowTriggers{
		Start: TriggerSet{Times: []models.TimeOfDay{trig.Start}, Weekdays: startDays, Location: loc},
		Stop:  TriggerSet{Times: []models.TimeOfDay{trig.End}, Weekdays: stopDays, Location: loc},
	}

	length := trig.End.Minutes() - trig.Start.Minutes()
	if trig.CrossesMidnight() {
		length += 24 * 60
	}
	if time.Duration(length)*time.Minute <= WarningLead {
		return wt
	}

	warnAt, sameDay := trig.End.Add(-WarningLead)
	warnDays := stopDays
	if !sameDay {
		m := trig.End.Minutes() - int(WarningLead/time.Minute) + 24*60
		warnAt = models.TimeOfDay{Hour: m / 60, Minute: m % 60}
		warnDays = shiftDays(stopDays, -1)
	}
	wt.Warning = &TriggerSet{Times: []models.TimeOfDay{warnAt}, Weekdays: warnDays, Location: loc}
	return wt
}

// CompileOnce compiles a single daily firing at the trigger's start.
func CompileOnce(trig models.OnceTrigger, loc *time.Location) TriggerSet {
	if loc == nil {
		loc = time.UTC
	}
	return TriggerSet{Times: []models.TimeOfDay{trig.Start}, Weekdays: trig.Weekdays, Location: loc}
}

// shiftDays moves every member of set by delta days. The empty set stays empty (every day).
func shiftDays(set models.WeekdaySet, delta int) models.WeekdaySet {
	if set == 0 {
		return 0
	}
	var days []time.Weekday
	for _, d := range set.Days() {
		days = append(days, time.Weekday((int(d)+delta+7)%7))
	}
	return models.NewWeekdaySet(days...)
}

var rruleDays = [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// rules builds one recurrence per hour of the set, anchored at the start of from's day.
func (s TriggerSet) rules(from time.Time) (*rrule.Set, error) {
	loc := s.Location
	if loc == nil {
		loc = time.UTC
	}
	from = from.In(loc)
	anchor := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	byHour := make(map[int][]int)
	for _, t := range s.Times {
		byHour[t.Hour] = append(byHour[t.Hour], t.Minute)
	}
	hours := make([]int, 0, len(byHour))
	for h := range byHour {
		hours = append(hours, h)
	}
	sort.Ints(hours)

	var weekdays []rrule.Weekday
	if s.Weekdays != 0 {
		for _, d := range s.Weekdays.Days() {
			weekdays = append(weekdays, rruleDays[d])
		}
	}

	set := &rrule.Set{}
	for _, h := range hours {
		r, err := rrule.NewRRule(rrule.ROption{
			Freq:      rrule.DAILY,
			Dtstart:   anchor,
			Byweekday: weekdays,
			Byhour:    []int{h},
			Byminute:  byHour[h],
			Bysecond:  []int{0},
		})
		if err != nil {
			return nil, fmt.Errorf("build recurrence for hour %d: %w", h, err)
		}
		set.RRule(r)
	}
	return set, nil
}

// Next returns the first firing strictly after t.
func (s TriggerSet) Next(t time.Time) (time.Time, bool) {
	if len(s.Times) == 0 {
		return time.Time{}, false
	}
	set, err := s.rules(t)
	if err != nil {
		return time.Time{}, false
	}
	next := set.After(t, false)
	return next, !next.IsZero()
}

// Between returns every firing in [from, to).
func (s TriggerSet) Between(from, to time.Time) []time.Time {
	if len(s.Times) == 0 || !to.After(from) {
		return nil
	}
	set, err := s.rules(from)
	if err != nil {
		return nil
	}
	out := set.Between(from, to, true)
	if n := len(out); n > 0 && !out[n-1].Before(to) {
		out = out[:n-1]
	}
	return out
}

// NextOf returns the earliest firing after t across sets.
func NextOf(sets []TriggerSet, t time.Time) (time.Time, bool) {
	var best time.Time
	for _, s := range sets {
		if next, ok := s.Next(t); ok && (best.IsZero() || next.Before(best)) {
			best = next
		}
	}
	return best, !best.IsZero()
}
