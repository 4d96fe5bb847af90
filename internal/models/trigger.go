/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingTrigger  = errors.New("scheduled task has no trigger")
	ErrTriggerMismatch = errors.New("trigger payload does not match trigger kind")
	ErrInvalidInterval = errors.New("periodic interval must be positive")
	ErrInvalidTime     = errors.New("invalid time of day")
	ErrInvalidWeekday  = errors.New("invalid weekday")
)

// TriggerKind tags which trigger payload a task carries.
type TriggerKind string

const (
	TriggerOnce       TriggerKind = "ONCE"
	TriggerTimeWindow TriggerKind = "TIME_WINDOW"
	TriggerPeriodic   TriggerKind = "PERIODIC"
)

// ParseTriggerKind accepts kind names in any case.
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch k := TriggerKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case TriggerOnce, TriggerTimeWindow, TriggerPeriodic:
		return k, nil
	default:
		return "", fmt.Errorf("unknown trigger kind %q", s)
	}
}

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Midnight is 00:00.
var Midnight = TimeOfDay{}

// LastMinute is 23:59, the last instant of the first half of a cross-midnight window.
var LastMinute = TimeOfDay{Hour: 23, Minute: 59}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS". Seconds are ignored.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	var t TimeOfDay
	if _, err := fmt.Sscanf(parts[0]+" "+parts[1], "%d %d", &t.Hour, &t.Minute); err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return t, nil
}

// MustTimeOfDay is ParseTimeOfDay for literals known to be valid.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf returns the wall-clock time of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 && t.Minute >= 0 && t.Minute < 60
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

func (t TimeOfDay) After(other TimeOfDay) bool {
	return t.Minutes() > other.Minutes()
}

// Add advances t by d, reporting false when the result leaves the current day.
func (t TimeOfDay) Add(d time.Duration) (TimeOfDay, bool) {
	m := t.Minutes() + int(d/time.Minute)
	if m < 0 || m >= 24*60 {
		return TimeOfDay{}, false
	}
	return TimeOfDay{Hour: m / 60, Minute: m % 60}, true
}

// On places t on the calendar day of day, in loc.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	day = day.In(loc)
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour, t.Minute, 0, 0, loc)
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// WeekdaySet is a bit set of weekdays. The empty set means every day.
type WeekdaySet uint8

// NewWeekdaySet builds a set from the given days.
func NewWeekdaySet(days ...time.Weekday) WeekdaySet {
	var w WeekdaySet
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// ParseWeekdays accepts full English names or three-letter abbreviations in any case.
func ParseWeekdays(names []string) (WeekdaySet, error) {
	var w WeekdaySet
	for _, name := range names {
		d, ok := parseWeekday(name)
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWeekday, name)
		}
		w |= 1 << uint(d)
	}
	return w, nil
}

func parseWeekday(name string) (time.Weekday, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	if len(n) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if n == full || n == full[:3] {
			return d, true
		}
	}
	return 0, false
}

// Contains reports whether d is in the set. An empty set contains every day.
func (w WeekdaySet) Contains(d time.Weekday) bool {
	return w == 0 || w&(1<<uint(d)) != 0
}

// Days returns the members Monday first. An empty set expands to all seven days.
func (w WeekdaySet) Days() []time.Weekday {
	order := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	if w == 0 {
		return order
	}
	days := make([]time.Weekday, 0, 7)
	for _, d := range order {
		if w&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	return days
}

// Abbrev returns MON..SUN codes for the members.
func (w WeekdaySet) Abbrev() []string {
	days := w.Days()
	out := make([]string, len(days))
	for i, d := range days {
		out[i] = strings.ToUpper(d.String()[:3])
	}
	return out
}

// Trigger is one of OnceTrigger, TimeWindowTrigger or PeriodicTrigger.
type Trigger interface {
	Kind() TriggerKind
	Days() WeekdaySet
	validate() error
}

// OnceTrigger fires at Start on each applicable weekday and lasts Duration.
type OnceTrigger struct {
	Start    TimeOfDay
	Duration time.Duration
	Weekdays WeekdaySet
}

func (OnceTrigger) Kind() TriggerKind  { return TriggerOnce }
func (t OnceTrigger) Days() WeekdaySet { return t.Weekdays }

func (t OnceTrigger) validate() error {
	if !t.Start.Valid() {
		return fmt.Errorf("%w: start %s", ErrInvalidTime, t.Start)
	}
	if t.Duration < 0 {
		return fmt.Errorf("negative duration %s", t.Duration)
	}
	return nil
}

// TimeWindowTrigger covers [Start, End] on each applicable weekday.
type TimeWindowTrigger struct {
	Start    TimeOfDay
	End      TimeOfDay
	Weekdays WeekdaySet
}

func (TimeWindowTrigger) Kind() TriggerKind  { return TriggerTimeWindow }
func (t TimeWindowTrigger) Days() WeekdaySet { return t.Weekdays }

// CrossesMidnight reports whether End falls on the following day.
func (t TimeWindowTrigger) CrossesMidnight() bool { return t.End.Before(t.Start) }

func (t TimeWindowTrigger) validate() error {
	if !t.Start.Valid() || !t.End.Valid() {
		return fmt.Errorf("%w: window %s-%s", ErrInvalidTime, t.Start, t.End)
	}
	return nil
}

// PeriodicTrigger fires every IntervalMinutes from Start through End.
type PeriodicTrigger struct {
	Start           TimeOfDay
	End             TimeOfDay
	IntervalMinutes int
	Weekdays        WeekdaySet
}

func (PeriodicTrigger) Kind() TriggerKind  { return TriggerPeriodic }
func (t PeriodicTrigger) Days() WeekdaySet { return t.Weekdays }

// Interval returns the step between firings.
func (t PeriodicTrigger) Interval() time.Duration {
	return time.Duration(t.IntervalMinutes) * time.Minute
}

// CrossesMidnight reports whether End falls on the following day.
func (t PeriodicTrigger) CrossesMidnight() bool { return t.End.Before(t.Start) }

func (t PeriodicTrigger) validate() error {
	if t.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, t.IntervalMinutes)
	}
	if !t.Start.Valid() || !t.End.Valid() {
		return fmt.Errorf("%w: window %s-%s", ErrInvalidTime, t.Start, t.End)
	}
	return nil
}

// ScheduledTask attaches a trigger to a schedulable entity.
type ScheduledTask struct {
	ID      string
	Trigger Trigger
}

// NewScheduledTask checks that trigger matches kind before building the task.
func NewScheduledTask(id string, kind TriggerKind, trigger Trigger) (ScheduledTask, error) {
	if trigger == nil {
		return ScheduledTask{}, ErrMissingTrigger
	}
	if trigger.Kind() != kind {
		return ScheduledTask{}, fmt.Errorf("%w: kind %s, payload %s", ErrTriggerMismatch, kind, trigger.Kind())
	}
	task := ScheduledTask{ID: id, Trigger: trigger}
	if err := task.Validate(); err != nil {
		return ScheduledTask{}, err
	}
	return task, nil
}

// Kind returns the trigger kind, or "" when no trigger is set.
func (t ScheduledTask) Kind() TriggerKind {
	if t.Trigger == nil {
		return ""
	}
	return t.Trigger.Kind()
}

// Validate checks the trigger payload.
func (t ScheduledTask) Validate() error {
	if t.Trigger == nil {
		return ErrMissingTrigger
	}
	return t.Trigger.validate()
}
