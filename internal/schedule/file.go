/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package schedule loads station profiles and scheduled tasks from a YAML file and hands
// them to the scheduler.
package schedule

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/scheduler"
	"github.com/friendsincode/airwave/internal/station"
)

var (
	ErrDuplicateTask = errors.New("duplicate task id")
	ErrUnknownJob    = errors.New("unknown job")
)

var knownJobs = map[string]bool{
	scheduler.JobAIControl:        true,
	scheduler.JobEventTrigger:     true,
	scheduler.JobContentInjection: true,
}

// File is the on-disk schedule document.
type File struct {
	Stations []StationSpec `yaml:"stations"`
	Tasks    []TaskSpec    `yaml:"tasks"`
}

// StationSpec declares a station profile.
type StationSpec struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	TimeZone    string `yaml:"time_zone"`
	Description string `yaml:"description"`
	AIControl   bool   `yaml:"ai_control"`
}

// TriggerSpec is the YAML form of a trigger.
type TriggerSpec struct {
	Kind            string   `yaml:"kind"`
	Start           string   `yaml:"start"`
	End             string   `yaml:"end"`
	Duration        string   `yaml:"duration"`
	IntervalMinutes int      `yaml:"interval_minutes"`
	Weekdays        []string `yaml:"weekdays"`
}

// TaskSpec attaches a trigger to a job on a station.
type TaskSpec struct {
	ID       string            `yaml:"id"`
	Station  string            `yaml:"station"`
	Job      string            `yaml:"job"`
	TimeZone string            `yaml:"time_zone"`
	Trigger  TriggerSpec       `yaml:"trigger"`
	Data     map[string]string `yaml:"data"`
}

// Load reads and parses the schedule file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schedule file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a schedule document. Unknown fields are rejected.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode schedule file: %w", err)
	}
	return &f, nil
}

// Trigger converts the spec into a typed trigger.
func (t TriggerSpec) Trigger() (models.Trigger, error) {
	kind, err := models.ParseTriggerKind(t.Kind)
	if err != nil {
		return nil, err
	}
	days, err := models.ParseWeekdays(t.Weekdays)
	if err != nil {
		return nil, err
	}
	start, err := models.ParseTimeOfDay(t.Start)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	switch kind {
	case models.TriggerOnce:
		var dur time.Duration
		if t.Duration != "" {
			if dur, err = time.ParseDuration(t.Duration); err != nil {
				return nil, fmt.Errorf("duration: %w", err)
			}
		}
		return models.OnceTrigger{Start: start, Duration: dur, Weekdays: days}, nil
	case models.TriggerTimeWindow:
		end, err := models.ParseTimeOfDay(t.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return models.TimeWindowTrigger{Start: start, End: end, Weekdays: days}, nil
	default:
		end, err := models.ParseTimeOfDay(t.End)
		if err != nil {
			return nil, fmt.Errorf("end: %w", err)
		}
		return models.PeriodicTrigger{Start: start, End: end, IntervalMinutes: t.IntervalMinutes, Weekdays: days}, nil
	}
}

// Build turns the spec into the scheduler's entity and task.
func (t TaskSpec) Build() (scheduler.Entity, models.ScheduledTask, error) {
	if strings.TrimSpace(t.ID) == "" {
		return scheduler.Entity{}, models.ScheduledTask{}, scheduler.ErrNoIdentity
	}
	if !knownJobs[t.Job] {
		return scheduler.Entity{}, models.ScheduledTask{}, fmt.Errorf("%w %q", ErrUnknownJob, t.Job)
	}
	trig, err := t.Trigger.Trigger()
	if err != nil {
		return scheduler.Entity{}, models.ScheduledTask{}, err
	}
	task, err := models.NewScheduledTask(t.ID, trig.Kind(), trig)
	if err != nil {
		return scheduler.Entity{}, models.ScheduledTask{}, err
	}
	entity := scheduler.Entity{ID: t.ID, StationID: t.Station, Job: t.Job, Data: t.Data}
	return entity, task, nil
}

// Validate checks every task without touching a runner, including the periodic trigger cap.
func (f *File) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Tasks))
	for i, spec := range f.Tasks {
		if seen[spec.ID] {
			errs = append(errs, fmt.Errorf("task %d: %w %q", i, ErrDuplicateTask, spec.ID))
			continue
		}
		seen[spec.ID] = true

		if spec.Station == "" {
			errs = append(errs, fmt.Errorf("task %q: %w", spec.ID, scheduler.ErrNoStation))
			continue
		}
		_, task, err := spec.Build()
		if err != nil {
			errs = append(errs, fmt.Errorf("task %q: %w", spec.ID, err))
			continue
		}
		if p, ok := task.Trigger.(models.PeriodicTrigger); ok {
			if _, err := scheduler.CompilePeriodic(p, time.UTC); err != nil {
				errs = append(errs, fmt.Errorf("task %q: %w", spec.ID, err))
			}
		}
	}
	for _, st := range f.Stations {
		if strings.TrimSpace(st.ID) == "" {
			errs = append(errs, station.ErrInvalidID)
		}
	}
	return errors.Join(errs...)
}

// Registry is the part of the station registry the loader uses.
type Registry interface {
	GetOrCreate(id string) (*station.State, error)
	UpdateConfig(id string, cfg station.Config) (*station.State, bool)
}

// Scheduler registers tasks.
type Scheduler interface {
	Schedule(ctx context.Context, entity scheduler.Entity, task models.ScheduledTask, tz string) ([]string, error)
}

// Result summarizes an Apply.
type Result struct {
	Stations int
	Tasks    int
	Keys     []string
	Failed   map[string]error
}

// Loader applies schedule files.
type Loader struct {
	registry  Registry
	scheduler Scheduler
	logger    zerolog.Logger
}

// NewLoader creates a loader.
func NewLoader(registry Registry, sched Scheduler, logger zerolog.Logger) *Loader {
	return &Loader{
		registry:  registry,
		scheduler: sched,
		logger:    logger.With().Str("component", "schedule_loader").Logger(),
	}
}

// Apply creates the declared stations and schedules every task. A bad task is recorded in
// Result.Failed and does not stop the rest.
func (l *Loader) Apply(ctx context.Context, f *File) (*Result, error) {
	res := &Result{Failed: make(map[string]error)}

	for _, spec := range f.Stations {
		if _, err := l.registry.GetOrCreate(spec.ID); err != nil {
			return res, fmt.Errorf("create station %q: %w", spec.ID, err)
		}
		st, _ := l.registry.UpdateConfig(spec.ID, station.Config{
			DisplayName: spec.DisplayName,
			TimeZone:    spec.TimeZone,
			Description: spec.Description,
		})
		if st != nil {
			st.SetAIControlAllowed(spec.AIControl)
		}
		res.Stations++
	}

	for _, spec := range f.Tasks {
		entity, task, err := spec.Build()
		if err == nil {
			var keys []string
			keys, err = l.scheduler.Schedule(ctx, entity, task, spec.TimeZone)
			res.Keys = append(res.Keys, keys...)
		}
		if err != nil {
			l.logger.Warn().Err(err).Str("task", spec.ID).Msg("task skipped")
			res.Failed[spec.ID] = err
			continue
		}
		res.Tasks++
	}

	l.logger.Info().
		Int("stations", res.Stations).
		Int("tasks", res.Tasks).
		Int("failed", len(res.Failed)).
		Msg("schedule applied")
	return res, nil
}

// LoadAndApply reads path and applies it.
func (l *Loader) LoadAndApply(ctx context.Context, path string) (*Result, error) {
	f, err := Load(path)
	if err != nil {
		return nil, err
	}
	return l.Apply(ctx, f)
}
