/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package scheduler compiles declarative triggers into firing times and dispatches the jobs
// that flip station state or request content.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/station"
	"github.com/friendsincode/airwave/internal/telemetry"
)

var (
	ErrNoIdentity = errors.New("entity has no identifier")
	ErrNoStation  = errors.New("entity has no owning station")
)

// Entity is something a task can be attached to: a station shift, a recurring event, an
// injection slot. Job names the runner job to fire and Data is copied into every firing.
type Entity struct {
	ID        string
	StationID string
	Job       string
	Data      map[string]string
}

// Key derives the runner key for one of the entity's registrations, e.g. "evt42_start".
func (e Entity) Key(suffix string) string {
	return e.ID + "_" + suffix
}

// StationRegistry resolves and creates stations.
type StationRegistry interface {
	GetOrCreate(id string) (*station.State, error)
}

// Service registers compiled tasks with the Runner.
type Service struct {
	runner   *Runner
	stations StationRegistry
	clock    clock.Clock
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewService creates the scheduling service. bus may be nil.
func NewService(runner *Runner, stations StationRegistry, clk clock.Clock, bus *events.Bus, logger zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Service{
		runner:   runner,
		stations: stations,
		clock:    clk,
		bus:      bus,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Runner exposes the underlying job runner.
func (s *Service) Runner() *Runner { return s.runner }

// Schedule replaces every registration of entity with the firings of task, computed in tz
// (falling back to the station's zone, then UTC). Misconfigured tasks are logged and
// skipped: nothing stays registered for the entity when an error is returned.
func (s *Service) Schedule(ctx context.Context, entity Entity, task models.ScheduledTask, tz string) ([]string, error) {
	_, span := telemetry.StartSpan(ctx, "scheduler", "scheduler.schedule")
	defer span.End()
	telemetry.AddSpanAttributes(span, map[string]any{"entity": entity.ID, "task": task.ID, "kind": string(task.Kind())})

	if entity.ID == "" {
		return nil, ErrNoIdentity
	}
	log := s.logger.With().Str("entity", entity.ID).Str("task", task.ID).Str("kind", string(task.Kind())).Logger()

	if removed := s.runner.DeleteOwner(entity.ID); len(removed) > 0 {
		log.Debug().Strs("keys", removed).Msg("removed previous registrations")
	}

	fail := func(reason string, err error) ([]string, error) {
		telemetry.RecordError(span, err)
		telemetry.SchedulerErrorsTotal.WithLabelValues(reason).Inc()
		log.Error().Err(err).Msg("task not scheduled")
		return nil, err
	}

	if entity.StationID == "" {
		return fail("no_station", ErrNoStation)
	}
	st, err := s.stations.GetOrCreate(entity.StationID)
	if err != nil {
		return fail("no_station", fmt.Errorf("resolve station %s: %w", entity.StationID, err))
	}
	if err := task.Validate(); err != nil {
		return fail("invalid_task", err)
	}

	loc := st.Location()
	if tz != "" {
		loc = clock.LoadLocation(tz, log)
	}

	plan, err := s.plan(entity, task, loc)
	if err != nil {
		reason := "compile"
		if errors.Is(err, ErrTriggerLimit) {
			reason = "trigger_limit"
		}
		return fail(reason, err)
	}

	keys := make([]string, 0, len(plan))
	for _, p := range plan {
		next, err := s.runner.Register(Registration{Key: p.key, Owner: entity.ID, Job: entity.Job, Sets: p.sets, Data: p.data})
		if err != nil {
			s.runner.DeleteOwner(entity.ID)
			return fail("register", err)
		}
		keys = append(keys, p.key)
		log.Info().Str("key", p.key).Int("triggers", countTriggers(p.sets)).Time("next", next).Msg("task scheduled")
	}

	if WindowActive(task, s.clock.Now().In(loc)) && len(keys) > 0 {
		log.Info().Str("key", keys[0]).Msg("window already open, firing start now")
		s.runner.FireNow(keys[0])
	}

	if s.bus != nil {
		s.bus.Publish(events.EventScheduleUpdated, events.Payload{
			"station_id": entity.StationID,
			"entity":     entity.ID,
			"keys":       keys,
		})
	}
	return keys, nil
}

type planned struct {
	key  string
	sets []TriggerSet
	data JobData
}

// plan compiles task into keyed registrations. The first entry is the one fired on recovery.
func (s *Service) plan(entity Entity, task models.ScheduledTask, loc *time.Location) ([]planned, error) {
	base := JobData{}
	for k, v := range entity.Data {
		base[k] = v
	}
	base[DataStation] = entity.StationID
	base[DataEntity] = entity.ID

	// Periodic and one-shot firings keep an action code supplied by the entity.
	withAction := func(action string) JobData {
		d := base.Clone()
		if action != ActionFire || d[DataAction] == "" {
			d[DataAction] = action
		}
		return d
	}

	switch trig := task.Trigger.(type) {
	case models.PeriodicTrigger:
		sets, err := CompilePeriodic(trig, loc)
		if err != nil {
			return nil, err
		}
		return []planned{{key: entity.Key(entity.Job), sets: sets, data: withAction(ActionFire)}}, nil

	case models.TimeWindowTrigger:
		wt := CompileTimeWindow(trig, loc)
		out := []planned{
			{key: entity.Key(ActionStart), sets: []TriggerSet{wt.Start}, data: withAction(ActionStart)},
			{key: entity.Key(ActionStop), sets: []TriggerSet{wt.Stop}, data: withAction(ActionStop)},
		}
		if wt.Warning != nil {
			out = append(out, planned{key: entity.Key(ActionWarning), sets: []TriggerSet{*wt.Warning}, data: withAction(ActionWarning)})
		}
		return out, nil

	case models.OnceTrigger:
		d := withAction(ActionFire)
		if trig.Duration > 0 {
			d["duration"] = trig.Duration.String()
		}
		return []planned{{key: entity.Key("once"), sets: []TriggerSet{CompileOnce(trig, loc)}, data: d}}, nil
	}
	return nil, fmt.Errorf("%w: %T", models.ErrTriggerMismatch, task.Trigger)
}

// RemoveFor deletes every registration owned by entity. It is a no-op for entities without
// an identifier.
func (s *Service) RemoveFor(entity Entity) []string {
	if entity.ID == "" {
		return nil
	}
	removed := s.runner.DeleteOwner(entity.ID)
	if len(removed) > 0 {
		s.logger.Info().Str("entity", entity.ID).Strs("keys", removed).Msg("task registrations removed")
	}
	return removed
}
