/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/station"
)

func newTestService(now time.Time) (*Service, *Runner, *station.Registry, *events.Bus) {
	clk := clock.NewFake(now)
	runner := NewRunner(RunnerConfig{QueueSize: 8}, clk, zerolog.Nop())
	for _, name := range []string{JobAIControl, JobEventTrigger, JobContentInjection} {
		runner.Handle(name, JobFunc(func(context.Context, JobData) error { return nil }))
	}
	reg := station.NewRegistry(station.Defaults{}, nil, zerolog.Nop())
	bus := events.NewBus()
	return NewService(runner, reg, clk, bus, zerolog.Nop()), runner, reg, bus
}

func windowTask(start, end string) models.ScheduledTask {
	return models.ScheduledTask{ID: "t", Trigger: models.TimeWindowTrigger{Start: tod(start), End: tod(end)}}
}

func TestScheduleTimeWindow(t *testing.T) {
	svc, runner, reg, bus := newTestService(at(monday, "06:00"))
	sub := bus.Subscribe(events.EventScheduleUpdated)
	entity := Entity{ID: "shift1", StationID: "alpha", Job: JobAIControl}

	keys, err := svc.Schedule(context.Background(), entity, windowTask("09:00", "12:00"), "")
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	want := []string{"shift1_start", "shift1_stop", "shift1_warning"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}
	if _, ok := reg.Get("alpha"); !ok {
		t.Error("scheduling should create the owning station")
	}

	next, _ := runner.NextFire("shift1_warning")
	if !next.Equal(at(monday, "11:53")) {
		t.Errorf("warning fires at %s", next)
	}

	due := runner.Due(at(monday, "09:00"))
	if len(due) != 1 || due[0].Data[DataAction] != ActionStart || due[0].Data[DataStation] != "alpha" || due[0].Data[DataEntity] != "shift1" {
		t.Errorf("due = %+v", due)
	}

	payload := <-sub
	if payload["entity"] != "shift1" {
		t.Errorf("payload = %v", payload)
	}
}

func TestScheduleReplacesPreviousRegistrations(t *testing.T) {
	svc, runner, _, _ := newTestService(at(monday, "06:00"))
	entity := Entity{ID: "shift1", StationID: "alpha", Job: JobAIControl}

	if _, err := svc.Schedule(context.Background(), entity, windowTask("09:00", "12:00"), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Schedule(context.Background(), entity, windowTask("13:00", "13:05"), ""); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	keys := runner.Keys()
	if len(keys) != 2 || keys[0] != "shift1_start" || keys[1] != "shift1_stop" {
		t.Fatalf("Keys() = %v", keys)
	}
	next, _ := runner.NextFire("shift1_start")
	if !next.Equal(at(monday, "13:00")) {
		t.Errorf("start fires at %s, want 13:00", next)
	}
}

func TestSchedulePeriodicKeepsEntityAction(t *testing.T) {
	svc, runner, _, _ := newTestService(at(monday, "06:00"))
	entity := Entity{ID: "ads", StationID: "alpha", Job: JobContentInjection, Data: map[string]string{DataAction: "ad_break", DataTarget: "ad"}}
	task := models.ScheduledTask{ID: "p", Trigger: models.PeriodicTrigger{Start: tod("23:00"), End: tod("01:00"), IntervalMinutes: 30}}

	keys, err := svc.Schedule(context.Background(), entity, task, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 1 || keys[0] != "ads_content_injection" {
		t.Fatalf("keys = %v", keys)
	}
	if runner.TriggerCount(keys[0]) != 5 {
		t.Errorf("TriggerCount = %d, want 5", runner.TriggerCount(keys[0]))
	}

	due := runner.Due(at(monday, "23:00"))
	if len(due) != 1 || due[0].Data[DataAction] != "ad_break" {
		t.Errorf("due = %+v", due)
	}
}

func TestScheduleFailuresLeaveNothingRegistered(t *testing.T) {
	svc, runner, _, _ := newTestService(at(monday, "06:00"))
	entity := Entity{ID: "e", StationID: "alpha", Job: JobEventTrigger}
	ctx := context.Background()

	if _, err := svc.Schedule(ctx, entity, windowTask("09:00", "10:00"), ""); err != nil {
		t.Fatal(err)
	}

	tooMany := models.ScheduledTask{ID: "x", Trigger: models.PeriodicTrigger{Start: tod("00:00"), End: tod("23:59"), IntervalMinutes: 1}}
	if _, err := svc.Schedule(ctx, entity, tooMany, ""); !errors.Is(err, ErrTriggerLimit) {
		t.Fatalf("err = %v, want ErrTriggerLimit", err)
	}
	if keys := runner.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v after failed reschedule", keys)
	}

	badInterval := models.ScheduledTask{ID: "y", Trigger: models.PeriodicTrigger{Start: tod("09:00"), End: tod("10:00")}}
	if _, err := svc.Schedule(ctx, entity, badInterval, ""); !errors.Is(err, models.ErrInvalidInterval) {
		t.Errorf("err = %v, want ErrInvalidInterval", err)
	}
	if _, err := svc.Schedule(ctx, Entity{ID: "e"}, windowTask("09:00", "10:00"), ""); !errors.Is(err, ErrNoStation) {
		t.Errorf("err = %v, want ErrNoStation", err)
	}
	if _, err := svc.Schedule(ctx, Entity{StationID: "alpha"}, windowTask("09:00", "10:00"), ""); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("err = %v, want ErrNoIdentity", err)
	}
	if _, err := svc.Schedule(ctx, Entity{ID: "z", StationID: "alpha", Job: "unknown"}, windowTask("09:00", "10:00"), ""); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v, want ErrUnknownJob", err)
	}
	if keys := runner.Keys(); len(keys) != 0 {
		t.Errorf("Keys() = %v", keys)
	}
}

func TestScheduleRecoversOpenWindow(t *testing.T) {
	svc, runner, _, _ := newTestService(at(monday, "23:30"))
	entity := Entity{ID: "late", StationID: "alpha", Job: JobAIControl}

	if _, err := svc.Schedule(context.Background(), entity, windowTask("22:00", "02:00"), ""); err != nil {
		t.Fatal(err)
	}
	select {
	case d := <-runner.queue:
		if d.Key != "late_start" || d.Data[DataAction] != ActionStart {
			t.Errorf("recovered dispatch = %+v", d)
		}
	default:
		t.Fatal("open window did not fire its start job")
	}
}

func TestScheduleUsesStationTimeZone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	svc, runner, reg, _ := newTestService(at(monday, "06:00"))
	reg.GetOrCreate("alpha")
	reg.UpdateConfig("alpha", station.Config{TimeZone: "Europe/Berlin"})

	entity := Entity{ID: "morning", StationID: "alpha", Job: JobEventTrigger}
	task := models.ScheduledTask{ID: "o", Trigger: models.OnceTrigger{Start: tod("09:00")}}
	if _, err := svc.Schedule(context.Background(), entity, task, ""); err != nil {
		t.Fatal(err)
	}
	next, _ := runner.NextFire("morning_once")
	if want := time.Date(2026, 1, 5, 9, 0, 0, 0, loc); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}

	if _, err := svc.Schedule(context.Background(), entity, task, "UTC"); err != nil {
		t.Fatal(err)
	}
	next, _ = runner.NextFire("morning_once")
	if !next.Equal(at(monday, "09:00")) {
		t.Errorf("override next = %s", next)
	}
}

func TestRemoveFor(t *testing.T) {
	svc, runner, _, _ := newTestService(at(monday, "06:00"))
	entity := Entity{ID: "shift1", StationID: "alpha", Job: JobAIControl}
	if _, err := svc.Schedule(context.Background(), entity, windowTask("09:00", "12:00"), ""); err != nil {
		t.Fatal(err)
	}

	if removed := svc.RemoveFor(Entity{}); removed != nil {
		t.Errorf("RemoveFor(empty) = %v", removed)
	}
	if removed := svc.RemoveFor(entity); len(removed) != 3 {
		t.Errorf("removed = %v", removed)
	}
	if len(runner.Keys()) != 0 {
		t.Errorf("Keys() = %v", runner.Keys())
	}
}
