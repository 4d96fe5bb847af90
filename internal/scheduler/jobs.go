/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/station"
)

// Job names.
const (
	JobAIControl        = "ai_control"
	JobEventTrigger     = "event_trigger"
	JobContentInjection = "content_injection"
)

// JobData keys.
const (
	DataStation     = "station"
	DataAction      = "action"
	DataTarget      = "target"
	DataEntity      = "entity"
	DataEventType   = "event_type"
	DataDescription = "description"
	DataPriority    = "priority"
)

// Actions carried in JobData[DataAction].
const (
	ActionStart   = "start"
	ActionStop    = "stop"
	ActionWarning = "warning"
	ActionFire    = "fire"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrUnknownAction   = errors.New("unknown action")
)

// MemoryWriter persists station memory entries.
type MemoryWriter interface {
	Record(ctx context.Context, entry models.MemoryEntry) error
}

// ContentRequest asks the content pipeline to produce and enqueue something.
type ContentRequest struct {
	Station  string
	Target   string
	Action   string
	Priority models.Priority
}

// ContentRequester is the content-injection path.
type ContentRequester interface {
	RequestContent(ctx context.Context, req ContentRequest) error
}

// Stations resolves station state for jobs.
type Stations interface {
	Get(id string) (*station.State, bool)
}

func recordMemory(ctx context.Context, w MemoryWriter, logger zerolog.Logger, entry models.MemoryEntry) {
	if w == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if err := w.Record(ctx, entry); err != nil {
		logger.Warn().Err(err).Str("station_id", entry.StationID).Str("kind", string(entry.Kind)).Msg("memory write failed")
		return
	}
	logger.Debug().Str("station_id", entry.StationID).Str("kind", string(entry.Kind)).Msg("memory recorded")
}

// AIControlJob opens and closes the automated-host shift of a station.
//
//	start:   allow AI control, remember SHIFT_STARTED
//	warning: remember SHIFT_ENDING
//	stop:    revoke AI control while broadcasting; an ON_LINE station waits for a curator
type AIControlJob struct {
	stations Stations
	memory   MemoryWriter
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewAIControlJob creates the job. memory may be nil.
func NewAIControlJob(stations Stations, memory MemoryWriter, clk clock.Clock, logger zerolog.Logger) *AIControlJob {
	if clk == nil {
		clk = clock.Real{}
	}
	return &AIControlJob{
		stations: stations,
		memory:   memory,
		clock:    clk,
		logger:   logger.With().Str("component", "ai_control_job").Logger(),
	}
}

func (j *AIControlJob) Execute(ctx context.Context, data JobData) error {
	id := data[DataStation]
	st, ok := j.stations.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}

	switch action := data[DataAction]; action {
	case ActionStart:
		st.SetAIControlAllowed(true)
		st.TouchAIContact()
		j.logger.Info().Str("station_id", id).Msg("shift started, ai control allowed")
		recordMemory(ctx, j.memory, j.logger, models.MemoryEntry{
			StationID: id,
			Kind:      models.MemoryShiftStarted,
			Key:       data[DataEntity],
			Content:   fmt.Sprintf("Shift started at %s", j.clock.Now().In(st.Location()).Format("15:04")),
		})

	case ActionWarning:
		j.logger.Info().Str("station_id", id).Msg("shift ending soon")
		recordMemory(ctx, j.memory, j.logger, models.MemoryEntry{
			StationID: id,
			Kind:      models.MemoryShiftEnding,
			Key:       data[DataEntity],
			Content:   fmt.Sprintf("Shift ends in %d minutes", int(WarningLead/time.Minute)),
		})

	case ActionStop:
		status := st.Status()
		if !status.Broadcasting() {
			j.logger.Debug().Str("station_id", id).Str("status", string(status)).Msg("station not broadcasting, stop ignored")
			return nil
		}
		st.SetAIControlAllowed(false)
		if status == models.StatusOnLine {
			st.SetStatus(models.StatusWaitingForCurator)
		}
		j.logger.Info().Str("station_id", id).Msg("shift ended, ai control revoked")
		recordMemory(ctx, j.memory, j.logger, models.MemoryEntry{
			StationID: id,
			Kind:      models.MemoryShiftEnded,
			Key:       data[DataEntity],
			Content:   fmt.Sprintf("Shift ended at %s", j.clock.Now().In(st.Location()).Format("15:04")),
		})

	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	return nil
}

// EventTriggerJob writes an event note into the station's memory, e.g.
// "weather: afternoon forecast [HIGH]".
type EventTriggerJob struct {
	memory MemoryWriter
	bus    *events.Bus
	logger zerolog.Logger
}

// NewEventTriggerJob creates the job. bus may be nil.
func NewEventTriggerJob(memory MemoryWriter, bus *events.Bus, logger zerolog.Logger) *EventTriggerJob {
	return &EventTriggerJob{memory: memory, bus: bus, logger: logger.With().Str("component", "event_trigger_job").Logger()}
}

// EventNote formats the memory text for an event firing.
func EventNote(eventType, description, priority string) string {
	if priority == "" {
		return fmt.Sprintf("%s: %s", eventType, description)
	}
	return fmt.Sprintf("%s: %s [%s]", eventType, description, priority)
}

func (j *EventTriggerJob) Execute(ctx context.Context, data JobData) error {
	if data[DataStation] == "" {
		return fmt.Errorf("%w: empty station", ErrStationNotFound)
	}
	note := EventNote(data[DataEventType], data[DataDescription], data[DataPriority])
	recordMemory(ctx, j.memory, j.logger, models.MemoryEntry{
		StationID: data[DataStation],
		Kind:      models.MemoryEvent,
		Key:       data[DataEntity],
		Content:   note,
	})
	if j.bus != nil {
		j.bus.Publish(events.EventScheduleFired, events.Payload{
			"station_id": data[DataStation],
			"entity":     data[DataEntity],
			"note":       note,
		})
	}
	j.logger.Info().Str("station_id", data[DataStation]).Str("note", note).Msg("event triggered")
	return nil
}

// ContentInjectionJob asks the content pipeline for the target named in the job data.
type ContentInjectionJob struct {
	requester ContentRequester
	logger    zerolog.Logger
}

// NewContentInjectionJob creates the job.
func NewContentInjectionJob(requester ContentRequester, logger zerolog.Logger) *ContentInjectionJob {
	return &ContentInjectionJob{requester: requester, logger: logger.With().Str("component", "content_injection_job").Logger()}
}

func (j *ContentInjectionJob) Execute(ctx context.Context, data JobData) error {
	priority := models.PriorityHigh
	if p := data[DataPriority]; p != "" {
		parsed, err := models.ParsePriority(p)
		if err != nil {
			return err
		}
		priority = parsed
	}
	req := ContentRequest{
		Station:  data[DataStation],
		Target:   data[DataTarget],
		Action:   data[DataAction],
		Priority: priority,
	}
	if req.Station == "" {
		return fmt.Errorf("%w: empty station", ErrStationNotFound)
	}
	if err := j.requester.RequestContent(ctx, req); err != nil {
		return fmt.Errorf("request content for %s: %w", req.Station, err)
	}
	j.logger.Info().Str("station_id", req.Station).Str("target", req.Target).Str("action", req.Action).Msg("content requested")
	return nil
}

// BusContentRequester publishes content requests on the event bus for producers to pick up.
type BusContentRequester struct {
	Bus *events.Bus
}

func (b BusContentRequester) RequestContent(_ context.Context, req ContentRequest) error {
	if b.Bus == nil {
		return errors.New("no event bus configured")
	}
	b.Bus.Publish(events.EventContentRequest, events.Payload{
		"station_id": req.Station,
		"target":     req.Target,
		"action":     req.Action,
		"priority":   req.Priority.String(),
	})
	return nil
}
