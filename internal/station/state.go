/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/playlist"
	"github.com/friendsincode/airwave/internal/telemetry"
)

// Config is the mutable per-station profile. Replacing it never touches status or history.
type Config struct {
	DisplayName string `json:"display_name,omitempty" yaml:"display_name"`
	TimeZone    string `json:"time_zone,omitempty" yaml:"time_zone"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Location resolves TimeZone, falling back to UTC when unset or unknown.
func (c Config) Location() *time.Location {
	if c.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// State is one station: lifecycle status, AI-control flag, audit history and the
// segment window and playlist that feed its stream.
type State struct {
	id       string
	store    *hls.SegmentStore
	playlist *playlist.Manager
	bus      *events.Bus
	logger   zerolog.Logger
	now      func() time.Time

	mu               sync.RWMutex
	cfg              Config
	status           models.StationStatus
	aiControlAllowed bool
	createdAt        time.Time
	startTime        time.Time
	lastAIContact    time.Time
	history          []models.StatusChange
}

func newState(id string, cfg Config, store *hls.SegmentStore, pl *playlist.Manager, bus *events.Bus, logger zerolog.Logger, now func() time.Time) *State {
	return &State{
		id:        id,
		store:     store,
		playlist:  pl,
		bus:       bus,
		logger:    logger.With().Str("station_id", id).Logger(),
		now:       now,
		cfg:       cfg,
		status:    models.StatusOffLine,
		createdAt: now(),
	}
}

// ID returns the station identifier.
func (s *State) ID() string { return s.id }

// Store returns the station's segment window.
func (s *State) Store() *hls.SegmentStore { return s.store }

// Playlist returns the station's playlist manager.
func (s *State) Playlist() *playlist.Manager { return s.playlist }

// Status returns the current lifecycle status.
func (s *State) Status() models.StationStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus moves the station to next. It is a no-op when next equals the current status.
// Otherwise a transition record is appended, and the first record stamps the start time.
func (s *State) SetStatus(next models.StationStatus) bool {
	s.mu.Lock()
	old := s.status
	if old == next {
		s.mu.Unlock()
		return false
	}
	at := s.now()
	if len(s.history) == 0 {
		s.startTime = at
	}
	s.history = append(s.history, models.StatusChange{At: at, Old: old, New: next})
	s.status = next
	s.mu.Unlock()

	telemetry.StationStatusTransitions.WithLabelValues(s.id, string(old), string(next)).Inc()
	s.logger.Info().Str("from", string(old)).Str("to", string(next)).Msg("station status changed")
	if s.bus != nil {
		s.bus.Publish(events.EventStationStatus, events.Payload{
			"station_id": s.id,
			"old":        string(old),
			"new":        string(next),
			"at":         at,
		})
	}
	return true
}

// History returns a copy of the transition log, oldest first.
func (s *State) History() []models.StatusChange {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.StatusChange, len(s.history))
	copy(out, s.history)
	return out
}

// StartTime returns when the first transition was recorded. Zero if never.
func (s *State) StartTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startTime
}

// CreatedAt returns when the station entered the registry.
func (s *State) CreatedAt() time.Time {
	return s.createdAt
}

// AIControlAllowed reports whether automated hosting may drive the station.
func (s *State) AIControlAllowed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.aiControlAllowed
}

// SetAIControlAllowed flips the AI-control flag and reports whether it changed.
func (s *State) SetAIControlAllowed(allowed bool) bool {
	s.mu.Lock()
	changed := s.aiControlAllowed != allowed
	s.aiControlAllowed = allowed
	s.mu.Unlock()

	if changed {
		s.logger.Info().Bool("allowed", allowed).Msg("ai control changed")
		if s.bus != nil {
			s.bus.Publish(events.EventAIControl, events.Payload{"station_id": s.id, "allowed": allowed})
		}
	}
	return changed
}

// TouchAIContact records that the automated host talked to the station.
func (s *State) TouchAIContact() {
	at := s.now()
	s.mu.Lock()
	s.lastAIContact = at
	s.mu.Unlock()
}

// LastAIContact returns the last automated host contact. Zero if never.
func (s *State) LastAIContact() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastAIContact
}

// Config returns the station profile.
func (s *State) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *State) setConfig(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

// Location returns the station's time zone.
func (s *State) Location() *time.Location {
	return s.Config().Location()
}
