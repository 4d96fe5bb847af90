/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package station holds per-station lifecycle state and the registry that owns every station
// in the process.
package station

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/playlist"
	"github.com/friendsincode/airwave/internal/telemetry"
)

var ErrInvalidID = errors.New("station id must not be empty")

// Defaults shape every station the registry creates.
type Defaults struct {
	Store    hls.StoreConfig
	Playlist playlist.Config
	Config   Config
}

// Registry maps station identifiers to their State. Construct one per process and pass it
// to every consumer.
type Registry struct {
	defaults Defaults
	bus      *events.Bus
	logger   zerolog.Logger
	now      func() time.Time

	// onCreate runs once per new station, before it is published.
	onCreate []func(*State)

	mu       sync.RWMutex
	stations map[string]*State
}

// NewRegistry creates an empty registry. bus may be nil.
func NewRegistry(defaults Defaults, bus *events.Bus, logger zerolog.Logger) *Registry {
	return &Registry{
		defaults: defaults,
		bus:      bus,
		logger:   logger.With().Str("component", "station_registry").Logger(),
		now:      time.Now,
		stations: make(map[string]*State),
	}
}

// OnCreate registers a hook for newly created stations, e.g. to attach an evicted-segment archiver.
// Hooks run under the registry lock before the station is visible to any caller, so they must
// not call back into the registry. Hooks must be registered before the registry is shared.
func (r *Registry) OnCreate(fn func(*State)) {
	r.onCreate = append(r.onCreate, fn)
}

// GetOrCreate returns the station for id, creating it in OFF_LINE with an empty window and
// queue on first reference. Concurrent first calls for one id all receive the same State.
func (r *Registry) GetOrCreate(id string) (*State, error) {
	id = normalizeID(id)
	if id == "" {
		return nil, ErrInvalidID
	}

	r.mu.RLock()
	st, ok := r.stations[id]
	r.mu.RUnlock()
	if ok {
		return st, nil
	}

	r.mu.Lock()
	if st, ok = r.stations[id]; ok {
		r.mu.Unlock()
		return st, nil
	}
	st = r.build(id)
	for _, fn := range r.onCreate {
		fn(st)
	}
	r.stations[id] = st
	count := len(r.stations)
	r.mu.Unlock()

	telemetry.StationsRegistered.Set(float64(count))
	r.logger.Info().Str("station_id", id).Msg("station registered")
	if r.bus != nil {
		r.bus.Publish(events.EventStationCreated, events.Payload{"station_id": id})
	}
	return st, nil
}

func (r *Registry) build(id string) *State {
	storeCfg := r.defaults.Store
	storeCfg.Station = id
	plCfg := r.defaults.Playlist
	plCfg.Station = id
	return newState(id, r.defaults.Config,
		hls.NewSegmentStore(storeCfg),
		playlist.NewManager(plCfg, r.logger),
		r.bus, r.logger, r.now)
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}

// Get returns the station for id without creating it.
func (r *Registry) Get(id string) (*State, bool) {
	id = normalizeID(id)
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.stations[id]
	return st, ok
}

// States returns the registered stations sorted by id.
func (r *Registry) States() []*State {
	r.mu.RLock()
	out := make([]*State, 0, len(r.stations))
	for _, st := range r.stations {
		out = append(out, st)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Snapshot returns a point-in-time view of every station. The registry lock is only held
// while collecting pointers; each station is read under its own lock.
func (r *Registry) Snapshot() []Snapshot {
	states := r.States()
	out := make([]Snapshot, len(states))
	for i, st := range states {
		out[i] = st.Snapshot()
	}
	return out
}

// Online returns snapshots of stations currently broadcasting.
func (r *Registry) Online() []Snapshot {
	var out []Snapshot
	for _, st := range r.States() {
		if st.Status().Broadcasting() {
			out = append(out, st.Snapshot())
		}
	}
	return out
}

// Len returns the number of registered stations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stations)
}

// StopAndRemove takes the station off line and drops it from the registry.
func (r *Registry) StopAndRemove(id string) (*State, bool) {
	id = normalizeID(id)
	r.mu.Lock()
	st, ok := r.stations[id]
	if ok {
		delete(r.stations, id)
	}
	count := len(r.stations)
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	st.SetStatus(models.StatusOffLine)
	telemetry.StationsRegistered.Set(float64(count))
	r.logger.Info().Str("station_id", id).Msg("station removed")
	if r.bus != nil {
		r.bus.Publish(events.EventStationRemoved, events.Payload{"station_id": id})
	}
	return st, true
}

// UpdateConfig replaces the station profile, keeping status and history.
func (r *Registry) UpdateConfig(id string, cfg Config) (*State, bool) {
	st, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	st.setConfig(cfg)
	if r.bus != nil {
		r.bus.Publish(events.EventStationConfig, events.Payload{"station_id": st.id})
	}
	return st, true
}
