/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playout advances every station's playlist on a fixed slide interval and keeps
// station status in step with what is airing.
package playout

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/playlist"
	"github.com/friendsincode/airwave/internal/station"
	"github.com/friendsincode/airwave/internal/telemetry"
)

const DefaultSlideInterval = 5 * time.Second

// Stations is the registry view the director needs.
type Stations interface {
	States() []*station.State
}

// Config tunes a Director.
type Config struct {
	SlideInterval time.Duration

	// SaturationThreshold is the pending count above which an airing station is marked
	// QUEUE_SATURATED. Zero disables the check.
	SaturationThreshold int
}

// Director drives playlist ticks and emits now playing events.
type Director struct {
	cfg      Config
	stations Stations
	bus      *events.Bus
	clock    clock.Clock
	logger   zerolog.Logger
}

// NewDirector creates a playout director. bus may be nil.
func NewDirector(cfg Config, stations Stations, bus *events.Bus, clk clock.Clock, logger zerolog.Logger) *Director {
	if cfg.SlideInterval <= 0 {
		cfg.SlideInterval = DefaultSlideInterval
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Director{
		cfg:      cfg,
		stations: stations,
		bus:      bus,
		clock:    clk,
		logger:   logger.With().Str("component", "playout_director").Logger(),
	}
}

// Run executes the director loop until context cancellation.
func (d *Director) Run(ctx context.Context) error {
	d.logger.Info().Dur("interval", d.cfg.SlideInterval).Msg("playout director started")
	ticker := time.NewTicker(d.cfg.SlideInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("playout director stopped")
			return ctx.Err()
		case <-ticker.C:
			d.Step(d.clock.Now())
		}
	}
}

// Step ticks every station once at now.
func (d *Director) Step(now time.Time) {
	start := time.Now()
	for _, st := range d.stations.States() {
		d.tickStation(st, now)
	}
	telemetry.PlayoutTickDuration.Observe(time.Since(start).Seconds())
}

func (d *Director) tickStation(st *station.State, now time.Time) {
	pl := st.Playlist()
	status := st.Status()

	switch status {
	case models.StatusSystemError:
		return
	case models.StatusOffLine:
		if pl.PendingCount() == 0 {
			return
		}
		st.SetStatus(models.StatusWarmingUp)
		status = models.StatusWarmingUp
	}

	wasStarved := pl.Starved()
	res := pl.Tick(now)

	if res.Slid {
		d.publishNowPlaying(st, res)
		if status == models.StatusWarmingUp || status == models.StatusIdle {
			st.SetStatus(models.StatusOnLine)
			status = models.StatusOnLine
		}
	}

	if res.Starved {
		if !wasStarved {
			d.publishStarved(st, res)
		}
		if status == models.StatusOnLine || status == models.StatusQueueSaturated {
			st.SetStatus(models.StatusIdle)
		}
		return
	}

	d.checkSaturation(st, status, pl)
}

func (d *Director) checkSaturation(st *station.State, status models.StationStatus, pl *playlist.Manager) {
	if d.cfg.SaturationThreshold <= 0 {
		return
	}
	pending := pl.PendingCount()
	switch {
	case status == models.StatusOnLine && pending > d.cfg.SaturationThreshold:
		d.logger.Warn().Str("station", st.ID()).Int("pending", pending).Msg("queue saturated")
		st.SetStatus(models.StatusQueueSaturated)
	case status == models.StatusQueueSaturated && pending <= d.cfg.SaturationThreshold:
		st.SetStatus(models.StatusOnLine)
	}
}

func (d *Director) publishNowPlaying(st *station.State, res playlist.TickResult) {
	if d.bus == nil || res.Current == nil {
		return
	}
	meta := res.Current.Meta
	d.bus.Publish(events.EventNowPlaying, events.Payload{
		"station_id":   st.ID(),
		"range_id":     res.Current.ID,
		"title":        meta.Title,
		"artist":       meta.Artist,
		"type":         string(meta.Type),
		"display":      meta.Display(),
		"start_seq":    res.Current.Start,
		"end_seq":      res.Current.End,
		"expected_end": res.ExpectedEnd,
	})
}

func (d *Director) publishStarved(st *station.State, res playlist.TickResult) {
	d.logger.Warn().Str("station", st.ID()).Msg("station starved")
	if d.bus == nil {
		return
	}
	payload := events.Payload{"station_id": st.ID()}
	if res.Current != nil {
		payload["holding_range_id"] = res.Current.ID
	}
	d.bus.Publish(events.EventStarved, payload)
}
