/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package ingest turns content-ready notifications into queued fragment ranges. Chunk I/O
// happens here; only finished segments cross into the station's store and playlist.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/playlist"
	"github.com/friendsincode/airwave/internal/station"
	"github.com/friendsincode/airwave/internal/storage"
	"github.com/friendsincode/airwave/internal/telemetry"
)

var (
	ErrNoStation = errors.New("message has no station")
	ErrNoChunks  = errors.New("message has no chunks")
)

// Message announces a pre-encoded item whose chunks sit in object storage.
type Message struct {
	Station       string   `json:"station"`
	Title         string   `json:"title"`
	Artist        string   `json:"artist,omitempty"`
	Type          string   `json:"type,omitempty"`
	Priority      string   `json:"priority,omitempty"`
	ChunkKeys     []string `json:"chunk_keys"`
	ChunkDuration float64  `json:"chunk_duration,omitempty"`
}

// Stations resolves or creates the target station.
type Stations interface {
	GetOrCreate(id string) (*station.State, error)
}

// Ingestor fetches chunks and enqueues them as one fragment range.
type Ingestor struct {
	stations Stations
	store    storage.ObjectStore
	bus      *events.Bus
	logger   zerolog.Logger
}

// NewIngestor creates an ingestor. bus may be nil.
func NewIngestor(stations Stations, store storage.ObjectStore, bus *events.Bus, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		stations: stations,
		store:    store,
		bus:      bus,
		logger:   logger.With().Str("component", "ingest").Logger(),
	}
}

// Handle fetches every chunk of msg, appends them to the station window in one step and
// enqueues the resulting range at the requested priority (LAST when unset). Nothing is
// appended when the queue refuses the priority.
func (i *Ingestor) Handle(ctx context.Context, msg Message) (*playlist.FragmentRange, error) {
	r, err := i.handle(ctx, msg)
	if err != nil {
		telemetry.IngestMessagesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	telemetry.IngestMessagesTotal.WithLabelValues("ok").Inc()
	return r, nil
}

func (i *Ingestor) handle(ctx context.Context, msg Message) (*playlist.FragmentRange, error) {
	if msg.Station == "" {
		return nil, ErrNoStation
	}
	if len(msg.ChunkKeys) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoChunks, msg.Title)
	}
	priority := models.PriorityLast
	if msg.Priority != "" {
		p, err := models.ParsePriority(msg.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}

	chunks := make([][]byte, 0, len(msg.ChunkKeys))
	for _, key := range msg.ChunkKeys {
		data, err := i.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("fetch chunk %s: %w", key, err)
		}
		chunks = append(chunks, data)
	}

	st, err := i.stations.GetOrCreate(msg.Station)
	if err != nil {
		return nil, err
	}

	meta := models.ContentMeta{Title: msg.Title, Artist: msg.Artist, Type: models.ParseContentType(msg.Type)}
	dur := time.Duration(msg.ChunkDuration * float64(time.Second))
	r, err := st.Playlist().EnqueueBuilt(priority, func() (*playlist.FragmentRange, error) {
		segs := st.Store().AppendFragment(chunks, dur, uuid.NewString(), meta.Display())
		return playlist.NewFragmentRange(segs, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue %q on %s: %w", meta.Title, msg.Station, err)
	}

	i.logger.Info().
		Str("station_id", msg.Station).
		Str("range", r.String()).
		Str("priority", priority.String()).
		Int("chunks", len(chunks)).
		Msg("content queued")

	if i.bus != nil {
		i.bus.Publish(events.EventContentQueued, events.Payload{
			"station_id": msg.Station,
			"range_id":   r.ID,
			"title":      meta.Title,
			"priority":   priority.String(),
			"start":      r.Start,
			"end":        r.End,
		})
	}
	return r, nil
}
