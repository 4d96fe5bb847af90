/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/audit"
	"github.com/friendsincode/airwave/internal/cache"
	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/logbuffer"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/scheduler/state"
	"github.com/friendsincode/airwave/internal/station"
	"github.com/friendsincode/airwave/internal/telemetry"
	"github.com/friendsincode/airwave/internal/version"
)

const noContent = "no content yet"

// Stations is the registry surface the HTTP layer reads.
type Stations interface {
	Get(id string) (*station.State, bool)
	Snapshot() []station.Snapshot
	Len() int
}

// StatusHistory serves persisted status transitions.
type StatusHistory interface {
	Query(ctx context.Context, filters audit.QueryFilters) ([]models.StatusChangeRecord, int64, error)
}

// Firings exposes the scheduler's recent firings.
type Firings interface {
	Recent() []state.Firing
}

// Leader reports scheduler leadership.
type Leader interface {
	IsLeader() bool
}

// Handler serves the stream and station endpoints. Every collaborator except stations may be nil.
type Handler struct {
	stations Stations
	cache    *cache.Cache
	history  StatusHistory
	firings  Firings
	leader   Leader
	logs     *logbuffer.Buffer
	logger   zerolog.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(stations Stations, c *cache.Cache, history StatusHistory, firings Firings, leader Leader, logs *logbuffer.Buffer, logger zerolog.Logger) *Handler {
	return &Handler{
		stations: stations,
		cache:    c,
		history:  history,
		firings:  firings,
		leader:   leader,
		logs:     logs,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// Routes mounts every endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/version", h.handleVersion)
	r.Get("/logs", h.handleLogs)

	r.Route("/stations", func(r chi.Router) {
		r.Get("/", h.handleStationList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleStation)
			r.Get("/stats", h.handleStationStats)
			r.Get("/history", h.handleStationHistory)
			r.Get("/stream.m3u8", h.handleManifest)
			r.Get("/segments/{name}", h.handleSegment)
		})
	})

	r.Get("/schedule/recent", h.handleRecentFirings)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"stations": h.stations.Len(),
	}
	if h.leader != nil {
		resp["leader"] = h.leader.IsLeader()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func (h *Handler) handleStationList(w http.ResponseWriter, r *http.Request) {
	if list, ok := h.cache.GetStationList(r.Context()); ok {
		writeJSON(w, http.StatusOK, list)
		return
	}
	list := h.stations.Snapshot()
	if err := h.cache.SetStationList(r.Context(), list); err != nil {
		h.logger.Debug().Err(err).Msg("cache station list failed")
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) station(w http.ResponseWriter, r *http.Request) (*station.State, bool) {
	st, ok := h.stations.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "station not found")
	}
	return st, ok
}

func (h *Handler) handleStation(w http.ResponseWriter, r *http.Request) {
	st, ok := h.station(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, st.Snapshot())
}

func (h *Handler) handleStationStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if stats, ok := h.cache.GetStationStats(r.Context(), id); ok {
		writeJSON(w, http.StatusOK, stats)
		return
	}
	st, ok := h.station(w, r)
	if !ok {
		return
	}
	stats := st.Stats()
	if err := h.cache.SetStationStats(r.Context(), id, stats); err != nil {
		h.logger.Debug().Err(err).Str("station", id).Msg("cache station stats failed")
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleStationHistory(w http.ResponseWriter, r *http.Request) {
	st, ok := h.station(w, r)
	if !ok {
		return
	}
	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"records": st.History(), "total": len(st.History())})
		return
	}

	filters := audit.QueryFilters{StationID: st.ID()}
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		filters.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filters.Offset = v
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		filters.Since = &since
	}

	records, total, err := h.history.Query(r.Context(), filters)
	if err != nil {
		h.logger.Error().Err(err).Str("station", st.ID()).Msg("status history query failed")
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "total": total})
}

// handleManifest serves the live playlist. Unknown stations and empty windows are 404s so
// players retry instead of treating the stream as broken.
func (h *Handler) handleManifest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := h.stations.Get(id)
	if !ok {
		telemetry.HLSManifestRequests.WithLabelValues("unknown", "not_found").Inc()
		writeError(w, http.StatusNotFound, noContent)
		return
	}
	manifest, ok := st.Store().GenerateManifest()
	if !ok {
		telemetry.HLSManifestRequests.WithLabelValues(id, "empty").Inc()
		writeError(w, http.StatusNotFound, noContent)
		return
	}
	telemetry.HLSManifestRequests.WithLabelValues(id, "ok").Inc()

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(manifest))
}

func (h *Handler) handleSegment(w http.ResponseWriter, r *http.Request) {
	st, ok := h.stations.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, noContent)
		return
	}
	seq, ok := hls.ParseSegmentName(chi.URLParam(r, "name"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid segment name")
		return
	}
	seg, ok := st.Store().Get(seq)
	if !ok {
		if seq < st.Store().FirstSequence() {
			writeError(w, http.StatusNotFound, "segment expired")
		} else {
			writeError(w, http.StatusNotFound, "segment not yet available")
		}
		return
	}

	w.Header().Set("Content-Type", "video/mp2t")
	w.Header().Set("Content-Length", strconv.Itoa(seg.Size()))
	w.Header().Set("Cache-Control", "max-age=60")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(seg.Payload)
}

func (h *Handler) handleRecentFirings(w http.ResponseWriter, r *http.Request) {
	if h.firings == nil {
		writeJSON(w, http.StatusOK, []state.Firing{})
		return
	}
	writeJSON(w, http.StatusOK, h.firings.Recent())
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	if h.logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log buffer disabled")
		return
	}

	q := r.URL.Query()
	params := logbuffer.QueryParams{
		Level:      q.Get("level"),
		Component:  q.Get("component"),
		StationID:  q.Get("station"),
		Search:     q.Get("search"),
		Limit:      200,
		Descending: q.Get("order") != "asc",
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 {
		params.Limit = v
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		params.Since = since
	}

	entries := h.logs.Query(params)
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
		"stats":   h.logs.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
