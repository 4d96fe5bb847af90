/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Segment window metrics.
var (
	HLSSegmentsAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_hls_segments_appended_total",
		Help: "Segments appended to a station window.",
	}, []string{"station"})

	HLSSegmentsEvicted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_hls_segments_evicted_total",
		Help: "Segments evicted from the head of a station window.",
	}, []string{"station"})

	HLSWindowSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airwave_hls_window_segments",
		Help: "Segments currently visible in a station window.",
	}, []string{"station"})

	HLSManifestRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_hls_manifest_requests_total",
		Help: "Manifest requests by outcome.",
	}, []string{"station", "result"})
)

// Playlist metrics.
var (
	PlaylistSlidesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_playlist_slides_total",
		Help: "Cursor slides onto a new fragment range.",
	}, []string{"station"})

	PlaylistStarvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_playlist_starved_total",
		Help: "Ticks where the current range elapsed with nothing pending.",
	}, []string{"station"})

	PlaylistPending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "airwave_playlist_pending_ranges",
		Help: "Ranges waiting to air, by priority tier.",
	}, []string{"station", "priority"})

	PlayoutTickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airwave_playout_tick_duration_seconds",
		Help:    "Time spent ticking every station once.",
		Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
	})
)

// Station lifecycle metrics.
var (
	StationStatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_station_status_transitions_total",
		Help: "Station status transitions.",
	}, []string{"station", "from", "to"})

	StationsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airwave_stations_registered",
		Help: "Stations held by the registry.",
	})
)

// Scheduler metrics.
var (
	SchedulerTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airwave_scheduler_ticks_total",
		Help: "Scheduler clock ticks.",
	})

	SchedulerJobsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_scheduler_jobs_fired_total",
		Help: "Jobs dispatched to the worker pool.",
	}, []string{"job", "result"})

	SchedulerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_scheduler_errors_total",
		Help: "Scheduling failures by reason.",
	}, []string{"reason"})

	SchedulerTriggersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airwave_scheduler_triggers_active",
		Help: "Trigger instants currently registered.",
	})

	LeaderElectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airwave_leader_election_status",
		Help: "1 when this instance holds scheduler leadership.",
	})
)

// Ingestion metrics.
var (
	IngestMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_ingest_messages_total",
		Help: "Content-ready messages consumed, by result.",
	}, []string{"result"})
)

// Database metrics.
var (
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "airwave_db_query_duration_seconds",
		Help:    "Database operation latency by operation and table.",
		Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_db_errors_total",
		Help: "Failed database operations.",
	}, []string{"operation"})

	DatabaseConnectionsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airwave_db_connections_open",
		Help: "Open database connections.",
	})
)

// HTTP metrics.
var (
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "airwave_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_api_requests_total",
		Help: "HTTP requests served.",
	}, []string{"method", "endpoint", "status"})

	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airwave_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	APIResponseBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airwave_api_response_bytes_total",
		Help: "Bytes written in HTTP responses, mostly segment payloads.",
	}, []string{"endpoint"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
