/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/hls"
)

// ArchiveKey is where an evicted segment is written, e.g. "stations/alpha/segments/42.ts".
func ArchiveKey(station string, seq int64) string {
	return fmt.Sprintf("stations/%s/segments/%d.ts", station, seq)
}

type archiveJob struct {
	station string
	segment hls.Segment
}

// Archiver copies segments evicted from live windows into object storage. Eviction never
// waits on it: when the queue is full the segment is dropped and counted.
type Archiver struct {
	store   ObjectStore
	queue   chan archiveJob
	timeout time.Duration
	logger  zerolog.Logger

	archived atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewArchiver creates an archiver with a queue of queueSize segments.
func NewArchiver(store ObjectStore, queueSize int, logger zerolog.Logger) *Archiver {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Archiver{
		store:   store,
		queue:   make(chan archiveJob, queueSize),
		timeout: 30 * time.Second,
		logger:  logger.With().Str("component", "segment_archiver").Logger(),
	}
}

// Hook returns the eviction callback to install on each SegmentStore.
func (a *Archiver) Hook() hls.EvictFunc {
	return func(station string, evicted []hls.Segment) {
		for _, seg := range evicted {
			select {
			case a.queue <- archiveJob{station: station, segment: seg}:
			default:
				a.dropped.Add(1)
				a.logger.Warn().Str("station_id", station).Int64("sequence", seg.Sequence).Msg("archive queue full, segment dropped")
			}
		}
	}
}

// Run writes queued segments until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	a.logger.Info().Msg("segment archiver started")
	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Int64("archived", a.archived.Load()).Int64("dropped", a.dropped.Load()).Msg("segment archiver stopped")
			return ctx.Err()
		case job := <-a.queue:
			a.write(ctx, job)
		}
	}
}

func (a *Archiver) write(ctx context.Context, job archiveJob) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	key := ArchiveKey(job.station, job.segment.Sequence)
	if err := a.store.Put(ctx, key, job.segment.Payload); err != nil {
		a.failed.Add(1)
		a.logger.Error().Err(err).Str("key", key).Msg("failed to archive segment")
		return
	}
	a.archived.Add(1)
	a.logger.Debug().Str("key", key).Int("bytes", job.segment.Size()).Msg("segment archived")
}

// Counts returns archived, dropped and failed totals.
func (a *Archiver) Counts() (archived, dropped, failed int64) {
	return a.archived.Load(), a.dropped.Load(), a.failed.Load()
}
