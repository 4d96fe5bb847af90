/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package hls holds the per-station sliding segment window and renders live HLS manifests from it.
package hls

import (
	"sync"
	"time"

	"github.com/friendsincode/airwave/internal/telemetry"
)

const (
	DefaultMaxSegments    = 30
	DefaultTargetDuration = 10 * time.Second
	DefaultURIPrefix      = "segments/"
)

// StoreConfig sizes a SegmentStore.
type StoreConfig struct {
	Station        string
	MaxSegments    int
	TargetDuration time.Duration
	URIPrefix      string
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.MaxSegments <= 0 {
		c.MaxSegments = DefaultMaxSegments
	}
	if c.TargetDuration <= 0 {
		c.TargetDuration = DefaultTargetDuration
	}
	if c.URIPrefix == "" {
		c.URIPrefix = DefaultURIPrefix
	}
	return c
}

// EvictFunc observes segments dropped from the head of the window.
type EvictFunc func(station string, evicted []Segment)

// SegmentStore is a bounded, FIFO-evicted window of segments for one station.
// Segments are held in ascending sequence order with no gaps.
type SegmentStore struct {
	cfg StoreConfig
	now func() time.Time

	mu      sync.RWMutex
	segs    []Segment
	nextSeq int64
	onEvict EvictFunc
}

// NewSegmentStore creates an empty store.
func NewSegmentStore(cfg StoreConfig) *SegmentStore {
	cfg = cfg.withDefaults()
	return &SegmentStore{
		cfg:  cfg,
		now:  time.Now,
		segs: make([]Segment, 0, cfg.MaxSegments+1),
	}
}

// OnEvict installs a hook invoked outside the store lock after each eviction.
func (s *SegmentStore) OnEvict(fn EvictFunc) {
	s.mu.Lock()
	s.onEvict = fn
	s.mu.Unlock()
}

// Config returns the effective configuration.
func (s *SegmentStore) Config() StoreConfig {
	return s.cfg
}

// Append stores one segment under the next sequence number.
func (s *SegmentStore) Append(payload []byte, duration time.Duration, fragmentID, title string) Segment {
	return s.AppendFragment([][]byte{payload}, duration, fragmentID, title)[0]
}

// AppendFragment stores chunks as consecutive segments in a single critical section,
// so the segments of one content item are never interleaved with another producer's.
func (s *SegmentStore) AppendFragment(chunks [][]byte, duration time.Duration, fragmentID, title string) []Segment {
	if len(chunks) == 0 {
		return nil
	}
	if duration <= 0 {
		duration = s.cfg.TargetDuration
	}

	created := s.now()
	added := make([]Segment, len(chunks))

	s.mu.Lock()
	for i, chunk := range chunks {
		seg := Segment{
			Sequence:   s.nextSeq,
			Payload:    chunk,
			Duration:   duration,
			CreatedAt:  created,
			FragmentID: fragmentID,
			Title:      title,
		}
		s.nextSeq++
		s.segs = append(s.segs, seg)
		added[i] = seg
	}
	evicted := s.trimLocked()
	size := len(s.segs)
	hook := s.onEvict
	s.mu.Unlock()

	telemetry.HLSSegmentsAppended.WithLabelValues(s.cfg.Station).Add(float64(len(added)))
	telemetry.HLSWindowSize.WithLabelValues(s.cfg.Station).Set(float64(size))
	if len(evicted) > 0 {
		telemetry.HLSSegmentsEvicted.WithLabelValues(s.cfg.Station).Add(float64(len(evicted)))
		if hook != nil {
			hook(s.cfg.Station, evicted)
		}
	}
	return added
}

// trimLocked drops the lowest sequences until the window fits. Caller holds mu.
func (s *SegmentStore) trimLocked() []Segment {
	over := len(s.segs) - s.cfg.MaxSegments
	if over <= 0 {
		return nil
	}
	evicted := make([]Segment, over)
	copy(evicted, s.segs[:over])
	// Zero the dropped slots so payloads can be collected before the backing array is reallocated.
	for i := 0; i < over; i++ {
		s.segs[i] = Segment{}
	}
	s.segs = s.segs[over:]
	return evicted
}

// Get returns the segment with the given sequence if it is still in the window.
func (s *SegmentStore) Get(seq int64) (Segment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.segs) == 0 {
		return Segment{}, false
	}
	idx := seq - s.segs[0].Sequence
	if idx < 0 || idx >= int64(len(s.segs)) {
		return Segment{}, false
	}
	return s.segs[idx], true
}

// WindowBounds returns the first and last visible sequence. ok is false for an empty window.
func (s *SegmentStore) WindowBounds() (first, last int64, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.segs) == 0 {
		return s.nextSeq, s.nextSeq - 1, false
	}
	return s.segs[0].Sequence, s.segs[len(s.segs)-1].Sequence, true
}

// FirstSequence returns the first visible sequence, or the next sequence to be assigned
// when the window is empty.
func (s *SegmentStore) FirstSequence() int64 {
	first, _, _ := s.WindowBounds()
	return first
}

// NextSequence returns the sequence the next append will receive.
func (s *SegmentStore) NextSequence() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextSeq
}

// Len returns the number of visible segments.
func (s *SegmentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segs)
}

// Snapshot copies the current window. Payload slices are shared, they are never mutated.
func (s *SegmentStore) Snapshot() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Segment, len(s.segs))
	copy(out, s.segs)
	return out
}
