/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist decides what a station airs next. Ranges wait in priority tiers and a
// two-slot cursor tracks the range on air and the range cued behind it.
package playlist

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/telemetry"
)

const DefaultHistorySize = 2

// Config tunes a Manager.
type Config struct {
	Station string

	// HistorySize is how many consumed ranges the played list keeps.
	HistorySize int

	// FillerBufferMax caps pending LAST ranges. Zero means unbounded.
	FillerBufferMax int

	// KeepCurrentOnHardInterrupt lets the on-air range finish before a hard interrupt airs.
	// By default a hard interrupt cuts the current range at the next tick.
	KeepCurrentOnHardInterrupt bool
}

type entry struct {
	r        *FragmentRange
	priority models.Priority
	arrival  uint64
	queuedAt time.Time
}

// TickResult reports what a tick did.
type TickResult struct {
	Slid        bool
	Starved     bool
	Current     *FragmentRange
	ExpectedEnd time.Time
}

// Manager holds one station's pending content and its current/next cursor.
type Manager struct {
	cfg    Config
	logger zerolog.Logger
	keys   *KeySet
	now    func() time.Time

	mu          sync.RWMutex
	tiers       [len(tierOrder)][]entry
	arrivals    uint64
	slots       map[int64]entry
	expectedEnd time.Time
	nowPlaying  *models.ContentMeta
	played      []*FragmentRange
	cutPending  bool
	starved     bool
}

var tierOrder = [...]models.Priority{
	models.PriorityHardInterrupt,
	models.PriorityInterrupt,
	models.PriorityHigh,
	models.PriorityLast,
}

// NewManager creates an empty manager.
func NewManager(cfg Config, logger zerolog.Logger) *Manager {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With().Str("component", "playlist").Str("station", cfg.Station).Logger(),
		keys:   NewKeySet(),
		now:    time.Now,
		slots:  make(map[int64]entry, 2),
	}
}

// Keys exposes the cursor for read-only observers.
func (m *Manager) Keys() *KeySet {
	return m.keys
}

// Enqueue adds r to the tier for priority. Within a tier ranges air in arrival order.
// A hard interrupt displaces whatever is cued, which returns to the head of its own tier.
func (m *Manager) Enqueue(r *FragmentRange, priority models.Priority) error {
	if r == nil {
		return ErrNilRange
	}
	if !priority.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPriority, int(priority))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.admitLocked(priority); err != nil {
		return err
	}
	m.insertLocked(r, priority)
	return nil
}

// EnqueueBuilt checks that priority has room and only then calls build, enqueueing the range
// it returns. A rejected priority never reaches build, so segments the queue would refuse are
// never appended to the window. build runs under the manager lock and must not call back into
// the manager.
func (m *Manager) EnqueueBuilt(priority models.Priority, build func() (*FragmentRange, error)) (*FragmentRange, error) {
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPriority, int(priority))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.admitLocked(priority); err != nil {
		return nil, err
	}
	r, err := build()
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNilRange
	}
	m.insertLocked(r, priority)
	return r, nil
}

func (m *Manager) admitLocked(priority models.Priority) error {
	if priority == models.PriorityLast && m.cfg.FillerBufferMax > 0 && len(m.tiers[priority]) >= m.cfg.FillerBufferMax {
		return fmt.Errorf("%w: %d pending", ErrBufferFull, len(m.tiers[priority]))
	}
	return nil
}

func (m *Manager) insertLocked(r *FragmentRange, priority models.Priority) {
	m.arrivals++
	e := entry{r: r, priority: priority, arrival: m.arrivals, queuedAt: m.now()}

	if priority == models.PriorityHardInterrupt {
		next := m.keys.Next()
		if cued, ok := m.slots[next]; ok && cued.priority != models.PriorityHardInterrupt {
			m.tiers[cued.priority] = append([]entry{cued}, m.tiers[cued.priority]...)
			m.slots[next] = e
		} else {
			m.tiers[priority] = append(m.tiers[priority], e)
		}
		if !m.cfg.KeepCurrentOnHardInterrupt {
			m.cutPending = true
		}
		m.logger.Warn().Str("range", r.String()).Msg("hard interrupt queued")
	} else {
		m.tiers[priority] = append(m.tiers[priority], e)
		m.logger.Debug().Str("range", r.String()).Str("priority", priority.String()).Msg("range queued")
	}

	m.updatePendingGaugesLocked()
}

// Tick advances the cursor when the current range has ended at or before now.
// With nothing cued or pending the stale current range is held and Starved is reported.
func (m *Manager) Tick(now time.Time) TickResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, next := m.keys.Pair()
	current, hasCurrent := m.slots[cur]

	if hasCurrent && !m.cutPending && !m.expectedEnd.IsZero() && now.Before(m.expectedEnd) {
		return TickResult{Current: current.r, ExpectedEnd: m.expectedEnd}
	}

	if _, ok := m.slots[next]; !ok {
		if e, ok := m.popLocked(); ok {
			m.slots[next] = e
		}
	}

	cued, ok := m.slots[next]
	if !ok {
		res := TickResult{Starved: true}
		if hasCurrent {
			current.r.MarkStale()
			res.Current = current.r
		}
		m.expectedEnd = time.Time{}
		m.nowPlaying = nil
		m.cutPending = false
		if !m.starved {
			m.starved = true
			telemetry.PlaylistStarvedTotal.WithLabelValues(m.cfg.Station).Inc()
			m.logger.Warn().Msg("no content pending, holding current range")
		}
		return res
	}

	if hasCurrent {
		current.r.MarkStale()
		delete(m.slots, cur)
		m.retireLocked(current.r)
	}

	_, newNext := m.keys.Slide()
	m.expectedEnd = now.Add(cued.r.Duration)
	meta := cued.r.Meta
	m.nowPlaying = &meta
	m.cutPending = false
	m.starved = false

	if e, ok := m.popLocked(); ok {
		m.slots[newNext] = e
	}
	m.updatePendingGaugesLocked()
	telemetry.PlaylistSlidesTotal.WithLabelValues(m.cfg.Station).Inc()

	m.logger.Info().
		Str("range", cued.r.String()).
		Str("priority", cued.priority.String()).
		Time("expected_end", m.expectedEnd).
		Msg("now playing")

	return TickResult{Slid: true, Current: cued.r, ExpectedEnd: m.expectedEnd}
}

// popLocked removes the most urgent pending entry. Caller holds mu.
func (m *Manager) popLocked() (entry, bool) {
	for i := range m.tiers {
		if len(m.tiers[i]) == 0 {
			continue
		}
		e := m.tiers[i][0]
		m.tiers[i][0] = entry{}
		m.tiers[i] = m.tiers[i][1:]
		return e, true
	}
	return entry{}, false
}

// retireLocked moves r onto the played list and drops the oldest stale ranges beyond
// HistorySize. Caller holds mu.
func (m *Manager) retireLocked(r *FragmentRange) {
	m.played = append(m.played, r)
	if over := len(m.played) - m.cfg.HistorySize; over > 0 {
		m.played = append([]*FragmentRange(nil), m.played[over:]...)
	}
}

func (m *Manager) updatePendingGaugesLocked() {
	var counts [len(tierOrder)]int
	if cued, ok := m.slots[m.keys.Next()]; ok {
		counts[cued.priority]++
	}
	for i, p := range tierOrder {
		counts[i] += len(m.tiers[i])
		telemetry.PlaylistPending.WithLabelValues(m.cfg.Station, p.String()).Set(float64(counts[i]))
	}
}

// Current returns the range in the current slot, which may be stale while starved.
func (m *Manager) Current() (*FragmentRange, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.slots[m.keys.Current()]
	return e.r, ok
}

// Cued returns the range waiting in the next slot.
func (m *Manager) Cued() (*FragmentRange, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.slots[m.keys.Next()]
	return e.r, ok
}

// NowPlaying returns metadata of the range on air. ok is false when nothing is airing.
func (m *Manager) NowPlaying() (models.ContentMeta, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.nowPlaying == nil {
		return models.ContentMeta{}, false
	}
	return *m.nowPlaying, true
}

// ExpectedEnd returns when the current range should finish. Zero means unset.
func (m *Manager) ExpectedEnd() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expectedEnd
}

// PendingCount counts ranges not yet on air, including the cued one.
func (m *Manager) PendingCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	if _, ok := m.slots[m.keys.Next()]; ok {
		n++
	}
	for i := range m.tiers {
		n += len(m.tiers[i])
	}
	return n
}

// Starved reports whether the last tick found nothing to air.
func (m *Manager) Starved() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.starved
}
