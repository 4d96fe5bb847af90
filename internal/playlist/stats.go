package playlist

import (
	"time"

	"github.com/friendsincode/airwave/internal/models"
)

// RangeInfo is a read-only view of a FragmentRange.
type RangeInfo struct {
	ID       string             `json:"id"`
	Meta     models.ContentMeta `json:"meta"`
	Priority string             `json:"priority,omitempty"`
	Start    int64              `json:"start"`
	End      int64              `json:"end"`
	Duration time.Duration      `json:"duration"`
	Stale    bool               `json:"stale"`
}

// Stats is a point-in-time snapshot of a manager for dashboards.
type Stats struct {
	Brand            string      `json:"brand"`
	Played           []RangeInfo `json:"played"`
	Pending          []RangeInfo `json:"pending"`
	CurrentlyPlaying *RangeInfo  `json:"currently_playing,omitempty"`
	ExpectedEnd      time.Time   `json:"expected_end,omitempty"`
	Starved          bool        `json:"starved"`
}

func infoOf(r *FragmentRange, p *models.Priority) RangeInfo {
	info := RangeInfo{
		ID:       r.ID,
		Meta:     r.Meta,
		Start:    r.Start,
		End:      r.End,
		Duration: r.Duration,
		Stale:    r.Stale(),
	}
	if p != nil {
		info.Priority = p.String()
	}
	return info
}

// Stats returns played, pending (cued range first, then tiers in airing order) and the
// range on air.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cur, next := m.keys.Pair()
	st := Stats{
		Brand:       m.cfg.Station,
		Played:      make([]RangeInfo, 0, len(m.played)),
		ExpectedEnd: m.expectedEnd,
		Starved:     m.starved,
	}
	for _, r := range m.played {
		st.Played = append(st.Played, infoOf(r, nil))
	}
	if e, ok := m.slots[cur]; ok && m.nowPlaying != nil {
		info := infoOf(e.r, &e.priority)
		st.CurrentlyPlaying = &info
	}
	if e, ok := m.slots[next]; ok {
		st.Pending = append(st.Pending, infoOf(e.r, &e.priority))
	}
	for i := range m.tiers {
		for _, e := range m.tiers[i] {
			p := e.priority
			st.Pending = append(st.Pending, infoOf(e.r, &p))
		}
	}
	return st
}
