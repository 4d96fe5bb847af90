// Package state keeps a short in-memory log of scheduler firings for dashboards.
package state

import (
	"sync"
	"time"
)

// Firing is one executed job.
type Firing struct {
	Key       string    `json:"key"`
	Job       string    `json:"job"`
	StationID string    `json:"station_id"`
	Action    string    `json:"action,omitempty"`
	FiredAt   time.Time `json:"fired_at"`
	Result    string    `json:"result"`
	Error     string    `json:"error,omitempty"`
}

// Store is a bounded ring of recent firings.
type Store struct {
	mu     sync.RWMutex
	limit  int
	recent []Firing
}

// NewStore keeps at most limit firings.
func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 128
	}
	return &Store{limit: limit, recent: make([]Firing, 0, limit)}
}

// Add records a firing, dropping the oldest beyond the limit.
func (s *Store) Add(f Firing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == s.limit {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:len(s.recent)-1]
	}
	s.recent = append(s.recent, f)
}

// Recent returns a snapshot, oldest first.
func (s *Store) Recent() []Firing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Firing, len(s.recent))
	copy(out, s.recent)
	return out
}

// ForStation returns the firings of one station.
func (s *Store) ForStation(stationID string) []Firing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Firing
	for _, f := range s.recent {
		if f.StationID == stationID {
			out = append(out, f)
		}
	}
	return out
}

// Prune removes entries older than cutoff.
func (s *Store) Prune(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := s.recent[:0]
	for _, f := range s.recent {
		if f.FiredAt.After(cutoff) {
			filtered = append(filtered, f)
		}
	}
	s.recent = filtered
}
