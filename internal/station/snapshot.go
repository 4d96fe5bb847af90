package station

import (
	"time"

	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/playlist"
)

// Snapshot is a read-only view of a station for dashboards and jobs.
type Snapshot struct {
	ID               string                `json:"id"`
	Config           Config                `json:"config"`
	Status           models.StationStatus  `json:"status"`
	AIControlAllowed bool                  `json:"ai_control_allowed"`
	CreatedAt        time.Time             `json:"created_at"`
	StartTime        time.Time             `json:"start_time,omitempty"`
	LastAIContact    time.Time             `json:"last_ai_contact,omitempty"`
	History          []models.StatusChange `json:"history"`
	NowPlaying       *models.ContentMeta   `json:"now_playing,omitempty"`
	WindowFirst      int64                 `json:"window_first"`
	WindowLast       int64                 `json:"window_last"`
	WindowSize       int                   `json:"window_size"`
	Pending          int                   `json:"pending"`
}

// Snapshot captures the station under its own lock only.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	snap := Snapshot{
		ID:               s.id,
		Config:           s.cfg,
		Status:           s.status,
		AIControlAllowed: s.aiControlAllowed,
		CreatedAt:        s.createdAt,
		StartTime:        s.startTime,
		LastAIContact:    s.lastAIContact,
		History:          append([]models.StatusChange(nil), s.history...),
	}
	s.mu.RUnlock()

	snap.WindowFirst, snap.WindowLast, _ = s.store.WindowBounds()
	snap.WindowSize = s.store.Len()
	snap.Pending = s.playlist.PendingCount()
	if meta, ok := s.playlist.NowPlaying(); ok {
		snap.NowPlaying = &meta
	}
	return snap
}

// Stats pairs the snapshot with the playlist statistics.
type Stats struct {
	Station  Snapshot       `json:"station"`
	Playlist playlist.Stats `json:"playlist"`
}

// Stats returns the station snapshot and its playlist stats.
func (s *State) Stats() Stats {
	return Stats{Station: s.Snapshot(), Playlist: s.playlist.Stats()}
}
