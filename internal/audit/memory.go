/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
)

// MemoryStore keeps one note per station, kind and key. Writing the same triple again
// replaces the content.
type MemoryStore struct {
	db  *gorm.DB
	bus *events.Bus
}

// NewMemoryStore creates a store. bus may be nil.
func NewMemoryStore(db *gorm.DB, bus *events.Bus) *MemoryStore {
	return &MemoryStore{db: db, bus: bus}
}

// Record upserts entry.
func (m *MemoryStore) Record(ctx context.Context, entry models.MemoryEntry) error {
	if entry.StationID == "" {
		return fmt.Errorf("memory entry without station")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	now := time.Now()
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	err := m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "station_id"}, {Name: "kind"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("record memory for %s: %w", entry.StationID, err)
	}

	if m.bus != nil {
		m.bus.Publish(events.EventMemoryRecorded, events.Payload{
			"station_id": entry.StationID,
			"kind":       string(entry.Kind),
			"key":        entry.Key,
		})
	}
	return nil
}

// Recent returns a station's notes, most recently updated first.
func (m *MemoryStore) Recent(ctx context.Context, stationID string, limit int) ([]models.MemoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []models.MemoryEntry
	err := m.db.WithContext(ctx).
		Where("station_id = ?", stationID).
		Order("updated_at DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}
