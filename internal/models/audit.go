/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// MemoryKind classifies station memory entries written by scheduled jobs.
type MemoryKind string

const (
	MemoryShiftStarted MemoryKind = "SHIFT_STARTED"
	MemoryShiftEnding  MemoryKind = "SHIFT_ENDING"
	MemoryShiftEnded   MemoryKind = "SHIFT_ENDED"
	MemoryEvent        MemoryKind = "EVENT"
)

// MemoryEntry is a note the station keeps about recent on-air happenings.
// One row per (station, kind, key); later writes replace the content.
type MemoryEntry struct {
	ID        string     `gorm:"type:varchar(36);primaryKey"`
	StationID string     `gorm:"type:varchar(128);uniqueIndex:idx_memory_key"`
	Kind      MemoryKind `gorm:"type:varchar(32);uniqueIndex:idx_memory_key"`
	Key       string     `gorm:"type:varchar(128);uniqueIndex:idx_memory_key"`
	Content   string     `gorm:"type:text"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name.
func (MemoryEntry) TableName() string { return "station_memories" }

// StatusChangeRecord persists one station status transition.
type StatusChangeRecord struct {
	ID         string        `gorm:"type:varchar(36);primaryKey"`
	StationID  string        `gorm:"type:varchar(128);index:idx_status_station_time"`
	OldStatus  StationStatus `gorm:"type:varchar(32)"`
	NewStatus  StationStatus `gorm:"type:varchar(32)"`
	ChangedAt  time.Time     `gorm:"index:idx_status_station_time"`
	InstanceID string        `gorm:"type:varchar(64)"`
	CreatedAt  time.Time
}

// TableName pins the table name.
func (StatusChangeRecord) TableName() string { return "station_status_changes" }
