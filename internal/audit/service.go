/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audit persists station status transitions and station memory.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
)

// Service records every station status change published on the bus.
type Service struct {
	db         *gorm.DB
	bus        *events.Bus
	instanceID string
	logger     zerolog.Logger
}

// NewService creates a new audit service.
func NewService(db *gorm.DB, bus *events.Bus, instanceID string, logger zerolog.Logger) *Service {
	return &Service{
		db:         db,
		bus:        bus,
		instanceID: instanceID,
		logger:     logger.With().Str("component", "audit").Logger(),
	}
}

// Start subscribes to status events and stores them until ctx ends.
func (s *Service) Start(ctx context.Context) {
	statusCh := s.bus.Subscribe(events.EventStationStatus)
	defer s.bus.Unsubscribe(events.EventStationStatus, statusCh)

	s.logger.Info().Msg("audit service started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("audit service stopping")
			return
		case payload := <-statusCh:
			s.recordStatus(ctx, payload)
		}
	}
}

func (s *Service) recordStatus(ctx context.Context, payload events.Payload) {
	rec := &models.StatusChangeRecord{InstanceID: s.instanceID}
	rec.StationID, _ = payload["station_id"].(string)
	if old, ok := payload["old"].(string); ok {
		rec.OldStatus = models.StationStatus(old)
	}
	if next, ok := payload["new"].(string); ok {
		rec.NewStatus = models.StationStatus(next)
	}
	if at, ok := payload["at"].(time.Time); ok {
		rec.ChangedAt = at
	}
	if rec.StationID == "" {
		s.logger.Warn().Interface("payload", payload).Msg("status event without station")
		return
	}

	if err := s.Log(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("station_id", rec.StationID).Msg("failed to store status change")
	}
}

// Log stores a status change directly.
func (s *Service) Log(ctx context.Context, rec *models.StatusChangeRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.ChangedAt.IsZero() {
		rec.ChangedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return err
	}
	s.logger.Debug().
		Str("station_id", rec.StationID).
		Str("from", string(rec.OldStatus)).
		Str("to", string(rec.NewStatus)).
		Msg("status change stored")
	return nil
}

// QueryFilters narrows a status history query.
type QueryFilters struct {
	StationID string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Query returns matching transitions, newest first, and the total before pagination.
func (s *Service) Query(ctx context.Context, filters QueryFilters) ([]models.StatusChangeRecord, int64, error) {
	var records []models.StatusChangeRecord
	var total int64

	query := s.db.WithContext(ctx).Model(&models.StatusChangeRecord{})
	if filters.StationID != "" {
		query = query.Where("station_id = ?", filters.StationID)
	}
	if filters.Since != nil {
		query = query.Where("changed_at >= ?", *filters.Since)
	}
	if filters.Until != nil {
		query = query.Where("changed_at <= ?", *filters.Until)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 100
	}
	query = query.Limit(limit)
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	if err := query.Order("changed_at DESC").Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
