/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/friendsincode/airwave/internal/telemetry"
)

const startTimeKey = "airwave:start_time"

// registrar is satisfied by the callback handles gorm returns from Before and After.
type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// RegisterCallbacks records latency and errors for every query, create, update and delete.
func RegisterCallbacks(db *gorm.DB) error {
	cb := db.Callback()
	if err := register(cb.Query().Before("gorm:query"), cb.Query().After("gorm:query"), "query"); err != nil {
		return err
	}
	if err := register(cb.Create().Before("gorm:create"), cb.Create().After("gorm:create"), "create"); err != nil {
		return err
	}
	if err := register(cb.Update().Before("gorm:update"), cb.Update().After("gorm:update"), "update"); err != nil {
		return err
	}
	return register(cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete"), "delete")
}

func register(before, after registrar, operation string) error {
	if err := before.Register("telemetry:before_"+operation, beforeCallback); err != nil {
		return err
	}
	return after.Register("telemetry:after_"+operation, afterCallback(operation))
}

func beforeCallback(db *gorm.DB) {
	db.InstanceSet(startTimeKey, time.Now())
}

func afterCallback(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation).Inc()
		}
	}
}

// UpdateConnectionMetrics refreshes the connection pool gauge.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsOpen.Set(float64(sqlDB.Stats().OpenConnections))
}
