/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "time"

// StationStatus is the lifecycle state of a station.
type StationStatus string

const (
	StatusOffLine           StationStatus = "OFF_LINE"
	StatusWarmingUp         StationStatus = "WARMING_UP"
	StatusOnLine            StationStatus = "ON_LINE"
	StatusIdle              StationStatus = "IDLE"
	StatusQueueSaturated    StationStatus = "QUEUE_SATURATED"
	StatusWaitingForCurator StationStatus = "WAITING_FOR_CURATOR"
	StatusSystemError       StationStatus = "SYSTEM_ERROR"
)

// Broadcasting reports whether the station is producing audio for listeners.
func (s StationStatus) Broadcasting() bool {
	switch s {
	case StatusOnLine, StatusWarmingUp, StatusQueueSaturated, StatusIdle:
		return true
	default:
		return false
	}
}

// StatusChange is one entry in a station's transition history.
type StatusChange struct {
	At  time.Time     `json:"at"`
	Old StationStatus `json:"old"`
	New StationStatus `json:"new"`
}
