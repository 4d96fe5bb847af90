/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"fmt"
	"strings"
)

// Priority orders queued content. Lower values are more urgent.
type Priority int

const (
	// PriorityHardInterrupt preempts everything, including content already cued as next.
	PriorityHardInterrupt Priority = 0

	// PriorityInterrupt jumps ahead of regular programming but leaves the cue alone.
	PriorityInterrupt Priority = 1

	// PriorityHigh is regular programming that should air soon.
	PriorityHigh Priority = 2

	// PriorityLast is filler played when nothing else is pending.
	PriorityLast Priority = 3
)

// Priorities lists every tier from most to least urgent.
var Priorities = []Priority{PriorityHardInterrupt, PriorityInterrupt, PriorityHigh, PriorityLast}

// String returns a human-readable priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHardInterrupt:
		return "HARD_INTERRUPT"
	case PriorityInterrupt:
		return "INTERRUPT"
	case PriorityHigh:
		return "HIGH"
	case PriorityLast:
		return "LAST"
	default:
		return fmt.Sprintf("PRIORITY(%d)", int(p))
	}
}

// Valid reports whether p is one of the known tiers.
func (p Priority) Valid() bool {
	return p >= PriorityHardInterrupt && p <= PriorityLast
}

// MoreUrgentThan reports whether p should air before other.
func (p Priority) MoreUrgentThan(other Priority) bool {
	return p < other
}

// ParsePriority accepts tier names in any case, e.g. "hard_interrupt" or "HIGH".
func ParsePriority(s string) (Priority, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	name = strings.ReplaceAll(name, "-", "_")
	for _, p := range Priorities {
		if p.String() == name {
			return p, nil
		}
	}
	return PriorityLast, fmt.Errorf("unknown priority %q", s)
}
