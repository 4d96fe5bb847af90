/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version carries build metadata.
package version

import (
	"fmt"
	"runtime"
)

// Set at build time via ldflags:
//
//	-X github.com/friendsincode/airwave/internal/version.Version=X.Y.Z
var (
	Version = "0.1.0"
	Commit  = "unknown"
)

// Info is the payload served by /version.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	GoVersion string `json:"go_version"`
}

// Get returns the running build's metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}

func (i Info) String() string {
	return fmt.Sprintf("airwave %s (%s, %s)", i.Version, i.Commit, i.GoVersion)
}
