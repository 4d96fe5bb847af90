/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "strings"

// ContentType classifies a content item on air.
type ContentType string

const (
	ContentSong    ContentType = "song"
	ContentAd      ContentType = "ad"
	ContentJingle  ContentType = "jingle"
	ContentNews    ContentType = "news"
	ContentWeather ContentType = "weather"
	ContentMix     ContentType = "mix"
)

// ParseContentType maps free-form producer input to a ContentType. Unknown values are songs.
func ParseContentType(s string) ContentType {
	switch ct := ContentType(strings.ToLower(strings.TrimSpace(s))); ct {
	case ContentAd, ContentJingle, ContentNews, ContentWeather, ContentMix:
		return ct
	default:
		return ContentSong
	}
}

// ContentMeta describes the item a fragment range was produced from.
type ContentMeta struct {
	Title  string      `json:"title"`
	Artist string      `json:"artist,omitempty"`
	Type   ContentType `json:"type"`
}

// Display formats metadata the way the now-playing ticker shows it.
func (m ContentMeta) Display() string {
	if m.Artist == "" {
		return m.Title
	}
	return m.Artist + " - " + m.Title
}
