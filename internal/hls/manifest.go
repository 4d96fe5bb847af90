package hls

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const playlistVersion = 3

// GenerateManifest renders the current window as a live playlist (no end list).
// It returns false when the window is empty.
func (s *SegmentStore) GenerateManifest() (string, bool) {
	segs := s.Snapshot()
	if len(segs) == 0 {
		return "", false
	}
	return RenderManifest(segs, s.cfg.TargetDuration, s.cfg.URIPrefix), true
}

// RenderManifest formats segs, which must be contiguous and ascending.
func RenderManifest(segs []Segment, target time.Duration, uriPrefix string) string {
	var b strings.Builder
	b.Grow(64 + len(segs)*48)

	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(&b, "#EXT-X-VERSION:%d\n", playlistVersion)
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", targetDurationSeconds(segs, target))
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", segs[0].Sequence)
	for _, seg := range segs {
		fmt.Fprintf(&b, "#EXTINF:%.3f,%s\n", seg.Seconds(), extinfTitle(seg.Title))
		b.WriteString(SegmentURI(uriPrefix, seg.Sequence))
		b.WriteByte('\n')
	}
	return b.String()
}

var titleReplacer = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// extinfTitle keeps a title on its EXTINF line. Commas are legal there, line breaks are not.
func extinfTitle(title string) string {
	return strings.TrimSpace(titleReplacer.Replace(title))
}

// SegmentURI builds the reference path for a sequence, e.g. "segments/42.ts".
func SegmentURI(prefix string, seq int64) string {
	return prefix + strconv.FormatInt(seq, 10) + ".ts"
}

// ParseSegmentName extracts the sequence from "42.ts" or "42".
func ParseSegmentName(name string) (int64, bool) {
	seq, err := strconv.ParseInt(strings.TrimSuffix(name, ".ts"), 10, 64)
	if err != nil || seq < 0 {
		return 0, false
	}
	return seq, true
}

// targetDurationSeconds is the configured target rounded up, raised to the longest segment
// so no EXTINF exceeds it.
func targetDurationSeconds(segs []Segment, target time.Duration) int {
	longest := target
	for _, seg := range segs {
		if seg.Duration > longest {
			longest = seg.Duration
		}
	}
	return int(math.Ceil(longest.Seconds()))
}
