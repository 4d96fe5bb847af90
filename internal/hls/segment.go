package hls

import "time"

// Segment is one immutable unit of media in a station window.
type Segment struct {
	Sequence   int64
	Payload    []byte
	Duration   time.Duration
	CreatedAt  time.Time
	FragmentID string
	Title      string
}

// Seconds returns the nominal duration in seconds.
func (s Segment) Seconds() float64 {
	return s.Duration.Seconds()
}

// Size returns the payload length in bytes.
func (s Segment) Size() int {
	return len(s.Payload)
}
