/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/models"
)

var (
	ErrEmptyRange      = errors.New("fragment range has no segments")
	ErrNonContiguous   = errors.New("fragment range segments are not contiguous")
	ErrInvalidPriority = errors.New("invalid priority")
	ErrNilRange        = errors.New("nil fragment range")
	ErrBufferFull      = errors.New("filler buffer full")
)

// FragmentRange is a contiguous run of segments carrying one content item.
type FragmentRange struct {
	ID       string
	Start    int64
	End      int64
	Duration time.Duration
	Meta     models.ContentMeta

	stale atomic.Bool
}

// NewFragmentRange seals segs into a range. Segments must be ascending with no gaps.
func NewFragmentRange(segs []hls.Segment, meta models.ContentMeta) (*FragmentRange, error) {
	if len(segs) == 0 {
		return nil, ErrEmptyRange
	}
	var total time.Duration
	for i, seg := range segs {
		if i > 0 && seg.Sequence != segs[i-1].Sequence+1 {
			return nil, fmt.Errorf("%w: %d follows %d", ErrNonContiguous, seg.Sequence, segs[i-1].Sequence)
		}
		total += seg.Duration
	}
	id := segs[0].FragmentID
	if id == "" {
		id = uuid.NewString()
	}
	return &FragmentRange{
		ID:       id,
		Start:    segs[0].Sequence,
		End:      segs[len(segs)-1].Sequence,
		Duration: total,
		Meta:     meta,
	}, nil
}

// Len returns the number of segments in the range.
func (r *FragmentRange) Len() int {
	return int(r.End-r.Start) + 1
}

// MarkStale flags the range as fully consumed.
func (r *FragmentRange) MarkStale() {
	r.stale.Store(true)
}

// Stale reports whether the range has been consumed.
func (r *FragmentRange) Stale() bool {
	return r.stale.Load()
}

func (r *FragmentRange) String() string {
	return fmt.Sprintf("%s[%d..%d] %s", r.ID, r.Start, r.End, r.Meta.Display())
}
