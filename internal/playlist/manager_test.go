/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/models"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func newTestRange(t *testing.T, store *hls.SegmentStore, title string, segments int) *FragmentRange {
	t.Helper()
	chunks := make([][]byte, segments)
	for i := range chunks {
		chunks[i] = []byte(title)
	}
	segs := store.AppendFragment(chunks, 10*time.Second, "", title)
	r, err := NewFragmentRange(segs, models.ContentMeta{Title: title, Type: models.ContentSong})
	if err != nil {
		t.Fatalf("NewFragmentRange: %v", err)
	}
	return r
}

func newTestManager() *Manager {
	return NewManager(Config{Station: "test"}, zerolog.Nop())
}

func TestKeySetSlideKeepsConsecutivePair(t *testing.T) {
	for k := 0; k < 50; k++ {
		ks := NewKeySet()
		for i := 0; i < k; i++ {
			ks.Slide()
		}
		cur, next := ks.Pair()
		if cur != next-1 {
			t.Fatalf("after %d slides current=%d next=%d", k, cur, next)
		}
		if cur%2 != (next+1)%2 {
			t.Fatalf("after %d slides pair breaks two-slot ring parity", k)
		}
	}
}

func TestKeySetConcurrentReadersSeeConsistentPair(t *testing.T) {
	ks := NewKeySet()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			ks.Slide()
		}
	}()
	bad := make(chan [2]int64, 1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if cur, next := ks.Pair(); cur != next-1 {
				select {
				case bad <- [2]int64{cur, next}:
				default:
				}
			}
		}
	}()
	wg.Wait()
	close(bad)
	if pair, ok := <-bad; ok {
		t.Fatalf("torn pair observed: %v", pair)
	}
}

func TestNewFragmentRange(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	r := newTestRange(t, store, "song", 3)
	if r.Start != 0 || r.End != 2 {
		t.Errorf("range = [%d..%d], want [0..2]", r.Start, r.End)
	}
	if r.Duration != 30*time.Second {
		t.Errorf("Duration = %s, want 30s", r.Duration)
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}

	if _, err := NewFragmentRange(nil, models.ContentMeta{}); !errors.Is(err, ErrEmptyRange) {
		t.Errorf("err = %v, want ErrEmptyRange", err)
	}
	gap := []hls.Segment{{Sequence: 1}, {Sequence: 3}}
	if _, err := NewFragmentRange(gap, models.ContentMeta{}); !errors.Is(err, ErrNonContiguous) {
		t.Errorf("err = %v, want ErrNonContiguous", err)
	}
}

func TestHardInterruptAirsFirst(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := newTestManager()

	last := newTestRange(t, store, "last", 1)
	high := newTestRange(t, store, "high", 1)
	hard := newTestRange(t, store, "hard", 1)

	for _, q := range []struct {
		r *FragmentRange
		p models.Priority
	}{{last, models.PriorityLast}, {high, models.PriorityHigh}, {hard, models.PriorityHardInterrupt}} {
		if err := m.Enqueue(q.r, q.p); err != nil {
			t.Fatalf("Enqueue(%s): %v", q.r.Meta.Title, err)
		}
	}

	var order []string
	now := t0
	for i := 0; i < 3; i++ {
		res := m.Tick(now)
		if !res.Slid {
			t.Fatalf("tick %d did not slide", i)
		}
		order = append(order, res.Current.Meta.Title)
		now = res.ExpectedEnd
	}

	want := []string{"hard", "high", "last"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("air order = %v, want %v", order, want)
		}
	}
}

func TestHardInterruptDisplacesCuedRange(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := newTestManager()

	a := newTestRange(t, store, "a", 1)
	b := newTestRange(t, store, "b", 1)
	_ = m.Enqueue(a, models.PriorityHigh)
	_ = m.Enqueue(b, models.PriorityHigh)

	res := m.Tick(t0)
	if res.Current != a {
		t.Fatalf("current = %v, want a", res.Current)
	}
	if cued, _ := m.Cued(); cued != b {
		t.Fatalf("cued = %v, want b", cued)
	}

	hard := newTestRange(t, store, "hard", 1)
	if err := m.Enqueue(hard, models.PriorityHardInterrupt); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if cued, _ := m.Cued(); cued != hard {
		t.Fatalf("cued = %v, want hard", cued)
	}

	// The hard interrupt cuts the current range without waiting for it to end.
	res = m.Tick(t0.Add(time.Second))
	if !res.Slid || res.Current != hard {
		t.Fatalf("tick = %+v, want hard on air", res)
	}
	if !a.Stale() {
		t.Error("cut range should be stale")
	}
	if cued, _ := m.Cued(); cued != b {
		t.Errorf("cued = %v, want displaced range b back in line", cued)
	}
}

func TestKeepCurrentOnHardInterrupt(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := NewManager(Config{Station: "test", KeepCurrentOnHardInterrupt: true}, zerolog.Nop())

	a := newTestRange(t, store, "a", 1)
	_ = m.Enqueue(a, models.PriorityHigh)
	m.Tick(t0)

	_ = m.Enqueue(newTestRange(t, store, "hard", 1), models.PriorityHardInterrupt)
	if res := m.Tick(t0.Add(time.Second)); res.Slid {
		t.Fatal("current range should keep airing until it ends")
	}
	if res := m.Tick(t0.Add(10 * time.Second)); !res.Slid || res.Current.Meta.Title != "hard" {
		t.Fatalf("tick = %+v, want hard on air", res)
	}
}

func TestFIFOWithinTier(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := newTestManager()
	titles := []string{"one", "two", "three", "four"}
	for _, title := range titles {
		_ = m.Enqueue(newTestRange(t, store, title, 1), models.PriorityHigh)
	}

	now := t0
	for _, want := range titles {
		res := m.Tick(now)
		if res.Current == nil || res.Current.Meta.Title != want {
			t.Fatalf("on air = %v, want %s", res.Current, want)
		}
		now = res.ExpectedEnd
	}
}

func TestTickBeforeEndDoesNotSlide(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := newTestManager()
	_ = m.Enqueue(newTestRange(t, store, "a", 3), models.PriorityHigh)
	_ = m.Enqueue(newTestRange(t, store, "b", 1), models.PriorityHigh)

	first := m.Tick(t0)
	if want := t0.Add(30 * time.Second); !first.ExpectedEnd.Equal(want) {
		t.Fatalf("ExpectedEnd = %s, want %s", first.ExpectedEnd, want)
	}
	if res := m.Tick(t0.Add(29 * time.Second)); res.Slid {
		t.Fatal("slid before the current range ended")
	}
	if res := m.Tick(t0.Add(30 * time.Second)); !res.Slid || res.Current.Meta.Title != "b" {
		t.Fatalf("tick at end = %+v, want b", res)
	}
}

func TestStarvedHoldsStaleCurrent(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := newTestManager()

	if res := m.Tick(t0); !res.Starved || res.Current != nil {
		t.Fatalf("empty tick = %+v, want starved with no current", res)
	}

	a := newTestRange(t, store, "a", 1)
	_ = m.Enqueue(a, models.PriorityHigh)
	m.Tick(t0)

	res := m.Tick(t0.Add(time.Minute))
	if !res.Starved || res.Slid {
		t.Fatalf("tick = %+v, want starved without slide", res)
	}
	if res.Current != a || !a.Stale() {
		t.Fatal("starved manager should hold the stale current range")
	}
	if _, ok := m.NowPlaying(); ok {
		t.Error("NowPlaying should be empty while starved")
	}
	if !m.ExpectedEnd().IsZero() {
		t.Error("ExpectedEnd should be unset while starved")
	}
	cur, _ := m.Keys().Pair()

	b := newTestRange(t, store, "b", 1)
	_ = m.Enqueue(b, models.PriorityLast)
	res = m.Tick(t0.Add(time.Minute + time.Second))
	if !res.Slid || res.Current != b {
		t.Fatalf("tick = %+v, want b after refill", res)
	}
	if newCur, _ := m.Keys().Pair(); newCur != cur+1 {
		t.Errorf("cursor = %d, want %d", newCur, cur+1)
	}
}

func TestFillerBufferCap(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := NewManager(Config{Station: "test", FillerBufferMax: 2}, zerolog.Nop())

	for i := 0; i < 2; i++ {
		if err := m.Enqueue(newTestRange(t, store, "filler", 1), models.PriorityLast); err != nil {
			t.Fatalf("Enqueue %d: %v", i, err)
		}
	}
	if err := m.Enqueue(newTestRange(t, store, "filler", 1), models.PriorityLast); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("err = %v, want ErrBufferFull", err)
	}
	if err := m.Enqueue(newTestRange(t, store, "news", 1), models.PriorityHigh); err != nil {
		t.Fatalf("higher tiers are not capped: %v", err)
	}
}

func TestEnqueueBuiltSkipsBuildWhenFull(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := NewManager(Config{Station: "test", FillerBufferMax: 1}, zerolog.Nop())

	build := func() (*FragmentRange, error) {
		return newTestRange(t, store, "filler", 2), nil
	}
	if _, err := m.EnqueueBuilt(models.PriorityLast, build); err != nil {
		t.Fatalf("EnqueueBuilt: %v", err)
	}
	if store.Len() != 2 {
		t.Fatalf("window = %d, want 2", store.Len())
	}

	if _, err := m.EnqueueBuilt(models.PriorityLast, build); !errors.Is(err, ErrBufferFull) {
		t.Fatalf("err = %v, want ErrBufferFull", err)
	}
	if store.Len() != 2 {
		t.Errorf("rejected range still appended: window = %d", store.Len())
	}

	r, err := m.EnqueueBuilt(models.PriorityHigh, func() (*FragmentRange, error) {
		return newTestRange(t, store, "news", 1), nil
	})
	if err != nil || r == nil {
		t.Fatalf("high priority: %v", err)
	}
	if m.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2", m.PendingCount())
	}

	boom := errors.New("boom")
	if _, err := m.EnqueueBuilt(models.PriorityHigh, func() (*FragmentRange, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Errorf("err = %v, want build error", err)
	}
	if _, err := m.EnqueueBuilt(models.Priority(42), build); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("err = %v, want ErrInvalidPriority", err)
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	m := newTestManager()
	if err := m.Enqueue(nil, models.PriorityHigh); !errors.Is(err, ErrNilRange) {
		t.Errorf("err = %v, want ErrNilRange", err)
	}
	r := &FragmentRange{ID: "x"}
	if err := m.Enqueue(r, models.Priority(42)); !errors.Is(err, ErrInvalidPriority) {
		t.Errorf("err = %v, want ErrInvalidPriority", err)
	}
}

func TestStatsAndHistory(t *testing.T) {
	store := hls.NewSegmentStore(hls.StoreConfig{MaxSegments: 100})
	m := NewManager(Config{Station: "alpha", HistorySize: 1}, zerolog.Nop())
	for _, title := range []string{"a", "b", "c", "d"} {
		_ = m.Enqueue(newTestRange(t, store, title, 1), models.PriorityHigh)
	}

	now := t0
	for i := 0; i < 3; i++ {
		now = m.Tick(now).ExpectedEnd
	}

	st := m.Stats()
	if st.Brand != "alpha" {
		t.Errorf("Brand = %q, want alpha", st.Brand)
	}
	if st.CurrentlyPlaying == nil || st.CurrentlyPlaying.Meta.Title != "c" {
		t.Fatalf("CurrentlyPlaying = %+v, want c", st.CurrentlyPlaying)
	}
	if len(st.Played) != 1 || st.Played[0].Meta.Title != "b" || !st.Played[0].Stale {
		t.Errorf("Played = %+v, want only stale b", st.Played)
	}
	if len(st.Pending) != 1 || st.Pending[0].Meta.Title != "d" {
		t.Errorf("Pending = %+v, want d", st.Pending)
	}
	if got := m.PendingCount(); got != 1 {
		t.Errorf("PendingCount() = %d, want 1", got)
	}
}
