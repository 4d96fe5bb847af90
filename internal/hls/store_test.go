package hls

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestAppendKeepsMostRecentWindow(t *testing.T) {
	tests := []struct {
		name    string
		appends int
		window  int
	}{
		{"below window", 3, 5},
		{"exactly window", 5, 5},
		{"over window", 12, 5},
		{"window of one", 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewSegmentStore(StoreConfig{Station: "test", MaxSegments: tt.window})
			for i := 0; i < tt.appends; i++ {
				store.Append([]byte{byte(i)}, 2*time.Second, "frag", "title")
			}

			want := tt.appends
			if want > tt.window {
				want = tt.window
			}
			if got := store.Len(); got != want {
				t.Fatalf("Len() = %d, want %d", got, want)
			}

			first, last, ok := store.WindowBounds()
			if !ok {
				t.Fatal("WindowBounds() ok = false")
			}
			if wantFirst := int64(tt.appends - want); first != wantFirst {
				t.Errorf("first = %d, want %d", first, wantFirst)
			}
			if wantLast := int64(tt.appends - 1); last != wantLast {
				t.Errorf("last = %d, want %d", last, wantLast)
			}

			snap := store.Snapshot()
			for i := 1; i < len(snap); i++ {
				if snap[i].Sequence != snap[i-1].Sequence+1 {
					t.Fatalf("window not contiguous at %d: %d after %d", i, snap[i].Sequence, snap[i-1].Sequence)
				}
			}
		})
	}
}

func TestGetEvictedAndFutureSequences(t *testing.T) {
	store := NewSegmentStore(StoreConfig{MaxSegments: 3})
	for i := 0; i < 5; i++ {
		store.Append([]byte("x"), time.Second, "f", "")
	}

	if _, ok := store.Get(0); ok {
		t.Error("Get(0) should miss after eviction")
	}
	if _, ok := store.Get(5); ok {
		t.Error("Get(5) should miss before production")
	}
	seg, ok := store.Get(3)
	if !ok {
		t.Fatal("Get(3) missed")
	}
	if seg.Sequence != 3 {
		t.Errorf("Sequence = %d, want 3", seg.Sequence)
	}
}

func TestEvictHookReceivesHeadSegments(t *testing.T) {
	store := NewSegmentStore(StoreConfig{Station: "alpha", MaxSegments: 2})
	var evicted []int64
	store.OnEvict(func(station string, segs []Segment) {
		if station != "alpha" {
			t.Errorf("station = %q, want alpha", station)
		}
		for _, s := range segs {
			evicted = append(evicted, s.Sequence)
		}
	})

	store.AppendFragment([][]byte{{1}, {2}, {3}, {4}}, time.Second, "f", "")

	if len(evicted) != 2 || evicted[0] != 0 || evicted[1] != 1 {
		t.Errorf("evicted = %v, want [0 1]", evicted)
	}
}

func TestManifestEmptyStore(t *testing.T) {
	store := NewSegmentStore(StoreConfig{})
	if m, ok := store.GenerateManifest(); ok || m != "" {
		t.Errorf("GenerateManifest() = %q, %v; want empty, false", m, ok)
	}
}

func TestManifestMediaSequenceTracksWindow(t *testing.T) {
	store := NewSegmentStore(StoreConfig{MaxSegments: 3, TargetDuration: 10 * time.Second})
	for i := 0; i < 7; i++ {
		store.Append([]byte("x"), 10*time.Second, "f", "")
	}

	m, ok := store.GenerateManifest()
	if !ok {
		t.Fatal("GenerateManifest() ok = false")
	}

	wantLines := []string{
		"#EXTM3U",
		"#EXT-X-VERSION:3",
		"#EXT-X-TARGETDURATION:10",
		"#EXT-X-MEDIA-SEQUENCE:4",
		"#EXTINF:10.000,",
		"segments/4.ts",
		"#EXTINF:10.000,",
		"segments/5.ts",
		"#EXTINF:10.000,",
		"segments/6.ts",
	}
	got := strings.Split(strings.TrimSpace(m), "\n")
	if len(got) != len(wantLines) {
		t.Fatalf("manifest has %d lines, want %d:\n%s", len(got), len(wantLines), m)
	}
	for i := range wantLines {
		if got[i] != wantLines[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], wantLines[i])
		}
	}
	if strings.Contains(m, "#EXT-X-ENDLIST") {
		t.Error("live manifest must not carry an end list")
	}
}

func TestManifestCarriesTitles(t *testing.T) {
	store := NewSegmentStore(StoreConfig{TargetDuration: 10 * time.Second})
	store.Append([]byte("x"), 10*time.Second, "f", "Band - Song, Live")
	store.Append([]byte("x"), 10*time.Second, "g", "Two\nLines\r\n")

	m, _ := store.GenerateManifest()
	if !strings.Contains(m, "#EXTINF:10.000,Band - Song, Live\nsegments/0.ts\n") {
		t.Errorf("title missing from EXTINF:\n%s", m)
	}
	if !strings.Contains(m, "#EXTINF:10.000,Two Lines\nsegments/1.ts\n") {
		t.Errorf("line breaks not folded:\n%s", m)
	}
}

func TestTargetDurationCoversLongestSegment(t *testing.T) {
	store := NewSegmentStore(StoreConfig{TargetDuration: 4 * time.Second})
	store.Append([]byte("x"), 6500*time.Millisecond, "f", "")

	m, _ := store.GenerateManifest()
	if !strings.Contains(m, "#EXT-X-TARGETDURATION:7\n") {
		t.Errorf("manifest target duration not raised:\n%s", m)
	}
}

func TestConcurrentAppendAndManifest(t *testing.T) {
	store := NewSegmentStore(StoreConfig{MaxSegments: 8})
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				store.AppendFragment([][]byte{{1}, {2}}, time.Second, fmt.Sprintf("w%d", w), "")
			}
		}(w)
	}

	errs := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			snap := store.Snapshot()
			for j := 1; j < len(snap); j++ {
				if snap[j].Sequence != snap[j-1].Sequence+1 {
					select {
					case errs <- fmt.Errorf("torn window: %d after %d", snap[j].Sequence, snap[j-1].Sequence):
					default:
					}
					return
				}
			}
		}
	}()
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		t.Fatal(err)
	}
	if got := store.NextSequence(); got != 4*200*2 {
		t.Errorf("NextSequence() = %d, want %d", got, 4*200*2)
	}
}

func TestParseSegmentName(t *testing.T) {
	if seq, ok := ParseSegmentName("42.ts"); !ok || seq != 42 {
		t.Errorf("ParseSegmentName(42.ts) = %d, %v", seq, ok)
	}
	if _, ok := ParseSegmentName("-1.ts"); ok {
		t.Error("negative sequence accepted")
	}
	if _, ok := ParseSegmentName("abc.ts"); ok {
		t.Error("non-numeric name accepted")
	}
}
