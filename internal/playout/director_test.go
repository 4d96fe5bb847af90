package playout

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/playlist"
	"github.com/friendsincode/airwave/internal/station"
)

var t0 = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T, threshold int) (*Director, *station.Registry, *events.Bus) {
	t.Helper()
	bus := events.NewBus()
	reg := station.NewRegistry(station.Defaults{Store: hls.StoreConfig{MaxSegments: 20}}, bus, zerolog.Nop())
	d := NewDirector(Config{SaturationThreshold: threshold}, reg, bus, clock.NewFake(t0), zerolog.Nop())
	return d, reg, bus
}

func enqueue(t *testing.T, st *station.State, title string, dur time.Duration) {
	t.Helper()
	segs := st.Store().AppendFragment([][]byte{[]byte(title)}, dur, "", title)
	r, err := playlist.NewFragmentRange(segs, models.ContentMeta{Title: title, Type: models.ContentSong})
	if err != nil {
		t.Fatalf("range: %v", err)
	}
	if err := st.Playlist().Enqueue(r, models.PriorityHigh); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func drain(sub events.Subscriber) []events.Payload {
	var out []events.Payload
	for {
		select {
		case p := <-sub:
			out = append(out, p)
		default:
			return out
		}
	}
}

func TestOffLineWithoutContentIsLeftAlone(t *testing.T) {
	d, reg, _ := setup(t, 0)
	st, _ := reg.GetOrCreate("quiet")

	d.Step(t0)

	if st.Status() != models.StatusOffLine {
		t.Fatalf("expected OFF_LINE, got %s", st.Status())
	}
	if len(st.History()) != 0 {
		t.Fatalf("unexpected transitions: %v", st.History())
	}
}

func TestDirectorLifecycle(t *testing.T) {
	d, reg, bus := setup(t, 0)
	nowPlaying := bus.Subscribe(events.EventNowPlaying)
	starved := bus.Subscribe(events.EventStarved)

	st, _ := reg.GetOrCreate("rock")
	enqueue(t, st, "first", 10*time.Second)

	d.Step(t0)
	if st.Status() != models.StatusOnLine {
		t.Fatalf("expected ON_LINE after first slide, got %s", st.Status())
	}
	hist := st.History()
	if len(hist) != 2 || hist[0].New != models.StatusWarmingUp || hist[1].New != models.StatusOnLine {
		t.Fatalf("unexpected history %v", hist)
	}
	got := drain(nowPlaying)
	if len(got) != 1 || got[0]["title"] != "first" || got[0]["station_id"] != "rock" {
		t.Fatalf("unexpected now playing events %v", got)
	}

	d.Step(t0.Add(5 * time.Second))
	if len(drain(nowPlaying)) != 0 {
		t.Fatal("range still airing, no slide expected")
	}

	d.Step(t0.Add(10 * time.Second))
	if st.Status() != models.StatusIdle {
		t.Fatalf("expected IDLE when starved, got %s", st.Status())
	}
	d.Step(t0.Add(15 * time.Second))
	if n := len(drain(starved)); n != 1 {
		t.Fatalf("expected one starved event, got %d", n)
	}
	if cur, ok := st.Playlist().Current(); !ok || cur.Meta.Title != "first" || !cur.Stale() {
		t.Fatal("expected stale current range to be held")
	}

	enqueue(t, st, "second", 10*time.Second)
	d.Step(t0.Add(20 * time.Second))
	if st.Status() != models.StatusOnLine {
		t.Fatalf("expected ON_LINE after resume, got %s", st.Status())
	}
	if got := drain(nowPlaying); len(got) != 1 || got[0]["title"] != "second" {
		t.Fatalf("unexpected now playing events %v", got)
	}
}

func TestSaturation(t *testing.T) {
	d, reg, _ := setup(t, 2)
	st, _ := reg.GetOrCreate("busy")
	for _, title := range []string{"a", "b", "c", "d"} {
		enqueue(t, st, title, 10*time.Second)
	}

	d.Step(t0)
	if st.Status() != models.StatusQueueSaturated {
		t.Fatalf("expected QUEUE_SATURATED with 3 pending, got %s", st.Status())
	}

	d.Step(t0.Add(10 * time.Second))
	if st.Status() != models.StatusOnLine {
		t.Fatalf("expected ON_LINE with 2 pending, got %s", st.Status())
	}
}

func TestSystemErrorIsNotTicked(t *testing.T) {
	d, reg, _ := setup(t, 0)
	st, _ := reg.GetOrCreate("broken")
	enqueue(t, st, "a", 10*time.Second)
	st.SetStatus(models.StatusSystemError)

	d.Step(t0)

	if _, ok := st.Playlist().Current(); ok {
		t.Fatal("station in SYSTEM_ERROR should not slide")
	}
	if st.Playlist().PendingCount() != 1 {
		t.Fatalf("expected content to stay pending, got %d", st.Playlist().PendingCount())
	}
}
