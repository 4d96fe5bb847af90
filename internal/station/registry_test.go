/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package station

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/hls"
	"github.com/friendsincode/airwave/internal/models"
)

func newTestRegistry(bus *events.Bus) *Registry {
	return NewRegistry(Defaults{Store: hls.StoreConfig{MaxSegments: 5}}, bus, zerolog.Nop())
}

func TestGetOrCreateConcurrentSameID(t *testing.T) {
	reg := newTestRegistry(nil)
	const callers = 64

	results := make([]*State, callers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			st, err := reg.GetOrCreate("alpha")
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			results[i] = st
		}(i)
	}
	close(start)
	wg.Wait()

	for i := 1; i < callers; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d received a different station instance", i)
		}
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestGetOrCreateInitialState(t *testing.T) {
	reg := newTestRegistry(nil)
	st, err := reg.GetOrCreate("beta")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if st.Status() != models.StatusOffLine {
		t.Errorf("Status() = %s, want OFF_LINE", st.Status())
	}
	if st.Store().Len() != 0 || st.Playlist().PendingCount() != 0 {
		t.Error("new station should start with an empty window and queue")
	}
	if st.Store().Config().MaxSegments != 5 {
		t.Errorf("MaxSegments = %d, want registry default 5", st.Store().Config().MaxSegments)
	}

	if _, err := reg.GetOrCreate("  "); !errors.Is(err, ErrInvalidID) {
		t.Errorf("err = %v, want ErrInvalidID", err)
	}
}

func TestSetStatusSameStatusIsNoop(t *testing.T) {
	reg := newTestRegistry(nil)
	st, _ := reg.GetOrCreate("alpha")

	if !st.SetStatus(models.StatusWarmingUp) {
		t.Fatal("first transition reported no change")
	}
	if st.SetStatus(models.StatusWarmingUp) {
		t.Fatal("repeated status reported a change")
	}

	history := st.History()
	if len(history) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(history))
	}
	if history[0].Old != models.StatusOffLine || history[0].New != models.StatusWarmingUp {
		t.Errorf("history[0] = %+v", history[0])
	}
}

func TestFirstTransitionStampsStartTime(t *testing.T) {
	reg := newTestRegistry(nil)
	clock := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	reg.now = func() time.Time { return clock }

	st, _ := reg.GetOrCreate("alpha")
	if !st.StartTime().IsZero() {
		t.Fatal("start time set before any transition")
	}
	st.SetStatus(models.StatusWarmingUp)
	clock = clock.Add(time.Minute)
	st.SetStatus(models.StatusOnLine)

	if want := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC); !st.StartTime().Equal(want) {
		t.Errorf("StartTime() = %s, want %s", st.StartTime(), want)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	reg := newTestRegistry(nil)
	st, _ := reg.GetOrCreate("alpha")
	st.SetStatus(models.StatusOnLine)

	h := st.History()
	h[0].New = models.StatusSystemError
	if st.History()[0].New != models.StatusOnLine {
		t.Error("mutating the returned history changed the station")
	}
}

func TestStatusChangePublishesEvent(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventStationStatus)
	reg := newTestRegistry(bus)
	st, _ := reg.GetOrCreate("alpha")

	st.SetStatus(models.StatusOnLine)
	select {
	case p := <-sub:
		if p["station_id"] != "alpha" || p["new"] != string(models.StatusOnLine) {
			t.Errorf("payload = %v", p)
		}
	default:
		t.Fatal("no status event published")
	}
}

func TestStopAndRemove(t *testing.T) {
	reg := newTestRegistry(nil)
	st, _ := reg.GetOrCreate("alpha")
	st.SetStatus(models.StatusOnLine)

	removed, ok := reg.StopAndRemove("alpha")
	if !ok || removed != st {
		t.Fatal("StopAndRemove did not return the station")
	}
	if st.Status() != models.StatusOffLine {
		t.Errorf("Status() = %s, want OFF_LINE", st.Status())
	}
	if _, ok := reg.Get("alpha"); ok {
		t.Error("station still registered")
	}
	if _, ok := reg.StopAndRemove("alpha"); ok {
		t.Error("second StopAndRemove should report not found")
	}
}

func TestUpdateConfigKeepsStatusAndHistory(t *testing.T) {
	reg := newTestRegistry(nil)
	st, _ := reg.GetOrCreate("alpha")
	st.SetStatus(models.StatusOnLine)

	if _, ok := reg.UpdateConfig("alpha", Config{DisplayName: "Alpha FM", TimeZone: "Europe/Lisbon"}); !ok {
		t.Fatal("UpdateConfig reported not found")
	}
	if st.Status() != models.StatusOnLine || len(st.History()) != 1 {
		t.Error("UpdateConfig changed status or history")
	}
	if st.Config().DisplayName != "Alpha FM" {
		t.Errorf("DisplayName = %q", st.Config().DisplayName)
	}
	if _, ok := reg.UpdateConfig("missing", Config{}); ok {
		t.Error("UpdateConfig on unknown station should fail")
	}
}

func TestSnapshotAndOnline(t *testing.T) {
	reg := newTestRegistry(nil)
	a, _ := reg.GetOrCreate("alpha")
	_, _ = reg.GetOrCreate("beta")
	a.SetStatus(models.StatusOnLine)
	a.Store().Append([]byte("x"), time.Second, "f", "t")

	snaps := reg.Snapshot()
	if len(snaps) != 2 || snaps[0].ID != "alpha" || snaps[1].ID != "beta" {
		t.Fatalf("Snapshot() = %+v", snaps)
	}
	if snaps[0].WindowSize != 1 {
		t.Errorf("WindowSize = %d, want 1", snaps[0].WindowSize)
	}

	online := reg.Online()
	if len(online) != 1 || online[0].ID != "alpha" {
		t.Errorf("Online() = %+v, want only alpha", online)
	}
}

func TestConfigLocationFallsBackToUTC(t *testing.T) {
	if loc := (Config{TimeZone: "Not/AZone"}).Location(); loc != time.UTC {
		t.Errorf("Location() = %v, want UTC", loc)
	}
}

func TestOnCreateHookRunsOnce(t *testing.T) {
	reg := newTestRegistry(nil)
	calls := 0
	reg.OnCreate(func(*State) { calls++ })
	_, _ = reg.GetOrCreate("alpha")
	_, _ = reg.GetOrCreate("alpha")
	if calls != 1 {
		t.Errorf("hook calls = %d, want 1", calls)
	}
}

func TestOnCreateHookInstalledBeforeFirstUse(t *testing.T) {
	reg := newTestRegistry(nil)
	var evicted atomic.Int64
	reg.OnCreate(func(st *State) {
		st.Store().OnEvict(func(_ string, segs []hls.Segment) {
			evicted.Add(int64(len(segs)))
		})
	})

	const workers, perWorker = 8, 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st, err := reg.GetOrCreate("alpha")
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < perWorker; j++ {
				st.Store().Append([]byte("x"), time.Second, "f", "")
			}
		}()
	}
	wg.Wait()

	if got, want := evicted.Load(), int64(workers*perWorker-5); got != want {
		t.Errorf("evicted = %d, want %d", got, want)
	}
}

func TestStationIDsAreTrimmed(t *testing.T) {
	reg := newTestRegistry(nil)
	created, err := reg.GetOrCreate(" alpha ")
	if err != nil {
		t.Fatal(err)
	}
	if created.ID() != "alpha" {
		t.Errorf("ID() = %q", created.ID())
	}
	for _, id := range []string{"alpha", " alpha", "alpha\t"} {
		if st, ok := reg.Get(id); !ok || st != created {
			t.Errorf("Get(%q) = %v, %v", id, st, ok)
		}
	}
	if _, ok := reg.UpdateConfig(" alpha", Config{}); !ok {
		t.Error("UpdateConfig missed a padded id")
	}
	if _, ok := reg.StopAndRemove("alpha "); !ok || reg.Len() != 0 {
		t.Errorf("StopAndRemove padded id: ok = %v, len = %d", ok, reg.Len())
	}
}
