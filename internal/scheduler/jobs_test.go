package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/friendsincode/airwave/internal/clock"
	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
	"github.com/friendsincode/airwave/internal/station"
)

type memoryLog struct {
	mu      sync.Mutex
	entries []models.MemoryEntry
	err     error
}

func (m *memoryLog) Record(_ context.Context, e models.MemoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *memoryLog) kinds() []models.MemoryKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.MemoryKind, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

func newStations() *station.Registry {
	return station.NewRegistry(station.Defaults{}, nil, zerolog.Nop())
}

func TestAIControlJobShift(t *testing.T) {
	reg := newStations()
	st, _ := reg.GetOrCreate("alpha")
	st.SetStatus(models.StatusOnLine)
	mem := &memoryLog{}
	job := NewAIControlJob(reg, mem, clock.NewFake(at(monday, "18:00")), zerolog.Nop())
	ctx := context.Background()

	if err := job.Execute(ctx, JobData{DataStation: "alpha", DataAction: ActionStart, DataEntity: "shift1"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !st.AIControlAllowed() || st.LastAIContact().IsZero() {
		t.Error("start should allow AI control and stamp contact")
	}

	if err := job.Execute(ctx, JobData{DataStation: "alpha", DataAction: ActionWarning}); err != nil {
		t.Fatalf("warning: %v", err)
	}
	if err := job.Execute(ctx, JobData{DataStation: "alpha", DataAction: ActionStop}); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if st.AIControlAllowed() {
		t.Error("stop should revoke AI control")
	}
	if st.Status() != models.StatusWaitingForCurator {
		t.Errorf("status = %s, want WAITING_FOR_CURATOR", st.Status())
	}

	kinds := mem.kinds()
	want := []models.MemoryKind{models.MemoryShiftStarted, models.MemoryShiftEnding, models.MemoryShiftEnded}
	if len(kinds) != len(want) {
		t.Fatalf("memory kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("memory[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
	if mem.entries[0].Content != "Shift started at 18:00" || mem.entries[0].Key != "shift1" {
		t.Errorf("start entry = %+v", mem.entries[0])
	}
}

func TestAIControlJobStopIgnoredOffAir(t *testing.T) {
	reg := newStations()
	st, _ := reg.GetOrCreate("alpha")
	st.SetAIControlAllowed(true)
	job := NewAIControlJob(reg, nil, nil, zerolog.Nop())

	if err := job.Execute(context.Background(), JobData{DataStation: "alpha", DataAction: ActionStop}); err != nil {
		t.Fatal(err)
	}
	if !st.AIControlAllowed() || st.Status() != models.StatusOffLine {
		t.Error("stop on an off-line station should change nothing")
	}
}

func TestAIControlJobErrors(t *testing.T) {
	reg := newStations()
	reg.GetOrCreate("alpha")
	job := NewAIControlJob(reg, nil, nil, zerolog.Nop())

	if err := job.Execute(context.Background(), JobData{DataStation: "ghost", DataAction: ActionStart}); !errors.Is(err, ErrStationNotFound) {
		t.Errorf("err = %v, want ErrStationNotFound", err)
	}
	if err := job.Execute(context.Background(), JobData{DataStation: "alpha", DataAction: "dance"}); !errors.Is(err, ErrUnknownAction) {
		t.Errorf("err = %v, want ErrUnknownAction", err)
	}
}

func TestAIControlJobMemoryFailureDoesNotFail(t *testing.T) {
	reg := newStations()
	st, _ := reg.GetOrCreate("alpha")
	job := NewAIControlJob(reg, &memoryLog{err: errors.New("db down")}, nil, zerolog.Nop())

	if err := job.Execute(context.Background(), JobData{DataStation: "alpha", DataAction: ActionStart}); err != nil {
		t.Fatalf("err = %v", err)
	}
	if !st.AIControlAllowed() {
		t.Error("state change should not depend on the memory write")
	}
}

func TestEventTriggerJob(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventScheduleFired)
	mem := &memoryLog{}
	job := NewEventTriggerJob(mem, bus, zerolog.Nop())

	err := job.Execute(context.Background(), JobData{
		DataStation:     "alpha",
		DataEntity:      "evt1",
		DataEventType:   "weather",
		DataDescription: "afternoon forecast",
		DataPriority:    "HIGH",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(mem.entries) != 1 || mem.entries[0].Content != "weather: afternoon forecast [HIGH]" || mem.entries[0].Kind != models.MemoryEvent {
		t.Errorf("entries = %+v", mem.entries)
	}
	payload := <-sub
	if payload["note"] != "weather: afternoon forecast [HIGH]" {
		t.Errorf("payload = %v", payload)
	}

	if err := job.Execute(context.Background(), JobData{}); !errors.Is(err, ErrStationNotFound) {
		t.Errorf("empty station err = %v", err)
	}
}

func TestEventNote(t *testing.T) {
	if got := EventNote("news", "top of the hour", ""); got != "news: top of the hour" {
		t.Errorf("EventNote = %q", got)
	}
}

type requests struct {
	got []ContentRequest
	err error
}

func (r *requests) RequestContent(_ context.Context, req ContentRequest) error {
	r.got = append(r.got, req)
	return r.err
}

func TestContentInjectionJob(t *testing.T) {
	req := &requests{}
	job := NewContentInjectionJob(req, zerolog.Nop())

	if err := job.Execute(context.Background(), JobData{DataStation: "alpha", DataTarget: "jingle", DataAction: ActionFire}); err != nil {
		t.Fatal(err)
	}
	if err := job.Execute(context.Background(), JobData{DataStation: "alpha", DataTarget: "ad", DataPriority: "interrupt"}); err != nil {
		t.Fatal(err)
	}
	if len(req.got) != 2 {
		t.Fatalf("requests = %+v", req.got)
	}
	if req.got[0].Priority != models.PriorityHigh || req.got[1].Priority != models.PriorityInterrupt {
		t.Errorf("priorities = %s, %s", req.got[0].Priority, req.got[1].Priority)
	}

	if err := job.Execute(context.Background(), JobData{DataStation: "alpha", DataPriority: "urgent"}); err == nil {
		t.Error("invalid priority accepted")
	}
	req.err = errors.New("generator offline")
	if err := job.Execute(context.Background(), JobData{DataStation: "alpha"}); err == nil {
		t.Error("requester error swallowed")
	}
}

func TestBusContentRequester(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventContentRequest)
	r := BusContentRequester{Bus: bus}

	if err := r.RequestContent(context.Background(), ContentRequest{Station: "alpha", Target: "news", Priority: models.PriorityLast}); err != nil {
		t.Fatal(err)
	}
	payload := <-sub
	if payload["station_id"] != "alpha" || payload["priority"] != "LAST" {
		t.Errorf("payload = %v", payload)
	}
	if err := (BusContentRequester{}).RequestContent(context.Background(), ContentRequest{}); err == nil {
		t.Error("nil bus accepted")
	}
}
