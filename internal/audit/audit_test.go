package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/friendsincode/airwave/internal/events"
	"github.com/friendsincode/airwave/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := database.DB()
	if err != nil {
		t.Fatal(err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := database.AutoMigrate(&models.MemoryEntry{}, &models.StatusChangeRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	return database
}

func TestMemoryStoreUpserts(t *testing.T) {
	database := openTestDB(t)
	bus := events.NewBus()
	sub := bus.Subscribe(events.EventMemoryRecorded)
	store := NewMemoryStore(database, bus)
	ctx := context.Background()

	entry := models.MemoryEntry{StationID: "alpha", Kind: models.MemoryShiftStarted, Key: "shift1", Content: "Shift started at 09:00"}
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry.Content = "Shift started at 09:02"
	if err := store.Record(ctx, entry); err != nil {
		t.Fatalf("second Record: %v", err)
	}
	if err := store.Record(ctx, models.MemoryEntry{StationID: "alpha", Kind: models.MemoryEvent, Key: "evt", Content: "news: top of hour"}); err != nil {
		t.Fatal(err)
	}

	entries, err := store.Recent(ctx, "alpha", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Kind == models.MemoryShiftStarted && e.Content != "Shift started at 09:02" {
			t.Errorf("content = %q, want the replacement", e.Content)
		}
	}

	if payload := <-sub; payload["station_id"] != "alpha" {
		t.Errorf("payload = %v", payload)
	}
	if err := store.Record(ctx, models.MemoryEntry{}); err == nil {
		t.Error("entry without station accepted")
	}
}

func TestServiceStoresStatusEvents(t *testing.T) {
	database := openTestDB(t)
	bus := events.NewBus()
	svc := NewService(database, bus, "node-a", zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.Start(ctx)

	at := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	deadline := time.Now().Add(2 * time.Second)
	for {
		bus.Publish(events.EventStationStatus, events.Payload{
			"station_id": "alpha",
			"old":        "OFF_LINE",
			"new":        "WARMING_UP",
			"at":         at,
		})
		records, total, err := svc.Query(context.Background(), QueryFilters{StationID: "alpha"})
		if err != nil {
			t.Fatal(err)
		}
		if total > 0 {
			rec := records[0]
			if rec.OldStatus != models.StatusOffLine || rec.NewStatus != models.StatusWarmingUp || rec.InstanceID != "node-a" {
				t.Errorf("record = %+v", rec)
			}
			if !rec.ChangedAt.Equal(at) {
				t.Errorf("ChangedAt = %s", rec.ChangedAt)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("status change not stored")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueryFilters(t *testing.T) {
	database := openTestDB(t)
	svc := NewService(database, events.NewBus(), "node-a", zerolog.Nop())
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"alpha", "alpha", "beta"} {
		rec := &models.StatusChangeRecord{StationID: id, OldStatus: models.StatusOffLine, NewStatus: models.StatusOnLine, ChangedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := svc.Log(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	records, total, err := svc.Query(ctx, QueryFilters{StationID: "alpha", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(records) != 1 || !records[0].ChangedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("total = %d, records = %+v", total, records)
	}

	since := base.Add(90 * time.Minute)
	_, total, _ = svc.Query(ctx, QueryFilters{Since: &since})
	if total != 1 {
		t.Errorf("since total = %d, want 1", total)
	}
}
