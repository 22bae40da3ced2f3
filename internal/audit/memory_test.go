package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/veilhq/veil/internal/pii"
)

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		RetentionDays: 90,
		MaxEvents:     10000,
		SigningKey:    "test-key",
	}
}

func TestMemoryStoreRecord(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	event := &Event{
		Type:      EventDetection,
		RequestID: "req-1",
		Path:      "/api/chat",
		ClientIP:  "10.0.0.1",
		Severity:  SeverityInfo,
		Findings:  []pii.Finding{{Category: pii.CategoryEmail, Count: 2}},
	}

	if err := store.Record(ctx, event); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if event.ID == 0 {
		t.Error("event ID not assigned")
	}
	if event.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
	if event.Signature == "" {
		t.Error("event not signed")
	}
	if !store.Verify(event) {
		t.Error("signature does not verify")
	}
}

func TestMemoryStoreTamperDetection(t *testing.T) {
	store := NewMemoryStore(testConfig())

	event := &Event{Type: EventDetection, Severity: SeverityInfo}
	if err := store.Record(context.Background(), event); err != nil {
		t.Fatal(err)
	}

	event.Path = "/altered"
	if store.Verify(event) {
		t.Error("tampered event still verifies")
	}
}

func TestMemoryStoreQuery(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		severity := SeverityInfo
		eventType := EventDetection
		if i%2 == 1 {
			severity = SeverityWarning
			eventType = EventPolicyChange
		}
		err := store.Record(ctx, &Event{
			Type:      eventType,
			RequestID: fmt.Sprintf("req-%d", i),
			Severity:  severity,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	t.Run("All", func(t *testing.T) {
		events, err := store.Query(ctx, Filter{})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 5 {
			t.Errorf("got %d events, want 5", len(events))
		}
		// Oldest first
		if events[0].RequestID != "req-0" {
			t.Errorf("first event = %s, want req-0", events[0].RequestID)
		}
	})

	t.Run("ByType", func(t *testing.T) {
		events, err := store.Query(ctx, Filter{Type: EventPolicyChange})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Errorf("got %d policy changes, want 2", len(events))
		}
	})

	t.Run("BySeverity", func(t *testing.T) {
		events, err := store.Query(ctx, Filter{Severity: SeverityInfo})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 3 {
			t.Errorf("got %d info events, want 3", len(events))
		}
	})

	t.Run("Limit", func(t *testing.T) {
		events, err := store.Query(ctx, Filter{Limit: 2})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 2 {
			t.Errorf("got %d events, want 2", len(events))
		}
	})

	t.Run("SinceExcludesOld", func(t *testing.T) {
		events, err := store.Query(ctx, Filter{Since: time.Now().Add(time.Hour)})
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 0 {
			t.Errorf("got %d events from the future, want 0", len(events))
		}
	})
}

func TestMemoryStoreSizeCap(t *testing.T) {
	cfg := testConfig()
	cfg.MaxEvents = 3
	store := NewMemoryStore(cfg)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := store.Record(ctx, &Event{
			Type:      EventDetection,
			RequestID: fmt.Sprintf("req-%d", i),
			Severity:  SeverityInfo,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	events, err := store.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want capped at 3", len(events))
	}
	// Oldest were dropped
	if events[0].RequestID != "req-2" {
		t.Errorf("first kept event = %s, want req-2", events[0].RequestID)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	old := &Event{
		Type:      EventDetection,
		Severity:  SeverityInfo,
		Timestamp: time.Now().AddDate(0, 0, -120),
	}
	recent := &Event{Type: EventDetection, Severity: SeverityInfo}

	if err := store.Record(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := store.Record(ctx, recent); err != nil {
		t.Fatal(err)
	}

	if err := store.Cleanup(ctx); err != nil {
		t.Fatal(err)
	}

	events, err := store.Query(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events after cleanup, want 1", len(events))
	}
	if events[0].ID != recent.ID {
		t.Error("retention kept the wrong event")
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore(testConfig())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Record(ctx, &Event{Type: EventDetection, Severity: SeverityInfo}); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Record(ctx, &Event{Type: EventTokenResolved, Severity: SeverityWarning}); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if stats.Last24h != 4 {
		t.Errorf("Last24h = %d, want 4", stats.Last24h)
	}
	if stats.ByType[EventDetection] != 3 {
		t.Errorf("ByType[detection] = %d, want 3", stats.ByType[EventDetection])
	}
	if stats.BySeverity[SeverityWarning] != 1 {
		t.Errorf("BySeverity[warning] = %d, want 1", stats.BySeverity[SeverityWarning])
	}
}

func TestSignerKeyMatters(t *testing.T) {
	a := NewSigner("key-a")
	b := NewSigner("key-b")

	event := &Event{Type: EventDetection, Severity: SeverityInfo, Timestamp: time.Now()}
	a.Sign(event)

	if b.Verify(event) {
		t.Error("signature verified under a different key")
	}
	if !a.Verify(event) {
		t.Error("signature did not verify under its own key")
	}
}
