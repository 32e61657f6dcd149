package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"familytether/internal/kv"
)

type recordingSink struct {
	mu    sync.Mutex
	rooms map[string][][]byte
	users map[string][][]byte
}

func newRecordingSink() *recordingSink {
	return &recordingSink{rooms: map[string][][]byte{}, users: map[string][][]byte{}}
}

func (s *recordingSink) BroadcastRoom(familyID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[familyID] = append(s.rooms[familyID], payload)
}

func (s *recordingSink) SendToUser(userID string, payload []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = append(s.users[userID], payload)
}

func waitFor(t *testing.T, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherRoutesLocationToRoom(t *testing.T) {
	client := kv.NewMemory()
	sink := newRecordingSink()
	d := New(client, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Close()

	if err := client.Publish(ctx, "family:fam1:location", []byte(`{"type":"location_update"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.rooms["fam1"]) == 1
	})
}

func TestDispatcherRoutesAlertsToRoom(t *testing.T) {
	client := kv.NewMemory()
	sink := newRecordingSink()
	d := New(client, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Close()

	if err := client.Publish(ctx, "family:fam2:alerts", []byte(`{"type":"geofence_alert"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.rooms["fam2"]) == 1
	})
}

func TestDispatcherRoutesNotificationsToUser(t *testing.T) {
	client := kv.NewMemory()
	sink := newRecordingSink()
	d := New(client, sink)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Close()

	if err := client.Publish(ctx, "user:u1:notifications", []byte(`{"type":"notification"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.users["u1"]) == 1
	})
}

func TestExtractSegment(t *testing.T) {
	if id, ok := extractSegment("family:abc:location", "family", 3); !ok || id != "abc" {
		t.Fatalf("got %q, %v", id, ok)
	}
	if _, ok := extractSegment("family:abc:def:location", "family", 3); ok {
		t.Fatal("expected segment-count mismatch to fail")
	}
	if _, ok := extractSegment("user:abc:location", "family", 3); ok {
		t.Fatal("expected prefix mismatch to fail")
	}
}
