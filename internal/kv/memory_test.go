package kv

import (
	"context"
	"testing"
	"time"
)

func TestMemoryGetSetDel(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	v, err := c.Get(ctx, "missing")
	if err != nil || v != nil {
		t.Fatalf("expected nil on miss, got %v, %v", v, err)
	}

	if err := c.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, err = c.Get(ctx, "k")
	if err != nil || string(v) != "v" {
		t.Fatalf("expected v, got %s, %v", v, err)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	v, _ = c.Get(ctx, "k")
	if v != nil {
		t.Fatalf("expected nil after del, got %s", v)
	}
}

func TestMemoryTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	if err := c.Set(ctx, "k", []byte("v"), 10*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	v, err := c.Get(ctx, "k")
	if err != nil || v != nil {
		t.Fatalf("expected expired key to read nil, got %s, %v", v, err)
	}
}

func TestMemoryIncr(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	for i := int64(1); i <= 3; i++ {
		n, err := c.Incr(ctx, "counter")
		if err != nil {
			t.Fatalf("incr: %v", err)
		}
		if n != i {
			t.Fatalf("expected %d, got %d", i, n)
		}
	}
}

func TestMemoryAppendReadLog(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	id1, err := c.Append(ctx, "locations:family:fA", map[string]string{"user_id": "u1"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	id2, err := c.Append(ctx, "locations:family:fA", map[string]string{"user_id": "u2"})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct ids, got %s twice", id1)
	}

	entries, err := c.ReadLog(ctx, "locations:family:fA", "-", 10)
	if err != nil {
		t.Fatalf("read_log: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	after, err := c.ReadLog(ctx, "locations:family:fA", id1, 10)
	if err != nil {
		t.Fatalf("read_log after: %v", err)
	}
	if len(after) != 1 || after[0].ID != id2 {
		t.Fatalf("expected only id2 after id1, got %+v", after)
	}
}

func TestMemoryGroupReadAck(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	c.Append(ctx, "locations:family:fA", map[string]string{"n": "1"})
	c.Append(ctx, "locations:family:fA", map[string]string{"n": "2"})

	if err := c.CreateGroup(ctx, "locations:family:fA", "workers", "0"); err != nil {
		t.Fatalf("create_group: %v", err)
	}
	// Idempotent re-creation must succeed silently.
	if err := c.CreateGroup(ctx, "locations:family:fA", "workers", "0"); err != nil {
		t.Fatalf("create_group again: %v", err)
	}

	entries, err := c.ReadGroup(ctx, "locations:family:fA", "workers", "consumer-1", 10, 0)
	if err != nil {
		t.Fatalf("read_group: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	more, err := c.ReadGroup(ctx, "locations:family:fA", "workers", "consumer-1", 10, 0)
	if err != nil || len(more) != 0 {
		t.Fatalf("expected no more entries, got %+v, %v", more, err)
	}

	if err := c.Ack(ctx, "locations:family:fA", "workers", entries[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	received := make(chan string, 1)
	unsub, err := c.Subscribe(ctx, "family:fA:location", func(channel string, payload []byte) {
		received <- string(payload)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	if err := c.Publish(ctx, "family:fA:location", []byte("hello")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-received:
		if msg != "hello" {
			t.Fatalf("expected hello, got %s", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryPSubscribeWildcard(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	received := make(chan string, 2)
	unsub, err := c.PSubscribe(ctx, "family:*:location", func(channel string, payload []byte) {
		received <- channel
	})
	if err != nil {
		t.Fatalf("psubscribe: %v", err)
	}
	defer unsub()

	c.Publish(ctx, "family:fA:location", []byte("a"))
	c.Publish(ctx, "family:fB:location", []byte("b"))
	c.Publish(ctx, "family:fA:alerts", []byte("c")) // different segment, must not match

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ch := <-received:
			seen[ch] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for delivery")
		}
	}
	if !seen["family:fA:location"] || !seen["family:fB:location"] {
		t.Fatalf("expected both family channels, got %v", seen)
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	received := make(chan string, 1)
	unsub, _ := c.Subscribe(ctx, "ch", func(channel string, payload []byte) {
		received <- string(payload)
	})
	unsub()

	c.Publish(ctx, "ch", []byte("should not arrive"))

	select {
	case msg := <-received:
		t.Fatalf("expected no delivery after unsubscribe, got %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern, channel string
		want             bool
	}{
		{"family:*:location", "family:fA:location", true},
		{"family:*:location", "family:fA:alerts", false},
		{"user:*:notifications", "user:u1:notifications", true},
		{"family:*:location", "family:fA:bB:location", false},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.pattern, tc.channel); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.pattern, tc.channel, got, tc.want)
		}
	}
}
