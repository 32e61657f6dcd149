package cache

import (
	"context"
	"testing"

	"familytether/internal/kv"
	"familytether/internal/repository"
)

type countingRepo struct {
	repository.Repository
	membersCalls int
}

func (c *countingRepo) MembersOf(ctx context.Context, familyID string) ([]repository.Member, error) {
	c.membersCalls++
	return c.Repository.MembersOf(ctx, familyID)
}

func TestCacheMembersOfReadThrough(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	repo.(interface {
		Seed(string, repository.Member)
	}).Seed("fA", repository.Member{UserID: "u1", Role: repository.RoleHead})
	counting := &countingRepo{Repository: repo}

	c := New(kv.NewMemory(), counting, true)

	for i := 0; i < 3; i++ {
		members, err := c.MembersOf(ctx, "fA")
		if err != nil || len(members) != 1 {
			t.Fatalf("expected 1 member, got %d, err=%v", len(members), err)
		}
	}
	if counting.membersCalls != 1 {
		t.Fatalf("expected a single repository call after warm cache, got %d", counting.membersCalls)
	}
}

func TestCacheDisabledBypassesCache(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	repo.(interface {
		Seed(string, repository.Member)
	}).Seed("fA", repository.Member{UserID: "u1", Role: repository.RoleHead})
	counting := &countingRepo{Repository: repo}

	c := New(kv.NewMemory(), counting, false)

	for i := 0; i < 10; i++ {
		if _, err := c.MembersOf(ctx, "fA"); err != nil {
			t.Fatalf("members_of: %v", err)
		}
	}
	if counting.membersCalls != 10 {
		t.Fatalf("expected 10 repository calls with cache disabled, got %d", counting.membersCalls)
	}
}

func TestCacheOnlinePresence(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), repository.NewUnavailable(), true)

	online, err := c.IsOnline(ctx, "u1", "fA")
	if err != nil || online {
		t.Fatalf("expected offline by default, got %v, %v", online, err)
	}

	if err := c.SetOnline(ctx, "u1", "fA"); err != nil {
		t.Fatalf("set_online: %v", err)
	}
	online, err = c.IsOnline(ctx, "u1", "fA")
	if err != nil || !online {
		t.Fatalf("expected online, got %v, %v", online, err)
	}

	if err := c.ClearOnline(ctx, "u1", "fA"); err != nil {
		t.Fatalf("clear_online: %v", err)
	}
	online, err = c.IsOnline(ctx, "u1", "fA")
	if err != nil || online {
		t.Fatalf("expected offline after clear, got %v, %v", online, err)
	}
}

func TestCacheGhostFlags(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), repository.NewUnavailable(), true)

	if _, ok, _ := c.GhostGlobal(ctx, "u1"); ok {
		t.Fatal("expected cache miss before any write")
	}
	if err := c.SetGhostGlobal(ctx, "u1", true); err != nil {
		t.Fatalf("set_ghost_global: %v", err)
	}
	enabled, ok, err := c.GhostGlobal(ctx, "u1")
	if err != nil || !ok || !enabled {
		t.Fatalf("expected ghost global enabled, got %v %v %v", enabled, ok, err)
	}
}

func TestOnUserLeavesFamilyInvalidation(t *testing.T) {
	ctx := context.Background()
	kvClient := kv.NewMemory()
	c := New(kvClient, repository.NewUnavailable(), true)

	c.set(ctx, familiesKey("u1"), []byte(`["fA"]`), ttlHour)
	c.set(ctx, membersKey("fA"), []byte(`[]`), ttlHour)
	c.set(ctx, roleKey("u1", "fA"), []byte("member"), ttlHour)
	c.SetOnline(ctx, "u1", "fA")

	c.OnUserLeavesFamily(ctx, "u1", "fA")

	if v, _ := kvClient.Get(ctx, familiesKey("u1")); v != nil {
		t.Fatal("expected families cache cleared")
	}
	if v, _ := kvClient.Get(ctx, membersKey("fA")); v != nil {
		t.Fatal("expected members cache cleared")
	}
	online, _ := c.IsOnline(ctx, "u1", "fA")
	if online {
		t.Fatal("expected online cleared")
	}
}
