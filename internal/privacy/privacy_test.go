package privacy

import (
	"context"
	"testing"

	"familytether/internal/cache"
	"familytether/internal/kv"
	"familytether/internal/repository"
)

func TestIsGhostDefaultDisabled(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := cache.New(kv.NewMemory(), repo, true)
	svc := New(c, repo)

	status, err := svc.IsGhost(ctx, "u1", "fA")
	if err != nil || status.Enabled {
		t.Fatalf("expected disabled by default, got %+v, %v", status, err)
	}
}

func TestSetFamilyGhostThenIsGhost(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	c := cache.New(kv.NewMemory(), repo, true)
	svc := New(c, repo)

	if err := svc.SetFamilyGhost(ctx, "u1", "fA", true); err != nil {
		t.Fatalf("set_family_ghost: %v", err)
	}
	status, err := svc.IsGhost(ctx, "u1", "fA")
	if err != nil || !status.Enabled || status.Scope != "family" {
		t.Fatalf("expected family scope, got %+v, %v", status, err)
	}

	status, err = svc.IsGhost(ctx, "u1", "fB")
	if err != nil || status.Enabled {
		t.Fatalf("expected other family unaffected, got %+v, %v", status, err)
	}
}

func TestSetGlobalGhostAppliesToAllFamilies(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	repo.(interface {
		Seed(string, repository.Member)
	}).Seed("fA", repository.Member{UserID: "u1", Role: repository.RoleMember})
	repo.(interface {
		Seed(string, repository.Member)
	}).Seed("fB", repository.Member{UserID: "u1", Role: repository.RoleMember})

	c := cache.New(kv.NewMemory(), repo, true)
	svc := New(c, repo)

	if err := svc.SetGlobalGhost(ctx, "u1", true); err != nil {
		t.Fatalf("set_global_ghost: %v", err)
	}

	for _, fid := range []string{"fA", "fB"} {
		status, err := svc.IsGhost(ctx, "u1", fid)
		if err != nil || !status.Enabled || status.Scope != "global" {
			t.Fatalf("expected global scope for %s, got %+v, %v", fid, status, err)
		}
	}

	if err := svc.SetGlobalGhost(ctx, "u1", false); err != nil {
		t.Fatalf("disable set_global_ghost: %v", err)
	}
	status, err := svc.IsGhost(ctx, "u1", "fA")
	if err != nil || status.Enabled {
		t.Fatalf("expected disabled after toggling off, got %+v, %v", status, err)
	}
}
