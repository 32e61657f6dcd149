package repository

import (
	"context"
	"testing"
	"time"
)

func TestMemoryRepositoryMembersAndFamilies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository().(*memoryRepository)
	repo.Seed("fA", Member{UserID: "u1", Role: RoleHead, DisplayName: "Alice", JoinedAt: time.Now()})
	repo.Seed("fA", Member{UserID: "u2", Role: RoleMember, DisplayName: "Bob", JoinedAt: time.Now()})

	members, err := repo.MembersOf(ctx, "fA")
	if err != nil || len(members) != 2 {
		t.Fatalf("expected 2 members, got %d, err=%v", len(members), err)
	}

	families, err := repo.FamiliesOf(ctx, "u1")
	if err != nil || len(families) != 1 || families[0] != "fA" {
		t.Fatalf("expected [fA], got %v, err=%v", families, err)
	}

	role, ok, err := repo.RoleOf(ctx, "u2", "fA")
	if err != nil || !ok || role != RoleMember {
		t.Fatalf("expected member role for u2, got %v %v %v", role, ok, err)
	}

	_, ok, err = repo.RoleOf(ctx, "u3", "fA")
	if err != nil || ok {
		t.Fatalf("expected no role for unknown user, got %v %v", ok, err)
	}
}

func TestMemoryRepositoryRemoveMember(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository().(*memoryRepository)
	repo.Seed("fA", Member{UserID: "u1", Role: RoleHead})
	repo.Seed("fA", Member{UserID: "u2", Role: RoleMember})

	repo.RemoveMember("fA", "u2")

	members, _ := repo.MembersOf(ctx, "fA")
	if len(members) != 1 || members[0].UserID != "u1" {
		t.Fatalf("expected only u1 remaining, got %+v", members)
	}

	families, _ := repo.FamiliesOf(ctx, "u2")
	if len(families) != 0 {
		t.Fatalf("expected u2 to have no families, got %v", families)
	}
}

func TestMemoryRepositoryGhostModes(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	status, err := repo.IsGhost(ctx, "u1", "fA")
	if err != nil || status.Enabled {
		t.Fatalf("expected ghost disabled by default, got %+v, %v", status, err)
	}

	if err := repo.SetFamilyGhost(ctx, "u1", "fA", true); err != nil {
		t.Fatalf("set_family_ghost: %v", err)
	}
	status, err = repo.IsGhost(ctx, "u1", "fA")
	if err != nil || !status.Enabled || status.Scope != "family" {
		t.Fatalf("expected family ghost, got %+v, %v", status, err)
	}

	if err := repo.SetGlobalGhost(ctx, "u1", true); err != nil {
		t.Fatalf("set_global_ghost: %v", err)
	}
	status, err = repo.IsGhost(ctx, "u1", "fB")
	if err != nil || !status.Enabled || status.Scope != "global" {
		t.Fatalf("expected global ghost to cover other families, got %+v, %v", status, err)
	}

	modes, err := repo.GhostModesOf(ctx, "u1")
	if err != nil || !modes.Global || !modes.PerFamily["fA"] {
		t.Fatalf("unexpected ghost modes: %+v, %v", modes, err)
	}
}

func TestUnavailableRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUnavailable()

	members, err := repo.MembersOf(ctx, "fA")
	if err != nil || members != nil {
		t.Fatalf("expected empty result, no error, got %v %v", members, err)
	}

	if err := repo.SetGlobalGhost(ctx, "u1", true); err == nil {
		t.Fatal("expected write to fail explicitly when unavailable")
	}
}

func TestTenantHandleScoping(t *testing.T) {
	ctx := context.Background()
	admin := NewMemoryRepository()
	admin.(*memoryRepository).Seed("fA", Member{UserID: "u1", Role: RoleHead})

	tenant := NewTenantHandle(admin, "u1")

	if _, err := tenant.FamiliesOf(ctx, "u1"); err != nil {
		t.Fatalf("expected tenant to read its own data: %v", err)
	}
	if _, err := tenant.FamiliesOf(ctx, "u2"); err == nil {
		t.Fatal("expected tenant to be denied access to another user's data")
	}
}
