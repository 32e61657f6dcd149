// Package privacy is the C4 ghost-mode service (spec §4.4): resolving
// whether a user's location is masked before it reaches other sockets, and
// applying the masking transform itself.
package privacy

import (
	"context"

	"familytether/internal/cache"
	"familytether/internal/repository"
)

// Status mirrors the {enabled, scope} pair returned by is_ghost.
type Status struct {
	Enabled bool
	Scope   string // "global", "family", or "none"
}

// Service resolves and mutates ghost-mode state for a user. It reads and
// writes through the cache but treats the repository as the source of
// truth for writes, per spec §4.4.
type Service struct {
	cache *cache.Cache
	repo  repository.Repository // admin handle
}

// New builds a privacy Service.
func New(c *cache.Cache, admin repository.Repository) *Service {
	return &Service{cache: c, repo: admin}
}

// IsGhost implements the three-step algorithm in spec §4.4.
func (s *Service) IsGhost(ctx context.Context, userID, familyID string) (Status, error) {
	if enabled, ok, err := s.cache.GhostGlobal(ctx, userID); err == nil && ok {
		if enabled {
			return Status{Enabled: true, Scope: "global"}, nil
		}
	}
	if enabled, ok, err := s.cache.GhostFamily(ctx, familyID, userID); err == nil && ok {
		if enabled {
			return Status{Enabled: true, Scope: "family"}, nil
		}
	}

	status, err := s.repo.IsGhost(ctx, userID, familyID)
	if err != nil {
		return Status{}, err
	}
	if !status.Enabled {
		return Status{Enabled: false, Scope: "none"}, nil
	}

	modes, err := s.repo.GhostModesOf(ctx, userID)
	if err != nil {
		return Status{Enabled: true, Scope: status.Scope}, nil
	}
	if modes.Global {
		_ = s.cache.SetGhostGlobal(ctx, userID, true)
		return Status{Enabled: true, Scope: "global"}, nil
	}
	if modes.PerFamily[familyID] {
		_ = s.cache.SetGhostFamily(ctx, familyID, userID, true)
		return Status{Enabled: true, Scope: "family"}, nil
	}
	return Status{Enabled: true, Scope: status.Scope}, nil
}

// SetGlobalGhost writes the global flag through a tenant handle scoped to
// userID (spec §4.2: "tenant handle ... for operations initiated by a
// specific user" — ghost-mode toggles are exactly that), then the cache,
// then invalidates the user's per-family ghost entries so a later IsGhost
// recomputes scope from the new global state rather than a stale
// per-family cache hit.
func (s *Service) SetGlobalGhost(ctx context.Context, userID string, enabled bool) error {
	tenant := repository.NewTenantHandle(s.repo, userID)
	if err := tenant.SetGlobalGhost(ctx, userID, enabled); err != nil {
		return err
	}
	if err := s.cache.SetGhostGlobal(ctx, userID, enabled); err != nil {
		return err
	}
	return s.invalidateUserAcrossFamilies(ctx, userID)
}

// SetFamilyGhost writes the per-family flag through a tenant handle scoped
// to userID, then the cache.
func (s *Service) SetFamilyGhost(ctx context.Context, userID, familyID string, enabled bool) error {
	tenant := repository.NewTenantHandle(s.repo, userID)
	if err := tenant.SetFamilyGhost(ctx, userID, familyID, enabled); err != nil {
		return err
	}
	return s.cache.SetGhostFamily(ctx, familyID, userID, enabled)
}

// invalidateUserAcrossFamilies drops the user's cached per-family ghost
// entries across every family they belong to, looked up via the family
// adjacency the cache already maintains (spec §4.4, "helpers to invalidate
// a user's entries across all families").
func (s *Service) invalidateUserAcrossFamilies(ctx context.Context, userID string) error {
	families, err := s.cache.FamiliesOf(ctx, userID)
	if err != nil {
		return nil
	}
	for _, fid := range families {
		_ = s.cache.InvalidateGhostFamily(ctx, fid, userID)
	}
	return nil
}

// InvalidateFamilyAcrossMembers drops every member's cached per-family
// ghost entry for the given family (spec §4.4, "helpers to invalidate a
// family's entries across all members"), used when a family is deleted.
func (s *Service) InvalidateFamilyAcrossMembers(ctx context.Context, familyID string) error {
	members, err := s.cache.MembersOf(ctx, familyID)
	if err != nil {
		return nil
	}
	for _, m := range members {
		_ = s.cache.InvalidateGhostFamily(ctx, familyID, m.UserID)
	}
	return nil
}
