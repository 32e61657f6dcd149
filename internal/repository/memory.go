package repository

import (
	"context"
	"sync"
)

// memoryRepository is a test double for Repository. Spec §9 is explicit that
// an in-memory users map "does not belong in production" — this type exists
// solely under _test.go-adjacent test helpers and the cache/C3 unit tests.
type memoryRepository struct {
	mu sync.Mutex

	members    map[string][]Member // familyID -> members
	families   map[string][]string // userID -> familyIDs
	geofences  map[string][]Geofence
	globalGhost  map[string]bool
	familyGhost  map[string]map[string]bool // familyID -> userID -> enabled
}

// NewMemoryRepository returns an in-process Repository fake for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		members:   make(map[string][]Member),
		families:  make(map[string][]string),
		geofences: make(map[string][]Geofence),
		globalGhost: make(map[string]bool),
		familyGhost: make(map[string]map[string]bool),
	}
}

// Seed adds a membership row directly, for test setup.
func (r *memoryRepository) Seed(familyID string, m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[familyID] = append(r.members[familyID], m)
	r.families[m.UserID] = append(r.families[m.UserID], familyID)
}

func (r *memoryRepository) MembersOf(ctx context.Context, familyID string) ([]Member, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Member, len(r.members[familyID]))
	copy(out, r.members[familyID])
	return out, nil
}

func (r *memoryRepository) FamiliesOf(ctx context.Context, userID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.families[userID]))
	copy(out, r.families[userID])
	return out, nil
}

func (r *memoryRepository) RoleOf(ctx context.Context, userID, familyID string) (Role, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[familyID] {
		if m.UserID == userID {
			return m.Role, true, nil
		}
	}
	return "", false, nil
}

func (r *memoryRepository) GeofencesOf(ctx context.Context, familyID string) ([]Geofence, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Geofence, len(r.geofences[familyID]))
	copy(out, r.geofences[familyID])
	return out, nil
}

func (r *memoryRepository) AddGeofence(familyID string, g Geofence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.geofences[familyID] = append(r.geofences[familyID], g)
}

func (r *memoryRepository) RemoveFamily(familyID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[familyID] {
		filtered := r.families[m.UserID][:0]
		for _, fid := range r.families[m.UserID] {
			if fid != familyID {
				filtered = append(filtered, fid)
			}
		}
		r.families[m.UserID] = filtered
	}
	delete(r.members, familyID)
	delete(r.geofences, familyID)
	delete(r.familyGhost, familyID)
}

func (r *memoryRepository) RemoveMember(familyID, userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	filtered := r.members[familyID][:0]
	for _, m := range r.members[familyID] {
		if m.UserID != userID {
			filtered = append(filtered, m)
		}
	}
	r.members[familyID] = filtered

	filteredFamilies := r.families[userID][:0]
	for _, fid := range r.families[userID] {
		if fid != familyID {
			filteredFamilies = append(filteredFamilies, fid)
		}
	}
	r.families[userID] = filteredFamilies
}

func (r *memoryRepository) SetGlobalGhost(ctx context.Context, userID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.globalGhost[userID] = enabled
	return nil
}

func (r *memoryRepository) SetFamilyGhost(ctx context.Context, userID, familyID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.familyGhost[familyID] == nil {
		r.familyGhost[familyID] = make(map[string]bool)
	}
	r.familyGhost[familyID][userID] = enabled
	return nil
}

func (r *memoryRepository) IsGhost(ctx context.Context, userID, familyID string) (GhostStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.globalGhost[userID] {
		return GhostStatus{Enabled: true, Scope: "global"}, nil
	}
	if r.familyGhost[familyID] != nil && r.familyGhost[familyID][userID] {
		return GhostStatus{Enabled: true, Scope: "family"}, nil
	}
	return GhostStatus{Enabled: false, Scope: "none"}, nil
}

func (r *memoryRepository) GhostModesOf(ctx context.Context, userID string) (GhostModes, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	modes := GhostModes{Global: r.globalGhost[userID], PerFamily: make(map[string]bool)}
	for fid, users := range r.familyGhost {
		if enabled, ok := users[userID]; ok {
			modes.PerFamily[fid] = enabled
		}
	}
	return modes, nil
}
