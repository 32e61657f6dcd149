package repository

import (
	"context"
	"fmt"
)

// tenantHandle wraps an admin Repository with row-level authorization: a
// tenant caller may only read or write data tied to its own requestingUserID
// (spec §4.2, "tenant handle that enforces row-level authorization").
type tenantHandle struct {
	admin            Repository
	requestingUserID string
}

// NewTenantHandle scopes repo to a single requesting user.
func NewTenantHandle(admin Repository, requestingUserID string) Repository {
	return &tenantHandle{admin: admin, requestingUserID: requestingUserID}
}

func (t *tenantHandle) MembersOf(ctx context.Context, familyID string) ([]Member, error) {
	role, ok, err := t.admin.RoleOf(ctx, t.requestingUserID, familyID)
	if err != nil {
		return nil, err
	}
	if !ok || role == "" {
		return nil, fmt.Errorf("repository: tenant %s not authorized for family %s", t.requestingUserID, familyID)
	}
	return t.admin.MembersOf(ctx, familyID)
}

func (t *tenantHandle) FamiliesOf(ctx context.Context, userID string) ([]string, error) {
	if userID != t.requestingUserID {
		return nil, fmt.Errorf("repository: tenant %s not authorized for user %s", t.requestingUserID, userID)
	}
	return t.admin.FamiliesOf(ctx, userID)
}

func (t *tenantHandle) RoleOf(ctx context.Context, userID, familyID string) (Role, bool, error) {
	if userID != t.requestingUserID {
		return "", false, fmt.Errorf("repository: tenant %s not authorized for user %s", t.requestingUserID, userID)
	}
	return t.admin.RoleOf(ctx, userID, familyID)
}

func (t *tenantHandle) GeofencesOf(ctx context.Context, familyID string) ([]Geofence, error) {
	role, ok, err := t.admin.RoleOf(ctx, t.requestingUserID, familyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("repository: tenant %s not authorized for family %s", t.requestingUserID, familyID)
	}
	return t.admin.GeofencesOf(ctx, familyID)
}

func (t *tenantHandle) SetGlobalGhost(ctx context.Context, userID string, enabled bool) error {
	if userID != t.requestingUserID {
		return fmt.Errorf("repository: tenant %s not authorized for user %s", t.requestingUserID, userID)
	}
	return t.admin.SetGlobalGhost(ctx, userID, enabled)
}

func (t *tenantHandle) SetFamilyGhost(ctx context.Context, userID, familyID string, enabled bool) error {
	if userID != t.requestingUserID {
		return fmt.Errorf("repository: tenant %s not authorized for user %s", t.requestingUserID, userID)
	}
	return t.admin.SetFamilyGhost(ctx, userID, familyID, enabled)
}

func (t *tenantHandle) IsGhost(ctx context.Context, userID, familyID string) (GhostStatus, error) {
	if userID != t.requestingUserID {
		return GhostStatus{}, fmt.Errorf("repository: tenant %s not authorized for user %s", t.requestingUserID, userID)
	}
	return t.admin.IsGhost(ctx, userID, familyID)
}

func (t *tenantHandle) GhostModesOf(ctx context.Context, userID string) (GhostModes, error) {
	if userID != t.requestingUserID {
		return GhostModes{}, fmt.Errorf("repository: tenant %s not authorized for user %s", t.requestingUserID, userID)
	}
	return t.admin.GhostModesOf(ctx, userID)
}
