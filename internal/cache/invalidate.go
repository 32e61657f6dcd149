package cache

import (
	"context"

	"familytether/internal/logging"
)

// OnUserJoinsFamily drops the entries spec §4.3 lists for a membership add.
func (c *Cache) OnUserJoinsFamily(ctx context.Context, userID, familyID string) {
	c.dropAll(ctx, familiesKey(userID), membersKey(familyID))
}

// OnUserLeavesFamily drops the entries listed for a membership removal.
func (c *Cache) OnUserLeavesFamily(ctx context.Context, userID, familyID string) {
	c.dropAll(ctx,
		familiesKey(userID),
		membersKey(familyID),
		roleKey(userID, familyID),
		lastLocKey(userID, familyID),
		onlineKey(userID, familyID),
	)
}

// OnFamilyDeleted drops the family's own entries plus every member's
// family-scoped entries. members must be the membership snapshot taken
// before deletion, per the `family_deleted` verb's "snapshot members, then
// invalidate" ordering (spec §4.6).
func (c *Cache) OnFamilyDeleted(ctx context.Context, familyID string, memberUserIDs []string) {
	keys := []string{membersKey(familyID), geofenceKey(familyID)}
	for _, uid := range memberUserIDs {
		keys = append(keys,
			roleKey(uid, familyID),
			lastLocKey(uid, familyID),
			onlineKey(uid, familyID),
			familiesKey(uid),
			ghostFamilyKey(familyID, uid),
		)
	}
	c.dropAll(ctx, keys...)
}

// OnUserDeleted drops the user's own families entry plus, for each family
// they belonged to, every per-family entry touching them and the family's
// member list.
func (c *Cache) OnUserDeleted(ctx context.Context, userID string, familyIDs []string) {
	keys := []string{familiesKey(userID), ghostGlobalKey(userID)}
	for _, fid := range familyIDs {
		keys = append(keys,
			roleKey(userID, fid),
			lastLocKey(userID, fid),
			onlineKey(userID, fid),
			ghostFamilyKey(fid, userID),
			membersKey(fid),
		)
	}
	c.dropAll(ctx, keys...)
}

// InvalidateGhostFamily drops a single member's per-family ghost cache
// entry, used by the privacy service's cross-family/cross-member helpers.
func (c *Cache) InvalidateGhostFamily(ctx context.Context, familyID, userID string) error {
	return c.kv.Del(ctx, ghostFamilyKey(familyID, userID))
}

// InvalidateRole drops a single member's cached role within a family, used
// by the member_role_updated verb so the next RoleOf read repopulates from
// the repository.
func (c *Cache) InvalidateRole(ctx context.Context, userID, familyID string) error {
	return c.kv.Del(ctx, roleKey(userID, familyID))
}

func (c *Cache) dropAll(ctx context.Context, keys ...string) {
	for _, k := range keys {
		if err := c.kv.Del(ctx, k); err != nil {
			logging.Log.WithError(err).WithField("key", k).Warn("cache: invalidation failed")
		}
	}
}
