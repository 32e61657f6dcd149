// Package cache is the C3 read-through cache layer (spec §4.3) sitting
// between the gateway and the C2 repository, backed by the C1 KV client.
// The key schema, TTLs, and composite invalidations below are copied
// verbatim from the specification.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"familytether/internal/kv"
	"familytether/internal/logging"
	"familytether/internal/repository"
)

const (
	ttlHour    = time.Hour
	ttlFiveMin = 5 * time.Minute
	ttlTwoMin  = 2 * time.Minute
	ttlThirtyD = 30 * 24 * time.Hour
)

// Cache is the C3 component. With Enabled=false it degrades to direct
// repository queries for every read, as required by spec §4.3's feature
// flag and testable scenario 6.
type Cache struct {
	kv      kv.Client
	repo    repository.Repository // admin handle; C3 always reads through the admin handle
	Enabled bool
}

// New builds a Cache. admin must be the admin repository handle — C3 always
// populates itself through it regardless of which handle the caller holds.
func New(client kv.Client, admin repository.Repository, enabled bool) *Cache {
	return &Cache{kv: client, repo: admin, Enabled: enabled}
}

func membersKey(fid string) string       { return fmt.Sprintf("family:%s:members", fid) }
func familiesKey(uid string) string      { return fmt.Sprintf("user:%s:families", uid) }
func geofenceKey(fid string) string      { return fmt.Sprintf("geofence:%s", fid) }
func roleKey(uid, fid string) string     { return fmt.Sprintf("user:%s:family:%s:role", uid, fid) }
func lastLocKey(uid, fid string) string  { return fmt.Sprintf("user:%s:family:%s:last_location", uid, fid) }
func onlineKey(uid, fid string) string   { return fmt.Sprintf("user:%s:family:%s:online", uid, fid) }
func ghostGlobalKey(uid string) string   { return fmt.Sprintf("ghost:global:%s", uid) }
func ghostFamilyKey(fid, uid string) string {
	return fmt.Sprintf("ghost:family:%s:%s", fid, uid)
}

// MembersOf is read-through over family:<fid>:members.
func (c *Cache) MembersOf(ctx context.Context, familyID string) ([]repository.Member, error) {
	if !c.Enabled {
		return c.repo.MembersOf(ctx, familyID)
	}
	key := membersKey(familyID)
	if raw, err := c.kv.Get(ctx, key); err == nil && raw != nil {
		var members []repository.Member
		if json.Unmarshal(raw, &members) == nil {
			return members, nil
		}
	}
	members, err := c.repo.MembersOf(ctx, familyID)
	if err != nil {
		logging.Log.WithError(err).WithField("family_id", familyID).Warn("cache: members_of repository miss")
		return nil, nil
	}
	c.writeBack(ctx, key, members, ttlHour)
	return members, nil
}

// FamiliesOf is read-through over user:<uid>:families.
func (c *Cache) FamiliesOf(ctx context.Context, userID string) ([]string, error) {
	if !c.Enabled {
		return c.repo.FamiliesOf(ctx, userID)
	}
	key := familiesKey(userID)
	if raw, err := c.kv.Get(ctx, key); err == nil && raw != nil {
		var ids []string
		if json.Unmarshal(raw, &ids) == nil {
			return ids, nil
		}
	}
	ids, err := c.repo.FamiliesOf(ctx, userID)
	if err != nil {
		logging.Log.WithError(err).WithField("user_id", userID).Warn("cache: families_of repository miss")
		return nil, nil
	}
	c.writeBack(ctx, key, ids, ttlHour)
	return ids, nil
}

// RoleOf is read-through over user:<uid>:family:<fid>:role.
func (c *Cache) RoleOf(ctx context.Context, userID, familyID string) (repository.Role, bool, error) {
	if !c.Enabled {
		return c.repo.RoleOf(ctx, userID, familyID)
	}
	key := roleKey(userID, familyID)
	if raw, err := c.kv.Get(ctx, key); err == nil && raw != nil {
		return repository.Role(raw), true, nil
	}
	role, ok, err := c.repo.RoleOf(ctx, userID, familyID)
	if err != nil {
		logging.Log.WithError(err).WithField("user_id", userID).Warn("cache: role_of repository miss")
		return "", false, nil
	}
	if ok {
		c.set(ctx, key, []byte(role), ttlHour)
	}
	return role, ok, nil
}

// GeofencesOf is read-through over geofence:<fid>.
func (c *Cache) GeofencesOf(ctx context.Context, familyID string) ([]repository.Geofence, error) {
	if !c.Enabled {
		return c.repo.GeofencesOf(ctx, familyID)
	}
	key := geofenceKey(familyID)
	if raw, err := c.kv.Get(ctx, key); err == nil && raw != nil {
		var fences []repository.Geofence
		if json.Unmarshal(raw, &fences) == nil {
			return fences, nil
		}
	}
	fences, err := c.repo.GeofencesOf(ctx, familyID)
	if err != nil {
		logging.Log.WithError(err).WithField("family_id", familyID).Warn("cache: geofences_of repository miss")
		return nil, nil
	}
	c.writeBack(ctx, key, fences, ttlHour)
	return fences, nil
}

// SetLastLocation stores the most recent sample for (user, family) with the
// 5-minute TTL named in spec §4.5 step 3. payload is caller-supplied JSON.
func (c *Cache) SetLastLocation(ctx context.Context, userID, familyID string, payload []byte) error {
	if !c.Enabled {
		return nil
	}
	return c.kv.Set(ctx, lastLocKey(userID, familyID), payload, ttlFiveMin)
}

// GetLastLocation returns the most recent sample JSON for (user, family), if
// present and not expired.
func (c *Cache) GetLastLocation(ctx context.Context, userID, familyID string) ([]byte, bool, error) {
	if !c.Enabled {
		return nil, false, nil
	}
	raw, err := c.kv.Get(ctx, lastLocKey(userID, familyID))
	if err != nil {
		return nil, false, err
	}
	return raw, raw != nil, nil
}

// SetOnline marks (user, family) online with the 2-minute TTL safety net
// named in spec §4.3 — a clean disconnect clears it explicitly via
// ClearOnline, but the TTL bounds staleness if cleanup is ever missed.
func (c *Cache) SetOnline(ctx context.Context, userID, familyID string) error {
	if !c.Enabled {
		return nil
	}
	return c.kv.Set(ctx, onlineKey(userID, familyID), []byte("1"), ttlTwoMin)
}

// ClearOnline removes the online marker for (user, family).
func (c *Cache) ClearOnline(ctx context.Context, userID, familyID string) error {
	if !c.Enabled {
		return nil
	}
	return c.kv.Del(ctx, onlineKey(userID, familyID))
}

// IsOnline reports whether (user, family) currently carries an online
// marker.
func (c *Cache) IsOnline(ctx context.Context, userID, familyID string) (bool, error) {
	if !c.Enabled {
		return false, nil
	}
	return c.kv.Exists(ctx, onlineKey(userID, familyID))
}

// GhostGlobal reads ghost:global:<uid>, returning ok=false on a cache miss
// so callers fall through to the repository.
func (c *Cache) GhostGlobal(ctx context.Context, userID string) (enabled bool, ok bool, err error) {
	if !c.Enabled {
		return false, false, nil
	}
	raw, err := c.kv.Get(ctx, ghostGlobalKey(userID))
	if err != nil || raw == nil {
		return false, false, err
	}
	return string(raw) == "1", true, nil
}

// SetGhostGlobal writes ghost:global:<uid> with the 30-day TTL from §4.3.
func (c *Cache) SetGhostGlobal(ctx context.Context, userID string, enabled bool) error {
	if !c.Enabled {
		return nil
	}
	return c.kv.Set(ctx, ghostGlobalKey(userID), []byte(boolFlag(enabled)), ttlThirtyD)
}

// GhostFamily reads ghost:family:<fid>:<uid>.
func (c *Cache) GhostFamily(ctx context.Context, familyID, userID string) (enabled bool, ok bool, err error) {
	if !c.Enabled {
		return false, false, nil
	}
	raw, err := c.kv.Get(ctx, ghostFamilyKey(familyID, userID))
	if err != nil || raw == nil {
		return false, false, err
	}
	return string(raw) == "1", true, nil
}

// SetGhostFamily writes ghost:family:<fid>:<uid> with the 30-day TTL.
func (c *Cache) SetGhostFamily(ctx context.Context, familyID, userID string, enabled bool) error {
	if !c.Enabled {
		return nil
	}
	return c.kv.Set(ctx, ghostFamilyKey(familyID, userID), []byte(boolFlag(enabled)), ttlThirtyD)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// RefreshFamily drops the family's members, geofences and each member's
// role, then repopulates members and geofences; roles are left to repopulate
// on the next RoleOf read. It is the update-then-repopulate
// variant named in §4.3 for callers wanting fresh data immediately, and the
// handler behind the `refresh_family_cache` verb (spec §4.6).
func (c *Cache) RefreshFamily(ctx context.Context, familyID string) error {
	if err := c.kv.Del(ctx, membersKey(familyID)); err != nil {
		return err
	}
	if err := c.kv.Del(ctx, geofenceKey(familyID)); err != nil {
		return err
	}
	members, err := c.MembersOf(ctx, familyID)
	if err != nil {
		return err
	}
	for _, m := range members {
		_ = c.kv.Del(ctx, roleKey(m.UserID, familyID))
	}
	_, err = c.GeofencesOf(ctx, familyID)
	return err
}

func (c *Cache) set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if err := c.kv.Set(ctx, key, value, ttl); err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("cache: write-back failed")
	}
}

func (c *Cache) writeBack(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		logging.Log.WithError(err).WithField("key", key).Warn("cache: marshal failed")
		return
	}
	c.set(ctx, key, raw, ttl)
}
