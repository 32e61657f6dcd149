package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgRepository is a pgxpool-backed Repository. The same struct serves both
// the admin and tenant handles named in spec §4.2: the tenant handle is
// NewTenantHandle wrapping this admin handle with a Go-side
// `requestingUserID` check; no query string carries an authorization
// predicate.
type pgRepository struct {
	pool *pgxpool.Pool
}

// NewAdminHandle opens a pgxpool connection for the admin handle, which
// bypasses row-level authorization and is used for membership/geofence
// fan-out queries (spec §4.2).
func NewAdminHandle(ctx context.Context, dsn string) (Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("repository: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("repository: ping: %w", err)
	}
	return &pgRepository{pool: pool}, nil
}

func (r *pgRepository) Close() {
	r.pool.Close()
}

func (r *pgRepository) MembersOf(ctx context.Context, familyID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, m.role, u.display_name, u.avatar, m.joined_at
		FROM family_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.family_id = $1`, familyID)
	if err != nil {
		return nil, wrapUnavailable("members_of", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Role, &m.DisplayName, &m.Avatar, &m.JoinedAt); err != nil {
			return nil, wrapUnavailable("members_of", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *pgRepository) FamiliesOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT family_id FROM family_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, wrapUnavailable("families_of", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			return nil, wrapUnavailable("families_of", err)
		}
		out = append(out, fid)
	}
	return out, rows.Err()
}

func (r *pgRepository) RoleOf(ctx context.Context, userID, familyID string) (Role, bool, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `SELECT role FROM family_members WHERE user_id = $1 AND family_id = $2`, userID, familyID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapUnavailable("role_of", err)
	}
	return role, true, nil
}

func (r *pgRepository) GeofencesOf(ctx context.Context, familyID string) ([]Geofence, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, family_id, name, latitude, longitude, radius_m, enabled
		FROM geofences WHERE family_id = $1 AND enabled = true`, familyID)
	if err != nil {
		return nil, wrapUnavailable("geofences_of", err)
	}
	defer rows.Close()

	var out []Geofence
	for rows.Next() {
		var g Geofence
		if err := rows.Scan(&g.ID, &g.FamilyID, &g.Name, &g.Latitude, &g.Longitude, &g.RadiusM, &g.Enabled); err != nil {
			return nil, wrapUnavailable("geofences_of", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *pgRepository) SetGlobalGhost(ctx context.Context, userID string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_privacy (user_id, global_ghost) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET global_ghost = $2`, userID, enabled)
	if err != nil {
		return wrapUnavailable("set_global_ghost", err)
	}
	return nil
}

func (r *pgRepository) SetFamilyGhost(ctx context.Context, userID, familyID string, enabled bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO family_ghost (user_id, family_id, enabled) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, family_id) DO UPDATE SET enabled = $3`, userID, familyID, enabled)
	if err != nil {
		return wrapUnavailable("set_family_ghost", err)
	}
	return nil
}

func (r *pgRepository) IsGhost(ctx context.Context, userID, familyID string) (GhostStatus, error) {
	var global bool
	err := r.pool.QueryRow(ctx, `SELECT global_ghost FROM user_privacy WHERE user_id = $1`, userID).Scan(&global)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return GhostStatus{}, wrapUnavailable("is_ghost", err)
	}
	if global {
		return GhostStatus{Enabled: true, Scope: "global"}, nil
	}

	var familyEnabled bool
	err = r.pool.QueryRow(ctx, `SELECT enabled FROM family_ghost WHERE user_id = $1 AND family_id = $2`, userID, familyID).Scan(&familyEnabled)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return GhostStatus{}, wrapUnavailable("is_ghost", err)
	}
	if familyEnabled {
		return GhostStatus{Enabled: true, Scope: "family"}, nil
	}
	return GhostStatus{Enabled: false, Scope: "none"}, nil
}

func (r *pgRepository) GhostModesOf(ctx context.Context, userID string) (GhostModes, error) {
	modes := GhostModes{PerFamily: make(map[string]bool)}

	err := r.pool.QueryRow(ctx, `SELECT global_ghost FROM user_privacy WHERE user_id = $1`, userID).Scan(&modes.Global)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return GhostModes{}, wrapUnavailable("ghost_modes_of", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT family_id, enabled FROM family_ghost WHERE user_id = $1`, userID)
	if err != nil {
		return GhostModes{}, wrapUnavailable("ghost_modes_of", err)
	}
	defer rows.Close()
	for rows.Next() {
		var fid string
		var enabled bool
		if err := rows.Scan(&fid, &enabled); err != nil {
			return GhostModes{}, wrapUnavailable("ghost_modes_of", err)
		}
		modes.PerFamily[fid] = enabled
	}
	return modes, rows.Err()
}

func wrapUnavailable(op string, err error) error {
	return fmt.Errorf("repository: %s: %w", op, err)
}
