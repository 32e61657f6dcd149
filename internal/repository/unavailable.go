package repository

import "context"

// unavailableRepository is the sentinel named in spec §4.2: when the
// external record-of-truth isn't configured, reads return empty results and
// writes fail explicitly (spec §7, RepositoryUnavailable).
type unavailableRepository struct{}

// NewUnavailable returns a Repository that behaves as if the store were
// never configured.
func NewUnavailable() Repository { return unavailableRepository{} }

func (unavailableRepository) MembersOf(context.Context, string) ([]Member, error) {
	return nil, nil
}

func (unavailableRepository) FamiliesOf(context.Context, string) ([]string, error) {
	return nil, nil
}

func (unavailableRepository) RoleOf(context.Context, string, string) (Role, bool, error) {
	return "", false, nil
}

func (unavailableRepository) GeofencesOf(context.Context, string) ([]Geofence, error) {
	return nil, nil
}

func (unavailableRepository) SetGlobalGhost(context.Context, string, bool) error {
	return ErrUnavailable{Op: "set_global_ghost"}
}

func (unavailableRepository) SetFamilyGhost(context.Context, string, string, bool) error {
	return ErrUnavailable{Op: "set_family_ghost"}
}

func (unavailableRepository) IsGhost(context.Context, string, string) (GhostStatus, error) {
	return GhostStatus{Enabled: false, Scope: "none"}, nil
}

func (unavailableRepository) GhostModesOf(context.Context, string) (GhostModes, error) {
	return GhostModes{PerFamily: map[string]bool{}}, nil
}
