package location

import (
	"context"
	"encoding/json"
)

// AllCurrent implements spec §4.5's all_current(): resolve membership via
// the cache, then the last cached location per member. Missing entries are
// omitted, never synthesized.
func (s *Service) AllCurrent(ctx context.Context, familyID string) ([]CurrentLocation, error) {
	members, err := s.cache.MembersOf(ctx, familyID)
	if err != nil {
		return nil, err
	}

	var out []CurrentLocation
	for _, m := range members {
		raw, ok, err := s.cache.GetLastLocation(ctx, m.UserID, familyID)
		if err != nil || !ok {
			continue
		}
		var record Record
		if err := json.Unmarshal(raw, &record); err != nil {
			continue
		}
		out = append(out, CurrentLocation{UserID: m.UserID, Record: record})
	}
	return out, nil
}
