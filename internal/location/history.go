package location

import (
	"context"
	"fmt"
	"strconv"

	"familytether/internal/logging"
)

// History implements spec §4.5's history(). It reads up to limit raw log
// entries after afterID, then filters by userID if one was requested — a
// caller asking for one user's history over a busy shared family log may
// get fewer than limit matching rows back; they can page forward using
// LastID, which always reflects the raw log position, not the filtered
// count.
func (s *Service) History(ctx context.Context, familyID, userID string, limit int64, afterID string) (HistoryResult, error) {
	if limit <= 0 {
		limit = 100
	}
	if afterID == "" {
		afterID = "-"
	}

	entries, err := s.kv.ReadLog(ctx, logKey(familyID), afterID, limit)
	if err != nil {
		return HistoryResult{}, fmt.Errorf("location: history read_log: %w", err)
	}

	result := HistoryResult{LastID: afterID}
	for _, e := range entries {
		result.LastID = e.ID
		if userID != "" && e.Fields["user_id"] != userID {
			continue
		}
		result.Locations = append(result.Locations, decodeRecord(e.ID, e.Fields))
	}
	return result, nil
}

func decodeRecord(id string, fields map[string]string) Record {
	r := Record{ID: id, UserID: fields["user_id"], FamilyID: fields["family_id"]}
	r.Latitude = parseFloat(fields["latitude"])
	r.Longitude = parseFloat(fields["longitude"])
	r.Accuracy = parseFloat(fields["accuracy"])
	r.ClientTSMs = parseInt(fields["timestamp"])
	r.ServerTSMs = parseInt(fields["server_timestamp"])
	r.BatteryPct = 100
	if v, ok := fields["battery_level"]; ok {
		r.BatteryPct = int(parseInt(v))
	}
	r.BatteryState = fields["battery_state"]
	r.Altitude = parseFloat(fields["altitude"])
	r.Bearing = parseFloat(fields["bearing"])
	r.Speed = parseFloat(fields["speed"])
	return r
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		logging.Log.WithField("value", s).Debug("location: failed to parse float log field")
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		logging.Log.WithField("value", s).Debug("location: failed to parse int log field")
		return 0
	}
	return v
}
