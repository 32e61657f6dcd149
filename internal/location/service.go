// Package location is the C5 location service (spec §4.5): ingesting
// samples into the per-family log and cache, publishing them (with
// ghost-mode masking applied at publish time per the spec's resolved Open
// Question), and serving history/current-location reads.
package location

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"familytether/internal/cache"
	"familytether/internal/geofence"
	"familytether/internal/kv"
	"familytether/internal/logging"
	"familytether/internal/privacy"
)

// Service is the C5 component.
type Service struct {
	kv      kv.Client
	cache   *cache.Cache
	privacy *privacy.Service
}

// New builds a location Service.
func New(client kv.Client, c *cache.Cache, p *privacy.Service) *Service {
	return &Service{kv: client, cache: c, privacy: p}
}

func logKey(familyID string) string { return fmt.Sprintf("locations:family:%s", familyID) }

// Ingest implements spec §4.5's ingest steps. Only the durable log append
// (step 2) can fail the call; cache and publish failures are logged and
// swallowed.
func (s *Service) Ingest(ctx context.Context, userID string, sample Sample) (IngestResult, error) {
	serverTSMs := time.Now().UnixMilli()

	battery := 100
	if sample.BatteryPct != nil {
		battery = *sample.BatteryPct
	}

	fields := map[string]string{
		"user_id":           userID,
		"family_id":         sample.FamilyID,
		"latitude":          strconv.FormatFloat(sample.Latitude, 'f', -1, 64),
		"longitude":         strconv.FormatFloat(sample.Longitude, 'f', -1, 64),
		"accuracy":          strconv.FormatFloat(sample.Accuracy, 'f', -1, 64),
		"timestamp":         strconv.FormatInt(sample.ClientTSMs, 10),
		"battery_level":     strconv.Itoa(battery),
		"server_timestamp":  strconv.FormatInt(serverTSMs, 10),
	}
	if sample.BatteryState != "" {
		fields["battery_state"] = sample.BatteryState
	}
	if sample.Altitude != nil {
		fields["altitude"] = strconv.FormatFloat(*sample.Altitude, 'f', -1, 64)
	}
	if sample.Bearing != nil {
		fields["bearing"] = strconv.FormatFloat(*sample.Bearing, 'f', -1, 64)
	}
	if sample.Speed != nil {
		fields["speed"] = strconv.FormatFloat(*sample.Speed, 'f', -1, 64)
	}

	id, err := s.kv.Append(ctx, logKey(sample.FamilyID), fields)
	if err != nil {
		return IngestResult{}, fmt.Errorf("location: ingest append: %w", err)
	}
	// Soft-cap the family log at about 10,000 entries.
	if err := s.kv.Trim(ctx, logKey(sample.FamilyID), 10000); err != nil {
		logging.Log.WithError(err).Warn("location: log trim failed")
	}

	record := Record{
		ID: id, UserID: userID, FamilyID: sample.FamilyID,
		Latitude: sample.Latitude, Longitude: sample.Longitude, Accuracy: sample.Accuracy,
		ClientTSMs: sample.ClientTSMs, ServerTSMs: serverTSMs, BatteryPct: battery,
		BatteryState: sample.BatteryState,
	}
	if raw, merr := json.Marshal(record); merr == nil {
		if err := s.cache.SetLastLocation(ctx, userID, sample.FamilyID, raw); err != nil {
			logging.Log.WithError(err).Warn("location: cache write-back failed")
		}
	}

	s.publishLocation(ctx, userID, sample, serverTSMs, battery)
	s.evaluateGeofences(ctx, userID, sample)

	return IngestResult{OK: true, MessageID: id, ServerTSMs: serverTSMs}, nil
}

type locationUpdateEvent struct {
	Type         string  `json:"type"`
	UserID       string  `json:"user_id"`
	FamilyID     string  `json:"family_id"`
	Latitude     float64 `json:"lat"`
	Longitude    float64 `json:"lon"`
	Accuracy     float64 `json:"accuracy"`
	ClientTSMs   int64   `json:"client_ts_ms"`
	BatteryPct   int     `json:"battery_pct"`
}

// publishLocation applies ghost-mode masking (spec I3) before publishing —
// the raw sample is stored in the log untouched; only the fan-out copy is
// displaced.
func (s *Service) publishLocation(ctx context.Context, userID string, sample Sample, serverTSMs int64, battery int) {
	lat, lon, accuracy := sample.Latitude, sample.Longitude, sample.Accuracy

	status, err := s.privacy.IsGhost(ctx, userID, sample.FamilyID)
	if err != nil {
		logging.Log.WithError(err).Warn("location: ghost lookup failed, publishing unmasked")
	} else if status.Enabled {
		masked := privacy.Mask(privacy.Location{Latitude: lat, Longitude: lon, AccuracyM: accuracy})
		lat, lon, accuracy = masked.Latitude, masked.Longitude, masked.AccuracyM
	}

	event := locationUpdateEvent{
		Type: "location_update", UserID: userID, FamilyID: sample.FamilyID,
		Latitude: lat, Longitude: lon, Accuracy: accuracy,
		ClientTSMs: sample.ClientTSMs, BatteryPct: battery,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logging.Log.WithError(err).Warn("location: publish marshal failed")
		return
	}
	channel := fmt.Sprintf("family:%s:location", sample.FamilyID)
	if err := s.kv.Publish(ctx, channel, payload); err != nil {
		logging.Log.WithError(err).Warn("location: publish failed")
	}
}

type geofenceAlertEvent struct {
	Type       string  `json:"type"`
	UserID     string  `json:"user_id"`
	FamilyID   string  `json:"family_id"`
	GeofenceID string  `json:"geofence_id"`
	Name       string  `json:"name"`
	DistanceM  float64 `json:"distance_m"`
}

func (s *Service) evaluateGeofences(ctx context.Context, userID string, sample Sample) {
	fences, err := s.cache.GeofencesOf(ctx, sample.FamilyID)
	if err != nil || len(fences) == 0 {
		return
	}
	breaches := geofence.Evaluate(geofence.Sample{Latitude: sample.Latitude, Longitude: sample.Longitude}, fences)
	if len(breaches) == 0 {
		return
	}
	channel := fmt.Sprintf("family:%s:alerts", sample.FamilyID)
	for _, b := range breaches {
		event := geofenceAlertEvent{
			Type: "geofence_alert", UserID: userID, FamilyID: sample.FamilyID,
			GeofenceID: b.GeofenceID, Name: b.Name, DistanceM: b.DistanceM,
		}
		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := s.kv.Publish(ctx, channel, payload); err != nil {
			logging.Log.WithError(err).Warn("location: geofence alert publish failed")
		}
	}
}
