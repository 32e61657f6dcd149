package geofence

import (
	"testing"

	"familytether/internal/repository"
)

func TestEvaluateBreachOutsideRadius(t *testing.T) {
	fences := []repository.Geofence{
		{ID: "home", Name: "Home", Latitude: 12.9716, Longitude: 77.5946, RadiusM: 200, Enabled: true},
	}
	// Roughly 11km away.
	sample := Sample{Latitude: 13.0716, Longitude: 77.5946}

	breaches := Evaluate(sample, fences)
	if len(breaches) != 1 {
		t.Fatalf("expected 1 breach, got %d", len(breaches))
	}
	if breaches[0].GeofenceID != "home" {
		t.Fatalf("expected home breach, got %s", breaches[0].GeofenceID)
	}
	if breaches[0].DistanceM < 5000 {
		t.Fatalf("expected a large distance, got %f", breaches[0].DistanceM)
	}
}

func TestEvaluateInsideRadiusNoBreach(t *testing.T) {
	fences := []repository.Geofence{
		{ID: "home", Name: "Home", Latitude: 12.9716, Longitude: 77.5946, RadiusM: 5000, Enabled: true},
	}
	sample := Sample{Latitude: 12.9720, Longitude: 77.5950}

	if breaches := Evaluate(sample, fences); len(breaches) != 0 {
		t.Fatalf("expected no breaches, got %+v", breaches)
	}
}

func TestEvaluateSkipsDisabledGeofences(t *testing.T) {
	fences := []repository.Geofence{
		{ID: "home", Latitude: 0, Longitude: 0, RadiusM: 1, Enabled: false},
	}
	sample := Sample{Latitude: 50, Longitude: 50}

	if breaches := Evaluate(sample, fences); len(breaches) != 0 {
		t.Fatalf("expected disabled geofence to be skipped, got %+v", breaches)
	}
}
