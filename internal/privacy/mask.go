package privacy

import (
	"math"
	"math/rand/v2"
)

// Location is the minimal coordinate pair the masking transform operates
// on. Spec §9 notes the source uses Math.random() for this; any
// well-seeded PRNG suffices, so this uses math/rand/v2 — no library in the
// corpus supplies a geodesic displacement primitive, so this one function
// is deliberately stdlib (see DESIGN.md).
type Location struct {
	Latitude  float64
	Longitude float64
	AccuracyM float64
}

const (
	minDisplacementDeg = 0.005
	maxDisplacementDeg = 0.010
	maskedAccuracyM    = 1000.0
)

// Mask displaces loc by a random vector with magnitude in
// [0.005, 0.010] degrees, isotropic in angle, and reports 1000 m accuracy
// (spec §4.4).
func Mask(loc Location) Location {
	angle := rand.Float64() * 2 * math.Pi
	magnitude := minDisplacementDeg + rand.Float64()*(maxDisplacementDeg-minDisplacementDeg)

	return Location{
		Latitude:  loc.Latitude + magnitude*math.Sin(angle),
		Longitude: loc.Longitude + magnitude*math.Cos(angle),
		AccuracyM: maskedAccuracyM,
	}
}
