package core

import "math"

// EarthRadiusKm is the mean Earth radius used for all geometry in the
// topology layer (kilometres).
const EarthRadiusKm = 6371.0

// SpeedOfLightKmPerSec converts link distances into propagation latency.
const SpeedOfLightKmPerSec = 299792.458

// Vec3 is an ECI-style position vector in kilometres.
type Vec3 struct {
	X, Y, Z float64
}

// DistanceTo returns the straight-line distance between two points.
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Norm returns the Euclidean norm of the vector.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Sub returns v - other.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale returns v multiplied by s.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// Dot returns the dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// IsFinite reports whether all components are finite numbers.
func (v Vec3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}

// closestApproachKm returns the minimum distance between the segment
// p1–p2 and the Earth's centre. The closest point is found by clamped
// projection of the origin onto the segment: t* minimises |p1 + t v|^2
// over t ∈ [0, 1].
func closestApproachKm(p1, p2 Vec3) float64 {
	v := p2.Sub(p1)
	a := v.Dot(v)
	if a == 0 {
		// Degenerate case: both endpoints coincide.
		return p1.Norm()
	}

	t := -p1.Dot(v) / a
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	closest := Vec3{
		X: p1.X + v.X*t,
		Y: p1.Y + v.Y*t,
		Z: p1.Z + v.Z*t,
	}
	return closest.Norm()
}

// HasLineOfSight reports whether the straight segment between p1 and p2
// clears the Earth with the given grazing clearance. clearanceKm is the
// total required distance from the Earth's centre (Earth radius plus
// atmospheric margin), not the margin alone.
func HasLineOfSight(p1, p2 Vec3, clearanceKm float64) bool {
	return closestApproachKm(p1, p2) >= clearanceKm
}

// ElevationDegrees returns the elevation angle of the target as seen
// from the observer, in degrees. 0° = geometric horizon, 90° = overhead.
// The angle is taken against the observer's local zenith, its position
// vector, with neither vector normalised before the dot product.
func ElevationDegrees(observer, target Vec3) float64 {
	v := target.Sub(observer)
	vNorm := v.Norm()
	r := observer.Norm()
	if vNorm == 0 || r == 0 {
		return 90
	}

	sinElev := v.Dot(observer) / (vNorm * r)
	if sinElev > 1 {
		sinElev = 1
	} else if sinElev < -1 {
		sinElev = -1
	}
	return math.Asin(sinElev) * 180.0 / math.Pi
}
