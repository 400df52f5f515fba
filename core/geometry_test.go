package core

import (
	"math"
	"testing"
)

func TestHasLineOfSight_NoObstruction(t *testing.T) {
	// Two satellites high and on the same side of Earth, separated in Y.
	// The segment between them stays at x ≈ 8000 km, well outside Earth.
	posA := Vec3{X: 8000, Y: 0, Z: 0}
	posB := Vec3{X: 8000, Y: 1000, Z: 0}

	if !HasLineOfSight(posA, posB, EarthRadiusKm+100) {
		t.Errorf("expected LoS between two high satellites on same side of Earth")
	}
}

func TestHasLineOfSight_Obstructed(t *testing.T) {
	// Opposite sides: the chord passes through the Earth.
	posA := Vec3{X: 7000, Y: 0, Z: 0}
	posB := Vec3{X: -7000, Y: 0, Z: 0}

	if HasLineOfSight(posA, posB, EarthRadiusKm+100) {
		t.Errorf("expected LoS to be blocked by Earth")
	}
}

func TestHasLineOfSight_GrazingMargin(t *testing.T) {
	// Chord between two satellites at x = ±3000 passes the centre at
	// exactly y = 6500 km: above the bare Earth radius but below a
	// 200 km clearance margin.
	posA := Vec3{X: 3000, Y: 6500, Z: 0}
	posB := Vec3{X: -3000, Y: 6500, Z: 0}

	if !HasLineOfSight(posA, posB, EarthRadiusKm) {
		t.Errorf("segment at 6500 km should clear the bare Earth radius")
	}
	if HasLineOfSight(posA, posB, EarthRadiusKm+200) {
		t.Errorf("segment at 6500 km should fail a 200 km clearance margin")
	}
}

func TestClosestApproach_ClampsToEndpoints(t *testing.T) {
	// Both endpoints on the same side, far from the perpendicular foot:
	// the closest point must clamp to an endpoint, not extrapolate past
	// the segment.
	posA := Vec3{X: 7000, Y: 100, Z: 0}
	posB := Vec3{X: 7000, Y: 2000, Z: 0}

	got := closestApproachKm(posA, posB)
	want := posA.Norm()
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("closest approach = %.6f, want endpoint norm %.6f", got, want)
	}
}

func TestClosestApproach_DegenerateSegment(t *testing.T) {
	p := Vec3{X: 7000, Y: 0, Z: 0}
	if got := closestApproachKm(p, p); math.Abs(got-7000) > 1e-9 {
		t.Errorf("degenerate segment closest approach = %.3f, want 7000", got)
	}
}

func TestElevationDegrees(t *testing.T) {
	observer := Vec3{X: EarthRadiusKm, Y: 0, Z: 0}

	// Directly overhead.
	overhead := Vec3{X: EarthRadiusKm + 550, Y: 0, Z: 0}
	if e := ElevationDegrees(observer, overhead); math.Abs(e-90) > 1e-6 {
		t.Errorf("overhead elevation = %.3f, want 90", e)
	}

	// On the geometric horizon plane.
	horizon := Vec3{X: EarthRadiusKm, Y: 1000, Z: 0}
	if e := ElevationDegrees(observer, horizon); math.Abs(e) > 1e-6 {
		t.Errorf("horizon elevation = %.3f, want 0", e)
	}

	// Below the horizon.
	below := Vec3{X: EarthRadiusKm - 500, Y: 1000, Z: 0}
	if e := ElevationDegrees(observer, below); e >= 0 {
		t.Errorf("below-horizon elevation = %.3f, want negative", e)
	}
}

func TestLinkLatency(t *testing.T) {
	l := newLink(3, 1, LinkInterPlane, 2997.92458)
	if l.A != 1 || l.B != 3 {
		t.Fatalf("link endpoints not normalised: got (%d, %d)", l.A, l.B)
	}
	if math.Abs(l.LatencySec-0.01) > 1e-9 {
		t.Errorf("latency = %.6f s, want 0.01 s", l.LatencySec)
	}
}
