package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// earthMuKm3S2 is the Earth's standard gravitational parameter (km^3/s^2).
const earthMuKm3S2 = 398600.4418

// SatellitePosition is one satellite's state as reported by a
// PositionProvider: an ECI position plus the orbital-plane elements the
// plane classifier buckets on.
type SatellitePosition struct {
	ID             int
	Pos            Vec3
	InclinationDeg float64
	RAANDeg        float64
}

// PositionProvider produces the full constellation state for a given
// simulation time. Implementations must be deterministic per timestamp.
type PositionProvider interface {
	PositionsAt(t time.Time) ([]SatellitePosition, error)
}

// WalkerProvider generates a synthetic Walker-delta constellation with
// circular orbits, propagated in closed form. It needs no TLE input and
// is exactly reproducible, which makes it the default for scenario runs
// and tests.
type WalkerProvider struct {
	Planes         int
	SatsPerPlane   int
	AltitudeKm     float64
	InclinationDeg float64
	// Phasing is the Walker F parameter: the inter-plane phase offset in
	// units of 360/(Planes*SatsPerPlane) degrees.
	Phasing int
	Epoch   time.Time
}

// PositionsAt computes every satellite's ECI position at t. Satellite
// ids are assigned plane-major: plane p, slot s -> p*SatsPerPlane + s.
func (w *WalkerProvider) PositionsAt(t time.Time) ([]SatellitePosition, error) {
	if w.Planes <= 0 || w.SatsPerPlane <= 0 {
		return nil, fmt.Errorf("walker provider: planes and sats per plane must be positive")
	}
	r := EarthRadiusKm + w.AltitudeKm
	n := math.Sqrt(earthMuKm3S2 / (r * r * r)) // mean motion, rad/s
	dt := t.Sub(w.Epoch).Seconds()
	incRad := w.InclinationDeg * math.Pi / 180

	total := w.Planes * w.SatsPerPlane
	out := make([]SatellitePosition, 0, total)
	for p := 0; p < w.Planes; p++ {
		raanDeg := 360.0 * float64(p) / float64(w.Planes)
		raanRad := raanDeg * math.Pi / 180
		for s := 0; s < w.SatsPerPlane; s++ {
			u0 := 2 * math.Pi * (float64(s)/float64(w.SatsPerPlane) +
				float64(w.Phasing)*float64(p)/float64(total))
			u := u0 + n*dt
			out = append(out, SatellitePosition{
				ID:             p*w.SatsPerPlane + s,
				Pos:            orbitalToECI(r, raanRad, incRad, u),
				InclinationDeg: w.InclinationDeg,
				RAANDeg:        raanDeg,
			})
		}
	}
	return out, nil
}

// orbitalToECI converts a circular-orbit argument of latitude u into an
// ECI position for the plane described by raan and inc (radians).
func orbitalToECI(r, raan, inc, u float64) Vec3 {
	cosU, sinU := math.Cos(u), math.Sin(u)
	cosO, sinO := math.Cos(raan), math.Sin(raan)
	cosI := math.Cos(inc)
	return Vec3{
		X: r * (cosO*cosU - sinO*sinU*cosI),
		Y: r * (sinO*cosU + cosO*sinU*cosI),
		Z: r * sinU * math.Sin(inc),
	}
}

// SGP4Provider propagates real TLE sets with go-satellite. Plane
// elements are taken from the TLE epoch; RAAN drift over a short
// simulation horizon is small enough for bucket classification.
type SGP4Provider struct {
	sats []sgp4Entry
}

type sgp4Entry struct {
	id             int
	sat            satellite.Satellite
	inclinationDeg float64
	raanDeg        float64
}

// NewSGP4Provider builds a provider from parallel TLE line pairs.
// Satellite ids are assigned in input order. Plane elements are parsed
// from line 2 here since the propagator keeps them internal.
func NewSGP4Provider(tles [][2]string) (*SGP4Provider, error) {
	if len(tles) == 0 {
		return nil, fmt.Errorf("sgp4 provider: no TLE entries")
	}
	p := &SGP4Provider{sats: make([]sgp4Entry, 0, len(tles))}
	for i, pair := range tles {
		if pair[0] == "" || pair[1] == "" {
			return nil, fmt.Errorf("sgp4 provider: TLE entry %d has empty lines", i)
		}
		inc, raan, err := tlePlaneElements(pair[1])
		if err != nil {
			return nil, fmt.Errorf("sgp4 provider: TLE entry %d: %w", i, err)
		}
		sat := satellite.TLEToSat(pair[0], pair[1], satellite.GravityWGS72)
		p.sats = append(p.sats, sgp4Entry{id: i, sat: sat, inclinationDeg: inc, raanDeg: raan})
	}
	return p, nil
}

// tlePlaneElements reads inclination (columns 9-16) and RAAN (columns
// 18-25) in degrees from TLE line 2.
func tlePlaneElements(line2 string) (incDeg, raanDeg float64, err error) {
	if len(line2) < 25 {
		return 0, 0, fmt.Errorf("line 2 shorter than the element fields")
	}
	incDeg, err = strconv.ParseFloat(strings.TrimSpace(line2[8:16]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("inclination field: %w", err)
	}
	raanDeg, err = strconv.ParseFloat(strings.TrimSpace(line2[17:25]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("raan field: %w", err)
	}
	return incDeg, raanDeg, nil
}

// PositionsAt propagates every satellite to t. Positions stay in the
// inertial TEME frame; the topology layer only needs relative geometry,
// which is frame-independent for satellite pairs.
func (p *SGP4Provider) PositionsAt(t time.Time) ([]SatellitePosition, error) {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	out := make([]SatellitePosition, 0, len(p.sats))
	for _, e := range p.sats {
		pos, _ := satellite.Propagate(e.sat, year, int(month), day, hour, min, sec)
		out = append(out, SatellitePosition{
			ID:             e.id,
			Pos:            Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
			InclinationDeg: e.inclinationDeg,
			RAANDeg:        e.raanDeg,
		})
	}
	return out, nil
}
