package core

import (
	"math"
	"sort"
)

// PlaneKey identifies an orbital plane by coarse inclination and RAAN
// buckets. Satellites whose elements fall in the same buckets are
// treated as co-planar for topology purposes.
type PlaneKey struct {
	InclBucket int
	RAANBucket int
}

// PlaneGroup is one orbital plane: its bucket key, the representative
// RAAN used for adjacent-plane ordering, and its member satellites
// ordered by in-plane phase angle. The ordering defines intra-plane
// ring adjacency.
type PlaneGroup struct {
	Key     PlaneKey
	RAANDeg float64
	SatIDs  []int
}

// ClassifyParams controls plane bucketing. Bucket widths are degrees.
type ClassifyParams struct {
	InclBucketDeg float64
	RAANBucketDeg float64
}

// DefaultClassifyParams matches typical Walker shell spacing: planes
// more than a few degrees apart in RAAN land in distinct buckets.
func DefaultClassifyParams() ClassifyParams {
	return ClassifyParams{InclBucketDeg: 5, RAANBucketDeg: 10}
}

// ClassifyPlanes groups satellites into orbital planes and orders each
// group by phase angle. Groups are returned sorted by RAAN so that
// index neighbours are RAAN-adjacent planes.
func ClassifyPlanes(positions []SatellitePosition, params ClassifyParams) []PlaneGroup {
	if params.InclBucketDeg <= 0 {
		params.InclBucketDeg = DefaultClassifyParams().InclBucketDeg
	}
	if params.RAANBucketDeg <= 0 {
		params.RAANBucketDeg = DefaultClassifyParams().RAANBucketDeg
	}

	type member struct {
		id    int
		phase float64
	}
	groups := make(map[PlaneKey][]member)
	raanSum := make(map[PlaneKey]float64)

	for _, sp := range positions {
		key := PlaneKey{
			InclBucket: int(math.Floor(sp.InclinationDeg / params.InclBucketDeg)),
			RAANBucket: int(math.Floor(normalizeDeg(sp.RAANDeg) / params.RAANBucketDeg)),
		}
		groups[key] = append(groups[key], member{id: sp.ID, phase: argumentOfLatitudeDeg(sp)})
		raanSum[key] += normalizeDeg(sp.RAANDeg)
	}

	out := make([]PlaneGroup, 0, len(groups))
	for key, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			if members[i].phase != members[j].phase {
				return members[i].phase < members[j].phase
			}
			return members[i].id < members[j].id
		})
		ids := make([]int, len(members))
		for i, m := range members {
			ids[i] = m.id
		}
		out = append(out, PlaneGroup{
			Key:     key,
			RAANDeg: raanSum[key] / float64(len(members)),
			SatIDs:  ids,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].RAANDeg != out[j].RAANDeg {
			return out[i].RAANDeg < out[j].RAANDeg
		}
		return out[i].Key.InclBucket < out[j].Key.InclBucket
	})
	return out
}

// argumentOfLatitudeDeg recovers the in-plane phase angle of a
// satellite from its ECI position and plane orientation. For circular
// orbits this orders satellites the same way mean anomaly does.
func argumentOfLatitudeDeg(sp SatellitePosition) float64 {
	incRad := sp.InclinationDeg * math.Pi / 180
	raanRad := sp.RAANDeg * math.Pi / 180

	sinI := math.Sin(incRad)
	// Projection of the position onto the ascending-node direction.
	alongNode := sp.Pos.X*math.Cos(raanRad) + sp.Pos.Y*math.Sin(raanRad)

	var u float64
	if math.Abs(sinI) < 1e-9 {
		// Equatorial plane: phase is just the in-plane longitude.
		u = math.Atan2(sp.Pos.Y, sp.Pos.X)
	} else {
		u = math.Atan2(sp.Pos.Z/sinI, alongNode)
	}
	return normalizeDeg(u * 180 / math.Pi)
}

// adjacentPlanes returns the indices of the planes nearest to plane i
// by RAAN, one on each side of the circular RAAN ordering. With a
// single plane there are no neighbours; with two planes there is one.
func adjacentPlanes(planes []PlaneGroup, i int) []int {
	n := len(planes)
	switch {
	case n <= 1:
		return nil
	case n == 2:
		return []int{1 - i}
	default:
		return []int{(i - 1 + n) % n, (i + 1) % n}
	}
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}
