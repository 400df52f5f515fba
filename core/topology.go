package core

import (
	"math/rand"
	"sort"
	"time"
)

// LinkType distinguishes ring links inside one orbital plane from
// cross-plane links.
type LinkType string

const (
	LinkIntraPlane LinkType = "intra_plane"
	LinkInterPlane LinkType = "inter_plane"
)

// Link is an undirected inter-satellite link. Endpoints are stored with
// A < B so a pair has exactly one representation.
type Link struct {
	A, B       int
	Type       LinkType
	DistanceKm float64
	LatencySec float64
}

func newLink(a, b int, t LinkType, distKm float64) Link {
	if a > b {
		a, b = b, a
	}
	return Link{A: a, B: b, Type: t, DistanceKm: distKm, LatencySec: distKm / SpeedOfLightKmPerSec}
}

type neighbor struct {
	ID         int
	LatencySec float64
	Type       LinkType
}

// TopologySnapshot is one immutable network state: positions, plane
// assignment, and the derived link set at a single timestamp. Snapshots
// are never mutated after Build returns, so they are safe to share
// read-only across trials.
type TopologySnapshot struct {
	Time      time.Time
	Positions map[int]Vec3
	Planes    []PlaneGroup
	PlaneOf   map[int]int
	Links     []Link

	// Valid is false when the build hit a GeometryError; invalid
	// snapshots are excluded from churn and metrics.
	Valid bool
	Err   error

	adjacency map[int][]neighbor
}

// Neighbors returns the adjacency list of a node, ordered by id.
func (s *TopologySnapshot) Neighbors(id int) []neighbor {
	return s.adjacency[id]
}

// HasEdge reports whether a and b are directly linked.
func (s *TopologySnapshot) HasEdge(a, b int) bool {
	for _, n := range s.adjacency[a] {
		if n.ID == b {
			return true
		}
	}
	return false
}

// NodeIDs returns all node ids in ascending order.
func (s *TopologySnapshot) NodeIDs() []int {
	ids := make([]int, 0, len(s.Positions))
	for id := range s.Positions {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// BuildParams are the geometric link-formation rules.
type BuildParams struct {
	// MaxRangeKm bounds every link; IntraPlaneRangeKm additionally
	// bounds ring links.
	MaxRangeKm        float64
	IntraPlaneRangeKm float64
	// GrazeClearanceKm is the minimum allowed closest approach of a
	// link segment to the Earth's centre (Earth radius + margin).
	GrazeClearanceKm float64
	// LinkFailureProb drops each accepted link independently per
	// snapshot. Zero disables stochastic failure.
	LinkFailureProb float64
}

// DefaultBuildParams returns the standard +Grid rule set.
func DefaultBuildParams() BuildParams {
	return BuildParams{
		MaxRangeKm:        2500,
		IntraPlaneRangeKm: 700,
		GrazeClearanceKm:  EarthRadiusKm + 100,
		LinkFailureProb:   1e-4,
	}
}

// Validate reports the first invalid parameter.
func (p BuildParams) Validate() error {
	switch {
	case p.MaxRangeKm <= 0:
		return &ConfigurationError{Param: "maxRangeKm", Reason: "must be positive"}
	case p.IntraPlaneRangeKm <= 0:
		return &ConfigurationError{Param: "intraPlaneRangeKm", Reason: "must be positive"}
	case p.GrazeClearanceKm < EarthRadiusKm:
		return &ConfigurationError{Param: "grazeClearanceKm", Reason: "below Earth radius"}
	case p.LinkFailureProb < 0 || p.LinkFailureProb > 1:
		return &ConfigurationError{Param: "linkFailureProb", Reason: "must be in [0,1]"}
	}
	return nil
}

// TopologyBuilder derives one snapshot from positions and plane groups.
// Build is deterministic given its inputs; the only randomness is the
// optional link-failure draw against the injected source.
type TopologyBuilder struct {
	Params BuildParams
}

// NewTopologyBuilder validates params and constructs a builder.
func NewTopologyBuilder(params BuildParams) (*TopologyBuilder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &TopologyBuilder{Params: params}, nil
}

// Build derives the link set for the given constellation state. A
// malformed position yields a snapshot marked invalid together with the
// GeometryError; callers keep the timeline running.
func (b *TopologyBuilder) Build(t time.Time, positions []SatellitePosition, planes []PlaneGroup, rng *rand.Rand) (*TopologySnapshot, error) {
	snap := &TopologySnapshot{
		Time:      t,
		Positions: make(map[int]Vec3, len(positions)),
		Planes:    planes,
		PlaneOf:   make(map[int]int, len(positions)),
		adjacency: make(map[int][]neighbor),
		Valid:     true,
	}

	for _, sp := range positions {
		if !sp.Pos.IsFinite() {
			snap.Valid = false
			snap.Err = &GeometryError{SatelliteID: sp.ID, Reason: "non-finite position"}
			return snap, snap.Err
		}
		if sp.Pos.Norm() == 0 {
			snap.Valid = false
			snap.Err = &GeometryError{SatelliteID: sp.ID, Reason: "zero position vector"}
			return snap, snap.Err
		}
		snap.Positions[sp.ID] = sp.Pos
	}
	for pi, pg := range planes {
		for _, id := range pg.SatIDs {
			snap.PlaneOf[id] = pi
		}
	}

	links := map[[2]int]Link{}
	addLink := func(l Link) {
		links[[2]int{l.A, l.B}] = l
	}

	// Intra-plane ring adjacency in phase order. Two members make a
	// single link, not a doubled ring.
	for _, pg := range planes {
		n := len(pg.SatIDs)
		if n < 2 {
			continue
		}
		last := n
		if n == 2 {
			last = 1
		}
		for i := 0; i < last; i++ {
			a, c := pg.SatIDs[i], pg.SatIDs[(i+1)%n]
			d := snap.Positions[a].DistanceTo(snap.Positions[c])
			if d > b.Params.MaxRangeKm || d > b.Params.IntraPlaneRangeKm {
				continue
			}
			if !HasLineOfSight(snap.Positions[a], snap.Positions[c], b.Params.GrazeClearanceKm) {
				continue
			}
			addLink(newLink(a, c, LinkIntraPlane, d))
		}
	}

	// Inter-plane selection: per satellite, per RAAN-adjacent plane,
	// the single nearest satellite passing both tests. The degree cap
	// of two inter-plane links per node is enforced across reciprocal
	// selections; processing ascending ids keeps the result
	// deterministic.
	interDegree := map[int]int{}
	for pi, pg := range planes {
		for _, a := range pg.SatIDs {
			for _, qi := range adjacentPlanes(planes, pi) {
				best, bestDist := -1, 0.0
				for _, c := range planes[qi].SatIDs {
					d := snap.Positions[a].DistanceTo(snap.Positions[c])
					if d > b.Params.MaxRangeKm {
						continue
					}
					if !HasLineOfSight(snap.Positions[a], snap.Positions[c], b.Params.GrazeClearanceKm) {
						continue
					}
					// Equidistant candidates resolve to the lowest id.
					if best == -1 || d < bestDist || (d == bestDist && c < best) {
						best, bestDist = c, d
					}
				}
				if best == -1 {
					continue
				}
				key := [2]int{a, best}
				if key[0] > key[1] {
					key[0], key[1] = key[1], key[0]
				}
				if _, dup := links[key]; dup {
					continue
				}
				if interDegree[a] >= 2 || interDegree[best] >= 2 {
					continue
				}
				addLink(newLink(a, best, LinkInterPlane, bestDist))
				interDegree[a]++
				interDegree[best]++
			}
		}
	}

	keys := make([][2]int, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})

	for _, k := range keys {
		l := links[k]
		// Stochastic per-snapshot link failure, applied after type
		// classification so the draw order is stable.
		if b.Params.LinkFailureProb > 0 && rng != nil && rng.Float64() < b.Params.LinkFailureProb {
			continue
		}
		snap.Links = append(snap.Links, l)
		snap.adjacency[l.A] = append(snap.adjacency[l.A], neighbor{ID: l.B, LatencySec: l.LatencySec, Type: l.Type})
		snap.adjacency[l.B] = append(snap.adjacency[l.B], neighbor{ID: l.A, LatencySec: l.LatencySec, Type: l.Type})
	}
	for id := range snap.adjacency {
		nbrs := snap.adjacency[id]
		sort.Slice(nbrs, func(i, j int) bool { return nbrs[i].ID < nbrs[j].ID })
	}

	return snap, nil
}

// DegreeByType counts a node's links per type, for degree-cap checks and
// metrics.
func (s *TopologySnapshot) DegreeByType(id int) (intra, inter int) {
	for _, n := range s.adjacency[id] {
		if n.Type == LinkIntraPlane {
			intra++
		} else {
			inter++
		}
	}
	return intra, inter
}
