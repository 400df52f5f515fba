package core

import (
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"
)

// arcPositions places n satellites along one equatorial arc with the
// given angular spacing in degrees, starting at angle 0.
func arcPositions(n int, spacingDeg, altitudeKm float64) []SatellitePosition {
	r := EarthRadiusKm + altitudeKm
	out := make([]SatellitePosition, n)
	for i := 0; i < n; i++ {
		u := float64(i) * spacingDeg * math.Pi / 180
		out[i] = SatellitePosition{ID: i, Pos: orbitalToECI(r, 0, 0, u)}
	}
	return out
}

func buildSnapshot(t *testing.T, params BuildParams, positions []SatellitePosition) *TopologySnapshot {
	t.Helper()
	b, err := NewTopologyBuilder(params)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	planes := ClassifyPlanes(positions, DefaultClassifyParams())
	snap, err := b.Build(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), positions, planes, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return snap
}

func noFailureParams() BuildParams {
	p := DefaultBuildParams()
	p.LinkFailureProb = 0
	return p
}

func TestBuild_IntraPlaneRing(t *testing.T) {
	// 72 satellites at 5° spacing: every consecutive pair is ~604 km
	// apart, so the plane forms a complete ring.
	positions := arcPositions(72, 5, 550)
	snap := buildSnapshot(t, noFailureParams(), positions)

	if len(snap.Links) != 72 {
		t.Fatalf("got %d links, want 72 ring links", len(snap.Links))
	}
	for _, id := range snap.NodeIDs() {
		intra, inter := snap.DegreeByType(id)
		if intra != 2 || inter != 0 {
			t.Errorf("node %d degree (intra=%d, inter=%d), want (2, 0)", id, intra, inter)
		}
	}
	for _, l := range snap.Links {
		if l.Type != LinkIntraPlane {
			t.Errorf("link %d-%d type %s, want intra_plane", l.A, l.B, l.Type)
		}
		if l.DistanceKm > 700 {
			t.Errorf("ring link %d-%d spans %.1f km, above the intra-plane bound", l.A, l.B, l.DistanceKm)
		}
		if math.Abs(l.LatencySec-l.DistanceKm/SpeedOfLightKmPerSec) > 1e-12 {
			t.Errorf("link %d-%d latency inconsistent with distance", l.A, l.B)
		}
	}
}

func TestBuild_ChainWhenWrapGapTooLong(t *testing.T) {
	// 10 satellites along a 45° arc: consecutive spacing passes the
	// intra-plane bound but the wrap-around pair is ~5300 km apart, so
	// the ring degenerates into a chain with 9 links.
	positions := arcPositions(10, 5, 550)
	snap := buildSnapshot(t, noFailureParams(), positions)

	if len(snap.Links) != 9 {
		t.Fatalf("got %d links, want 9 chain links", len(snap.Links))
	}
	if snap.HasEdge(0, 9) {
		t.Errorf("wrap-around link 0-9 should fail the distance test")
	}
	for i := 0; i < 9; i++ {
		if !snap.HasEdge(i, i+1) {
			t.Errorf("missing chain link %d-%d", i, i+1)
		}
	}
}

func TestBuild_TwoMemberPlaneSingleLink(t *testing.T) {
	positions := arcPositions(2, 5, 550)
	snap := buildSnapshot(t, noFailureParams(), positions)

	if len(snap.Links) != 1 {
		t.Fatalf("two-member plane produced %d links, want 1", len(snap.Links))
	}
}

func TestBuild_InterPlaneDegreeCap(t *testing.T) {
	w := &WalkerProvider{
		Planes:         6,
		SatsPerPlane:   30,
		AltitudeKm:     550,
		InclinationDeg: 53,
		Epoch:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	positions, err := w.PositionsAt(w.Epoch)
	if err != nil {
		t.Fatalf("walker positions: %v", err)
	}
	snap := buildSnapshot(t, noFailureParams(), positions)

	interTotal := 0
	for _, id := range snap.NodeIDs() {
		_, inter := snap.DegreeByType(id)
		if inter > 2 {
			t.Errorf("node %d has %d inter-plane links, cap is 2", id, inter)
		}
		interTotal += inter
	}
	if interTotal == 0 {
		t.Errorf("expected some inter-plane links in a 6-plane shell")
	}
	for _, l := range snap.Links {
		if l.DistanceKm > snap.Positions[l.A].DistanceTo(snap.Positions[l.B])+1e-9 {
			t.Errorf("link %d-%d records wrong distance", l.A, l.B)
		}
		if l.Type == LinkInterPlane && l.DistanceKm > 2500 {
			t.Errorf("inter-plane link %d-%d exceeds max range: %.1f km", l.A, l.B, l.DistanceKm)
		}
	}
}

func TestBuild_Deterministic(t *testing.T) {
	w := &WalkerProvider{
		Planes:         4,
		SatsPerPlane:   20,
		AltitudeKm:     550,
		InclinationDeg: 53,
		Epoch:          time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	positions, err := w.PositionsAt(w.Epoch)
	if err != nil {
		t.Fatalf("walker positions: %v", err)
	}

	a := buildSnapshot(t, noFailureParams(), positions)
	b := buildSnapshot(t, noFailureParams(), positions)

	if len(a.Links) != len(b.Links) {
		t.Fatalf("builds differ in link count: %d vs %d", len(a.Links), len(b.Links))
	}
	for i := range a.Links {
		if a.Links[i] != b.Links[i] {
			t.Fatalf("link %d differs between identical builds: %+v vs %+v", i, a.Links[i], b.Links[i])
		}
	}
}

func TestBuild_StochasticLinkFailure(t *testing.T) {
	positions := arcPositions(72, 5, 550)
	params := noFailureParams()
	params.LinkFailureProb = 0.5

	b, err := NewTopologyBuilder(params)
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	planes := ClassifyPlanes(positions, DefaultClassifyParams())
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s1, err := b.Build(ts, positions, planes, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(s1.Links) >= 72 || len(s1.Links) == 0 {
		t.Fatalf("failure prob 0.5 kept %d of 72 links", len(s1.Links))
	}

	// Same seed, same surviving set.
	s2, err := b.Build(ts, positions, planes, rand.New(rand.NewSource(7)))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(s1.Links) != len(s2.Links) {
		t.Fatalf("same seed produced different link counts: %d vs %d", len(s1.Links), len(s2.Links))
	}
	for i := range s1.Links {
		if s1.Links[i] != s2.Links[i] {
			t.Fatalf("same seed produced different links at %d", i)
		}
	}
}

func TestBuild_InvalidPosition(t *testing.T) {
	positions := arcPositions(3, 5, 550)
	positions[1].Pos.X = math.NaN()

	b, err := NewTopologyBuilder(noFailureParams())
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	planes := ClassifyPlanes(positions, DefaultClassifyParams())
	snap, err := b.Build(time.Now(), positions, planes, nil)
	if err == nil {
		t.Fatalf("expected error for non-finite position")
	}
	var ge *GeometryError
	if !errors.As(err, &ge) {
		t.Fatalf("error %v is not a GeometryError", err)
	}
	if ge.SatelliteID != 1 {
		t.Errorf("GeometryError names satellite %d, want 1", ge.SatelliteID)
	}
	if snap == nil || snap.Valid {
		t.Errorf("snapshot should be returned and marked invalid")
	}
}

func TestBuildParams_Validate(t *testing.T) {
	p := DefaultBuildParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("default params invalid: %v", err)
	}

	bad := p
	bad.GrazeClearanceKm = 100
	var ce *ConfigurationError
	if err := bad.Validate(); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError for sub-Earth clearance, got %v", err)
	}

	bad = p
	bad.LinkFailureProb = 1.5
	if err := bad.Validate(); err == nil {
		t.Errorf("expected error for failure prob above 1")
	}
}
