package core

import (
	"math"
	"testing"
	"time"
)

func TestSnapshotMetricsOf_ConnectedChain(t *testing.T) {
	s := snapFromEdges([]int{0, 1, 2}, [][3]float64{{0, 1, 1}, {1, 2, 1}})
	m := SnapshotMetricsOf(s, nil)

	if !m.Valid || m.NodeCount != 3 || m.EdgeCount != 2 {
		t.Fatalf("metrics %+v, want valid 3-node 2-edge", m)
	}
	if math.Abs(m.AvgDegree-4.0/3.0) > 1e-9 {
		t.Errorf("avg degree = %f, want 4/3", m.AvgDegree)
	}
	if !m.Connected || m.Diameter != 2 {
		t.Errorf("connected %v diameter %d, want true 2", m.Connected, m.Diameter)
	}
	if math.Abs(m.AvgPathLength-4.0/3.0) > 1e-9 {
		t.Errorf("avg path length = %f, want 4/3", m.AvgPathLength)
	}
	if m.ChurnDefined {
		t.Errorf("churn without a previous snapshot must be undefined")
	}
}

func TestSnapshotMetricsOf_Disconnected(t *testing.T) {
	s := snapFromEdges([]int{0, 1, 2}, [][3]float64{{0, 1, 1}})
	m := SnapshotMetricsOf(s, nil)

	if m.Connected {
		t.Errorf("partitioned snapshot reported as connected")
	}
	if m.AvgPathLength != 0 || m.Diameter != 0 {
		t.Errorf("path stats must be empty for disconnected snapshots")
	}
}

func TestSnapshotMetricsOf_Invalid(t *testing.T) {
	s := snapFromEdges([]int{0, 1}, [][3]float64{{0, 1, 1}})
	s.Valid = false
	m := SnapshotMetricsOf(s, nil)

	if m.Valid || m.NodeCount != 0 || m.EdgeCount != 0 {
		t.Errorf("invalid snapshot must produce a placeholder row, got %+v", m)
	}
}

func TestMetricsCollector_ChurnSkipsInvalidSnapshots(t *testing.T) {
	valid1 := snapFromEdges([]int{0, 1, 2}, [][3]float64{{0, 1, 1}, {1, 2, 1}})
	invalid := snapFromEdges([]int{0, 1, 2}, [][3]float64{{0, 1, 1}})
	invalid.Valid = false
	valid2 := snapFromEdges([]int{0, 1, 2}, [][3]float64{{0, 1, 1}, {0, 2, 1}})

	mc := NewMetricsCollector()
	m1 := mc.ObserveSnapshot(valid1)
	m2 := mc.ObserveSnapshot(invalid)
	m3 := mc.ObserveSnapshot(valid2)

	if m1.ChurnDefined {
		t.Errorf("first snapshot churn must be undefined")
	}
	if m2.ChurnDefined {
		t.Errorf("invalid snapshot churn must be undefined")
	}
	// Churn for the third row compares against the last valid snapshot,
	// not the invalid one in between.
	if !m3.ChurnDefined {
		t.Fatalf("churn after an invalid gap must be defined against the last valid snapshot")
	}
	if m3.ChurnRate != 1.0 {
		t.Errorf("churn = %f, want 1.0 (one added, one removed, two previous)", m3.ChurnRate)
	}

	if got := len(mc.SnapshotSeries()); got != 3 {
		t.Errorf("stored %d rows, want 3", got)
	}
}

func TestMetricsCollector_InfectionCurve(t *testing.T) {
	mc := NewMetricsCollector()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.ObserveInfection(base, 9, 1, 0, 0)
	mc.ObserveInfection(base.Add(time.Minute), 7, 3, 0, 1)

	curve := mc.InfectionCurve()
	if len(curve) != 2 {
		t.Fatalf("curve has %d points, want 2", len(curve))
	}
	p := curve[1]
	if p.Susceptible != 7 || p.Infected != 3 || p.Dormant != 1 {
		t.Errorf("point = %+v, want S=7 I=3 dormant=1", p)
	}
}
