package core

import "time"

// SnapshotMetrics summarises one topology snapshot for reporting.
// AvgPathLength and Diameter are hop-based and only filled in when the
// snapshot is connected.
type SnapshotMetrics struct {
	Time      time.Time `json:"time"`
	Valid     bool      `json:"valid"`
	NodeCount int       `json:"node_count"`
	EdgeCount int       `json:"edge_count"`
	AvgDegree float64   `json:"avg_degree"`

	Connected     bool    `json:"connected"`
	AvgPathLength float64 `json:"avg_path_length,omitempty"`
	Diameter      int     `json:"diameter,omitempty"`

	ChurnRate    float64 `json:"churn_rate"`
	ChurnDefined bool    `json:"churn_defined"`
}

// InfectionPoint is one sample of the per-trial (S, I, R) series, with
// the dormant subset of I broken out.
type InfectionPoint struct {
	Time        time.Time `json:"time"`
	Susceptible int       `json:"s"`
	Infected    int       `json:"i"`
	Recovered   int       `json:"r"`
	Dormant     int       `json:"dormant"`
}

// MetricsCollector accumulates per-snapshot topology metrics and the
// infection curve for one trial. Invalid snapshots produce placeholder
// rows that aggregates skip.
type MetricsCollector struct {
	prev      *TopologySnapshot
	snapshots []SnapshotMetrics
	curve     []InfectionPoint
}

func NewMetricsCollector() *MetricsCollector { return &MetricsCollector{} }

// ObserveSnapshot derives and stores metrics for the next snapshot in
// sequence. Churn is computed against the previously observed snapshot.
func (mc *MetricsCollector) ObserveSnapshot(s *TopologySnapshot) SnapshotMetrics {
	m := SnapshotMetricsOf(s, mc.prev)
	mc.snapshots = append(mc.snapshots, m)
	if s.Valid {
		mc.prev = s
	}
	return m
}

// ObserveInfection appends one infection-curve sample.
func (mc *MetricsCollector) ObserveInfection(t time.Time, s, i, r, dormant int) {
	mc.curve = append(mc.curve, InfectionPoint{Time: t, Susceptible: s, Infected: i, Recovered: r, Dormant: dormant})
}

// SnapshotSeries returns the per-snapshot metric rows.
func (mc *MetricsCollector) SnapshotSeries() []SnapshotMetrics { return mc.snapshots }

// InfectionCurve returns the trial's (S, I, R) time series.
func (mc *MetricsCollector) InfectionCurve() []InfectionPoint { return mc.curve }

// SnapshotMetricsOf computes metrics for a single snapshot. prev may be
// nil (or invalid), in which case churn is undefined.
func SnapshotMetricsOf(s, prev *TopologySnapshot) SnapshotMetrics {
	m := SnapshotMetrics{Time: s.Time, Valid: s.Valid}
	if !s.Valid {
		return m
	}

	m.NodeCount = len(s.Positions)
	m.EdgeCount = len(s.Links)
	if m.NodeCount > 0 {
		m.AvgDegree = 2 * float64(m.EdgeCount) / float64(m.NodeCount)
	}
	m.ChurnRate, m.ChurnDefined = Churn(prev, s)

	comps := s.Components()
	m.Connected = len(comps) == 1 && m.NodeCount > 0
	if m.Connected {
		m.AvgPathLength, m.Diameter = pathLengthStats(s)
	}
	return m
}

// pathLengthStats runs BFS from every node to get the mean pairwise hop
// distance and the diameter. Quadratic in node count, which is fine at
// constellation scale.
func pathLengthStats(s *TopologySnapshot) (avg float64, diameter int) {
	ids := s.NodeIDs()
	totalPairs := 0
	totalHops := 0
	for _, src := range ids {
		dist := s.hopDistancesFrom(src)
		for _, dst := range ids {
			if dst <= src {
				continue
			}
			h, ok := dist[dst]
			if !ok {
				continue
			}
			totalPairs++
			totalHops += h
			if h > diameter {
				diameter = h
			}
		}
	}
	if totalPairs > 0 {
		avg = float64(totalHops) / float64(totalPairs)
	}
	return avg, diameter
}
