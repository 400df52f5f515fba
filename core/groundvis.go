package core

import (
	"math"
	"time"
)

// GroundStation is a fixed ground terminal. Positions are treated as
// inertial over a trial: the station error this introduces is
// symmetric across trials and far cheaper than a full Earth-rotation
// frame conversion, which the topology layer does not need.
type GroundStation struct {
	ID     string
	LatDeg float64
	LonDeg float64
}

// ECEF returns the station position on the Earth-radius sphere.
func (g GroundStation) ECEF() Vec3 {
	lat := g.LatDeg * math.Pi / 180
	lon := g.LonDeg * math.Pi / 180
	return Vec3{
		X: EarthRadiusKm * math.Cos(lat) * math.Cos(lon),
		Y: EarthRadiusKm * math.Cos(lat) * math.Sin(lon),
		Z: EarthRadiusKm * math.Sin(lat),
	}
}

// VisibilityParams gate ground contact on elevation and slant range.
type VisibilityParams struct {
	MinElevationDeg float64
	MaxRangeKm      float64
}

// DefaultVisibilityParams uses the standard 25° mask and the S-band
// comm range limit.
func DefaultVisibilityParams() VisibilityParams {
	return VisibilityParams{MinElevationDeg: 25, MaxRangeKm: 2500}
}

// Validate reports the first invalid parameter.
func (p VisibilityParams) Validate() error {
	if p.MinElevationDeg < 0 || p.MinElevationDeg >= 90 {
		return &ConfigurationError{Param: "minElevationDeg", Reason: "must be in [0,90)"}
	}
	if p.MaxRangeKm <= 0 {
		return &ConfigurationError{Param: "maxCommRangeKm", Reason: "must be positive"}
	}
	return nil
}

// ContactWindow is one continuous visibility interval between a ground
// station and a satellite.
type ContactWindow struct {
	StationID       string
	SatelliteID     int
	Start           time.Time
	End             time.Time
	MaxElevationDeg float64
}

// GroundVisibility derives station contact state from satellite
// positions.
type GroundVisibility struct {
	Stations []GroundStation
	Params   VisibilityParams
}

// NewGroundVisibility validates params and constructs the component.
func NewGroundVisibility(stations []GroundStation, params VisibilityParams) (*GroundVisibility, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &GroundVisibility{Stations: stations, Params: params}, nil
}

// Visible reports whether the satellite clears the elevation mask and
// range limit from the given station, and returns the elevation.
func (gv *GroundVisibility) Visible(station GroundStation, satPos Vec3) (bool, float64) {
	sp := station.ECEF()
	elev := ElevationDegrees(sp, satPos)
	if elev < gv.Params.MinElevationDeg {
		return false, elev
	}
	if sp.DistanceTo(satPos) > gv.Params.MaxRangeKm {
		return false, elev
	}
	return true, elev
}

// VisibleSet returns the satellites currently visible from at least one
// station. This is the per-timestep contact predicate used for C2
// reachability and patch eligibility.
func (gv *GroundVisibility) VisibleSet(positions []SatellitePosition) map[int]bool {
	out := make(map[int]bool)
	for _, sp := range positions {
		for _, st := range gv.Stations {
			if ok, _ := gv.Visible(st, sp.Pos); ok {
				out[sp.ID] = true
				break
			}
		}
	}
	return out
}

// VisibleFromSnapshot is VisibleSet over a snapshot's position table.
func (gv *GroundVisibility) VisibleFromSnapshot(s *TopologySnapshot) map[int]bool {
	out := make(map[int]bool)
	for id, pos := range s.Positions {
		for _, st := range gv.Stations {
			if ok, _ := gv.Visible(st, pos); ok {
				out[id] = true
				break
			}
		}
	}
	return out
}

// ContactWindows scans [start, end] at the given step and merges
// consecutive visible samples into windows, recording the peak
// elevation per window.
func (gv *GroundVisibility) ContactWindows(provider PositionProvider, satelliteID int, start, end time.Time, step time.Duration) ([]ContactWindow, error) {
	if step <= 0 {
		return nil, &ConfigurationError{Param: "contactScanStep", Reason: "must be positive"}
	}

	open := map[string]*ContactWindow{}
	var out []ContactWindow

	for t := start; !t.After(end); t = t.Add(step) {
		positions, err := provider.PositionsAt(t)
		if err != nil {
			return nil, err
		}
		var pos Vec3
		found := false
		for _, sp := range positions {
			if sp.ID == satelliteID {
				pos, found = sp.Pos, true
				break
			}
		}
		if !found {
			continue
		}

		for _, st := range gv.Stations {
			visible, elev := gv.Visible(st, pos)
			w := open[st.ID]
			switch {
			case visible && w == nil:
				open[st.ID] = &ContactWindow{
					StationID:       st.ID,
					SatelliteID:     satelliteID,
					Start:           t,
					End:             t,
					MaxElevationDeg: elev,
				}
			case visible:
				w.End = t
				if elev > w.MaxElevationDeg {
					w.MaxElevationDeg = elev
				}
			case w != nil:
				out = append(out, *w)
				delete(open, st.ID)
			}
		}
	}
	for _, st := range gv.Stations {
		if w := open[st.ID]; w != nil {
			out = append(out, *w)
		}
	}
	return out, nil
}
