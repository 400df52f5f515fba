package core

import "time"

// EclipseModel is the cylindrical Earth-shadow model: a satellite is in
// shadow when it sits behind the Earth relative to the sun direction
// and inside the Earth-radius cylinder.
type EclipseModel struct {
	// SunDirection is the unit vector from the Earth towards the sun.
	// It is held fixed over a trial; the sun moves ~1°/day, far slower
	// than anything this model resolves.
	SunDirection Vec3
	// HalfWidth is the half-width of the eclipse-transition window
	// around each shadow entry and exit.
	HalfWidth time.Duration
}

// DefaultEclipseModel places the sun on +X with a 10 minute transition
// half-width.
func DefaultEclipseModel() EclipseModel {
	return EclipseModel{
		SunDirection: Vec3{X: 1},
		HalfWidth:    10 * time.Minute,
	}
}

// InShadow reports whether the position is inside the Earth's shadow
// cylinder.
func (m EclipseModel) InShadow(pos Vec3) bool {
	along := pos.Dot(m.SunDirection)
	if along >= 0 {
		return false
	}
	perp := pos.Sub(m.SunDirection.Scale(along))
	return perp.Norm() < EarthRadiusKm
}

// ShadowSet evaluates InShadow for a whole constellation state.
func (m EclipseModel) ShadowSet(positions []SatellitePosition) map[int]bool {
	out := make(map[int]bool, len(positions))
	for _, sp := range positions {
		out[sp.ID] = m.InShadow(sp.Pos)
	}
	return out
}

// eclipseTracker remembers each node's last observed shadow flag and
// the time it last flipped, so the propagation engine can tell whether
// a node sits inside its transition window.
type eclipseTracker struct {
	inShadow map[int]bool
	lastFlip map[int]time.Time
}

func newEclipseTracker() *eclipseTracker {
	return &eclipseTracker{
		inShadow: make(map[int]bool),
		lastFlip: make(map[int]time.Time),
	}
}

// observe records the shadow flags at now and notes transitions.
func (t *eclipseTracker) observe(now time.Time, shadow map[int]bool) {
	for id, s := range shadow {
		prev, seen := t.inShadow[id]
		if seen && prev != s {
			t.lastFlip[id] = now
		}
		t.inShadow[id] = s
	}
}

// inTransitionWindow reports whether node id is within halfWidth of a
// shadow entry/exit: either one happened recently, or one is imminent
// per the caller-supplied lookahead flags (shadow state at
// now+halfWidth). ahead may be nil when no lookahead is available.
func (t *eclipseTracker) inTransitionWindow(id int, now time.Time, halfWidth time.Duration, ahead map[int]bool) bool {
	if flip, ok := t.lastFlip[id]; ok && now.Sub(flip) <= halfWidth {
		return true
	}
	if ahead != nil {
		if cur, ok := t.inShadow[id]; ok && ahead[id] != cur {
			return true
		}
	}
	return false
}
