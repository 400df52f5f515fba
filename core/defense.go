package core

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// DefenseParams configures the three defensive mechanisms: IDS
// detection, rate-limited patching, and zone segmentation.
type DefenseParams struct {
	// IDSNodes lists the satellites running intrusion detection; each
	// contributes PDetect per hop to paths crossing them.
	IDSNodes []int
	PDetect  float64

	// PatchRatePerHour caps ground-driven transitions to Recovered.
	PatchRatePerHour float64

	// ZoneCount partitions planes into zones; links crossing zones are
	// firewalled. Zero or one disables segmentation.
	ZoneCount int
	// FirewallRate is the per-traversal blocking probability on
	// inter-zone links.
	FirewallRate float64
}

// DefaultDefenseParams returns the standard detection and firewall
// rates with patching and segmentation disabled.
func DefaultDefenseParams() DefenseParams {
	return DefenseParams{PDetect: 0.3, FirewallRate: 0.7}
}

// Validate reports the first invalid parameter.
func (p DefenseParams) Validate() error {
	switch {
	case p.PDetect < 0 || p.PDetect > 1:
		return &ConfigurationError{Param: "pDetect", Reason: "must be in [0,1]"}
	case p.PatchRatePerHour < 0:
		return &ConfigurationError{Param: "patchRatePerHour", Reason: "must be non-negative"}
	case p.ZoneCount < 0:
		return &ConfigurationError{Param: "zoneCount", Reason: "must be non-negative"}
	case p.FirewallRate < 0 || p.FirewallRate > 1:
		return &ConfigurationError{Param: "firewallRate", Reason: "must be in [0,1]"}
	}
	return nil
}

// DefenseEventType labels entries in the defense audit stream.
type DefenseEventType string

const (
	DefenseDetection     DefenseEventType = "detection"
	DefensePatch         DefenseEventType = "patch"
	DefenseFirewallBlock DefenseEventType = "firewall_block"
)

// DefenseEvent is one recorded defensive action.
type DefenseEvent struct {
	Type   DefenseEventType
	NodeID int
	Time   time.Time
	Detail string
}

// DefenseLayer implements IDS, patching, and segmentation. It never
// owns health state: all transitions go through the propagation
// engine's Recover call.
type DefenseLayer struct {
	Params DefenseParams

	ids         map[int]bool
	patchCredit float64
	events      []DefenseEvent
}

// NewDefenseLayer validates params and constructs the layer.
func NewDefenseLayer(params DefenseParams) (*DefenseLayer, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	ids := make(map[int]bool, len(params.IDSNodes))
	for _, id := range params.IDSNodes {
		ids[id] = true
	}
	return &DefenseLayer{Params: params, ids: ids}, nil
}

// Events returns the recorded defense audit stream.
func (d *DefenseLayer) Events() []DefenseEvent { return d.events }

// PathDetectProb returns the per-hop detection probability for a path:
// Params.PDetect when any IDS-enabled node other than the attacking
// source lies on it, zero otherwise. Detection never blocks traffic by
// itself; the caller folds the probability into its success draw.
func (d *DefenseLayer) PathDetectProb(path []int) float64 {
	if d == nil || len(d.ids) == 0 || len(path) < 2 {
		return 0
	}
	for _, id := range path[1:] {
		if d.ids[id] {
			return d.Params.PDetect
		}
	}
	return 0
}

// RecordDetection appends a detection event for the IDS node that saw
// the attempt.
func (d *DefenseLayer) RecordDetection(nodeID int, now time.Time, detail string) {
	d.events = append(d.events, DefenseEvent{Type: DefenseDetection, NodeID: nodeID, Time: now, Detail: detail})
}

// firstIDSOnPath returns the first monitoring node after the source, or
// -1 when none.
func (d *DefenseLayer) firstIDSOnPath(path []int) int {
	for _, id := range path[1:] {
		if d.ids[id] {
			return id
		}
	}
	return -1
}

// ZoneOf maps an orbital plane to its zone.
func (d *DefenseLayer) ZoneOf(planeID int) int {
	if d == nil || d.Params.ZoneCount <= 1 {
		return 0
	}
	return planeID % d.Params.ZoneCount
}

// CrossesZone reports whether the a–b link spans two zones in the given
// snapshot.
func (d *DefenseLayer) CrossesZone(s *TopologySnapshot, a, b int) bool {
	if d == nil || d.Params.ZoneCount <= 1 {
		return false
	}
	return d.ZoneOf(s.PlaneOf[a]) != d.ZoneOf(s.PlaneOf[b])
}

// TraversalBlocked draws the firewall check for one traversal of an
// inter-zone link. Each attempt draws independently.
func (d *DefenseLayer) TraversalBlocked(rng *rand.Rand, s *TopologySnapshot, a, b int, now time.Time) bool {
	if !d.CrossesZone(s, a, b) {
		return false
	}
	if rng.Float64() >= d.Params.FirewallRate {
		return false
	}
	d.events = append(d.events, DefenseEvent{
		Type:   DefenseFirewallBlock,
		NodeID: b,
		Time:   now,
		Detail: "inter-zone traversal blocked",
	})
	return true
}

// PatchStep performs this timestep's patching. Candidates are the nodes
// inside a ground-contact window; Infected nodes (dormant included) are
// patched before Susceptible ones, ties by ascending id. The number of
// transitions is capped by the accumulated rate budget and by contact
// capacity. Returns the number of nodes patched.
func (d *DefenseLayer) PatchStep(pe *PropagationEngine, now time.Time, step time.Duration, contacts map[int]bool) int {
	if d == nil || d.Params.PatchRatePerHour <= 0 || len(contacts) == 0 {
		return 0
	}

	// Fractional step budgets carry over; unused whole transitions do
	// not, so one step never exceeds rate × step.
	total := d.Params.PatchRatePerHour*step.Hours() + d.patchCredit
	budget := int(math.Floor(total))
	d.patchCredit = total - float64(budget)
	if budget <= 0 {
		return 0
	}

	var infected, susceptible []int
	for id := range contacts {
		switch pe.HealthOf(id) {
		case HealthInfected:
			infected = append(infected, id)
		case HealthSusceptible:
			susceptible = append(susceptible, id)
		}
	}
	sort.Ints(infected)
	sort.Ints(susceptible)
	candidates := append(infected, susceptible...)

	patched := 0
	for _, id := range candidates {
		if patched >= budget {
			break
		}
		if pe.Recover(id, "patch", now) {
			patched++
			d.events = append(d.events, DefenseEvent{Type: DefensePatch, NodeID: id, Time: now})
		}
	}
	return patched
}
