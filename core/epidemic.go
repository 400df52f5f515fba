package core

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/signalsfoundry/satnet-worm-sim/internal/logging"
)

// Health is a node's epidemic state. Recovered is terminal; no node
// ever revisits Susceptible.
type Health string

const (
	HealthSusceptible Health = "susceptible"
	HealthInfected    Health = "infected"
	HealthRecovered   Health = "recovered"
)

// SatelliteNode is the propagation engine's per-satellite state.
// Position fields are refreshed from each snapshot; health state is
// owned exclusively by the engine.
type SatelliteNode struct {
	ID      int
	PlaneID int
	Pos     Vec3

	Health Health
	// Dormant is only meaningful for Infected nodes: a dormant worm
	// instance stops spreading but stays vulnerable to patching.
	Dormant       bool
	LastC2Contact time.Time
	InfectedAt    time.Time
}

// EpidemicEvent is one audit record of a state transition.
type EpidemicEvent struct {
	NodeID     int
	Transition string
	Cause      string
	Time       time.Time
}

// EpidemicParams govern the S→I transition and dormancy behaviour.
type EpidemicParams struct {
	// BetaNormal and BetaEclipse are per-attempt infection
	// probabilities; the eclipse value applies while the victim sits in
	// its eclipse-transition window.
	BetaNormal  float64
	BetaEclipse float64
	// ExploitHops is the maximum delivery radius h. 1 means
	// direct-neighbour spread; larger values deliver the exploit along
	// routed multi-hop paths.
	ExploitHops int
	// C2Timeout sends an infected node dormant when it has had no
	// ground-contact window for this long.
	C2Timeout time.Duration
}

// DefaultEpidemicParams returns a moderately aggressive worm profile.
func DefaultEpidemicParams() EpidemicParams {
	return EpidemicParams{
		BetaNormal:  0.1,
		BetaEclipse: 0.3,
		ExploitHops: 1,
		C2Timeout:   2 * time.Hour,
	}
}

// Validate reports the first invalid parameter.
func (p EpidemicParams) Validate() error {
	switch {
	case p.BetaNormal < 0 || p.BetaNormal > 1:
		return &ConfigurationError{Param: "betaNormal", Reason: "must be in [0,1]"}
	case p.BetaEclipse < 0 || p.BetaEclipse > 1:
		return &ConfigurationError{Param: "betaEclipse", Reason: "must be in [0,1]"}
	case p.ExploitHops < 1:
		return &ConfigurationError{Param: "exploitHops", Reason: "must be at least 1"}
	case p.C2Timeout <= 0:
		return &ConfigurationError{Param: "c2Timeout", Reason: "must be positive"}
	}
	return nil
}

// PropagationEngine runs the per-node S/I/R + dormancy state machine.
// All decisions for a timestep are computed from the frozen state at t
// and committed atomically, so iteration order cannot bias outcomes.
type PropagationEngine struct {
	params  EpidemicParams
	eclipse EclipseModel
	defense *DefenseLayer
	rng     *rand.Rand
	log     logging.Logger

	nodes   map[int]*SatelliteNode
	tracker *eclipseTracker
	events  []EpidemicEvent

	// router, when set, resolves multi-hop exploit paths through the
	// routing engine's cache instead of ad-hoc shortest paths.
	router *RoutingEngine
}

// SetRouter attaches the routing engine used for multi-hop exploit
// delivery.
func (pe *PropagationEngine) SetRouter(r *RoutingEngine) { pe.router = r }

// NewPropagationEngine validates params and constructs an engine. The
// rand source must be the trial's single seeded stream; defense may be
// nil to disable IDS and segmentation effects.
func NewPropagationEngine(params EpidemicParams, eclipse EclipseModel, defense *DefenseLayer, rng *rand.Rand, log logging.Logger) (*PropagationEngine, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, &ConfigurationError{Param: "rand", Reason: "seeded random source required"}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &PropagationEngine{
		params:  params,
		eclipse: eclipse,
		defense: defense,
		rng:     rng,
		log:     log,
		nodes:   make(map[int]*SatelliteNode),
		tracker: newEclipseTracker(),
	}, nil
}

// InitNodes creates Susceptible nodes for the constellation. C2 contact
// clocks start at the given time.
func (pe *PropagationEngine) InitNodes(positions []SatellitePosition, start time.Time) {
	for _, sp := range positions {
		pe.nodes[sp.ID] = &SatelliteNode{
			ID:            sp.ID,
			Pos:           sp.Pos,
			Health:        HealthSusceptible,
			LastC2Contact: start,
		}
	}
}

// SeedInfection marks the given nodes Infected at time now. Unknown ids
// are ignored.
func (pe *PropagationEngine) SeedInfection(now time.Time, ids ...int) {
	for _, id := range ids {
		n, ok := pe.nodes[id]
		if !ok || n.Health != HealthSusceptible {
			continue
		}
		n.Health = HealthInfected
		n.InfectedAt = now
		n.LastC2Contact = now
		pe.events = append(pe.events, EpidemicEvent{NodeID: id, Transition: "S->I", Cause: "seed", Time: now})
	}
}

// RefreshPositions copies the snapshot's positions and plane ids onto
// the engine's nodes.
func (pe *PropagationEngine) RefreshPositions(s *TopologySnapshot) {
	for id, pos := range s.Positions {
		if n, ok := pe.nodes[id]; ok {
			n.Pos = pos
			n.PlaneID = s.PlaneOf[id]
		}
	}
}

// HealthOf returns a node's health, or Recovered for unknown ids so
// they are never patch candidates.
func (pe *PropagationEngine) HealthOf(id int) Health {
	if n, ok := pe.nodes[id]; ok {
		return n.Health
	}
	return HealthRecovered
}

// Node returns the node state for inspection.
func (pe *PropagationEngine) Node(id int) *SatelliteNode { return pe.nodes[id] }

// Events returns the epidemic audit stream.
func (pe *PropagationEngine) Events() []EpidemicEvent { return pe.events }

// Counts tallies the current S/I/R split plus the dormant subset of I.
func (pe *PropagationEngine) Counts() (s, i, r, dormant int) {
	for _, n := range pe.nodes {
		switch n.Health {
		case HealthSusceptible:
			s++
		case HealthInfected:
			i++
			if n.Dormant {
				dormant++
			}
		case HealthRecovered:
			r++
		}
	}
	return
}

// Recover moves a Susceptible or Infected node to the terminal
// Recovered state. This is the only I→R path and is driven by the
// defense layer, not the engine itself.
func (pe *PropagationEngine) Recover(id int, cause string, now time.Time) bool {
	n, ok := pe.nodes[id]
	if !ok || n.Health == HealthRecovered {
		return false
	}
	from := "I"
	if n.Health == HealthSusceptible {
		from = "S"
	}
	n.Health = HealthRecovered
	n.Dormant = false
	pe.events = append(pe.events, EpidemicEvent{NodeID: id, Transition: from + "->R", Cause: cause, Time: now})
	return true
}

// Step advances the epidemic by one timestep over the given snapshot.
// contacts is the set of nodes currently inside a ground-contact
// window; shadowAhead optionally carries the shadow flags at
// now+HalfWidth so imminent eclipse transitions widen the window on
// both sides. Decisions are drawn from the frozen state and committed
// together at the end.
func (pe *PropagationEngine) Step(s *TopologySnapshot, now time.Time, contacts map[int]bool, shadowAhead map[int]bool) {
	ids := pe.sortedIDs()

	// C2 bookkeeping first: contact refreshes the clock for every node
	// and reactivates dormant infections immediately.
	for _, id := range ids {
		n := pe.nodes[id]
		if contacts[id] {
			n.LastC2Contact = now
			if n.Health == HealthInfected && n.Dormant {
				n.Dormant = false
				pe.events = append(pe.events, EpidemicEvent{NodeID: id, Transition: "dormant->active", Cause: "c2_contact", Time: now})
			}
			continue
		}
		if n.Health == HealthInfected && !n.Dormant && now.Sub(n.LastC2Contact) > pe.params.C2Timeout {
			n.Dormant = true
			pe.events = append(pe.events, EpidemicEvent{NodeID: id, Transition: "active->dormant", Cause: "c2_timeout", Time: now})
		}
	}

	// Track shadow transitions from the snapshot geometry.
	shadowNow := make(map[int]bool, len(s.Positions))
	for id, pos := range s.Positions {
		shadowNow[id] = pe.eclipse.InShadow(pos)
	}
	pe.tracker.observe(now, shadowNow)

	if !s.Valid {
		return
	}

	// Frozen view of who spreads and who is exposed this step.
	frozen := make(map[int]Health, len(pe.nodes))
	for id, n := range pe.nodes {
		frozen[id] = n.Health
	}

	pending := map[int]string{}
	for _, u := range ids {
		nu := pe.nodes[u]
		if frozen[u] != HealthInfected || nu.Dormant {
			continue
		}
		reach := s.HopsWithin(u, pe.params.ExploitHops)
		targets := make([]int, 0, len(reach))
		for v := range reach {
			if frozen[v] == HealthSusceptible {
				targets = append(targets, v)
			}
		}
		sort.Ints(targets)

		for _, v := range targets {
			if pe.attemptInfection(s, now, u, v, reach[v], shadowAhead) {
				if _, already := pending[v]; !already {
					pending[v] = fmt.Sprintf("exploit from %d", u)
				}
			}
		}
	}

	// Atomic commit: state at t+1 appears only after every draw for t
	// has been made.
	for _, v := range sortedKeys(pending) {
		n := pe.nodes[v]
		if n.Health != HealthSusceptible {
			continue
		}
		n.Health = HealthInfected
		n.InfectedAt = now
		pe.events = append(pe.events, EpidemicEvent{NodeID: v, Transition: "S->I", Cause: pending[v], Time: now})
	}
}

// attemptInfection runs one u→v exploit attempt: firewall traversal
// draws per inter-zone link, then a detection draw, then the infection
// draw at the victim's effective β. The combined success probability is
// β_effective × (1 − P_detect)^h.
func (pe *PropagationEngine) attemptInfection(s *TopologySnapshot, now time.Time, u, v, hops int, shadowAhead map[int]bool) bool {
	var path []int
	switch {
	case hops == 1:
		path = []int{u, v}
	case pe.router != nil:
		p, ok := pe.router.PathFor(u, v)
		if !ok {
			return false
		}
		path = p
	default:
		p, _, ok := s.ShortestPath(u, v)
		if !ok {
			return false
		}
		path = p
	}

	if pe.defense != nil {
		for i := 0; i < len(path)-1; i++ {
			if pe.defense.TraversalBlocked(pe.rng, s, path[i], path[i+1], now) {
				return false
			}
		}
		if pd := pe.defense.PathDetectProb(path); pd > 0 {
			// The exponent is the hop count of the path actually
			// traversed, which can exceed the BFS delivery radius when
			// the routed path is longer.
			detectProb := 1 - math.Pow(1-pd, float64(len(path)-1))
			if pe.rng.Float64() < detectProb {
				pe.defense.RecordDetection(pe.defense.firstIDSOnPath(path), now,
					fmt.Sprintf("exploit attempt %d->%d", u, v))
				return false
			}
		}
	}

	beta := pe.params.BetaNormal
	if pe.tracker.inTransitionWindow(v, now, pe.eclipse.HalfWidth, shadowAhead) {
		beta = pe.params.BetaEclipse
	}
	return pe.rng.Float64() < beta
}

func (pe *PropagationEngine) sortedIDs() []int {
	ids := make([]int, 0, len(pe.nodes))
	for id := range pe.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func sortedKeys(m map[int]string) []int {
	ks := make([]int, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Ints(ks)
	return ks
}
