package core

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/signalsfoundry/satnet-worm-sim/internal/logging"
)

// TrialParams is the full configuration of one simulation trial.
type TrialParams struct {
	Start   time.Time
	Horizon time.Duration
	Step    time.Duration

	Build      BuildParams
	Classify   ClassifyParams
	Epidemic   EpidemicParams
	Defense    DefenseParams
	Visibility VisibilityParams
	Eclipse    EclipseModel

	BufferCapacity  int
	Seed            int64
	InitialInfected []int
}

// Validate checks the whole parameter surface before any timestep runs,
// naming the first offending parameter.
func (p TrialParams) Validate() error {
	if p.Horizon <= 0 {
		return &ConfigurationError{Param: "horizon", Reason: "must be positive"}
	}
	if p.Step <= 0 {
		return &ConfigurationError{Param: "step", Reason: "must be positive"}
	}
	if p.Step > p.Horizon {
		return &ConfigurationError{Param: "step", Reason: "exceeds horizon"}
	}
	if len(p.InitialInfected) == 0 {
		return &ConfigurationError{Param: "initialInfected", Reason: "at least one seed node required"}
	}
	if err := p.Build.Validate(); err != nil {
		return err
	}
	if err := p.Epidemic.Validate(); err != nil {
		return err
	}
	if err := p.Defense.Validate(); err != nil {
		return err
	}
	return p.Visibility.Validate()
}

// TrialResult carries everything one trial produced, keyed by its seed.
type TrialResult struct {
	Seed int64

	Curve     []InfectionPoint
	Snapshots []SnapshotMetrics

	EpidemicEvents []EpidemicEvent
	DefenseEvents  []DefenseEvent
	Routing        RoutingStats

	Elapsed time.Duration
}

// Trial is one fully-wired simulation instance. Every trial owns its
// engines and random stream; nothing mutable is shared between trials.
type Trial struct {
	params   TrialParams
	provider PositionProvider
	stations []GroundStation
	log      logging.Logger

	// shared, when set, replaces per-trial topology builds with a
	// prebuilt immutable snapshot sequence.
	shared []*TopologySnapshot
}

// NewTrial validates the configuration and assembles a trial.
func NewTrial(params TrialParams, provider PositionProvider, stations []GroundStation, log logging.Logger) (*Trial, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, &ConfigurationError{Param: "positionProvider", Reason: "must not be nil"}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &Trial{params: params, provider: provider, stations: stations, log: log}, nil
}

// UseSharedSnapshots makes the trial iterate a prebuilt snapshot
// sequence instead of building its own. Only valid when stochastic link
// failure is disabled, otherwise trials would correlate.
func (t *Trial) UseSharedSnapshots(snaps []*TopologySnapshot) error {
	if t.params.Build.LinkFailureProb != 0 {
		return &ConfigurationError{Param: "linkFailureProb", Reason: "must be zero when sharing snapshots"}
	}
	t.shared = snaps
	return nil
}

// Run executes the trial's discrete-time loop. The context is checked
// once per step; cancellation abandons the trial with ctx.Err().
func (t *Trial) Run(ctx context.Context) (*TrialResult, error) {
	started := time.Now()
	ctx, log := logging.WithTrialLogger(ctx, t.log, t.params.Seed)

	rng := rand.New(rand.NewSource(t.params.Seed))

	gv, err := NewGroundVisibility(t.stations, t.params.Visibility)
	if err != nil {
		return nil, err
	}
	defense, err := NewDefenseLayer(t.params.Defense)
	if err != nil {
		return nil, err
	}
	pe, err := NewPropagationEngine(t.params.Epidemic, t.params.Eclipse, defense, rng, log)
	if err != nil {
		return nil, err
	}
	router := NewRoutingEngine(t.params.BufferCapacity)
	pe.SetRouter(router)
	mc := NewMetricsCollector()

	initial, err := t.provider.PositionsAt(t.params.Start)
	if err != nil {
		return nil, fmt.Errorf("initial constellation state: %w", err)
	}
	pe.InitNodes(initial, t.params.Start)
	pe.SeedInfection(t.params.Start, t.params.InitialInfected...)

	var timeline *TopologyTimeline
	if t.shared == nil {
		builder, err := NewTopologyBuilder(t.params.Build)
		if err != nil {
			return nil, err
		}
		timeline, err = NewTopologyTimeline(t.provider, builder, t.params.Classify, t.params.Start, t.params.Step, log)
		if err != nil {
			return nil, err
		}
	}

	steps := int(t.params.Horizon / t.params.Step)
	log.Info(ctx, "trial starting",
		logging.Int("steps", steps),
		logging.Int("nodes", len(initial)),
		logging.Int("seed_nodes", len(t.params.InitialInfected)),
	)

	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			log.Warn(ctx, "trial cancelled", logging.Int("completed_steps", i))
			return nil, err
		}

		var snap *TopologySnapshot
		if t.shared != nil {
			if i >= len(t.shared) {
				return nil, &ConfigurationError{Param: "sharedSnapshots", Reason: "fewer snapshots than horizon steps"}
			}
			snap = t.shared[i]
		} else {
			snap, err = timeline.Advance(rng)
			if err != nil {
				return nil, err
			}
		}
		now := snap.Time

		if snap.Valid {
			pe.RefreshPositions(snap)
		}
		router.SetSnapshot(snap)

		contacts := gv.VisibleFromSnapshot(snap)
		shadowAhead := t.shadowLookahead(now)

		pe.Step(snap, now, contacts, shadowAhead)
		defense.PatchStep(pe, now, t.params.Step, contacts)

		mc.ObserveSnapshot(snap)
		s, inf, r, dormant := pe.Counts()
		mc.ObserveInfection(now, s, inf, r, dormant)
	}

	s, inf, r, _ := pe.Counts()
	log.Info(ctx, "trial finished",
		logging.Int("susceptible", s),
		logging.Int("infected", inf),
		logging.Int("recovered", r),
	)

	return &TrialResult{
		Seed:           t.params.Seed,
		Curve:          mc.InfectionCurve(),
		Snapshots:      mc.SnapshotSeries(),
		EpidemicEvents: pe.Events(),
		DefenseEvents:  defense.Events(),
		Routing:        router.Stats(),
		Elapsed:        time.Since(started),
	}, nil
}

// shadowLookahead evaluates eclipse flags half a transition window
// ahead so imminent shadow entry/exit widens the β_eclipse window on
// the leading side. A provider miss just disables the lookahead.
func (t *Trial) shadowLookahead(now time.Time) map[int]bool {
	if t.params.Eclipse.HalfWidth <= 0 {
		return nil
	}
	ahead, err := t.provider.PositionsAt(now.Add(t.params.Eclipse.HalfWidth))
	if err != nil {
		return nil
	}
	return t.params.Eclipse.ShadowSet(ahead)
}
