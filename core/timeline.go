package core

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/signalsfoundry/satnet-worm-sim/internal/logging"
)

// TopologyTimeline produces snapshots at a fixed step by invoking the
// position provider and builder, and keeps the append-only sequence.
// The stored sequence is read-shared: trials that reuse the same
// orbital input iterate it concurrently while one goroutine appends.
type TopologyTimeline struct {
	provider PositionProvider
	builder  *TopologyBuilder
	classify ClassifyParams
	step     time.Duration
	log      logging.Logger

	mu        sync.RWMutex
	current   time.Time
	snapshots []*TopologySnapshot
}

// NewTopologyTimeline validates inputs and positions the timeline so
// the first Advance produces the snapshot at start.
func NewTopologyTimeline(provider PositionProvider, builder *TopologyBuilder, classify ClassifyParams, start time.Time, step time.Duration, log logging.Logger) (*TopologyTimeline, error) {
	if provider == nil {
		return nil, &ConfigurationError{Param: "positionProvider", Reason: "must not be nil"}
	}
	if builder == nil {
		return nil, &ConfigurationError{Param: "topologyBuilder", Reason: "must not be nil"}
	}
	if step <= 0 {
		return nil, &ConfigurationError{Param: "topologyStep", Reason: "must be positive"}
	}
	if log == nil {
		log = logging.Noop()
	}
	return &TopologyTimeline{
		provider: provider,
		builder:  builder,
		classify: classify,
		step:     step,
		log:      log,
		current:  start.Add(-step),
	}, nil
}

// Step returns the timeline's fixed step duration.
func (tl *TopologyTimeline) Step() time.Duration { return tl.step }

// Advance builds and appends the next snapshot. A GeometryError is
// fatal to that single build only: the invalid snapshot is appended so
// the sequence stays aligned with the time grid, and no error is
// returned. Provider failures are returned as errors.
func (tl *TopologyTimeline) Advance(rng *rand.Rand) (*TopologySnapshot, error) {
	tl.mu.Lock()
	next := tl.current.Add(tl.step)
	tl.mu.Unlock()

	positions, err := tl.provider.PositionsAt(next)
	if err != nil {
		return nil, fmt.Errorf("position provider at %s: %w", next.Format(time.RFC3339), err)
	}

	planes := ClassifyPlanes(positions, tl.classify)
	snap, buildErr := tl.builder.Build(next, positions, planes, rng)
	if buildErr != nil {
		tl.log.Warn(context.Background(), "snapshot build failed, marking invalid",
			logging.String("time", next.Format(time.RFC3339)),
			logging.Any("err", buildErr),
		)
	}

	tl.mu.Lock()
	tl.current = next
	tl.snapshots = append(tl.snapshots, snap)
	tl.mu.Unlock()
	return snap, nil
}

// Snapshots returns the sequence built so far. The slice is a copy; the
// snapshots themselves are immutable.
func (tl *TopologyTimeline) Snapshots() []*TopologySnapshot {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	out := make([]*TopologySnapshot, len(tl.snapshots))
	copy(out, tl.snapshots)
	return out
}

// Latest returns the most recent snapshot, or nil before the first
// Advance.
func (tl *TopologyTimeline) Latest() *TopologySnapshot {
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	if len(tl.snapshots) == 0 {
		return nil
	}
	return tl.snapshots[len(tl.snapshots)-1]
}

// Churn computes the edge churn rate between consecutive snapshots:
// (added + removed) / |prev edges|. The second return is false when the
// rate is undefined (previous snapshot empty, or either side invalid);
// such samples are excluded from aggregates.
func Churn(prev, curr *TopologySnapshot) (float64, bool) {
	if prev == nil || curr == nil || !prev.Valid || !curr.Valid {
		return 0, false
	}
	if len(prev.Links) == 0 {
		return 0, false
	}

	prevSet := make(map[[2]int]struct{}, len(prev.Links))
	for _, l := range prev.Links {
		prevSet[[2]int{l.A, l.B}] = struct{}{}
	}
	added := 0
	for _, l := range curr.Links {
		if _, ok := prevSet[[2]int{l.A, l.B}]; ok {
			delete(prevSet, [2]int{l.A, l.B})
		} else {
			added++
		}
	}
	removed := len(prevSet)
	return float64(added+removed) / float64(len(prev.Links)), true
}

// PrebuildSnapshots materialises a full horizon of snapshots once so
// independent trials sharing the same orbital input can reuse them.
// Stochastic link failure must be disabled for shared builds, otherwise
// trials would not be independent.
func PrebuildSnapshots(ctx context.Context, tl *TopologyTimeline, horizon time.Duration) ([]*TopologySnapshot, error) {
	if tl.builder.Params.LinkFailureProb != 0 {
		return nil, &ConfigurationError{Param: "linkFailureProb", Reason: "must be zero for shared snapshot prebuild"}
	}
	steps := int(horizon / tl.step)
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := tl.Advance(nil); err != nil {
			return nil, err
		}
	}
	return tl.Snapshots(), nil
}
