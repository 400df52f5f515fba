package core

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"
)

// TrialFactory builds a fully independent trial for the given seed.
// Implementations must not share mutable state between the trials they
// produce; immutable prebuilt snapshots are the one sanctioned shared
// input.
type TrialFactory func(seed int64) (*Trial, error)

// RunTrials executes trialCount independent Monte Carlo trials, each
// with its own derived seed, bounded by one worker per CPU. Cancelling
// the context abandons unfinished trials; results from trials that
// completed before cancellation are still returned, so aggregates stay
// uncorrupted.
func RunTrials(ctx context.Context, trialCount int, baseSeed int64, factory TrialFactory) ([]*TrialResult, error) {
	if trialCount <= 0 {
		return nil, &ConfigurationError{Param: "trialCount", Reason: "must be positive"}
	}

	results := make([]*TrialResult, trialCount)
	errs := make([]error, trialCount)

	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup

	for i := 0; i < trialCount; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				errs[idx] = ctx.Err()
				return
			}

			// Each trial gets a distinct seed and therefore its own
			// random stream; reusing one stream across trials would
			// couple their sample paths.
			trial, err := factory(baseSeed + int64(idx))
			if err != nil {
				errs[idx] = err
				return
			}
			results[idx], errs[idx] = trial.Run(ctx)
		}(i)
	}
	wg.Wait()

	completed := make([]*TrialResult, 0, trialCount)
	var failures []error
	for i := 0; i < trialCount; i++ {
		if results[i] != nil {
			completed = append(completed, results[i])
			continue
		}
		if errs[i] != nil && !errors.Is(errs[i], context.Canceled) {
			failures = append(failures, errs[i])
		}
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].Seed < completed[j].Seed })

	if len(failures) > 0 {
		return completed, errors.Join(failures...)
	}
	if err := ctx.Err(); err != nil && len(completed) < trialCount {
		return completed, err
	}
	return completed, nil
}

// MeanFinalCompromised averages the ever-compromised count (infected
// plus recovered) at the end of each completed trial. Returns false when
// no trial produced a curve.
func MeanFinalCompromised(results []*TrialResult) (float64, bool) {
	total, n := 0, 0
	for _, r := range results {
		if len(r.Curve) == 0 {
			continue
		}
		last := r.Curve[len(r.Curve)-1]
		total += last.Infected + last.Recovered
		n++
	}
	if n == 0 {
		return 0, false
	}
	return float64(total) / float64(n), true
}
