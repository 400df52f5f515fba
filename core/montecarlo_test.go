package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func chainFactory(t *testing.T, steps int, beta float64) TrialFactory {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := &staticProvider{positions: arcPositions(10, 5, 550)}
	return func(seed int64) (*Trial, error) {
		params := chainTrialParams(start, steps)
		params.Epidemic.BetaNormal = beta
		params.Epidemic.BetaEclipse = beta
		params.Seed = seed
		return NewTrial(params, provider, nil, nil)
	}
}

func TestRunTrials_DerivedSeedsAndOrder(t *testing.T) {
	results, err := RunTrials(context.Background(), 4, 100, chainFactory(t, 10, 1))
	if err != nil {
		t.Fatalf("run trials: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		if r.Seed != 100+int64(i) {
			t.Errorf("result %d has seed %d, want %d", i, r.Seed, 100+int64(i))
		}
	}

	mean, ok := MeanFinalCompromised(results)
	if !ok || mean != 10 {
		t.Errorf("mean final compromised = %f ok %v, want 10 true", mean, ok)
	}
}

func TestRunTrials_Reproducible(t *testing.T) {
	factory := chainFactory(t, 10, 0.3)

	a, err := RunTrials(context.Background(), 3, 7, factory)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	b, err := RunTrials(context.Background(), 3, 7, factory)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	for i := range a {
		if len(a[i].Curve) != len(b[i].Curve) {
			t.Fatalf("trial %d curve lengths differ", i)
		}
		for j := range a[i].Curve {
			if a[i].Curve[j] != b[i].Curve[j] {
				t.Fatalf("trial %d diverges at point %d: %+v vs %+v", i, j, a[i].Curve[j], b[i].Curve[j])
			}
		}
	}
}

func TestRunTrials_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := RunTrials(ctx, 4, 1, chainFactory(t, 10, 1))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Errorf("cancelled-before-start sweep returned %d results, want 0", len(results))
	}
}

func TestRunTrials_FactoryFailure(t *testing.T) {
	boom := errors.New("bad scenario")
	factory := func(seed int64) (*Trial, error) {
		if seed%2 == 1 {
			return nil, boom
		}
		return chainFactory(t, 5, 1)(seed)
	}

	results, err := RunTrials(context.Background(), 4, 0, factory)
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want factory failure", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d completed results, want the 2 even-seed trials", len(results))
	}
}

func TestRunTrials_RejectsNonPositiveCount(t *testing.T) {
	var ce *ConfigurationError
	if _, err := RunTrials(context.Background(), 0, 1, chainFactory(t, 5, 1)); !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}
