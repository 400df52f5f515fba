package main

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/signalsfoundry/satnet-worm-sim/core"
	"github.com/signalsfoundry/satnet-worm-sim/internal/observability"
)

func TestRecordSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	results := []*core.TrialResult{
		{
			Seed:    1,
			Elapsed: 2 * time.Second,
			Routing: core.RoutingStats{Dropped: map[core.DropReason]int{core.DropNoRoute: 4}},
			EpidemicEvents: []core.EpidemicEvent{
				{NodeID: 0, Transition: "S->I", Cause: "seed", Time: base},
				{NodeID: 1, Transition: "S->I", Cause: "exploit from 0", Time: base},
				{NodeID: 1, Transition: "I->R", Cause: "patch", Time: base},
			},
			DefenseEvents: []core.DefenseEvent{
				{Type: core.DefensePatch, NodeID: 1, Time: base},
				{Type: core.DefenseDetection, NodeID: 2, Time: base},
			},
			Snapshots: []core.SnapshotMetrics{
				{Valid: true, ChurnDefined: true, ChurnRate: 0.25},
				{Valid: true},
			},
		},
	}

	recordSweep(collector, results, 3, false)

	if got := testutil.ToFloat64(collector.TrialsCompleted); got != 1 {
		t.Errorf("trials completed = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TrialsFailed); got != 2 {
		t.Errorf("trials failed = %v, want 2 for the missing results", got)
	}
	if got := testutil.ToFloat64(collector.Infections); got != 2 {
		t.Errorf("infections = %v, want 2 S->I transitions", got)
	}
	if got := testutil.ToFloat64(collector.Patches); got != 1 {
		t.Errorf("patches = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.Detections); got != 1 {
		t.Errorf("detections = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.PacketsDropped.WithLabelValues("no_route")); got != 4 {
		t.Errorf("no_route drops = %v, want 4", got)
	}
}

func TestRecordSweep_CancelledSweep(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewSimCollector(reg)
	if err != nil {
		t.Fatalf("collector: %v", err)
	}

	recordSweep(collector, nil, 3, true)

	if got := testutil.ToFloat64(collector.TrialsCancelled); got != 3 {
		t.Errorf("trials cancelled = %v, want 3", got)
	}
	if got := testutil.ToFloat64(collector.TrialsFailed); got != 0 {
		t.Errorf("trials failed = %v, want 0 on a cancelled sweep", got)
	}
}

func TestRunCommandRegistered(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"run"})
	if err != nil || cmd.Use != "run" {
		t.Fatalf("run command not registered: %v", err)
	}
	for _, flag := range []string{"config", "schema", "metrics-addr"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("run command missing --%s flag", flag)
		}
	}
}
