package sink

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/satnet-worm-sim/core"
)

func sampleResult() *core.TrialResult {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return &core.TrialResult{
		Seed: 42,
		Curve: []core.InfectionPoint{
			{Time: base, Susceptible: 9, Infected: 1},
			{Time: base.Add(time.Minute), Susceptible: 8, Infected: 2},
		},
		Snapshots: []core.SnapshotMetrics{
			{Time: base, Valid: true, NodeCount: 10, EdgeCount: 9},
		},
		EpidemicEvents: []core.EpidemicEvent{
			{NodeID: 0, Transition: "S->I", Cause: "seed", Time: base},
		},
		DefenseEvents: []core.DefenseEvent{
			{Type: core.DefensePatch, NodeID: 3, Time: base.Add(time.Minute)},
		},
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

func TestFileWriter_WritesAllStreams(t *testing.T) {
	dir := t.TempDir()
	curvePath := filepath.Join(dir, "curve.jsonl")
	topoPath := filepath.Join(dir, "topology.jsonl")
	eventPath := filepath.Join(dir, "events.jsonl")

	fw, err := NewFileWriter(curvePath, topoPath, eventPath)
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	if err := fw.WriteTrial(sampleResult()); err != nil {
		t.Fatalf("write trial: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	curves := readLines(t, curvePath)
	if len(curves) != 2 {
		t.Fatalf("curve file has %d rows, want 2", len(curves))
	}
	var cr CurveRow
	if err := json.Unmarshal([]byte(curves[1]), &cr); err != nil {
		t.Fatalf("decode curve row: %v", err)
	}
	if cr.Seed != 42 || cr.Infected != 2 {
		t.Errorf("curve row = %+v, want seed 42 infected 2", cr)
	}

	if topo := readLines(t, topoPath); len(topo) != 1 {
		t.Errorf("topology file has %d rows, want 1", len(topo))
	}

	events := readLines(t, eventPath)
	if len(events) != 2 {
		t.Fatalf("event file has %d rows, want 2", len(events))
	}
	var er EventRow
	if err := json.Unmarshal([]byte(events[1]), &er); err != nil {
		t.Fatalf("decode event row: %v", err)
	}
	if er.Kind != "defense" || er.Label != "patch" || er.NodeID != 3 {
		t.Errorf("event row = %+v, want defense/patch on node 3", er)
	}
}

func TestFileWriter_OptionalStreamsSkipped(t *testing.T) {
	dir := t.TempDir()
	curvePath := filepath.Join(dir, "curve.jsonl")

	fw, err := NewFileWriter(curvePath, "", "")
	if err != nil {
		t.Fatalf("writer: %v", err)
	}
	defer fw.Close()
	if err := fw.WriteTrial(sampleResult()); err != nil {
		t.Fatalf("write trial: %v", err)
	}
	if got := readLines(t, curvePath); len(got) != 2 {
		t.Errorf("curve file has %d rows, want 2", len(got))
	}
}

func TestMultiWriter_FansOut(t *testing.T) {
	dir := t.TempDir()
	a, err := NewFileWriter(filepath.Join(dir, "a.jsonl"), "", "")
	if err != nil {
		t.Fatalf("writer a: %v", err)
	}
	b, err := NewFileWriter(filepath.Join(dir, "b.jsonl"), "", "")
	if err != nil {
		t.Fatalf("writer b: %v", err)
	}

	mw := NewMultiWriter(a, b)
	if err := mw.WriteTrial(sampleResult()); err != nil {
		t.Fatalf("write trial: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if got := readLines(t, filepath.Join(dir, "a.jsonl")); len(got) != 2 {
		t.Errorf("writer a got %d rows, want 2", len(got))
	}
	if got := readLines(t, filepath.Join(dir, "b.jsonl")); len(got) != 2 {
		t.Errorf("writer b got %d rows, want 2", len(got))
	}
}
