package sink

import (
	"encoding/json"
	"os"
	"time"

	"github.com/signalsfoundry/satnet-worm-sim/core"
)

// CurveRow is one infection-curve sample tagged with its trial seed.
type CurveRow struct {
	Seed        int64     `json:"seed"`
	Time        time.Time `json:"time"`
	Susceptible int       `json:"s"`
	Infected    int       `json:"i"`
	Recovered   int       `json:"r"`
	Dormant     int       `json:"dormant"`
}

// TopologyRow is one per-snapshot topology metric sample tagged with its
// trial seed.
type TopologyRow struct {
	Seed int64 `json:"seed"`
	core.SnapshotMetrics
}

// EventRow flattens epidemic and defense events into one audit stream.
type EventRow struct {
	Seed   int64     `json:"seed"`
	Kind   string    `json:"kind"` // epidemic | defense
	NodeID int       `json:"node_id"`
	Label  string    `json:"label"`
	Detail string    `json:"detail,omitempty"`
	Time   time.Time `json:"time"`
}

// TrialWriter persists the output of completed trials.
type TrialWriter interface {
	WriteTrial(result *core.TrialResult) error
	Close() error
}

// FileWriter writes trial output to JSONL files. Event and topology
// paths may be empty to skip those streams.
type FileWriter struct {
	curveFile *os.File
	topoFile  *os.File
	eventFile *os.File
	curveEnc  *json.Encoder
	topoEnc   *json.Encoder
	eventEnc  *json.Encoder
}

// NewFileWriter creates a FileWriter. topologyPath or eventPath may be
// empty to skip those logs.
func NewFileWriter(curvePath, topologyPath, eventPath string) (*FileWriter, error) {
	cf, err := os.Create(curvePath)
	if err != nil {
		return nil, err
	}
	fw := &FileWriter{curveFile: cf, curveEnc: json.NewEncoder(cf)}
	if topologyPath != "" {
		tf, err := os.Create(topologyPath)
		if err != nil {
			cf.Close()
			return nil, err
		}
		fw.topoFile = tf
		fw.topoEnc = json.NewEncoder(tf)
	}
	if eventPath != "" {
		ef, err := os.Create(eventPath)
		if err != nil {
			if fw.topoFile != nil {
				fw.topoFile.Close()
			}
			cf.Close()
			return nil, err
		}
		fw.eventFile = ef
		fw.eventEnc = json.NewEncoder(ef)
	}
	return fw, nil
}

// WriteTrial logs one trial's curve, topology series, and event streams.
func (f *FileWriter) WriteTrial(result *core.TrialResult) error {
	for _, p := range result.Curve {
		row := CurveRow{
			Seed:        result.Seed,
			Time:        p.Time,
			Susceptible: p.Susceptible,
			Infected:    p.Infected,
			Recovered:   p.Recovered,
			Dormant:     p.Dormant,
		}
		if err := f.curveEnc.Encode(row); err != nil {
			return err
		}
	}
	if f.topoEnc != nil {
		for _, m := range result.Snapshots {
			if err := f.topoEnc.Encode(TopologyRow{Seed: result.Seed, SnapshotMetrics: m}); err != nil {
				return err
			}
		}
	}
	if f.eventEnc != nil {
		for _, e := range result.EpidemicEvents {
			row := EventRow{
				Seed:   result.Seed,
				Kind:   "epidemic",
				NodeID: e.NodeID,
				Label:  e.Transition,
				Detail: e.Cause,
				Time:   e.Time,
			}
			if err := f.eventEnc.Encode(row); err != nil {
				return err
			}
		}
		for _, e := range result.DefenseEvents {
			row := EventRow{
				Seed:   result.Seed,
				Kind:   "defense",
				NodeID: e.NodeID,
				Label:  string(e.Type),
				Detail: e.Detail,
				Time:   e.Time,
			}
			if err := f.eventEnc.Encode(row); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes any underlying files.
func (f *FileWriter) Close() error {
	var err error
	if f.curveFile != nil {
		if e := f.curveFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.topoFile != nil {
		if e := f.topoFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	if f.eventFile != nil {
		if e := f.eventFile.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// MultiWriter fans trial output out to multiple writers.
type MultiWriter struct {
	writers []TrialWriter
}

// NewMultiWriter creates a MultiWriter over the given writers.
func NewMultiWriter(ws ...TrialWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteTrial sends the trial to all writers, stopping at the first error.
func (mw *MultiWriter) WriteTrial(result *core.TrialResult) error {
	for _, w := range mw.writers {
		if err := w.WriteTrial(result); err != nil {
			return err
		}
	}
	return nil
}

// Close closes all writers, returning the first error seen.
func (mw *MultiWriter) Close() error {
	var err error
	for _, w := range mw.writers {
		if e := w.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
