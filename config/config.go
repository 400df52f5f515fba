// Package config loads the YAML run configuration and maps it onto the
// simulation's parameter types. Files are validated against a CUE
// schema before unmarshalling.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/satnet-worm-sim/core"
)

// Walker describes a synthetic Walker-delta shell.
type Walker struct {
	Planes         int     `yaml:"planes"`
	SatsPerPlane   int     `yaml:"sats_per_plane"`
	AltitudeKm     float64 `yaml:"altitude_km"`
	InclinationDeg float64 `yaml:"inclination_deg"`
	Phasing        int     `yaml:"phasing"`
}

// Constellation selects the position source: a Walker shell or a TLE
// file. Exactly one must be set.
type Constellation struct {
	Walker  *Walker `yaml:"walker,omitempty"`
	TLEFile string  `yaml:"tle_file,omitempty"`
}

// Time bounds the discrete-time loop.
type Time struct {
	Start        time.Time `yaml:"start"`
	HorizonHours float64   `yaml:"horizon_hours"`
	StepSeconds  int       `yaml:"step_seconds"`
}

// Topology carries the geometric link-formation rules.
type Topology struct {
	MaxRangeKm        float64 `yaml:"max_range_km"`
	IntraPlaneRangeKm float64 `yaml:"intra_plane_range_km"`
	GrazeMarginKm     float64 `yaml:"graze_margin_km"`
	LinkFailureProb   float64 `yaml:"link_failure_prob"`
}

// Planes controls orbital-plane bucketing.
type Planes struct {
	InclBucketDeg float64 `yaml:"incl_bucket_deg"`
	RAANBucketDeg float64 `yaml:"raan_bucket_deg"`
}

// Epidemic configures the worm's spread parameters.
type Epidemic struct {
	BetaNormal       float64 `yaml:"beta_normal"`
	BetaEclipse      float64 `yaml:"beta_eclipse"`
	ExploitHops      int     `yaml:"exploit_hops"`
	C2TimeoutMinutes int     `yaml:"c2_timeout_minutes"`
}

// Defense configures IDS, patching, and segmentation.
type Defense struct {
	IDSNodes         []int   `yaml:"ids_nodes"`
	PDetect          float64 `yaml:"p_detect"`
	PatchRatePerHour float64 `yaml:"patch_rate_per_hour"`
	ZoneCount        int     `yaml:"zone_count"`
	FirewallRate     float64 `yaml:"firewall_rate"`
}

// Visibility gates ground contact.
type Visibility struct {
	MinElevationDeg float64 `yaml:"min_elevation_deg"`
	MaxRangeKm      float64 `yaml:"max_range_km"`
}

// GroundStation is one fixed ground terminal.
type GroundStation struct {
	ID     string  `yaml:"id"`
	LatDeg float64 `yaml:"lat_deg"`
	LonDeg float64 `yaml:"lon_deg"`
}

// Eclipse configures the shadow model.
type Eclipse struct {
	TransitionHalfWidthMinutes int `yaml:"transition_half_width_minutes"`
}

// Routing configures per-node buffering.
type Routing struct {
	BufferCapacity int `yaml:"buffer_capacity"`
}

// Run configures the Monte Carlo sweep.
type Run struct {
	Trials          int   `yaml:"trials"`
	BaseSeed        int64 `yaml:"base_seed"`
	InitialInfected []int `yaml:"initial_infected"`
	// ShareSnapshots prebuilds one snapshot sequence for all trials.
	// Requires link_failure_prob to be zero.
	ShareSnapshots bool `yaml:"share_snapshots"`
}

// Output names the JSONL result files. Empty paths skip the stream.
type Output struct {
	CurvePath    string `yaml:"curve_path"`
	TopologyPath string `yaml:"topology_path"`
	EventPath    string `yaml:"event_path"`
}

// SimulationConfig is the root run configuration.
type SimulationConfig struct {
	Constellation  Constellation   `yaml:"constellation"`
	Time           Time            `yaml:"time"`
	Topology       Topology        `yaml:"topology"`
	Planes         Planes          `yaml:"planes"`
	Epidemic       Epidemic        `yaml:"epidemic"`
	Defense        Defense         `yaml:"defense"`
	Visibility     Visibility      `yaml:"visibility"`
	GroundStations []GroundStation `yaml:"ground_stations"`
	Eclipse        Eclipse         `yaml:"eclipse"`
	Routing        Routing         `yaml:"routing"`
	Run            Run             `yaml:"run"`
	Output         Output          `yaml:"output"`
}

// Load reads a YAML config, validates it against the CUE schema when a
// schema path is given, and applies defaults for omitted sections.
func Load(configPath, cueSchemaPath string) (*SimulationConfig, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	var cfg SimulationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *SimulationConfig) applyDefaults() {
	if c.Topology.MaxRangeKm == 0 {
		c.Topology = Topology{
			MaxRangeKm:        2500,
			IntraPlaneRangeKm: 700,
			GrazeMarginKm:     100,
			LinkFailureProb:   c.Topology.LinkFailureProb,
		}
	}
	if c.Epidemic.BetaNormal == 0 && c.Epidemic.BetaEclipse == 0 {
		def := core.DefaultEpidemicParams()
		c.Epidemic.BetaNormal = def.BetaNormal
		c.Epidemic.BetaEclipse = def.BetaEclipse
	}
	if c.Epidemic.ExploitHops == 0 {
		c.Epidemic.ExploitHops = 1
	}
	if c.Epidemic.C2TimeoutMinutes == 0 {
		c.Epidemic.C2TimeoutMinutes = 120
	}
	if c.Visibility.MinElevationDeg == 0 && c.Visibility.MaxRangeKm == 0 {
		def := core.DefaultVisibilityParams()
		c.Visibility.MinElevationDeg = def.MinElevationDeg
		c.Visibility.MaxRangeKm = def.MaxRangeKm
	}
	if c.Eclipse.TransitionHalfWidthMinutes == 0 {
		c.Eclipse.TransitionHalfWidthMinutes = 10
	}
	if c.Run.Trials == 0 {
		c.Run.Trials = 1
	}
	if c.Output.CurvePath == "" {
		c.Output.CurvePath = "curve.jsonl"
	}
}

// Validate checks cross-field constraints the CUE schema cannot
// express.
func (c *SimulationConfig) Validate() error {
	if (c.Constellation.Walker == nil) == (c.Constellation.TLEFile == "") {
		return &core.ConfigurationError{Param: "constellation", Reason: "exactly one of walker or tle_file required"}
	}
	if c.Time.HorizonHours <= 0 {
		return &core.ConfigurationError{Param: "time.horizon_hours", Reason: "must be positive"}
	}
	if c.Time.StepSeconds <= 0 {
		return &core.ConfigurationError{Param: "time.step_seconds", Reason: "must be positive"}
	}
	if len(c.Run.InitialInfected) == 0 {
		return &core.ConfigurationError{Param: "run.initial_infected", Reason: "at least one seed node required"}
	}
	if c.Run.ShareSnapshots && c.Topology.LinkFailureProb != 0 {
		return &core.ConfigurationError{Param: "run.share_snapshots", Reason: "requires link_failure_prob = 0"}
	}
	return nil
}

// Provider builds the position provider the config selects.
func (c *SimulationConfig) Provider() (core.PositionProvider, error) {
	if w := c.Constellation.Walker; w != nil {
		return &core.WalkerProvider{
			Planes:         w.Planes,
			SatsPerPlane:   w.SatsPerPlane,
			AltitudeKm:     w.AltitudeKm,
			InclinationDeg: w.InclinationDeg,
			Phasing:        w.Phasing,
			Epoch:          c.Time.Start,
		}, nil
	}
	tles, err := loadTLEFile(c.Constellation.TLEFile)
	if err != nil {
		return nil, err
	}
	return core.NewSGP4Provider(tles)
}

// loadTLEFile parses a TLE file into line pairs, tolerating name lines
// between element sets.
func loadTLEFile(path string) ([][2]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out [][2]string
	var line1 string
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, "\r")
		switch {
		case strings.HasPrefix(line, "1 "):
			line1 = line
		case strings.HasPrefix(line, "2 "):
			if line1 == "" {
				return nil, fmt.Errorf("tle file %s: line 2 without preceding line 1", path)
			}
			out = append(out, [2]string{line1, line})
			line1 = ""
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("tle file %s: no element sets found", path)
	}
	return out, nil
}

// TrialParams maps the config onto one trial's parameter set. The seed
// is filled in per trial by the Monte Carlo runner.
func (c *SimulationConfig) TrialParams() core.TrialParams {
	eclipse := core.DefaultEclipseModel()
	eclipse.HalfWidth = time.Duration(c.Eclipse.TransitionHalfWidthMinutes) * time.Minute

	return core.TrialParams{
		Start:   c.Time.Start,
		Horizon: time.Duration(c.Time.HorizonHours * float64(time.Hour)),
		Step:    time.Duration(c.Time.StepSeconds) * time.Second,
		Build: core.BuildParams{
			MaxRangeKm:        c.Topology.MaxRangeKm,
			IntraPlaneRangeKm: c.Topology.IntraPlaneRangeKm,
			GrazeClearanceKm:  core.EarthRadiusKm + c.Topology.GrazeMarginKm,
			LinkFailureProb:   c.Topology.LinkFailureProb,
		},
		Classify: core.ClassifyParams{
			InclBucketDeg: c.Planes.InclBucketDeg,
			RAANBucketDeg: c.Planes.RAANBucketDeg,
		},
		Epidemic: core.EpidemicParams{
			BetaNormal:  c.Epidemic.BetaNormal,
			BetaEclipse: c.Epidemic.BetaEclipse,
			ExploitHops: c.Epidemic.ExploitHops,
			C2Timeout:   time.Duration(c.Epidemic.C2TimeoutMinutes) * time.Minute,
		},
		Defense: core.DefenseParams{
			IDSNodes:         c.Defense.IDSNodes,
			PDetect:          c.Defense.PDetect,
			PatchRatePerHour: c.Defense.PatchRatePerHour,
			ZoneCount:        c.Defense.ZoneCount,
			FirewallRate:     c.Defense.FirewallRate,
		},
		Visibility: core.VisibilityParams{
			MinElevationDeg: c.Visibility.MinElevationDeg,
			MaxRangeKm:      c.Visibility.MaxRangeKm,
		},
		Eclipse:         eclipse,
		BufferCapacity:  c.Routing.BufferCapacity,
		InitialInfected: c.Run.InitialInfected,
	}
}

// Stations maps the config's ground stations onto the core type.
func (c *SimulationConfig) Stations() []core.GroundStation {
	out := make([]core.GroundStation, len(c.GroundStations))
	for i, gs := range c.GroundStations {
		out[i] = core.GroundStation{ID: gs.ID, LatDeg: gs.LatDeg, LonDeg: gs.LonDeg}
	}
	return out
}
